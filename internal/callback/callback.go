// Package callback implements the chat-button callback-data wire format
// (§6): ASCII, colon-delimited action:parameter pairs carried in
// reply_markup buttons and decoded back into a router branch plus an
// opaque parameter when the button is pressed.
package callback

import "strings"

// Reserved action names the core itself interprets. Everything else is
// opaque to this package and left to the caller's router.
const (
	ActionChangeDir        = "cd"
	ActionAction           = "action"
	ActionConfirm          = "confirm"
	ActionQuick            = "quick"
	ActionQuickAction      = "quick_action"
	ActionFollowup         = "followup"
	ActionConversation     = "conversation"
	ActionGit              = "git"
	ActionExport           = "export"
	ActionProjectCommand   = "pcmd"
)

// Parse splits callback data into its action and parameter. A string
// without a colon is the action alone, with no parameter — matching the
// Python original's `data.split(":", 1) if ":" in data else (data, None)`.
func Parse(data string) (action, param string, hasParam bool) {
	action, param, hasParam = strings.Cut(data, ":")
	return action, param, hasParam
}

// Build is the inverse of Parse: it joins an action and parameter back
// into wire form. Build(Parse(s)) round-trips for any ASCII action not
// itself containing a colon, except data ending in a colon with an empty
// parameter ("a:"), which comes back without the colon ("a").
func Build(action, param string) string {
	if param == "" {
		return action
	}
	return action + ":" + param
}
