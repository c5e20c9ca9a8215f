// Package chatglue provides concrete, thin adapters for the out-of-scope
// Chat transport collaborator (§6). The core itself only depends on the
// ChatTransport interface; Telegram and Discord adapters live here to
// exercise the full send/edit/delete/document/keyboard contract against
// real chat platforms.
package chatglue

import "context"

// Button is one {label, callback_data} cell of a reply-markup grid.
type Button struct {
	Label        string
	CallbackData string
}

// ReplyMarkup is a two-dimensional, ordered grid of buttons, rendered as
// an inline keyboard by whichever platform adapter sends it.
type ReplyMarkup [][]Button

// MessageHandle opaquely identifies a sent message for later edit/delete,
// round-tripped verbatim by the adapter that created it.
type MessageHandle struct {
	ChatID    string
	MessageID string
}

// ParseMode selects how a platform renders message formatting markup.
type ParseMode string

const (
	ParseModeNone     ParseMode = ""
	ParseModeMarkdown ParseMode = "markdown"
	ParseModeHTML     ParseMode = "html"
)

// ChatTransport is the §6 "Chat transport collaborator": the surface the
// Facade's callers use to render progress and final responses back to a
// chat platform. Implementations must swallow a platform's "message not
// modified" edit failure rather than surfacing it as an error.
type ChatTransport interface {
	SendMessage(ctx context.Context, chatID, text string, mode ParseMode, markup ReplyMarkup) (MessageHandle, error)
	EditMessage(ctx context.Context, handle MessageHandle, text string, mode ParseMode) error
	DeleteMessage(ctx context.Context, handle MessageHandle) error
	SendDocument(ctx context.Context, chatID string, data []byte, filename, caption string) error
}
