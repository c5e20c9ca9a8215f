// Package validator implements the Path & Command Validator (§4.1): pure
// functions that decide whether a user-supplied path stays under an
// approved root, and whether a shell command string contains a known
// dangerous pattern. Neither check performs I/O beyond a single stat call.
package validator

import (
	"path/filepath"
	"strings"

	"github.com/agentbridge/core/pkg/agentproto"
)

// dangerousCommandPatterns are checked case-insensitively as substrings.
// Common shell composition (|, >, &&, $()) is deliberately NOT rejected.
var dangerousCommandPatterns = []string{
	"sudo",       // privilege escalation
	"rm -rf /",   // recursive root deletion
	"chmod 777 /", // broad permission change on root
	"mkfs",       // filesystem format
	"dd if=",     // raw disk write
	"> /dev/sd",  // raw disk write
	":(){ :|:& };:", // classic fork bomb signature
}

// reservedNames are Windows device names that are invalid as path
// components regardless of host OS, kept conservative so the same
// validator behaves identically cross-platform.
var reservedNames = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true,
}

// ValidatePath resolves candidate against approvedRoot and reports whether
// the result stays within the root. candidate may be relative or absolute;
// approvedRoot must be absolute. Symlinks are resolved via filepath.EvalSymlinks
// when the path exists; a not-yet-existing path is validated lexically
// against its deepest existing ancestor.
func ValidatePath(candidate, approvedRoot string) (ok bool, resolved string, err error) {
	if strings.ContainsAny(candidate, "\x00") || hasControlBytes(candidate) {
		return false, "", &agentproto.PolicyViolation{Kind: "filename_invalid", Reason: "path contains control bytes"}
	}
	for _, seg := range strings.Split(filepath.ToSlash(candidate), "/") {
		base := strings.ToLower(strings.TrimSuffix(seg, filepath.Ext(seg)))
		if reservedNames[base] {
			return false, "", &agentproto.PolicyViolation{Kind: "filename_invalid", Reason: "reserved filename: " + seg}
		}
	}

	root, err := filepath.Abs(approvedRoot)
	if err != nil {
		return false, "", &agentproto.PolicyViolation{Kind: "path_escape", Reason: "invalid approved root"}
	}

	var abs string
	if filepath.IsAbs(candidate) {
		abs = filepath.Clean(candidate)
	} else {
		abs = filepath.Join(root, candidate)
	}

	resolvedPath := resolveSymlinks(abs)
	resolvedRoot := resolveSymlinks(root)

	rel, err := filepath.Rel(resolvedRoot, resolvedPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false, "", &agentproto.PolicyViolation{Kind: "path_escape", Reason: "path escapes approved directory"}
	}

	return true, resolvedPath, nil
}

// resolveSymlinks best-effort resolves symlinks; for paths that don't exist
// yet (e.g. a file about to be written) the deepest existing ancestor is
// resolved and the remaining components are appended lexically.
func resolveSymlinks(p string) string {
	p = filepath.Clean(p)
	var rest []string
	for {
		if real, err := filepath.EvalSymlinks(p); err == nil {
			return filepath.Join(append([]string{real}, rest...)...)
		}
		parent := filepath.Dir(p)
		if parent == p {
			return filepath.Join(append([]string{p}, rest...)...)
		}
		rest = append([]string{filepath.Base(p)}, rest...)
		p = parent
	}
}

func hasControlBytes(s string) bool {
	for _, r := range s {
		if r < 0x20 && r != '\t' {
			return true
		}
	}
	return false
}

// ValidateCommand rejects a shell command string containing any of the
// fixed dangerous patterns (case-insensitive substring match).
func ValidateCommand(command string) (ok bool, err error) {
	lower := strings.ToLower(command)
	for _, pattern := range dangerousCommandPatterns {
		if strings.Contains(lower, pattern) {
			return false, &agentproto.PolicyViolation{Kind: "dangerous_command", Reason: "matched pattern: " + pattern}
		}
	}
	return true, nil
}
