package transport

import "regexp"

// ansiCSI matches ANSI CSI escape sequences: ESC '[' followed by any
// number of digits, ';' or '?' and a final letter. Sequences with other
// parameter or intermediate bytes are not matched.
var ansiCSI = regexp.MustCompile("\x1b\\[[0-9;?]*[a-zA-Z]")

// stripANSI removes ANSI CSI sequences from a line before it is handed to
// the caller. The debugger's terminal-oriented output (color prompts,
// cursor movement around the current line marker) would otherwise leak
// into values the StateTracker and CommandChannel try to pattern-match.
func stripANSI(s string) string {
	return ansiCSI.ReplaceAllString(s, "")
}
