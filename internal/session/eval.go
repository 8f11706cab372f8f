package session

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Shared-variable names the eval wrapper uses inside the target's
// binding to stash captured output and any raised exception across the
// follow-up reads (spec §4.5's evaluate contract).
const (
	evalStdoutVar = "$__rdbgbridge_stdout"
	evalErrVar    = "$__rdbgbridge_err"
)

// buildEvalWrapper produces the Ruby source the target evaluates in its
// stopped binding: it swaps $stdout for a capturing buffer, runs code
// inside a rescue that stashes any exception instead of propagating it,
// restores $stdout, and prints the return value with pp. Per spec §9,
// this glue belongs at the debugger-wire level — it is Ruby source text
// shipped over the wire, not Go metaprogramming.
func buildEvalWrapper(code string) string {
	return fmt.Sprintf(
		"(__rdbgbridge_out = StringIO.new; __rdbgbridge_prev = $stdout; $stdout = __rdbgbridge_out; "+
			"__rdbgbridge_val = (begin; (%s); rescue => __rdbgbridge_e; %s = __rdbgbridge_e; nil; end); "+
			"$stdout = __rdbgbridge_prev; %s = __rdbgbridge_out.string; pp __rdbgbridge_val)",
		code, evalErrVar, evalStdoutVar)
}

// wrapPayloadCommand returns the command text to send for payload,
// base64-transporting it when it is multi-line or non-ASCII to avoid
// escape hazards on the wire (spec §9).
func wrapPayloadCommand(payload string) string {
	if isSingleLineASCII(payload) {
		return "eval " + payload
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(payload))
	return "eval eval(Base64.decode64(" + strconv.Quote(encoded) + "))"
}

func isSingleLineASCII(s string) bool {
	if strings.ContainsAny(s, "\n\r") {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}

// EvalResult is the return value of Evaluate (spec §4.5).
type EvalResult struct {
	Value          string
	CapturedStdout string
	Error          string
}

// dedupeCapturedStdout drops captured stdout that exactly duplicates
// the evaluated value: code like "pp(5)" both writes "5\n" to $stdout
// and returns 5, which the outer wrapper's own pp prints again as
// Value — without this a caller would see "5" twice (spec §8 scenario
// 2, "pp output deduplicates against return value").
func dedupeCapturedStdout(value, capturedStdout string) string {
	if strings.TrimRight(capturedStdout, "\n") == strings.TrimSpace(value) {
		return ""
	}
	return capturedStdout
}
