// Package classify interprets backend transformation failures: free-text error
// messages and the numeric Cf-Resized error-code header (SPEC_FULL.md §4.K).
package classify

import "strings"

// TextCategory enumerates the backend error-text categories recognized by pattern
// matching (§7, §4.K).
type TextCategory string

const (
	SeekTimeError         TextCategory = "seek_time_error"
	InvalidModeError      TextCategory = "invalid_mode_error"
	VideoNotReadable      TextCategory = "video_not_readable"
	InvalidParameterError TextCategory = "invalid_parameter_error"
	CodecError            TextCategory = "codec_error"
	TimeFormatError       TextCategory = "time_format_error"
	ResourceLimitError    TextCategory = "resource_limit_error"
	DurationLimit         TextCategory = "duration_limit"
	FileSizeLimit         TextCategory = "file_size_limit"
	UnknownTextError      TextCategory = "unknown"
)

// Classification is the result of classifying a backend error message.
type Classification struct {
	Category  TextCategory
	Message   string
	Parameter string // offending parameter name, when derivable
}

// textPattern is one (substring, category, parameter) rule. Matching is
// case-insensitive and ordered; the first match wins.
type textPattern struct {
	substr    string
	category  TextCategory
	message   string
	parameter string
}

var textPatterns = []textPattern{
	{"seek", SeekTimeError, "the requested time is outside the video's duration", "time"},
	{"invalid mode", InvalidModeError, "the requested mode is not supported", "mode"},
	{"not readable", VideoNotReadable, "the source video could not be read", ""},
	{"unreadable", VideoNotReadable, "the source video could not be read", ""},
	{"invalid parameter", InvalidParameterError, "one or more parameters were rejected", ""},
	{"unsupported codec", CodecError, "the source video uses an unsupported codec", ""},
	{"codec", CodecError, "the source video uses an unsupported codec", ""},
	{"time format", TimeFormatError, "a time value could not be parsed", "time"},
	{"resource limit", ResourceLimitError, "the request exceeded a backend resource limit", ""},
	{"duration limit", DurationLimit, "the requested duration exceeds the allowed maximum", "duration"},
	{"file size", FileSizeLimit, "the source video exceeds the allowed file size", ""},
	{"too large", FileSizeLimit, "the source video exceeds the allowed file size", ""},
}

// ClassifyText matches a backend error message against the known text patterns,
// returning UnknownTextError when nothing matches.
func ClassifyText(msg string) Classification {
	lower := strings.ToLower(msg)
	for _, p := range textPatterns {
		if strings.Contains(lower, p.substr) {
			return Classification{Category: p.category, Message: p.message, Parameter: p.parameter}
		}
	}
	return Classification{Category: UnknownTextError, Message: msg}
}

// CodeClassification is the verdict for one numeric Cf-Resized error code.
type CodeClassification struct {
	Code           int
	Retryable      bool
	ShouldFallback bool
	HTTPStatus     int
	Description    string
}

// codeTable is the fixed 12-entry table of known backend error codes (§6 glossary,
// §4.K). Unknown codes are treated fail-safe: retryable and fallback-eligible.
var codeTable = map[int]CodeClassification{
	9401: {9401, false, true, 400, "invalid options"},
	9402: {9402, true, true, 502, "origin too large or no response"},
	9404: {9404, false, true, 404, "resource not found"},
	9406: {9406, false, true, 400, "malformed URL"},
	9407: {9407, true, true, 502, "DNS error"},
	9408: {9408, false, true, 400, "origin client error"},
	9412: {9412, false, true, 400, "origin not media"},
	9419: {9419, false, true, 400, "URL format error"},
	9504: {9504, true, true, 502, "origin unreachable"},
	9509: {9509, true, true, 502, "origin server error"},
	9517: {9517, true, false, 500, "internal error"},
	9523: {9523, true, false, 500, "internal error"},
}

// ClassifyCode looks up a numeric backend error code. Unknown codes are fail-safe:
// retryable and fallback-eligible, per §4.K.
func ClassifyCode(code int) CodeClassification {
	if c, ok := codeTable[code]; ok {
		return c
	}
	return CodeClassification{Code: code, Retryable: true, ShouldFallback: true, HTTPStatus: 502, Description: "unrecognized backend error code"}
}
