package dlp

import "github.com/microcosm-cc/bluemonday"

// markupPolicy strips all markup rather than allowing any subset — oracle
// output is untrusted free text, not rendered HTML, so there is no tag this
// pipeline should ever pass through.
var markupPolicy = bluemonday.StrictPolicy()

// SanitizeText strips HTML/script markup from a single string.
func SanitizeText(text string) string {
	return markupPolicy.Sanitize(text)
}

// SanitizeArgs recursively strips HTML/script markup from every string leaf
// in an oracle-proposed tool-call args tree, before the Canonicalizer or DLP
// Scanner ever see it. Oracle output is never trusted; a reasoning core coerced into echoing a script payload through
// a tool argument must not carry it further than this function.
func SanitizeArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case string:
		return SanitizeText(t)
	case map[string]any:
		return SanitizeArgs(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sanitizeValue(e)
		}
		return out
	default:
		return v
	}
}
