package docwatch

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// TextExtractor derives a document's text from a text-query response body.
//
// A blank result means the text is not available yet; the attempt is
// recorded as an empty failure and retried with backoff. Extractors should
// be pure functions.
//
// Several built-in extractors are provided: [PlainText], [JSONFieldText],
// [RegexText], and [FirstMatch] for composition.
//
// # Panic Safety
//
// Extractors are called within the scheduler's panic recovery boundary.
// A panicking extractor turns the attempt into a fetch failure carrying a
// correlation ID, and the document is retried.
type TextExtractor func(body []byte) string

// PlainText is a [TextExtractor] that returns the whole body with
// surrounding whitespace removed.
var PlainText TextExtractor = func(body []byte) string {
	return strings.TrimSpace(string(body))
}

// JSONFieldText returns a [TextExtractor] that reads a JSON field using dot
// notation to navigate nested objects.
//
// For example, "data.ocr.summary" reads {"data": {"ocr": {"summary": "..."}}}.
// Strings are returned trimmed; numbers and booleans are formatted. Missing
// fields, null, objects, arrays and invalid JSON all yield "".
//
// Example:
//
//	// For response: {"result": {"ocrText": "Invoice 2024-001"}}
//	extractor := docwatch.JSONFieldText("result.ocrText")
func JSONFieldText(path string) TextExtractor {
	parts := strings.Split(path, ".")

	return func(body []byte) string {
		var data interface{}
		if err := json.Unmarshal(body, &data); err != nil {
			return ""
		}
		return strings.TrimSpace(extractJSONPath(data, parts))
	}
}

// extractJSONPath walks a JSON structure using dot notation parts.
func extractJSONPath(data interface{}, parts []string) string {
	current := data

	for _, part := range parts {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return ""
		}
		current, ok = obj[part]
		if !ok {
			return ""
		}
	}

	switch v := current.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// RegexText returns a [TextExtractor] that returns the first capture group
// of pattern matched against the body.
//
// The pattern must contain at least one capture group. No match yields "".
//
// Returns an error if the pattern is invalid or has no capture group.
//
// Example:
//
//	// Pull the text out of <pre id="ocr">...</pre>
//	extractor, err := docwatch.RegexText(`(?s)<pre id="ocr">(.*?)</pre>`)
func RegexText(pattern string) (TextExtractor, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("pattern %q must contain a capture group", pattern)
	}

	return func(body []byte) string {
		matches := re.FindSubmatch(body)
		if len(matches) < 2 {
			return ""
		}
		return strings.TrimSpace(string(matches[1]))
	}, nil
}

// MustRegexText is like [RegexText] but panics if the pattern is invalid.
//
// Use this for constant patterns where you want to fail fast.
func MustRegexText(pattern string) TextExtractor {
	extractor, err := RegexText(pattern)
	if err != nil {
		panic("docwatch: invalid regex pattern: " + err.Error())
	}
	return extractor
}

// FirstMatch returns a [TextExtractor] that tries extractors in order,
// returning the first non-blank result.
//
// If every extractor yields blank text, FirstMatch returns "".
//
// Example:
//
//	extractor := docwatch.FirstMatch(
//	    docwatch.JSONFieldText("summary"),
//	    docwatch.JSONFieldText("fullText"),
//	)
func FirstMatch(extractors ...TextExtractor) TextExtractor {
	return func(body []byte) string {
		for _, extractor := range extractors {
			if text := extractor(body); strings.TrimSpace(text) != "" {
				return text
			}
		}
		return ""
	}
}

// nonJSONText returns the trimmed body unless it is a JSON document, in
// which case the text must come from a recognised field.
var nonJSONText TextExtractor = func(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var data interface{}
	if err := json.Unmarshal([]byte(trimmed), &data); err != nil {
		return trimmed
	}
	if s, ok := data.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// DefaultExtractor is the [TextExtractor] used when a [Source] does not
// specify one.
//
// DefaultExtractor uses [FirstMatch] to try:
//  1. JSON field "ocrSummaryText"
//  2. JSON field "ocrText"
//  3. JSON field "text"
//  4. A bare JSON string, or the trimmed body when it is not JSON
//
// A JSON object without any of those fields, such as {"status":"processing"},
// yields "" and is retried.
var DefaultExtractor = FirstMatch(
	JSONFieldText("ocrSummaryText"),
	JSONFieldText("ocrText"),
	JSONFieldText("text"),
	nonJSONText,
)

// ExtractorByName resolves the extractor shorthand used in configuration
// files: "default", "text", "json:<path>" and "regex:<pattern>".
func ExtractorByName(name string) (TextExtractor, error) {
	switch {
	case name == "" || name == "default":
		return DefaultExtractor, nil
	case name == "text":
		return PlainText, nil
	case strings.HasPrefix(name, "json:"):
		path := strings.TrimPrefix(name, "json:")
		if path == "" {
			return nil, errUnknownExtractor(name)
		}
		return JSONFieldText(path), nil
	case strings.HasPrefix(name, "regex:"):
		return RegexText(strings.TrimPrefix(name, "regex:"))
	default:
		return nil, errUnknownExtractor(name)
	}
}

func errUnknownExtractor(name string) error {
	return fmt.Errorf("unknown extractor %q (want default, text, json:<path> or regex:<pattern>)", name)
}
