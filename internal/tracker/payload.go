package tracker

import (
	"regexp"
	"strings"
)

// Markers framing a tracker block in model text, and few-shot examples.
const (
	OpenTag      = "<tracker>"
	CloseTag     = "</tracker>"
	ExampleStart = "<START>"
	ExampleEnd   = "<END>"
)

var payloadRe = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(OpenTag) + `(.*?)` + regexp.QuoteMeta(CloseTag))

// FindPayload returns the trimmed body of the first <tracker> block in text.
func FindPayload(text string) (string, bool) {
	m := payloadRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// StripPayload removes every <tracker> block from text and trims the result.
func StripPayload(text string) string {
	return strings.TrimSpace(payloadRe.ReplaceAllString(text, ""))
}

// Wrap frames wire text in tracker markers.
func Wrap(wire string) string {
	return OpenTag + "\n" + wire + "\n" + CloseTag
}

// ExamplesText renders few-shot records as <START>/<END> framed tracker
// blocks separated by blank lines.
func ExamplesText(def Definition, filter Filter, format Format) (string, error) {
	fields := def.Included(filter, false)
	codec := CodecFor(format)

	blocks := make([]string, 0)
	for _, rec := range ExampleRecords(def, filter, format) {
		wire, err := codec.WireText(rec, fields)
		if err != nil {
			return "", err
		}
		blocks = append(blocks, ExampleStart+"\n"+Wrap(wire)+"\n"+ExampleEnd)
	}
	return strings.Join(blocks, "\n\n"), nil
}
