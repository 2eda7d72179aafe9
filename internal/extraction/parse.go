package extraction

import (
	"encoding/json"
	"errors"
	"strings"
)

var errNoJSON = errors.New("no JSON object found in response")

// parseDocument extracts and decodes the JSON object embedded in a model's
// free-text reply. Models wrap their JSON in prose or markdown code fences,
// so this strips fence markers and takes the span from the first "{" to the
// last "}" before decoding. Best-effort by nature; callers wrap failures as
// UnparsableError.
func parseDocument(text string) (Document, error) {
	text = strings.TrimSpace(text)

	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, errNoJSON
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, errNoJSON
	}

	text = text[startIdx : endIdx+1]

	var doc Document
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, err
	}

	return doc, nil
}
