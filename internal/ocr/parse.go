package ocr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/joseph-ayodele/cdv-tracker/internal/common"
)

// Reply statuses used by the webhook in submit/poll mode.
const (
	statusAccepted   = "accepted"
	statusProcessing = "processing"
)

var (
	reFenced = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?\\s*```")
	reObject = regexp.MustCompile(`(?s)\{.*\}`)
)

// ExtractJSON pulls a JSON document out of free text: a fenced block first,
// then the outermost braces, else the trimmed text itself.
func ExtractJSON(text string) string {
	if m := reFenced.FindStringSubmatch(text); m != nil && strings.TrimSpace(m[1]) != "" {
		return strings.TrimSpace(m[1])
	}
	if m := reObject.FindString(text); m != "" {
		return strings.TrimSpace(m)
	}
	return strings.TrimSpace(text)
}

// reply is a parsed webhook body: either a status marker or a result.
type reply struct {
	Status string
	Result *Result
}

// parseReply decodes a webhook or poll body. Status markers are returned as
// is; anything else must be a schema-valid result.
func parseReply(body []byte) (reply, error) {
	doc := ExtractJSON(string(body))

	generic, err := common.DecodeForSchema([]byte(doc))
	if err != nil {
		return reply{}, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}

	if m, ok := generic.(map[string]any); ok {
		if s, ok := m["status"].(string); ok && (s == statusAccepted || s == statusProcessing) {
			if _, hasCdv := m["cdv"]; !hasCdv {
				return reply{Status: s}, nil
			}
		}
	}

	if err := ValidateResult(generic); err != nil {
		return reply{}, err
	}

	var res Result
	if err := json.Unmarshal([]byte(doc), &res); err != nil {
		return reply{}, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	res.Raw = bytes.Clone([]byte(doc))
	return reply{Result: &res}, nil
}
