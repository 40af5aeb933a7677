package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
)

var errNoObject = errors.New("no JSON object in output")

var fence = regexp.MustCompile("(?s)^```[A-Za-z0-9_+-]*[ \t]*\r?\n(.*?)\r?\n?```\\s*$")

// StripFence removes a single code fence enclosing the whole text.
func StripFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if m := fence.FindStringSubmatch(trimmed); m != nil {
		return m[1] + "\n"
	}

	return text
}

// ParseObject extracts the outermost JSON object from model output and
// decodes it. Comments and trailing commas are tolerated.
func ParseObject(text string) (map[string]any, error) {
	text = strings.TrimSpace(StripFence(text))
	if text == "" {
		return nil, errNoObject
	}

	if !strings.HasPrefix(text, "{") {
		start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
		if start < 0 || end <= start {
			return nil, errNoObject
		}

		text = text[start : end+1]
	}

	var obj map[string]any
	if err := json.Unmarshal(jsonc.ToJSON([]byte(text)), &obj); err != nil {
		return nil, fmt.Errorf("decode JSON object: %w", err)
	}

	if obj == nil {
		return nil, errNoObject
	}

	return obj, nil
}
