package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a model response carries no decodable JSON value.
var ErrNoJSON = errors.New("no valid JSON found in response")

// reasoningBlockPattern matches a leading <think>...</think> block emitted by
// reasoning models before the answer.
var reasoningBlockPattern = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)

// ExtractJSON returns the first JSON object or array in a model response.
// Reasoning blocks are dropped; code fences and prose around the value are
// skipped because decoding starts at each '{' or '[' in turn and stops at the
// end of the first complete value.
func ExtractJSON(response string) (string, error) {
	body := reasoningBlockPattern.ReplaceAllString(response, "")

	for offset := 0; offset < len(body); {
		i := strings.IndexAny(body[offset:], "{[")
		if i < 0 {
			break
		}
		start := offset + i

		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(body[start:])).Decode(&raw); err == nil {
			return string(raw), nil
		}
		offset = start + 1
	}

	return "", ErrNoJSON
}

// ParseJSONResponse decodes the first JSON value of a model response into T.
func ParseJSONResponse[T any](response string) (T, error) {
	var result T

	raw, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return result, fmt.Errorf("unmarshal JSON: %w", err)
	}
	return result, nil
}
