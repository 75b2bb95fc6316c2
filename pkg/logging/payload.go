package logging

import (
	"encoding/json"
	"fmt"
)

const (
	// MaxPayloadLogLength caps the size of a request or response body in the api_call log.
	MaxPayloadLogLength = 2000

	truncatedSuffix = "...<truncated>"
)

// SanitizePayload renders a request or response body for the api_call log.
// Values are JSON-encoded, secrets are redacted and the result is capped at
// MaxPayloadLogLength bytes.
func SanitizePayload(payload any) string {
	var text string
	switch v := payload.(type) {
	case nil:
		return ""
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			text = fmt.Sprintf("%v", v)
		} else {
			text = string(encoded)
		}
	}

	text = redactSecrets(text)
	text = jsonSecretPattern.ReplaceAllString(text, `${1}"`+RedactedText+`"`)

	if len(text) > MaxPayloadLogLength {
		text = text[:MaxPayloadLogLength] + truncatedSuffix
	}
	return text
}
