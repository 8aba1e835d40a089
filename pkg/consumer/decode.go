package consumer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/triage/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// ErrMalformedPayload is returned for bodies that look like JSON but do not parse.
var ErrMalformedPayload = errors.New("malformed payload")

// messageAliases are accepted in place of "message", in order of preference.
var messageAliases = []string{"input", "content", "string", "text"}

// Decode turns a queue payload into an inbound message. Accepted forms:
//
//   - a JSON object: {"session_id": "...", "user_id": "...", "message": "..."}
//     ("input", "content", "string" or "text" may replace "message")
//   - a JSON string: "I have a fever"
//   - anything else is taken as raw UTF-8 text
func Decode(body []byte) (domain.Inbound, error) {
	var in domain.Inbound
	trimmed := bytes.TrimSpace(body)

	switch {
	case len(trimmed) == 0:
		return in, domain.ErrEmptyMessage

	case trimmed[0] == '{':
		var raw map[string]any
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return in, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if _, ok := raw["message"]; !ok {
			for _, alias := range messageAliases {
				if v, ok := raw[alias]; ok {
					raw["message"] = v
					break
				}
			}
		}
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &in,
		})
		if err != nil {
			return in, err
		}
		if err := dec.Decode(raw); err != nil {
			return in, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}

	case trimmed[0] == '"':
		if err := json.Unmarshal(trimmed, &in.Message); err != nil {
			return in, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}

	default:
		in.Message = string(trimmed)
	}

	in.Message = strings.TrimSpace(in.Message)
	if in.Message == "" {
		return in, domain.ErrEmptyMessage
	}
	return in, nil
}

// Encode is the inverse of Decode for publishers.
func Encode(in domain.Inbound) ([]byte, error) {
	return json.Marshal(in)
}
