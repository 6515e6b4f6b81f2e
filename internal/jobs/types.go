// Package jobs submits analysis runs for asynchronous processing
package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/QTest-hq/queryscope/internal/parser"
)

// Submission errors
var (
	ErrMissingPath     = errors.New("path is required")
	ErrMissingPayload  = errors.New("source or ast is required")
	ErrPayloadTooLarge = errors.New("payload too large")
)

// MaxPayloadBytes bounds the size of a submitted file
const MaxPayloadBytes = 2 << 20

// Request describes one file to analyse
type Request struct {
	Path     string
	Language parser.Language
	Payload  string
}

// Validate checks the request and fills in the language from the path when
// it was not given
func (r *Request) Validate() error {
	r.Path = strings.TrimSpace(r.Path)
	if r.Path == "" {
		return ErrMissingPath
	}
	if r.Payload == "" {
		return ErrMissingPayload
	}
	if len(r.Payload) > MaxPayloadBytes {
		return fmt.Errorf("%w: exceeds %d bytes", ErrPayloadTooLarge, MaxPayloadBytes)
	}

	if r.Language == "" {
		r.Language = parser.DetectLanguage(r.Path)
	}
	switch r.Language {
	case parser.LanguagePHP, parser.LanguagePHPAST:
		return nil
	default:
		return fmt.Errorf("%w: %s", parser.ErrUnsupportedLanguage, r.Path)
	}
}

// JobMessage is the message sent via NATS for each submitted run
type JobMessage struct {
	RunID uuid.UUID `json:"run_id"`
}

// Encode serializes the job message to JSON
func (m *JobMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeJobMessage deserializes a job message from JSON
func DecodeJobMessage(data []byte) (*JobMessage, error) {
	var m JobMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.RunID == uuid.Nil {
		return nil, fmt.Errorf("job message without run_id")
	}
	return &m, nil
}
