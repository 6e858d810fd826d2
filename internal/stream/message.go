package stream

import (
	"encoding/json"
	"fmt"

	"github.com/RishiKendai/overlap/internal/models"
	"github.com/RishiKendai/overlap/internal/overlap"
)

// StreamMessage is a raw Redis stream entry
type StreamMessage struct {
	ID     string
	Fields map[string]string
}

// MalformedError reports a stream entry that can never decode into a submission
type MalformedError struct {
	Err error
}

func (e *MalformedError) Error() string { return "malformed submission: " + e.Err.Error() }

func (e *MalformedError) Unwrap() error { return e.Err }

func (e *MalformedError) Permanent() bool { return true }

// ParseSubmission decodes a stream entry. Producers either send a single
// "payload" field holding the JSON submission, or one field per attribute with
// "fingerprints" as a JSON array.
func ParseSubmission(msg *StreamMessage) (*models.Submission, error) {
	var submission models.Submission

	if payload, ok := msg.Fields["payload"]; ok {
		if err := json.Unmarshal([]byte(payload), &submission); err != nil {
			return nil, &MalformedError{Err: fmt.Errorf("invalid payload: %w", err)}
		}
	} else {
		submission = models.Submission{
			CorpusID:   msg.Fields["corpusId"],
			Repository: msg.Fields["repository"],
			Revision:   msg.Fields["revision"],
			File:       msg.Fields["file"],
			Language:   msg.Fields["language"],
			SourceCode: msg.Fields["sourceCode"],
		}
		if raw := msg.Fields["fingerprints"]; raw != "" {
			if err := json.Unmarshal([]byte(raw), &submission.Fingerprints); err != nil {
				return nil, &MalformedError{Err: fmt.Errorf("invalid fingerprints: %w", err)}
			}
		}
	}

	if err := validateSubmission(&submission); err != nil {
		return nil, &MalformedError{Err: err}
	}
	return &submission, nil
}

func validateSubmission(s *models.Submission) error {
	if s.CorpusID == "" {
		return fmt.Errorf("corpusId is required")
	}
	if s.Repository == "" {
		return fmt.Errorf("repository is required")
	}
	if s.File == "" {
		return fmt.Errorf("file is required")
	}
	rev, err := overlap.ParseRevision(s.Revision)
	if err != nil {
		return err
	}
	s.Revision = rev.String()
	if !s.HasFingerprints() && s.SourceCode == "" {
		return fmt.Errorf("either fingerprints or sourceCode is required")
	}
	return nil
}

func marshalEntry(entry map[string]interface{}) (string, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("failed to marshal dead-letter entry: %w", err)
	}
	return string(payload), nil
}
