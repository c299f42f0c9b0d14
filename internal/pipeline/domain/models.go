// Package domain defines the capture pipeline contract: one raw capture in,
// one classified and planned result out.
package domain

import (
	"context"
	"errors"

	memodomain "github.com/halfnote/halfnote/internal/memo/domain"
	"github.com/halfnote/halfnote/internal/queue"
)

var (
	// ErrValidation marks structurally invalid captures. Never retried.
	ErrValidation = errors.New("invalid_capture")
	// ErrPersistence marks memo write failures. When it surfaces after
	// transcription succeeded the transcript is lost and the caller must
	// resubmit the capture.
	ErrPersistence = errors.New("persistence_failed")
)

// Metadata identifies the capture's origin.
type Metadata struct {
	Username  string  `json:"username"`
	Source    string  `json:"source"`
	DeviceID  *string `json:"device_id,omitempty"`
	InputType string  `json:"input_type"`
	ClientID  string  `json:"client_id"`
	RequestID string  `json:"request_id"`
}

// CaptureRequest is one inbound unit of work: metadata plus exactly one
// payload, a literal transcript for text input or a binary blob otherwise.
type CaptureRequest struct {
	Metadata    Metadata
	Transcript  string
	Payload     []byte
	ContentType string
}

// Validate checks structure only; content is the classifier's problem.
func (r *CaptureRequest) Validate() error {
	if r.Metadata.Username == "" {
		return errors.Join(ErrValidation, errors.New("username is required"))
	}
	switch r.Metadata.Source {
	case memodomain.SourceApp, memodomain.SourceDevice:
	default:
		return errors.Join(ErrValidation, errors.New("source must be app or device"))
	}
	switch r.Metadata.InputType {
	case memodomain.InputText:
		if r.Transcript == "" {
			return errors.Join(ErrValidation, errors.New("transcript is required for text input"))
		}
	case memodomain.InputAudio, memodomain.InputImage:
		if len(r.Payload) == 0 {
			return errors.Join(ErrValidation, errors.New("payload is required for binary input"))
		}
		if r.ContentType == "" {
			return errors.Join(ErrValidation, errors.New("content type is required for binary input"))
		}
	default:
		return errors.Join(ErrValidation, errors.New("input type must be audio, image, or text"))
	}
	return nil
}

// StageEvent traces one pipeline stage. Advisory only.
type StageEvent struct {
	Stage      string `json:"stage"`
	DurationMS int64  `json:"duration_ms"`
}

// PipelineResult is the output of one pipeline run. A single capture may
// legitimately produce multiple memos.
type PipelineResult struct {
	Transcript      string            `json:"transcript"`
	TranscriptionID string            `json:"transcription_id"`
	Memos           []memodomain.Memo `json:"memos"`
	Language        string            `json:"language,omitempty"`
	DurationSeconds float64           `json:"duration_seconds,omitempty"`
	Provider        string            `json:"provider"`
	Events          []StageEvent      `json:"events"`
	EnrichmentTasks []queue.Task      `json:"enrichment_tasks"`
}

type Service interface {
	// Run validates, transcribes/classifies, persists, plans, and either
	// enqueues enrichment tasks or marks task-free memos processed.
	Run(ctx context.Context, req CaptureRequest) (*PipelineResult, error)
}
