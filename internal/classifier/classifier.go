// Package classifier adapts the external transcription and classification
// provider. The pipeline only depends on the Classifier interface; the openai
// implementation lives behind it.
package classifier

import (
	"context"
	"errors"

	memodomain "github.com/halfnote/halfnote/internal/memo/domain"
)

// ErrProvider marks transcription/classification failures. The whole capture
// is safe to retry when it surfaces: nothing was persisted yet.
var ErrProvider = errors.New("provider_unavailable")

// Input is one capture payload handed to the provider.
type Input struct {
	InputType   string
	Transcript  string
	Payload     []byte
	ContentType string
}

// MemoClassification is the provider's verdict for one logical memo found in
// a transcript. A single transcript may yield several.
type MemoClassification struct {
	Category    string
	Confidence  float64
	Extracted   memodomain.Extracted
	Tags        []string
	NeedsReview bool
}

// Result carries the transcript and the per-memo classifications.
type Result struct {
	Transcript string
	Language   string
	Provider   string
	Memos      []MemoClassification
}

type Classifier interface {
	// Process transcribes (when the input is audio or an image) and
	// classifies the capture. Calls are bounded by the configured provider
	// timeout; past it the call fails, it is never retried internally.
	Process(ctx context.Context, input Input) (*Result, error)
}
