package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/halfnote/halfnote/internal/config"
	memodomain "github.com/halfnote/halfnote/internal/memo/domain"
	"github.com/halfnote/halfnote/internal/observability/tracing"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

// OpenAIClassifier transcribes audio with Whisper, reads images with the
// vision chat endpoint, and classifies transcripts with a JSON-mode chat call.
type OpenAIClassifier struct {
	client  *openai.Client
	model   openai.ChatModel
	timeout time.Duration
	log     *zap.Logger
}

func NewOpenAIClassifier(cfg config.Config, log *zap.Logger) Classifier {
	timeout := cfg.OpenAITimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := openai.NewClient(
		option.WithAPIKey(cfg.OpenAIAPIKey),
		option.WithHTTPClient(tracing.WrapHTTPClient(&http.Client{Timeout: timeout})),
	)
	return &OpenAIClassifier{
		client:  &client,
		model:   openai.ChatModel(cfg.OpenAIModel),
		timeout: timeout,
		log:     log.Named("classifier.openai"),
	}
}

func (c *OpenAIClassifier) Process(ctx context.Context, input Input) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	transcript := input.Transcript
	var err error
	switch input.InputType {
	case memodomain.InputAudio:
		transcript, err = c.transcribe(ctx, input)
	case memodomain.InputImage:
		transcript, err = c.describeImage(ctx, input)
	}
	if err != nil {
		return nil, err
	}

	memos, language, err := c.classify(ctx, transcript)
	if err != nil {
		return nil, err
	}

	return &Result{
		Transcript: transcript,
		Language:   language,
		Provider:   "openai",
		Memos:      memos,
	}, nil
}

func (c *OpenAIClassifier) transcribe(ctx context.Context, input Input) (string, error) {
	resp, err := c.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModelWhisper1,
		File:  openai.File(bytes.NewReader(input.Payload), audioFileName(input.ContentType), input.ContentType),
	})
	if err != nil {
		return "", fmt.Errorf("%w: transcription: %v", ErrProvider, err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (c *OpenAIClassifier) describeImage(ctx context.Context, input Input) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s",
		input.ContentType, base64.StdEncoding.EncodeToString(input.Payload))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(visionPrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: vision: %v", ErrProvider, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: vision returned no choices", ErrProvider)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *OpenAIClassifier) classify(ctx context.Context, transcript string) ([]MemoClassification, string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(classifySystemPrompt),
			openai.UserMessage(transcript),
		},
	})
	if err != nil {
		return nil, "", fmt.Errorf("%w: classification: %v", ErrProvider, err)
	}
	if len(resp.Choices) == 0 {
		return nil, "", fmt.Errorf("%w: classification returned no choices", ErrProvider)
	}

	content := cleanJSONResponse(resp.Choices[0].Message.Content)

	var parsed struct {
		Language string `json:"language"`
		Memos    []struct {
			Category    string                     `json:"category"`
			Confidence  float64                    `json:"confidence"`
			Tags        []string                   `json:"tags"`
			NeedsReview bool                       `json:"needs_review"`
			Media       *memodomain.MediaFields    `json:"media"`
			Reminder    *memodomain.ReminderFields `json:"reminder"`
			Shopping    *memodomain.ShoppingFields `json:"shopping"`
			Journal     *memodomain.JournalFields  `json:"journal"`
			Tarot       *memodomain.TarotFields    `json:"tarot"`
			Idea        *memodomain.IdeaFields     `json:"idea"`
		} `json:"memos"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, "", fmt.Errorf("%w: unparseable classification: %v", ErrProvider, err)
	}
	if len(parsed.Memos) == 0 {
		return nil, "", fmt.Errorf("%w: classification yielded no memos", ErrProvider)
	}

	memos := make([]MemoClassification, 0, len(parsed.Memos))
	for _, m := range parsed.Memos {
		classification := MemoClassification{
			Category:    strings.ToLower(strings.TrimSpace(m.Category)),
			Confidence:  clampConfidence(m.Confidence),
			Tags:        m.Tags,
			NeedsReview: m.NeedsReview,
			Extracted: memodomain.Extracted{
				Media:    m.Media,
				Reminder: m.Reminder,
				Shopping: m.Shopping,
				Journal:  m.Journal,
				Tarot:    m.Tarot,
				Idea:     m.Idea,
			},
		}
		if !classification.Extracted.Matches(classification.Category) {
			c.log.Warn("classification fields mismatch category, flagging for review",
				zap.String("category", classification.Category))
			classification.Category = memodomain.CategoryNote
			classification.Extracted = memodomain.Extracted{}
			classification.NeedsReview = true
		}
		memos = append(memos, classification)
	}
	return memos, strings.TrimSpace(parsed.Language), nil
}

func clampConfidence(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func audioFileName(contentType string) string {
	switch contentType {
	case "audio/wav", "audio/x-wav":
		return "capture.wav"
	case "audio/mpeg", "audio/mp3":
		return "capture.mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "capture.m4a"
	case "audio/ogg":
		return "capture.ogg"
	default:
		return "capture.webm"
	}
}

// cleanJSONResponse strips markdown code fences some models wrap around JSON.
func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
