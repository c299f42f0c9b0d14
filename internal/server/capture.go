package server

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	memodomain "github.com/halfnote/halfnote/internal/memo/domain"
	obscontext "github.com/halfnote/halfnote/internal/observability/context"
	pipelinedomain "github.com/halfnote/halfnote/internal/pipeline/domain"
	quotadomain "github.com/halfnote/halfnote/internal/quota/domain"
	"go.uber.org/zap"
)

// Binary payloads above this size are rejected before hitting the provider.
const maxPayloadBytes = 25 << 20

type captureForm struct {
	Username   string `form:"username" json:"username"`
	Source     string `form:"source" json:"source"`
	DeviceID   string `form:"device_id" json:"device_id"`
	InputType  string `form:"input_type" json:"input_type"`
	ClientID   string `form:"client_id" json:"client_id"`
	RequestID  string `form:"request_id" json:"request_id"`
	Transcript string `form:"transcript" json:"transcript"`
}

// Capture runs the pipeline on an app-origin capture. Text arrives as JSON
// or form fields; audio and images as a multipart file.
func (s *Server) Capture(c *gin.Context) {
	req, err := s.bindCapture(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if req.Metadata.Source == "" {
		req.Metadata.Source = memodomain.SourceApp
	}

	result, err := s.pipelineSvc.Run(c.Request.Context(), *req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DeviceCapture runs the pipeline on a device-origin audio capture behind
// the quota guard. The response always carries a quota snapshot.
func (s *Server) DeviceCapture(c *gin.Context) {
	username := c.GetString(contextUsernameKey)
	if username == "" {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	req, err := s.bindCapture(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req.Metadata.Username = username
	req.Metadata.Source = memodomain.SourceDevice
	if req.Metadata.DeviceID != nil {
		c.Request = c.Request.WithContext(obscontext.WithDeviceID(c.Request.Context(), *req.Metadata.DeviceID))
	}
	if req.Metadata.InputType == "" {
		req.Metadata.InputType = memodomain.InputAudio
	}
	if req.Metadata.InputType != memodomain.InputAudio {
		AbortWithError(c, newValidationError("input_type", "invalid_input_type", "device captures must be audio"))
		return
	}

	estimatedSeconds := quotadomain.EstimateAudioSeconds(int64(len(req.Payload)))
	decision, err := s.quotaSvc.CheckAndReserve(c.Request.Context(), username, estimatedSeconds)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !decision.Admitted {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": "daily audio quota exceeded",
			"quota": decision.Snapshot,
		})
		return
	}

	result, err := s.pipelineSvc.Run(c.Request.Context(), *req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.quotaSvc.Commit(c.Request.Context(), username, len(result.Transcript), result.DurationSeconds); err != nil {
		// The capture already succeeded; usage drift is recoverable.
		s.log.Warn("usage commit failed", zap.String("username", username), zap.Error(err))
	}

	snapshot, err := s.quotaSvc.CurrentSnapshot(c.Request.Context(), username)
	if err != nil {
		snapshot = decision.Snapshot
	}
	c.JSON(http.StatusOK, gin.H{
		"transcript":       result.Transcript,
		"transcription_id": result.TranscriptionID,
		"memos":            result.Memos,
		"duration_seconds": result.DurationSeconds,
		"events":           result.Events,
		"quota":            snapshot,
	})
}

func (s *Server) bindCapture(c *gin.Context) (*pipelinedomain.CaptureRequest, error) {
	var form captureForm
	contentType := c.ContentType()

	var payload []byte
	var payloadType string
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := c.ShouldBind(&form); err != nil {
			return nil, invalidRequestError()
		}
		file, err := c.FormFile("file")
		if err == nil {
			payload, payloadType, err = readUpload(file)
			if err != nil {
				return nil, err
			}
		}
	} else {
		if err := c.ShouldBindJSON(&form); err != nil {
			return nil, invalidRequestError()
		}
	}

	req := &pipelinedomain.CaptureRequest{
		Metadata: pipelinedomain.Metadata{
			Username:  strings.TrimSpace(form.Username),
			Source:    strings.TrimSpace(form.Source),
			InputType: strings.TrimSpace(form.InputType),
			ClientID:  strings.TrimSpace(form.ClientID),
			RequestID: strings.TrimSpace(form.RequestID),
		},
		Transcript:  form.Transcript,
		Payload:     payload,
		ContentType: payloadType,
	}
	if deviceID := strings.TrimSpace(form.DeviceID); deviceID != "" {
		req.Metadata.DeviceID = &deviceID
	}
	if req.Metadata.InputType == "" && req.Transcript != "" {
		req.Metadata.InputType = memodomain.InputText
	}
	return req, nil
}

func readUpload(file *multipart.FileHeader) ([]byte, string, error) {
	if file.Size > maxPayloadBytes {
		return nil, "", newValidationError("file", "payload_too_large", "uploaded file exceeds the size limit")
	}
	src, err := file.Open()
	if err != nil {
		return nil, "", invalidRequestError()
	}
	defer src.Close()

	payload, err := io.ReadAll(io.LimitReader(src, maxPayloadBytes+1))
	if err != nil {
		return nil, "", invalidRequestError()
	}
	if len(payload) > maxPayloadBytes {
		return nil, "", newValidationError("file", "payload_too_large", "uploaded file exceeds the size limit")
	}
	return payload, file.Header.Get("Content-Type"), nil
}
