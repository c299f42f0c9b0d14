package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

// Backfill replans the pending-enrichment backlog.
func (s *Server) Backfill(c *gin.Context) {
	var req struct {
		Limit int `json:"limit"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	result, err := s.enrichmentSvc.Backfill(c.Request.Context(), req.Limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Requeue forces reprocessing of one memo, discarding prior enrichment rows.
func (s *Server) Requeue(c *gin.Context) {
	var req struct {
		MemoID string `json:"memoId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	memoID, err := parseMemoID(req.MemoID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.enrichmentSvc.Requeue(c.Request.Context(), memoID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DeleteMediaItem removes a memo's media row and marks the memo processed.
func (s *Server) DeleteMediaItem(c *gin.Context) {
	memoID, err := parseMemoID(c.Param("memoId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.enrichmentSvc.DeleteMediaItem(c.Request.Context(), memoID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func parseMemoID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, newValidationError("memoId", "invalid_memo_id", "invalid memo id")
	}
	return id, nil
}
