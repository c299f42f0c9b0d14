package server

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/halfnote/halfnote/internal/devicekey"
	obscontext "github.com/halfnote/halfnote/internal/observability/context"
)

const contextUsernameKey = "quota_username"

// AdminRequired authenticates administrative routes with the static bearer
// token from configuration.
func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(s.cfg.AdminToken)
		if token == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(token)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// DeviceKeyRequired authenticates device captures with the X-API-Key header.
// The key identifies the quota user via the device_keys table; lookups are
// cached briefly to keep the hot path off the database.
func (s *Server) DeviceKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("X-API-Key"))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		hash := devicekey.HashKey(raw)
		username, ok := s.keyCache.Get(hash)
		if !ok {
			var record struct {
				Username string `gorm:"column:username"`
				KeyHash  string `gorm:"column:key_hash"`
			}
			err := s.db.WithContext(c.Request.Context()).Raw(
				`SELECT username, key_hash
				 FROM device_keys
				 WHERE key_hash = ?
				   AND is_active = true
				   AND (expires_at IS NULL OR expires_at > ?)
				 LIMIT 1`,
				hash,
				time.Now().UTC(),
			).Scan(&record).Error
			if err != nil {
				AbortWithError(c, err)
				return
			}
			if record.Username == "" || subtle.ConstantTimeCompare([]byte(record.KeyHash), []byte(hash)) != 1 {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			username = record.Username
			s.keyCache.Set(hash, username, time.Minute)
		}

		c.Set(contextUsernameKey, username)
		c.Request = c.Request.WithContext(obscontext.WithUsername(c.Request.Context(), username))
		c.Next()
	}
}
