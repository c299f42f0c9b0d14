// Package devicekey stores hashed API keys for device-origin captures.
package devicekey

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/bwmarrin/snowflake"
)

// DeviceKey maps one static device API key (stored hashed) to a username.
type DeviceKey struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Username  string       `gorm:"not null" json:"username"`
	KeyHash   string       `gorm:"type:text;not null;uniqueIndex" json:"-"`
	IsActive  bool         `gorm:"not null;default:true" json:"is_active"`
	ExpiresAt *time.Time   `gorm:"" json:"expires_at,omitempty"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

func (DeviceKey) TableName() string { return "device_keys" }

// HashKey hashes a raw device key for storage and lookup. Keys are random
// high-entropy strings, so an unsalted digest is sufficient.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
