// Package seed bootstraps records the service needs on first start.
package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/halfnote/halfnote/internal/devicekey"
	"gorm.io/gorm"
)

// EnsureBootstrapDeviceKey inserts the configured static device key, hashed,
// so device captures work out of the box. Existing keys are left alone.
func EnsureBootstrapDeviceKey(db *gorm.DB, rawKey, username string) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		return nil
	}
	username = strings.TrimSpace(username)
	if username == "" {
		username = "device"
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	hash := devicekey.HashKey(rawKey)
	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&devicekey.DeviceKey{}).
			Where("key_hash = ?", hash).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		return tx.Create(&devicekey.DeviceKey{
			ID:        node.Generate(),
			Username:  username,
			KeyHash:   hash,
			IsActive:  true,
			CreatedAt: time.Now().UTC(),
		}).Error
	})
}
