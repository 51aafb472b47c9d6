package router

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// IdempotencyRecord maps an idempotency key to the resource it created.
type IdempotencyRecord struct {
	gorm.Model
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	ResourceID     string    `json:"resource_id"`
	ResourceType   string    `json:"resource_type"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// IdempotencyStore persists idempotency records so a retried placement
// replays its original outcome instead of creating a second order.
type IdempotencyStore struct {
	db  *gorm.DB
	ttl time.Duration
}

func NewIdempotencyStore(db *gorm.DB) *IdempotencyStore {
	return &IdempotencyStore{db: db, ttl: 24 * time.Hour}
}

// Lookup returns the resource ID previously stored for key, if the record
// exists and has not expired.
func (s *IdempotencyStore) Lookup(key string) (string, bool) {
	var record IdempotencyRecord
	if err := s.db.Where("idempotency_key = ?", key).First(&record).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false
		}
		return "", false
	}
	if time.Now().After(record.ExpiresAt) {
		return "", false
	}
	return record.ResourceID, true
}

// Remember stores the key-to-resource mapping with the store's TTL.
func (s *IdempotencyStore) Remember(key, resourceID, resourceType string) error {
	record := IdempotencyRecord{
		IdempotencyKey: key,
		ResourceID:     resourceID,
		ResourceType:   resourceType,
		ExpiresAt:      time.Now().Add(s.ttl),
	}
	return s.db.Create(&record).Error
}
