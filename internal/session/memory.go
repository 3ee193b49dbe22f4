// Package session stores per-user conversation memory in Redis with a
// rolling TTL. Absence of a record (never written, or expired) is a valid
// state equivalent to "no history".
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"taxassist/backend/pkg/models"
)

const keyPrefix = "conversation:"

// Update carries one write to a session. Messages fully replace the stored
// list. ClientID, ClientType and Metadata follow merge-on-write: zero values
// mean "leave unchanged", so a sticky attribute can never be unset by a
// caller that omits it.
type Update struct {
	Messages   []models.Message
	ClientID   string
	ClientType models.ClientType
	Metadata   *models.SessionMetadata
}

// Store reads and writes session records. Every write refreshes the TTL.
type Store struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewStore creates a session store with the given TTL.
func NewStore(rdb *redis.Client, ttl time.Duration, logger zerolog.Logger) *Store {
	return &Store{rdb: rdb, ttl: ttl, logger: logger.With().Str("component", "session").Logger()}
}

// Load returns the session record for a user, or an empty record when none
// is stored.
func (s *Store) Load(ctx context.Context, userID string) (*models.SessionRecord, error) {
	data, err := s.rdb.Get(ctx, keyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.NewSessionRecord(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var record models.SessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	record.UserID = userID
	return &record, nil
}

// Save merges the update into the stored record and writes it back with a
// fresh TTL.
func (s *Store) Save(ctx context.Context, userID string, update Update) error {
	existing, err := s.Load(ctx, userID)
	if err != nil {
		return err
	}
	merged := Merge(existing, update)

	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+userID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.logger.Debug().Str("user_id", userID).Int("messages", len(merged.Messages)).Msg("session saved")
	return nil
}

// Clear evicts a user's session.
func (s *Store) Clear(ctx context.Context, userID string) error {
	if err := s.rdb.Del(ctx, keyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Merge applies an Update to a record: messages replace, sticky attributes
// only overwrite when the update carries a non-zero value.
func Merge(existing *models.SessionRecord, update Update) *models.SessionRecord {
	merged := *existing
	merged.Messages = update.Messages
	if update.ClientID != "" {
		merged.ClientID = update.ClientID
	}
	if update.ClientType != "" {
		merged.ClientType = update.ClientType
	}
	if update.Metadata != nil {
		merged.Metadata = *update.Metadata
	}
	merged.LastUpdated = time.Now().UTC()
	return &merged
}
