// Package roomsettings keeps per-room model and system prompt choices in a
// local bbolt database.
package roomsettings

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	dirPerm     = fs.FileMode(0o700)
	filePerm    = fs.FileMode(0o600)
	openTimeout = 5 * time.Second
)

var roomsBucket = []byte("rooms")

// Settings is the stored state of one room. Empty fields are unset.
type Settings struct {
	Model        string    `json:"model,omitempty"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Defaults supplies the values used when a room has no override.
type Defaults struct {
	Model         string
	BasePrompt    string
	DefaultPrompt string
}

// Store wraps the bbolt database.
type Store struct {
	db       *bolt.DB
	defaults Defaults
	now      func() time.Time
}

// Open opens (creating if needed) the database at path.
func Open(path string, defaults Defaults) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, fmt.Errorf("roomsettings: create directory: %w", err)
	}
	db, err := bolt.Open(path, filePerm, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("roomsettings: open: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(roomsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("roomsettings: init: %w", err)
	}
	return &Store{db: db, defaults: defaults, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the settings of a room, zero when none are stored.
func (s *Store) Get(roomID string) Settings {
	var out Settings
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(roomsBucket).Get([]byte(roomID))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &out)
	})
	if err != nil {
		log.WithError(err).WithField("room_id", roomID).Warn("roomsettings: read failed")
		return Settings{}
	}
	return out
}

// SetModel stores the model override of a room.
func (s *Store) SetModel(roomID, model string) error {
	return s.update(roomID, func(cur *Settings) { cur.Model = model })
}

// SetSystemPrompt stores the custom system prompt of a room.
func (s *Store) SetSystemPrompt(roomID, prompt string) error {
	return s.update(roomID, func(cur *Settings) { cur.SystemPrompt = prompt })
}

// Reset removes every override of a room.
func (s *Store) Reset(roomID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(roomsBucket).Delete([]byte(roomID))
	})
	if err != nil {
		return fmt.Errorf("roomsettings: reset %s: %w", roomID, err)
	}
	return nil
}

func (s *Store) update(roomID string, apply func(*Settings)) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(roomsBucket)
		var cur Settings
		if data := b.Get([]byte(roomID)); data != nil {
			if err := json.Unmarshal(data, &cur); err != nil {
				return err
			}
		}
		apply(&cur)
		cur.UpdatedAt = s.now().UTC()
		data, err := json.Marshal(cur)
		if err != nil {
			return err
		}
		return b.Put([]byte(roomID), data)
	})
	if err != nil {
		return fmt.Errorf("roomsettings: update %s: %w", roomID, err)
	}
	return nil
}

// Model returns the model override of a room, or "" when unset.
func (s *Store) Model(roomID string) string {
	return s.Get(roomID).Model
}

// EffectiveModel returns the room override or the configured default.
func (s *Store) EffectiveModel(roomID string) string {
	if m := s.Model(roomID); m != "" {
		return m
	}
	return s.defaults.Model
}

// CustomPrompt returns the room prompt or the configured default prompt.
func (s *Store) CustomPrompt(roomID string) string {
	if p := s.Get(roomID).SystemPrompt; p != "" {
		return p
	}
	return s.defaults.DefaultPrompt
}

// EffectiveSystemPrompt combines the fixed base rules with the room context.
func (s *Store) EffectiveSystemPrompt(roomID string) string {
	return s.defaults.BasePrompt + "\n\nContexto adicional: " + s.CustomPrompt(roomID)
}
