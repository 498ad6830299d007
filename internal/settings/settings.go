// Package settings persists the miner's small amount of durable state —
// best-ever share difficulty, best-session difficulty, and the last known
// pool connection — across restarts (spec §6 "Settings/NVS interface").
package settings

import (
	"encoding/binary"
	"fmt"
	"math"

	bolt "github.com/coreos/bbolt"

	"github.com/404-Panda/ESP-Miner-Matrix/internal/errkind"
)

var bucketName = []byte("miner_settings")

const (
	keyBestDifficulty        = "best_difficulty"
	keySessionDifficulty     = "best_session_difficulty"
	keyLastPoolHost          = "last_pool_host"
	keyLastPoolPort          = "last_pool_port"
	keyLastPoolUsedFallback  = "last_pool_used_fallback"
)

// Store is the key-value surface the Orchestrator uses to read and persist
// durable settings. Missing keys return
// an errkind.ConfigMissing error rather than a zero value, so callers
// decide their own defaults instead of silently trusting a zero (spec §6).
type Store interface {
	GetFloat64(key string) (float64, error)
	SetFloat64(key string, v float64) error
	GetString(key string) (string, error)
	SetString(key string, v string) error
	GetBool(key string) (bool, error)
	SetBool(key string, v bool) error
	Close() error
}

// BoltStore is a Store backed by a coreos/bbolt database file, following
// the teacher pack's own bucket/View/Update convention for a small
// persisted key space.
type BoltStore struct {
	db *bolt.DB
}

// Open creates or opens a BoltStore at path, ensuring the settings bucket
// exists.
func Open(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("settings: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("settings: create bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) get(key string) ([]byte, error) {
	var v []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		raw := b.Get([]byte(key))
		if raw == nil {
			return errkind.New(errkind.ConfigMissing, fmt.Errorf("settings: key %q not set", key))
		}
		v = append([]byte(nil), raw...)
		return nil
	})
	return v, err
}

func (s *BoltStore) set(key string, v []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		return b.Put([]byte(key), v)
	})
}

// GetFloat64 reads a float64 settings value.
func (s *BoltStore) GetFloat64(key string) (float64, error) {
	raw, err := s.get(key)
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("settings: %q is not an 8-byte float64", key)
	}
	bits := binary.BigEndian.Uint64(raw)
	return math.Float64frombits(bits), nil
}

// SetFloat64 writes a float64 settings value.
func (s *BoltStore) SetFloat64(key string, v float64) error {
	raw := make([]byte, 8)
	binary.BigEndian.PutUint64(raw, math.Float64bits(v))
	return s.set(key, raw)
}

// GetString reads a string settings value.
func (s *BoltStore) GetString(key string) (string, error) {
	raw, err := s.get(key)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// SetString writes a string settings value.
func (s *BoltStore) SetString(key string, v string) error {
	return s.set(key, []byte(v))
}

// GetBool reads a bool settings value.
func (s *BoltStore) GetBool(key string) (bool, error) {
	raw, err := s.get(key)
	if err != nil {
		return false, err
	}
	return len(raw) == 1 && raw[0] != 0, nil
}

// SetBool writes a bool settings value.
func (s *BoltStore) SetBool(key string, v bool) error {
	b := byte(0)
	if v {
		b = 1
	}
	return s.set(key, []byte{b})
}

// Close releases the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// BestDifficulty returns the persisted best-ever share difficulty, or 0 if
// none has been recorded yet.
func BestDifficulty(s Store) float64 {
	v, err := s.GetFloat64(keyBestDifficulty)
	if err != nil {
		return 0
	}
	return v
}

// RecordShareDifficulty persists newDiff as the best-ever and best-session
// difficulty when it improves on the stored values (spec §4.5 share
// accounting).
func RecordShareDifficulty(s Store, newDiff float64) error {
	best, err := s.GetFloat64(keyBestDifficulty)
	if err != nil {
		best = 0
	}
	if newDiff > best {
		if err := s.SetFloat64(keyBestDifficulty, newDiff); err != nil {
			return err
		}
	}
	session, err := s.GetFloat64(keySessionDifficulty)
	if err != nil {
		session = 0
	}
	if newDiff > session {
		return s.SetFloat64(keySessionDifficulty, newDiff)
	}
	return nil
}

// ResetSessionDifficulty zeroes the best-session-difficulty counter, called
// when a fresh pool connection starts a new session (spec §4.5).
func ResetSessionDifficulty(s Store) error {
	return s.SetFloat64(keySessionDifficulty, 0)
}

// RecordPoolConnection persists which pool endpoint (primary or fallback)
// last served the miner, so a restart can report it without waiting for a
// fresh subscribe (spec §6).
func RecordPoolConnection(s Store, host string, port uint16, usedFallback bool) error {
	if err := s.SetString(keyLastPoolHost, host); err != nil {
		return err
	}
	if err := s.SetFloat64(keyLastPoolPort, float64(port)); err != nil {
		return err
	}
	return s.SetBool(keyLastPoolUsedFallback, usedFallback)
}
