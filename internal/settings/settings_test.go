package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/404-Panda/ESP-Miner-Matrix/internal/errkind"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
		os.Remove(path)
	})
	return s
}

func TestBoltStore_MissingKeyReturnsConfigMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetFloat64("does_not_exist")
	var kindErr *errkind.Error
	if !errors.As(err, &kindErr) || kindErr.Kind != errkind.ConfigMissing {
		t.Fatalf("err = %v, want errkind.ConfigMissing", err)
	}
}

func TestBoltStore_Float64RoundTrip(t *testing.T) {
	s := openTestStore(t)
	if err := s.SetFloat64("x", 3.5); err != nil {
		t.Fatalf("SetFloat64: %v", err)
	}
	got, err := s.GetFloat64("x")
	if err != nil {
		t.Fatalf("GetFloat64: %v", err)
	}
	if got != 3.5 {
		t.Fatalf("got %v, want 3.5", got)
	}
}

func TestBoltStore_StringAndBoolRoundTrip(t *testing.T) {
	s := openTestStore(t)
	if err := s.SetString("host", "pool.example.com"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	if got, err := s.GetString("host"); err != nil || got != "pool.example.com" {
		t.Fatalf("GetString = %q, %v", got, err)
	}

	if err := s.SetBool("fallback", true); err != nil {
		t.Fatalf("SetBool: %v", err)
	}
	if got, err := s.GetBool("fallback"); err != nil || !got {
		t.Fatalf("GetBool = %v, %v", got, err)
	}
}

func TestRecordShareDifficulty_TracksBestAndSession(t *testing.T) {
	s := openTestStore(t)

	if err := RecordShareDifficulty(s, 10); err != nil {
		t.Fatalf("RecordShareDifficulty: %v", err)
	}
	if err := RecordShareDifficulty(s, 5); err != nil {
		t.Fatalf("RecordShareDifficulty: %v", err)
	}
	if best := BestDifficulty(s); best != 10 {
		t.Fatalf("BestDifficulty = %v, want 10 (lower shares must not overwrite it)", best)
	}

	if err := ResetSessionDifficulty(s); err != nil {
		t.Fatalf("ResetSessionDifficulty: %v", err)
	}
	if err := RecordShareDifficulty(s, 20); err != nil {
		t.Fatalf("RecordShareDifficulty: %v", err)
	}
	if best := BestDifficulty(s); best != 20 {
		t.Fatalf("BestDifficulty = %v, want 20 (all-time best must survive a session reset)", best)
	}
}

func TestRecordPoolConnection(t *testing.T) {
	s := openTestStore(t)
	if err := RecordPoolConnection(s, "fallback.example.com", 3334, true); err != nil {
		t.Fatalf("RecordPoolConnection: %v", err)
	}
	host, err := s.GetString(keyLastPoolHost)
	if err != nil || host != "fallback.example.com" {
		t.Fatalf("host = %q, %v", host, err)
	}
	usedFallback, err := s.GetBool(keyLastPoolUsedFallback)
	if err != nil || !usedFallback {
		t.Fatalf("usedFallback = %v, %v", usedFallback, err)
	}
}
