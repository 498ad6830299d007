package stratum

import "testing"

func TestStratumSession_NextIDIncrements(t *testing.T) {
	s := NewStratumSession()
	if got := s.NextID(); got != 0 {
		t.Fatalf("first id = %d, want 0", got)
	}
	if got := s.NextID(); got != 1 {
		t.Fatalf("second id = %d, want 1", got)
	}
}

func TestStratumSession_ResetClearsCounterAndParams(t *testing.T) {
	s := NewStratumSession()
	s.NextID()
	s.NextID()
	s.SetDifficulty(64)
	s.SetVersionMask(0x1fffe000)

	s.Reset()

	if got := s.NextID(); got != 0 {
		t.Fatalf("id after reset = %d, want 0", got)
	}
	p := s.Params()
	if p.PoolDifficulty != 0 || p.VersionRolling {
		t.Fatalf("params not cleared after reset: %+v", p)
	}
}

func TestStratumSession_SetSubscription(t *testing.T) {
	s := NewStratumSession()
	s.SetSubscription([]byte{0x01, 0x02}, 4)
	p := s.Params()
	if p.ExtraNonce2Size != 4 {
		t.Fatalf("extranonce2 size = %d, want 4", p.ExtraNonce2Size)
	}
	if len(p.ExtraNonce1) != 2 {
		t.Fatalf("extranonce1 len = %d, want 2", len(p.ExtraNonce1))
	}
}
