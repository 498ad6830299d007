package stratum

import "testing"

func TestParseNotify_Valid(t *testing.T) {
	params := []interface{}{
		"job123",
		"0000000000000000000000000000000000000000000000000000000000000000",
		"01000000010000000000000000000000000000000000000000000000000000000000000000ffffffff",
		"0101000000",
		[]interface{}{"aa", "bb"},
		"20000000",
		"1d00ffff",
		"5f5e100",
		true,
	}

	n, err := parseNotify(params)
	if err != nil {
		t.Fatalf("parseNotify: %v", err)
	}
	if n.JobID != "job123" {
		t.Errorf("job id = %q, want job123", n.JobID)
	}
	if len(n.MerkleBranches) != 2 {
		t.Errorf("merkle branches len = %d, want 2", len(n.MerkleBranches))
	}
	if !n.CleanJobs {
		t.Error("clean_jobs should be true")
	}
}

func TestParseNotify_WrongParamCount(t *testing.T) {
	_, err := parseNotify([]interface{}{"only-one"})
	if err == nil {
		t.Fatal("expected error for wrong param count")
	}
}

func TestParseNotify_BadMerkleBranchType(t *testing.T) {
	params := []interface{}{
		"job123", "00", "01", "02",
		[]interface{}{1234}, // not a string
		"20000000", "1d00ffff", "5f5e100", false,
	}
	if _, err := parseNotify(params); err == nil {
		t.Fatal("expected error for non-string merkle branch")
	}
}
