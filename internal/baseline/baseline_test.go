package baseline

import (
	"testing"

	"github.com/ocx/sentinel/internal/embedding"
	"github.com/ocx/sentinel/internal/frame"
)

func TestCompareWithoutBaselineHasNoDrift(t *testing.T) {
	s := New()
	f := frame.Parse("⊕◊▶β")

	result := s.Compare("agent1", f, []string{"read_file"}, embedding.Vector{1, 0})
	if result.HasBaseline {
		t.Error("HasBaseline should be false when no record exists")
	}
	if result.DriftScore != 0 {
		t.Errorf("DriftScore = %v, want 0 absent a baseline", result.DriftScore)
	}
}

func TestRecordThenCompareExactMatchIsZeroDrift(t *testing.T) {
	s := New()
	f := frame.Parse("⊕◊▶β")
	emb := embedding.Vector{1, 0, 0}

	s.Record("agent1", f, []string{"read_file", "write_log"}, emb)
	result := s.Compare("agent1", f, []string{"read_file", "write_log"}, emb)

	if !result.HasBaseline {
		t.Fatal("HasBaseline should be true after Record")
	}
	if result.DriftScore != 0 {
		t.Errorf("DriftScore = %v, want 0 for exact match", result.DriftScore)
	}
}

func TestCompareDetectsMissingAndExtraBehaviors(t *testing.T) {
	s := New()
	f := frame.Parse("⊕◊▶β")
	emb := embedding.Vector{1, 0}

	s.Record("agent1", f, []string{"read_file", "write_log"}, emb)
	result := s.Compare("agent1", f, []string{"write_log", "delete_file"}, emb)

	if len(result.MissingBehaviors) != 1 || result.MissingBehaviors[0] != "read_file" {
		t.Errorf("MissingBehaviors = %v, want [read_file]", result.MissingBehaviors)
	}
	if len(result.ExtraBehaviors) != 1 || result.ExtraBehaviors[0] != "delete_file" {
		t.Errorf("ExtraBehaviors = %v, want [delete_file]", result.ExtraBehaviors)
	}
	if result.DriftScore <= 0 {
		t.Error("DriftScore should be > 0 when behaviors diverge")
	}
}

func TestCompareIsCaseAndWhitespaceInsensitive(t *testing.T) {
	s := New()
	f := frame.Parse("⊕◊▶β")
	emb := embedding.Vector{1, 0}

	s.Record("agent1", f, []string{"  Read_File  "}, emb)
	result := s.Compare("agent1", f, []string{"read_file"}, emb)

	if len(result.MissingBehaviors) != 0 || len(result.ExtraBehaviors) != 0 {
		t.Errorf("expected canonicalized behaviors to match, got missing=%v extra=%v", result.MissingBehaviors, result.ExtraBehaviors)
	}
}

func TestClearAgentRemovesOnlyThatAgent(t *testing.T) {
	s := New()
	f := frame.Parse("⊕◊▶β")
	s.Record("agent1", f, []string{"a"}, nil)
	s.Record("agent2", f, []string{"a"}, nil)

	s.ClearAgent("agent1")

	if _, ok := s.Get("agent1", f.IntentHash); ok {
		t.Error("agent1's baseline should be gone")
	}
	if _, ok := s.Get("agent2", f.IntentHash); !ok {
		t.Error("agent2's baseline should remain")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := New()
	f := frame.Parse("⊕◊▶β")
	s.Record("agent1", f, []string{"read_file"}, embedding.Vector{1, 0})

	snap := s.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Snapshot() returned %d records, want 1", len(snap))
	}

	s2 := New()
	s2.LoadSnapshot(snap)

	rec, ok := s2.Get("agent1", f.IntentHash)
	if !ok {
		t.Fatal("expected record to survive a snapshot round trip")
	}
	if !rec.ExpectedBehaviors["read_file"] {
		t.Error("expected behaviors should survive the round trip")
	}
}

func TestLoadSnapshotSkipsMalformedHash(t *testing.T) {
	s := New()
	s.LoadSnapshot([]SnapshotRecord{
		{AgentID: "agent1", IntentHash: "not-a-real-hash", ExpectedBehaviors: []string{"a"}},
	})
	if _, ok := s.Get("agent1", "not-a-real-hash"); ok {
		t.Error("a record with a malformed intent hash should not be loaded")
	}
}

func TestClearAllEmptiesStore(t *testing.T) {
	s := New()
	f := frame.Parse("⊕◊▶β")
	s.Record("agent1", f, []string{"a"}, nil)
	s.ClearAll()

	if _, ok := s.Get("agent1", f.IntentHash); ok {
		t.Error("ClearAll should remove every record")
	}
}
