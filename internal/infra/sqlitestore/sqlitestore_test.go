package sqlitestore

import (
	"context"
	"testing"
	"time"

	"github.com/trane-project/trane/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTrialLogAppendAndRecent(t *testing.T) {
	db := newTestDB(t)
	log := NewTrialLog(db)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, score := range []int{5, 4, 3} {
		err := log.Append(ctx, domain.Trial{Exercise: 1, Score: score, Timestamp: base.Add(time.Duration(i) * time.Hour)})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	trials, err := log.Recent(ctx, 1, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(trials) != 2 {
		t.Fatalf("len(trials) = %d, want 2", len(trials))
	}
	if trials[0].Score != 3 {
		t.Errorf("expected most recent trial first, got score %d", trials[0].Score)
	}
}

func TestRewardLogAppendAndRecent(t *testing.T) {
	db := newTestDB(t)
	log := NewRewardLog(db)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := log.Append(ctx, domain.RewardEvent{Unit: 2, SignedMagnitude: 0.5, Timestamp: base}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	events, err := log.Recent(ctx, 2, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 1 || events[0].SignedMagnitude != 0.5 {
		t.Errorf("Recent = %+v, want 1 event with magnitude 0.5", events)
	}
}

func TestBlacklistAddContainsRemove(t *testing.T) {
	db := newTestDB(t)
	bl := NewBlacklist(db)
	ctx := context.Background()

	ok, err := bl.Contains(ctx, 7)
	if err != nil || ok {
		t.Fatalf("Contains before Add: ok=%v err=%v", ok, err)
	}

	if err := bl.Add(ctx, 7); err != nil {
		t.Fatalf("Add: %v", err)
	}
	ok, err = bl.Contains(ctx, 7)
	if err != nil || !ok {
		t.Fatalf("Contains after Add: ok=%v err=%v", ok, err)
	}

	if err := bl.Remove(ctx, 7); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	ok, err = bl.Contains(ctx, 7)
	if err != nil || ok {
		t.Fatalf("Contains after Remove: ok=%v err=%v", ok, err)
	}
}
