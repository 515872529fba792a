package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

type testState struct {
	Cursor string   `json:"cursor"`
	Terms  []string `json:"terms"`
}

// exerciseStore runs the Store contract against any implementation.
func exerciseStore(t *testing.T, st interface {
	Save(ctx context.Context, cp Checkpoint[testState]) error
	LoadLatest(ctx context.Context, runID string) (Checkpoint[testState], error)
	History(ctx context.Context, runID string) ([]Checkpoint[testState], error)
}) {
	t.Helper()
	ctx := context.Background()

	t.Run("load latest on unknown run", func(t *testing.T) {
		_, err := st.LoadLatest(ctx, "ghost")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("save and load latest", func(t *testing.T) {
		for seq := 1; seq <= 3; seq++ {
			cp := Checkpoint[testState]{
				RunID:     "run-1",
				Seq:       seq,
				Cursor:    "classify",
				Status:    "running",
				State:     testState{Cursor: "classify", Terms: []string{"FCA"}},
				CreatedAt: time.Now().UTC(),
			}
			if err := st.Save(ctx, cp); err != nil {
				t.Fatalf("Save seq %d failed: %v", seq, err)
			}
		}

		latest, err := st.LoadLatest(ctx, "run-1")
		if err != nil {
			t.Fatalf("LoadLatest failed: %v", err)
		}
		if latest.Seq != 3 {
			t.Errorf("expected seq 3, got %d", latest.Seq)
		}
		if len(latest.State.Terms) != 1 || latest.State.Terms[0] != "FCA" {
			t.Errorf("state round trip lost data: %+v", latest.State)
		}
		if latest.CreatedAt.IsZero() {
			t.Error("CreatedAt lost in round trip")
		}
	})

	t.Run("stale sequence rejected", func(t *testing.T) {
		err := st.Save(ctx, Checkpoint[testState]{RunID: "run-1", Seq: 3, Status: "running"})
		if !errors.Is(err, ErrStaleSequence) {
			t.Errorf("expected ErrStaleSequence for equal seq, got %v", err)
		}
		err = st.Save(ctx, Checkpoint[testState]{RunID: "run-1", Seq: 2, Status: "running"})
		if !errors.Is(err, ErrStaleSequence) {
			t.Errorf("expected ErrStaleSequence for lower seq, got %v", err)
		}
	})

	t.Run("history in sequence order", func(t *testing.T) {
		history, err := st.History(ctx, "run-1")
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(history) != 3 {
			t.Fatalf("expected 3 checkpoints, got %d", len(history))
		}
		for i, cp := range history {
			if cp.Seq != i+1 {
				t.Errorf("history %d: expected seq %d, got %d", i, i+1, cp.Seq)
			}
		}
	})

	t.Run("runs are independent", func(t *testing.T) {
		if err := st.Save(ctx, Checkpoint[testState]{RunID: "run-2", Seq: 1, Status: "running"}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		latest, err := st.LoadLatest(ctx, "run-2")
		if err != nil || latest.Seq != 1 {
			t.Errorf("unexpected run-2 latest: %+v (%v)", latest, err)
		}
	})
}

func TestMemStore(t *testing.T) {
	exerciseStore(t, NewMemStore[testState]())
}

func TestMemStore_Drop(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore[testState]()
	_ = st.Save(ctx, Checkpoint[testState]{RunID: "run-1", Seq: 1})

	if err := st.Drop(ctx, "run-1"); err != nil {
		t.Fatalf("Drop failed: %v", err)
	}
	if _, err := st.LoadLatest(ctx, "run-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after drop, got %v", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	st, err := NewSQLiteStore[testState](":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer st.Close()

	exerciseStore(t, st)

	t.Run("drop", func(t *testing.T) {
		ctx := context.Background()
		if err := st.Drop(ctx, "run-1"); err != nil {
			t.Fatalf("Drop failed: %v", err)
		}
		if _, err := st.LoadLatest(ctx, "run-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after drop, got %v", err)
		}
	})
}

func TestSQLiteStore_File(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/runs.db"

	st, err := NewSQLiteStore[testState](path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	ctx := context.Background()
	cp := Checkpoint[testState]{RunID: "run-1", Seq: 1, Cursor: "extract", Status: "running"}
	if err := st.Save(ctx, cp); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Reopen: the checkpoint survived the process boundary analogue.
	st2, err := NewSQLiteStore[testState](path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer st2.Close()

	latest, err := st2.LoadLatest(ctx, "run-1")
	if err != nil || latest.Cursor != "extract" {
		t.Errorf("checkpoint lost across reopen: %+v (%v)", latest, err)
	}
}

// TestMySQLStore exercises the MySQL backend when MYSQL_TEST_DSN is set;
// otherwise it is skipped so the suite runs without a database.
func TestMySQLStore(t *testing.T) {
	dsn := os.Getenv("MYSQL_TEST_DSN")
	if dsn == "" {
		t.Skip("MYSQL_TEST_DSN not set")
	}

	st, err := NewMySQLStore[testState](dsn)
	if err != nil {
		t.Fatalf("NewMySQLStore failed: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	_ = st.Drop(ctx, "run-1")
	_ = st.Drop(ctx, "run-2")

	exerciseStore(t, st)

	if err := st.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
