package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/studyforge/studyforge/internal/infra/cache"
	"github.com/studyforge/studyforge/internal/infra/sqlite"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestCache(t *testing.T) *cache.Memory {
	t.Helper()
	c, err := cache.NewMemory(16)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// ─── Checker Tests ──────────────────────────────────────────────────────────

func TestChecker_RunAllHealthy(t *testing.T) {
	c := NewChecker(newTestDB(t), newTestCache(t), 0, nil)
	c.RunOnce(context.Background())

	statuses := c.Statuses()
	if len(statuses) != 2 {
		t.Fatalf("Statuses() = %d, want 2", len(statuses))
	}
	for _, s := range statuses {
		if !s.Healthy {
			t.Errorf("check %q should be healthy, got error: %s", s.Name, s.Error)
		}
	}
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true when all checks pass")
	}
}

func TestChecker_IsHealthy_BeforeRun(t *testing.T) {
	c := NewChecker(newTestDB(t), newTestCache(t), 0, nil)

	// Before any run there are no statuses.
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true before first run (no statuses)")
	}
}

func TestChecker_ClosedDatabase(t *testing.T) {
	db := newTestDB(t)
	c := NewChecker(db, newTestCache(t), 0, nil)
	db.Close()
	c.RunOnce(context.Background())

	if c.IsHealthy() {
		t.Fatal("closed database should be unhealthy")
	}
	for _, s := range c.Statuses() {
		if s.Name == "sqlite" && (s.Healthy || s.Error == "") {
			t.Errorf("sqlite status = %+v", s)
		}
		if s.Name == "cache" && !s.Healthy {
			t.Error("cache check should still pass")
		}
	}
}

func TestChecker_FailingCache(t *testing.T) {
	down := pingFunc(func(context.Context) error { return os.ErrDeadlineExceeded })
	c := NewChecker(newTestDB(t), down, 0, nil)
	c.RunOnce(context.Background())

	statuses := c.Statuses()
	if statuses[1].Name != "cache" || statuses[1].Healthy {
		t.Errorf("cache status = %+v", statuses[1])
	}
}

func TestChecker_Recovery(t *testing.T) {
	c := NewChecker(newTestDB(t), newTestCache(t), 0, nil)

	missing := true
	recovered := 0
	c.Add(Check{
		Name: "daily_challenges",
		CheckFn: func(context.Context) error {
			if missing {
				return errors.New("no daily challenges")
			}
			return nil
		},
		RecoverFn: func(context.Context) error {
			recovered++
			missing = false
			return nil
		},
	})
	c.RunOnce(context.Background())

	s := c.Statuses()[2]
	if !s.Healthy || !s.Recovered || recovered != 1 {
		t.Errorf("status = %+v, recoveries = %d", s, recovered)
	}

	c.RunOnce(context.Background())
	if s := c.Statuses()[2]; s.Recovered || recovered != 1 {
		t.Errorf("healthy check must not recover again: %+v", s)
	}
}

func TestChecker_FailedRecovery(t *testing.T) {
	c := &Checker{
		timeout: time.Second,
		log:     discard(),
		checks: []Check{{
			Name:      "always_fail",
			CheckFn:   func(context.Context) error { return os.ErrPermission },
			RecoverFn: func(context.Context) error { return os.ErrPermission },
		}},
	}
	c.RunOnce(context.Background())

	statuses := c.Statuses()
	if statuses[0].Healthy || statuses[0].Recovered {
		t.Error("always_fail check should not be healthy")
	}
	if statuses[0].Error == "" {
		t.Error("error message should be populated")
	}
}

func TestChecker_StatusesCopy(t *testing.T) {
	c := NewChecker(newTestDB(t), newTestCache(t), 0, nil)
	c.RunOnce(context.Background())

	s1 := c.Statuses()
	s2 := c.Statuses()

	s1[0].Healthy = false
	if !s2[0].Healthy {
		t.Error("Statuses() should return a copy, not a reference")
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
