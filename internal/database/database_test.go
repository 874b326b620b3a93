package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"video-reducer/internal/metrics"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()

	db, err := New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return db
}

func TestNewCreatesSchema(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)

	count, err := db.CountReductions(context.Background())
	if err != nil {
		t.Fatalf("CountReductions: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestNewReopensExistingDatabase(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	db, err := New(ctx, path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := db.RecordReduction(ctx, &Reduction{Name: "a.mp4", SourceHash: "x", Outcome: OutcomePassthrough}); err != nil {
		t.Fatalf("RecordReduction: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err = New(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	count, err := db.CountReductions(ctx)
	if err != nil || count != 1 {
		t.Errorf("CountReductions = %d, %v; want 1", count, err)
	}
}

func TestNewMissingDirectory(t *testing.T) {
	t.Parallel()
	_, err := New(context.Background(), filepath.Join(t.TempDir(), "missing", "test.db"))
	if err == nil {
		t.Fatal("expected an error for a missing parent directory")
	}
}

func TestRecordReductionFillsDefaults(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	r := &Reduction{
		Name:       "clip.mov",
		SourceHash: HashSource([]byte("clip")),
		SourceSize: 30 << 20,
		ResultSize: 9 << 20,
		MimeType:   "video/webm",
		Attempts:   2,
		Outcome:    OutcomeReencoded,
		Duration:   1500 * time.Millisecond,
	}
	if err := db.RecordReduction(ctx, r); err != nil {
		t.Fatalf("RecordReduction: %v", err)
	}

	if r.ID == "" {
		t.Error("ID was not assigned")
	}
	if r.CreatedAt.IsZero() {
		t.Error("CreatedAt was not assigned")
	}
	if r.DurationMs != 1500 {
		t.Errorf("DurationMs = %d, want 1500", r.DurationMs)
	}

	got, err := db.GetReduction(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetReduction: %v", err)
	}
	if got.Name != r.Name || got.SourceSize != r.SourceSize || got.ResultSize != r.ResultSize {
		t.Errorf("round trip mismatch: got %+v", got)
	}
	if got.Outcome != OutcomeReencoded || got.Attempts != 2 || got.MimeType != "video/webm" {
		t.Errorf("round trip mismatch: got %+v", got)
	}
	if got.Duration != 1500*time.Millisecond {
		t.Errorf("Duration = %v, want 1.5s", got.Duration)
	}
	if !got.CreatedAt.Equal(r.CreatedAt.Truncate(time.Millisecond)) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, r.CreatedAt)
	}
}

func TestRecordReductionDuplicateID(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	r := Reduction{ID: "fixed", Name: "a", SourceHash: "h", Outcome: OutcomeFailed, ErrorKind: "playback_error"}
	if err := db.RecordReduction(ctx, &r); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := db.RecordReduction(ctx, &r); err == nil {
		t.Error("expected a primary key violation on the second insert")
	}
}

func TestGetReductionNotFound(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)

	_, err := db.GetReduction(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListReductionsOrderAndPaging(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		r := &Reduction{
			Name:       string(rune('a' + i)),
			SourceHash: "h",
			Outcome:    OutcomePassthrough,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.RecordReduction(ctx, r); err != nil {
			t.Fatalf("RecordReduction %d: %v", i, err)
		}
	}

	tests := []struct {
		name      string
		limit     int
		offset    int
		wantNames string
		wantLimit int
	}{
		{"first page", 2, 0, "ed", 2},
		{"second page", 2, 2, "cb", 2},
		{"tail", 2, 4, "a", 2},
		{"past the end", 2, 10, "", 2},
		{"zero limit uses max", 0, 0, "edcba", MaxPageSize},
		{"oversized limit uses max", MaxPageSize + 1, 0, "edcba", MaxPageSize},
		{"negative offset", 1, -3, "e", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := db.ListReductions(ctx, tt.limit, tt.offset)
			if err != nil {
				t.Fatalf("ListReductions: %v", err)
			}
			var names strings.Builder
			for _, r := range page.Items {
				names.WriteString(r.Name)
			}
			if names.String() != tt.wantNames {
				t.Errorf("names = %q, want %q", names.String(), tt.wantNames)
			}
			if page.Total != 5 {
				t.Errorf("Total = %d, want 5", page.Total)
			}
			if page.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", page.Limit, tt.wantLimit)
			}
			if page.Items == nil {
				t.Error("Items should be an empty slice, not nil")
			}
		})
	}
}

func TestHashSource(t *testing.T) {
	t.Parallel()

	a := HashSource([]byte("video"))
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
	if a != HashSource([]byte("video")) {
		t.Error("hash is not deterministic")
	}
	if a == HashSource([]byte("video2")) {
		t.Error("different inputs hashed equal")
	}
}

func TestFileSizes(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)

	if err := db.RecordReduction(context.Background(), &Reduction{Name: "a", SourceHash: "h", Outcome: OutcomePassthrough}); err != nil {
		t.Fatalf("RecordReduction: %v", err)
	}

	sizes := db.FileSizes()
	main, ok := sizes["main"]
	if !ok || main <= 0 {
		t.Errorf("main size = %d (present %v), want > 0", main, ok)
	}
	for key := range sizes {
		if key != "main" && key != "wal" && key != "shm" {
			t.Errorf("unexpected key %q", key)
		}
	}
}

func TestRecordQueryMetrics(t *testing.T) {
	before := testutil.ToFloat64(metrics.DBQueryTotal.WithLabelValues("count_reductions", "success"))

	db := setupTestDB(t)
	if _, err := db.CountReductions(context.Background()); err != nil {
		t.Fatalf("CountReductions: %v", err)
	}

	after := testutil.ToFloat64(metrics.DBQueryTotal.WithLabelValues("count_reductions", "success"))
	if after-before < 1 {
		t.Errorf("count_reductions success counter did not increase: %v -> %v", before, after)
	}
}

func TestDiagnoseDatabasePermissionsFixesReadOnlyWAL(t *testing.T) {
	t.Parallel()
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permission bits")
	}

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	if err := os.WriteFile(dbPath+"-wal", nil, 0o400); err != nil {
		t.Fatal(err)
	}

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		t.Fatalf("diagnoseDatabasePermissions: %v", err)
	}

	info, err := os.Stat(dbPath + "-wal")
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o200 == 0 {
		t.Errorf("WAL mode = %v, want owner-writable", info.Mode())
	}
}
