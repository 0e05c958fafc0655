package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/firestore/apiv1/firestorepb"

	"github.com/carwatch/olx-monitor/internal/models"
)

func record(id string, at time.Time) models.AdRecord {
	return models.AdRecord{
		ID:             id,
		Title:          "Carro " + id,
		Price:          "R$ 40.000",
		URL:            "https://sc.olx.com.br/autos/" + id,
		Location:       "Criciúma, SC",
		City:           "Criciúma",
		ReferencePrice: "R$ 45.000",
		RecordedAt:     at,
	}
}

// testBackend exercises the ledger and archive contract shared by every
// durable backend. b must start empty.
func testBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	seen, err := b.IsSeen(ctx, "100")
	if err != nil || seen {
		t.Fatalf("IsSeen on empty ledger = %v, %v", seen, err)
	}
	for range 2 {
		if err := b.MarkSeen(ctx, "100"); err != nil {
			t.Fatalf("MarkSeen() error = %v", err)
		}
	}
	if seen, err := b.IsSeen(ctx, "100"); err != nil || !seen {
		t.Fatalf("IsSeen after mark = %v, %v", seen, err)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first, second := record("1", base), record("2", base.Add(time.Minute))
	for _, ad := range []models.AdRecord{first, second, first} {
		if err := b.Append(ctx, ad); err != nil {
			t.Fatalf("Append(%s) error = %v", ad.ID, err)
		}
	}

	ads, err := b.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(ads) != 2 {
		t.Fatalf("ListAll() returned %d ads, want 2", len(ads))
	}
	if ads[0].ID != "2" || ads[1].ID != "1" {
		t.Errorf("ListAll() order = %s, %s; want newest first", ads[0].ID, ads[1].ID)
	}
	got := ads[1]
	if got.Title != first.Title || got.Price != first.Price || got.URL != first.URL ||
		got.Location != first.Location || got.City != first.City || got.ReferencePrice != first.ReferencePrice {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, first)
	}
	if !got.RecordedAt.Equal(first.RecordedAt) {
		t.Errorf("RecordedAt = %v, want %v", got.RecordedAt, first.RecordedAt)
	}

	if rec, ok := b.(Recorder); ok {
		third := record("3", base.Add(2*time.Minute))
		for range 2 {
			if err := rec.Record(ctx, third); err != nil {
				t.Fatalf("Record() error = %v", err)
			}
		}
		if seen, _ := b.IsSeen(ctx, "3"); !seen {
			t.Error("Record() did not mark ad seen")
		}
		ads, _ := b.ListAll(ctx)
		if len(ads) != 3 || ads[0].ID != "3" {
			t.Errorf("Record() archive = %v", ads)
		}
	}

	if err := b.MarkSeen(ctx, "101"); err != nil {
		t.Fatalf("MarkSeen() error = %v", err)
	}
	deleted, err := b.Reset(ctx)
	if err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	want := 2
	if _, ok := b.(Recorder); ok {
		want = 3
	}
	if deleted != want {
		t.Errorf("Reset() deleted %d, want %d", deleted, want)
	}
	if seen, _ := b.IsSeen(ctx, "100"); seen {
		t.Error("ledger entry survived Reset()")
	}
	if ads, _ := b.ListAll(ctx); len(ads) == 0 {
		t.Error("Reset() must not clear the archive")
	}
}

func TestNoop(t *testing.T) {
	ctx := context.Background()
	var b Backend = Noop{}

	if err := b.MarkSeen(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	if seen, _ := b.IsSeen(ctx, "1"); seen {
		t.Error("noop ledger should never report seen")
	}
	if err := b.Append(ctx, record("1", time.Now())); err != nil {
		t.Fatal(err)
	}
	ads, err := b.ListAll(ctx)
	if err != nil || ads == nil || len(ads) != 0 {
		t.Errorf("ListAll() = %v, %v; want empty non-nil slice", ads, err)
	}
	if _, err := b.Reset(ctx); !errors.Is(err, ErrNoBackend) {
		t.Errorf("Reset() error = %v, want ErrNoBackend", err)
	}
}

func TestFileStore(t *testing.T) {
	b, err := NewFileStore(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatal(err)
	}
	testBackend(t, b)
}

func TestFileStore_ReadsLegacyFiles(t *testing.T) {
	dir := t.TempDir()
	seen := `["111","222"]`
	archive := `[{"id":"222","title":"Gol","price":"R$ 20.000","url":"https://x/222","location":"Içara","city":"Içara","fipe":"Não informado"}]`
	if err := os.WriteFile(filepath.Join(dir, seenFileName), []byte(seen), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, archiveFileName), []byte(archive), 0o644); err != nil {
		t.Fatal(err)
	}

	b, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if ok, _ := b.IsSeen(ctx, "111"); !ok {
		t.Error("expected legacy id to be seen")
	}
	ads, err := b.ListAll(ctx)
	if err != nil || len(ads) != 1 || ads[0].ReferencePrice != "Não informado" {
		t.Errorf("ListAll() = %+v, %v", ads, err)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, seenFileName), []byte("{oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	b, _ := NewFileStore(dir)
	if _, err := b.IsSeen(context.Background(), "1"); err == nil {
		t.Error("expected decode error")
	}
}

func TestSQLite(t *testing.T) {
	b, err := OpenSQL(context.Background(), SQLite, filepath.Join(t.TempDir(), "olx.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	testBackend(t, b)
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	b, err := OpenSQL(ctx, Postgres, dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if _, err := b.db.ExecContext(ctx, "TRUNCATE seen_ads, accumulated_ads"); err != nil {
		t.Fatal(err)
	}
	testBackend(t, b)
}

func TestFirestore(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	b, err := NewFirestore(context.Background(), fmt.Sprintf("olx-monitor-test-%d", time.Now().UnixNano()))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	testBackend(t, b)
}

func TestRebind(t *testing.T) {
	q := "INSERT INTO t (a, b) VALUES (?, ?)"
	if got := Postgres.rebind(q); got != "INSERT INTO t (a, b) VALUES ($1, $2)" {
		t.Errorf("Postgres.rebind() = %q", got)
	}
	if got := SQLite.rebind(q); got != q {
		t.Errorf("SQLite.rebind() = %q", got)
	}
}

func TestSQLTimeScan(t *testing.T) {
	want := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	for _, v := range []any{want, "2026-03-01 12:30:00+00:00", []byte("2026-03-01T12:30:00Z"), "2026-03-01 12:30:00"} {
		var st sqlTime
		if err := st.Scan(v); err != nil {
			t.Errorf("Scan(%v) error = %v", v, err)
			continue
		}
		if !st.Equal(want) {
			t.Errorf("Scan(%v) = %v, want %v", v, st.Time, want)
		}
	}
	var st sqlTime
	if err := st.Scan(42); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		dsn     string
		want    string
		wantErr bool
	}{
		{"", "storage.Noop", false},
		{"file://" + dir, "*storage.FileStore", false},
		{"sqlite://" + filepath.Join(dir, "a.db"), "*storage.SQLStore", false},
		{"mysql://localhost/db", "", true},
	}
	for _, tt := range tests {
		b, err := Open(ctx, tt.dsn)
		if (err != nil) != tt.wantErr {
			t.Errorf("Open(%q) error = %v, wantErr %v", tt.dsn, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			continue
		}
		if got := fmt.Sprintf("%T", b); got != tt.want {
			t.Errorf("Open(%q) = %s, want %s", tt.dsn, got, tt.want)
		}
		b.Close()
	}
}

func TestAggregateCount(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		wantInt  int64
		wantFail bool
	}{
		{name: "int64 direct", value: int64(42), wantInt: 42},
		{
			name: "firestorepb.Value integer",
			value: &firestorepb.Value{
				ValueType: &firestorepb.Value_IntegerValue{IntegerValue: 100},
			},
			wantInt: 100,
		},
		{name: "missing", value: nil, wantFail: true},
		{name: "unexpected type", value: "not a number", wantFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := aggregateCount(tt.value)
			if (err != nil) != tt.wantFail {
				t.Errorf("err = %v, wantFail = %v", err, tt.wantFail)
			}
			if !tt.wantFail && got != tt.wantInt {
				t.Errorf("result = %d, want %d", got, tt.wantInt)
			}
		})
	}
}
