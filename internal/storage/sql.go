package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/carwatch/olx-monitor/internal/models"
	"github.com/carwatch/olx-monitor/internal/util"
)

// Dialect holds what differs between the SQL engines.
type Dialect struct {
	Name       string
	driver     string
	schema     string
	numbered   bool // $1 placeholders instead of ?
	maxOpen    int
	connectTry int
}

var Postgres = Dialect{
	Name:     "postgres",
	driver:   "postgres",
	numbered: true,
	schema: `
CREATE TABLE IF NOT EXISTS seen_ads (
    ad_id   TEXT PRIMARY KEY,
    seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS accumulated_ads (
    id          BIGSERIAL PRIMARY KEY,
    ad_id       TEXT UNIQUE NOT NULL,
    title       TEXT NOT NULL,
    price       TEXT NOT NULL DEFAULT '',
    url         TEXT NOT NULL,
    location    TEXT NOT NULL DEFAULT '',
    city        TEXT NOT NULL DEFAULT '',
    fipe        TEXT NOT NULL DEFAULT '',
    recorded_at TIMESTAMPTZ NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`,
	connectTry: 5,
}

var SQLite = Dialect{
	Name:   "sqlite",
	driver: "sqlite",
	schema: `
CREATE TABLE IF NOT EXISTS seen_ads (
    ad_id   TEXT PRIMARY KEY,
    seen_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS accumulated_ads (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    ad_id       TEXT UNIQUE NOT NULL,
    title       TEXT NOT NULL,
    price       TEXT NOT NULL DEFAULT '',
    url         TEXT NOT NULL,
    location    TEXT NOT NULL DEFAULT '',
    city        TEXT NOT NULL DEFAULT '',
    fipe        TEXT NOT NULL DEFAULT '',
    recorded_at DATETIME NOT NULL,
    created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);
`,
	// One writer avoids SQLITE_BUSY between the ledger and archive writes.
	maxOpen:    1,
	connectTry: 1,
}

// rebind rewrites ? placeholders for engines that number them.
func (d Dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const (
	isSeenQuery   = `SELECT 1 FROM seen_ads WHERE ad_id = ?`
	markSeenQuery = `INSERT INTO seen_ads (ad_id, seen_at) VALUES (?, ?) ON CONFLICT (ad_id) DO NOTHING`
	resetQuery    = `DELETE FROM seen_ads`
	appendAdQuery = `INSERT INTO accumulated_ads (ad_id, title, price, url, location, city, fipe, recorded_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (ad_id) DO NOTHING`
	listAdsQuery  = `SELECT ad_id, title, price, url, location, city, fipe, recorded_at FROM accumulated_ads ORDER BY id DESC`
)

// SQLStore backs the ledger and archive with PostgreSQL or SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQL connects, waits for the server and creates the schema. For SQLite
// dsn is a file path.
func OpenSQL(ctx context.Context, d Dialect, dsn string) (*SQLStore, error) {
	if d.driver == SQLite.driver && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("%s: create dir: %w", d.Name, err)
		}
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", d.Name, err)
	}
	if d.maxOpen > 0 {
		db.SetMaxOpenConns(d.maxOpen)
	}

	err = util.RetryWithBackoff(ctx, d.connectTry-1, time.Second, func(int) error {
		return db.PingContext(ctx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: ping: %w", d.Name, err)
	}

	if _, err := db.ExecContext(ctx, d.schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: migrate: %w", d.Name, err)
	}
	return &SQLStore{db: db, dialect: d}, nil
}

func (s *SQLStore) IsSeen(ctx context.Context, adID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(isSeenQuery), adID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: is seen %s: %w", s.dialect.Name, adID, err)
	}
	return true, nil
}

func (s *SQLStore) MarkSeen(ctx context.Context, adID string) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.rebind(markSeenQuery), adID, time.Now().UTC()); err != nil {
		return fmt.Errorf("%s: mark seen %s: %w", s.dialect.Name, adID, err)
	}
	return nil
}

func (s *SQLStore) Reset(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, resetQuery)
	if err != nil {
		return 0, fmt.Errorf("%s: reset: %w", s.dialect.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: reset: %w", s.dialect.Name, err)
	}
	return int(n), nil
}

func (s *SQLStore) Append(ctx context.Context, ad models.AdRecord) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.rebind(appendAdQuery), adArgs(ad)...); err != nil {
		return fmt.Errorf("%s: append %s: %w", s.dialect.Name, ad.ID, err)
	}
	return nil
}

// Record marks ad seen and archives it in one transaction.
func (s *SQLStore) Record(ctx context.Context, ad models.AdRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", s.dialect.Name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.dialect.rebind(markSeenQuery), ad.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("%s: mark seen %s: %w", s.dialect.Name, ad.ID, err)
	}
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(appendAdQuery), adArgs(ad)...); err != nil {
		return fmt.Errorf("%s: append %s: %w", s.dialect.Name, ad.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", s.dialect.Name, err)
	}
	return nil
}

func (s *SQLStore) ListAll(ctx context.Context) ([]models.AdRecord, error) {
	rows, err := s.db.QueryContext(ctx, listAdsQuery)
	if err != nil {
		return nil, fmt.Errorf("%s: list ads: %w", s.dialect.Name, err)
	}
	defer rows.Close()

	ads := []models.AdRecord{}
	for rows.Next() {
		var ad models.AdRecord
		var recordedAt sqlTime
		if err := rows.Scan(&ad.ID, &ad.Title, &ad.Price, &ad.URL, &ad.Location, &ad.City, &ad.ReferencePrice, &recordedAt); err != nil {
			return nil, fmt.Errorf("%s: scan ad: %w", s.dialect.Name, err)
		}
		ad.RecordedAt = recordedAt.Time
		ads = append(ads, ad)
	}
	return ads, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func adArgs(ad models.AdRecord) []any {
	return []any{ad.ID, ad.Title, ad.Price, ad.URL, ad.Location, ad.City, ad.ReferencePrice, ad.RecordedAt.UTC()}
}

// sqlTime scans timestamps that come back as time.Time from Postgres and,
// depending on the stored form, as text from SQLite.
type sqlTime struct {
	time.Time
}

var sqlTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *sqlTime) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = x
		return nil
	case []byte:
		return t.parse(string(x))
	case string:
		return t.parse(x)
	default:
		return fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func (t *sqlTime) parse(s string) error {
	for _, layout := range sqlTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}
