package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"zapscraper/internal/model"
)

// dbFileName is the SQLite file kept under the data directory.
const dbFileName = "zapscraper.db"

// CrawlDB is the SQLite history behind the history and export commands.
// The CSV is the run artifact; the database accumulates listings, page
// fetches and run reports across runs.
//
// Design decision: One database file for all runs rather than one per
// run. History queries span runs, and a single file keeps backup and
// cleanup trivial.
type CrawlDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so history reads don't
	// block a running scrape.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the database under dbDir.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, dbFileName)

	var dsn string
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = dbPath + "?mode=rwc"
	} else {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrDatabaseNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("check database path: %w", err)
		}
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite supports a single writer; more connections just queue.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}
	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return cdb, nil
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

func (cdb *CrawlDB) createTables() error {
	schema := `
	-- Listings accumulate across runs, keyed by listing URL.
	CREATE TABLE IF NOT EXISTS listings (
		url TEXT PRIMARY KEY,
		title TEXT,
		price TEXT,
		location TEXT,
		fields TEXT NOT NULL,
		scraped_at DATETIME,
		deep_scraped_at DATETIME,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_listings_location ON listings(location);
	CREATE INDEX IF NOT EXISTS idx_listings_updated ON listings(updated_at);

	-- Pages record individual fetches for cache checks and debugging.
	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL UNIQUE,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		status_code INTEGER,
		content_type TEXT,
		title TEXT,
		raw_hash TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_pages_url ON pages(url);
	CREATE INDEX IF NOT EXISTS idx_pages_timestamp ON pages(timestamp);

	-- Run reports store the full report JSON per scrape run.
	CREATE TABLE IF NOT EXISTS scrape_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		deep_only INTEGER DEFAULT 0,
		stats TEXT,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON scrape_runs(started_at);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// UpsertListing inserts a listing or refreshes its stored fields.
// The full field map is stored as JSON so export reproduces every
// column; a few columns are lifted out for indexed queries.
func (cdb *CrawlDB) UpsertListing(ctx context.Context, listing *model.Listing) error {
	if listing == nil || listing.URL == "" {
		return ErrMissingURL
	}
	fieldsJSON, err := json.Marshal(listing.Fields())
	if err != nil {
		return fmt.Errorf("serialize listing fields: %w", err)
	}

	query := `
	INSERT INTO listings (url, title, price, location, fields, scraped_at, deep_scraped_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(url) DO UPDATE SET
		title = excluded.title,
		price = excluded.price,
		location = excluded.location,
		fields = excluded.fields,
		scraped_at = excluded.scraped_at,
		deep_scraped_at = excluded.deep_scraped_at,
		updated_at = CURRENT_TIMESTAMP
	`

	_, err = cdb.db.ExecContext(ctx, query,
		listing.URL,
		listing.Title,
		listing.Price,
		listing.Location,
		string(fieldsJSON),
		nullableTime(listing.ScrapedAt),
		nullableTime(listing.DeepScrapedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert listing: %w", err)
	}
	return nil
}

// GetListing retrieves a listing by URL. Returns nil without error when
// the URL is unknown.
func (cdb *CrawlDB) GetListing(ctx context.Context, url string) (*model.Listing, error) {
	var fieldsJSON string
	err := cdb.db.QueryRowContext(ctx,
		"SELECT fields FROM listings WHERE url = ?", url,
	).Scan(&fieldsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return listingFromJSON(fieldsJSON)
}

// ListListings returns every stored listing ordered by URL. This backs
// the export command.
func (cdb *CrawlDB) ListListings(ctx context.Context) ([]*model.Listing, error) {
	rows, err := cdb.db.QueryContext(ctx, "SELECT fields FROM listings ORDER BY url")
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var listings []*model.Listing
	for rows.Next() {
		var fieldsJSON string
		if err := rows.Scan(&fieldsJSON); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		listing, err := listingFromJSON(fieldsJSON)
		if err != nil {
			return nil, err
		}
		listings = append(listings, listing)
	}
	return listings, rows.Err()
}

func listingFromJSON(fieldsJSON string) (*model.Listing, error) {
	var fields map[string]string
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return nil, fmt.Errorf("parse listing fields: %w", err)
	}
	return model.ListingFromFields(fields), nil
}

// RecordPage inserts or refreshes the fetch record for a page.
func (cdb *CrawlDB) RecordPage(ctx context.Context, page *model.Page) error {
	query := `
	INSERT INTO pages (url, status_code, content_type, title, raw_hash)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(url) DO UPDATE SET
		status_code = excluded.status_code,
		content_type = excluded.content_type,
		title = excluded.title,
		raw_hash = excluded.raw_hash,
		timestamp = CURRENT_TIMESTAMP
	`
	_, err := cdb.db.ExecContext(ctx, query,
		page.URL,
		page.StatusCode,
		page.ContentType,
		page.Title,
		page.Hash,
	)
	if err != nil {
		return fmt.Errorf("record page: %w", err)
	}
	return nil
}

// HasRecentFetch reports whether url was fetched within the duration.
func (cdb *CrawlDB) HasRecentFetch(ctx context.Context, url string, within time.Duration) (bool, error) {
	query := `
	SELECT COUNT(*) FROM pages
	WHERE url = ? AND timestamp > datetime('now', ?)
	`
	modifier := fmt.Sprintf("-%d seconds", int(within.Seconds()))

	var count int
	if err := cdb.db.QueryRowContext(ctx, query, url, modifier).Scan(&count); err != nil {
		return false, fmt.Errorf("check recent fetch: %w", err)
	}
	return count > 0, nil
}

// SaveRunReport stores a finished run report and returns its row id.
func (cdb *CrawlDB) SaveRunReport(ctx context.Context, report *model.ScrapeReport) (int64, error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("serialize report: %w", err)
	}
	statsJSON, err := json.Marshal(report.Stats)
	if err != nil {
		return 0, fmt.Errorf("serialize stats: %w", err)
	}

	query := `
	INSERT INTO scrape_runs (started_at, finished_at, deep_only, stats, report_json)
	VALUES (?, ?, ?, ?, ?)
	`
	result, err := cdb.db.ExecContext(ctx, query,
		report.StartedAt.UTC().Format(time.RFC3339),
		report.FinishedAt.UTC().Format(time.RFC3339),
		boolToInt(report.DeepOnly),
		string(statsJSON),
		string(reportJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("save run report: %w", err)
	}
	return result.LastInsertId()
}

// RunMetadata summarizes one stored run for the history command.
type RunMetadata struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	DeepOnly   bool
	Stats      model.Stats
}

// RunHistory returns run summaries, newest first. limit <= 0 means all.
func (cdb *CrawlDB) RunHistory(ctx context.Context, limit int) ([]RunMetadata, error) {
	query := `
	SELECT id, started_at, finished_at, deep_only, stats
	FROM scrape_runs
	ORDER BY started_at DESC, id DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query run history: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var history []RunMetadata
	for rows.Next() {
		var meta RunMetadata
		var started, finished, statsJSON string
		var deepOnly int
		if err := rows.Scan(&meta.ID, &started, &finished, &deepOnly, &statsJSON); err != nil {
			return nil, fmt.Errorf("scan run metadata: %w", err)
		}
		meta.StartedAt = parseTimestamp(started)
		meta.FinishedAt = parseTimestamp(finished)
		meta.DeepOnly = deepOnly != 0
		if statsJSON != "" {
			if err := json.Unmarshal([]byte(statsJSON), &meta.Stats); err != nil {
				return nil, fmt.Errorf("parse run stats: %w", err)
			}
		}
		history = append(history, meta)
	}
	return history, rows.Err()
}

// GetRunReport retrieves a full run report by id. Returns nil without
// error when the id is unknown.
func (cdb *CrawlDB) GetRunReport(ctx context.Context, id int64) (*model.ScrapeReport, error) {
	var reportJSON string
	err := cdb.db.QueryRowContext(ctx,
		"SELECT report_json FROM scrape_runs WHERE id = ?", id,
	).Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run report: %w", err)
	}

	var report model.ScrapeReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("parse run report: %w", err)
	}
	return &report, nil
}

// LatestRunReport retrieves the most recent run report, or nil when the
// database holds no runs yet.
func (cdb *CrawlDB) LatestRunReport(ctx context.Context) (*model.ScrapeReport, error) {
	var reportJSON string
	err := cdb.db.QueryRowContext(ctx,
		"SELECT report_json FROM scrape_runs ORDER BY started_at DESC, id DESC LIMIT 1",
	).Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest run report: %w", err)
	}

	var report model.ScrapeReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("parse run report: %w", err)
	}
	return &report, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// timestampFormats contains the timestamp formats that SQLite may
// return. The order matters: more specific formats come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple
// formats, returning zero time when none matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
