package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"zapscraper/internal/model"
)

const (
	// lockWait is how long a writer waits for a foreign .lock file
	// before treating it as stale and breaking it.
	lockWait = 10 * time.Second

	// lockPollStep is the polling interval while waiting for the lock.
	lockPollStep = 100 * time.Millisecond
)

// CSVStore persists listings in a single CSV file keyed by listing URL.
//
// The CSV is the primary artifact of a run: search pages append card
// rows, deep search merges detail fields into the same rows, and later
// runs read it back to find listings still missing deep data. Saves
// therefore never drop columns or overwrite non-empty values with empty
// ones.
//
// Design decision: Writes rewrite the whole file through a temp file +
// rename rather than seeking into place. The files are small (thousands
// of rows) and an atomic rename means a killed run never leaves a
// half-written CSV behind.
type CSVStore struct {
	// mu serializes access within this process.
	mu sync.Mutex

	// path is the CSV file location.
	path string

	logger *slog.Logger
}

// NewCSVStore creates a store for the CSV file at path, creating the
// parent directory when needed.
func NewCSVStore(path string, logger *slog.Logger) (*CSVStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	return &CSVStore{path: path, logger: logger}, nil
}

// Path returns the CSV file location.
func (s *CSVStore) Path() string {
	return s.path
}

// SaveListing merges one listing into the CSV, updating its row when
// the URL already exists and appending it otherwise. Existing non-empty
// values survive empty incoming ones.
func (s *CSVStore) SaveListing(listing *model.Listing) error {
	if listing == nil || strings.TrimSpace(listing.URL) == "" {
		return ErrMissingURL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	t, err := s.readTable()
	if err != nil {
		return err
	}
	s.mergeIntoTable(t, listing)
	return s.writeTable(t)
}

// SaveBatch merges a batch of listings in one read/write cycle.
// Listings without a URL are skipped with a warning.
func (s *CSVStore) SaveBatch(listings []*model.Listing) error {
	if len(listings) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	t, err := s.readTable()
	if err != nil {
		return err
	}
	for _, listing := range listings {
		if listing == nil || strings.TrimSpace(listing.URL) == "" {
			s.logger.Warn("skipping listing without URL")
			continue
		}
		s.mergeIntoTable(t, listing)
	}
	return s.writeTable(t)
}

// SavePageListings persists the cards of one search results page. When
// the file's header already covers every column the rows need, the rows
// are appended; otherwise the whole file is rewritten with the merged
// header so no column is ever lost.
func (s *CSVStore) SavePageListings(pageNum int, listings []*model.Listing) error {
	if len(listings) == 0 {
		s.logger.Debug("no listings to save", "page", pageNum)
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	t, err := s.readTable()
	if err != nil {
		return err
	}

	rows := make([]map[string]string, 0, len(listings))
	for _, listing := range listings {
		if listing == nil || strings.TrimSpace(listing.URL) == "" {
			continue
		}
		rows = append(rows, listing.Fields())
	}
	if len(rows) == 0 {
		return nil
	}

	// Appending is only safe when the file's on-disk header, taken in its
	// literal column order, already has a column for every non-empty
	// incoming value and none of the URLs is already stored. Anything
	// else (a column the file lacks, a filtered generic header, a merge)
	// takes the rewrite path so no data ever lands in the wrong column.
	canAppend := fileExists(s.path) && !t.dirtyHeader && len(t.headers) > 0
	if canAppend {
		onDisk := make(map[string]bool, len(t.headers))
		for _, h := range t.headers {
			onDisk[h] = true
		}
	check:
		for _, row := range rows {
			if _, ok := t.rows[row["url"]]; ok {
				canAppend = false
				break
			}
			for k, v := range row {
				if !onDisk[k] && isValidFieldName(k) && !model.IsEmptyValue(v) {
					canAppend = false
					break check
				}
			}
		}
	}

	if canAppend {
		if err := s.appendRows(t.headers, rows); err != nil {
			return err
		}
	} else {
		for _, listing := range listings {
			if listing == nil || strings.TrimSpace(listing.URL) == "" {
				continue
			}
			s.mergeIntoTable(t, listing)
		}
		if err := s.writeTable(t); err != nil {
			return err
		}
	}

	s.logger.Info("saved search page listings", "page", pageNum, "listings", len(rows), "file", s.path)
	return nil
}

// Listings returns every listing currently stored, sorted by URL.
func (s *CSVStore) Listings() ([]*model.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.readTable()
	if err != nil {
		return nil, err
	}
	listings := make([]*model.Listing, 0, len(t.rows))
	for key, row := range t.rows {
		if !model.IsListingURL(key) {
			continue
		}
		listings = append(listings, model.ListingFromFields(row))
	}
	sort.Slice(listings, func(i, j int) bool { return listings[i].URL < listings[j].URL })
	return listings, nil
}

// PendingDeepSearch returns the stored listings that still need a
// detail-page visit, sorted by URL.
func (s *CSVStore) PendingDeepSearch() ([]*model.Listing, error) {
	all, err := s.Listings()
	if err != nil {
		return nil, err
	}
	pending := make([]*model.Listing, 0, len(all))
	for _, listing := range all {
		if listing.NeedsDeepSearch() {
			pending = append(pending, listing)
		}
	}
	return pending, nil
}

// mergeIntoTable merges one listing's fields into the table row keyed
// by its URL.
func (s *CSVStore) mergeIntoTable(t *table, listing *model.Listing) {
	incoming := listing.Fields()
	row, ok := t.rows[listing.URL]
	if !ok {
		t.rows[listing.URL] = incoming
		s.logger.Info("added listing", "url", listing.URL)
		return
	}
	updated, added := mergeRow(row, incoming)
	if len(updated) > 0 || len(added) > 0 {
		s.logger.Info("updated listing",
			"url", listing.URL,
			"updated_fields", len(updated),
			"new_fields", len(added),
		)
	}
}

// mergeRow merges incoming fields into an existing row. Non-empty
// incoming values win; empty ones never overwrite existing data. The
// url key is the row identity and is never touched.
func mergeRow(existing, incoming map[string]string) (updated, added []string) {
	keys := make([]string, 0, len(incoming))
	for k := range incoming {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if k == "url" || !isValidFieldName(k) {
			continue
		}
		v := incoming[k]
		if model.IsEmptyValue(v) {
			continue
		}
		old, ok := existing[k]
		existing[k] = v
		if !ok || model.IsEmptyValue(old) {
			added = append(added, k)
		} else if old != v {
			updated = append(updated, k)
		}
	}
	return updated, added
}

// table is the in-memory form of the CSV file: ordered headers plus
// rows keyed by listing URL (or a synthetic row key when a row somehow
// carries data but no URL).
type table struct {
	headers []string
	rows    map[string]map[string]string

	// dirtyHeader marks a file whose on-disk header differs from headers
	// (generic columns were filtered, or the file had no header at all).
	// Such files must never be appended to by position.
	dirtyHeader bool
}

// headerIndicators identify a header row; a data row never contains
// these words.
var headerIndicators = []string{"url", "price", "title", "location", "area", "bedrooms", "bathrooms"}

func looksLikeHeader(record []string) bool {
	joined := strings.ToLower(strings.Join(record, ","))
	for _, indicator := range headerIndicators {
		if strings.Contains(joined, indicator) {
			return true
		}
	}
	return false
}

// isValidFieldName rejects the generic column_N names that a headerless
// import produces. They carry positions, not meaning, and must never
// become headers.
func isValidFieldName(name string) bool {
	if name == "" {
		return false
	}
	rest, ok := strings.CutPrefix(name, "column_")
	if !ok {
		return true
	}
	if _, err := strconv.Atoi(rest); err == nil {
		return false
	}
	return true
}

// readTable reads the whole CSV into memory. A missing file yields an
// empty table. Rows with no data at all are dropped; rows without a URL
// are preserved under a synthetic key so no data is lost on rewrite.
func (s *CSVStore) readTable() (*table, error) {
	t := &table{rows: make(map[string]map[string]string)}

	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only descriptor

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return t, nil
	}

	header := records[0]
	if !looksLikeHeader(header) {
		// Headerless file, probably hand-edited. Salvage the listing
		// URLs so deep search can still find the rows.
		s.logger.Warn("csv file has no header row, salvaging listing URLs", "path", s.path)
		for _, record := range records {
			for _, cell := range record {
				u := strings.TrimSpace(cell)
				if model.IsListingURL(u) {
					t.rows[u] = map[string]string{"url": u}
					break
				}
			}
		}
		t.headers = []string{"url"}
		t.dirtyHeader = true
		return t, nil
	}

	for _, h := range header {
		if isValidFieldName(h) {
			t.headers = append(t.headers, h)
		} else {
			t.dirtyHeader = true
		}
	}

	for n, record := range records[1:] {
		row := make(map[string]string, len(header))
		empty := true
		for i, h := range header {
			if i >= len(record) || !isValidFieldName(h) {
				continue
			}
			v := strings.TrimSpace(record[i])
			row[h] = v
			if v != "" {
				empty = false
			}
		}
		if empty {
			continue
		}

		key := row["url"]
		if key == "" {
			for _, v := range row {
				if model.IsListingURL(v) {
					key = v
					row["url"] = v
					break
				}
			}
		}
		if key == "" {
			key = fmt.Sprintf("listing_%d", n+1)
			s.logger.Warn("csv row has data but no URL, preserving", "key", key)
		}
		t.rows[key] = row
	}

	return t, nil
}

// unionHeaders computes the write header: the canonical listing columns
// in their fixed order first, then any extra columns sorted.
func unionHeaders(t *table) []string {
	seen := make(map[string]bool)
	for _, h := range t.headers {
		if isValidFieldName(h) {
			seen[h] = true
		}
	}
	for _, row := range t.rows {
		for k := range row {
			if isValidFieldName(k) {
				seen[k] = true
			}
		}
	}

	headers := make([]string, 0, len(seen))
	for _, name := range model.FieldNames {
		if seen[name] {
			headers = append(headers, name)
			delete(seen, name)
		}
	}
	extra := make([]string, 0, len(seen))
	for k := range seen {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	return append(headers, extra...)
}

// writeTable rewrites the CSV atomically. Rows with URLs come first,
// sorted by URL, then the synthetic-key rows.
func (s *CSVStore) writeTable(t *table) error {
	headers := unionHeaders(t)
	if len(headers) == 0 {
		return ErrNoColumns
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp csv: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after successful rename

	w := csv.NewWriter(tmp)
	if err := w.Write(headers); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, key := range sortedRowKeys(t) {
		row := t.rows[key]
		record := make([]string, len(headers))
		for i, h := range headers {
			record[i] = row[h]
		}
		if err := w.Write(record); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("flush csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp csv: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace csv: %w", err)
	}
	return nil
}

// appendRows appends records to the existing file, creating it with a
// header when missing.
func (s *CSVStore) appendRows(headers []string, rows []map[string]string) error {
	writeHeader := !fileExists(s.path)

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open csv for append: %w", err)
	}
	defer f.Close() //nolint:errcheck // flushed and checked below

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(headers); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}
	for _, row := range rows {
		record := make([]string, len(headers))
		for i, h := range headers {
			record[i] = row[h]
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("append csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return f.Close()
}

func sortedRowKeys(t *table) []string {
	withURL := make([]string, 0, len(t.rows))
	var synthetic []string
	for key := range t.rows {
		if t.rows[key]["url"] != "" {
			withURL = append(withURL, key)
		} else {
			synthetic = append(synthetic, key)
		}
	}
	sort.Strings(withURL)
	sort.Strings(synthetic)
	return append(withURL, synthetic...)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// acquireLock takes the cross-process .lock file next to the CSV and
// returns the release function. A lock older than lockWait is assumed
// to belong to a crashed run and is broken.
func (s *CSVStore) acquireLock() (func(), error) {
	lockPath := s.path + ".lock"
	deadline := time.Now().Add(lockWait)

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			_ = f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		if time.Now().After(deadline) {
			s.logger.Warn("breaking stale csv lock", "path", lockPath)
			_ = os.Remove(lockPath)
			continue
		}
		time.Sleep(lockPollStep)
	}
}
