// Package store caches compiled programs in SQLite, keyed by a hash of
// their source text, and keeps a history of runs.
package store

import (
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"
	"github.com/tliron/commonlog"

	"github.com/chazu/tapevm/pkg/bytecode"

	_ "modernc.org/sqlite"
)

// ErrProgramNotFound indicates no cached program exists for a hash.
var ErrProgramNotFound = errors.New("program not found")

var log = commonlog.GetLogger("tapevm.store")

const schema = `
CREATE TABLE IF NOT EXISTS programs (
	hash       TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	image      BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	hash        TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL,
	steps       INTEGER NOT NULL,
	output_len  INTEGER NOT NULL,
	error_kind  TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS runs_by_hash ON runs (hash, started_at);
`

// Store is a SQLite-backed program cache and run log.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the database at path. The special path ":memory:"
// gives a private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if err := dropStaleCache(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	log.Debugf("opened program store %s", path)
	return &Store{db: db, path: path}, nil
}

// dropStaleCache drops a programs table written before entries recorded
// their source. The table only holds cache entries, so it is rebuilt on
// demand.
func dropStaleCache(db *sql.DB) error {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('programs')").Scan(&n)
	if err != nil {
		return fmt.Errorf("inspecting programs table: %w", err)
	}
	if n == 0 {
		return nil
	}
	var hasSource int
	err = db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('programs') WHERE name = 'source'").Scan(&hasSource)
	if err != nil {
		return fmt.Errorf("inspecting programs table: %w", err)
	}
	if hasSource > 0 {
		return nil
	}
	log.Noticef("dropping program cache without source column")
	if _, err := db.Exec("DROP TABLE programs"); err != nil {
		return fmt.Errorf("dropping stale program cache: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.path
}

// HashSource returns the cache key for source text: the hex form of its
// 128-bit murmur3 hash.
func HashSource(source string) string {
	h1, h2 := murmur3.Sum128([]byte(source))
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], h1)
	binary.BigEndian.PutUint64(buf[8:], h2)
	return hex.EncodeToString(buf[:])
}

// Get loads the cached program for hash.
func (s *Store) Get(hash string) (*bytecode.Program, error) {
	_, p, err := s.lookup(hash)
	return p, err
}

// lookup loads the cached program for hash together with the source it
// was compiled from.
func (s *Store) lookup(hash string) (string, *bytecode.Program, error) {
	var source string
	var image []byte
	err := s.db.QueryRow("SELECT source, image FROM programs WHERE hash = ?", hash).Scan(&source, &image)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil, ErrProgramNotFound
		}
		return "", nil, fmt.Errorf("querying program: %w", err)
	}

	p, err := bytecode.Deserialize(image)
	if err != nil {
		return "", nil, fmt.Errorf("decoding cached program %s: %w", hash, err)
	}
	return source, p, nil
}

// Put stores the program compiled from source under HashSource(source),
// replacing any existing entry.
func (s *Store) Put(source string, p *bytecode.Program) error {
	image, err := p.Serialize()
	if err != nil {
		return fmt.Errorf("encoding program: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO programs (hash, source, image, created_at) VALUES (?, ?, ?, ?)",
		HashSource(source), source, image, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving program: %w", err)
	}
	return nil
}

// Compile returns the cached program for source, compiling and caching it
// on a miss. A hit only counts if the cached entry was compiled from the
// same source text; on a hash collision the program is compiled fresh and
// the existing entry is left alone. Compile errors are returned as-is and
// never cached.
func (s *Store) Compile(source string) (prog *bytecode.Program, hash string, cached bool, err error) {
	hash = HashSource(source)

	save := true
	cachedSource, prog, err := s.lookup(hash)
	switch {
	case err == nil && cachedSource == source:
		log.Debugf("cache hit %s", hash)
		return prog, hash, true, nil
	case err == nil:
		log.Warningf("hash collision on %s: cached program belongs to different source", hash)
		save = false
	case !errors.Is(err, ErrProgramNotFound):
		// A corrupt entry is recompiled and overwritten
		log.Warningf("ignoring cached program %s: %s", hash, err)
	}

	prog, err = bytecode.Compile(source)
	if err != nil {
		return nil, hash, false, err
	}
	if save {
		if err := s.Put(source, prog); err != nil {
			return nil, hash, false, err
		}
	}
	log.Debugf("cache miss %s: compiled %d instructions", hash, prog.Len())
	return prog, hash, false, nil
}

// ProgramCount returns the number of cached programs.
func (s *Store) ProgramCount() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM programs").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting programs: %w", err)
	}
	return n, nil
}

// RunRecord is one entry in the run history.
type RunRecord struct {
	ID        string
	Hash      string
	StartedAt time.Time
	Duration  time.Duration
	Steps     int64
	OutputLen int
	ErrorKind string
	Error     string
}

// RecordRun appends r to the run history, assigning an ID if it has none.
func (s *Store) RecordRun(r *RunRecord) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO runs (id, hash, started_at, duration_ns, steps, output_len, error_kind, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Hash, r.StartedAt.UnixNano(), int64(r.Duration), r.Steps, r.OutputLen, r.ErrorKind, r.Error,
	)
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}

// Runs returns up to limit runs of the program with the given hash,
// newest first.
func (s *Store) Runs(hash string, limit int) ([]RunRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, hash, started_at, duration_ns, steps, output_len, error_kind, error
		 FROM runs WHERE hash = ? ORDER BY started_at DESC LIMIT ?`,
		hash, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var started, duration int64
		if err := rows.Scan(&r.ID, &r.Hash, &started, &duration, &r.Steps, &r.OutputLen, &r.ErrorKind, &r.Error); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt = time.Unix(0, started)
		r.Duration = time.Duration(duration)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
