// Package usage tracks daily token spend per account in a local SQLite
// ledger and enforces the session's daily token limit.
package usage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/Spectating101/cite-agent-sub002/internal/logging"
)

// ErrQuotaExceeded is returned when a request would push today's spend
// past the account's daily token limit.
var ErrQuotaExceeded = errors.New("daily token quota exceeded")

// DayTotals summarizes one account's spend for one day.
type DayTotals struct {
	Day     string
	Tokens  int64
	Queries int64
}

// Store manages the usage ledger database.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
	log    *zap.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// NewStore creates or opens the usage ledger at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{
		db:     db,
		dbPath: dbPath,
		log:    logging.Usage(),
		now:    time.Now,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return err
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS usage (
		day        TEXT NOT NULL,
		account_id TEXT NOT NULL,
		tokens     INTEGER NOT NULL DEFAULT 0,
		queries    INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (day, account_id)
	);`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) today() string {
	return s.now().UTC().Format("2006-01-02")
}

// Record adds a request's token estimate to today's ledger row.
func (s *Store) Record(accountID string, tokens int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := s.today()
	_, err := s.db.Exec(`
		INSERT INTO usage (day, account_id, tokens, queries)
		VALUES (?, ?, ?, 1)
		ON CONFLICT (day, account_id)
		DO UPDATE SET tokens = tokens + excluded.tokens,
		              queries = queries + 1`,
		day, accountID, tokens)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	s.log.Debug("recorded usage",
		zap.String("account", accountID),
		zap.Int64("tokens", tokens))
	return nil
}

// Today returns the account's totals for the current day. A missing row
// means zero spend.
func (s *Store) Today(accountID string) (*DayTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := s.today()
	totals := &DayTotals{Day: day}
	err := s.db.QueryRow(`
		SELECT tokens, queries FROM usage
		WHERE day = ? AND account_id = ?`,
		day, accountID).Scan(&totals.Tokens, &totals.Queries)
	if err == sql.ErrNoRows {
		return totals, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read usage: %w", err)
	}
	return totals, nil
}

// CheckQuota returns ErrQuotaExceeded when today's spend plus the
// estimate would exceed limit. A non-positive limit means unlimited.
func (s *Store) CheckQuota(accountID string, estimate, limit int64) error {
	if limit <= 0 {
		return nil
	}
	totals, err := s.Today(accountID)
	if err != nil {
		return err
	}
	if totals.Tokens+estimate > limit {
		return fmt.Errorf("%w: %d of %d tokens used today",
			ErrQuotaExceeded, totals.Tokens, limit)
	}
	return nil
}
