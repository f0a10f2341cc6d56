// Package store persists sessions and test cases in SQLite and enforces the
// schema-level integrity rules: session IDs are unique, a case cannot exist
// without its session, and (session_id, test_id) pairs are unique.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/voss/testflow/internal/domain"
)

// Store is the durable mapping of sessions and test cases. Every write is a
// single committed statement; reads observe all prior writes from the same
// process.
type Store struct {
	db   *sql.DB
	path string
}

// New opens (or creates) the database under dataDir and migrates the schema.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "testflow.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		num_test_cases INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		status TEXT DEFAULT 'In Progress'
	);

	CREATE TABLE IF NOT EXISTS test_cases (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		test_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		steps TEXT NOT NULL,
		status TEXT DEFAULT 'Pending',
		comment TEXT DEFAULT '',
		executed_at DATETIME,
		UNIQUE (session_id, test_id),
		FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_test_cases_session ON test_cases(session_id, test_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// CreateSession registers a new session. The session is stored as In
// Progress immediately; there is no persisted Created state.
func (s *Store) CreateSession(ctx context.Context, sessionID, url string, numTestCases int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, url, num_test_cases, created_at, status)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, url, numTestCases, time.Now(), domain.SessionInProgress)
	if isConstraintErr(err) {
		return NewConflictError("session", sessionID)
	}
	return err
}

// GetSession retrieves a session row by ID.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var sess domain.Session
	var status sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, url, num_test_cases, created_at, status
		FROM sessions WHERE session_id = ?
	`, sessionID).Scan(&sess.SessionID, &sess.URL, &sess.NumTestCases, &sess.CreatedAt, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewNotFoundError("session", sessionID)
	}
	if err != nil {
		return nil, err
	}

	sess.Status = domain.CoalesceSessionStatus(domain.SessionStatus(status.String))
	return &sess, nil
}

// SaveTestCases bulk-inserts cases for a session with status defaulted to
// Pending. The steps of each case are serialized with 1-based numbering.
func (s *Store) SaveTestCases(ctx context.Context, sessionID string, cases []domain.NewTestCase) error {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, c := range cases {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO test_cases (session_id, test_id, title, description, steps, status, comment)
			VALUES (?, ?, ?, ?, ?, ?, '')
		`, sessionID, c.TestID, c.Title, c.Description, domain.FormatSteps(c.Steps), domain.CasePending)
		if isConstraintErr(err) {
			return NewConflictError("test case", fmt.Sprintf("%s/%d", sessionID, c.TestID))
		}
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// UpdateTestCaseStatus records the agent's verdict for one case, stamps
// executed_at and returns the case title for logging.
func (s *Store) UpdateTestCaseStatus(ctx context.Context, sessionID string, testID int, status domain.CaseStatus, comment string) (string, error) {
	var id int64
	var title string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title FROM test_cases WHERE session_id = ? AND test_id = ?
	`, sessionID, testID).Scan(&id, &title)
	if errors.Is(err, sql.ErrNoRows) {
		return "", NewNotFoundError("test case", fmt.Sprintf("%s/%d", sessionID, testID))
	}
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE test_cases SET status = ?, comment = ?, executed_at = ?
		WHERE session_id = ? AND test_id = ?
	`, string(status), comment, time.Now(), sessionID, testID)
	if err != nil {
		return "", err
	}

	return title, nil
}

// CaseOutcome re-reads the current status and comment of one case. The
// orchestrator treats this as the source of truth after an agent run.
func (s *Store) CaseOutcome(ctx context.Context, sessionID string, testID int) (domain.CaseStatus, string, error) {
	var status, comment sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT status, comment FROM test_cases WHERE session_id = ? AND test_id = ?
	`, sessionID, testID).Scan(&status, &comment)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", NewNotFoundError("test case", fmt.Sprintf("%s/%d", sessionID, testID))
	}
	if err != nil {
		return "", "", err
	}
	return domain.CoalesceCaseStatus(domain.CaseStatus(status.String)), comment.String, nil
}

// SetSessionStatus advances a session's status.
func (s *Store) SetSessionStatus(ctx context.Context, sessionID string, status domain.SessionStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = ? WHERE session_id = ?
	`, string(status), sessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return NewNotFoundError("session", sessionID)
	}
	return nil
}

// Summary returns the session row, a status histogram over its cases and
// the ordered case list. Absent case statuses count under Pending.
func (s *Store) Summary(ctx context.Context, sessionID string) (*domain.Summary, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	stats := make(map[string]int)
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(status, 'Pending') AS status, COUNT(*)
		FROM test_cases WHERE session_id = ? GROUP BY COALESCE(status, 'Pending')
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cases, err := s.ListTestCases(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return &domain.Summary{Session: *sess, Stats: stats, TestCases: cases}, nil
}

// ListTestCases returns all cases of a session ordered by test_id.
func (s *Store) ListTestCases(ctx context.Context, sessionID string) ([]domain.TestCase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, test_id, title, COALESCE(description, ''), steps,
		       COALESCE(status, 'Pending'), COALESCE(comment, ''), executed_at
		FROM test_cases WHERE session_id = ? ORDER BY test_id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []domain.TestCase
	for rows.Next() {
		var tc domain.TestCase
		var executedAt sql.NullTime
		if err := rows.Scan(&tc.ID, &tc.SessionID, &tc.TestID, &tc.Title, &tc.Description,
			&tc.Steps, &tc.Status, &tc.Comment, &executedAt); err != nil {
			return nil, err
		}
		if executedAt.Valid {
			t := executedAt.Time
			tc.ExecutedAt = &t
		}
		cases = append(cases, tc)
	}
	return cases, rows.Err()
}

// ListSessions returns all sessions newest-first, each with its full case
// list. A null session status reads as In Progress.
func (s *Store) ListSessions(ctx context.Context) ([]domain.SessionWithCases, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, url, num_test_cases, created_at, status
		FROM sessions ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.SessionWithCases
	for rows.Next() {
		var sess domain.SessionWithCases
		var status sql.NullString
		if err := rows.Scan(&sess.SessionID, &sess.URL, &sess.NumTestCases, &sess.CreatedAt, &status); err != nil {
			return nil, err
		}
		sess.Status = domain.CoalesceSessionStatus(domain.SessionStatus(status.String))
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sessions {
		cases, err := s.ListTestCases(ctx, sessions[i].SessionID)
		if err != nil {
			return nil, err
		}
		sessions[i].TestCases = cases
	}
	return sessions, nil
}

func isConstraintErr(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint
}
