package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/debatebot/internal/domain"
	"github.com/ashureev/debatebot/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	busyRetries   = 3
	busyBaseDelay = 50 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL keeps readers from blocking the single writer.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT 'Other',
		position TEXT NOT NULL,
		original_message TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		turn_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		turn INTEGER NOT NULL CHECK (turn >= 1),
		role TEXT NOT NULL CHECK (role IN ('user', 'bot')),
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE (session_id, turn, role)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session_turn ON messages(session_id, turn);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return s.addColumn("sessions", "language", "TEXT NOT NULL DEFAULT ''")
}

// addColumn adds a column to a table created before the column existed.
func (s *SQLiteStore) addColumn(table, column, definition string) error {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&count)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	if count > 0 {
		return nil
	}
	if _, err := s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateSession persists a new session and returns its ID.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) (string, error) {
	id := session.ID
	if id == "" {
		id = uuid.NewString()
	}
	category := session.Category
	if category == "" {
		category = "Other"
	}

	now := time.Now()
	query := `
	INSERT INTO sessions (id, topic, category, position, original_message, language, turn_count, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`

	err := s.withBusyRetry(ctx, "create session", func() error {
		_, err := s.db.ExecContext(ctx, query,
			id, session.Topic, category, session.Position, session.OriginalMessage, session.Language,
			now.UnixNano(), now.UnixNano(),
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `
		SELECT id, topic, category, position, original_message, language, turn_count, created_at, updated_at
		FROM sessions WHERE id = ?`

	var session domain.Session
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(
		&session.ID, &session.Topic, &session.Category, &session.Position,
		&session.OriginalMessage, &session.Language, &session.TurnCount, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	session.CreatedAt = time.Unix(0, createdAt)
	session.UpdatedAt = time.Unix(0, updatedAt)
	return &session, nil
}

// AppendMessage records one message.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg domain.Message) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
	INSERT INTO messages (session_id, turn, role, content, created_at)
	VALUES (?, ?, ?, ?, ?)`

	err := s.withBusyRetry(ctx, "append message", func() error {
		_, err := s.db.ExecContext(ctx, query,
			msg.SessionID, msg.Turn, string(msg.Role), msg.Content, createdAt.UnixNano(),
		)
		return err
	})
	switch {
	case err == nil:
		return nil
	case shared.IsSQLiteUniqueError(err):
		return fmt.Errorf("append %s message for turn %d: %w", msg.Role, msg.Turn, domain.ErrTurnConflict)
	case shared.IsSQLiteForeignKeyError(err):
		return fmt.Errorf("append message to %s: %w", msg.SessionID, domain.ErrSessionNotFound)
	default:
		return fmt.Errorf("append message: %w", err)
	}
}

// GetHistory returns all messages of a session in transcript order.
func (s *SQLiteStore) GetHistory(ctx context.Context, sessionID string) ([]domain.Message, error) {
	query := `
		SELECT session_id, turn, role, content, created_at
		FROM messages WHERE session_id = ?
		ORDER BY turn ASC, created_at ASC, id ASC`
	return s.queryMessages(ctx, query, sessionID)
}

// GetMessagesForTurn returns the messages of a single turn.
func (s *SQLiteStore) GetMessagesForTurn(ctx context.Context, sessionID string, turn int) ([]domain.Message, error) {
	query := `
		SELECT session_id, turn, role, content, created_at
		FROM messages WHERE session_id = ? AND turn = ?
		ORDER BY created_at ASC, id ASC`
	return s.queryMessages(ctx, query, sessionID, turn)
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var role string
		var createdAt int64
		if err := rows.Scan(&msg.SessionID, &msg.Turn, &role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.Role = domain.Role(role)
		msg.CreatedAt = time.Unix(0, createdAt)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// MaxTurn returns the highest persisted turn for a session, or 0.
func (s *SQLiteStore) MaxTurn(ctx context.Context, sessionID string) (int, error) {
	var maxTurn sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(turn) FROM messages WHERE session_id = ?`, sessionID,
	).Scan(&maxTurn)
	if err != nil {
		return 0, fmt.Errorf("query max turn: %w", err)
	}
	return int(maxTurn.Int64), nil
}

// UpdateTurnCount raises turn_count to turn; it never lowers it.
func (s *SQLiteStore) UpdateTurnCount(ctx context.Context, sessionID string, turn int) error {
	query := `UPDATE sessions SET turn_count = MAX(turn_count, ?), updated_at = ? WHERE id = ?`

	var rows int64
	err := s.withBusyRetry(ctx, "update turn count", func() error {
		result, err := s.db.ExecContext(ctx, query, turn, time.Now().UnixNano(), sessionID)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update turn count: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update turn count for %s: %w", sessionID, domain.ErrSessionNotFound)
	}
	return nil
}

// withBusyRetry retries fn with exponential backoff while SQLite reports
// SQLITE_BUSY or a locked database. Other errors are returned immediately.
func (s *SQLiteStore) withBusyRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i < busyRetries; i++ {
		err = fn()
		if err == nil || !shared.IsSQLiteConflictError(err) {
			return err
		}
		if i == busyRetries-1 {
			break
		}

		delay := busyBaseDelay * time.Duration(1<<i) // 50ms, 100ms
		slog.Debug("SQLite busy, retrying", "op", op, "attempt", i+1, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, busyRetries, err)
}

var _ Repository = (*SQLiteStore)(nil)
