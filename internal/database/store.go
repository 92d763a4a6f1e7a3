package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// ChatHistoryLimit is the number of chat turns kept per conversation.
const ChatHistoryLimit = 10

// Store defines the interface for database operations.
// Getters return nil, nil when the record does not exist.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// GetGroupPolicy retrieves a group's settings.
	GetGroupPolicy(ctx context.Context, id string) (*GroupPolicy, error)

	// SaveGroupPolicy inserts or updates a group's settings.
	SaveGroupPolicy(ctx context.Context, policy *GroupPolicy) error

	// UpdateGroupPolicy loads (or creates with defaults) a group's settings,
	// applies fn and saves the result in a single transaction.
	UpdateGroupPolicy(ctx context.Context, id string, fn func(*GroupPolicy)) (*GroupPolicy, error)

	// GetUser retrieves a user record.
	GetUser(ctx context.Context, jid string) (*UserRecord, error)

	// RecordActivity upserts a user's last seen time and display name and,
	// when command is true, increments their command count.
	RecordActivity(ctx context.Context, jid, name string, command bool) error

	// AddWarning appends a warning and returns the updated record.
	AddWarning(ctx context.Context, jid, reason string) (*UserRecord, error)

	// ResetWarnings clears a user's warnings.
	ResetWarnings(ctx context.Context, jid string) error

	// GetSession retrieves a credential snapshot.
	GetSession(ctx context.Context, id string) (*SessionRecord, error)

	// SaveSession inserts or replaces a credential snapshot.
	SaveSession(ctx context.Context, session *SessionRecord) error

	// DeleteSession removes a credential snapshot.
	DeleteSession(ctx context.Context, id string) error

	// GetChatHistory returns a chat's AI history, oldest first.
	GetChatHistory(ctx context.Context, chatID string) ([]ChatMessage, error)

	// AppendChatHistory appends turns to a chat's history and trims it to
	// ChatHistoryLimit entries.
	AppendChatHistory(ctx context.Context, chatID string, turns ...ChatMessage) error

	// PruneChatHistory trims every chat to ChatHistoryLimit entries and returns
	// the number of rows removed.
	PruneChatHistory(ctx context.Context) (int64, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db      *sqlx.DB
	dialect Dialect
	logger  *slog.Logger
	now     func() time.Time
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, dialect Dialect, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:      db,
		dialect: dialect,
		logger:  logger.With("component", "store"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const groupColumns = `id, name, welcome_message, goodbye_message, anti_link, anti_spam, chat_enabled, max_warns, created_at, updated_at`

const upsertGroupQuery = `
	INSERT INTO group_policies (` + groupColumns + `)
	VALUES (:id, :name, :welcome_message, :goodbye_message, :anti_link, :anti_spam, :chat_enabled, :max_warns, :created_at, :updated_at)
	ON CONFLICT (id) DO UPDATE SET
		name = excluded.name,
		welcome_message = excluded.welcome_message,
		goodbye_message = excluded.goodbye_message,
		anti_link = excluded.anti_link,
		anti_spam = excluded.anti_spam,
		chat_enabled = excluded.chat_enabled,
		max_warns = excluded.max_warns,
		updated_at = excluded.updated_at;
`

// GetGroupPolicy retrieves a group's settings. Returns nil, nil if not found.
func (s *sqlxStore) GetGroupPolicy(ctx context.Context, id string) (*GroupPolicy, error) {
	return s.getGroupPolicy(ctx, s.db, id)
}

func (s *sqlxStore) getGroupPolicy(ctx context.Context, q sqlx.QueryerContext, id string) (*GroupPolicy, error) {
	if id == "" {
		return nil, fmt.Errorf("group id cannot be empty")
	}
	var policy GroupPolicy
	query := s.db.Rebind(`SELECT ` + groupColumns + ` FROM group_policies WHERE id = ?;`)
	if err := sqlx.GetContext(ctx, q, &policy, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		s.logger.ErrorContext(ctx, "Error fetching group policy", "group_id", id, "error", err)
		return nil, fmt.Errorf("failed to get group policy %s: %w", id, err)
	}
	return &policy, nil
}

// SaveGroupPolicy inserts or updates a group's settings.
func (s *sqlxStore) SaveGroupPolicy(ctx context.Context, policy *GroupPolicy) error {
	if policy == nil {
		return fmt.Errorf("cannot save nil group policy")
	}
	if policy.ID == "" {
		return fmt.Errorf("group policy must have an id")
	}
	s.stampGroup(policy)
	if _, err := s.db.NamedExecContext(ctx, upsertGroupQuery, policy); err != nil {
		s.logger.ErrorContext(ctx, "Error saving group policy", "group_id", policy.ID, "error", err)
		return fmt.Errorf("failed to save group policy %s: %w", policy.ID, err)
	}
	s.logger.DebugContext(ctx, "Group policy saved", "group_id", policy.ID)
	return nil
}

// UpdateGroupPolicy applies fn to the stored (or default) policy atomically.
func (s *sqlxStore) UpdateGroupPolicy(ctx context.Context, id string, fn func(*GroupPolicy)) (*GroupPolicy, error) {
	var out *GroupPolicy
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		policy, err := s.getGroupPolicy(ctx, tx, id)
		if err != nil {
			return err
		}
		if policy == nil {
			policy = NewGroupPolicy(id)
		}
		fn(policy)
		policy.ID = id
		s.stampGroup(policy)
		if _, err := tx.NamedExecContext(ctx, upsertGroupQuery, policy); err != nil {
			return fmt.Errorf("failed to save group policy %s: %w", id, err)
		}
		out = policy
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating group policy", "group_id", id, "error", err)
		return nil, err
	}
	return out, nil
}

func (s *sqlxStore) stampGroup(p *GroupPolicy) {
	now := s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.MaxWarns <= 0 {
		p.MaxWarns = DefaultMaxWarns
	}
}

const userColumns = `jid, name, warns, warn_reasons, command_count, last_seen, created_at, updated_at`

// GetUser retrieves a user record. Returns nil, nil if not found.
func (s *sqlxStore) GetUser(ctx context.Context, jid string) (*UserRecord, error) {
	return s.getUser(ctx, s.db, jid)
}

func (s *sqlxStore) getUser(ctx context.Context, q sqlx.QueryerContext, jid string) (*UserRecord, error) {
	if jid == "" {
		return nil, fmt.Errorf("user jid cannot be empty")
	}
	var user UserRecord
	query := s.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE jid = ?;`)
	if err := sqlx.GetContext(ctx, q, &user, query, jid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user %s: %w", jid, err)
	}
	return &user, nil
}

// RecordActivity upserts last seen and optionally bumps the command counter.
func (s *sqlxStore) RecordActivity(ctx context.Context, jid, name string, command bool) error {
	if jid == "" {
		return fmt.Errorf("user jid cannot be empty")
	}
	increment := 0
	if command {
		increment = 1
	}
	now := s.now()
	query := s.db.Rebind(`
		INSERT INTO users (jid, name, warns, warn_reasons, command_count, last_seen, created_at, updated_at)
		VALUES (?, ?, 0, '[]', ?, ?, ?, ?)
		ON CONFLICT (jid) DO UPDATE SET
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE users.name END,
			command_count = users.command_count + excluded.command_count,
			last_seen = excluded.last_seen,
			updated_at = excluded.updated_at;
	`)
	if _, err := s.db.ExecContext(ctx, query, jid, name, increment, now, now, now); err != nil {
		return fmt.Errorf("failed to record activity for %s: %w", jid, err)
	}
	return nil
}

// AddWarning appends a warning in a transaction and returns the new state.
func (s *sqlxStore) AddWarning(ctx context.Context, jid, reason string) (*UserRecord, error) {
	var out *UserRecord
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		user, err := s.getUser(ctx, tx, jid)
		if err != nil {
			return err
		}
		now := s.now()
		if user == nil {
			user = &UserRecord{JID: jid, LastSeen: now, CreatedAt: now}
		}
		user.Warns++
		user.WarnReasons = append(user.WarnReasons, WarnReason{Reason: reason, Date: now})
		user.UpdatedAt = now
		if err := s.saveUser(ctx, tx, user); err != nil {
			return err
		}
		out = user
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error adding warning", "jid", jid, "error", err)
		return nil, err
	}
	return out, nil
}

// ResetWarnings clears the warn counter and reasons.
func (s *sqlxStore) ResetWarnings(ctx context.Context, jid string) error {
	query := s.db.Rebind(`UPDATE users SET warns = 0, warn_reasons = '[]', updated_at = ? WHERE jid = ?;`)
	if _, err := s.db.ExecContext(ctx, query, s.now(), jid); err != nil {
		return fmt.Errorf("failed to reset warnings for %s: %w", jid, err)
	}
	return nil
}

func (s *sqlxStore) saveUser(ctx context.Context, tx *sqlx.Tx, user *UserRecord) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (:jid, :name, :warns, :warn_reasons, :command_count, :last_seen, :created_at, :updated_at)
		ON CONFLICT (jid) DO UPDATE SET
			name = excluded.name,
			warns = excluded.warns,
			warn_reasons = excluded.warn_reasons,
			command_count = excluded.command_count,
			last_seen = excluded.last_seen,
			updated_at = excluded.updated_at;
	`
	if _, err := tx.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("failed to save user %s: %w", user.JID, err)
	}
	return nil
}

// GetSession retrieves a credential snapshot. Returns nil, nil if not found.
func (s *sqlxStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	var session SessionRecord
	query := s.db.Rebind(`SELECT id, data, updated_at FROM sessions WHERE id = ?;`)
	if err := s.db.GetContext(ctx, &session, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return &session, nil
}

// SaveSession inserts or replaces a credential snapshot.
func (s *sqlxStore) SaveSession(ctx context.Context, session *SessionRecord) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("session must have an id")
	}
	session.UpdatedAt = s.now()
	query := `
		INSERT INTO sessions (id, data, updated_at)
		VALUES (:id, :data, :updated_at)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at;
	`
	if _, err := s.db.NamedExecContext(ctx, query, session); err != nil {
		s.logger.ErrorContext(ctx, "Error saving session", "session_id", session.ID, "error", err)
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}
	s.logger.DebugContext(ctx, "Session saved", "session_id", session.ID, "bytes", len(session.Data))
	return nil
}

// DeleteSession removes a credential snapshot. Deleting a missing session is
// not an error.
func (s *sqlxStore) DeleteSession(ctx context.Context, id string) error {
	query := s.db.Rebind(`DELETE FROM sessions WHERE id = ?;`)
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// GetChatHistory returns up to ChatHistoryLimit turns, oldest first.
func (s *sqlxStore) GetChatHistory(ctx context.Context, chatID string) ([]ChatMessage, error) {
	var history []ChatMessage
	query := s.db.Rebind(`
		SELECT id, chat_id, role, content, timestamp FROM (
			SELECT id, chat_id, role, content, timestamp
			FROM chat_messages
			WHERE chat_id = ?
			ORDER BY id DESC
			LIMIT ?
		) recent
		ORDER BY id ASC;
	`)
	if err := s.db.SelectContext(ctx, &history, query, chatID, ChatHistoryLimit); err != nil {
		return nil, fmt.Errorf("failed to get chat history for %s: %w", chatID, err)
	}
	return history, nil
}

// AppendChatHistory appends turns and trims the chat in one transaction.
func (s *sqlxStore) AppendChatHistory(ctx context.Context, chatID string, turns ...ChatMessage) error {
	if len(turns) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		insert := `
			INSERT INTO chat_messages (chat_id, role, content, timestamp)
			VALUES (:chat_id, :role, :content, :timestamp);
		`
		for i := range turns {
			turn := turns[i]
			turn.ChatID = chatID
			if turn.Timestamp.IsZero() {
				turn.Timestamp = s.now()
			}
			if _, err := tx.NamedExecContext(ctx, insert, turn); err != nil {
				return fmt.Errorf("failed to append chat history for %s: %w", chatID, err)
			}
		}
		trim := tx.Rebind(`
			DELETE FROM chat_messages
			WHERE chat_id = ? AND id NOT IN (
				SELECT id FROM chat_messages WHERE chat_id = ? ORDER BY id DESC LIMIT ?
			);
		`)
		if _, err := tx.ExecContext(ctx, trim, chatID, chatID, ChatHistoryLimit); err != nil {
			return fmt.Errorf("failed to trim chat history for %s: %w", chatID, err)
		}
		return nil
	})
}

// PruneChatHistory trims every chat to ChatHistoryLimit turns.
func (s *sqlxStore) PruneChatHistory(ctx context.Context) (int64, error) {
	query := s.db.Rebind(`
		DELETE FROM chat_messages
		WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY chat_id ORDER BY id DESC) AS rn
				FROM chat_messages
			) ranked
			WHERE rn > ?
		);
	`)
	res, err := s.db.ExecContext(ctx, query, ChatHistoryLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to prune chat history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned chat history: %w", err)
	}
	return n, nil
}

// RunSQLMaintenance runs VACUUM on SQLite and VACUUM ANALYZE on Postgres.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	statement := "VACUUM;"
	if s.dialect == DialectPostgres {
		statement = "VACUUM ANALYZE;"
	}

	s.logger.InfoContext(ctx, "Starting database maintenance", "statement", statement)
	_, err := s.db.ExecContext(ctx, statement)
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Error running database maintenance", "error", err)
		return fmt.Errorf("failed to run database maintenance: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance completed successfully")
	return nil
}

func (s *sqlxStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil
	return nil
}
