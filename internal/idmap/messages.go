package idmap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rowplane/rowplane/database"
)

// MessageLog is the append-only log of processing messages of one migration,
// keyed by source ids hash.
type MessageLog struct {
	db      *sql.DB
	dialect database.Driver
	table   string
	runID   string
}

// NewMessageLog returns the message log stored in table.
func NewMessageLog(db *sql.DB, dialect database.Driver, table string) *MessageLog {
	return &MessageLog{db: db, dialect: dialect, table: table}
}

// Table returns the message table name.
func (l *MessageLog) Table() string {
	return l.table
}

// ForRun returns a copy of the log that tags every appended message with runID.
func (l *MessageLog) ForRun(runID string) *MessageLog {
	c := *l
	c.runID = runID
	return &c
}

// EnsureTable creates the message table and its hash index.
func (l *MessageLog) EnsureTable(ctx context.Context) error {
	createSQL, _ := l.dialect.CreateTable(database.Table{
		Name: l.table,
		Columns: []database.Column{
			{Name: "msgid", Type: database.TypeInteger, IsPrimaryKey: true, AutoIncrement: true},
			{Name: "source_ids_hash", Type: database.TypeText},
			{Name: "level", Type: database.TypeInteger},
			{Name: "message", Type: database.TypeText},
			{Name: "run_id", Type: database.TypeText, Nullable: true},
		},
	})
	if _, err := l.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create message table %s: %w", l.table, err)
	}

	indexSQL, _ := l.dialect.AddIndex(l.table, database.Index{
		Name:    l.table + "_source_ids_hash",
		Columns: []string{"source_ids_hash"},
	})
	if _, err := l.db.ExecContext(ctx, indexSQL); err != nil {
		return fmt.Errorf("failed to index message table %s: %w", l.table, err)
	}
	return nil
}

// Append records a message for a source identity.
func (l *MessageLog) Append(ctx context.Context, sourceIDsHash string, level Level, text string) error {
	q := l.dialect.QuoteIdentifier
	p := l.dialect.ParameterPlaceholder
	stmt := fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s) VALUES (%s, %s, %s, %s)",
		q(l.table), q("source_ids_hash"), q("level"), q("message"), q("run_id"),
		p(1), p(2), p(3), p(4))

	var runID any
	if l.runID != "" {
		runID = l.runID
	}
	if _, err := l.db.ExecContext(ctx, stmt, sourceIDsHash, int(level), text, runID); err != nil {
		return fmt.Errorf("failed to append message to %s: %w", l.table, err)
	}
	return nil
}

// Query returns the messages of one source identity in insertion order.
func (l *MessageLog) Query(ctx context.Context, sourceIDsHash string) ([]Message, error) {
	return l.selectMessages(ctx, "source_ids_hash", sourceIDsHash)
}

// All returns every message at least as severe as maxLevel, in insertion
// order.
func (l *MessageLog) All(ctx context.Context, maxLevel Level) ([]Message, error) {
	return l.selectMessages(ctx, "level", int(maxLevel))
}

// Count returns the number of logged messages.
func (l *MessageLog) Count(ctx context.Context) (int, error) {
	var n int
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s", l.dialect.QuoteIdentifier(l.table))
	if err := l.db.QueryRowContext(ctx, stmt).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count messages in %s: %w", l.table, err)
	}
	return n, nil
}

func (l *MessageLog) selectMessages(ctx context.Context, column string, arg any) ([]Message, error) {
	q := l.dialect.QuoteIdentifier
	op := "="
	if column == "level" {
		op = "<="
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s %s %s ORDER BY %s",
		strings.Join([]string{q("msgid"), q("source_ids_hash"), q("level"), q("message"), q("run_id")}, ", "),
		q(l.table), q(column), op, l.dialect.ParameterPlaceholder(1), q("msgid"))

	rows, err := l.db.QueryContext(ctx, stmt, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages in %s: %w", l.table, err)
	}
	defer func() { _ = rows.Close() }()

	var messages []Message
	for rows.Next() {
		var m Message
		var level int
		var runID sql.NullString
		if err := rows.Scan(&m.ID, &m.SourceIDsHash, &level, &m.Text, &runID); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Level = Level(level)
		m.RunID = runID.String
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
