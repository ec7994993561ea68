// Package idmap persists the correspondence between source and destination
// identities of a migration, together with its message log.
package idmap

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rowplane/rowplane/database"
	"github.com/rowplane/rowplane/internal/logging"
	"github.com/rowplane/rowplane/internal/row"
)

const (
	sourceIDsHashColumn   = "source_ids_hash"
	statusColumn          = "source_row_status"
	rollbackActionColumn  = "rollback_action"
	contentHashColumn     = "hash"
	lastImportedColumn    = "last_imported"
	sourceDataColumn      = "source_data"
	destinationDataColumn = "destination_data"
)

// RowDataColumns are the optional diagnostic columns holding the JSON encoded
// source and destination properties of the last save.
var RowDataColumns = []string{sourceDataColumn, destinationDataColumn}

// HashSourceIDs returns the source ids hash of an ordered list of id values.
// The values are encoded as a JSON array so that ("a,b") and ("a", "b") can
// not collide.
func HashSourceIDs(values []string) string {
	data, _ := json.Marshal(values)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Options configure an IdentityMap.
type Options struct {
	MigrationID         string
	SourceIDFields      []string
	DestinationIDFields []string
	TrackLastImported   bool
	StoreRowData        bool
	Logger              *logging.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// IdentityMap is the SQL backed map of one migration.
type IdentityMap struct {
	db       *sql.DB
	dialect  database.Driver
	opts     Options
	table    string
	messages *MessageLog
	log      *logging.Logger
}

// MapTableName returns the map table of a migration.
func MapTableName(migrationID string) string {
	return "migrate_map_" + tableSuffix(migrationID)
}

// MessageTableName returns the message table of a migration.
func MessageTableName(migrationID string) string {
	return "migrate_message_" + tableSuffix(migrationID)
}

// MapTables returns the map tables present in the database, sorted.
func MapTables(ctx context.Context, db *sql.DB, dialect database.Driver) ([]string, error) {
	tables, err := dialect.GetTables(ctx, db)
	if err != nil {
		return nil, err
	}
	var maps []string
	for _, name := range tables {
		if strings.HasPrefix(name, "migrate_map_") {
			maps = append(maps, name)
		}
	}
	return maps, nil
}

func tableSuffix(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, id)
}

// New returns the identity map of a migration. Tables are not touched until
// EnsureTables is called.
func New(db *sql.DB, dialect database.Driver, opts Options) (*IdentityMap, error) {
	if opts.MigrationID == "" {
		return nil, errors.New("identity map requires a migration id")
	}
	if len(opts.SourceIDFields) == 0 {
		return nil, fmt.Errorf("migration %s declares no source id fields", opts.MigrationID)
	}
	if len(opts.DestinationIDFields) == 0 {
		return nil, fmt.Errorf("migration %s declares no destination id fields", opts.MigrationID)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &IdentityMap{
		db:       db,
		dialect:  dialect,
		opts:     opts,
		table:    MapTableName(opts.MigrationID),
		messages: NewMessageLog(db, dialect, MessageTableName(opts.MigrationID)),
		log:      logging.OrDiscard(opts.Logger),
	}, nil
}

// MigrationID returns the id of the migration the map belongs to.
func (m *IdentityMap) MigrationID() string {
	return m.opts.MigrationID
}

// Table returns the map table name.
func (m *IdentityMap) Table() string {
	return m.table
}

// Messages returns the message log of the migration.
func (m *IdentityMap) Messages() *MessageLog {
	return m.messages
}

// ForRun returns a copy of the map whose messages are tagged with runID.
func (m *IdentityMap) ForRun(runID string) *IdentityMap {
	c := *m
	c.messages = m.messages.ForRun(runID)
	return &c
}

// TableExists reports whether the map table has been created.
func (m *IdentityMap) TableExists(ctx context.Context) (bool, error) {
	return m.dialect.TableExists(ctx, m.db, m.table)
}

// EnsureTables creates the map and message tables. When the map stores row
// data, the diagnostic columns are added to existing tables that lack them.
func (m *IdentityMap) EnsureTables(ctx context.Context) error {
	createSQL, _ := m.dialect.CreateTable(m.tableDefinition())
	if _, err := m.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create map table %s: %w", m.table, err)
	}

	if m.opts.StoreRowData {
		existing, err := m.columnNames(ctx)
		if err != nil {
			return err
		}
		for _, name := range RowDataColumns {
			if existing[name] {
				continue
			}
			addSQL, desc := m.dialect.AddColumn(m.table, database.Column{Name: name, Type: database.TypeJSON, Nullable: true})
			m.log.Debug("%s", desc)
			if _, err := m.db.ExecContext(ctx, addSQL); err != nil {
				return fmt.Errorf("failed to add %s to %s: %w", name, m.table, err)
			}
		}
	}

	return m.messages.EnsureTable(ctx)
}

// DropRowDataColumns removes the diagnostic row data columns from the map
// table, if present.
func (m *IdentityMap) DropRowDataColumns(ctx context.Context) ([]string, error) {
	existing, err := m.columnNames(ctx)
	if err != nil {
		return nil, err
	}

	var dropped []string
	for _, name := range RowDataColumns {
		if !existing[name] {
			continue
		}
		dropSQL, desc := m.dialect.DropColumn(m.table, name)
		m.log.Debug("%s", desc)
		if _, err := m.db.ExecContext(ctx, dropSQL); err != nil {
			return dropped, fmt.Errorf("failed to drop %s from %s: %w", name, m.table, err)
		}
		dropped = append(dropped, name)
	}
	return dropped, nil
}

func (m *IdentityMap) columnNames(ctx context.Context) (map[string]bool, error) {
	columns, err := m.dialect.GetColumns(ctx, m.db, m.table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", m.table, err)
	}
	names := make(map[string]bool, len(columns))
	for _, c := range columns {
		names[c.Name] = true
	}
	return names, nil
}

func (m *IdentityMap) tableDefinition() database.Table {
	zero := "0"
	empty := "''"

	columns := []database.Column{
		{Name: sourceIDsHashColumn, Type: database.TypeText, IsPrimaryKey: true},
	}
	for i := range m.opts.SourceIDFields {
		columns = append(columns, database.Column{Name: sourceIDColumn(i), Type: database.TypeText})
	}
	for i := range m.opts.DestinationIDFields {
		columns = append(columns, database.Column{Name: destIDColumn(i), Type: database.TypeText, Nullable: true})
	}
	columns = append(columns,
		database.Column{Name: statusColumn, Type: database.TypeInteger, Default: &zero},
		database.Column{Name: rollbackActionColumn, Type: database.TypeInteger, Default: &zero},
		database.Column{Name: contentHashColumn, Type: database.TypeText, Default: &empty},
		database.Column{Name: lastImportedColumn, Type: database.TypeTimestamp, Nullable: true},
	)
	if m.opts.StoreRowData {
		for _, name := range RowDataColumns {
			columns = append(columns, database.Column{Name: name, Type: database.TypeJSON, Nullable: true})
		}
	}

	return database.Table{Name: m.table, Columns: columns}
}

func sourceIDColumn(i int) string { return "sourceid" + strconv.Itoa(i+1) }
func destIDColumn(i int) string   { return "destid" + strconv.Itoa(i+1) }

// Save records the outcome of processing r. destinationIDs may be empty when
// the row produced no destination entity (skipped or failed rows); existing
// destination ids are then left as they are.
//
// A row without a complete source key, or a destination key of the wrong
// arity, is not written: an error message is logged and a malformed
// *MapPersistenceError returned. Storage failures are returned as a
// non-malformed *MapPersistenceError.
func (m *IdentityMap) Save(ctx context.Context, r *row.Row, destinationIDs []string, status Status, action RollbackAction) error {
	sourceIDs, err := r.SourceIDValues(m.opts.SourceIDFields)
	if err != nil {
		text := fmt.Sprintf("did not save to map table: %v", err)
		return m.malformed(ctx, "", text, err)
	}
	hash := HashSourceIDs(sourceIDs)

	if len(destinationIDs) > 0 && len(destinationIDs) != len(m.opts.DestinationIDFields) {
		err := fmt.Errorf("got %d destination id values, %d declared", len(destinationIDs), len(m.opts.DestinationIDFields))
		text := fmt.Sprintf("could not save to map table: %v", err)
		return m.malformed(ctx, hash, text, err)
	}

	columns := []string{sourceIDsHashColumn}
	values := []any{hash}
	for i, id := range sourceIDs {
		columns = append(columns, sourceIDColumn(i))
		values = append(values, id)
	}
	for i, id := range destinationIDs {
		columns = append(columns, destIDColumn(i))
		values = append(values, id)
	}
	columns = append(columns, statusColumn, rollbackActionColumn, contentHashColumn)
	values = append(values, int(status), int(action), r.Hash())

	if m.opts.TrackLastImported {
		columns = append(columns, lastImportedColumn)
		values = append(values, m.opts.Now().Unix())
	}

	if m.opts.StoreRowData {
		sourceData, err := json.Marshal(r.Source())
		if err != nil {
			return &MapPersistenceError{SourceIDsHash: hash, Err: fmt.Errorf("encode source data: %w", err)}
		}
		destinationData, err := json.Marshal(r.Destination())
		if err != nil {
			return &MapPersistenceError{SourceIDsHash: hash, Err: fmt.Errorf("encode destination data: %w", err)}
		}
		columns = append(columns, sourceDataColumn, destinationDataColumn)
		values = append(values, string(sourceData), string(destinationData))
	}

	stmt := m.dialect.Upsert(m.table, columns, []string{sourceIDsHashColumn})
	if _, err := m.db.ExecContext(ctx, stmt, values...); err != nil {
		return &MapPersistenceError{SourceIDsHash: hash, Err: err}
	}
	return nil
}

func (m *IdentityMap) malformed(ctx context.Context, hash, text string, cause error) error {
	m.log.Error("%s: %s", m.opts.MigrationID, text)
	if err := m.messages.Append(ctx, hash, LevelError, text); err != nil {
		return &MapPersistenceError{SourceIDsHash: hash, Err: err}
	}
	return &MapPersistenceError{SourceIDsHash: hash, Malformed: true, Err: cause}
}

// Lookup returns the entry stored under hash, or nil when there is none.
func (m *IdentityMap) Lookup(ctx context.Context, hash string) (*Entry, error) {
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		m.selectList(), m.dialect.QuoteIdentifier(m.table),
		m.dialect.QuoteIdentifier(sourceIDsHashColumn), m.dialect.ParameterPlaceholder(1))

	rows, err := m.db.QueryContext(ctx, stmt, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s in %s: %w", hash, m.table, err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, rows.Err()
	}
	entry, err := m.scanEntry(rows)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// LookupDestinationIDs returns the destination ids recorded for a source
// identity, or nil when the row was never imported.
func (m *IdentityMap) LookupDestinationIDs(ctx context.Context, sourceIDs []string) ([]string, error) {
	if len(sourceIDs) != len(m.opts.SourceIDFields) {
		return nil, fmt.Errorf("migration %s is keyed on %d source ids, got %d",
			m.opts.MigrationID, len(m.opts.SourceIDFields), len(sourceIDs))
	}
	entry, err := m.Lookup(ctx, HashSourceIDs(sourceIDs))
	if err != nil || entry == nil {
		return nil, err
	}
	return entry.DestinationIDs, nil
}

// Entries returns every entry ordered by hash.
func (m *IdentityMap) Entries(ctx context.Context) ([]Entry, error) {
	stmt := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		m.selectList(), m.dialect.QuoteIdentifier(m.table), m.dialect.QuoteIdentifier(sourceIDsHashColumn))

	rows, err := m.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", m.table, err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		entry, err := m.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// Delete drops the entry stored under hash.
func (m *IdentityMap) Delete(ctx context.Context, hash string) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		m.dialect.QuoteIdentifier(m.table), m.dialect.QuoteIdentifier(sourceIDsHashColumn), m.dialect.ParameterPlaceholder(1))
	if _, err := m.db.ExecContext(ctx, stmt, hash); err != nil {
		return fmt.Errorf("failed to delete %s from %s: %w", hash, m.table, err)
	}
	return nil
}

// MarkAllNeedsUpdate flags every entry for reprocessing.
func (m *IdentityMap) MarkAllNeedsUpdate(ctx context.Context) (int64, error) {
	stmt := fmt.Sprintf("UPDATE %s SET %s = %s",
		m.dialect.QuoteIdentifier(m.table), m.dialect.QuoteIdentifier(statusColumn), m.dialect.ParameterPlaceholder(1))
	res, err := m.db.ExecContext(ctx, stmt, int(StatusNeedsUpdate))
	if err != nil {
		return 0, fmt.Errorf("failed to flag %s for update: %w", m.table, err)
	}
	return res.RowsAffected()
}

// StatusCounts returns the number of entries per status.
func (m *IdentityMap) StatusCounts(ctx context.Context) (map[Status]int, error) {
	q := m.dialect.QuoteIdentifier
	stmt := fmt.Sprintf("SELECT %s, COUNT(*) FROM %s GROUP BY %s", q(statusColumn), q(m.table), q(statusColumn))

	rows, err := m.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", m.table, err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[Status]int, len(Statuses))
	for _, s := range Statuses {
		counts[s] = 0
	}
	for rows.Next() {
		var status, n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

func (m *IdentityMap) selectList() string {
	q := m.dialect.QuoteIdentifier
	cols := []string{q(sourceIDsHashColumn)}
	for i := range m.opts.SourceIDFields {
		cols = append(cols, q(sourceIDColumn(i)))
	}
	for i := range m.opts.DestinationIDFields {
		cols = append(cols, q(destIDColumn(i)))
	}
	cols = append(cols, q(statusColumn), q(rollbackActionColumn), q(contentHashColumn), q(lastImportedColumn))
	if m.opts.StoreRowData {
		cols = append(cols, q(sourceDataColumn), q(destinationDataColumn))
	}
	return strings.Join(cols, ", ")
}

func (m *IdentityMap) scanEntry(rows *sql.Rows) (*Entry, error) {
	var (
		entry        Entry
		sourceIDs    = make([]sql.NullString, len(m.opts.SourceIDFields))
		destIDs      = make([]sql.NullString, len(m.opts.DestinationIDFields))
		status       int
		action       int
		lastImported sql.NullInt64
		sourceData   sql.NullString
		destData     sql.NullString
	)

	targets := []any{&entry.SourceIDsHash}
	for i := range sourceIDs {
		targets = append(targets, &sourceIDs[i])
	}
	for i := range destIDs {
		targets = append(targets, &destIDs[i])
	}
	targets = append(targets, &status, &action, &entry.ContentHash, &lastImported)
	if m.opts.StoreRowData {
		targets = append(targets, &sourceData, &destData)
	}

	if err := rows.Scan(targets...); err != nil {
		return nil, fmt.Errorf("failed to scan map entry: %w", err)
	}

	for _, id := range sourceIDs {
		entry.SourceIDs = append(entry.SourceIDs, id.String)
	}
	// destination ids are all-or-nothing
	if destIDs[0].Valid {
		for _, id := range destIDs {
			entry.DestinationIDs = append(entry.DestinationIDs, id.String)
		}
	}
	entry.Status = Status(status)
	entry.RollbackAction = RollbackAction(action)
	if lastImported.Valid {
		t := time.Unix(lastImported.Int64, 0)
		entry.LastImported = &t
	}
	if sourceData.Valid {
		entry.SourceData = json.RawMessage(sourceData.String)
	}
	if destData.Valid {
		entry.DestinationData = json.RawMessage(destData.String)
	}
	return &entry, nil
}
