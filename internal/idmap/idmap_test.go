package idmap

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/rowplane/rowplane/database/sqlite"
	"github.com/rowplane/rowplane/internal/row"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestMap(t *testing.T, opts Options) *IdentityMap {
	t.Helper()
	if opts.MigrationID == "" {
		opts.MigrationID = "articles"
	}
	if opts.SourceIDFields == nil {
		opts.SourceIDFields = []string{"nid"}
	}
	if opts.DestinationIDFields == nil {
		opts.DestinationIDFields = []string{"id"}
	}
	m, err := New(openTestDB(t), sqlite.NewDriver(), opts)
	require.NoError(t, err)
	require.NoError(t, m.EnsureTables(context.Background()))
	return m
}

func TestHashSourceIDs(t *testing.T) {
	a := HashSourceIDs([]string{"1", "en"})
	assert.Equal(t, a, HashSourceIDs([]string{"1", "en"}), "same ordered values must hash identically")
	assert.NotEqual(t, a, HashSourceIDs([]string{"en", "1"}), "order must matter")
	assert.NotEqual(t, HashSourceIDs([]string{"a,b"}), HashSourceIDs([]string{"a", "b"}))
	assert.Len(t, a, 64)
}

func TestTableNames(t *testing.T) {
	assert.Equal(t, "migrate_map_news_articles", MapTableName("news.Articles"))
	assert.Equal(t, "migrate_message_news_articles", MessageTableName("news-articles"))
}

func TestMapTables(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	dialect := sqlite.NewDriver()

	for _, id := range []string{"tags", "articles"} {
		m, err := New(db, dialect, Options{MigrationID: id, SourceIDFields: []string{"nid"}, DestinationIDFields: []string{"id"}})
		require.NoError(t, err)
		require.NoError(t, m.EnsureTables(ctx))
	}
	_, err := db.ExecContext(ctx, "CREATE TABLE articles (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	tables, err := MapTables(ctx, db, dialect)
	require.NoError(t, err)
	assert.Equal(t, []string{"migrate_map_articles", "migrate_map_tags"}, tables)
}

func TestNew_RequiresKeys(t *testing.T) {
	db := openTestDB(t)
	_, err := New(db, sqlite.NewDriver(), Options{MigrationID: "x", DestinationIDFields: []string{"id"}})
	assert.Error(t, err)
	_, err = New(db, sqlite.NewDriver(), Options{MigrationID: "x", SourceIDFields: []string{"id"}})
	assert.Error(t, err)
	_, err = New(db, sqlite.NewDriver(), Options{SourceIDFields: []string{"id"}, DestinationIDFields: []string{"id"}})
	assert.Error(t, err)
}

func TestSave_IdempotentReplay(t *testing.T) {
	ctx := context.Background()
	m := newTestMap(t, Options{})
	r := row.New(map[string]any{"nid": 7, "title": "Hello"})

	for range 2 {
		require.NoError(t, m.Save(ctx, r, []string{"70"}, StatusImported, RollbackDelete))
	}

	entries, err := m.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, HashSourceIDs([]string{"7"}), entry.SourceIDsHash)
	assert.Equal(t, []string{"7"}, entry.SourceIDs)
	assert.Equal(t, []string{"70"}, entry.DestinationIDs)
	assert.Equal(t, StatusImported, entry.Status)
	assert.Equal(t, RollbackDelete, entry.RollbackAction)
	assert.Equal(t, r.Hash(), entry.ContentHash)
	assert.Nil(t, entry.LastImported)
}

func TestSave_OverwritesExistingEntry(t *testing.T) {
	ctx := context.Background()
	m := newTestMap(t, Options{})

	require.NoError(t, m.Save(ctx, row.New(map[string]any{"nid": 1, "title": "a"}), []string{"10"}, StatusImported, RollbackDelete))

	changed := row.New(map[string]any{"nid": 1, "title": "b"})
	require.NoError(t, m.Save(ctx, changed, nil, StatusFailed, RollbackPreserve))

	entry, err := m.Lookup(ctx, HashSourceIDs([]string{"1"}))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, StatusFailed, entry.Status)
	assert.Equal(t, RollbackPreserve, entry.RollbackAction)
	assert.Equal(t, changed.Hash(), entry.ContentHash)
	// no destination ids given: the previous ones are kept
	assert.Equal(t, []string{"10"}, entry.DestinationIDs)
}

func TestSave_ArityMismatch(t *testing.T) {
	ctx := context.Background()
	m := newTestMap(t, Options{DestinationIDFields: []string{"id", "revision", "langcode"}})
	r := row.New(map[string]any{"nid": 3})

	err := m.Save(ctx, r, []string{"30", "1"}, StatusImported, RollbackDelete)

	var perr *MapPersistenceError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Malformed)

	entries, err := m.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	hash := HashSourceIDs([]string{"3"})
	messages, err := m.Messages().Query(ctx, hash)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, LevelError, messages[0].Level)
}

func TestSave_MissingSourceID(t *testing.T) {
	ctx := context.Background()
	m := newTestMap(t, Options{SourceIDFields: []string{"nid", "langcode"}})

	err := m.Save(ctx, row.New(map[string]any{"nid": 3, "langcode": nil}), []string{"30"}, StatusImported, RollbackDelete)

	var perr *MapPersistenceError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Malformed)

	var missing *row.MissingIDError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "langcode", missing.Field)

	entries, err := m.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	messages, err := m.Messages().Query(ctx, "")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0].Text, "langcode")
}

func TestSave_StorageFailureIsNotMalformed(t *testing.T) {
	ctx := context.Background()
	m, err := New(openTestDB(t), sqlite.NewDriver(), Options{
		MigrationID:         "never_created",
		SourceIDFields:      []string{"nid"},
		DestinationIDFields: []string{"id"},
	})
	require.NoError(t, err)

	err = m.Save(ctx, row.New(map[string]any{"nid": 1}), []string{"1"}, StatusImported, RollbackDelete)

	var perr *MapPersistenceError
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.Malformed)
}

func TestSave_TrackLastImported(t *testing.T) {
	ctx := context.Background()
	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := newTestMap(t, Options{TrackLastImported: true, Now: func() time.Time { return stamp }})

	require.NoError(t, m.Save(ctx, row.New(map[string]any{"nid": 1}), []string{"1"}, StatusImported, RollbackDelete))

	entry, err := m.Lookup(ctx, HashSourceIDs([]string{"1"}))
	require.NoError(t, err)
	require.NotNil(t, entry.LastImported)
	assert.True(t, stamp.Equal(*entry.LastImported))
}

func TestSave_StoreRowData(t *testing.T) {
	ctx := context.Background()
	m := newTestMap(t, Options{StoreRowData: true})
	r := row.New(map[string]any{"nid": 1, "title": "Hi"})
	r.SetDestinationProperty("label", "HI")

	require.NoError(t, m.Save(ctx, r, []string{"1"}, StatusImported, RollbackDelete))

	entry, err := m.Lookup(ctx, HashSourceIDs([]string{"1"}))
	require.NoError(t, err)

	var source, dest map[string]any
	require.NoError(t, json.Unmarshal(entry.SourceData, &source))
	require.NoError(t, json.Unmarshal(entry.DestinationData, &dest))
	assert.Equal(t, "Hi", source["title"])
	assert.Equal(t, "HI", dest["label"])

	dropped, err := m.DropRowDataColumns(ctx)
	require.NoError(t, err)
	assert.Equal(t, RowDataColumns, dropped)

	dropped, err = m.DropRowDataColumns(ctx)
	require.NoError(t, err)
	assert.Empty(t, dropped)
}

func TestEnsureTables_AddsRowDataColumns(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	opts := Options{MigrationID: "pages", SourceIDFields: []string{"nid"}, DestinationIDFields: []string{"id"}}

	plain, err := New(db, sqlite.NewDriver(), opts)
	require.NoError(t, err)
	require.NoError(t, plain.EnsureTables(ctx))

	opts.StoreRowData = true
	withData, err := New(db, sqlite.NewDriver(), opts)
	require.NoError(t, err)
	require.NoError(t, withData.EnsureTables(ctx))
	// a second call finds the columns already present
	require.NoError(t, withData.EnsureTables(ctx))

	names, err := withData.columnNames(ctx)
	require.NoError(t, err)
	for _, c := range RowDataColumns {
		assert.True(t, names[c], "missing column %s", c)
	}
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	m := newTestMap(t, Options{SourceIDFields: []string{"nid", "langcode"}, DestinationIDFields: []string{"id", "lang"}})

	entry, err := m.Lookup(ctx, HashSourceIDs([]string{"1", "en"}))
	require.NoError(t, err)
	assert.Nil(t, entry)

	require.NoError(t, m.Save(ctx, row.New(map[string]any{"nid": 1, "langcode": "en"}), []string{"10", "en"}, StatusImported, RollbackDelete))

	ids, err := m.LookupDestinationIDs(ctx, []string{"1", "en"})
	require.NoError(t, err)
	assert.Equal(t, []string{"10", "en"}, ids)

	ids, err = m.LookupDestinationIDs(ctx, []string{"2", "en"})
	require.NoError(t, err)
	assert.Nil(t, ids)

	_, err = m.LookupDestinationIDs(ctx, []string{"1"})
	assert.Error(t, err)
}

func TestStatusCountsAndUpdate(t *testing.T) {
	ctx := context.Background()
	m := newTestMap(t, Options{})

	require.NoError(t, m.Save(ctx, row.New(map[string]any{"nid": 1}), []string{"1"}, StatusImported, RollbackDelete))
	require.NoError(t, m.Save(ctx, row.New(map[string]any{"nid": 2}), nil, StatusIgnored, RollbackDelete))
	require.NoError(t, m.Save(ctx, row.New(map[string]any{"nid": 3}), nil, StatusFailed, RollbackDelete))

	counts, err := m.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[Status]int{StatusImported: 1, StatusNeedsUpdate: 0, StatusIgnored: 1, StatusFailed: 1}, counts)

	n, err := m.MarkAllNeedsUpdate(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	counts, err = m.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[StatusNeedsUpdate])

	require.NoError(t, m.Delete(ctx, HashSourceIDs([]string{"2"})))
	entries, err := m.Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSave_ConcurrentWritersKeepOneEntry(t *testing.T) {
	ctx := context.Background()
	m := newTestMap(t, Options{})
	r := row.New(map[string]any{"nid": 42})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.Save(ctx, r, []string{"420"}, StatusImported, RollbackDelete)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	entries, err := m.Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestParseHelpers(t *testing.T) {
	action, err := ParseRollbackAction("preserve")
	require.NoError(t, err)
	assert.Equal(t, RollbackPreserve, action)

	action, err = ParseRollbackAction("")
	require.NoError(t, err)
	assert.Equal(t, RollbackDelete, action)

	_, err = ParseRollbackAction("archive")
	assert.Error(t, err)

	level, err := ParseLevel("warning")
	require.NoError(t, err)
	assert.Equal(t, LevelWarning, level)
	assert.Equal(t, "needs-update", StatusNeedsUpdate.String())
}
