package destination

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/rowplane/rowplane/database/sqlite"
	"github.com/rowplane/rowplane/internal/idmap"
	"github.com/rowplane/rowplane/internal/row"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE articles (id INTEGER PRIMARY KEY, title TEXT, tags TEXT, status TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE translations (nid INTEGER, lang TEXT, title TEXT, PRIMARY KEY (nid, lang))`)
	require.NoError(t, err)
	return db
}

func newTable(t *testing.T, db *sql.DB, ids []string, opts map[string]any) Destination {
	t.Helper()
	dest, err := NewRegistry().Build(Config{
		Plugin:  "table",
		IDs:     ids,
		Options: opts,
		DB:      db,
		Dialect: sqlite.NewDriver(),
	})
	require.NoError(t, err)
	return dest
}

func destRow(props map[string]any) *row.Row {
	r := row.New(nil)
	for k, v := range props {
		r.SetDestinationProperty(k, v)
	}
	return r
}

func TestTable_Upsert(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	dest := newTable(t, db, []string{"id"}, map[string]any{"table": "articles"})

	ids, err := dest.Import(ctx, destRow(map[string]any{"id": 7, "title": "First", "tags": []any{"a", "b"}}), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"7"}, ids)

	// a re-import without the key reuses the recorded ids
	ids, err = dest.Import(ctx, destRow(map[string]any{"title": "Second"}), []string{"7"})
	require.NoError(t, err)
	assert.Equal(t, []string{"7"}, ids)

	var title, tags string
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM articles`).Scan(&n))
	require.NoError(t, db.QueryRow(`SELECT title, tags FROM articles WHERE id = 7`).Scan(&title, &tags))
	assert.Equal(t, 1, n)
	assert.Equal(t, "Second", title)
	assert.Equal(t, `["a","b"]`, tags)
}

func TestTable_AllocatedKey(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	dest := newTable(t, db, []string{"id"}, map[string]any{"table": "articles"})

	first, err := dest.Import(ctx, destRow(map[string]any{"title": "a"}), nil)
	require.NoError(t, err)
	second, err := dest.Import(ctx, destRow(map[string]any{"title": "b"}), nil)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	// compound keys are never allocated
	tr := newTable(t, db, []string{"nid", "lang"}, map[string]any{"table": "translations"})
	_, err = tr.Import(ctx, destRow(map[string]any{"nid": 1, "title": "x"}), nil)
	var destErr *Error
	require.ErrorAs(t, err, &destErr)
	assert.Contains(t, destErr.Reason, "missing required field")
}

func TestTable_CompoundKey(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	dest := newTable(t, db, []string{"nid", "lang"}, map[string]any{"table": "translations"})

	ids, err := dest.Import(ctx, destRow(map[string]any{"nid": 1, "lang": "en", "title": "Hello"}), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "en"}, ids)

	require.NoError(t, dest.Rollback(ctx, ids))
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM translations`).Scan(&n))
	assert.Equal(t, 0, n)

	assert.Error(t, dest.Rollback(ctx, []string{"1"}))
}

func TestTable_OverwriteProperties(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	_, err := db.Exec(`INSERT INTO articles (id, title, status) VALUES (3, 'Old', 'draft')`)
	require.NoError(t, err)

	dest := newTable(t, db, []string{"id"}, map[string]any{
		"table":                "articles",
		"overwrite_properties": []any{"title"},
		"rollback_action":      "preserve",
	})
	assert.Equal(t, idmap.RollbackPreserve, dest.RollbackAction())

	ids, err := dest.Import(ctx, destRow(map[string]any{"id": 3, "title": "New", "status": "published"}), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, ids)

	var title, status string
	require.NoError(t, db.QueryRow(`SELECT title, status FROM articles WHERE id = 3`).Scan(&title, &status))
	assert.Equal(t, "New", title)
	assert.Equal(t, "draft", status)

	_, err = dest.Import(ctx, destRow(map[string]any{"id": 99, "title": "Nope"}), nil)
	var destErr *Error
	require.ErrorAs(t, err, &destErr)
	assert.Contains(t, destErr.Reason, "no writable target")
}

func TestTable_RowErrors(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	dest := newTable(t, db, []string{"id"}, map[string]any{"table": "articles"})

	_, err := dest.Import(ctx, destRow(map[string]any{"id": 1, "colour": "red"}), nil)
	var destErr *Error
	require.ErrorAs(t, err, &destErr)
	assert.Contains(t, destErr.Reason, `unknown field "colour"`)

	missing := newTable(t, db, []string{"id"}, map[string]any{"table": "nowhere"})
	_, err = missing.Import(ctx, destRow(map[string]any{"id": 1}), nil)
	require.Error(t, err)
	assert.False(t, errors.As(err, &destErr), "a missing table must not be a row error")
}

func TestTable_Configuration(t *testing.T) {
	db := testDB(t)
	reg := NewRegistry()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"unknown plugin", Config{Plugin: "entity", IDs: []string{"id"}}},
		{"no ids", Config{Plugin: "table", Options: map[string]any{"table": "articles"}}},
		{"no table", Config{Plugin: "table", IDs: []string{"id"}, DB: db, Dialect: sqlite.NewDriver()}},
		{"no db", Config{Plugin: "table", IDs: []string{"id"}, Options: map[string]any{"table": "articles"}}},
		{"bad action", Config{Plugin: "table", IDs: []string{"id"}, DB: db, Dialect: sqlite.NewDriver(),
			Options: map[string]any{"table": "articles", "rollback_action": "archive"}}},
		{"bad overwrite", Config{Plugin: "table", IDs: []string{"id"}, DB: db, Dialect: sqlite.NewDriver(),
			Options: map[string]any{"table": "articles", "overwrite_properties": "title"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Build(tt.cfg)
			assert.Error(t, err)
		})
	}

	assert.Equal(t, []string{"table"}, reg.Names())
}
