package source

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	_ "modernc.org/sqlite"

	"github.com/rowplane/rowplane/database/sqlite"
	"github.com/rowplane/rowplane/internal/row"
)

func collect(t *testing.T, s Source) []*row.Row {
	t.Helper()
	var rows []*row.Row
	for r, err := range s.Rows(context.Background()) {
		require.NoError(t, err)
		rows = append(rows, r)
	}
	return rows
}

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0644))
}

func TestCSV(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "articles.csv", []byte("\ufeffnid;title;status\n1;Hello;1\n2;\"Semi;colon\";0\n"))

	src, err := NewRegistry().Build(Config{
		Plugin:  "csv",
		IDs:     []string{"nid"},
		BaseDir: dir,
		Options: map[string]any{"path": "articles.csv", "delimiter": ";"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"nid"}, src.IDs())

	rows := collect(t, src)
	require.Len(t, rows, 2)
	assert.Equal(t, map[string]any{"nid": "1", "title": "Hello", "status": "1"}, rows[0].Source())
	assert.Equal(t, "Semi;colon", rows[1].Source()["title"])

	// restartable
	assert.Len(t, collect(t, src), 2)
}

func TestDerive(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "menu.csv", []byte("mlid,link_path,parent_path\n1,node/12,\n2,node/13,node/12\n3,<front>,node/12\n"))

	src, err := NewRegistry().Build(Config{
		Plugin:  "csv",
		IDs:     []string{"mlid"},
		BaseDir: dir,
		Options: map[string]any{
			"path": "menu.csv",
			"derive": map[string]any{
				"nid":        map[string]any{"from": "link_path", "pattern": `^node/(\d+)$`},
				"parent_nid": map[string]any{"from": "parent_path", "pattern": `^node/(\d+)$`},
				"kind":       map[string]any{"from": "link_path", "pattern": `^[a-z]+`},
			},
		},
	})
	require.NoError(t, err)

	rows := collect(t, src)
	require.Len(t, rows, 3)
	assert.Equal(t, "12", rows[0].Source()["nid"])
	assert.Nil(t, rows[0].Source()["parent_nid"])
	assert.Equal(t, "node", rows[0].Source()["kind"])
	assert.Equal(t, "13", rows[1].Source()["nid"])
	assert.Equal(t, "12", rows[1].Source()["parent_nid"])
	assert.Nil(t, rows[2].Source()["nid"])
	assert.Nil(t, rows[2].Source()["kind"])

	// derived properties can form the key
	src, err = NewRegistry().Build(Config{
		Plugin:  "csv",
		IDs:     []string{"nid"},
		BaseDir: dir,
		Options: map[string]any{
			"path":   "menu.csv",
			"derive": map[string]any{"nid": map[string]any{"from": "link_path", "pattern": `^node/(\d+)$`}},
		},
	})
	require.NoError(t, err)
	ids, err := collect(t, src)[1].SourceIDValues([]string{"nid"})
	require.NoError(t, err)
	assert.Equal(t, []string{"13"}, ids)

	for _, derive := range []any{
		"nid",
		map[string]any{"nid": "link_path"},
		map[string]any{"nid": map[string]any{"pattern": "x"}},
		map[string]any{"nid": map[string]any{"from": "link_path"}},
		map[string]any{"nid": map[string]any{"from": "link_path", "pattern": "("}},
	} {
		_, err := NewRegistry().Build(Config{
			Plugin: "csv", IDs: []string{"mlid"}, BaseDir: dir,
			Options: map[string]any{"path": "menu.csv", "derive": derive},
		})
		assert.Error(t, err, "%v", derive)
	}
}

func TestSQL_StablePages(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE term (tid INTEGER, lang TEXT, name TEXT)`)
	require.NoError(t, err)
	for _, rec := range [][]any{{3, "en", "c"}, {1, "fr", "a2"}, {2, "en", "b"}, {1, "en", "a1"}, {4, "en", "d"}} {
		_, err = db.Exec(`INSERT INTO term (tid, lang, name) VALUES (?, ?, ?)`, rec...)
		require.NoError(t, err)
	}

	cfg := Config{
		IDs:     []string{"tid", "lang"},
		DB:      db,
		Dialect: sqlite.NewDriver(),
		Options: map[string]any{"query": "SELECT tid, lang, name FROM term", "batch_size": 2},
	}
	src, err := NewSQL(cfg)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM (SELECT tid, lang, name FROM term) src ORDER BY src."tid", src."lang" LIMIT ? OFFSET ?`,
		src.(*SQL).pagedQuery(sqlite.NewDriver()))

	var names []any
	for _, r := range collect(t, src) {
		names = append(names, r.Source()["name"])
	}
	assert.Equal(t, []any{"a1", "a2", "b", "c", "d"}, names)

	cfg.Options["order_by"] = []any{"name"}
	src, err = NewSQL(cfg)
	require.NoError(t, err)
	assert.Contains(t, src.(*SQL).pagedQuery(sqlite.NewDriver()), `ORDER BY src."name" LIMIT`)
}

func TestCSV_Encoding(t *testing.T) {
	dir := t.TempDir()
	encoded, err := charmap.Windows1252.NewEncoder().String("id,name\n1,Crème\n")
	require.NoError(t, err)
	writeFile(t, dir, "latin.csv", []byte(encoded))

	src, err := NewCSV(Config{
		IDs:     []string{"id"},
		BaseDir: dir,
		Options: map[string]any{"path": "latin.csv", "encoding": "windows-1252"},
	})
	require.NoError(t, err)

	rows := collect(t, src)
	require.Len(t, rows, 1)
	assert.Equal(t, "Crème", rows[0].Source()["name"])
}

func TestCSV_Errors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "noid.csv", []byte("title\nx\n"))

	_, err := NewCSV(Config{IDs: []string{"id"}, Options: map[string]any{}})
	assert.Error(t, err, "path is required")

	_, err = NewCSV(Config{IDs: []string{"id"}, Options: map[string]any{"path": "x.csv", "delimiter": "::"}})
	assert.Error(t, err)

	_, err = NewCSV(Config{IDs: []string{"id"}, Options: map[string]any{"path": "x.csv", "encoding": "klingon"}})
	assert.Error(t, err)

	src, err := NewCSV(Config{IDs: []string{"id"}, BaseDir: dir, Options: map[string]any{"path": "noid.csv"}})
	require.NoError(t, err)
	for _, err := range src.Rows(context.Background()) {
		assert.ErrorContains(t, err, `no id column "id"`)
	}

	_, err = NewRegistry().Build(Config{Plugin: "xml", IDs: []string{"id"}})
	assert.Error(t, err)
	_, err = NewRegistry().Build(Config{Plugin: "csv"})
	assert.Error(t, err)
}

func TestSQL(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE node (nid INTEGER PRIMARY KEY, title TEXT)`)
	require.NoError(t, err)
	for i, title := range []string{"a", "b", "c", "d", "e"} {
		_, err = db.Exec(`INSERT INTO node (nid, title) VALUES (?, ?)`, i+1, title)
		require.NoError(t, err)
	}

	src, err := NewSQL(Config{
		IDs:     []string{"nid"},
		DB:      db,
		Dialect: sqlite.NewDriver(),
		Options: map[string]any{"query": "SELECT nid, title FROM node ORDER BY nid;", "batch_size": 2},
	})
	require.NoError(t, err)

	var titles []any
	for r, err := range src.Rows(context.Background()) {
		require.NoError(t, err)
		titles = append(titles, r.Source()["title"])

		// the connection must be usable between rows
		_, err = db.Exec(`SELECT 1`)
		require.NoError(t, err)
	}
	assert.Equal(t, []any{"a", "b", "c", "d", "e"}, titles)

	_, err = NewSQL(Config{IDs: []string{"nid"}, DB: db, Options: map[string]any{"query": "SELECT 1", "order_by": 3}})
	assert.Error(t, err)
	_, err = NewSQL(Config{IDs: []string{"nid"}, DB: db, Options: map[string]any{}})
	assert.Error(t, err)
	_, err = NewSQL(Config{IDs: []string{"nid"}, Options: map[string]any{"query": "SELECT 1"}})
	assert.Error(t, err)
}
