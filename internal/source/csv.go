package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/rowplane/rowplane/internal/row"
)

// CSV reads rows from a delimited text file with a header line.
//
//	source:
//	  plugin: csv
//	  ids: [nid]
//	  path: data/articles.csv
//	  delimiter: ";"
//	  encoding: windows-1252
type CSV struct {
	ids       []string
	path      string
	delimiter rune
	encoding  encoding.Encoding
}

// NewCSV builds a CSV source.
func NewCSV(cfg Config) (Source, error) {
	path, err := stringOption(cfg.Options, "path")
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, fmt.Errorf("csv source requires a path")
	}
	if !filepath.IsAbs(path) && cfg.BaseDir != "" {
		path = filepath.Join(cfg.BaseDir, path)
	}

	s := &CSV{ids: cfg.IDs, path: path, delimiter: ',', encoding: unicode.UTF8}

	delimiter, err := stringOption(cfg.Options, "delimiter")
	if err != nil {
		return nil, err
	}
	if delimiter != "" {
		r, size := utf8.DecodeRuneInString(delimiter)
		if size != len(delimiter) || r == '"' || r == '\n' {
			return nil, fmt.Errorf("csv delimiter must be a single character, got %q", delimiter)
		}
		s.delimiter = r
	}

	name, err := stringOption(cfg.Options, "encoding")
	if err != nil {
		return nil, err
	}
	if name != "" {
		enc, err := htmlindex.Get(name)
		if err != nil {
			return nil, fmt.Errorf("unknown csv encoding %q: %w", name, err)
		}
		s.encoding = enc
	}

	return s, nil
}

// IDs implements Source.
func (s *CSV) IDs() []string {
	return s.ids
}

// Rows implements Source. Every column of the header becomes a source
// property holding the cell's text.
func (s *CSV) Rows(ctx context.Context) iter.Seq2[*row.Row, error] {
	return func(yield func(*row.Row, error) bool) {
		f, err := os.Open(s.path)
		if err != nil {
			yield(nil, fmt.Errorf("failed to open %s: %w", s.path, err))
			return
		}
		defer func() { _ = f.Close() }()

		reader := csv.NewReader(transform.NewReader(f, s.encoding.NewDecoder()))
		reader.Comma = s.delimiter

		header, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			yield(nil, fmt.Errorf("failed to read header of %s: %w", s.path, err))
			return
		}
		for i, h := range header {
			header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		}
		for _, id := range s.ids {
			if !slices.Contains(header, id) {
				yield(nil, fmt.Errorf("%s has no id column %q", s.path, id))
				return
			}
		}

		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("failed to read %s: %w", s.path, err))
				return
			}

			props := make(map[string]any, len(header))
			for i, name := range header {
				props[name] = record[i]
			}
			if !yield(row.New(props), nil) {
				return
			}
		}
	}
}
