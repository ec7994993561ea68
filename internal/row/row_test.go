package row

import (
	"errors"
	"testing"
)

func TestSourceProperty_NestedPath(t *testing.T) {
	r := New(map[string]any{
		"title": "Hello",
		"body": []any{
			map[string]any{"value": "<p>text</p>", "format": "full_html"},
		},
	})

	tests := []struct {
		name   string
		path   string
		want   any
		wantOK bool
	}{
		{"top level", "title", "Hello", true},
		{"nested", "body/0/value", "<p>text</p>", true},
		{"index out of range", "body/1/value", nil, false},
		{"missing key", "body/0/summary", nil, false},
		{"not a container", "title/0", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.SourceProperty(tt.path)
			if ok != tt.wantOK {
				t.Fatalf("SourceProperty(%q) ok = %v, want %v", tt.path, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("SourceProperty(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestSourceIDValues(t *testing.T) {
	r := New(map[string]any{"nid": 12, "lang": "en", "vid": nil})

	values, err := r.SourceIDValues([]string{"nid", "lang"})
	if err != nil {
		t.Fatalf("SourceIDValues failed: %v", err)
	}
	if len(values) != 2 || values[0] != "12" || values[1] != "en" {
		t.Errorf("unexpected values: %v", values)
	}

	_, err = r.SourceIDValues([]string{"nid", "vid"})
	var missing *MissingIDError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingIDError, got %v", err)
	}
	if missing.Field != "vid" {
		t.Errorf("expected missing field vid, got %q", missing.Field)
	}
}

func TestHash_StableAcrossKeyOrder(t *testing.T) {
	a := New(map[string]any{"a": 1, "b": "two"})
	b := New(map[string]any{"b": "two", "a": 1})

	if a.Hash() != b.Hash() {
		t.Error("expected equal hashes for equal source sets")
	}

	b.SetSourceProperty("c", true)
	if a.Hash() == b.Hash() {
		t.Error("expected hash to change when the source changes")
	}
}

func TestChild_DestinationScope(t *testing.T) {
	parent := New(map[string]any{"id": 1})
	parent.SetDestinationProperty("title", "parent title")

	child := parent.Child()
	if v, ok := child.DestinationProperty("title"); !ok || v != "parent title" {
		t.Errorf("child should read through to parent, got %v (%v)", v, ok)
	}

	child.SetDestinationProperty("title", "child title")
	if v, _ := parent.DestinationProperty("title"); v != "parent title" {
		t.Errorf("child write leaked into parent: %v", v)
	}
	if len(child.Destination()) != 1 {
		t.Errorf("expected one property in child scope, got %d", len(child.Destination()))
	}

	if _, ok := child.SourceProperty("id"); !ok {
		t.Error("child should share the parent's source")
	}
}
