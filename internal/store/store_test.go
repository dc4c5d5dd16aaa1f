package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type widget struct {
	Name  string  `json:"name"`
	Count float64 `json:"count"`
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	in := []widget{{Name: "a", Count: 1.5}, {Name: "b", Count: 2}}
	if err := Save(s, "widgets", in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out := Load[widget](s, "widgets")
	if len(out) != 2 {
		t.Fatalf("Load returned %d records, want 2", len(out))
	}
	if out[0] != in[0] || out[1] != in[1] {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestLoadMissingFile(t *testing.T) {
	s := newTestStore(t)

	if got := Load[widget](s, "nothing_here"); got != nil {
		t.Errorf("Load of missing collection = %v, want nil", got)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	s := newTestStore(t)

	path := filepath.Join(s.Dir(), "widgets.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	if got := Load[widget](s, "widgets"); got != nil {
		t.Errorf("Load of corrupt collection = %v, want nil", got)
	}
}

func TestLoadSkipsUnrecognizedRecords(t *testing.T) {
	s := newTestStore(t)

	// One stray field must not cost the whole collection.
	raw := `[{"name":"a","count":1},{"name":"b","count":2,"surprise":true},{"name":"c","count":3}]`
	path := filepath.Join(s.Dir(), "widgets.json")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	out := Load[widget](s, "widgets")
	if len(out) != 2 || out[0].Name != "a" || out[1].Name != "c" {
		t.Errorf("Load = %+v, want records a and c", out)
	}
}

func TestInitCreatesEmptyCollections(t *testing.T) {
	s := newTestStore(t)

	if err := s.Init("one", "two"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	for _, c := range []string{"one", "two"} {
		data, err := os.ReadFile(filepath.Join(s.Dir(), c+".json"))
		if err != nil {
			t.Fatalf("collection %s not created: %v", c, err)
		}
		if string(data) != "[]" {
			t.Errorf("collection %s = %q, want []", c, data)
		}
	}
}

func TestInitResetsCorruptCollection(t *testing.T) {
	s := newTestStore(t)

	path := filepath.Join(s.Dir(), "widgets.json")
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	if err := s.Init("widgets"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "[]" {
		t.Errorf("corrupt collection not reset, got %q", data)
	}
}

func TestInitLeavesValidCollectionAlone(t *testing.T) {
	s := newTestStore(t)

	Save(s, "widgets", []widget{{Name: "keep"}})
	if err := s.Init("widgets"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	out := Load[widget](s, "widgets")
	if len(out) != 1 || out[0].Name != "keep" {
		t.Errorf("Init clobbered valid collection: %+v", out)
	}
}

func TestUpdateAppliesChanges(t *testing.T) {
	s := newTestStore(t)
	Save(s, "widgets", []widget{{Name: "a"}})

	err := Update(s, "widgets", func(records []widget) ([]widget, error) {
		return append(records, widget{Name: "b"}), nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	out := Load[widget](s, "widgets")
	if len(out) != 2 || out[1].Name != "b" {
		t.Errorf("Update not applied: %+v", out)
	}
}

func TestUpdateErrorAbortsWrite(t *testing.T) {
	s := newTestStore(t)
	Save(s, "widgets", []widget{{Name: "a"}})

	sentinel := errors.New("validation failed")
	err := Update(s, "widgets", func(records []widget) ([]widget, error) {
		return nil, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Update error = %v, want %v", err, sentinel)
	}

	out := Load[widget](s, "widgets")
	if len(out) != 1 || out[0].Name != "a" {
		t.Errorf("failed Update mutated collection: %+v", out)
	}
}

func TestSaveNilWritesEmptyArray(t *testing.T) {
	s := newTestStore(t)

	if err := Save[widget](s, "widgets", nil); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(s.Dir(), "widgets.json"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("nil save wrote %q, want []", data)
	}
}
