// Package store persists each record collection as a single JSON file
// holding an array of flat objects. Collections are read and replaced
// wholesale; a per-collection mutex serializes read-modify-write cycles
// so concurrent requests cannot silently clobber each other.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Collection names. One JSON file per name under the data directory.
const (
	Orderbook         = "orderbook"
	OrdersClosed      = "orders_closed"
	WarpingProduction = "warping_production"
	WarpingDispatch   = "warping_dispatch"
	SizingProduction  = "sizing_production"
	SizingDispatch    = "sizing_dispatch"
	InitiateBeam      = "initiate_beam"
	BeamOnLoom        = "beam_on_loom"
	GreyProduction    = "grey_production"
	GreyDispatch      = "grey_dispatch"
	LoomProduction    = "loom_production"
	Operators         = "operators"
)

// All lists every collection the server initializes at startup.
var All = []string{
	Orderbook, OrdersClosed, WarpingProduction, WarpingDispatch,
	SizingProduction, SizingDispatch, InitiateBeam, BeamOnLoom,
	GreyProduction, GreyDispatch, LoomProduction, Operators,
}

// Store is a directory of JSON-file collections.
type Store struct {
	dir   string
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Store rooted at dir. The directory is created if absent.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

// Dir returns the data directory the store is rooted at.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

func (s *Store) lock(collection string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[collection]
	if !ok {
		l = &sync.Mutex{}
		s.locks[collection] = l
	}
	return l
}

// Init creates an empty file for every named collection that is missing
// or unreadable, matching the source system's startup behavior.
func (s *Store) Init(collections ...string) error {
	for _, c := range collections {
		l := s.lock(c)
		l.Lock()
		data, err := os.ReadFile(s.path(c))
		valid := err == nil && json.Valid(data)
		if !valid {
			if err == nil {
				log.Printf("store: collection %s is corrupt, resetting to empty (data lost)", c)
			}
			if werr := os.WriteFile(s.path(c), []byte("[]"), 0o644); werr != nil {
				l.Unlock()
				return fmt.Errorf("init collection %s: %w", c, werr)
			}
		}
		l.Unlock()
	}
	return nil
}

// Load reads a collection into typed records. A missing, empty, or
// corrupt file yields an empty slice, never an error; corruption is
// logged because it means the collection's data is gone. Individual
// records whose shape does not match T are rejected and logged without
// discarding the rest of the collection.
func Load[T any](s *Store, collection string) []T {
	l := s.lock(collection)
	l.Lock()
	defer l.Unlock()
	return load[T](s, collection)
}

func load[T any](s *Store, collection string) []T {
	data, err := os.ReadFile(s.path(collection))
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Printf("store: collection %s unreadable, treating as empty (irrecoverable data loss): %v", collection, err)
		return nil
	}
	records := make([]T, 0, len(raw))
	for i, r := range raw {
		dec := json.NewDecoder(bytes.NewReader(r))
		dec.DisallowUnknownFields()
		var rec T
		if err := dec.Decode(&rec); err != nil {
			log.Printf("store: collection %s record %d has an unrecognized shape, skipping: %v", collection, i, err)
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil
	}
	return records
}

// Save replaces a collection's backing file with the given records.
func Save[T any](s *Store, collection string, records []T) error {
	l := s.lock(collection)
	l.Lock()
	defer l.Unlock()
	return save(s, collection, records)
}

func save[T any](s *Store, collection string, records []T) error {
	if records == nil {
		records = []T{}
	}
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", collection, err)
	}
	if err := os.WriteFile(s.path(collection), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", collection, err)
	}
	return nil
}

// Update runs a read-modify-write cycle on a collection under its
// mutex. fn receives the current records and returns the replacement
// set; returning an error aborts without writing.
func Update[T any](s *Store, collection string, fn func([]T) ([]T, error)) error {
	l := s.lock(collection)
	l.Lock()
	defer l.Unlock()
	records, err := fn(load[T](s, collection))
	if err != nil {
		return err
	}
	return save(s, collection, records)
}
