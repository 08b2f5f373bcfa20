package store

import (
	"database/sql"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := Open(filepath.Join(t.TempDir(), "sub", "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{"sqlite": sq, "memory": NewMemStore()}
}

func TestKeyID(t *testing.T) {
	base := Key{DatasetHash: "d1", SpecHash: "s1", Seed: 853}
	if base.ID() != (Key{DatasetHash: "d1", SpecHash: "s1", Seed: 853}).ID() {
		t.Error("equal keys gave different ids")
	}
	for name, k := range map[string]Key{
		"dataset": {DatasetHash: "d2", SpecHash: "s1", Seed: 853},
		"spec":    {DatasetHash: "d1", SpecHash: "s2", Seed: 853},
		"seed":    {DatasetHash: "d1", SpecHash: "s1", Seed: 854},
	} {
		if k.ID() == base.ID() {
			t.Errorf("changing %s did not change the id", name)
		}
	}
}

func TestStore_RoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			k := Key{DatasetHash: "abc", SpecHash: "def", Seed: math.MaxUint64}
			if _, err := s.Get(k); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get on empty store: err = %v, want ErrNotFound", err)
			}
			in := &Entry{Key: k, RunID: "run-1", CreatedAt: "2026-01-02T03:04:05Z", Payload: []byte(`{"x":1}`)}
			if err := s.Put(in); err != nil {
				t.Fatalf("Put: %v", err)
			}
			got, err := s.Get(k)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			want := &Entry{Key: k, RunID: "run-1", CreatedAt: "2026-01-02T03:04:05Z", Payload: []byte(`{"x":1}`), Size: 7}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Get mismatch (-want +got):\n%s", diff)
			}

			in.RunID = "run-2"
			in.Payload = []byte(`{}`)
			if err := s.Put(in); err != nil {
				t.Fatalf("Put replace: %v", err)
			}
			got, err = s.Get(k)
			if err != nil {
				t.Fatalf("Get after replace: %v", err)
			}
			if got.RunID != "run-2" || string(got.Payload) != "{}" {
				t.Errorf("after replace got run %q payload %q", got.RunID, got.Payload)
			}
		})
	}
}

func TestStore_ListInvalidateClear(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			entries := []*Entry{
				{Key: Key{DatasetHash: "d1", SpecHash: "s", Seed: 1}, RunID: "a", CreatedAt: "2026-01-01T00:00:00Z", Payload: []byte("aa")},
				{Key: Key{DatasetHash: "d1", SpecHash: "s", Seed: 2}, RunID: "b", CreatedAt: "2026-01-03T00:00:00Z", Payload: []byte("bbb")},
				{Key: Key{DatasetHash: "d2", SpecHash: "s", Seed: 1}, RunID: "c", CreatedAt: "2026-01-02T00:00:00Z", Payload: []byte("c")},
			}
			for _, e := range entries {
				if err := s.Put(e); err != nil {
					t.Fatalf("Put: %v", err)
				}
			}
			list, err := s.List()
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			var runs []string
			for _, e := range list {
				runs = append(runs, e.RunID)
				if e.Payload != nil {
					t.Errorf("List returned payload for %s", e.RunID)
				}
			}
			if diff := cmp.Diff([]string{"b", "c", "a"}, runs); diff != "" {
				t.Errorf("List order (-want +got):\n%s", diff)
			}
			if list[0].Size != 3 {
				t.Errorf("size = %d, want 3", list[0].Size)
			}

			n, err := s.InvalidateDataset("d1")
			if err != nil || n != 2 {
				t.Fatalf("InvalidateDataset = %d, %v; want 2", n, err)
			}
			if _, err := s.Get(entries[0].Key); !errors.Is(err, ErrNotFound) {
				t.Errorf("invalidated entry still present: %v", err)
			}
			if _, err := s.Get(entries[2].Key); err != nil {
				t.Errorf("other dataset's entry removed: %v", err)
			}

			n, err = s.Clear()
			if err != nil || n != 1 {
				t.Fatalf("Clear = %d, %v; want 1", n, err)
			}
			list, err = s.List()
			if err != nil || len(list) != 0 {
				t.Errorf("List after Clear = %v, %v", list, err)
			}
		})
	}
}

func TestStore_PutSetsCreatedAt(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			k := Key{DatasetHash: "d", SpecHash: "s"}
			if err := s.Put(&Entry{Key: k, RunID: "r", Payload: []byte("p")}); err != nil {
				t.Fatal(err)
			}
			got, err := s.Get(k)
			if err != nil {
				t.Fatal(err)
			}
			if got.CreatedAt == "" {
				t.Error("CreatedAt not set")
			}
		})
	}
}

func TestMemStore_ReturnsCopies(t *testing.T) {
	s := NewMemStore()
	k := Key{DatasetHash: "d"}
	payload := []byte("abc")
	if err := s.Put(&Entry{Key: k, Payload: payload}); err != nil {
		t.Fatal(err)
	}
	payload[0] = 'x'
	got, _ := s.Get(k)
	got.Payload[1] = 'y'
	again, _ := s.Get(k)
	if diff := cmp.Diff([]byte("abc"), again.Payload, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("stored payload aliased (-want +got):\n%s", diff)
	}
}

func TestOpen_MigratesV1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.Exec(`
		CREATE TABLE schema_version (version INTEGER NOT NULL);
		INSERT INTO schema_version(version) VALUES(1);
		CREATE TABLE fits (id TEXT PRIMARY KEY, payload BLOB NOT NULL);
		INSERT INTO fits(id, payload) VALUES('old', x'00');
	`)
	if err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	var v int
	if err := s.db.QueryRow("SELECT version FROM schema_version").Scan(&v); err != nil || v != schemaVersionV2 {
		t.Fatalf("schema version = %d, %v; want %d", v, err, schemaVersionV2)
	}
	list, err := s.List()
	if err != nil || len(list) != 0 {
		t.Errorf("List after migration = %v, %v; want empty", list, err)
	}
	if err := s.Put(&Entry{Key: Key{DatasetHash: "d"}, RunID: "r", Payload: []byte("p")}); err != nil {
		t.Errorf("Put after migration: %v", err)
	}
}

func TestOpen_ReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	k := Key{DatasetHash: "d", SpecHash: "s", Seed: 3}
	if err := s.Put(&Entry{Key: k, RunID: "r", Payload: []byte("p")}); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if _, err := s.Get(k); err != nil {
		t.Errorf("Get after reopen: %v", err)
	}
}
