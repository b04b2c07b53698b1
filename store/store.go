// Package store persists instances in SQLite. Each row holds an instance's
// class and its set slots encoded as CBOR; references between instances are
// stored by ID and resolved again on load.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/moxie/meta"
	"github.com/chazu/moxie/value"
)

var log = commonlog.GetLogger("moxie.store")

// ErrInstanceNotFound indicates the requested instance doesn't exist
var ErrInstanceNotFound = errors.New("instance not found")

// Store handles SQLite storage for instances
type Store struct {
	db       *sql.DB
	path     string
	registry *meta.Registry
	mu       sync.Mutex
}

// Open opens (creating if needed) the database at path. Loaded instances
// are restored into classes of r and tracked by it.
func Open(path string, r *meta.Registry) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS instances (
		id TEXT PRIMARY KEY,
		class TEXT NOT NULL,
		data BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS instances_class ON instances (class)"); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating index: %w", err)
	}

	log.Debugf("opened %s", path)
	return &Store{db: db, path: path, registry: r}, nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// Save persists an instance to the database
func (s *Store) Save(inst *meta.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return save(s.db, inst)
}

func save(db execer, inst *meta.Instance) error {
	data, err := value.MarshalSlots(inst.Slots())
	if err != nil {
		return fmt.Errorf("encoding %s: %w", inst.ID(), err)
	}
	_, err = db.Exec(
		"INSERT OR REPLACE INTO instances (id, class, data) VALUES (?, ?, ?)",
		inst.ID(), inst.ClassName(), data,
	)
	if err != nil {
		return fmt.Errorf("saving instance: %w", err)
	}
	return nil
}

// SaveAll persists every instance the registry tracks in one transaction.
func (s *Store) SaveAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	for _, inst := range s.registry.Instances() {
		if err := save(tx, inst); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Load returns the instance with the given ID, restoring it from the
// database if the registry does not already track it. Instances it refers
// to are loaded as well.
func (s *Store) Load(id string) (*meta.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(id)
}

func (s *Store) load(id string) (*meta.Instance, error) {
	// Check if already tracked
	if inst := s.registry.Instance(id); inst != nil {
		return inst, nil
	}

	var className string
	var data []byte
	err := s.db.QueryRow("SELECT class, data FROM instances WHERE id = ?", id).Scan(&className, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
		}
		return nil, fmt.Errorf("querying instance: %w", err)
	}

	class, err := s.registry.Class(className)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", id, err)
	}

	// Track before decoding so cycles resolve to this instance.
	inst := class.Restore(id)
	s.registry.Track(inst)

	slots, err := value.UnmarshalSlots(data, s.resolve)
	if err != nil {
		s.registry.Forget(id)
		return nil, fmt.Errorf("decoding %s: %w", id, err)
	}
	for name, v := range slots {
		if err := inst.RestoreSlot(name, v); err != nil {
			log.Warningf("loading %s: %s", id, err)
		}
	}
	return inst, nil
}

// resolve maps a stored instance reference, loading the target on demand.
// Dangling references decode as undef.
func (s *Store) resolve(id string) *value.Ref {
	inst, err := s.load(id)
	if err != nil {
		log.Warningf("resolving reference to %s: %s", id, err)
		return nil
	}
	return inst.AsValue().RefVal
}

// LoadAll loads every stored instance into the registry.
func (s *Store) LoadAll() error {
	ids, err := s.ids("SELECT id FROM instances")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if _, err := s.load(id); err != nil {
			log.Warningf("failed to load instance %s: %s", id, err)
		}
	}
	return nil
}

// Delete removes an instance from the database and the registry.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM instances WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting instance: %w", err)
	}
	s.registry.Forget(id)
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	return nil
}

// FindByClass returns all instance IDs for a given class
func (s *Store) FindByClass(className string) ([]string, error) {
	return s.ids("SELECT id FROM instances WHERE class = ? ORDER BY id", className)
}

func (s *Store) ids(query string, args ...any) ([]string, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
