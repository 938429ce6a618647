package cache

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// Provider is an interface for a durable cache store.
// It stores and retrieves []byte values, which represent serialized responses.
// Keys are opaque strings; a "bucket" is simply a shared key prefix, so many
// caches can live in the same store.
//
// The store does not decide whether an entry is still fresh - that is the
// expiration policy's job. It only persists bytes and keeps enough bookkeeping
// (insertion time) to evict oldest-first when a bucket grows past its cap.
//
// Implementations must be thread-safe!
type Provider interface {
	// Get returns the stored value for the given key, if it exists.
	// It also returns a boolean indicating whether retrieval was successful.
	Get(key string) ([]byte, bool, error)
	// Put stores the given value under the given key.
	// Writes are whole-value replacements.
	Put(key string, bytes []byte) error
	// Purge removes the entry for the given key.
	Purge(key string)
	// Has checks if the specified key exists in the store.
	Has(key string) bool
	// Keys calls the given callback for each key with the given prefix.
	// It calls the callback in order to enable very large lists of keys to be
	// processable (provider implementation might use paging, for instance).
	Keys(prefix string, cb func(string))
	// Trim removes the oldest entries under the given prefix until at most
	// max remain. A max of zero or less means unbounded.
	Trim(prefix string, max int) error
}

type SQLiteCache struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteCache creates a new store with the given filename as the db.
// If the file name is empty, a new in-memory db is opened.
// The store is opened once and shared for the lifetime of the process.
func NewSQLiteCache(filename string) SQLiteCache {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		key TEXT PRIMARY KEY,
		stored_at INTEGER,
		bytes BLOB
	)`)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("CREATE INDEX IF NOT EXISTS stored_at_idx ON cache (stored_at)")
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		panic(err)
	}
	return SQLiteCache{
		db:         db,
		writeMutex: &sync.Mutex{},
	}
}

func (s SQLiteCache) Get(key string) ([]byte, bool, error) {
	var bytes []byte
	err := s.db.QueryRow("SELECT bytes FROM cache WHERE key = ?", key).Scan(&bytes)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bytes, true, nil
}

func (s SQLiteCache) Put(key string, bytes []byte) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO cache (key, stored_at, bytes) VALUES (?, ?, ?)",
		key, time.Now().UnixMilli(), bytes)
	return err
}

func (s SQLiteCache) Purge(key string) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	s.db.Exec("DELETE FROM cache WHERE key = ?", key)
}

func (s SQLiteCache) Has(key string) bool {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM cache WHERE key = ?", key).Scan(&one)
	return err == nil
}

func (s SQLiteCache) Keys(prefix string, cb func(string)) {
	rows, err := s.db.Query("SELECT key FROM cache WHERE key LIKE ?", prefix+"%")
	if err != nil {
		return
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return
		}
		cb(key)
	}
}

func (s SQLiteCache) Trim(prefix string, max int) error {
	if max <= 0 {
		return nil
	}
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM cache WHERE key LIKE ?", prefix+"%").Scan(&count)
	if err != nil {
		return err
	}
	if count <= max {
		return nil
	}
	_, err = s.db.Exec(`DELETE FROM cache WHERE key IN (
		SELECT key FROM cache WHERE key LIKE ? ORDER BY stored_at ASC LIMIT ?
	)`, prefix+"%", count-max)
	return err
}
