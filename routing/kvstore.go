// Package routing implements the substrate's address book: a persistent
// key/value directory mapping (kind, account) -> address and
// (kind, None) -> primary account, with canonical key encoding collision-
// free across the four key variants (spec.md §4.2).
//
// The key/value backend is adapted from gnunet-go's util.KeyValueStore
// (src/gnunet/util/key_value_store.go): a small store-selection factory
// switching on a "+"-delimited specification string, backed by SQLite,
// MySQL or Redis depending on deployment.
package routing

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	redis "github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Errors related to key/value store construction.
var (
	ErrKVSInvalidSpec  = fmt.Errorf("routing: invalid key/value store specification")
	ErrKVSNotAvailable = fmt.Errorf("routing: key/value store not available")
)

// KeyValueStore is the persistence contract RoutingTable is built on. Keys
// and values are opaque strings; RoutingTable owns the canonical encoding.
type KeyValueStore interface {
	Put(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
	List() ([]string, error)
}

// ErrNotFound is returned by Get when no value exists for key.
var ErrNotFound = fmt.Errorf("routing: key not found")

// OpenKVStore opens a key/value store for RoutingTable use. The spec
// string's first "+"-delimited segment selects the backend:
//
//   - "sqlite3+<path>"            durable embedded storage
//   - "mysql+<dsn>"               durable SQL storage for shared deployments
//   - "redis+<addr>+<passwd>+<db>" cache-backed storage
//   - "memory"                    process-local map, test/ephemeral use only
func OpenKVStore(spec string) (KeyValueStore, error) {
	specs := strings.Split(spec, "+")
	switch specs[0] {
	case "memory":
		return newMemoryKVS(), nil

	case "redis":
		if len(specs) < 4 {
			return nil, ErrKVSInvalidSpec
		}
		db, err := strconv.Atoi(specs[3])
		if err != nil {
			return nil, ErrKVSInvalidSpec
		}
		kvs := &kvsRedis{db: db}
		kvs.client = redis.NewClient(&redis.Options{
			Addr:     specs[1],
			Password: specs[2],
			DB:       db,
		})
		if kvs.client == nil {
			return nil, ErrKVSNotAvailable
		}
		return kvs, nil

	case "sqlite3":
		if len(specs) < 2 {
			return nil, ErrKVSInvalidSpec
		}
		db, err := openSQLite(specs[1])
		if err != nil {
			return nil, err
		}
		return &kvsSQL{db: db}, nil

	case "mysql":
		if len(specs) < 2 {
			return nil, ErrKVSInvalidSpec
		}
		db, err := sql.Open("mysql", strings.Join(specs[1:], "+"))
		if err != nil {
			return nil, err
		}
		if err := ensureSchema(db); err != nil {
			return nil, err
		}
		return &kvsSQL{db: db}, nil
	}
	return nil, ErrKVSInvalidSpec
}

// openSQLite opens (creating if necessary) a SQLite-backed store at path.
// This is the production-grade default storage policy called for in
// spec.md §4.2: a caller-supplied durable path, not a temp directory.
func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return db, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`create table if not exists store (
		key   text primary key,
		value text not null
	)`)
	return err
}

//----------------------------------------------------------------------
// SQL-based key/value store (sqlite3, mysql)
//----------------------------------------------------------------------

type kvsSQL struct {
	db *sql.DB
}

func (kvs *kvsSQL) Put(key, value string) error {
	_, err := kvs.db.Exec(
		`insert into store(key, value) values(?, ?)
		 on conflict(key) do update set value = excluded.value`, key, value)
	if err != nil {
		// older sqlite3 driver builds may not support upsert syntax; fall
		// back to delete+insert within the same call.
		if _, derr := kvs.db.Exec(`delete from store where key = ?`, key); derr != nil {
			return derr
		}
		_, err = kvs.db.Exec(`insert into store(key, value) values(?, ?)`, key, value)
	}
	return err
}

func (kvs *kvsSQL) Get(key string) (value string, err error) {
	row := kvs.db.QueryRow(`select value from store where key = ?`, key)
	if err = row.Scan(&value); err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return
}

func (kvs *kvsSQL) Delete(key string) error {
	_, err := kvs.db.Exec(`delete from store where key = ?`, key)
	return err
}

func (kvs *kvsSQL) List() (keys []string, err error) {
	rows, err := kvs.db.Query(`select key from store`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		if err = rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

//----------------------------------------------------------------------
// Redis-based key/value store
//----------------------------------------------------------------------

type kvsRedis struct {
	client *redis.Client
	db     int
}

func (kvs *kvsRedis) Put(key, value string) error {
	return kvs.client.Set(context.Background(), key, value, 0).Err()
}

func (kvs *kvsRedis) Get(key string) (string, error) {
	v, err := kvs.client.Get(context.Background(), key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	return v, err
}

func (kvs *kvsRedis) Delete(key string) error {
	return kvs.client.Del(context.Background(), key).Err()
}

func (kvs *kvsRedis) List() (keys []string, err error) {
	ctx := context.Background()
	var crs uint64
	for {
		var segm []string
		segm, crs, err = kvs.client.Scan(ctx, crs, "*", 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, segm...)
		if crs == 0 {
			break
		}
	}
	return
}

//----------------------------------------------------------------------
// In-process map store (tests / ephemeral processes only)
//----------------------------------------------------------------------

type memoryKVS struct {
	mu   sync.RWMutex
	data map[string]string
}

func newMemoryKVS() *memoryKVS {
	return &memoryKVS{data: make(map[string]string)}
}

func (m *memoryKVS) Put(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryKVS) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *memoryKVS) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memoryKVS) List() (keys []string, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k := range m.data {
		keys = append(keys, k)
	}
	return
}

// tempSQLitePath is a test-only helper mirroring the temp-dir-per-process
// shortcut spec.md §4.2 and §9 flag as test-only: production callers must
// use OpenKVStore("sqlite3+<durable path>") instead.
func tempSQLitePath() (string, func(), error) {
	f, err := os.CreateTemp("", "ipiis-routing-*.sqlite3")
	if err != nil {
		return "", nil, err
	}
	path := f.Name()
	f.Close()
	return path, func() { os.Remove(path) }, nil
}
