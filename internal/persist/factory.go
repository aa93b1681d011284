package persist

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	EngineSQLite = "sqlite"
	EngineRedis  = "redis"
	EngineFile   = "file"
)

// Backends are the connections an engine may draw on. DB is required for
// every engine because the ledger always lives in libSQL.
type Backends struct {
	DB      *sql.DB
	Redis   *redis.Client
	DataDir string
}

// Stores is the persistence layer handed to the game service.
type Stores struct {
	Snapshots SnapshotStore
	Shares    ShareStore
	Ledger    Ledger
	// Sessions lists stored sessions through the active engine.
	Sessions Lister
	// SQLite backs the ledger for every engine.
	SQLite *SQLiteStore
}

func NewSnapshotStore(engine string, b Backends) (SnapshotStore, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EngineSQLite:
		if b.DB == nil {
			return nil, errors.New("sqlite engine requires a database")
		}
		return NewSQLiteStore(b.DB), nil
	case EngineRedis:
		if b.Redis == nil {
			return nil, errors.New("redis engine requires a redis client")
		}
		return NewRedisStore(b.Redis), nil
	case EngineFile:
		return NewFileStore(b.DataDir)
	default:
		return nil, errors.New("unsupported store engine: " + engine)
	}
}

// Open builds the snapshot store for engine and pairs it with a share store
// and the libSQL ledger. Share tokens go to redis whenever a client is
// configured, since redis expires them on its own.
func Open(engine string, b Backends) (Stores, error) {
	if b.DB == nil {
		return Stores{}, errors.New("persistence requires a database")
	}
	snaps, err := NewSnapshotStore(engine, b)
	if err != nil {
		return Stores{}, err
	}
	sq := NewSQLiteStore(b.DB)

	st := Stores{Snapshots: snaps, Ledger: sq, SQLite: sq}
	if l, ok := snaps.(Lister); ok {
		st.Sessions = l
	}
	switch {
	case b.Redis != nil:
		st.Shares = NewRedisStore(b.Redis)
	case strings.EqualFold(engine, EngineFile):
		st.Shares = snaps.(*FileStore)
	default:
		st.Shares = sq
	}
	return st, nil
}

// NewShareToken returns a random 128-bit token in hex.
func NewShareToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
