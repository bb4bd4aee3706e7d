package storage

import (
	"path/filepath"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	ldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"go.uber.org/zap"
)

const dbName = "provider-session"

// LevelDBStore persists provider session keys in a leveldb database.
type LevelDBStore struct {
	db     *leveldb.DB
	logger *zap.Logger
}

// NewLevelDBStore opens (or creates) a leveldb database under path.
// An empty path opens an ephemeral in-memory database.
func NewLevelDBStore(path string, logger *zap.Logger) (*LevelDBStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if path == "" {
		db, err := leveldb.Open(ldbstorage.NewMemStorage(), nil)
		if err != nil {
			return nil, err
		}
		return &LevelDBStore{db: db, logger: logger}, nil
	}

	path = filepath.Join(path, dbName)
	opts := &opt.Options{OpenFilesCacheCapacity: 5}
	db, err := leveldb.OpenFile(path, opts)
	if _, iscorrupted := err.(*errors.ErrCorrupted); iscorrupted {
		logger.Info("database is corrupted trying to recover", zap.String("path", path))
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, err
	}
	return &LevelDBStore{db: db, logger: logger}, nil
}

func (s *LevelDBStore) Get(key string) (string, error) {
	value, err := s.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(value), nil
}

func (s *LevelDBStore) Set(key, value string) error {
	return s.db.Put([]byte(key), []byte(value), nil)
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
