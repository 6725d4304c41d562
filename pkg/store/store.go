// Package store persists node system snapshots in an embedded BadgerDB.
//
// Projects are stored as JSON-encoded nodesystem.SystemData under the key
// "project/<id>". A System's save events can be fed straight into Save.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/chazu/plantarium/pkg/metrics"
	"github.com/chazu/plantarium/pkg/nodesystem"
)

const keyPrefix = "project/"

// ErrNotFound is returned when a project does not exist.
var ErrNotFound = errors.New("project not found")

// ErrInvalidID is returned for empty project IDs or IDs containing '/'.
var ErrInvalidID = errors.New("invalid project id")

// Config configures a Store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in memory; data is lost on Close.
	InMemory bool
	// SyncWrites fsyncs every write.
	SyncWrites bool
	// Logger receives badger's internal logging. Nil disables it.
	Logger *zap.Logger
}

// InMemoryConfig is the configuration used by tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// ProjectInfo summarises a stored project.
type ProjectInfo struct {
	ID        string `json:"id"`
	Nodes     int    `json:"nodes"`
	LastSaved int64  `json:"lastSaved"`
}

// Store is a badger-backed project store. It is safe for concurrent use.
type Store struct {
	db     *badger.DB
	logger *zap.Logger
}

// badgerLogger adapts zap to badger's Logger interface.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...any)   { l.s.Errorf(strings.TrimSpace(format), args...) }
func (l badgerLogger) Warningf(format string, args ...any) { l.s.Warnf(strings.TrimSpace(format), args...) }
func (l badgerLogger) Infof(format string, args ...any)    { l.s.Infof(strings.TrimSpace(format), args...) }
func (l badgerLogger) Debugf(format string, args ...any)   { l.s.Debugf(strings.TrimSpace(format), args...) }

// Open opens (creating if needed) a project store.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("store: path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
		opts = opts.WithLogger(nil)
	} else {
		logger = logger.Named("store")
		opts = opts.WithLogger(badgerLogger{s: logger.Sugar()})
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func key(id string) ([]byte, error) {
	if id == "" || strings.Contains(id, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return []byte(keyPrefix + id), nil
}

// Save stores data under id, replacing any previous version.
func (s *Store) Save(ctx context.Context, id string, data nodesystem.SystemData) (err error) {
	defer func() { metrics.StoreOperation("save", err) }()
	if err := ctx.Err(); err != nil {
		return err
	}
	k, err := key(id)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := nodesystem.Encode(&buf, data, "json"); err != nil {
		return fmt.Errorf("store: encode %s: %w", id, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, buf.Bytes())
	})
	if err != nil {
		return fmt.Errorf("store: save %s: %w", id, err)
	}
	s.logger.Debug("project saved", zap.String("id", id), zap.Int("bytes", buf.Len()))
	return nil
}

// Load returns the project stored under id, or ErrNotFound.
func (s *Store) Load(ctx context.Context, id string) (data nodesystem.SystemData, err error) {
	defer func() { metrics.StoreOperation("load", err) }()
	if err := ctx.Err(); err != nil {
		return nodesystem.SystemData{}, err
	}
	k, err := key(id)
	if err != nil {
		return nodesystem.SystemData{}, err
	}
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data, err = nodesystem.DecodeJSON(bytes.NewReader(val))
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nodesystem.SystemData{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nodesystem.SystemData{}, fmt.Errorf("store: load %s: %w", id, err)
	}
	return data, nil
}

// List returns every stored project sorted by ID.
func (s *Store) List(ctx context.Context) (infos []ProjectInfo, err error) {
	defer func() { metrics.StoreOperation("list", err) }()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			id := strings.TrimPrefix(string(item.Key()), keyPrefix)
			err := item.Value(func(val []byte) error {
				data, err := nodesystem.DecodeJSON(bytes.NewReader(val))
				if err != nil {
					return fmt.Errorf("%s: %w", id, err)
				}
				infos = append(infos, ProjectInfo{ID: id, Nodes: len(data.Nodes), LastSaved: data.Meta.LastSaved})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, nil
}

// Delete removes a project. Deleting a missing project returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) (err error) {
	defer func() { metrics.StoreOperation("delete", err) }()
	if err := ctx.Err(); err != nil {
		return err
	}
	k, err := key(id)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(k); err != nil {
			return err
		}
		return txn.Delete(k)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	return nil
}

// Autosave returns a listener that saves every save event of a system
// under id. Failures are logged.
func (s *Store) Autosave(ctx context.Context, id string) nodesystem.Listener {
	return func(ev nodesystem.Event) {
		if ev.Type != nodesystem.EventSave || ev.Data == nil {
			return
		}
		if err := s.Save(ctx, id, *ev.Data); err != nil {
			s.logger.Warn("autosave failed", zap.String("id", id), zap.Error(err))
		}
	}
}
