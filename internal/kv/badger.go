package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig configures an embedded Badger store.
type BadgerConfig struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	// MaxMemoryBytes is the capacity reported by Stats. Zero disables the
	// memory-pressure percentage.
	MaxMemoryBytes int64
	// GCInterval is how often value-log GC runs for on-disk stores.
	GCInterval time.Duration
	Logger     *slog.Logger
}

// Badger is a Store backed by an embedded Badger database, for single-node
// deployments and tests.
type Badger struct {
	db     *badger.DB
	cfg    BadgerConfig
	hits   atomic.Int64
	misses atomic.Int64

	stopGC    chan struct{}
	gcDone    chan struct{}
	closeOnce sync.Once
}

// OpenBadger opens (or creates) a Badger store.
func OpenBadger(cfg BadgerConfig) (*Badger, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("kv: badger path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("kv: create badger dir %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("kv: open badger: %w", err)
	}

	b := &Badger{db: db, cfg: cfg}
	if !cfg.InMemory && cfg.GCInterval > 0 {
		b.stopGC = make(chan struct{})
		b.gcDone = make(chan struct{})
		go b.runGC()
	}
	return b, nil
}

func (b *Badger) Get(_ context.Context, key string) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		b.misses.Add(1)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: badger get: %w", err)
	}
	b.hits.Add(1)
	return val, nil
}

func (b *Badger) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(newEntry(key, value, ttl))
	})
	if err != nil {
		return fmt.Errorf("kv: badger set: %w", err)
	}
	return nil
}

func (b *Badger) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	set := false
	err := b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		set = true
		return txn.SetEntry(newEntry(key, value, ttl))
	})
	if errors.Is(err, badger.ErrConflict) {
		// Another writer touched the key inside our transaction window.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("kv: badger setnx: %w", err)
	}
	return set, nil
}

func (b *Badger) Delete(_ context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete([]byte(k)); err != nil {
			return fmt.Errorf("kv: badger delete: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("kv: badger delete flush: %w", err)
	}
	return nil
}

func (b *Badger) ScanPrefix(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("kv: badger scan %q: %w", prefix, err)
	}
	return keys, nil
}

func (b *Badger) Ping(context.Context) error {
	if b.db.IsClosed() {
		return errors.New("kv: badger closed")
	}
	return nil
}

// Stats reports LSM plus value-log size against the configured capacity,
// along with the hit and miss counters observed by Get.
func (b *Badger) Stats(ctx context.Context) (Stats, error) {
	lsm, vlog := b.db.Size()
	keys, err := b.ScanPrefix(ctx, "")
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		UsedMemoryBytes: lsm + vlog,
		MaxMemoryBytes:  b.cfg.MaxMemoryBytes,
		Hits:            b.hits.Load(),
		Misses:          b.misses.Load(),
		Keys:            int64(len(keys)),
	}, nil
}

// Close stops background GC and closes the database.
func (b *Badger) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if b.stopGC != nil {
			close(b.stopGC)
			<-b.gcDone
		}
		err = b.db.Close()
	})
	return err
}

func (b *Badger) runGC() {
	defer close(b.gcDone)
	ticker := time.NewTicker(b.cfg.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite means there was nothing to collect.
			if err := b.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) && b.cfg.Logger != nil {
				b.cfg.Logger.Warn("kv: badger value log GC failed", "error", err)
			}
		}
	}
}

func newEntry(key string, value []byte, ttl time.Duration) *badger.Entry {
	e := badger.NewEntry([]byte(key), value)
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	return e
}

// badgerLogger adapts slog.Logger to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
