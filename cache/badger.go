package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// Key layout:
//
//	translationCache:e:<fp>    -> 8-byte big-endian seq + result JSON
//	translationCache:o:<seq>   -> fp
//
// Sequence numbers only grow, so iterating the order prefix yields keys
// oldest first.
var (
	badgerNamespace   = []byte("translationCache:")
	badgerEntryPrefix = []byte("translationCache:e:")
	badgerOrderPrefix = []byte("translationCache:o:")
	badgerSeqKey      = []byte("translationCacheSeq")
)

const badgerSeqBandwidth = 100

// BadgerStore is a Store on an embedded badger database.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
}

// OpenBadgerStore opens (or creates) a badger database at path.
// An empty path opens an in-memory database.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{})
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	seq, err := db.GetSequence(badgerSeqKey, badgerSeqBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("get sequence: %w", err)
	}

	return &BadgerStore{db: db, seq: seq}, nil
}

func entryKey(key string) []byte {
	return append(append([]byte(nil), badgerEntryPrefix...), key...)
}

func orderKey(seq uint64) []byte {
	k := append([]byte(nil), badgerOrderPrefix...)
	return binary.BigEndian.AppendUint64(k, seq)
}

// Load implements Store.
func (s *BadgerStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(key))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if len(raw) < 8 {
			return fmt.Errorf("corrupt entry %s", key)
		}
		value = raw[8:]
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", key, err)
	}
	return value, true, nil
}

// Save implements Store.
func (s *BadgerStore) Save(_ context.Context, key string, value []byte) error {
	// Allocated up front; unused numbers for overwrites only leave gaps.
	next, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	ek := entryKey(key)
	err = s.db.Update(func(txn *badger.Txn) error {
		seq := next
		item, err := txn.Get(ek)
		switch {
		case err == nil:
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if len(raw) < 8 {
				return fmt.Errorf("corrupt entry %s", key)
			}
			seq = binary.BigEndian.Uint64(raw[:8])
		case errors.Is(err, badger.ErrKeyNotFound):
			if err := txn.Set(orderKey(seq), []byte(key)); err != nil {
				return err
			}
		default:
			return err
		}

		buf := binary.BigEndian.AppendUint64(make([]byte, 0, 8+len(value)), seq)
		return txn.Set(ek, append(buf, value...))
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (s *BadgerStore) Delete(_ context.Context, key string) error {
	ek := entryKey(key)
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(ek)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if len(raw) >= 8 {
			if err := txn.Delete(orderKey(binary.BigEndian.Uint64(raw[:8]))); err != nil {
				return err
			}
		}
		return txn.Delete(ek)
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Len implements Store.
func (s *BadgerStore) Len(_ context.Context) (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: badgerOrderPrefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Oldest implements Store.
func (s *BadgerStore) Oldest(_ context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	keys := make([]string, 0, n)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = badgerOrderPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid() && len(keys) < n; it.Next() {
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			keys = append(keys, string(v))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list oldest: %w", err)
	}
	return keys, nil
}

// Clear implements Store.
func (s *BadgerStore) Clear(_ context.Context) error {
	if err := s.db.DropPrefix(badgerNamespace); err != nil {
		return fmt.Errorf("drop prefix: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	if err := s.seq.Release(); err != nil {
		slog.Warn("release badger sequence", "error", err)
	}
	return s.db.Close()
}

// badgerLogger routes badger's internal logging through slog.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...any) {
	slog.Error("badger: " + fmt.Sprintf(format, args...))
}

func (badgerLogger) Warningf(format string, args ...any) {
	slog.Warn("badger: " + fmt.Sprintf(format, args...))
}

func (badgerLogger) Infof(format string, args ...any) {
	slog.Debug("badger: " + fmt.Sprintf(format, args...))
}

func (badgerLogger) Debugf(format string, args ...any) {
	slog.Debug("badger: " + fmt.Sprintf(format, args...))
}
