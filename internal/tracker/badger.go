package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
)

var badgerStateKey = []byte("posterdigest/state")

// BadgerStore keeps the state as one JSON value under a fixed key; each Save
// is a single badger update transaction.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a badger database at path. An empty path
// opens an in-memory database.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) Load(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	var state State
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerStateKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, err := decodeState(val)
			if err != nil {
				return err
			}
			state = decoded
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read badger state: %w", err)
	}
	return state, nil
}

func (b *BadgerStore) Save(ctx context.Context, state State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerStateKey, data)
	})
}

func (b *BadgerStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

var _ Store = (*BadgerStore)(nil)
