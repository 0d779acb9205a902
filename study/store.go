package study

import (
	"context"

	"github.com/neutronics-workshop/gptools/pkg/errors"
)

// Store persists study records. List returns records in the order they
// were first saved.
type Store interface {
	Init(ctx context.Context) error
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, bool, error)
	List(ctx context.Context) ([]Record, error)
}

// Store backends accepted by NewStore.
const (
	StoreMemory = "memory"
	StoreDir    = "dir"
	StoreSQLite = "sqlite"
)

// NewStore returns an uninitialised store of the given kind. path is the
// record directory for "dir" and the database file for "sqlite".
func NewStore(kind, path string) (Store, error) {
	switch kind {
	case "", StoreMemory:
		return NewMemoryStore(), nil
	case StoreDir:
		return NewDirStore(path), nil
	case StoreSQLite:
		return NewSQLiteStore(path), nil
	default:
		return nil, errors.NewValidationError("store.kind", "unsupported store backend", kind)
	}
}

// OpenStore creates and initialises a store.
func OpenStore(ctx context.Context, kind, path string) (Store, error) {
	store, err := NewStore(kind, path)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		_ = CloseIfSupported(store)
		return nil, errors.Wrapf(err, "init %s store", kind)
	}
	return store, nil
}

// CloseIfSupported closes store when it holds resources.
func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}

var errNotInitialized = errors.New("store is not initialized")
