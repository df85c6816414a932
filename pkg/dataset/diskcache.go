package dataset

import (
	"github.com/dgraph-io/badger/v4"
)

// DiskCache stores fetched dataset payloads on disk keyed by their
// relative path. It lives below the HTTP fetcher; the in-memory Cache is
// still the only structure the engine sees.
type DiskCache struct {
	db *badger.DB
}

func OpenDiskCache(path string) (*DiskCache, error) {
	opts := badger.DefaultOptions(path)
	// Decrease logging verbosity
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &DiskCache{db: db}, nil
}

func (d *DiskCache) Close() error {
	return d.db.Close()
}

// Get returns the cached payload for a path, or (nil, nil) on a miss.
func (d *DiskCache) Get(path string) ([]byte, error) {
	var val []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(path))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	return val, err
}

func (d *DiskCache) Set(path string, data []byte) error {
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(path), data)
	})
}
