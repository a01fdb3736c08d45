// Package cache stores raw Overpass responses in a badger database so
// that repeated conversions of the same area do not query the server.
package cache

import (
	"encoding/binary"
	"os"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/pkg/errors"

	"github.com/omniscale/osmtopo/log"
)

// BadgerDB is a response cache. Entries older than TTL are ignored.
// A TTL of zero keeps entries forever.
type BadgerDB struct {
	*badger.DB
	TTL time.Duration
	now func() time.Time
}

// Open opens or creates the cache in dir.
func Open(dir string, ttl time.Duration) (*BadgerDB, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating cache dir %s", dir)
	}
	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	opts.Logger = badgerLogger{}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening cache %s", dir)
	}
	return &BadgerDB{DB: db, TTL: ttl, now: time.Now}, nil
}

// Get returns the data stored for key. ok is false for missing and
// expired entries.
func (db *BadgerDB) Get(key string) (data []byte, ok bool, err error) {
	err = db.DB.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		} else if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if len(val) < 8 {
			return errors.Errorf("invalid cache entry %s", key)
		}
		stored := time.Unix(0, int64(binary.BigEndian.Uint64(val[:8])))
		if db.TTL > 0 && db.now().Sub(stored) > db.TTL {
			return nil
		}
		data = val[8:]
		ok = true
		return nil
	})
	return data, ok, err
}

func (db *BadgerDB) Put(key string, data []byte) error {
	val := make([]byte, 8+len(data))
	binary.BigEndian.PutUint64(val[:8], uint64(db.now().UnixNano()))
	copy(val[8:], data)
	return db.DB.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
}

func (db *BadgerDB) Delete(key string) error {
	return db.DB.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	log.Printf("[error] cache: "+format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	log.Printf("[warn] cache: "+format, args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	log.Printf("[debug] cache: "+format, args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	log.Printf("[debug] cache: "+format, args...)
}
