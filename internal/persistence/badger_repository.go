package persistence

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"binance-spot-bot-go/internal/models"

	"github.com/dgraph-io/badger/v3"
)

// badgerRepository is the BadgerDB implementation of SnapshotRepository.
// One key per symbol keeps concurrent bots out of each other's way.
type badgerRepository struct {
	db *badger.DB
}

// NewBadgerRepository opens (or creates) a Badger database at dbPath.
func NewBadgerRepository(dbPath string) (SnapshotRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logging is noisy; errors still surface from operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &badgerRepository{db: db}, nil
}

func snapshotKey(symbol string) []byte {
	return []byte("position/" + strings.ToUpper(symbol))
}

func (r *badgerRepository) Save(snap *models.PositionSnapshot) error {
	snap.LastUpdate = time.Now().UTC()

	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(snap.Symbol), data)
	})
}

func (r *badgerRepository) Load(symbol string) (*models.PositionSnapshot, error) {
	var snap models.PositionSnapshot

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(symbol))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("snapshot value is empty in database")
			}
			return json.Unmarshal(val, &snap)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil // expected "no snapshot" case
	}
	if err != nil {
		return nil, err
	}

	return &snap, nil
}

func (r *badgerRepository) Clear(symbol string) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(snapshotKey(symbol))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (r *badgerRepository) Close() error {
	return r.db.Close()
}
