package persistence

import "binance-spot-bot-go/internal/models"

// SnapshotRepository persists open-position snapshots so a restarted process
// can reattach to a position instead of losing track of it. It abstracts the
// underlying storage (BadgerDB in production, in-memory in tests).
type SnapshotRepository interface {
	// Save atomically writes the snapshot for its symbol.
	Save(snap *models.PositionSnapshot) error

	// Load returns the snapshot for symbol, or (nil, nil) when none exists.
	Load(symbol string) (*models.PositionSnapshot, error)

	// Clear removes the snapshot for symbol after a clean sell. Clearing a
	// missing snapshot is not an error.
	Clear(symbol string) error

	// Close gracefully closes the underlying database.
	Close() error
}
