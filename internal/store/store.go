// Package store persists worker execution records. Records are history:
// they are created on dispatch, finalized once, and never deleted.
package store

import "github.com/kilnworks/kiln/internal/domain"

// Store is the worker record persistence port. Load returns nil (no error)
// when no record exists for the key.
type Store interface {
	Load(repo string, issue int) (*domain.WorkerRecord, error)
	Save(record *domain.WorkerRecord) error
	ListActive() ([]*domain.WorkerRecord, error)
}
