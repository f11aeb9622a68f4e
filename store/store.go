// Package store is the record store client: fetch and save of consultation
// records against either the remote bridge or the local fallback store.
package store

import (
	"context"
	"errors"

	"consultation-desk/models"
)

var (
	// ErrSaveRejected is a business failure reported by the backend.
	ErrSaveRejected = errors.New("save rejected by backend")
	// ErrTransport covers network and protocol failures talking to a backend.
	ErrTransport = errors.New("backend transport failure")
	// ErrBackendUnavailable means no usable backend was configured.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// Store is implemented by every backend. Failure is reported only through
// the returned error; a nil error means the operation fully succeeded.
type Store interface {
	Fetch(ctx context.Context, year, month int) ([]models.Consultation, error)
	Save(ctx context.Context, rec *models.Consultation) (SaveResult, error)
}

type SaveResult struct {
	ID          string `json:"id"`
	DocumentURL string `json:"documentUrl,omitempty"`
	// Record is the stored version when the backend returns it, otherwise
	// the submitted record with its id filled in.
	Record *models.Consultation `json:"-"`
}
