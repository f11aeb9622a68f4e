package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"consultation-desk/document"
	"consultation-desk/models"

	"github.com/google/uuid"
)

// DocumentRenderer produces the downloadable sheet for a saved record.
type DocumentRenderer interface {
	Render(c *models.Consultation) (document.Document, error)
}

// LocalStore keeps every record as one JSON array under a single key. Each
// save is a read-modify-write of the whole array.
type LocalStore struct {
	kv    KV
	key   string
	docs  DocumentRenderer
	now   func() time.Time
	newID func() string

	// serialises read-modify-write cycles within this process
	mu sync.Mutex
}

type LocalOption func(*LocalStore)

func WithDocuments(r DocumentRenderer) LocalOption {
	return func(s *LocalStore) { s.docs = r }
}

func WithClock(now func() time.Time) LocalOption {
	return func(s *LocalStore) { s.now = now }
}

func WithIDGenerator(gen func() string) LocalOption {
	return func(s *LocalStore) { s.newID = gen }
}

func NewLocalStore(kv KV, key string, opts ...LocalOption) *LocalStore {
	s := &LocalStore{
		kv:    kv,
		key:   key,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LocalStore) Fetch(ctx context.Context, year, month int) ([]models.Consultation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.Consultation, 0, len(all))
	for i := range all {
		if all[i].ReceivedIn(year, month) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func (s *LocalStore) Save(ctx context.Context, rec *models.Consultation) (SaveResult, error) {
	if rec == nil {
		return SaveResult{}, errors.New("nil consultation")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load(ctx)
	if err != nil {
		return SaveResult{}, err
	}

	saved := rec.Clone()
	if saved.ID == "" {
		saved.ID = s.newID()
	} else {
		all = removeByID(all, saved.ID)
	}

	var result SaveResult
	if saved.HasFirstVisit() {
		if !saved.HasCalendarEvent() {
			saved.CalendarEventID = models.StringPtr("cal-" + s.newID())
		}
		if s.docs != nil {
			doc, err := s.docs.Render(saved)
			if err != nil {
				return SaveResult{}, fmt.Errorf("failed to render document: %w", err)
			}
			saved.PdfFileID = models.StringPtr(doc.FileID)
			saved.PdfCreatedAt = models.StringPtr(doc.CreatedAt)
			result.DocumentURL = doc.URL
		}
	}

	all = append([]models.Consultation{*saved}, all...)
	if err := s.write(ctx, all); err != nil {
		return SaveResult{}, err
	}

	result.ID = saved.ID
	result.Record = saved.Clone()
	return result, nil
}

// load returns the stored collection, seeding it with sample records the
// first time the key is read.
func (s *LocalStore) load(ctx context.Context) ([]models.Consultation, error) {
	raw, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, ErrKeyNotFound) {
		seed := sampleConsultations(s.now())
		if err := s.write(ctx, seed); err != nil {
			return nil, err
		}
		return seed, nil
	}
	if err != nil {
		return nil, err
	}

	var all []models.Consultation
	if err := json.Unmarshal([]byte(raw), &all); err != nil {
		return nil, fmt.Errorf("failed to decode stored consultations: %w", err)
	}
	return all, nil
}

func (s *LocalStore) write(ctx context.Context, all []models.Consultation) error {
	data, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("failed to encode consultations: %w", err)
	}
	return s.kv.Set(ctx, s.key, string(data))
}

func removeByID(all []models.Consultation, id string) []models.Consultation {
	out := all[:0]
	for _, c := range all {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}
