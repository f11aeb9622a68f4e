// Package dashboard is the month-by-month record list with its search box.
package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"consultation-desk/models"

	"go.uber.org/zap"
)

var ErrInvalidPeriod = errors.New("invalid year or month")

// Fetcher is the read half of the store client.
type Fetcher interface {
	Fetch(ctx context.Context, year, month int) ([]models.Consultation, error)
}

// ListView holds the selected period, the search text and the last loaded
// records. Loads are not cancelled or sequenced: when two overlap, whichever
// resolves last wins.
type ListView struct {
	fetcher Fetcher
	logger  *zap.Logger
	now     func() time.Time

	mu          sync.Mutex
	year, month int
	search      string
	records     []models.Consultation
	loading     bool
	loads       int
	lastErr     error
}

func NewListView(fetcher Fetcher, now func() time.Time, logger *zap.Logger) *ListView {
	if now == nil {
		now = time.Now
	}
	today := now()
	return &ListView{
		fetcher: fetcher,
		logger:  logger,
		now:     now,
		year:    today.Year(),
		month:   int(today.Month()),
		records: []models.Consultation{},
	}
}

// Load fetches the selected month. A failure keeps the previous records and
// is logged rather than returned.
func (v *ListView) Load(ctx context.Context) {
	v.mu.Lock()
	v.loading = true
	v.loads++
	year, month := v.year, v.month
	v.mu.Unlock()

	records, err := v.fetcher.Fetch(ctx, year, month)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.loading = false
	v.lastErr = err
	if err != nil {
		v.logger.Error("Failed to load consultations",
			zap.Int("year", year),
			zap.Int("month", month),
			zap.Error(err),
		)
		return
	}
	if records == nil {
		records = []models.Consultation{}
	}
	v.records = records
}

func (v *ListView) SetPeriod(ctx context.Context, year, month int) error {
	if err := ValidPeriod(year, month); err != nil {
		return err
	}
	v.mu.Lock()
	v.year, v.month = year, month
	v.mu.Unlock()

	v.Load(ctx)
	return nil
}

func (v *ListView) SetYear(ctx context.Context, year int) error {
	v.mu.Lock()
	month := v.month
	v.mu.Unlock()
	return v.SetPeriod(ctx, year, month)
}

func (v *ListView) SetMonth(ctx context.Context, month int) error {
	v.mu.Lock()
	year := v.year
	v.mu.Unlock()
	return v.SetPeriod(ctx, year, month)
}

// Refresh reloads the current period, e.g. after a save elsewhere.
func (v *ListView) Refresh(ctx context.Context) {
	v.Load(ctx)
}

// SetSearch only changes what Visible returns; it never fetches.
func (v *ListView) SetSearch(q string) {
	v.mu.Lock()
	v.search = q
	v.mu.Unlock()
}

func (v *ListView) Visible() []models.Consultation {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Filter(v.records, v.search)
}

// Find returns a copy of a loaded record, for editing.
func (v *ListView) Find(id string) (*models.Consultation, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.records {
		if v.records[i].ID == id {
			return v.records[i].Clone(), true
		}
	}
	return nil, false
}

type Snapshot struct {
	Year        int                   `json:"year"`
	Month       int                   `json:"month"`
	Search      string                `json:"search"`
	Loading     bool                  `json:"loading"`
	Count       int                   `json:"count"`
	Records     []models.Consultation `json:"records"`
	YearOptions []int                 `json:"yearOptions"`
	Months      []int                 `json:"months"`
	LoadError   bool                  `json:"loadError,omitempty"`
}

func (v *ListView) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	visible := Filter(v.records, v.search)
	return Snapshot{
		Year:        v.year,
		Month:       v.month,
		Search:      v.search,
		Loading:     v.loading,
		Count:       len(visible),
		Records:     visible,
		YearOptions: YearOptions(v.now().Year()),
		Months:      []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
		LoadError:   v.lastErr != nil,
	}
}

// Loads counts Load calls since creation.
func (v *ListView) Loads() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loads
}

// YearOptions is the selectable range: five years back to one ahead.
func YearOptions(current int) []int {
	out := make([]int, 0, 7)
	for y := current - 5; y <= current+1; y++ {
		out = append(out, y)
	}
	return out
}

// ValidPeriod bounds the selectable year and month.
func ValidPeriod(year, month int) error {
	if year < 1 || year > 9999 || month < 1 || month > 12 {
		return ErrInvalidPeriod
	}
	return nil
}
