// Package app routes one desk session between the record list and the
// consultation form.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"consultation-desk/dashboard"
	"consultation-desk/models"
	"consultation-desk/store"
	"consultation-desk/wizard"

	"go.uber.org/zap"
)

var (
	ErrRecordNotLoaded = errors.New("record is not in the loaded list")
	ErrNoForm          = errors.New("no form is open")
)

const (
	SavedNotice   = "保存しました"
	noticeTimeout = 3 * time.Second
)

type View string

const (
	ViewDashboard View = "dashboard"
	ViewForm      View = "form"
)

type App struct {
	store        store.Store
	now          func() time.Time
	documentLink func(string) string
	logger       *zap.Logger

	list *dashboard.ListView

	mu            sync.Mutex
	view          View
	form          *wizard.Controller
	refreshes     int
	notice        string
	noticeExpires time.Time
}

type Option func(*App)

func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// WithDocumentLinks is handed to every form the app opens.
func WithDocumentLinks(link func(string) string) Option {
	return func(a *App) { a.documentLink = link }
}

func New(s store.Store, logger *zap.Logger, opts ...Option) *App {
	a := &App{store: s, now: time.Now, logger: logger, view: ViewDashboard}
	for _, opt := range opts {
		opt(a)
	}
	a.list = dashboard.NewListView(s, a.now, logger)
	return a
}

func (a *App) List() *dashboard.ListView {
	return a.list
}

// Form returns the open wizard, if any.
func (a *App) Form() (*wizard.Controller, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.form == nil {
		return nil, ErrNoForm
	}
	return a.form, nil
}

func (a *App) StartNew() *wizard.Controller {
	return a.open(nil)
}

func (a *App) StartEdit(id string) (*wizard.Controller, error) {
	rec, ok := a.list.Find(id)
	if !ok {
		return nil, ErrRecordNotLoaded
	}
	return a.open(rec), nil
}

func (a *App) open(rec *models.Consultation) *wizard.Controller {
	var opts []wizard.Option
	if a.documentLink != nil {
		opts = append(opts, wizard.WithDocumentLinks(a.documentLink))
	}
	c := wizard.New(a.store, rec, a.now(), opts...)

	a.mu.Lock()
	a.form = c
	a.view = ViewForm
	a.mu.Unlock()
	return c
}

// CancelForm drops the form without reloading the list.
func (a *App) CancelForm() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.form == nil {
		return ErrNoForm
	}
	if a.form.State() == wizard.StateSaving {
		return wizard.ErrBusy
	}
	a.form = nil
	a.view = ViewDashboard
	return nil
}

// FinishForm closes a successfully saved form and reloads the list.
func (a *App) FinishForm(ctx context.Context) (store.SaveResult, error) {
	form, err := a.Form()
	if err != nil {
		return store.SaveResult{}, err
	}
	return a.finish(ctx, form)
}

func (a *App) finish(ctx context.Context, form *wizard.Controller) (store.SaveResult, error) {
	res, err := form.Done()
	if err != nil {
		return store.SaveResult{}, err
	}

	a.mu.Lock()
	// A form opened by a concurrent request stays open.
	if a.form == form {
		a.form = nil
		a.view = ViewDashboard
	}
	a.refreshes++
	a.notice = SavedNotice
	a.noticeExpires = a.now().Add(noticeTimeout)
	a.mu.Unlock()

	a.logger.Info("consultation saved", zap.String("id", res.ID))
	a.list.Refresh(ctx)
	return res, nil
}

// Reload refreshes the list after another session saved a record.
func (a *App) Reload(ctx context.Context) {
	a.mu.Lock()
	a.refreshes++
	a.mu.Unlock()
	a.list.Refresh(ctx)
}

type Snapshot struct {
	View      View               `json:"view"`
	Refreshes int                `json:"refreshes"`
	Notice    string             `json:"notice,omitempty"`
	Dashboard dashboard.Snapshot `json:"dashboard"`
	Form      *wizard.Snapshot   `json:"form,omitempty"`
}

func (a *App) Snapshot() Snapshot {
	a.mu.Lock()
	s := Snapshot{View: a.view, Refreshes: a.refreshes}
	if a.notice != "" && a.now().Before(a.noticeExpires) {
		s.Notice = a.notice
	}
	form := a.form
	a.mu.Unlock()

	s.Dashboard = a.list.Snapshot()
	if form != nil {
		fs := form.Snapshot()
		s.Form = &fs
	}
	return s
}
