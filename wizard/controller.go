// Package wizard drives the three-step consultation form: field edits,
// validation at each step boundary, and the confirm/save sub-flow.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"consultation-desk/models"
	"consultation-desk/store"
)

var (
	ErrInvalidTransition = errors.New("action not allowed in the current state")
	ErrBusy              = errors.New("a save is in progress")
	ErrNotEditable       = errors.New("record cannot be edited in the current state")
)

const (
	NoticeSaveFailed  = "保存に失敗しました。もう一度お試しください。"
	PromptFirstVisit  = "初回訪問日時が設定されています。保存と同時にカレンダー予定を作成し、PDFを出力しますか？"
	MessageSaveDone   = "相談記録の保存とPDFの作成が完了しました。"
	TitleNew          = "新規相談登録"
	TitleEdit         = "相談記録の編集"
	stepCount         = 3
	percentMultiplier = 100
)

type State int

const (
	StateStep1 State = iota + 1
	StateStep2
	StateStep3
	StateConfirmPending
	StateSaving
	StateSucceeded
)

var stateNames = map[State]string{
	StateStep1:          "step1",
	StateStep2:          "step2",
	StateStep3:          "step3",
	StateConfirmPending: "confirm_pending",
	StateSaving:         "saving",
	StateSucceeded:      "succeeded",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for k, name := range stateNames {
		if name == string(b) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown wizard state %q", b)
}

// Step is the form page shown in this state.
func (s State) Step() int {
	switch s {
	case StateStep1:
		return 1
	case StateStep2:
		return 2
	default:
		return 3
	}
}

func (s State) editable() bool {
	return s == StateStep1 || s == StateStep2 || s == StateStep3
}

type Event int

const (
	EventNext Event = iota + 1
	EventBack
	EventAskConfirm
	EventSave
	EventConfirm
	EventCancel
	EventStored
	EventStoreFailed
	EventDone
)

// transitions is the complete state machine. Guards (validation, presence of
// a first-visit date) are checked by the methods before firing.
var transitions = map[State]map[Event]State{
	StateStep1:          {EventNext: StateStep2},
	StateStep2:          {EventNext: StateStep3, EventBack: StateStep1},
	StateStep3:          {EventBack: StateStep2, EventAskConfirm: StateConfirmPending, EventSave: StateSaving},
	StateConfirmPending: {EventConfirm: StateSaving, EventCancel: StateStep3},
	StateSaving:         {EventStored: StateSucceeded, EventStoreFailed: StateStep3},
	StateSucceeded:      {EventDone: StateSucceeded},
}

func next(from State, ev Event) (State, bool) {
	to, ok := transitions[from][ev]
	return to, ok
}

type Saver interface {
	Save(ctx context.Context, rec *models.Consultation) (store.SaveResult, error)
}

type Outcome string

const (
	OutcomeConfirmationRequired Outcome = "confirmation_required"
	OutcomeSaved                Outcome = "saved"
)

type Controller struct {
	saver        Saver
	documentLink func(fileID string) string

	mu        sync.Mutex
	state     State
	record    *models.Consultation
	initialID string
	errors    map[string]string
	notice    string
	result    *store.SaveResult
	done      bool
}

type Option func(*Controller)

// WithDocumentLinks sets how an already generated document is linked.
func WithDocumentLinks(link func(fileID string) string) Option {
	return func(c *Controller) { c.documentLink = link }
}

// New starts the wizard on step 1. A nil record starts a new consultation
// dated now; otherwise the record is copied and edited in place of it.
func New(saver Saver, rec *models.Consultation, now time.Time, opts ...Option) *Controller {
	if rec == nil {
		rec = models.NewConsultation(now)
	} else {
		rec = rec.Clone()
	}
	c := &Controller{
		saver:     saver,
		state:     StateStep1,
		record:    rec,
		initialID: rec.ID,
		errors:    map[string]string{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) guard() error {
	if c.state == StateSaving {
		return ErrBusy
	}
	return nil
}

func (c *Controller) fire(ev Event) error {
	to, ok := next(c.state, ev)
	if !ok {
		return ErrInvalidTransition
	}
	c.state = to
	return nil
}

func (c *Controller) SetField(name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guard(); err != nil {
		return err
	}
	if !c.state.editable() {
		return ErrNotEditable
	}
	if err := SetField(c.record, name, value); err != nil {
		return err
	}
	delete(c.errors, name)
	return nil
}

// SetFields applies a batch of edits all or nothing: the record is left
// untouched when any value is rejected.
func (c *Controller) SetFields(values map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guard(); err != nil {
		return err
	}
	if !c.state.editable() {
		return ErrNotEditable
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	draft := c.record.Clone()
	for _, name := range names {
		if err := SetField(draft, name, values[name]); err != nil {
			return err
		}
	}
	c.record = draft
	for _, name := range names {
		delete(c.errors, name)
	}
	return nil
}

// CopyApplicant is the details-step shortcut for when the applicant is
// consulting for themself.
func (c *Controller) CopyApplicant() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guard(); err != nil {
		return err
	}
	if c.state != StateStep2 {
		return ErrNotEditable
	}
	for _, name := range CopyApplicant(c.record) {
		delete(c.errors, name)
	}
	return nil
}

func (c *Controller) Next() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guard(); err != nil {
		return err
	}
	if _, ok := next(c.state, EventNext); !ok {
		return ErrInvalidTransition
	}
	if err := c.validate(c.state.Step()); err != nil {
		return err
	}
	return c.fire(EventNext)
}

func (c *Controller) Back() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guard(); err != nil {
		return err
	}
	return c.fire(EventBack)
}

// RequestSave validates the last step. With a first-visit date it stops at
// ConfirmPending; otherwise it saves straight away.
func (c *Controller) RequestSave(ctx context.Context) (Outcome, error) {
	c.mu.Lock()

	if err := c.guard(); err != nil {
		c.mu.Unlock()
		return "", err
	}
	if _, ok := next(c.state, EventSave); !ok {
		c.mu.Unlock()
		return "", ErrInvalidTransition
	}
	if err := c.validate(3); err != nil {
		c.mu.Unlock()
		return "", err
	}
	if c.record.HasFirstVisit() {
		err := c.fire(EventAskConfirm)
		c.mu.Unlock()
		return OutcomeConfirmationRequired, err
	}
	return c.save(ctx, EventSave)
}

func (c *Controller) Confirm(ctx context.Context) (Outcome, error) {
	c.mu.Lock()

	if err := c.guard(); err != nil {
		c.mu.Unlock()
		return "", err
	}
	if _, ok := next(c.state, EventConfirm); !ok {
		c.mu.Unlock()
		return "", ErrInvalidTransition
	}
	return c.save(ctx, EventConfirm)
}

func (c *Controller) CancelConfirm() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guard(); err != nil {
		return err
	}
	return c.fire(EventCancel)
}

// save is entered with c.mu held and releases it around the store call so
// snapshots can observe StateSaving.
func (c *Controller) save(ctx context.Context, ev Event) (Outcome, error) {
	if err := c.fire(ev); err != nil {
		c.mu.Unlock()
		return "", err
	}
	c.notice = ""
	c.result = nil
	rec := c.record.Clone()
	c.mu.Unlock()

	res, err := c.saver.Save(ctx, rec)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.notice = NoticeSaveFailed
		_ = c.fire(EventStoreFailed)
		return "", err
	}
	c.result = &res
	_ = c.fire(EventStored)
	return OutcomeSaved, nil
}

// Done leaves the success state. The caller owns returning to the list.
func (c *Controller) Done() (store.SaveResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guard(); err != nil {
		return store.SaveResult{}, err
	}
	if c.done {
		return store.SaveResult{}, ErrInvalidTransition
	}
	if err := c.fire(EventDone); err != nil {
		return store.SaveResult{}, err
	}
	c.done = true
	return *c.result, nil
}

func (c *Controller) validate(step int) error {
	if errs := ValidateStep(step, c.record); len(errs) > 0 {
		c.errors = errs
		return &ValidationError{Step: step, Fields: errs}
	}
	return nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Record returns a copy of the in-progress record.
func (c *Controller) Record() *models.Consultation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record.Clone()
}

func (c *Controller) Errors() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyErrors(c.errors)
}

type Snapshot struct {
	State               State                `json:"state"`
	Step                int                  `json:"step"`
	Mode                string               `json:"mode"`
	Title               string               `json:"title"`
	Progress            int                  `json:"progress"`
	StepLabels          []string             `json:"stepLabels"`
	Panel               Panel                `json:"panel"`
	Record              *models.Consultation `json:"record"`
	Errors              map[string]string    `json:"errors"`
	Prompt              string               `json:"prompt,omitempty"`
	Notice              string               `json:"notice,omitempty"`
	Result              *store.SaveResult    `json:"result,omitempty"`
	Message             string               `json:"message,omitempty"`
	ExistingDocumentURL string               `json:"existingDocumentUrl,omitempty"`
	Done                bool                 `json:"done"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	step := c.state.Step()
	s := Snapshot{
		State:      c.state,
		Step:       step,
		Mode:       "new",
		Title:      TitleNew,
		Progress:   step * percentMultiplier / stepCount,
		StepLabels: stepLabels,
		Panel:      BuildPanel(step, c.record, c.errors),
		Record:     c.record.Clone(),
		Errors:     copyErrors(c.errors),
		Notice:     c.notice,
		Done:       c.done,
	}
	if c.initialID != "" {
		s.Mode, s.Title = "edit", TitleEdit
	}
	if c.state == StateConfirmPending {
		s.Prompt = PromptFirstVisit
	}
	if c.result != nil {
		res := *c.result
		res.Record = nil
		s.Result = &res
		s.Message = MessageSaveDone
	} else if c.documentLink != nil && c.record.PdfFileID != nil && *c.record.PdfFileID != "" {
		s.ExistingDocumentURL = c.documentLink(*c.record.PdfFileID)
	}
	return s
}

func copyErrors(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
