package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"consultation-desk/app"
	"consultation-desk/dashboard"
	"consultation-desk/store"
	"consultation-desk/utils"
	"consultation-desk/wizard"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultSearchSize = 50

type ConsultationHandler struct {
	store    store.Store
	sessions *Sessions
	index    utils.ConsultationIndex
	now      func() time.Time
	logger   *zap.Logger
}

// NewConsultationHandler wires the HTTP surface. index may be nil, in which
// case search answers 503.
func NewConsultationHandler(s store.Store, sessions *Sessions, index utils.ConsultationIndex,
	now func() time.Time, logger *zap.Logger) *ConsultationHandler {
	return &ConsultationHandler{store: s, sessions: sessions, index: index, now: now, logger: logger}
}

func (h *ConsultationHandler) Register(api *gin.RouterGroup) {
	api.GET("/consultations", h.ListConsultations)
	api.GET("/consultations/search", h.SearchConsultations)

	api.POST("/sessions", h.CreateSession)
	s := api.Group("/sessions/:sid")
	{
		s.GET("", h.GetSession)
		s.DELETE("", h.DeleteSession)

		s.PUT("/dashboard/period", h.SetPeriod)
		s.PUT("/dashboard/search", h.SetSearch)
		s.POST("/dashboard/refresh", h.Refresh)

		s.POST("/form", h.OpenForm)
		s.DELETE("/form", h.CancelForm)
		s.PATCH("/form/fields", h.SetFields)
		s.POST("/form/copy-applicant", h.formAction(func(c *gin.Context, f *wizard.Controller) error { return f.CopyApplicant() }))
		s.POST("/form/next", h.formAction(func(c *gin.Context, f *wizard.Controller) error { return f.Next() }))
		s.POST("/form/back", h.formAction(func(c *gin.Context, f *wizard.Controller) error { return f.Back() }))
		s.POST("/form/cancel-confirm", h.formAction(func(c *gin.Context, f *wizard.Controller) error { return f.CancelConfirm() }))
		s.POST("/form/save", h.formAction(func(c *gin.Context, f *wizard.Controller) error {
			_, err := f.RequestSave(c.Request.Context())
			return err
		}))
		s.POST("/form/confirm", h.formAction(func(c *gin.Context, f *wizard.Controller) error {
			_, err := f.Confirm(c.Request.Context())
			return err
		}))
		s.POST("/form/done", h.FinishForm)
	}
}

type SessionResponse struct {
	ID string `json:"id"`
	app.Snapshot
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Step    int               `json:"step,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	Session *SessionResponse  `json:"session,omitempty"`
}

type PeriodRequest struct {
	Year  int `json:"year" binding:"required"`
	Month int `json:"month" binding:"required"`
}

type SearchRequest struct {
	Query string `json:"q"`
}

type OpenFormRequest struct {
	ID string `json:"id"`
}

type FieldsRequest struct {
	Fields map[string]string `json:"fields" binding:"required"`
}

// ListConsultations is the stateless variant of the dashboard: one month,
// optionally filtered.
func (h *ConsultationHandler) ListConsultations(c *gin.Context) {
	now := h.now()
	year, err := intQuery(c, "year", now.Year())
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid year"})
		return
	}
	month, err := intQuery(c, "month", int(now.Month()))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid month"})
		return
	}
	if err := dashboard.ValidPeriod(year, month); err != nil {
		h.writeError(c, err, "")
		return
	}

	records, err := h.store.Fetch(c.Request.Context(), year, month)
	if err != nil {
		h.writeError(c, err, "")
		return
	}
	records = dashboard.Filter(records, c.Query("q"))
	c.JSON(http.StatusOK, gin.H{
		"year":    year,
		"month":   month,
		"count":   len(records),
		"records": records,
	})
}

func (h *ConsultationHandler) SearchConsultations(c *gin.Context) {
	if h.index == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "search is not configured"})
		return
	}
	size, err := intQuery(c, "size", defaultSearchSize)
	if err != nil || size < 1 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid size"})
		return
	}

	records, err := h.index.SearchConsultations(c.Request.Context(), c.Query("q"), size)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "search failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(records), "records": records})
}

func (h *ConsultationHandler) CreateSession(c *gin.Context) {
	id, a := h.sessions.Create(c.Request.Context())
	h.logger.Info("Desk session opened", zap.String("session", id))
	c.JSON(http.StatusCreated, SessionResponse{ID: id, Snapshot: a.Snapshot()})
}

func (h *ConsultationHandler) GetSession(c *gin.Context) {
	a, ok := h.session(c)
	if !ok {
		return
	}
	h.respond(c, a)
}

func (h *ConsultationHandler) DeleteSession(c *gin.Context) {
	if err := h.sessions.Delete(c.Param("sid")); err != nil {
		h.writeError(c, err, "")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ConsultationHandler) SetPeriod(c *gin.Context) {
	a, ok := h.session(c)
	if !ok {
		return
	}
	var req PeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if err := a.List().SetPeriod(c.Request.Context(), req.Year, req.Month); err != nil {
		h.writeError(c, err, c.Param("sid"))
		return
	}
	h.respond(c, a)
}

func (h *ConsultationHandler) SetSearch(c *gin.Context) {
	a, ok := h.session(c)
	if !ok {
		return
	}
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	a.List().SetSearch(req.Query)
	h.respond(c, a)
}

func (h *ConsultationHandler) Refresh(c *gin.Context) {
	a, ok := h.session(c)
	if !ok {
		return
	}
	a.List().Refresh(c.Request.Context())
	h.respond(c, a)
}

// OpenForm starts a new record for an empty id and edits a loaded one
// otherwise.
func (h *ConsultationHandler) OpenForm(c *gin.Context) {
	a, ok := h.session(c)
	if !ok {
		return
	}
	var req OpenFormRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
	}
	if req.ID == "" {
		a.StartNew()
	} else if _, err := a.StartEdit(req.ID); err != nil {
		h.writeError(c, err, c.Param("sid"))
		return
	}
	h.respond(c, a)
}

func (h *ConsultationHandler) CancelForm(c *gin.Context) {
	a, ok := h.session(c)
	if !ok {
		return
	}
	if err := a.CancelForm(); err != nil {
		h.writeError(c, err, c.Param("sid"))
		return
	}
	h.respond(c, a)
}

// SetFields applies a batch of edits. A rejected value leaves the form
// unchanged.
func (h *ConsultationHandler) SetFields(c *gin.Context) {
	a, form, ok := h.form(c)
	if !ok {
		return
	}
	var req FieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if err := form.SetFields(req.Fields); err != nil {
		h.writeError(c, err, c.Param("sid"))
		return
	}
	h.respond(c, a)
}

func (h *ConsultationHandler) FinishForm(c *gin.Context) {
	a, ok := h.session(c)
	if !ok {
		return
	}
	if _, err := a.FinishForm(c.Request.Context()); err != nil {
		h.writeError(c, err, c.Param("sid"))
		return
	}
	h.respond(c, a)
}

func (h *ConsultationHandler) formAction(action func(c *gin.Context, f *wizard.Controller) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, form, ok := h.form(c)
		if !ok {
			return
		}
		if err := action(c, form); err != nil {
			h.writeError(c, err, c.Param("sid"))
			return
		}
		h.respond(c, a)
	}
}

func (h *ConsultationHandler) session(c *gin.Context) (*app.App, bool) {
	a, err := h.sessions.Get(c.Param("sid"))
	if err != nil {
		h.writeError(c, err, "")
		return nil, false
	}
	return a, true
}

func (h *ConsultationHandler) form(c *gin.Context) (*app.App, *wizard.Controller, bool) {
	a, ok := h.session(c)
	if !ok {
		return nil, nil, false
	}
	form, err := a.Form()
	if err != nil {
		h.writeError(c, err, c.Param("sid"))
		return nil, nil, false
	}
	return a, form, true
}

func (h *ConsultationHandler) respond(c *gin.Context, a *app.App) {
	c.JSON(http.StatusOK, SessionResponse{ID: c.Param("sid"), Snapshot: a.Snapshot()})
}

// writeError maps domain errors to status codes. When sid names a live
// session its snapshot is attached so the client can redraw.
func (h *ConsultationHandler) writeError(c *gin.Context, err error, sid string) {
	resp := ErrorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	var verr *wizard.ValidationError
	switch {
	case errors.As(err, &verr):
		status = http.StatusUnprocessableEntity
		resp.Error = "validation failed"
		resp.Step = verr.Step
		resp.Fields = verr.Fields
	case errors.Is(err, wizard.ErrInvalidTransition),
		errors.Is(err, wizard.ErrBusy),
		errors.Is(err, wizard.ErrNotEditable):
		status = http.StatusConflict
	case errors.Is(err, wizard.ErrUnknownField),
		errors.Is(err, wizard.ErrInvalidValue),
		errors.Is(err, dashboard.ErrInvalidPeriod):
		status = http.StatusBadRequest
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, app.ErrRecordNotLoaded),
		errors.Is(err, app.ErrNoForm):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrSaveRejected),
		errors.Is(err, store.ErrTransport),
		errors.Is(err, store.ErrBackendUnavailable):
		status = http.StatusBadGateway
		resp.Error = "record store request failed"
		_ = c.Error(err)
	default:
		_ = c.Error(err)
	}

	if sid != "" {
		if a, gerr := h.sessions.Get(sid); gerr == nil {
			resp.Session = &SessionResponse{ID: sid, Snapshot: a.Snapshot()}
		}
	}
	c.JSON(status, resp)
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
