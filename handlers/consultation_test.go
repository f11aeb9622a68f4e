package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"consultation-desk/app"
	"consultation-desk/models"
	"consultation-desk/store"
	"consultation-desk/utils"
	"consultation-desk/wizard"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var june12 = time.Date(2025, 6, 12, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return june12 }

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeIndex struct {
	records []models.Consultation
	err     error
	query   string
	size    int
}

func (f *fakeIndex) IndexConsultation(context.Context, *models.Consultation) error { return nil }

func (f *fakeIndex) SearchConsultations(_ context.Context, text string, size int) ([]models.Consultation, error) {
	f.query, f.size = text, size
	return f.records, f.err
}

func (f *fakeIndex) Close() error { return nil }

func newLocalStore() store.Store {
	n := 0
	return store.NewLocalStore(store.NewMemoryKV(), "consultation_app_data",
		store.WithClock(clock),
		store.WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
	)
}

func newTestRouter(s store.Store, index utils.ConsultationIndex) (*gin.Engine, *Sessions) {
	sessions := NewSessions(func() *app.App {
		return app.New(s, zap.NewNop(), app.WithClock(clock))
	})
	r := gin.New()
	h := NewConsultationHandler(s, sessions, index, clock, zap.NewNop())
	h.Register(r.Group("/api/v1"))
	return r, sessions
}

func do(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeSession(t *testing.T, w *httptest.ResponseRecorder) SessionResponse {
	t.Helper()
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func openSession(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := do(t, r, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	return decodeSession(t, w).ID
}

func fillForm(t *testing.T, r *gin.Engine, base string, extra map[string]string) {
	t.Helper()
	steps := []map[string]string{
		{"name": "山田 太郎", "furigana": "ヤマダ タロウ", "birthDate": "1940-01-15"},
		{"consultantName": "山田 花子", "content": "物忘れが心配"},
		{"response": "訪問予定", "staffName": "鈴木"},
	}
	steps[2] = merge(steps[2], extra)
	for i, fields := range steps {
		w := do(t, r, http.MethodPatch, base+"/form/fields", FieldsRequest{Fields: fields})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		if i < 2 {
			w = do(t, r, http.MethodPost, base+"/form/next", nil)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		}
	}
}

func merge(a, b map[string]string) map[string]string {
	out := map[string]string{}
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func TestCreateSessionLoadsCurrentMonth(t *testing.T) {
	r, sessions := newTestRouter(newLocalStore(), nil)

	w := do(t, r, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decodeSession(t, w)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, app.ViewDashboard, resp.View)
	assert.Equal(t, 2025, resp.Dashboard.Year)
	assert.Equal(t, 6, resp.Dashboard.Month)
	assert.Equal(t, 5, resp.Dashboard.Count)
	assert.Equal(t, 1, sessions.Len())

	w = do(t, r, http.MethodDelete, "/api/v1/sessions/"+resp.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, sessions.Len())

	w = do(t, r, http.MethodGet, "/api/v1/sessions/"+resp.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewConsultationFlow(t *testing.T) {
	r, _ := newTestRouter(newLocalStore(), nil)
	sid := openSession(t, r)
	base := "/api/v1/sessions/" + sid

	w := do(t, r, http.MethodPost, base+"/form", OpenFormRequest{})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeSession(t, w)
	require.NotNil(t, resp.Form)
	assert.Equal(t, wizard.StateStep1, resp.Form.State)
	assert.Equal(t, wizard.TitleNew, resp.Form.Title)

	fillForm(t, r, base, nil)

	w = do(t, r, http.MethodPost, base+"/form/save", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp = decodeSession(t, w)
	assert.Equal(t, wizard.StateSucceeded, resp.Form.State)
	require.NotNil(t, resp.Form.Result)
	assert.Equal(t, "id-1", resp.Form.Result.ID)

	w = do(t, r, http.MethodPost, base+"/form/done", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeSession(t, w)
	assert.Equal(t, app.ViewDashboard, resp.View)
	assert.Nil(t, resp.Form)
	assert.Equal(t, app.SavedNotice, resp.Notice)
	assert.Equal(t, 6, resp.Dashboard.Count)
	assert.Equal(t, "id-1", resp.Dashboard.Records[0].ID)
}

func TestNextWithMissingFieldsIsUnprocessable(t *testing.T) {
	r, _ := newTestRouter(newLocalStore(), nil)
	base := "/api/v1/sessions/" + openSession(t, r)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, base+"/form", nil).Code)

	w := do(t, r, http.MethodPost, base+"/form/next", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Step)
	assert.Equal(t, wizard.MessageRequired, resp.Fields["name"])
	require.NotNil(t, resp.Session)
	assert.Equal(t, wizard.StateStep1, resp.Session.Form.State)
}

func TestFieldErrors(t *testing.T) {
	r, _ := newTestRouter(newLocalStore(), nil)
	base := "/api/v1/sessions/" + openSession(t, r)

	w := do(t, r, http.MethodPatch, base+"/form/fields", FieldsRequest{Fields: map[string]string{"name": "x"}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, base+"/form", nil).Code)

	w = do(t, r, http.MethodPatch, base+"/form/fields", FieldsRequest{Fields: map[string]string{"gender": "unknown"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, base+"/form/confirm", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestFirstVisitRequiresConfirmation(t *testing.T) {
	r, _ := newTestRouter(newLocalStore(), nil)
	base := "/api/v1/sessions/" + openSession(t, r)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, base+"/form", nil).Code)
	fillForm(t, r, base, map[string]string{"firstVisitDate": "2025-06-20T10:00"})

	w := do(t, r, http.MethodPost, base+"/form/save", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeSession(t, w)
	assert.Equal(t, wizard.StateConfirmPending, resp.Form.State)
	assert.Equal(t, wizard.PromptFirstVisit, resp.Form.Prompt)

	w = do(t, r, http.MethodPost, base+"/form/cancel-confirm", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, wizard.StateStep3, decodeSession(t, w).Form.State)

	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, base+"/form/save", nil).Code)
	w = do(t, r, http.MethodPost, base+"/form/confirm", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeSession(t, w)
	assert.Equal(t, wizard.StateSucceeded, resp.Form.State)
	assert.Equal(t, wizard.MessageSaveDone, resp.Form.Message)
}

func TestSaveFailureKeepsForm(t *testing.T) {
	r, _ := newTestRouter(store.Unavailable{Reason: errors.New("BRIDGE_URL is not set")}, nil)
	base := "/api/v1/sessions/" + openSession(t, r)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, base+"/form", nil).Code)
	fillForm(t, r, base, nil)

	w := do(t, r, http.MethodPost, base+"/form/save", nil)
	require.Equal(t, http.StatusBadGateway, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Session)
	require.NotNil(t, resp.Session.Form)
	assert.Equal(t, wizard.StateStep3, resp.Session.Form.State)
	assert.Equal(t, wizard.NoticeSaveFailed, resp.Session.Form.Notice)
	assert.Equal(t, "山田 太郎", resp.Session.Form.Record.Name)
}

func TestEditFromDashboard(t *testing.T) {
	r, _ := newTestRouter(newLocalStore(), nil)
	base := "/api/v1/sessions/" + openSession(t, r)

	w := do(t, r, http.MethodPost, base+"/form", OpenFormRequest{ID: "nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodPost, base+"/form", OpenFormRequest{ID: "mock-2"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeSession(t, w)
	assert.Equal(t, "edit", resp.Form.Mode)
	assert.Equal(t, "mock-2", resp.Form.Record.ID)

	w = do(t, r, http.MethodDelete, base+"/form", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decodeSession(t, w).Form)
}

func TestDashboardPeriodAndSearch(t *testing.T) {
	r, _ := newTestRouter(newLocalStore(), nil)
	base := "/api/v1/sessions/" + openSession(t, r)

	w := do(t, r, http.MethodPut, base+"/dashboard/search", SearchRequest{Query: "太郎 3"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeSession(t, w)
	assert.Equal(t, 1, resp.Dashboard.Count)

	w = do(t, r, http.MethodPut, base+"/dashboard/period", PeriodRequest{Year: 2025, Month: 13})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPut, base+"/dashboard/period", PeriodRequest{Year: 2025, Month: 5})
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeSession(t, w)
	assert.Equal(t, 5, resp.Dashboard.Month)
	assert.Equal(t, 0, resp.Dashboard.Count)

	w = do(t, r, http.MethodPost, base+"/dashboard/refresh", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListConsultations(t *testing.T) {
	r, _ := newTestRouter(newLocalStore(), nil)

	w := do(t, r, http.MethodGet, "/api/v1/consultations?year=2025&month=6&q=%E5%B1%B1%E7%94%B0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Count   int                   `json:"count"`
		Records []models.Consultation `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 5, body.Count)

	w = do(t, r, http.MethodGet, "/api/v1/consultations?month=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListConsultationsBackendDown(t *testing.T) {
	r, _ := newTestRouter(store.Unavailable{Reason: errors.New("no backend")}, nil)
	w := do(t, r, http.MethodGet, "/api/v1/consultations", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestSearchConsultations(t *testing.T) {
	r, _ := newTestRouter(newLocalStore(), nil)
	w := do(t, r, http.MethodGet, "/api/v1/consultations/search?q=yamada", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	idx := &fakeIndex{records: []models.Consultation{{ID: "a"}, {ID: "b"}}}
	r, _ = newTestRouter(newLocalStore(), idx)
	w = do(t, r, http.MethodGet, "/api/v1/consultations/search?q=yamada", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "yamada", idx.query)
	assert.Equal(t, defaultSearchSize, idx.size)
	assert.Contains(t, w.Body.String(), `"count":2`)

	idx.err = errors.New("es down")
	w = do(t, r, http.MethodGet, "/api/v1/consultations/search?q=yamada", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestReloadAllRefreshesSessions(t *testing.T) {
	s := newLocalStore()
	r, sessions := newTestRouter(s, nil)
	sid := openSession(t, r)

	_, err := s.Save(context.Background(), &models.Consultation{ReceptionDate: "2025-06-01", Name: "外部"})
	require.NoError(t, err)

	sessions.ReloadAll(context.Background())
	resp := decodeSession(t, do(t, r, http.MethodGet, "/api/v1/sessions/"+sid, nil))
	assert.Equal(t, 6, resp.Dashboard.Count)
	assert.Equal(t, 1, resp.Refreshes)
}

func TestHealth(t *testing.T) {
	r := gin.New()
	r.GET("/health", NewHealthHandler("local/memory", nil).Health)
	w := do(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"store":"local/memory"`)

	mr := miniredis.RunT(t)
	rc, err := utils.NewRedisClient(mr.Addr(), "")
	require.NoError(t, err)
	defer rc.Close()

	r = gin.New()
	r.GET("/health", NewHealthHandler("local/redis", rc).Health)
	w = do(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"available"`)

	mr.Close()
	w = do(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSetFieldsIsAllOrNothing(t *testing.T) {
	r, _ := newTestRouter(newLocalStore(), nil)
	base := "/api/v1/sessions/" + openSession(t, r)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, base+"/form", nil).Code)

	w := do(t, r, http.MethodPatch, base+"/form/fields", FieldsRequest{Fields: map[string]string{
		"name":          "部分適用",
		"receptionDate": "not-a-date",
	}})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Session)
	assert.Empty(t, resp.Session.Form.Record.Name)
	assert.Equal(t, "2025-06-12", resp.Session.Form.Record.ReceptionDate)
}

func TestListConsultationsRejectsOutOfRangeYear(t *testing.T) {
	r, _ := newTestRouter(newLocalStore(), nil)

	w := do(t, r, http.MethodGet, "/api/v1/consultations?year=10000&month=6", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/consultations?year=9999&month=6", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
