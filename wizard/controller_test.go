package wizard

import (
	"context"
	"sync"
	"testing"
	"time"

	"consultation-desk/models"
	"consultation-desk/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 6, 12, 9, 0, 0, 0, time.UTC)

type fakeSaver struct {
	mu      sync.Mutex
	saved   []*models.Consultation
	err     error
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeSaver) Save(_ context.Context, rec *models.Consultation) (store.SaveResult, error) {
	if f.entered != nil {
		close(f.entered)
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, rec)
	if f.err != nil {
		return store.SaveResult{}, f.err
	}
	id := rec.ID
	if id == "" {
		id = "new-1"
	}
	res := store.SaveResult{ID: id, Record: rec}
	if rec.HasFirstVisit() {
		res.DocumentURL = "http://docs/" + id + ".xlsx"
	}
	return res, nil
}

func fill(t *testing.T, c *Controller, values map[string]string) {
	t.Helper()
	for k, v := range values {
		require.NoError(t, c.SetField(k, v), k)
	}
}

var (
	step1Values = map[string]string{"name": "山田 太郎", "furigana": "ヤマダ タロウ", "birthDate": "1940-01-15"}
	step2Values = map[string]string{"consultantName": "山田 花子", "content": "物忘れが心配"}
	step3Values = map[string]string{"response": "訪問予定", "staffName": "鈴木"}
)

func walkToStep3(t *testing.T, c *Controller) {
	t.Helper()
	fill(t, c, step1Values)
	require.NoError(t, c.Next())
	fill(t, c, step2Values)
	require.NoError(t, c.Next())
	fill(t, c, step3Values)
	require.Equal(t, StateStep3, c.State())
}

func TestValidateStepIffRequiredPresent(t *testing.T) {
	for step := 1; step <= 3; step++ {
		required := RequiredFields(step)
		require.NotEmpty(t, required)

		rec := &models.Consultation{}
		errs := ValidateStep(step, rec)
		assert.Len(t, errs, len(required))
		for _, name := range required {
			assert.Equal(t, MessageRequired, errs[name], name)
			require.NoError(t, SetField(rec, name, "2025-01-01"))
		}
		assert.Nil(t, ValidateStep(step, rec), "step %d", step)
	}
	assert.Nil(t, ValidateStep(4, &models.Consultation{}))
}

func TestNewStartsOnFirstStep(t *testing.T) {
	c := New(&fakeSaver{}, nil, now)
	s := c.Snapshot()

	assert.Equal(t, StateStep1, s.State)
	assert.Equal(t, 1, s.Step)
	assert.Equal(t, "new", s.Mode)
	assert.Equal(t, TitleNew, s.Title)
	assert.Equal(t, 33, s.Progress)
	assert.Equal(t, "2025-06-12", s.Record.ReceptionDate)
	assert.Equal(t, models.GenderMale, s.Record.Gender)
	assert.Equal(t, "基本情報", s.Panel.Title)
	assert.Empty(t, s.Errors)
}

func TestNextBlocksOnMissingFields(t *testing.T) {
	c := New(&fakeSaver{}, nil, now)
	require.NoError(t, c.SetField("name", "山田 太郎"))

	err := c.Next()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 1, verr.Step)
	assert.Equal(t, StateStep1, c.State())
	assert.Equal(t, map[string]string{"furigana": MessageRequired, "birthDate": MessageRequired}, c.Errors())

	require.NoError(t, c.SetField("furigana", "ヤマダ タロウ"))
	assert.Equal(t, map[string]string{"birthDate": MessageRequired}, c.Errors())
}

func TestBackKeepsDataAndSkipsValidation(t *testing.T) {
	c := New(&fakeSaver{}, nil, now)
	fill(t, c, step1Values)
	require.NoError(t, c.Next())

	require.NoError(t, c.Back())
	assert.Equal(t, StateStep1, c.State())
	assert.Equal(t, "山田 太郎", c.Record().Name)
	assert.ErrorIs(t, c.Back(), ErrInvalidTransition)
}

func TestSaveWithoutFirstVisit(t *testing.T) {
	saver := &fakeSaver{}
	c := New(saver, nil, now)
	walkToStep3(t, c)

	outcome, err := c.RequestSave(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSaved, outcome)
	assert.Equal(t, StateSucceeded, c.State())
	require.Len(t, saver.saved, 1)
	assert.Equal(t, "物忘れが心配", saver.saved[0].Content)

	res, err := c.Done()
	require.NoError(t, err)
	assert.Equal(t, "new-1", res.ID)

	_, err = c.Done()
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSaveWithFirstVisitRequiresConfirmation(t *testing.T) {
	saver := &fakeSaver{}
	c := New(saver, nil, now)
	walkToStep3(t, c)
	require.NoError(t, c.SetField("firstVisitDate", "2025-06-20T10:00"))

	outcome, err := c.RequestSave(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmationRequired, outcome)
	assert.Equal(t, StateConfirmPending, c.State())
	assert.Equal(t, PromptFirstVisit, c.Snapshot().Prompt)
	assert.Empty(t, saver.saved)

	require.NoError(t, c.CancelConfirm())
	assert.Equal(t, StateStep3, c.State())
	assert.Empty(t, saver.saved)

	_, err = c.RequestSave(context.Background())
	require.NoError(t, err)
	outcome, err = c.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSaved, outcome)

	s := c.Snapshot()
	assert.Equal(t, StateSucceeded, s.State)
	require.NotNil(t, s.Result)
	assert.Equal(t, "http://docs/new-1.xlsx", s.Result.DocumentURL)
	assert.Equal(t, MessageSaveDone, s.Message)
}

func TestConfirmOutsidePendingIsRejected(t *testing.T) {
	c := New(&fakeSaver{}, nil, now)
	_, err := c.Confirm(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, c.CancelConfirm(), ErrInvalidTransition)

	_, err = c.RequestSave(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSaveFailurePreservesRecord(t *testing.T) {
	saver := &fakeSaver{err: store.ErrTransport}
	c := New(saver, nil, now)
	walkToStep3(t, c)

	_, err := c.RequestSave(context.Background())
	assert.ErrorIs(t, err, store.ErrTransport)

	s := c.Snapshot()
	assert.Equal(t, StateStep3, s.State)
	assert.Equal(t, NoticeSaveFailed, s.Notice)
	assert.Nil(t, s.Result)
	assert.Equal(t, "山田 太郎", s.Record.Name)
	assert.Equal(t, "訪問予定", s.Record.Response)

	saver.err = nil
	outcome, err := c.RequestSave(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSaved, outcome)
	assert.Empty(t, c.Snapshot().Notice)
}

func TestEditsRejectedWhileSaving(t *testing.T) {
	saver := &fakeSaver{gate: make(chan struct{}), entered: make(chan struct{})}
	c := New(saver, nil, now)
	walkToStep3(t, c)

	done := make(chan error, 1)
	go func() {
		_, err := c.RequestSave(context.Background())
		done <- err
	}()
	<-saver.entered

	assert.Equal(t, StateSaving, c.State())
	assert.ErrorIs(t, c.SetField("name", "x"), ErrBusy)
	assert.ErrorIs(t, c.Back(), ErrBusy)
	_, err := c.RequestSave(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	close(saver.gate)
	require.NoError(t, <-done)
	assert.Equal(t, StateSucceeded, c.State())
	assert.Len(t, saver.saved, 1)
}

func TestEditExistingRecord(t *testing.T) {
	existing := &models.Consultation{
		ID: "abc", ReceptionDate: "2025-06-01", Name: "佐藤", Furigana: "サトウ", BirthDate: "1950-02-02",
		Gender: models.GenderFemale, Method: models.MethodVisitHome,
		ConsultantName: "佐藤", Content: "相談", Response: "対応", StaffName: "鈴木",
		PdfFileID: models.StringPtr("doc-abc"),
	}
	saver := &fakeSaver{}
	c := New(saver, existing, now, WithDocumentLinks(func(id string) string { return "http://docs/" + id + ".xlsx" }))

	s := c.Snapshot()
	assert.Equal(t, "edit", s.Mode)
	assert.Equal(t, TitleEdit, s.Title)
	assert.Equal(t, "http://docs/doc-abc.xlsx", s.ExistingDocumentURL)

	require.NoError(t, c.SetField("name", "佐藤 花子"))
	assert.Equal(t, "佐藤", existing.Name)

	require.NoError(t, c.Next())
	require.NoError(t, c.Next())
	_, err := c.RequestSave(context.Background())
	require.NoError(t, err)
	require.Len(t, saver.saved, 1)
	assert.Equal(t, "abc", saver.saved[0].ID)
	assert.Empty(t, c.Snapshot().ExistingDocumentURL)
}

func TestCopyApplicant(t *testing.T) {
	c := New(&fakeSaver{}, nil, now)
	assert.ErrorIs(t, c.CopyApplicant(), ErrNotEditable)

	fill(t, c, step1Values)
	require.NoError(t, c.SetField("phone", "090-1111-2222"))
	require.NoError(t, c.Next())
	require.Error(t, c.Next())
	assert.Contains(t, c.Errors(), "consultantName")

	require.NoError(t, c.CopyApplicant())
	rec := c.Record()
	assert.Equal(t, "山田 太郎", rec.ConsultantName)
	assert.Equal(t, "090-1111-2222", models.Deref(rec.ConsultantPhone))
	assert.Equal(t, RelationshipSelf, models.Deref(rec.Relationship))
	assert.NotContains(t, c.Errors(), "consultantName")
	assert.Contains(t, c.Errors(), "content")
}

func TestSetFieldRejectsBadValues(t *testing.T) {
	c := New(&fakeSaver{}, nil, now)

	assert.ErrorIs(t, c.SetField("id", "x"), ErrUnknownField)
	assert.ErrorIs(t, c.SetField("pdfFileId", "x"), ErrUnknownField)
	assert.ErrorIs(t, c.SetField("gender", "unknown"), ErrInvalidValue)
	assert.ErrorIs(t, c.SetField("method", "メール"), ErrInvalidValue)
	assert.ErrorIs(t, c.SetField("birthDate", "1940/01/15"), ErrInvalidValue)
	assert.ErrorIs(t, c.SetField("certificationStatus", "要介護5"), ErrInvalidValue)

	require.NoError(t, c.SetField("certificationStatus", string(models.CertificationCareNeeded)))
	require.NoError(t, c.SetField("address", ""))
	assert.Nil(t, c.Record().Address)
}

func TestBuildPanelLayout(t *testing.T) {
	rec := models.NewConsultation(now)
	p := BuildPanel(2, rec, map[string]string{"content": MessageRequired})

	assert.Equal(t, "相談詳細", p.Title)
	assert.Equal(t, []string{ActionCopyApplicant}, p.Actions)
	var content *FieldView
	for i := range p.Fields {
		assert.Equal(t, 2, fieldsByName[p.Fields[i].Name].Step)
		if p.Fields[i].Name == "content" {
			content = &p.Fields[i]
		}
	}
	require.NotNil(t, content)
	assert.Equal(t, MessageRequired, content.Error)

	p3 := BuildPanel(3, rec, nil)
	assert.Equal(t, "対応記録・予定", p3.Title)
	assert.Empty(t, p3.Actions)
}

func TestTransitionTableHasNoDeadEnds(t *testing.T) {
	for s := range stateNames {
		assert.NotEmpty(t, transitions[s], s.String())
	}
	assert.Equal(t, "confirm_pending", StateConfirmPending.String())
	assert.Equal(t, "unknown", State(0).String())
}

func TestDetailsStepBlocksOnMissingContent(t *testing.T) {
	c := New(&fakeSaver{}, nil, now)
	fill(t, c, step1Values)
	require.NoError(t, c.Next())
	require.NoError(t, c.SetField("consultantName", "山田 花子"))

	err := c.Next()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, StateStep2, c.State())
	assert.Equal(t, map[string]string{"content": MessageRequired}, c.Errors())
	assert.Equal(t, MessageRequired, c.Snapshot().Panel.Fields[indexOf(t, c.Snapshot().Panel, "content")].Error)
}

func indexOf(t *testing.T, p Panel, name string) int {
	t.Helper()
	for i, f := range p.Fields {
		if f.Name == name {
			return i
		}
	}
	t.Fatalf("field %s not on panel %d", name, p.Step)
	return -1
}

func TestSetFieldsRejectsWholeBatch(t *testing.T) {
	c := New(&fakeSaver{}, nil, now)
	before := c.Record()

	err := c.SetFields(map[string]string{"name": "部分適用", "receptionDate": "not-a-date"})
	require.ErrorIs(t, err, ErrInvalidValue)
	assert.Equal(t, before, c.Record())

	require.Error(t, c.Next())
	require.Contains(t, c.Errors(), "name")
	require.NoError(t, c.SetFields(map[string]string{"name": "山田 太郎", "furigana": "ヤマダ タロウ"}))
	assert.Equal(t, "山田 太郎", c.Record().Name)
	assert.NotContains(t, c.Errors(), "name")
	assert.NotContains(t, c.Errors(), "furigana")
}
