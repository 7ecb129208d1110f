package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boucer/prospek360-recovery-engine/internal/autopilot/decision"
	"github.com/boucer/prospek360-recovery-engine/internal/autopilot/orchestrator"
	"github.com/boucer/prospek360-recovery-engine/internal/core/domain"
	"github.com/boucer/prospek360-recovery-engine/internal/infra/storage/memory"
	"github.com/boucer/prospek360-recovery-engine/internal/recovery"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type nopMessenger struct{}

func (nopMessenger) Send(ctx context.Context, ch domain.Channel, to, body, subject string) error {
	return nil
}

type nopTasks struct{}

func (nopTasks) CreateTask(ctx context.Context, title, description string) (string, error) {
	return "task", nil
}

type testAPI struct {
	handler http.Handler
	repo    *memory.FindingRepo
	now     time.Time
}

func newTestAPI(t *testing.T, checks map[string]HealthCheck) *testAPI {
	t.Helper()
	store := memory.NewMemoryStorage()
	a := &testAPI{repo: memory.NewFindingRepo(store), now: t0}
	clock := func() time.Time { return a.now }
	actions := memory.NewActionLog(store, 0)

	ocfg := orchestrator.DefaultConfig()
	ocfg.Now = clock
	orch := orchestrator.New(ocfg, memory.NewLocker(store).WithClock(clock), actions,
		nopMessenger{}, nopTasks{}, recovery.NewStoreCloser(a.repo, clock))

	cfg := recovery.DefaultConfig()
	cfg.Now = clock
	svc := recovery.NewService(cfg, a.repo, actions, orch)
	a.handler = NewServer(svc, 0, checks).Handler()

	for _, f := range []*domain.Finding{
		{ID: "a1", Type: domain.FindingTypeNoReply, Severity: 3, ValueCents: 1000, CreatedAt: t0},
		{ID: "a2", Type: domain.FindingTypeNoReply, Severity: 4, ValueCents: 2000, CreatedAt: t0},
		{ID: "p1", Type: domain.FindingTypePaymentPending, Severity: 5, ValueCents: 5000, CreatedAt: t0},
	} {
		require.NoError(t, a.repo.Save(context.Background(), f))
	}
	return a
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t, map[string]HealthCheck{
		"redis": func(ctx context.Context) error { return nil },
	})
	rec := a.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody[map[string]string](t, rec)["status"])

	a = newTestAPI(t, map[string]HealthCheck{
		"database": func(ctx context.Context) error { return errors.New("refused") },
	})
	rec = a.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "critical", body["status"])
	assert.Equal(t, "refused", body["database"])
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestAPI(t, nil)
	rec := a.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTemplates(t *testing.T) {
	a := newTestAPI(t, nil)
	rec := a.do(t, http.MethodGet, "/v1/autopilot/templates", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	keys := decodeBody[map[string][]string](t, rec)["templates"]
	assert.Contains(t, keys, decision.TemplatePaymentReminder)
	assert.Contains(t, keys, decision.TemplateInactiveClientNudge)
	assert.IsIncreasing(t, keys)
}

func TestLever(t *testing.T) {
	a := newTestAPI(t, nil)

	rec := a.do(t, http.MethodPost, "/v1/lever", leverRequest{Limit: 10, Strategy: "count"})
	require.Equal(t, http.StatusOK, rec.Code)
	lever := decodeBody[leverResponse](t, rec).Lever
	require.NotNil(t, lever)
	assert.Equal(t, domain.FindingTypeNoReply, lever.Type)
	assert.Equal(t, []string{"a2", "a1"}, lever.IDs)

	rec = a.do(t, http.MethodPost, "/v1/lever", leverRequest{Strategy: "value"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.FindingTypePaymentPending, decodeBody[leverResponse](t, rec).Lever.Type)

	rec = a.do(t, http.MethodPost, "/v1/lever", leverRequest{Strategy: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFindingLifecycleEndpoints(t *testing.T) {
	a := newTestAPI(t, nil)

	rec := a.do(t, http.MethodPost, "/v1/findings/enqueue", idsRequest{IDs: []string{"a1", "a2"}})
	require.Equal(t, http.StatusOK, rec.Code)
	enq := decodeBody[recovery.EnqueueResult](t, rec)
	assert.Equal(t, 2, enq.QueuedCount)
	assert.Equal(t, int64(3000), enq.QueuedValueCents)

	rec = a.do(t, http.MethodPost, "/v1/findings/dequeue", idsRequest{IDs: []string{"a2"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[recovery.DequeueResult](t, rec).DequeuedCount)

	rec = a.do(t, http.MethodPost, "/v1/findings/execute", idsRequest{IDs: []string{"a1", "a2"}})
	require.Equal(t, http.StatusOK, rec.Code)
	exec := decodeBody[recovery.ExecuteResult](t, rec)
	assert.Equal(t, 1, exec.HandledCount)
	assert.Equal(t, int64(1000), exec.TotalValueCents)

	rec = a.do(t, http.MethodGet, "/v1/findings/pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decodeBody[map[string][]recovery.HandledItem](t, rec)["findings"]
	require.Len(t, pending, 1)
	assert.Equal(t, "a1", pending[0].Finding.ID)

	rec = a.do(t, http.MethodPost, "/v1/findings/undo", idsRequest{IDs: []string{"a1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[recovery.UndoResult](t, rec).RestoredCount)

	rec = a.do(t, http.MethodGet, "/v1/findings/a1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[domain.Finding](t, rec).Handled)
}

func TestUndoOne_StatusCodes(t *testing.T) {
	a := newTestAPI(t, nil)
	ctx := context.Background()
	require.NoError(t, a.repo.MarkHandled(ctx, "a1", t0))
	require.NoError(t, a.repo.MarkHandled(ctx, "a2", t0.Add(-time.Hour)))

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/v1/findings/a1/undo", nil).Code)
	assert.Equal(t, http.StatusConflict, a.do(t, http.MethodPost, "/v1/findings/a1/undo", nil).Code)
	assert.Equal(t, http.StatusGone, a.do(t, http.MethodPost, "/v1/findings/a2/undo", nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodPost, "/v1/findings/zz/undo", nil).Code)

	rec := a.do(t, http.MethodGet, "/v1/findings/confirmed?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	confirmed := decodeBody[map[string][]recovery.HandledItem](t, rec)["findings"]
	require.Len(t, confirmed, 1)
	assert.Equal(t, "a2", confirmed[0].Finding.ID)

	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/v1/findings/confirmed?limit=x", nil).Code)
}

func TestImport(t *testing.T) {
	a := newTestAPI(t, nil)

	rec := a.do(t, http.MethodPost, "/v1/findings", importRequest{Findings: []*domain.Finding{
		{Type: domain.FindingTypeInactiveClient, Severity: 3, ValueCents: 900},
	}})
	require.Equal(t, http.StatusCreated, rec.Code)
	saved := decodeBody[importRequest](t, rec).Findings
	require.Len(t, saved, 1)
	assert.NotEmpty(t, saved[0].ID)

	rec = a.do(t, http.MethodPost, "/v1/findings", importRequest{Findings: []*domain.Finding{
		{ID: "bad", Severity: 0},
	}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAutopilotRunAndLog(t *testing.T) {
	a := newTestAPI(t, nil)

	rec := a.do(t, http.MethodPost, "/v1/autopilot/run", runRequest{
		FindingID: "p1",
		Contact:   domain.Contact{Phone: "+15145550100"},
		Extras:    recovery.Extras{PaymentLink: "https://pay"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeBody[orchestrator.Result](t, rec)
	assert.True(t, res.OK)
	assert.True(t, res.Closed)
	assert.NotEmpty(t, res.Summary.Title)

	rec = a.do(t, http.MethodGet, "/v1/autopilot/log/p1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeBody[map[string][]domain.LogEntry](t, rec)["entries"]
	require.Len(t, entries, 2)
	assert.Equal(t, domain.ActionSendSMS, entries[0].Action)

	rec = a.do(t, http.MethodPost, "/v1/autopilot/run", runRequest{
		Context: &domain.AutoPilotContext{OpportunityID: "ext-1", FindingType: domain.FindingTypeNoReply, Severity: 4},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	res = decodeBody[orchestrator.Result](t, rec)
	assert.True(t, res.Blocked)
	assert.Equal(t, domain.BlockMissingContact, res.BlockReason)

	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodPost, "/v1/autopilot/run", runRequest{FindingID: "zz"}).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/v1/autopilot/run", runRequest{}).Code)
}

func TestBadBody(t *testing.T) {
	a := newTestAPI(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/findings/enqueue", bytes.NewBufferString(`{"idz":[]}`))
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_body", decodeBody[errorResponse](t, rec).Error)
}
