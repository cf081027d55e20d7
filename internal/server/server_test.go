package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tariffwatch/internal/ingest"
	"github.com/sells-group/tariffwatch/internal/model"
	"github.com/sells-group/tariffwatch/internal/store"
)

type stubResolver struct {
	rate model.TariffRate
}

func (s *stubResolver) Resolve(_ context.Context, code string) model.TariffRate {
	r := s.rate
	r.HSCode = code
	return r
}

type stubAlertStore struct {
	alerts   []model.Alert
	listErr  error
	markErr  error
	markedID string
	marked   bool
}

func (s *stubAlertStore) ListAlerts(_ context.Context, _ string, unreadOnly bool) ([]model.Alert, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	if !unreadOnly {
		return s.alerts, nil
	}
	var out []model.Alert
	for _, a := range s.alerts {
		if !a.IsRead {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *stubAlertStore) MarkAlertRead(_ context.Context, alertID string, read bool) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.markedID = alertID
	s.marked = read
	return nil
}

type stubProcessor struct {
	result ingest.Result
	err    error
	got    model.PolicyChange
}

func (s *stubProcessor) Process(_ context.Context, pc model.PolicyChange) (ingest.Result, error) {
	s.got = pc
	return s.result, s.err
}

func newTestServer(resolver *stubResolver, alerts *stubAlertStore, proc *stubProcessor) http.Handler {
	if resolver == nil {
		resolver = &stubResolver{}
	}
	if alerts == nil {
		alerts = &stubAlertStore{}
	}
	if proc == nil {
		proc = &stubProcessor{}
	}
	return New(resolver, alerts, proc).Router()
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(nil, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestResolve(t *testing.T) {
	resolver := &stubResolver{rate: model.TariffRate{MFNRate: 25, Source: "direct_hts_record"}}
	rec := httptest.NewRecorder()
	newTestServer(resolver, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/resolve/8542.31.00", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got model.TariffRate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "8542.31.00", got.HSCode)
	assert.Equal(t, 25.0, got.MFNRate)
	assert.Equal(t, "direct_hts_record", got.Source)
}

func TestListAlerts(t *testing.T) {
	alerts := &stubAlertStore{alerts: []model.Alert{
		{ID: "a1", UserID: "u1", Severity: model.SeverityHigh, PolicyType: model.PolicySection301, CostImpact: 100_000},
		{ID: "a2", UserID: "u1", Severity: model.SeverityLow, PolicyType: model.PolicyMFNRate, CostImpact: 500, IsRead: true},
	}}
	rec := httptest.NewRecorder()
	newTestServer(nil, alerts, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts?user_id=u1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Alerts []struct {
			ID       string `json:"id"`
			Headline string `json:"headline"`
		} `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Alerts, 2)
	assert.Equal(t, "HIGH: Section 301 change raises your annual duty cost by $100,000", resp.Alerts[0].Headline)
}

func TestListAlerts_UnreadFilter(t *testing.T) {
	alerts := &stubAlertStore{alerts: []model.Alert{
		{ID: "a1", UserID: "u1"},
		{ID: "a2", UserID: "u1", IsRead: true},
	}}
	rec := httptest.NewRecorder()
	newTestServer(nil, alerts, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts?user_id=u1&unread=true", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Alerts []struct {
			ID string `json:"id"`
		} `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Alerts, 1)
	assert.Equal(t, "a1", resp.Alerts[0].ID)
}

func TestListAlerts_MissingUserID(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(nil, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkRead(t *testing.T) {
	alerts := &stubAlertStore{}
	rec := httptest.NewRecorder()
	newTestServer(nil, alerts, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/alerts/a1/read", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a1", alerts.markedID)
	assert.True(t, alerts.marked)
}

func TestMarkRead_ExplicitUnread(t *testing.T) {
	alerts := &stubAlertStore{}
	req := httptest.NewRequest(http.MethodPost, "/alerts/a1/read", strings.NewReader(`{"read": false}`))
	rec := httptest.NewRecorder()
	newTestServer(nil, alerts, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, alerts.marked)
}

func TestMarkRead_NotFound(t *testing.T) {
	alerts := &stubAlertStore{markErr: store.ErrNotFound}
	rec := httptest.NewRecorder()
	newTestServer(nil, alerts, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/alerts/missing/read", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPolicyChangeWebhook(t *testing.T) {
	proc := &stubProcessor{result: ingest.Result{
		Users:   2,
		Summary: model.PushSummary{TotalAlertsCreated: 2, TotalCostIncrease: 150_000},
	}}
	body := `{
		"policy_type": "section_301",
		"hs_codes_affected": ["8542.31"],
		"old_rate": 60,
		"new_rate": 70,
		"confidence": 0.95
	}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/policy-change", strings.NewReader(body))
	rec := httptest.NewRecorder()
	newTestServer(nil, nil, proc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.PolicySection301, proc.got.PolicyType)

	var resp ingest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Summary.TotalAlertsCreated)
}

func TestPolicyChangeWebhook_QuarantinedIsAccepted(t *testing.T) {
	proc := &stubProcessor{result: ingest.Result{Quarantined: true}}
	body := `{
		"policy_type": "section_301",
		"hs_codes_affected": ["8542.31"],
		"old_rate": 60,
		"new_rate": 70,
		"confidence": 0.5
	}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/policy-change", strings.NewReader(body))
	rec := httptest.NewRecorder()
	newTestServer(nil, nil, proc).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestPolicyChangeWebhook_InvalidBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/webhook/policy-change", strings.NewReader(`{"policy_type": "bogus"}`))
	rec := httptest.NewRecorder()
	newTestServer(nil, nil, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPolicyChangeWebhook_ProcessorFailure(t *testing.T) {
	proc := &stubProcessor{err: errors.New("db down")}
	body := `{
		"policy_type": "mfn_rate",
		"hs_codes_affected": ["6109.10"],
		"old_rate": 16.5,
		"new_rate": 20,
		"confidence": 0.9
	}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/policy-change", strings.NewReader(body))
	rec := httptest.NewRecorder()
	newTestServer(nil, nil, proc).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
