package approval

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rosterforge/internal/bus"
	"rosterforge/internal/config"
	"rosterforge/internal/roster"
)

func newTestServer(secret string) (*Server, *bus.Bus) {
	gin.SetMode(gin.TestMode)
	b := bus.New(zap.NewNop().Sugar())
	s := New(b, zap.NewNop().Sugar(), config.Server{Port: 0, JWTSecret: secret}, prometheus.NewRegistry())
	return s, b
}

func escalate(b *bus.Bus, corr string) {
	b.Publish(bus.Message{
		Type:          bus.TypeViolation,
		Sender:        "coordinator",
		Recipient:     "approvals",
		CorrelationID: corr,
		Timestamp:     time.Now(),
		Payload: bus.ViolationPayload{
			Violations: []roster.Violation{{
				Kind: roster.Hard, Rule: roster.RuleMinStaffing, ShiftID: "s1",
				Description: "shift s1 has 1 staff on duty, minimum is 2", Severity: 9,
			}},
		},
	})
}

func TestListPendingApprovals(t *testing.T) {
	s, b := newTestServer("")
	escalate(b, "corr-1")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/approvals", nil)
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var pending []PendingApproval
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, "corr-1", pending[0].CorrelationID)
	assert.Len(t, pending[0].Violations, 1)
}

func TestDecisionPublishesApprovalAndClearsPending(t *testing.T) {
	s, b := newTestServer("")
	escalate(b, "corr-1")

	var approvals []bus.Message
	b.Subscribe(bus.TypeApproval, func(m bus.Message) { approvals = append(approvals, m) })

	body := `{"approved":true,"decided_by":"manager","note":"ok for this week"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/approvals/corr-1", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, approvals, 1)
	assert.Equal(t, "corr-1", approvals[0].CorrelationID)
	assert.Equal(t, "coordinator", approvals[0].Recipient)
	p := approvals[0].Payload.(bus.ApprovalPayload)
	assert.True(t, p.Approved)
	assert.Equal(t, "manager", p.DecidedBy)

	// The entry is gone; a second decision 404s.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/approvals/corr-1", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDecisionUnknownCorrelationIs404(t *testing.T) {
	s, _ := newTestServer("")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/approvals/ghost", strings.NewReader(`{"approved":true}`))
	req.Header.Set("Content-Type", "application/json")
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPIRequiresTokenWhenSecretConfigured(t *testing.T) {
	s, _ := newTestServer("test-secret")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/approvals", nil)
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/approvals", nil)
	req.Header.Set("Authorization", "not-a-token")
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMetricsEndpointIsOpen(t *testing.T) {
	s, _ := newTestServer("test-secret")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
