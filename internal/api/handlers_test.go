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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nayasahai/recovery/internal/advisory"
	"github.com/nayasahai/recovery/internal/auth"
	"github.com/nayasahai/recovery/internal/cases"
	"github.com/nayasahai/recovery/internal/config"
	"github.com/nayasahai/recovery/internal/incident"
	"github.com/nayasahai/recovery/internal/metrics"
	"github.com/nayasahai/recovery/internal/nextaction"
)

// policeOracle always recommends the criminal channel
var policeOracle = advisory.OracleFunc(func(ctx context.Context, req advisory.Request) (*advisory.Payload, error) {
	return &advisory.Payload{
		Summary: "Act quickly to freeze the money trail.",
		Steps: []string{
			"Call 1930 and report the transaction.",
			"If the bank stalls, file a complaint on cybercrime.gov.in.",
			"Escalate to the local police Cyber Cell with your acknowledgement number.",
		},
	}, nil
})

// consumerOracle always recommends the civil channel
var consumerOracle = advisory.OracleFunc(func(ctx context.Context, req advisory.Request) (*advisory.Payload, error) {
	return &advisory.Payload{
		Summary: "The seller owes you a refund.",
		Steps:   []string{"Send written complaint", "Call 1915", "File e-Jagriti case"},
	}, nil
})

type testEnv struct {
	router *gin.Engine
	store  cases.Store
	alice  string
	bob    string
}

func setupTestEnv(t *testing.T, store cases.Store, oracle advisory.Oracle, checks map[string]HealthCheck) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog, err := incident.Default()
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	logger := zap.NewNop()

	cfg := &config.Config{
		Environment: "test",
		Metrics:     config.MetricsConfig{Enabled: true, Prometheus: config.PrometheusConfig{Enabled: true, Endpoint: "/metrics"}},
		Security:    config.SecurityConfig{APIAuth: config.APIAuthConfig{Enabled: true, JWTSecret: "test-secret", JWTExpiry: 1}},
	}
	authService := auth.NewService(cfg.Security.APIAuth)

	router := SetupRouter(cfg, logger, Dependencies{
		Catalog:  catalog,
		Cases:    cases.NewManager(store, catalog, logger, collector),
		Advisor:  advisory.NewAdvisor(oracle, time.Second, logger, collector),
		Auth:     authService,
		Metrics:  collector,
		Gatherer: reg,
		Checks:   checks,
		Version:  "test",
	})

	alice, err := authService.GenerateToken(&auth.User{ID: "user-alice", Plan: cases.PlanToolkit})
	require.NoError(t, err)
	bob, err := authService.GenerateToken(&auth.User{ID: "user-bob", Plan: cases.PlanFree})
	require.NoError(t, err)

	return &testEnv{router: router, store: store, alice: alice, bob: bob}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestHealth(t *testing.T) {
	env := setupTestEnv(t, cases.NewMemoryStore(), policeOracle, map[string]HealthCheck{
		"database": func(ctx context.Context) error { return nil },
	})

	w := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	decode(t, w, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "2025.1", body["catalog_version"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestHealthUnhealthy(t *testing.T) {
	env := setupTestEnv(t, cases.NewMemoryStore(), policeOracle, map[string]HealthCheck{
		"redis": func(ctx context.Context) error { return errors.New("connection refused") },
	})

	w := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestEnv(t, cases.NewMemoryStore(), policeOracle, nil)

	env.do(t, http.MethodGet, "/api/v1/incidents", env.alice, nil)
	w := env.do(t, http.MethodGet, "/metrics", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "nayasahai_recovery_http_requests_total")
}

func TestMetricsEndpointDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	catalog, err := incident.Default()
	require.NoError(t, err)

	cfg := &config.Config{
		Environment: "test",
		Metrics:     config.MetricsConfig{Enabled: false, Prometheus: config.PrometheusConfig{Enabled: true, Endpoint: "/metrics"}},
	}
	router := SetupRouter(cfg, zap.NewNop(), Dependencies{
		Catalog:  catalog,
		Auth:     auth.NewService(cfg.Security.APIAuth),
		Gatherer: prometheus.NewRegistry(),
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequiresAuthentication(t *testing.T) {
	env := setupTestEnv(t, cases.NewMemoryStore(), policeOracle, nil)

	w := env.do(t, http.MethodGet, "/api/v1/cases", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIncidentRoutes(t *testing.T) {
	env := setupTestEnv(t, cases.NewMemoryStore(), policeOracle, nil)

	t.Run("search", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/incidents?q=UPI", env.alice, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Incidents []incident.Definition `json:"incidents"`
			Count     int                   `json:"count"`
		}
		decode(t, w, &body)
		require.NotZero(t, body.Count)
		assert.Equal(t, "upi-card-fraud", body.Incidents[0].ID)
	})

	t.Run("filter by category", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/incidents?category=Consumer+Dispute", env.alice, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Incidents []incident.Definition `json:"incidents"`
		}
		decode(t, w, &body)
		require.Len(t, body.Incidents, 3)
		for _, d := range body.Incidents {
			assert.Equal(t, incident.CategoryConsumerDispute, d.Category)
		}
	})

	t.Run("unknown category", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/incidents?category=Piracy", env.alice, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("categories", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/incidents/categories", env.alice, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Matrimony Scam")
	})

	t.Run("get with sorted escalation", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/incidents/aadhaar-identity-misuse", env.alice, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Incident   incident.Definition       `json:"incident"`
			Escalation []incident.EscalationStep `json:"escalation"`
		}
		decode(t, w, &body)
		assert.Equal(t, "aadhaar-identity-misuse", body.Incident.ID)
		require.NotEmpty(t, body.Escalation)
		for i := 1; i < len(body.Escalation); i++ {
			assert.LessOrEqual(t, body.Escalation[i-1].Level, body.Escalation[i].Level)
		}
	})

	t.Run("not found", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/incidents/does-not-exist", env.alice, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("next action", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/incidents/upi-card-fraud/next-action?status=Not+Reported", env.alice, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]string
		decode(t, w, &body)
		assert.Equal(t, "Call 1930 immediately (Golden Hour).", body["next_action"])
	})

	t.Run("next action unknown status", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/incidents/upi-card-fraud/next-action?status=Lost", env.alice, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]string
		decode(t, w, &body)
		assert.Equal(t, "Lost", body["status"])
		assert.Equal(t, nextaction.Resolve(incident.CategoryFinancialFraud, "Lost"), body["next_action"])
		assert.NotEmpty(t, body["next_action"])
	})
}

func TestGenerateAdvisoryFreeTextConsumerComplaint(t *testing.T) {
	env := setupTestEnv(t, cases.NewMemoryStore(), consumerOracle, nil)

	w := env.do(t, http.MethodPost, "/api/v1/advisory", env.bob, gin.H{
		"description": "Seller refused refund for my defective phone",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Advisory advisory.Payload `json:"advisory"`
		Fallback bool             `json:"fallback"`
	}
	decode(t, w, &body)
	assert.False(t, body.Fallback)
	assert.Equal(t, []string{"Send written complaint", "Call 1915", "File e-Jagriti case"}, body.Advisory.Steps)

	t.Run("known civil incident still guarded", func(t *testing.T) {
		env := setupTestEnv(t, cases.NewMemoryStore(), policeOracle, nil)
		w := env.do(t, http.MethodPost, "/api/v1/advisory", env.bob, gin.H{
			"incident_id": "product-refund-dispute",
			"description": "Seller refused refund for my defective phone",
		})
		require.Equal(t, http.StatusOK, w.Code)
		decode(t, w, &body)
		assert.True(t, body.Fallback)
	})
}

func TestGenerateAdvisory(t *testing.T) {
	env := setupTestEnv(t, cases.NewMemoryStore(), policeOracle, nil)

	tests := []struct {
		name     string
		body     interface{}
		status   int
		fallback bool
	}{
		{name: "criminal incident accepts police guidance", body: gin.H{"incident_id": "upi-card-fraud"}, status: http.StatusOK},
		{name: "civil incident rejects police guidance", body: gin.H{"incident_id": "product-refund-dispute"}, status: http.StatusOK, fallback: true},
		{name: "free text description", body: gin.H{"description": "Someone emptied my wallet"}, status: http.StatusOK},
		{name: "unknown incident", body: gin.H{"incident_id": "nope"}, status: http.StatusNotFound},
		{name: "empty request", body: gin.H{}, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/advisory", env.bob, tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status != http.StatusOK {
				return
			}

			var body struct {
				Advisory advisory.Payload `json:"advisory"`
				Fallback bool             `json:"fallback"`
			}
			decode(t, w, &body)
			assert.Equal(t, tt.fallback, body.Fallback)
			assert.Len(t, body.Advisory.Steps, advisory.StepCount)
			if tt.fallback {
				assert.Equal(t, advisory.Fallback(), body.Advisory)
			}
		})
	}
}

func TestCaseLifecycle(t *testing.T) {
	env := setupTestEnv(t, cases.NewMemoryStore(), policeOracle, nil)

	w := env.do(t, http.MethodPost, "/api/v1/cases", env.alice, gin.H{
		"incident_id": "upi-card-fraud",
		"loss_amount": 25000,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created cases.CaseRecord
	decode(t, w, &created)
	assert.Equal(t, nextaction.StatusNotReported, created.Status)
	assert.Equal(t, "Call 1930 immediately (Golden Hour).", created.NextAction)
	path := "/api/v1/cases/" + created.ID

	w = env.do(t, http.MethodPut, path+"/status", env.alice, gin.H{"status": "Reported to 1930"})
	require.Equal(t, http.StatusOK, w.Code)
	var updated cases.CaseRecord
	decode(t, w, &updated)
	assert.Equal(t, "File complaint on National Cyber Crime Portal.", updated.NextAction)

	w = env.do(t, http.MethodPut, path+"/status", env.alice, gin.H{"status": "Lost"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPatch, path, env.alice, gin.H{"complaint_reference": "ACK-123"})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &updated)
	assert.Equal(t, "ACK-123", updated.ComplaintReference)
	assert.Equal(t, 25000.0, updated.LossAmount)

	w = env.do(t, http.MethodPut, path+"/evidence", env.alice, gin.H{"items": []string{"Bank Statement showing fraud"}})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPut, path+"/evidence", env.alice, gin.H{"items": []string{"A selfie"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, path, env.alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail struct {
		Case     cases.CaseRecord `json:"case"`
		Coverage float64          `json:"evidence_coverage"`
	}
	decode(t, w, &detail)
	assert.Equal(t, cases.StringList{"Bank Statement showing fraud"}, detail.Case.SelectedEvidence)
	assert.Greater(t, detail.Coverage, 0.0)

	w = env.do(t, http.MethodGet, path, env.bob, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "cases are owner scoped")

	w = env.do(t, http.MethodGet, "/api/v1/cases/summary", env.alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary cases.Summary
	decode(t, w, &summary)
	assert.Equal(t, 1, summary.TotalCases)
	assert.Equal(t, 25000.0, summary.TotalLoss)

	w = env.do(t, http.MethodGet, "/api/v1/cases", env.alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), created.ID)

	w = env.do(t, http.MethodDelete, path, env.alice, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodDelete, path, env.alice, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateCaseValidation(t *testing.T) {
	env := setupTestEnv(t, cases.NewMemoryStore(), policeOracle, nil)

	tests := []struct {
		name   string
		body   interface{}
		status int
	}{
		{name: "missing incident", body: gin.H{"loss_amount": 10}, status: http.StatusBadRequest},
		{name: "unknown incident", body: gin.H{"incident_id": "nope"}, status: http.StatusNotFound},
		{name: "negative amount", body: gin.H{"incident_id": "upi-card-fraud", "loss_amount": -1}, status: http.StatusBadRequest},
		{name: "unknown status", body: gin.H{"incident_id": "upi-card-fraud", "status": "Lost"}, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/cases", env.alice, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestGenerateCaseAdvisory(t *testing.T) {
	env := setupTestEnv(t, cases.NewMemoryStore(), policeOracle, nil)

	w := env.do(t, http.MethodPost, "/api/v1/cases", env.alice, gin.H{"incident_id": "product-refund-dispute"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created cases.CaseRecord
	decode(t, w, &created)

	w = env.do(t, http.MethodPost, "/api/v1/cases/"+created.ID+"/advisory", env.alice, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Advisory advisory.Payload `json:"advisory"`
		Fallback bool             `json:"fallback"`
		Case     cases.CaseRecord `json:"case"`
	}
	decode(t, w, &body)
	assert.True(t, body.Fallback, "police guidance must not reach a consumer dispute")
	require.NotNil(t, body.Case.AIInsight)
	assert.Equal(t, advisory.Fallback().Steps, body.Case.AIInsight.Steps)
}

func TestGenerateCaseAdvisoryRequiresToolkit(t *testing.T) {
	env := setupTestEnv(t, cases.NewMemoryStore(), policeOracle, nil)

	w := env.do(t, http.MethodPost, "/api/v1/cases", env.bob, gin.H{"incident_id": "upi-card-fraud"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created cases.CaseRecord
	decode(t, w, &created)

	w = env.do(t, http.MethodPost, "/api/v1/cases/"+created.ID+"/advisory", env.bob, nil)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
}

type unavailableStore struct {
	cases.Store
}

func (unavailableStore) List(ctx context.Context, ownerID string) ([]cases.CaseRecord, error) {
	return nil, errors.New("connection reset by peer")
}

func TestStoreFailureIsRetryable(t *testing.T) {
	env := setupTestEnv(t, unavailableStore{Store: cases.NewMemoryStore()}, policeOracle, nil)

	w := env.do(t, http.MethodGet, "/api/v1/cases", env.alice, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]interface{}
	decode(t, w, &body)
	assert.Equal(t, true, body["retryable"])
}

func TestEvidenceRoutes(t *testing.T) {
	env := setupTestEnv(t, cases.NewMemoryStore(), policeOracle, nil)

	w := env.do(t, http.MethodPost, "/api/v1/evidence/identifiers", env.alice, gin.H{"text": "UTR 412345678901 from 9876543210"})
	require.Equal(t, http.StatusOK, w.Code)
	var ids cases.Identifiers
	decode(t, w, &ids)
	assert.Contains(t, ids.UTRs, "412345678901")
	assert.Contains(t, ids.Phones, "9876543210")

	w = env.do(t, http.MethodPost, "/api/v1/evidence/identifiers", env.alice, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/evidence/folders", env.alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"folders":["chats","financial","emails","identity","misc"]}`, w.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	env := setupTestEnv(t, cases.NewMemoryStore(), policeOracle, nil)

	w := env.do(t, http.MethodOptions, "/api/v1/cases", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
