package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	consenthandler "piiguard/internal/consent/handler"
	consentmodels "piiguard/internal/consent/models"
	pipelinehandler "piiguard/internal/pipeline/handler"
	"piiguard/internal/platform/config"
	"piiguard/internal/sealer"
	httptransport "piiguard/internal/transport/http"
	audit "piiguard/pkg/platform/audit"
	"piiguard/pkg/platform/audit/publisher"
	auditmemory "piiguard/pkg/platform/audit/store/memory"
	"piiguard/pkg/testutil"
)

// Justification for this test: it drives the fully wired in-memory server over
// HTTP, covering the document to deletion flow across every service.

func newTestServer(t *testing.T) (http.Handler, *auditmemory.InMemoryStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{
		Vault: config.VaultConfig{
			SessionOnlyTTL:      30 * time.Minute,
			KDFIterations:       sealer.MinIterations,
			MaxFailedRetrievals: 3,
			ContextHashKey:      "test-hash-key",
		},
		Detector: config.DetectorConfig{MaxDocumentBytes: 1 << 20},
		Consent:  config.ConsentConfig{PolicyVersion: "2024-01"},
	}
	events := auditmemory.NewInMemoryStore()
	pub := publisher.NewPublisher(events)
	t.Cleanup(pub.Close)

	in := &infra{}
	svc, err := buildServices(cfg, in, pub, prometheus.NewRegistry(), logger)
	require.NoError(t, err)

	return httptransport.NewRouter(httptransport.Dependencies{
		Logger:   logger,
		Features: svc.features(logger),
		Health:   in.healthChecks(),
	}), events
}

func send(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.NewJSONRequest(t, method, path, body)
	req = testutil.WithClientMetadata(req, "203.0.113.9", "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0")
	return testutil.DoRequest(h, req)
}

func TestDocumentLifecycle(t *testing.T) {
	h, events := newTestServer(t)
	const doc = "Contact Jane Smith at jane@x.com, premium $450/month"

	var processed *pipelinehandler.ProcessResponse
	testutil.Given(t, "a document with personal data", func(t *testing.T) {
		rr := send(t, h, http.MethodPost, "/v1/documents", map[string]string{
			"session_id": "sess-flow",
			"text":       doc,
		})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		processed = testutil.UnmarshalResponse[pipelinehandler.ProcessResponse](t, rr)

		assert.True(t, processed.PIIDetected)
		assert.NotEmpty(t, processed.CapabilityKey)
		assert.NotContains(t, processed.AnonymizedText, "jane@x.com")
		assert.NotContains(t, processed.AnonymizedText, "Jane Smith")
		assert.Equal(t, "session-only", processed.Retention)
	})
	require.NotNil(t, processed)

	testutil.When(t, "the user consents to names only", func(t *testing.T) {
		rr := send(t, h, http.MethodPut, "/v1/sessions/sess-flow/consent", map[string]any{
			"categories": map[string]bool{"name": true, "email": false},
			"retention":  "1-hour",
		})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	})

	testutil.Then(t, "personalization discloses only the name", func(t *testing.T) {
		rr := send(t, h, http.MethodPost, "/v1/sessions/sess-flow/personalize", map[string]string{
			"capability_key":  processed.CapabilityKey,
			"anonymized_text": "Dear [NAME_1], we will write to [EMAIL_1].",
		})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		result := testutil.UnmarshalResponse[consentmodels.PersonalizationResult](t, rr)
		assert.Equal(t, "Dear Jane Smith, we will write to [EMAIL_1].", result.Text)
		assert.Contains(t, result.PrivacyNote, "Withheld")
	})

	testutil.Then(t, "the transparency report lists what is held", func(t *testing.T) {
		rr := send(t, h, http.MethodPost, "/v1/sessions/sess-flow/transparency", map[string]string{
			"capability_key": processed.CapabilityKey,
		})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		report := testutil.UnmarshalResponse[consentmodels.TransparencyReport](t, rr)
		assert.Len(t, report.Entries, 3)
		assert.NotContains(t, rr.Body.String(), "jane@x.com")
	})

	testutil.Then(t, "a wrong key is rejected", func(t *testing.T) {
		rr := send(t, h, http.MethodPost, "/v1/sessions/sess-flow/transparency", map[string]string{
			"capability_key": strings.Repeat("A", len(processed.CapabilityKey)),
		})
		testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "decryption_failed")
	})

	testutil.When(t, "the user deletes everything", func(t *testing.T) {
		rr := send(t, h, http.MethodDelete, "/v1/sessions/sess-flow", nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		confirmation := testutil.UnmarshalResponse[consentmodels.DeletionConfirmation](t, rr)
		assert.True(t, confirmation.EntryPurged)
		assert.True(t, strings.HasPrefix(confirmation.Code, "DEL-"))
	})

	testutil.Then(t, "the original data is gone", func(t *testing.T) {
		rr := send(t, h, http.MethodPost, "/v1/sessions/sess-flow/personalize", map[string]string{
			"capability_key":  processed.CapabilityKey,
			"anonymized_text": "Dear [NAME_1]",
		})
		testutil.AssertStatusAndError(t, rr, http.StatusGone, "not_found_or_expired")

		rr = send(t, h, http.MethodGet, "/v1/sessions/sess-flow/consent", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		rec := testutil.UnmarshalResponse[consenthandler.ConsentResponse](t, rr)
		assert.Empty(t, rec.Categories, "consent is back to the default")
		assert.Equal(t, "session-only", rec.Retention)
		assert.Nil(t, rec.RecordedAt)
	})

	testutil.Then(t, "the audit trail holds no raw values", func(t *testing.T) {
		require.Eventually(t, func() bool {
			list, err := events.ListBySession(context.Background(), "sess-flow")
			return err == nil && hasAction(list, audit.EventSessionDeleted)
		}, 2*time.Second, 10*time.Millisecond)

		list, err := events.ListBySession(context.Background(), "sess-flow")
		require.NoError(t, err)
		for _, e := range list {
			assert.NotContains(t, e.Detail, "jane")
			assert.NotContains(t, e.Detail, processed.CapabilityKey)
		}
	})
}

func TestDocumentWithoutPII(t *testing.T) {
	h, _ := newTestServer(t)
	rr := send(t, h, http.MethodPost, "/v1/documents", map[string]string{
		"session_id": "sess-clean",
		"text":       "the weather was mild and the meeting ran long",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := testutil.UnmarshalResponse[pipelinehandler.ProcessResponse](t, rr)
	assert.False(t, resp.PIIDetected)
	assert.Empty(t, resp.CapabilityKey)
	assert.Equal(t, 1.0, resp.Confidence)
}

func TestHealthzInMemory(t *testing.T) {
	h, _ := newTestServer(t)
	rr := send(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func hasAction(events []audit.Event, action audit.AuditEvent) bool {
	for _, e := range events {
		if e.Action == string(action) {
			return true
		}
	}
	return false
}
