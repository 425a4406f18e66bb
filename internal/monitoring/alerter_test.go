package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isuku/isuku-dispatch/internal/config"
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{StaleThreshold: 5})

	alerts := a.Evaluate(&BacklogSnapshot{
		OpenPickups:         12,
		UnassignedPickups:   4,
		StalePickups:        4,
		AvailableCollectors: 3,
		StaleAfter:          2 * time.Hour,
	})
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_StalePickups(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{StaleThreshold: 5})

	alerts := a.Evaluate(&BacklogSnapshot{
		UnassignedPickups:   9,
		StalePickups:        6,
		AvailableCollectors: 2,
		StaleAfter:          2 * time.Hour,
	})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertStalePickups, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "6 pickup(s) unassigned for more than 2h0m0s")
}

func TestAlerter_Evaluate_ZeroThresholdMeansAny(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	alerts := a.Evaluate(&BacklogSnapshot{UnassignedPickups: 1, StalePickups: 1, AvailableCollectors: 1})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertStalePickups, alerts[0].Type)
}

func TestAlerter_Evaluate_NoCollectors(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{StaleThreshold: 5})

	alerts := a.Evaluate(&BacklogSnapshot{UnassignedPickups: 3})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertNoCollectors, alerts[0].Type)
	assert.Equal(t, "critical", alerts[0].Severity)

	// No backlog, no alert even without collectors.
	assert.Empty(t, a.Evaluate(&BacklogSnapshot{}))
}

func TestAlerter_SendAlerts(t *testing.T) {
	var received atomic.Int32
	var got Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertNoCollectors, Severity: "critical", Message: "m"}})

	assert.Equal(t, 1, sent)
	assert.Equal(t, int32(1), received.Load())
	assert.Equal(t, AlertNoCollectors, got.Type)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertStalePickups}, {Type: AlertNoCollectors}})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_NoWebhook(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertStalePickups}}))
}
