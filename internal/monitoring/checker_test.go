package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/isuku/isuku-dispatch/internal/config"
	"github.com/isuku/isuku-dispatch/internal/model"
)

func TestNewChecker_Defaults(t *testing.T) {
	c := NewChecker(NewCollector(&stubRecords{}), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})
	assert.Equal(t, defaultCheckInterval, c.interval)
	assert.Equal(t, defaultStaleAfter, c.staleAfter)

	c = NewChecker(NewCollector(&stubRecords{}), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{
		CheckIntervalSecs: 30,
		StaleAfterMins:    45,
	})
	assert.Equal(t, 30*time.Second, c.interval)
	assert.Equal(t, 45*time.Minute, c.staleAfter)
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1}
	checker := NewChecker(NewCollector(&stubRecords{}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- checker.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_CheckSendsAlerts(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.MonitoringConfig{WebhookURL: srv.URL, StaleAfterMins: 60, StaleThreshold: 1}
	recs := &stubRecords{pickups: []model.PickupRequest{pickupCreated(3*time.Hour, true, nil)}}
	checker := NewChecker(newTestCollector(recs), NewAlerter(cfg), cfg)

	alerts := checker.check(context.Background(), zap.NewNop())
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertStalePickups, alerts[0].Type)
	assert.Equal(t, AlertNoCollectors, alerts[1].Type)
	assert.Equal(t, int32(2), received.Load())
}

func TestChecker_CheckCollectError(t *testing.T) {
	cfg := config.MonitoringConfig{}
	checker := NewChecker(NewCollector(&stubRecords{pickupErr: assert.AnError}), NewAlerter(cfg), cfg)
	assert.Nil(t, checker.check(context.Background(), zap.NewNop()))
}
