package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/surge-dashboard/internal/models"
)

func TestAlertWebhookPostsHotZones(t *testing.T) {
	var got alertPayload
	var auth string
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	a := NewAlertWebhook(srv.URL, "secret", 1.5)
	err := a.Record(context.Background(), []models.SurgeRecord{
		{ZoneID: "calm", Multiplier: 1.0},
		{ZoneID: "edge", Multiplier: 1.5},
		{ZoneID: "hot", Multiplier: 2.0},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "surge_alert", got.Type)
	require.Len(t, got.Zones, 1)
	assert.Equal(t, "hot", got.Zones[0].ZoneID)
}

func TestAlertWebhookSkipsCalmSnapshots(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }))
	defer srv.Close()

	a := NewAlertWebhook(srv.URL, "", 1.5)
	require.NoError(t, a.Record(context.Background(), []models.SurgeRecord{{ZoneID: "calm", Multiplier: 1.2}}))
	assert.Zero(t, calls)
}

func TestAlertWebhookReportsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewAlertWebhook(srv.URL, "", 1.0)
	err := a.Record(context.Background(), []models.SurgeRecord{{ZoneID: "hot", Multiplier: 2.0}})
	assert.ErrorContains(t, err, "502")
}
