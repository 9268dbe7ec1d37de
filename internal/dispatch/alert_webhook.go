package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/example/surge-dashboard/internal/models"
)

// AlertWebhook posts high-surge zones to a driver notification backend.
// It is a surge snapshot sink; records at or below Threshold are dropped.
type AlertWebhook struct {
	Endpoint  string
	Token     string
	Threshold float64
	Client    *http.Client
}

func NewAlertWebhook(endpoint, token string, threshold float64) *AlertWebhook {
	return &AlertWebhook{
		Endpoint:  endpoint,
		Token:     token,
		Threshold: threshold,
		Client:    &http.Client{Timeout: 3 * time.Second},
	}
}

type alertPayload struct {
	Type      string               `json:"type"`
	Threshold float64              `json:"threshold"`
	Zones     []models.SurgeRecord `json:"zones"`
}

func (a *AlertWebhook) Record(ctx context.Context, recs []models.SurgeRecord) error {
	var hot []models.SurgeRecord
	for _, r := range recs {
		if r.Multiplier > a.Threshold {
			hot = append(hot, r)
		}
	}
	if len(hot) == 0 {
		return nil
	}
	b, err := json.Marshal(alertPayload{Type: "surge_alert", Threshold: a.Threshold, Zones: hot})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}
	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("post alert: unexpected status %d", resp.StatusCode)
	}
	return nil
}
