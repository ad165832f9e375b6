package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/models"
)

type SlackPayload struct {
	Text string `json:"text"`
}

// SlackNotifier posts failed sessions to a Slack incoming webhook. With an
// empty webhook URL it is disabled.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 5 * time.Second},
	}
}

func (n *SlackNotifier) NotifySessionFailed(ctx context.Context, session *models.TrackingSession, cause error) {
	if n.webhookURL == "" {
		return
	}
	if err := n.ReportSessionFailure(ctx, session, cause); err != nil {
		log.Warn().Err(err).Str("component", "SlackNotifier").Str("session_id", session.ID.String()).Msg("failed to report session failure to slack")
	}
}

// ReportSessionFailure reports a failed session with its context
func (n *SlackNotifier) ReportSessionFailure(ctx context.Context, session *models.TrackingSession, cause error) error {
	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}

	message := fmt.Sprintf(
		":rotating_light: *Visibility Tracking Session Failed*\n"+
			"*Time:* %s\n"+
			"*Session:* %s\n"+
			"*Category:* %s\n"+
			"*Brand:* %s\n"+
			"*Error:* ```%s```",
		time.Now().UTC().Format(time.RFC3339),
		session.ID,
		session.Category,
		session.PrimaryBrand,
		reason,
	)

	body, err := json.Marshal(SlackPayload{Text: message})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}
