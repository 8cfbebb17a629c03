// Package notify delivers operational notifications to Slack through an
// incoming webhook. Delivery is best effort: callers treat failures as
// warnings, never as request failures.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Sender posts messages to one Slack incoming webhook. A Sender with an
// empty URL silently drops every message, which keeps call sites free of
// configuration checks.
type Sender struct {
	webhookURL string
	httpc      *http.Client
}

// NewSender builds a Sender. webhookURL may be empty to disable delivery.
func NewSender(webhookURL string) *Sender {
	return &Sender{
		webhookURL: webhookURL,
		httpc:      &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether a webhook URL is configured.
func (s *Sender) Enabled() bool { return s.webhookURL != "" }

type slackMessage struct {
	Text string `json:"text"`
}

// Notify posts a plain-text message. Disabled senders return nil.
func (s *Sender) Notify(ctx context.Context, text string) error {
	if !s.Enabled() {
		return nil
	}

	body, err := json.Marshal(slackMessage{Text: text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("slack webhook: status %d", resp.StatusCode)
	}
	return nil
}

var titler = cases.Title(language.English)

// FormatIssue renders one health issue as a Slack line, e.g.
// ":warning: Low Reply Rate | Acme: reply rate below threshold (0.40% vs 1.00%)".
func FormatIssue(workspace, kind, detail string, value, threshold float64) string {
	label := titler.String(strings.ReplaceAll(kind, "_", " "))
	line := fmt.Sprintf(":warning: %s | %s: %s", label, workspace, detail)
	if threshold > 0 {
		line += fmt.Sprintf(" (%.2f%% vs %.2f%%)", value*100, threshold*100)
	}
	return line
}
