package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type AlertLevel string

const (
	AlertInfo    AlertLevel = "info"
	AlertWarning AlertLevel = "warning"
	AlertError   AlertLevel = "error"
)

// Alert is an operator-facing notice about billing drift or sync failures.
type Alert struct {
	Level   AlertLevel
	Title   string
	Message string
	Fields  map[string]string
}

// NotificationService delivers operator alerts.
type NotificationService interface {
	Notify(ctx context.Context, alert Alert) error
}

type logNotifier struct{}

// NewLogNotifier writes alerts to the structured log.
func NewLogNotifier() NotificationService {
	return logNotifier{}
}

func (logNotifier) Notify(ctx context.Context, alert Alert) error {
	var event *zerolog.Event
	switch alert.Level {
	case AlertError:
		event = log.Error()
	case AlertWarning:
		event = log.Warn()
	default:
		event = log.Info()
	}
	for k, v := range alert.Fields {
		event = event.Str(k, v)
	}
	event.Str("alert", alert.Title).Msg(alert.Message)
	return nil
}

var slackTemplate = template.Must(template.New("slack").Parse(
	"*[{{.Level}}] {{.Title}}*\n{{.Message}}{{range $k, $v := .Fields}}\n• {{$k}}: {{$v}}{{end}}"))

type slackNotifier struct {
	webhookURL string
	httpClient *http.Client
}

// NewSlackNotifier posts alerts to a Slack incoming webhook.
func NewSlackNotifier(webhookURL string, httpClient *http.Client) NotificationService {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &slackNotifier{webhookURL: webhookURL, httpClient: httpClient}
}

func (s *slackNotifier) Notify(ctx context.Context, alert Alert) error {
	var text bytes.Buffer
	if err := slackTemplate.Execute(&text, alert); err != nil {
		return fmt.Errorf("failed to render slack message: %w", err)
	}

	payload, err := json.Marshal(map[string]string{"text": text.String()})
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("slack returned non-success status: %d", resp.StatusCode)
	}
	return nil
}

type multiNotifier []NotificationService

// NewMultiNotifier fans an alert out to every sink and joins their errors.
func NewMultiNotifier(sinks ...NotificationService) NotificationService {
	return multiNotifier(sinks)
}

func (m multiNotifier) Notify(ctx context.Context, alert Alert) error {
	var failures []string
	for _, sink := range m {
		if err := sink.Notify(ctx, alert); err != nil {
			failures = append(failures, err.Error())
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("notification delivery failed: %s", strings.Join(failures, "; "))
	}
	return nil
}
