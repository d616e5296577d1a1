package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DetectionWindow is how far back each check looks
	DetectionWindow = 5 * time.Minute
	// AlertThreshold is the event count per subject that raises an alert
	AlertThreshold = 5
)

// Alert is one threshold crossing found by the monitor
type Alert struct {
	Action  string
	Subject string
	Count   int
}

type Monitor struct {
	logger *Logger
	log    zerolog.Logger
	now    func() time.Time
}

// NewMonitor creates a new security monitor
func NewMonitor(logger *Logger, log zerolog.Logger) *Monitor {
	return &Monitor{
		logger: logger,
		log:    log.With().Str("component", "monitor").Logger(),
		now:    time.Now,
	}
}

// DetectFailedLogins flags usernames with repeated failed logins
func (m *Monitor) DetectFailedLogins(ctx context.Context) ([]Alert, error) {
	return m.detect(ctx, ActionLoginFailed, ActionFailedLoginAlert, "authentication",
		func(e *Event) string { return e.Subject })
}

// DetectRateLimitAbuse flags client addresses that keep hitting the limiter
func (m *Monitor) DetectRateLimitAbuse(ctx context.Context) ([]Alert, error) {
	return m.detect(ctx, ActionRateLimited, ActionRateLimitAlert, "rate_limit",
		func(e *Event) string { return e.IPAddress })
}

func (m *Monitor) detect(ctx context.Context, action, alertAction, resource string, key func(*Event) string) ([]Alert, error) {
	now := m.now().UTC()
	since := now.Add(-DetectionWindow)

	events, err := m.logger.QueryLogs(ctx, QueryFilters{
		StartTime: &since,
		EndTime:   &now,
		Action:    action,
		Limit:     10000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}

	counts := make(map[string]int)
	var order []string
	for _, event := range events {
		k := key(event)
		if k == "" {
			continue
		}
		if counts[k] == 0 {
			order = append(order, k)
		}
		counts[k]++
	}

	var alerts []Alert
	for _, k := range order {
		if counts[k] < AlertThreshold {
			continue
		}
		alert := Alert{Action: action, Subject: k, Count: counts[k]}
		alerts = append(alerts, alert)

		m.log.Warn().
			Str("action", action).
			Str("subject", k).
			Int("count", counts[k]).
			Msg("security alert: threshold exceeded in last 5 minutes")

		m.logger.Log(&Event{
			Level:    LevelCritical,
			Action:   alertAction,
			Resource: resource,
			Subject:  k,
			Success:  false,
			ErrorMsg: fmt.Sprintf("%d events detected", counts[k]),
		})
	}

	return alerts, nil
}

// DetectSuspiciousActivity runs all security checks
func (m *Monitor) DetectSuspiciousActivity(ctx context.Context) []Alert {
	var alerts []Alert

	failed, err := m.DetectFailedLogins(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to detect failed logins")
	}
	alerts = append(alerts, failed...)

	limited, err := m.DetectRateLimitAbuse(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to detect rate limit abuse")
	}
	alerts = append(alerts, limited...)

	return alerts
}

// Run checks every interval until ctx is done
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.DetectSuspiciousActivity(ctx)
		}
	}
}
