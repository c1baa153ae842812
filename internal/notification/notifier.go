// Package notification delivers alerts for analyzer results to external
// channels (Telegram, webhooks, the log).
package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"vpa-analyzer/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel          `json:"level"`
	Title   string              `json:"title"`
	Message string              `json:"message"`
	Signal  *model.SignalResult `json:"signal,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	n.log.Info().Str("level", string(alert.Level)).Str("title", alert.Title).Msg(alert.Message)
	return nil
}

// Multi sends every alert to all notifiers, joining their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AlertFor builds the alert announcing r. BUY and SELL recommendations are
// warnings, HOLD is informational.
func AlertFor(r *model.SignalResult) Alert {
	level := AlertInfo
	if r.Actionable() {
		level = AlertWarning
	}
	msg := fmt.Sprintf("%s close %.2f on %s, score %.1f (%s)",
		r.Symbol, r.Close, r.Time.Format("2006-01-02"), r.Score, r.Direction)
	if r.Regime != "" {
		msg += ", regime " + r.Regime
	}
	return Alert{
		Level:   level,
		Title:   r.Symbol + ": " + r.Recommendation.Label(),
		Message: msg,
		Signal:  r,
	}
}

// Sink turns analyzer results into alerts.
type Sink struct {
	notifier       Notifier
	onlyActionable bool
}

// NewSink wraps n. With onlyActionable set, HOLD results are not announced.
func NewSink(n Notifier, onlyActionable bool) *Sink {
	return &Sink{notifier: n, onlyActionable: onlyActionable}
}

func (s *Sink) Name() string { return "notify" }

func (s *Sink) Emit(ctx context.Context, r *model.SignalResult) error {
	if s.onlyActionable && !r.Actionable() {
		return nil
	}
	return s.notifier.Send(ctx, AlertFor(r))
}
