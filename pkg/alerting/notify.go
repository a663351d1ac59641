package alerting

import (
	"fmt"
	"time"

	"github.com/roosthq/roost/pkg/log"
	"github.com/roosthq/roost/pkg/types"
)

// Sender delivers one notification on a concrete transport. Transports
// themselves (SMTP, webhooks, Slack) live outside the Console.
type Sender interface {
	Send(channel types.NotifyChannel, rule *types.AlertRule, event *types.AlertEvent) error
}

// SenderFunc adapts a function to the Sender interface
type SenderFunc func(channel types.NotifyChannel, rule *types.AlertRule, event *types.AlertEvent) error

func (f SenderFunc) Send(channel types.NotifyChannel, rule *types.AlertRule, event *types.AlertEvent) error {
	return f(channel, rule, event)
}

// LogSender is the default sink; it records the notification in the log
func LogSender() Sender {
	logger := log.WithComponent("alerting")
	return SenderFunc(func(channel types.NotifyChannel, rule *types.AlertRule, event *types.AlertEvent) error {
		logger.Info().
			Str("channel", string(channel)).
			Str("rule_id", rule.ID).
			Str("instance_id", event.InstanceID).
			Str("message", event.Message).
			Msg("Alert notification")
		return nil
	})
}

// retryBackoffs spaces the delivery retries after the initial attempt
var retryBackoffs = []time.Duration{time.Second, 4 * time.Second, 16 * time.Second}

// notifier drives per-channel delivery with retries and cooldowns
type notifier struct {
	sender    Sender
	sleepFunc func(time.Duration)
}

func newNotifier(sender Sender) *notifier {
	return &notifier{sender: sender, sleepFunc: time.Sleep}
}

// dispatch delivers the event on one channel, retrying three times with
// backoff. A final failure is recorded on the event; it never undoes
// the FIRING transition. Returns whether a notification went out.
func (n *notifier) dispatch(channel types.NotifyChannel, rule *types.AlertRule, event *types.AlertEvent) bool {
	// An email destination with nobody to address is a no-op
	if channel == types.NotifyEmail && len(rule.Notify.EmailRecipients) == 0 {
		return false
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = n.sender.Send(channel, rule, event)
		if lastErr == nil {
			event.NotificationsSent++
			return true
		}
		if attempt >= len(retryBackoffs) {
			break
		}
		n.sleepFunc(retryBackoffs[attempt])
	}

	event.DeliveryErrors = append(event.DeliveryErrors,
		fmt.Sprintf("%s: %v", channel, lastErr))
	return false
}
