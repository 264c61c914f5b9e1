package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// usageMessage is the JSON payload published for a realtime usage point.
type usageMessage struct {
	Account    string  `json:"account"`
	Channel    string  `json:"channel"`
	UsageWatts float64 `json:"usage_watts"`
	Transition string  `json:"transition,omitempty"`
	Timestamp  string  `json:"timestamp"`
}

// PublishUsage mirrors one realtime usage reading to the broker.
//
// The message is retained so subscribers joining between polling cycles
// immediately see each channel's last known draw.
//
// Parameters:
//   - account: Account name the reading belongs to
//   - channel: Resolved channel display name
//   - watts: Current power draw
//   - transition: "on", "off", or empty when no transition occurred
//   - timestamp: The reading's instant
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) PublishUsage(account, channel string, watts float64, transition string, timestamp time.Time) error {
	msg := usageMessage{
		Account:    account,
		Channel:    channel,
		UsageWatts: watts,
		Transition: transition,
		Timestamp:  timestamp.UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding usage message: %w", err)
	}

	return c.PublishRetained(Topics{}.Usage(account, channel), payload)
}
