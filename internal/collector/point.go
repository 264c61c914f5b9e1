package collector

import (
	"strconv"
	"time"
)

// Measurement is the time-series measurement all points are written under.
const Measurement = "energy_usage"

// Conversion factors from per-interval kWh samples to instantaneous watts.
//
// A kWh value covering one minute multiplies out to watts by 60 * 1000;
// a per-second sample by 3600 * 1000.
const (
	wattsPerMinuteKWh = 60 * 1000
	wattsPerSecondKWh = 3600 * 1000
)

// UsagePoint is one flat power reading ready for the time-series sink.
//
// Fields:
//   - Account: Display name of the owning account, written as a tag
//   - Channel: Resolved human-readable channel name, written as a tag
//   - Watts: Instantaneous usage in watts
//   - Timestamp: Sample time
//   - Detailed: True for per-second samples, distinguishes granularity
//     downstream so coarse and fine series can be queried apart
//   - Transition: Optional on/off event attached to this sample
//   - Historical: True for backfilled per-minute samples; not written to
//     the sink, used to keep mirror publishing to live readings only
type UsagePoint struct {
	Account    string
	Channel    string
	Watts      float64
	Timestamp  time.Time
	Detailed   bool
	Transition Transition
	Historical bool
}

// NewUsagePoint builds a point for the sink.
func NewUsagePoint(account, channel string, watts float64, ts time.Time, detailed bool, tr Transition) UsagePoint {
	return UsagePoint{
		Account:    account,
		Channel:    channel,
		Watts:      watts,
		Timestamp:  ts,
		Detailed:   detailed,
		Transition: tr,
	}
}

// Realtime reports whether the point came from the live per-minute reading
// rather than a detailed or backfill series.
func (p UsagePoint) Realtime() bool {
	return !p.Detailed && !p.Historical
}

// Tags returns the sink tag set for this point.
func (p UsagePoint) Tags() map[string]string {
	return map[string]string{
		"account_name": p.Account,
		"device_name":  p.Channel,
		"detailed":     strconv.FormatBool(p.Detailed),
	}
}

// Fields returns the sink field set for this point. The transition field is
// present only on points that carry a transition event.
func (p UsagePoint) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"usage": p.Watts,
	}
	if p.Transition != TransitionNone {
		fields["transition"] = string(p.Transition)
	}
	return fields
}
