package collector

import (
	"context"
	"time"

	"github.com/vueflux/vueflux/internal/emporia"
)

// excludedDetailChannels are synthetic service-side channels that carry a
// live reading but have no per-second or per-minute series behind them.
// They still produce realtime points and run the transition detector.
var excludedDetailChannels = map[string]bool{
	emporia.ChannelBalance:    true,
	emporia.ChannelTotalUsage: true,
}

// extractSpec tells the walker which series to pull for each channel.
type extractSpec struct {
	// stopTime stamps realtime points and bounds detailed fetches.
	stopTime time.Time

	// collectDetails enables the per-second fetch from detailedStart to
	// stopTime on eligible channels.
	collectDetails bool
	detailedStart  time.Time

	// historical switches the walker to per-minute backfill over
	// [historyStart, historyEnd) instead of the live reading.
	historical   bool
	historyStart time.Time
	historyEnd   time.Time
}

// extractDevice walks one device subtree depth-first and appends the points
// each channel yields under spec. Nested devices are processed before the
// owning channel's own series; order across siblings is insignificant.
//
// Power state is tracked per device gid: every realtime and historical sample
// of the device's channels threads through the same state, and nested devices
// carry their own. The updated state is stored back on the account before
// returning, so hysteresis is continuous across cycles.
func (c *Collector) extractDevice(ctx context.Context, a *Account, dev *emporia.Device, spec extractSpec, out *[]UsagePoint) error {
	state := a.power[dev.GID]

	for _, ch := range dev.Channels {
		for _, nested := range ch.NestedDevices {
			if err := c.extractDevice(ctx, a, nested, spec, out); err != nil {
				return err
			}
		}

		var err error
		if spec.historical {
			state, err = c.extractHistory(ctx, a, ch, spec, state, out)
		} else {
			state, err = c.extractLive(ctx, a, ch, spec, state, out)
		}
		if err != nil {
			return err
		}
	}

	a.power[dev.GID] = state
	return nil
}

// extractLive converts the channel's current per-minute reading to watts,
// runs the transition detector, and opportunistically pulls the per-second
// series since the last detailed collection.
func (c *Collector) extractLive(ctx context.Context, a *Account, ch *emporia.Channel, spec extractSpec, state PowerState, out *[]UsagePoint) (PowerState, error) {
	name, err := c.channelName(ctx, a, ch)
	if err != nil {
		return state, err
	}

	if ch.Usage != nil {
		watts := *ch.Usage * wattsPerMinuteKWh
		tr, next := DetectTransition(state, watts, c.cfg.PowerOnThresholdWatts)
		state = next
		*out = append(*out, NewUsagePoint(a.Name(), name, watts, spec.stopTime, false, tr))
	}

	if excludedDetailChannels[ch.Number] || !spec.collectDetails {
		return state, nil
	}

	series, _, err := a.session.ChartUsage(ctx, ch, spec.detailedStart, spec.stopTime, emporia.ScaleSecond)
	if err != nil {
		return state, err
	}
	for i, sample := range series {
		if sample == nil {
			continue
		}
		watts := *sample * wattsPerSecondKWh
		ts := spec.detailedStart.Add(time.Duration(i) * time.Second)
		*out = append(*out, NewUsagePoint(a.Name(), name, watts, ts, true, TransitionNone))
	}
	return state, nil
}

// extractHistory pulls the channel's per-minute series over the backfill
// window. Samples run through the transition detector in timestamp order so
// the reconstructed series carries the same on/off events live polling would
// have produced.
func (c *Collector) extractHistory(ctx context.Context, a *Account, ch *emporia.Channel, spec extractSpec, state PowerState, out *[]UsagePoint) (PowerState, error) {
	if excludedDetailChannels[ch.Number] {
		return state, nil
	}

	name, err := c.channelName(ctx, a, ch)
	if err != nil {
		return state, err
	}

	series, _, err := a.session.ChartUsage(ctx, ch, spec.historyStart, spec.historyEnd, emporia.ScaleMinute)
	if err != nil {
		return state, err
	}
	for i, sample := range series {
		if sample == nil {
			continue
		}
		watts := *sample * wattsPerMinuteKWh
		ts := spec.historyStart.Add(time.Duration(i) * time.Minute)
		tr, next := DetectTransition(state, watts, c.cfg.PowerOnThresholdWatts)
		state = next

		point := NewUsagePoint(a.Name(), name, watts, ts, false, tr)
		point.Historical = true
		*out = append(*out, point)
	}
	return state, nil
}
