package emporia

import (
	"context"
	"time"
)

// Scale identifies the granularity of a usage query.
type Scale string

// Supported usage granularities.
const (
	ScaleSecond Scale = "1S"
	ScaleMinute Scale = "1MIN"
)

// Channel numbers with special meaning on the service side.
//
// Balance and TotalUsage are synthetic channels computed by the service;
// MainsChannel identifies the combined mains feed of a panel.
const (
	ChannelBalance    = "Balance"
	ChannelTotalUsage = "TotalUsage"
	MainsChannel      = "1,2,3"
)

// Device is one monitor registered to an account, with its channels.
//
// Devices form a tree: a channel may own further nested devices (a sub-panel
// monitor plugged in behind a circuit). The tree is acyclic by construction
// on the service side, and each Device exclusively owns its subtree.
type Device struct {
	// GID is the device's group id, unique per account. It keys usage
	// queries and power-state tracking.
	GID int64

	// Name is the device's display name.
	Name string

	// Channels holds the device's metered circuits keyed by channel number.
	Channels map[string]*Channel
}

// Channel is a single metered circuit within a device.
type Channel struct {
	// DeviceGID identifies the owning device.
	DeviceGID int64

	// Number is the channel identifier within the device: "1".."16" for
	// circuits, "1,2,3" for the mains, or a synthetic name like "Balance".
	Number string

	// Name is the channel's display name. May be empty for the mains
	// channel, in which case callers fall back to the device name.
	Name string

	// Usage is the energy for the just-completed interval in kWh.
	// Nil when the service has no reading for the instant queried.
	Usage *float64

	// NestedDevices holds sub-devices reachable through this channel,
	// keyed by gid.
	NestedDevices map[int64]*Device
}

// Key returns the channel's composite identity "gid-number".
// It is unique within an account: the gid disambiguates across devices.
func (c *Channel) Key() string {
	return channelKey(c.DeviceGID, c.Number)
}

// Session is the collector's view of an authenticated connection to the
// energy-monitoring service.
//
// Implementations must be safe for sequential reuse across polling cycles.
// The *Client type implements Session; tests substitute fakes.
type Session interface {
	// ListDevices returns the account's devices with channel metadata
	// populated (no usage values).
	ListDevices(ctx context.Context) ([]*Device, error)

	// DeviceListUsage returns device trees with per-channel Usage populated
	// for the minute ending at asOf, keyed by gid. Devices the service has
	// no data for are absent from the map.
	DeviceListUsage(ctx context.Context, gids []int64, asOf time.Time) (map[int64]*Device, error)

	// ChartUsage returns a usage series for one channel over [start, end)
	// at the given scale, along with the instant of the first sample.
	// Entries are nil where the service has no data.
	ChartUsage(ctx context.Context, ch *Channel, start, end time.Time, scale Scale) ([]*float64, time.Time, error)
}
