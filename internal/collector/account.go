package collector

import (
	"context"
	"strconv"

	"github.com/vueflux/vueflux/internal/emporia"
	"github.com/vueflux/vueflux/internal/infrastructure/config"
)

// SessionFactory opens an authenticated session for one account.
// The default factory logs in against the production service; tests
// substitute fakes.
type SessionFactory func(ctx context.Context, cfg config.AccountConfig) (emporia.Session, error)

// defaultSessionFactory dials the real service and logs in.
func defaultSessionFactory(ctx context.Context, cfg config.AccountConfig) (emporia.Session, error) {
	client := emporia.NewClient()
	if err := client.Login(ctx, cfg.Email, cfg.Password); err != nil {
		return nil, err
	}
	return client, nil
}

// Account holds the per-account runtime state the collector accumulates
// across cycles: the lazily-opened session, the device and channel indexes,
// and the per-gid power states.
type Account struct {
	cfg      config.AccountConfig
	session  emporia.Session
	devices  map[int64]*emporia.Device
	channels map[string]*emporia.Channel
	power    map[int64]PowerState
}

func newAccount(cfg config.AccountConfig) *Account {
	return &Account{
		cfg:      cfg,
		devices:  make(map[int64]*emporia.Device),
		channels: make(map[string]*emporia.Channel),
		power:    make(map[int64]PowerState),
	}
}

// Name returns the account's display name.
func (a *Account) Name() string {
	return a.cfg.Name
}

// gids returns the account's known top-level device gids for a usage query.
func (a *Account) gids() []int64 {
	out := make([]int64, 0, len(a.devices))
	for gid := range a.devices {
		out = append(out, gid)
	}
	return out
}

// ensureSession opens the account's session on first use and populates the
// device and channel indexes. Subsequent calls are no-ops while the session
// stays healthy.
func (c *Collector) ensureSession(ctx context.Context, a *Account) error {
	if a.session != nil {
		return nil
	}

	session, err := c.sessions(ctx, a.cfg)
	if err != nil {
		return err
	}
	a.session = session

	c.log.Info("session established", "account", a.Name())
	if err := c.rebuildIndexes(ctx, a); err != nil {
		a.session = nil
		return err
	}
	return nil
}

// rebuildIndexes refetches the account's devices and reindexes every device
// and channel in the tree. It is called on session establishment and again
// whenever a name lookup misses, so devices added after startup are picked up
// without a restart.
func (c *Collector) rebuildIndexes(ctx context.Context, a *Account) error {
	devices, err := a.session.ListDevices(ctx)
	if err != nil {
		return err
	}

	a.devices = make(map[int64]*emporia.Device)
	a.channels = make(map[string]*emporia.Channel)
	for _, dev := range devices {
		c.indexDevice(ctx, a, dev)
	}

	c.log.Info("device index rebuilt",
		"account", a.Name(),
		"devices", len(a.devices),
		"channels", len(a.channels))
	return nil
}

// indexDevice records one device and its channels, recursing into nested
// devices. Channels without a display name inherit the device name when they
// are the mains feed. Newly seen devices and channels are announced once,
// with the catalog suppressing repeat announcements across restarts.
func (c *Collector) indexDevice(ctx context.Context, a *Account, dev *emporia.Device) {
	a.devices[dev.GID] = dev
	c.announceDevice(ctx, a, dev)

	for _, ch := range dev.Channels {
		if ch.Name == "" && ch.Number == emporia.MainsChannel {
			ch.Name = dev.Name
		}
		a.channels[ch.Key()] = ch
		c.announceChannel(ctx, a, ch)

		for _, nested := range ch.NestedDevices {
			c.indexDevice(ctx, a, nested)
		}
	}
}

func (c *Collector) announceDevice(ctx context.Context, a *Account, dev *emporia.Device) {
	if c.cat == nil {
		return
	}
	known, err := c.cat.RecordDevice(ctx, a.Name(), dev.GID, dev.Name, c.now())
	if err != nil {
		c.log.Warn("catalog record failed", "account", a.Name(), "gid", dev.GID, "error", err)
		return
	}
	if !known {
		c.log.Info("discovered device", "account", a.Name(), "gid", dev.GID, "name", dev.Name)
	}
}

func (c *Collector) announceChannel(ctx context.Context, a *Account, ch *emporia.Channel) {
	if c.cat == nil {
		return
	}
	known, err := c.cat.RecordChannel(ctx, a.Name(), ch.DeviceGID, ch.Number, ch.Name, c.now())
	if err != nil {
		c.log.Warn("catalog record failed", "account", a.Name(), "channel", ch.Key(), "error", err)
		return
	}
	if !known {
		c.log.Info("discovered channel",
			"account", a.Name(),
			"gid", ch.DeviceGID,
			"channel", ch.Number,
			"name", ch.Name)
	}
}

// deviceName resolves a gid to the device's display name, rebuilding the
// index once on a miss. A gid the service itself no longer reports falls
// back to its decimal form so points are never dropped over a name.
func (c *Collector) deviceName(ctx context.Context, a *Account, gid int64) (string, error) {
	if dev, ok := a.devices[gid]; ok {
		return dev.Name, nil
	}
	if err := c.rebuildIndexes(ctx, a); err != nil {
		return "", err
	}
	if dev, ok := a.devices[gid]; ok {
		return dev.Name, nil
	}
	return strconv.FormatInt(gid, 10), nil
}

// channelName resolves the display name for one channel.
//
// The base form is "<device>-<number>". Numeric channels may be overridden
// by the account's configured channel names, positionally: channel N takes
// the Nth entry for the matching device. The mains channel collapses to the
// bare device name.
func (c *Collector) channelName(ctx context.Context, a *Account, ch *emporia.Channel) (string, error) {
	devName, err := c.deviceName(ctx, a, ch.DeviceGID)
	if err != nil {
		return "", err
	}

	name := devName + "-" + ch.Number
	if num, convErr := strconv.Atoi(ch.Number); convErr == nil {
		for _, dev := range a.cfg.Devices {
			if dev.Name == devName && len(dev.Channels) >= num {
				name = dev.Channels[num-1]
				break
			}
		}
	} else if ch.Number == emporia.MainsChannel {
		name = devName
	}
	return name, nil
}
