package collector

import (
	"context"
	"errors"
	"time"

	"github.com/vueflux/vueflux/internal/catalog"
	"github.com/vueflux/vueflux/internal/emporia"
	"github.com/vueflux/vueflux/internal/infrastructure/config"
	"github.com/vueflux/vueflux/internal/infrastructure/logging"
	"github.com/vueflux/vueflux/internal/metrics"
)

// backfillPause is the wait between backfill windows, keeping the service
// from rate-limiting the burst of chart queries. Variable so tests can
// shorten it.
var backfillPause = 5 * time.Second

// halfDay is the width of one backfill window. Days are fetched in two
// halves to stay under the service's per-query sample limit.
const halfDay = 12 * time.Hour

// Sink receives finished usage points. The InfluxDB client satisfies it.
type Sink interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time)
	Flush()
}

// Mirror republishes live readings as they are collected. The MQTT client
// satisfies it.
type Mirror interface {
	PublishUsage(account, channel string, watts float64, transition string, timestamp time.Time) error
}

// Options configures a Collector. Sink and at least one account are
// required; everything else is optional.
type Options struct {
	Config   config.CollectorConfig
	Accounts []config.AccountConfig

	Sink    Sink
	Mirror  Mirror
	Catalog *catalog.Catalog
	Metrics *metrics.Metrics
	Logger  *logging.Logger

	// Sessions overrides how account sessions are opened. Tests use this
	// to substitute fake sessions.
	Sessions SessionFactory

	// Now overrides the clock.
	Now func() time.Time
}

// Collector polls every configured account on a fixed interval, converts the
// hierarchical channel readings into flat usage points, and hands them to
// the sink. On the first cycle it optionally backfills minute-resolution
// history.
type Collector struct {
	cfg      config.CollectorConfig
	accounts []*Account

	sink    Sink
	mirror  Mirror
	cat     *catalog.Catalog
	metrics *metrics.Metrics
	log     *logging.Logger

	sessions SessionFactory
	now      func() time.Time

	// detailedStart is the exclusive lower bound of the next per-second
	// fetch. Advanced to stopTime+1s after each detailed collection so
	// consecutive fetches never overlap.
	detailedStart time.Time

	// backfillPending is the one-shot backfill flag, cleared after the
	// first cycle that runs the backfill to completion.
	backfillPending bool
}

// New builds a Collector from options.
func New(opts Options) (*Collector, error) {
	if opts.Sink == nil {
		return nil, ErrNoSink
	}
	if len(opts.Accounts) == 0 {
		return nil, ErrNoAccounts
	}

	c := &Collector{
		cfg:      opts.Config,
		sink:     opts.Sink,
		mirror:   opts.Mirror,
		cat:      opts.Catalog,
		metrics:  opts.Metrics,
		log:      opts.Logger,
		sessions: opts.Sessions,
		now:      opts.Now,
	}
	if c.log == nil {
		c.log = logging.Default()
	}
	if c.sessions == nil {
		c.sessions = defaultSessionFactory
	}
	if c.now == nil {
		c.now = time.Now
	}
	for _, acct := range opts.Accounts {
		c.accounts = append(c.accounts, newAccount(acct))
	}
	return c, nil
}

// Run polls until the context is cancelled. Cancellation mid-cycle finishes
// the current account's submission and returns; the wait between cycles is
// itself cancellable.
func (c *Collector) Run(ctx context.Context) error {
	c.detailedStart = c.now()
	c.backfillPending = c.cfg.HistoryDays > 0

	c.log.Info("collector started",
		"accounts", len(c.accounts),
		"interval", c.cfg.UpdateInterval(),
		"history_days", c.cfg.HistoryDays)

	for {
		c.runCycle(ctx)
		if !pause(ctx, c.cfg.UpdateInterval()) {
			c.log.Info("collector stopped")
			return nil
		}
	}
}

// runCycle processes every account once. Account failures are isolated: a
// failing account is logged and skipped, the rest of the cycle proceeds.
func (c *Collector) runCycle(ctx context.Context) {
	stopTime := c.now().Add(-c.cfg.Lag())
	collectDetails := c.cfg.DetailedDataEnabled &&
		stopTime.Sub(c.detailedStart) >= c.cfg.DetailedInterval()
	doBackfill := c.backfillPending

	backfilled := false
	for _, acct := range c.accounts {
		if ctx.Err() != nil {
			return
		}
		ranBackfill, err := c.processAccount(ctx, acct, stopTime, collectDetails, doBackfill)
		backfilled = backfilled || ranBackfill
		if err != nil {
			c.accountFailed(acct, err)
		}
	}

	if collectDetails {
		c.detailedStart = stopTime.Add(time.Second)
	}
	if backfilled {
		c.backfillPending = false
	}
	if c.metrics != nil {
		c.metrics.CyclesTotal.Inc()
	}
}

// accountFailed logs one account's cycle failure and drops its session so
// the next cycle re-authenticates. Timeouts are tagged apart from other
// failures since they usually indicate the service, not the credentials.
func (c *Collector) accountFailed(acct *Account, err error) {
	kind := "error"
	if errors.Is(err, emporia.ErrTimeout) {
		kind = "timeout"
	}
	if errors.Is(err, emporia.ErrAuthFailed) || errors.Is(err, emporia.ErrNotAuthenticated) {
		acct.session = nil
	}

	c.log.Error("account cycle failed", "account", acct.Name(), "kind", kind, "error", err)
	if c.metrics != nil {
		c.metrics.AccountErrors.WithLabelValues(acct.Name(), kind).Inc()
	}
}

// processAccount runs one account's full cycle: session, live extraction,
// optional backfill, then submission. Points accumulated before a
// cancellation mid-backfill are still submitted.
func (c *Collector) processAccount(ctx context.Context, acct *Account, stopTime time.Time, collectDetails, doBackfill bool) (bool, error) {
	if err := c.ensureSession(ctx, acct); err != nil {
		return false, err
	}

	devices, err := acct.session.DeviceListUsage(ctx, acct.gids(), stopTime)
	if err != nil {
		return false, err
	}

	var points []UsagePoint
	spec := extractSpec{
		stopTime:       stopTime,
		collectDetails: collectDetails,
		detailedStart:  c.detailedStart,
	}
	for _, dev := range devices {
		if err := c.extractDevice(ctx, acct, dev, spec, &points); err != nil {
			return false, err
		}
	}

	ranBackfill := false
	if doBackfill {
		// A failed pass leaves the one-shot flag set so the next cycle
		// retries; completed windows are still submitted below.
		if err := c.backfillAccount(ctx, acct, stopTime, devices, &points); err != nil {
			c.submit(acct, points)
			return false, err
		}
		ranBackfill = true
	}

	c.submit(acct, points)
	return ranBackfill, nil
}

// backfillAccount replays HistoryDays of minute-resolution usage for every
// device, newest day first. Each day is fetched in two half-day windows,
// most recent half first, with a pause between queries. Cancellation aborts
// between windows; completed windows keep their points.
func (c *Collector) backfillAccount(ctx context.Context, acct *Account, stopTime time.Time, devices map[int64]*emporia.Device, points *[]UsagePoint) error {
	c.log.Info("backfill started", "account", acct.Name(), "days", c.cfg.HistoryDays)

	for day := 0; day < c.cfg.HistoryDays; day++ {
		if c.metrics != nil {
			c.metrics.BackfillDaysRemaining.Set(float64(c.cfg.HistoryDays - day))
		}

		dayEnd := stopTime.Add(-time.Duration(day) * 24 * time.Hour)
		windows := []struct{ start, end time.Time }{
			{dayEnd.Add(-halfDay), dayEnd},
			{dayEnd.Add(-2 * halfDay), dayEnd.Add(-halfDay)},
		}
		for _, win := range windows {
			spec := extractSpec{
				stopTime:     stopTime,
				historical:   true,
				historyStart: win.start,
				historyEnd:   win.end,
			}
			for _, dev := range devices {
				if err := c.extractDevice(ctx, acct, dev, spec, points); err != nil {
					return err
				}
			}
			if !pause(ctx, backfillPause) {
				c.log.Info("backfill cancelled", "account", acct.Name(), "days_done", day)
				return nil
			}
		}
		c.log.Info("backfill day complete", "account", acct.Name(), "day", day+1)
	}

	if c.metrics != nil {
		c.metrics.BackfillDaysRemaining.Set(0)
	}
	c.log.Info("backfill complete", "account", acct.Name(), "days", c.cfg.HistoryDays)
	return nil
}

// submit hands an account's finished points to the sink and mirrors the
// live readings. Mirror failures are logged and never fail the cycle.
func (c *Collector) submit(acct *Account, points []UsagePoint) {
	if len(points) == 0 {
		return
	}

	for _, p := range points {
		c.sink.WritePoint(Measurement, p.Tags(), p.Fields(), p.Timestamp)
		if c.mirror != nil && p.Realtime() {
			if err := c.mirror.PublishUsage(p.Account, p.Channel, p.Watts, string(p.Transition), p.Timestamp); err != nil {
				c.log.Warn("mirror publish failed", "channel", p.Channel, "error", err)
			}
		}
	}
	c.sink.Flush()

	c.log.Info("points submitted", "account", acct.Name(), "points", len(points))
	if c.metrics != nil {
		c.metrics.PointsWritten.WithLabelValues(acct.Name()).Add(float64(len(points)))
	}
}

// pause waits d or until the context is cancelled. Returns false on
// cancellation.
func pause(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
