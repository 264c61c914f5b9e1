package collector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/vueflux/vueflux/internal/emporia"
	"github.com/vueflux/vueflux/internal/infrastructure/config"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func fptr(v float64) *float64 { return &v }

func testChannel(num string, usage *float64) *emporia.Channel {
	return &emporia.Channel{Number: num, Usage: usage}
}

func testDevice(gid int64, name string, channels ...*emporia.Channel) *emporia.Device {
	dev := &emporia.Device{GID: gid, Name: name, Channels: make(map[string]*emporia.Channel)}
	for _, ch := range channels {
		ch.DeviceGID = gid
		dev.Channels[ch.Number] = ch
	}
	return dev
}

type chartCall struct {
	key        string
	start, end time.Time
	scale      emporia.Scale
}

type fakeSession struct {
	devices []*emporia.Device
	charts  map[string][]*float64

	usageErrs  []error
	usageCalls int
	chartCalls []chartCall
	onChart    func(call chartCall)
}

func (s *fakeSession) ListDevices(ctx context.Context) ([]*emporia.Device, error) {
	return s.devices, nil
}

func (s *fakeSession) DeviceListUsage(ctx context.Context, gids []int64, asOf time.Time) (map[int64]*emporia.Device, error) {
	s.usageCalls++
	if len(s.usageErrs) > 0 {
		err := s.usageErrs[0]
		s.usageErrs = s.usageErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	out := make(map[int64]*emporia.Device, len(s.devices))
	for _, dev := range s.devices {
		out[dev.GID] = dev
	}
	return out, nil
}

func (s *fakeSession) ChartUsage(ctx context.Context, ch *emporia.Channel, start, end time.Time, scale emporia.Scale) ([]*float64, time.Time, error) {
	call := chartCall{key: ch.Key(), start: start, end: end, scale: scale}
	s.chartCalls = append(s.chartCalls, call)
	if s.onChart != nil {
		s.onChart(call)
	}
	return s.charts[ch.Key()+"/"+string(scale)], start, nil
}

func (s *fakeSession) minuteCalls() []chartCall {
	var out []chartCall
	for _, call := range s.chartCalls {
		if call.scale == emporia.ScaleMinute {
			out = append(out, call)
		}
	}
	return out
}

type sinkPoint struct {
	measurement string
	tags        map[string]string
	fields      map[string]interface{}
	ts          time.Time
}

type fakeSink struct {
	points  []sinkPoint
	flushes int
}

func (s *fakeSink) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}, ts time.Time) {
	s.points = append(s.points, sinkPoint{measurement, tags, fields, ts})
}

func (s *fakeSink) Flush() { s.flushes++ }

type mirrored struct {
	channel    string
	watts      float64
	transition string
}

type fakeMirror struct {
	published []mirrored
}

func (m *fakeMirror) PublishUsage(account, channel string, watts float64, transition string, ts time.Time) error {
	m.published = append(m.published, mirrored{channel, watts, transition})
	return nil
}

func baseConfig() config.CollectorConfig {
	return config.CollectorConfig{
		UpdateIntervalSecs:    60,
		LagSecs:               5,
		PowerOnThresholdWatts: 1,
	}
}

func newTestCollector(t *testing.T, cfg config.CollectorConfig, sess emporia.Session, sink Sink, accounts ...config.AccountConfig) *Collector {
	t.Helper()
	if len(accounts) == 0 {
		accounts = []config.AccountConfig{{Name: "home", Email: "e@example.com", Password: "pw"}}
	}
	c, err := New(Options{
		Config:   cfg,
		Accounts: accounts,
		Sink:     sink,
		Sessions: func(ctx context.Context, cfg config.AccountConfig) (emporia.Session, error) {
			return sess, nil
		},
		Now: func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func wantUsage(t *testing.T, p sinkPoint, watts float64) {
	t.Helper()
	got, ok := p.fields["usage"].(float64)
	if !ok {
		t.Fatalf("point has no usage field: %v", p.fields)
	}
	if math.Abs(got-watts) > 1e-9 {
		t.Errorf("usage = %v, want %v", got, watts)
	}
}

func TestNewRequiresSinkAndAccounts(t *testing.T) {
	_, err := New(Options{Accounts: []config.AccountConfig{{Name: "a"}}})
	if !errors.Is(err, ErrNoSink) {
		t.Errorf("missing sink: err = %v, want ErrNoSink", err)
	}
	_, err = New(Options{Sink: &fakeSink{}})
	if !errors.Is(err, ErrNoAccounts) {
		t.Errorf("missing accounts: err = %v, want ErrNoAccounts", err)
	}
}

func TestCycleWritesMainsReading(t *testing.T) {
	sess := &fakeSession{devices: []*emporia.Device{
		testDevice(1000, "Panel", testChannel(emporia.MainsChannel, fptr(0.01))),
	}}
	sink := &fakeSink{}
	c := newTestCollector(t, baseConfig(), sess, sink)

	c.runCycle(context.Background())

	if len(sink.points) != 1 {
		t.Fatalf("points = %d, want 1", len(sink.points))
	}
	p := sink.points[0]
	if p.measurement != "energy_usage" {
		t.Errorf("measurement = %q", p.measurement)
	}
	if p.tags["account_name"] != "home" || p.tags["device_name"] != "Panel" || p.tags["detailed"] != "false" {
		t.Errorf("tags = %v", p.tags)
	}
	wantUsage(t, p, 600)
	if p.fields["transition"] != "on" {
		t.Errorf("transition = %v, want on", p.fields["transition"])
	}
	wantTS := fixedNow.Add(-5 * time.Second)
	if !p.ts.Equal(wantTS) {
		t.Errorf("timestamp = %v, want %v", p.ts, wantTS)
	}
	if sink.flushes != 1 {
		t.Errorf("flushes = %d, want 1", sink.flushes)
	}
}

// Channels of one device share its power state, so a cycle where both the
// synthetic total and the mains sit above the threshold emits exactly one
// "on" transition.
func TestChannelsShareDeviceState(t *testing.T) {
	sess := &fakeSession{devices: []*emporia.Device{
		testDevice(1000, "Panel",
			testChannel(emporia.ChannelTotalUsage, fptr(0.02)),
			testChannel(emporia.MainsChannel, fptr(0.01)),
		),
	}}
	sink := &fakeSink{}
	c := newTestCollector(t, baseConfig(), sess, sink)

	c.runCycle(context.Background())

	if len(sink.points) != 2 {
		t.Fatalf("points = %d, want 2", len(sink.points))
	}
	ons := 0
	for _, p := range sink.points {
		switch p.fields["transition"] {
		case "on":
			ons++
		case "off":
			t.Errorf("unexpected off transition: %v", p.fields)
		}
	}
	if ons != 1 {
		t.Errorf("on transitions = %d, want exactly 1", ons)
	}
}

func TestNilReadingProducesNoPoint(t *testing.T) {
	sess := &fakeSession{devices: []*emporia.Device{
		testDevice(1000, "Panel", testChannel(emporia.MainsChannel, nil)),
	}}
	sink := &fakeSink{}
	c := newTestCollector(t, baseConfig(), sess, sink)

	c.runCycle(context.Background())

	if len(sink.points) != 0 {
		t.Fatalf("points = %d, want 0", len(sink.points))
	}
	if sink.flushes != 0 {
		t.Errorf("flushes = %d, want 0 for empty cycle", sink.flushes)
	}
}

func TestSteadyStateEmitsSingleTransition(t *testing.T) {
	sess := &fakeSession{devices: []*emporia.Device{
		testDevice(1000, "Panel", testChannel(emporia.MainsChannel, fptr(0.01))),
	}}
	sink := &fakeSink{}
	c := newTestCollector(t, baseConfig(), sess, sink)

	c.runCycle(context.Background())
	c.runCycle(context.Background())

	if len(sink.points) != 2 {
		t.Fatalf("points = %d, want 2", len(sink.points))
	}
	if sink.points[0].fields["transition"] != "on" {
		t.Errorf("first cycle transition = %v, want on", sink.points[0].fields["transition"])
	}
	if _, ok := sink.points[1].fields["transition"]; ok {
		t.Errorf("second cycle carries transition %v, want none", sink.points[1].fields["transition"])
	}
}

func TestConfiguredChannelNames(t *testing.T) {
	sess := &fakeSession{devices: []*emporia.Device{
		testDevice(1000, "Panel",
			testChannel("2", fptr(0.001)),
			testChannel("3", fptr(0.001)),
		),
	}}
	sink := &fakeSink{}
	account := config.AccountConfig{
		Name: "home", Email: "e@example.com", Password: "pw",
		Devices: []config.DeviceNameConfig{
			{Name: "Panel", Channels: []string{"Fridge", "Oven"}},
		},
	}
	c := newTestCollector(t, baseConfig(), sess, sink, account)

	c.runCycle(context.Background())

	names := make(map[string]bool)
	for _, p := range sink.points {
		names[p.tags["device_name"]] = true
	}
	if !names["Oven"] {
		t.Errorf("channel 2 not renamed: names = %v", names)
	}
	if !names["Panel-3"] {
		t.Errorf("channel 3 missing fallback name: names = %v", names)
	}
}

func TestDetailedCollection(t *testing.T) {
	mains := testChannel(emporia.MainsChannel, fptr(0.01))
	balance := testChannel(emporia.ChannelBalance, fptr(0.005))
	sess := &fakeSession{
		devices: []*emporia.Device{testDevice(1000, "Panel", mains, balance)},
		charts: map[string][]*float64{
			"1000-1,2,3/1S": {fptr(0.1), nil, fptr(0.2)},
		},
	}
	sink := &fakeSink{}
	cfg := baseConfig()
	cfg.DetailedDataEnabled = true
	cfg.DetailedIntervalSecs = 10
	c := newTestCollector(t, cfg, sess, sink)
	c.detailedStart = fixedNow.Add(-30 * time.Second)
	detailedStart := c.detailedStart

	c.runCycle(context.Background())

	for _, call := range sess.chartCalls {
		if call.key == "1000-Balance" {
			t.Errorf("detailed fetch issued for excluded channel")
		}
	}

	var detailed []sinkPoint
	balancePoints := 0
	for _, p := range sink.points {
		if p.tags["detailed"] == "true" {
			detailed = append(detailed, p)
		}
		if p.tags["device_name"] == "Panel-Balance" {
			balancePoints++
		}
	}
	if balancePoints != 1 {
		t.Errorf("balance realtime points = %d, want 1", balancePoints)
	}
	if len(detailed) != 2 {
		t.Fatalf("detailed points = %d, want 2", len(detailed))
	}
	wantUsage(t, detailed[0], 0.1*3600*1000)
	if !detailed[0].ts.Equal(detailedStart) {
		t.Errorf("first detailed ts = %v, want %v", detailed[0].ts, detailedStart)
	}
	if !detailed[1].ts.Equal(detailedStart.Add(2 * time.Second)) {
		t.Errorf("second detailed ts = %v, want %v", detailed[1].ts, detailedStart.Add(2*time.Second))
	}
	for _, p := range detailed {
		if _, ok := p.fields["transition"]; ok {
			t.Errorf("detailed point carries transition: %v", p.fields)
		}
	}

	wantNext := fixedNow.Add(-5 * time.Second).Add(time.Second)
	if !c.detailedStart.Equal(wantNext) {
		t.Errorf("detailedStart = %v, want %v", c.detailedStart, wantNext)
	}
}

func TestDetailedSkippedBeforeInterval(t *testing.T) {
	sess := &fakeSession{devices: []*emporia.Device{
		testDevice(1000, "Panel", testChannel(emporia.MainsChannel, fptr(0.01))),
	}}
	sink := &fakeSink{}
	cfg := baseConfig()
	cfg.DetailedDataEnabled = true
	cfg.DetailedIntervalSecs = 3600
	c := newTestCollector(t, cfg, sess, sink)
	c.detailedStart = fixedNow.Add(-30 * time.Second)

	c.runCycle(context.Background())

	if len(sess.chartCalls) != 0 {
		t.Errorf("chart calls = %d, want 0 before interval elapses", len(sess.chartCalls))
	}
	if !c.detailedStart.Equal(fixedNow.Add(-30 * time.Second)) {
		t.Errorf("detailedStart advanced without a detailed fetch")
	}
}

func TestBackfillWindows(t *testing.T) {
	orig := backfillPause
	backfillPause = time.Millisecond
	defer func() { backfillPause = orig }()

	sess := &fakeSession{
		devices: []*emporia.Device{
			testDevice(1000, "Panel",
				testChannel(emporia.MainsChannel, nil),
				testChannel(emporia.ChannelBalance, fptr(0.005)),
			),
		},
		charts: map[string][]*float64{
			"1000-1,2,3/1MIN": {fptr(0.01), nil, fptr(0.02)},
		},
	}
	sink := &fakeSink{}
	cfg := baseConfig()
	cfg.HistoryDays = 2
	c := newTestCollector(t, cfg, sess, sink)
	c.backfillPending = true

	c.runCycle(context.Background())

	calls := sess.minuteCalls()
	if len(calls) != 4 {
		t.Fatalf("minute-scale queries = %d, want 4", len(calls))
	}
	stop := fixedNow.Add(-5 * time.Second)
	want := []struct{ start, end time.Time }{
		{stop.Add(-12 * time.Hour), stop},
		{stop.Add(-24 * time.Hour), stop.Add(-12 * time.Hour)},
		{stop.Add(-36 * time.Hour), stop.Add(-24 * time.Hour)},
		{stop.Add(-48 * time.Hour), stop.Add(-36 * time.Hour)},
	}
	for i, call := range calls {
		if call.key != "1000-1,2,3" {
			t.Errorf("query %d against %q, want mains channel", i, call.key)
		}
		if !call.start.Equal(want[i].start) || !call.end.Equal(want[i].end) {
			t.Errorf("window %d = [%v, %v), want [%v, %v)",
				i, call.start, call.end, want[i].start, want[i].end)
		}
	}

	// Two non-nil samples per window, four windows, plus the Balance
	// realtime reading.
	if len(sink.points) != 9 {
		t.Fatalf("points = %d, want 9", len(sink.points))
	}
	if c.backfillPending {
		t.Error("backfill flag still pending after completed pass")
	}

	c.runCycle(context.Background())
	if len(sess.minuteCalls()) != 4 {
		t.Errorf("backfill re-ran on second cycle")
	}
}

func TestBackfillCancelledBetweenWindows(t *testing.T) {
	orig := backfillPause
	backfillPause = 50 * time.Millisecond
	defer func() { backfillPause = orig }()

	ctx, cancel := context.WithCancel(context.Background())
	sess := &fakeSession{
		devices: []*emporia.Device{
			testDevice(1000, "Panel", testChannel(emporia.MainsChannel, nil)),
		},
		charts: map[string][]*float64{
			"1000-1,2,3/1MIN": {fptr(0.01), fptr(0.02)},
		},
	}
	sess.onChart = func(call chartCall) {
		if call.scale == emporia.ScaleMinute {
			cancel()
		}
	}
	sink := &fakeSink{}
	cfg := baseConfig()
	cfg.HistoryDays = 2
	c := newTestCollector(t, cfg, sess, sink)
	c.backfillPending = true

	c.runCycle(ctx)

	if got := len(sess.minuteCalls()); got != 1 {
		t.Errorf("minute-scale queries = %d, want 1 after cancellation", got)
	}
	// The completed window's points are still submitted.
	if len(sink.points) != 2 {
		t.Errorf("points = %d, want 2 from the completed window", len(sink.points))
	}
	if sink.flushes != 1 {
		t.Errorf("flushes = %d, want 1", sink.flushes)
	}
}

func TestAccountFailureIsolation(t *testing.T) {
	good := &fakeSession{devices: []*emporia.Device{
		testDevice(2000, "Cabin", testChannel(emporia.MainsChannel, fptr(0.01))),
	}}
	bad := &fakeSession{
		devices:   []*emporia.Device{testDevice(1000, "Panel", testChannel(emporia.MainsChannel, fptr(0.01)))},
		usageErrs: []error{fmt.Errorf("usage query: %w", emporia.ErrTimeout)},
	}
	sink := &fakeSink{}
	accounts := []config.AccountConfig{
		{Name: "broken", Email: "a@example.com", Password: "pw"},
		{Name: "healthy", Email: "b@example.com", Password: "pw"},
	}
	c, err := New(Options{
		Config:   baseConfig(),
		Accounts: accounts,
		Sink:     sink,
		Sessions: func(ctx context.Context, cfg config.AccountConfig) (emporia.Session, error) {
			if cfg.Name == "broken" {
				return bad, nil
			}
			return good, nil
		},
		Now: func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c.runCycle(context.Background())

	if len(sink.points) != 1 {
		t.Fatalf("points = %d, want 1 from the healthy account", len(sink.points))
	}
	if sink.points[0].tags["account_name"] != "healthy" {
		t.Errorf("point from account %q, want healthy", sink.points[0].tags["account_name"])
	}
}

func TestAuthFailureReopensSession(t *testing.T) {
	sess := &fakeSession{
		devices:   []*emporia.Device{testDevice(1000, "Panel", testChannel(emporia.MainsChannel, fptr(0.01)))},
		usageErrs: []error{emporia.ErrNotAuthenticated},
	}
	sink := &fakeSink{}
	logins := 0
	c, err := New(Options{
		Config:   baseConfig(),
		Accounts: []config.AccountConfig{{Name: "home", Email: "e@example.com", Password: "pw"}},
		Sink:     sink,
		Sessions: func(ctx context.Context, cfg config.AccountConfig) (emporia.Session, error) {
			logins++
			return sess, nil
		},
		Now: func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c.runCycle(context.Background())
	if len(sink.points) != 0 {
		t.Fatalf("points after failed cycle = %d, want 0", len(sink.points))
	}

	c.runCycle(context.Background())
	if logins != 2 {
		t.Errorf("logins = %d, want 2 after auth failure", logins)
	}
	if len(sink.points) != 1 {
		t.Errorf("points after recovery = %d, want 1", len(sink.points))
	}
}

func TestMirrorPublishesRealtimeOnly(t *testing.T) {
	orig := backfillPause
	backfillPause = time.Millisecond
	defer func() { backfillPause = orig }()

	sess := &fakeSession{
		devices: []*emporia.Device{
			testDevice(1000, "Panel", testChannel(emporia.MainsChannel, fptr(0.01))),
		},
		charts: map[string][]*float64{
			"1000-1,2,3/1S":   {fptr(0.1)},
			"1000-1,2,3/1MIN": {fptr(0.01)},
		},
	}
	sink := &fakeSink{}
	mirror := &fakeMirror{}
	cfg := baseConfig()
	cfg.DetailedDataEnabled = true
	cfg.DetailedIntervalSecs = 10
	cfg.HistoryDays = 1
	c, err := New(Options{
		Config:   cfg,
		Accounts: []config.AccountConfig{{Name: "home", Email: "e@example.com", Password: "pw"}},
		Sink:     sink,
		Mirror:   mirror,
		Sessions: func(ctx context.Context, cfg config.AccountConfig) (emporia.Session, error) {
			return sess, nil
		},
		Now: func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.detailedStart = fixedNow.Add(-30 * time.Second)
	c.backfillPending = true

	c.runCycle(context.Background())

	if len(sink.points) < 4 {
		t.Fatalf("points = %d, want realtime + detailed + backfill", len(sink.points))
	}
	if len(mirror.published) != 1 {
		t.Fatalf("mirrored = %d, want 1 realtime reading", len(mirror.published))
	}
	if mirror.published[0].channel != "Panel" || mirror.published[0].watts != 600 {
		t.Errorf("mirrored = %+v", mirror.published[0])
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	sess := &fakeSession{devices: []*emporia.Device{
		testDevice(1000, "Panel", testChannel(emporia.MainsChannel, fptr(0.01))),
	}}
	sink := &fakeSink{}
	c := newTestCollector(t, baseConfig(), sess, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil on cancellation", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
