package emporia

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client defaults.
const (
	// DefaultBaseURL is the production Emporia API endpoint.
	DefaultBaseURL = "https://api.emporiaenergy.com"

	// defaultRequestTimeout bounds any single API call.
	defaultRequestTimeout = 30 * time.Second

	// energyUnit is the unit requested for all usage queries.
	energyUnit = "KilowattHours"

	// instantFormat is the timestamp format the API expects and returns.
	instantFormat = time.RFC3339
)

// Client is an HTTP implementation of Session against the Emporia cloud API.
//
// A Client is created unauthenticated; Login must succeed before any query.
// The client is not safe for concurrent use; the collector's single-loop
// design only ever issues sequential requests per account.
type Client struct {
	baseURL    string
	httpClient *http.Client
	authToken  string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint (used in tests).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates an unauthenticated API client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login authenticates with the service and stores the session token.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - email: Account email
//   - password: Account password
//
// Returns:
//   - error: ErrAuthFailed if credentials are rejected, ErrTimeout on
//     deadline, or a wrapped transport error
func (c *Client) Login(ctx context.Context, email, password string) error {
	body, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return fmt.Errorf("encoding login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthFailed
	default:
		return fmt.Errorf("%w: login returned %d", ErrStatus, resp.StatusCode)
	}

	var out struct {
		AuthToken string `json:"authToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decoding login response: %w", err)
	}
	if out.AuthToken == "" {
		return fmt.Errorf("%w: empty auth token", ErrAuthFailed)
	}

	c.authToken = out.AuthToken
	return nil
}

// ListDevices implements Session.
func (c *Client) ListDevices(ctx context.Context) ([]*Device, error) {
	var out struct {
		Devices []wireDevice `json:"devices"`
	}
	if err := c.get(ctx, "/customers/devices", nil, &out); err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	devices := make([]*Device, 0, len(out.Devices))
	for i := range out.Devices {
		devices = append(devices, out.Devices[i].toDevice())
	}
	return devices, nil
}

// DeviceListUsage implements Session.
func (c *Client) DeviceListUsage(ctx context.Context, gids []int64, asOf time.Time) (map[int64]*Device, error) {
	if len(gids) == 0 {
		return map[int64]*Device{}, nil
	}

	gidStrs := make([]string, 0, len(gids))
	for _, gid := range gids {
		gidStrs = append(gidStrs, strconv.FormatInt(gid, 10))
	}

	params := url.Values{
		"apiMethod":  {"getDeviceListUsage"},
		"deviceGids": {strings.Join(gidStrs, "+")},
		"instant":    {asOf.UTC().Format(instantFormat)},
		"scale":      {string(ScaleMinute)},
		"energyUnit": {energyUnit},
	}

	var out struct {
		DeviceListUsages struct {
			Devices []wireDevice `json:"devices"`
		} `json:"deviceListUsages"`
	}
	if err := c.get(ctx, "/AppAPI", params, &out); err != nil {
		return nil, fmt.Errorf("fetching device list usage: %w", err)
	}

	usages := make(map[int64]*Device, len(out.DeviceListUsages.Devices))
	for i := range out.DeviceListUsages.Devices {
		d := out.DeviceListUsages.Devices[i].toDevice()
		usages[d.GID] = d
	}
	return usages, nil
}

// ChartUsage implements Session.
func (c *Client) ChartUsage(ctx context.Context, ch *Channel, start, end time.Time, scale Scale) ([]*float64, time.Time, error) {
	params := url.Values{
		"apiMethod":  {"getChartUsage"},
		"deviceGid":  {strconv.FormatInt(ch.DeviceGID, 10)},
		"channel":    {ch.Number},
		"start":      {start.UTC().Format(instantFormat)},
		"end":        {end.UTC().Format(instantFormat)},
		"scale":      {string(scale)},
		"energyUnit": {energyUnit},
	}

	var out struct {
		FirstUsageInstant string     `json:"firstUsageInstant"`
		UsageList         []*float64 `json:"usageList"`
	}
	if err := c.get(ctx, "/AppAPI", params, &out); err != nil {
		return nil, time.Time{}, fmt.Errorf("fetching chart usage: %w", err)
	}

	seriesStart := start
	if out.FirstUsageInstant != "" {
		parsed, err := time.Parse(instantFormat, out.FirstUsageInstant)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("parsing series start: %w", err)
		}
		seriesStart = parsed
	}

	return out.UsageList, seriesStart, nil
}

// get performs an authenticated GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if c.authToken == "" {
		return ErrNotAuthenticated
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("authtoken", c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: %d from %s", ErrStatus, resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// classifyTransportError maps transport failures onto package sentinels.
// Timeouts (client timeout, context deadline) become ErrTimeout so the
// scheduler can label them; everything else is wrapped as-is.
func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("request failed: %w", err)
}

// wireDevice mirrors the API's device JSON shape (channels as arrays).
type wireDevice struct {
	DeviceGID  int64         `json:"deviceGid"`
	DeviceName string        `json:"deviceName"`
	Channels   []wireChannel `json:"channels"`
}

// wireChannel mirrors the API's channel JSON shape.
type wireChannel struct {
	DeviceGID     int64        `json:"deviceGid"`
	ChannelNum    string       `json:"channelNum"`
	Name          string       `json:"name"`
	Usage         *float64     `json:"usage"`
	NestedDevices []wireDevice `json:"nestedDevices"`
}

// toDevice converts the wire representation into the keyed domain tree.
func (w *wireDevice) toDevice() *Device {
	d := &Device{
		GID:      w.DeviceGID,
		Name:     w.DeviceName,
		Channels: make(map[string]*Channel, len(w.Channels)),
	}
	for i := range w.Channels {
		wc := &w.Channels[i]
		ch := &Channel{
			DeviceGID: wc.DeviceGID,
			Number:    wc.ChannelNum,
			Name:      wc.Name,
			Usage:     wc.Usage,
		}
		if ch.DeviceGID == 0 {
			ch.DeviceGID = w.DeviceGID
		}
		if len(wc.NestedDevices) > 0 {
			ch.NestedDevices = make(map[int64]*Device, len(wc.NestedDevices))
			for j := range wc.NestedDevices {
				nested := wc.NestedDevices[j].toDevice()
				ch.NestedDevices[nested.GID] = nested
			}
		}
		d.Channels[ch.Number] = ch
	}
	return d
}

// channelKey builds the composite channel identity used by the indexes.
func channelKey(gid int64, number string) string {
	return strconv.FormatInt(gid, 10) + "-" + number
}
