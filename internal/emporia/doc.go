// Package emporia provides a client for the Emporia Vue cloud API.
//
// The client handles bearer-token authentication, device/channel discovery,
// and the usage queries the collector needs:
//
//   - ListDevices: the account's device tree with channel metadata
//   - DeviceListUsage: one usage reading per channel for a set of devices,
//     as of an instant, at minute granularity
//   - ChartUsage: a usage series for one channel over an explicit window,
//     at second or minute granularity
//
// Usage values are kilowatt-hours for the interval at the requested scale.
// A nil entry in a series means the service has no data for that instant;
// it is not an error.
//
// # Error classification
//
// Network timeouts are reported as ErrTimeout (check with errors.Is) so
// callers can distinguish them from other recoverable failures. All errors
// from this package are recoverable from the collector's point of view; the
// scheduler logs them and skips the account for the cycle.
package emporia
