package influxdb

import (
	"context"
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// resetEpoch is the start of the deletion range used by ResetMeasurement.
var resetEpoch = time.Unix(0, 0).UTC()

// WritePoint writes a point with full control over tags, fields, and time.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Errors surface through the SetOnError callback.
//
// Parameters:
//   - measurement: The measurement name (e.g., "energy_usage")
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//   - timestamp: The exact time for this data point
//
// Example:
//
//	client.WritePoint("energy_usage",
//	    map[string]string{"account_name": "home", "device_name": "Dryer"},
//	    map[string]interface{}{"usage": 612.5},
//	    time.Now())
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}

// ResetMeasurement deletes all previously written data for a measurement.
//
// Used at startup when the reset config flag is set, before the first
// collection cycle, so historical backfill rebuilds a clean series.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - measurement: The measurement to clear
//   - before: Upper bound of the deletion range (typically startup time)
//
// Returns:
//   - error: If the delete request fails
func (c *Client) ResetMeasurement(ctx context.Context, measurement string, before time.Time) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	predicate := fmt.Sprintf(`_measurement="%s"`, measurement)
	err := c.client.DeleteAPI().DeleteWithName(ctx, c.cfg.Org, c.cfg.Bucket, resetEpoch, before, predicate)
	if err != nil {
		return fmt.Errorf("deleting measurement %q: %w", measurement, err)
	}
	return nil
}
