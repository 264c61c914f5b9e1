// Package influxdb provides the InfluxDB time-series sink for vueflux.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking point writes, and health monitoring.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WritePoint("energy_usage", tags, fields, timestamp)
//	client.Flush()
//
// # Delivery semantics
//
// Writes are batched according to config (batch_size, flush_interval) and
// delivered at least once; the collector calls Flush after each account's
// cycle so completed extraction work reaches the sink promptly. Async write
// errors surface through the SetOnError callback and are logged, not retried
// by this package (the client library retries internally).
package influxdb
