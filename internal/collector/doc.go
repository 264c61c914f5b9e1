// Package collector polls energy-monitoring accounts and turns hierarchical
// per-channel readings into flat power-usage points.
//
// Each cycle the collector queries every account for the minute of usage
// ending at now minus a configured lag, walks the returned device trees
// depth-first, converts per-interval kWh readings to instantaneous watts,
// and runs a hysteresis detector that attaches on/off transition events
// where a channel's draw crosses the configured threshold. Finished points
// go to the sink in one batch per account; account failures never disturb
// the other accounts or the cycle cadence.
//
// Two further granularities ride on the same walk. When detailed collection
// is enabled, eligible channels opportunistically fetch the per-second
// series accumulated since the previous detailed fetch. On the first cycle,
// a configurable number of days of per-minute history is replayed in
// half-day windows, newest first, with pauses between queries.
//
// Power state lives in memory only, keyed by device gid, so hysteresis is
// continuous across cycles but re-seeds on restart.
package collector
