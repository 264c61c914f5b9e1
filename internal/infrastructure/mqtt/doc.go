// Package mqtt provides the optional realtime point mirror for vueflux.
//
// When enabled, each realtime usage reading is also published to an MQTT
// broker as retained JSON, so home-automation consumers can react to power
// draw without querying InfluxDB.
//
// Topic scheme:
//
//	vueflux/usage/{account}/{channel}   retained usage messages
//	vueflux/system/status               online/offline status (with LWT)
//
// The mirror is strictly best-effort: publish failures are logged by the
// caller and never affect sink delivery. The client auto-reconnects with
// exponential backoff and republishes its status on reconnect.
package mqtt
