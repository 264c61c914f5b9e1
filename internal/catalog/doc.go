// Package catalog persists the set of devices and channels vueflux has
// discovered, keyed by account name plus the channel's composite identity
// (device gid + channel number).
//
// Its only job is operational memory: the collector asks "have I seen this
// channel before?" when rebuilding indexes, so discovery is announced once
// per channel across process restarts. Nothing else reads the catalog; in
// particular, power state is deliberately not persisted here — it resets
// on restart by design.
package catalog
