// Package config provides configuration loading and validation for vueflux.
//
// Configuration is loaded from a YAML file with three layers of precedence:
//
//  1. Hardcoded defaults
//  2. YAML file values
//  3. VUEFLUX_* environment variables (for secrets like tokens and passwords)
//
// The collector defaults mirror the behaviour most installations want: a
// 60 second polling interval, a 5 second query lag, detailed collection
// disabled, and no historical backfill. Backfill is clamped to 7 days.
package config
