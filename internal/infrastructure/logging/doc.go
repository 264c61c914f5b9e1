// Package logging provides structured logging for vueflux.
//
// It wraps the standard library log/slog with service defaults:
// JSON or text output, level filtering from config, and service/version
// attributes attached to every record.
//
// Components derive child loggers with With:
//
//	log := logging.New(cfg.Logging, version)
//	acctLog := log.With("account", acct.Name)
package logging
