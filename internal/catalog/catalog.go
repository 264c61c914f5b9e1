package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vueflux/vueflux/internal/infrastructure/database"
)

// Catalog records every device and channel vueflux has ever discovered.
//
// The collector consults it when rebuilding an account's indexes so
// "discovered new channel" events are logged once per channel across
// restarts rather than once per index rebuild. It is a convenience store:
// losing it only repeats discovery logging.
type Catalog struct {
	db *database.DB
}

// Entry describes one catalogued channel.
type Entry struct {
	AccountName string
	DeviceGID   int64
	ChannelNum  string
	Name        string
	FirstSeen   time.Time
	LastSeen    time.Time
}

// New creates a catalog over an open, migrated database.
func New(db *database.DB) *Catalog {
	return &Catalog{db: db}
}

// RecordDevice upserts a discovered device.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - account: Owning account name
//   - gid: Device group id
//   - name: Device display name
//   - seenAt: Observation time
//
// Returns:
//   - bool: true if the device was already known
//   - error: nil on success, otherwise the underlying database error
func (c *Catalog) RecordDevice(ctx context.Context, account string, gid int64, name string, seenAt time.Time) (bool, error) {
	known, err := c.exists(ctx,
		"SELECT 1 FROM devices WHERE account_name = ? AND device_gid = ?",
		account, gid)
	if err != nil {
		return false, err
	}

	ts := seenAt.UTC().Format(time.RFC3339)
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO devices (account_name, device_gid, name, first_seen, last_seen)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (account_name, device_gid)
		 DO UPDATE SET name = excluded.name, last_seen = excluded.last_seen`,
		account, gid, name, ts, ts,
	)
	if err != nil {
		return false, fmt.Errorf("recording device: %w", err)
	}

	return known, nil
}

// RecordChannel upserts a discovered channel.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - account: Owning account name
//   - gid: Owning device group id
//   - channelNum: Channel number within the device
//   - name: Resolved channel display name
//   - seenAt: Observation time
//
// Returns:
//   - bool: true if the channel was already known
//   - error: nil on success, otherwise the underlying database error
func (c *Catalog) RecordChannel(ctx context.Context, account string, gid int64, channelNum, name string, seenAt time.Time) (bool, error) {
	known, err := c.exists(ctx,
		"SELECT 1 FROM channels WHERE account_name = ? AND device_gid = ? AND channel_num = ?",
		account, gid, channelNum)
	if err != nil {
		return false, err
	}

	ts := seenAt.UTC().Format(time.RFC3339)
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO channels (account_name, device_gid, channel_num, name, first_seen, last_seen)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (account_name, device_gid, channel_num)
		 DO UPDATE SET name = excluded.name, last_seen = excluded.last_seen`,
		account, gid, channelNum, name, ts, ts,
	)
	if err != nil {
		return false, fmt.Errorf("recording channel: %w", err)
	}

	return known, nil
}

// Channels returns all catalogued channels for an account, ordered by
// device gid then channel number.
func (c *Catalog) Channels(ctx context.Context, account string) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT account_name, device_gid, channel_num, name, first_seen, last_seen
		 FROM channels
		 WHERE account_name = ?
		 ORDER BY device_gid, channel_num`,
		account,
	)
	if err != nil {
		return nil, fmt.Errorf("querying channels: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var firstSeen, lastSeen string
		if err := rows.Scan(&e.AccountName, &e.DeviceGID, &e.ChannelNum, &e.Name, &firstSeen, &lastSeen); err != nil {
			return nil, fmt.Errorf("scanning channel: %w", err)
		}
		if e.FirstSeen, err = time.Parse(time.RFC3339, firstSeen); err != nil {
			return nil, fmt.Errorf("parsing first_seen: %w", err)
		}
		if e.LastSeen, err = time.Parse(time.RFC3339, lastSeen); err != nil {
			return nil, fmt.Errorf("parsing last_seen: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating channels: %w", err)
	}

	return entries, nil
}

// exists runs an existence probe query.
func (c *Catalog) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := c.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking existence: %w", err)
	}
	return true, nil
}
