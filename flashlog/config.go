package flashlog

// DefaultHeaderSyncInterval is how many records may accumulate between
// durable header commits when no interval is configured. Each commit
// costs a header program and wears the header sector, so commits are
// batched; the price is that up to interval-1 records written after the
// last commit are not indexed by any header if power fails, though the
// records themselves are already on flash.
const DefaultHeaderSyncInterval = 10

// Config controls engine behavior that is not part of the stored
// format. The zero value selects the firmware defaults.
type Config struct {
	// HeaderSyncInterval is the record count between header commits.
	// Zero selects DefaultHeaderSyncInterval.
	HeaderSyncInterval uint32 `mapstructure:"header-sync-interval" yaml:"header-sync-interval"`
	// DisableWrap turns the circular buffer into bounded append-only
	// storage: once the record area is full, WriteRecord fails with
	// ErrFull instead of overwriting the oldest data.
	DisableWrap bool `mapstructure:"disable-wrap" yaml:"disable-wrap"`
}

func (c Config) withDefaults() Config {
	if c.HeaderSyncInterval == 0 {
		c.HeaderSyncInterval = DefaultHeaderSyncInterval
	}
	return c
}
