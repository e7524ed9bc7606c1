package dynamo

// Config holds configuration for the DynamoDB Store.
type Config struct {
	// TablePrefix is prepended to every collection name to form the table name.
	// Default: "" (collection name is the table name)
	TablePrefix string

	// ScanSegments is the number of parallel scan segments used by Find, Count
	// and criteria-based removals/updates.
	// Higher values speed up scans of large tables but consume more read capacity.
	// Default: 1 (sequential scan)
	// Max: 256
	ScanSegments int

	// ConsistentRead requests strongly consistent reads for lookups and scans.
	// The sequence allocator relies on this to observe the latest counter value.
	// Default: true
	ConsistentRead bool
}

// DefaultConfig returns sensible defaults for small tables.
func DefaultConfig() Config {
	return Config{
		ScanSegments:   1,
		ConsistentRead: true,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.ScanSegments < 1 {
		c.ScanSegments = 1
	}
	if c.ScanSegments > 256 {
		c.ScanSegments = 256
	}
}

// tableName maps a collection to its DynamoDB table.
func (c Config) tableName(collection string) string {
	return c.TablePrefix + collection
}
