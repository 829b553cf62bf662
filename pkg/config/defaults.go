package config

// Storage driver names.
const (
	StorageInMemory = "inmemory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Event stream provider names.
const (
	EventStreamNop   = "nop"
	EventStreamKafka = "kafka"
)

const (
	defaultStorageDriver = StorageSQLite
	defaultSQLitePath    = "branchmem.sqlite"
	defaultAPIListen     = ":8081"

	defaultMemoryScheme = "turn"

	defaultEventStreamProvider = EventStreamNop
	defaultEventStreamTopic    = "branchmem.memory"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver:     defaultStorageDriver,
			SQLitePath: defaultSQLitePath,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Memory: MemoryConfig{
			Enabled: true,
			Scheme:  defaultMemoryScheme,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
	}
}
