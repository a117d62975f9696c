package config

// Default values applied before the config file and environment are read.
const (
	// DefaultPort is the API listen port.
	DefaultPort = 3000

	// DefaultIndexPath is the on-disk location of the metadata index.
	DefaultIndexPath = "./neko.db"

	// DefaultIdleTimeoutSeconds accommodates long-running full-file
	// streams; typical server defaults would cut them off.
	DefaultIdleTimeoutSeconds = 255

	// DefaultShutdownTimeoutSeconds bounds graceful shutdown.
	DefaultShutdownTimeoutSeconds = 10

	// DefaultConfigPath is where Resolve looks for an optional TOML file.
	DefaultConfigPath = "./nekodrive.toml"
)

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                   DefaultPort,
			IdleTimeoutSeconds:     DefaultIdleTimeoutSeconds,
			ShutdownTimeoutSeconds: DefaultShutdownTimeoutSeconds,
		},
		Index: IndexConfig{
			Path: DefaultIndexPath,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
