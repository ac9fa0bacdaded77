// Database configuration and runtime options.
//
// Config is persisted as config.json when a database is created and is
// immutable afterwards: the capacity fixes the address layout of every
// shard already on disk. Options only affect the running handle (logging,
// fsync policy, checksum algorithm, read buffer) and may differ between
// opens of the same database.
package shardb

import (
	"fmt"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// File and directory names inside a database directory.
const (
	configFile   = "config.json"
	manifestFile = "manifest.json"
	adoptFile    = "adopt.json"
	lockFile     = "LOCK"
	storeDir     = "store"
)

// DefaultExtension is used when Config.FileExtension is empty at creation.
const DefaultExtension = "txt"

// Config is the persisted, immutable layout of a database.
type Config struct {
	FileCapacity  int    `json:"fileCapacity"`  // Lines per shard (>= 1)
	FileExtension string `json:"fileExtension"` // Shard file extension without the dot
}

// validate checks the configuration constraints shared by Create and Connect.
func (c Config) validate() error {
	if c.FileCapacity < 1 {
		return fmt.Errorf("%w: fileCapacity must be a positive integer, got %d", ErrInvalidConfig, c.FileCapacity)
	}
	ext := strings.TrimSpace(c.FileExtension)
	if ext == "" {
		return fmt.Errorf("%w: fileExtension must not be empty", ErrInvalidConfig)
	}
	if ext != c.FileExtension || strings.ContainsAny(ext, `/\.`) {
		return fmt.Errorf("%w: fileExtension %q must be a bare extension", ErrInvalidConfig, c.FileExtension)
	}
	return nil
}

// readConfig loads and validates config.json from the database root.
func readConfig(root *os.Root) (Config, error) {
	data, err := root.ReadFile(configFile)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// writeConfig stores config.json. Only called during Create, before the
// database is visible to anyone else.
func writeConfig(root *os.Root, cfg Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return root.WriteFile(configFile, data, 0644)
}

// Hash algorithm constants for the manifest checksum.
const (
	AlgXXHash3 = 1 // Default, fastest
	AlgFNV1a   = 2 // No external dependencies
	AlgBlake2b = 3 // Best distribution
)

// options holds runtime settings applied by Option values.
type options struct {
	logger     *zap.Logger
	syncWrites bool
	algorithm  int
	readBuffer int
}

func defaultOptions() options {
	return options{
		logger:     zap.NewNop(),
		algorithm:  AlgXXHash3,
		readBuffer: 64 * 1024,
	}
}

// Option configures a database handle in Connect or Create.
type Option func(*options)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSyncWrites calls fsync after every shard and manifest write.
func WithSyncWrites(sync bool) Option {
	return func(o *options) { o.syncWrites = sync }
}

// WithHashAlgorithm selects the manifest checksum (AlgXXHash3, AlgFNV1a or
// AlgBlake2b). Unknown values fall back to AlgXXHash3. An existing manifest
// is always verified with the algorithm recorded in it.
func WithHashAlgorithm(alg int) Option {
	return func(o *options) {
		switch alg {
		case AlgXXHash3, AlgFNV1a, AlgBlake2b:
			o.algorithm = alg
		default:
			o.algorithm = AlgXXHash3
		}
	}
}

// WithReadBuffer sets the buffer size used when streaming shards.
func WithReadBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.readBuffer = n
		}
	}
}
