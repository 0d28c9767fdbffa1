// Package config provides the configuration structure for the dataset pipeline.
package config

import (
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// CorpusConfig describes where the corpus lives and how its metadata is laid out.
type CorpusConfig struct {
	Root         string `toml:"root"`
	MetadataFile string `toml:"metadata_file"`
	Format       string `toml:"format"`
}

// DatasetConfig holds the batching and bucketing knobs.
type DatasetConfig struct {
	BatchSize       int    `toml:"batch_size"`
	BatchGroupSize  int    `toml:"batch_group_size"`
	MinSeqLen       int    `toml:"min_seq_len"`
	ReductionFactor int    `toml:"reduction_factor"`
	CachePolicy     string `toml:"cache_policy"`
	Seed            int64  `toml:"seed"`
}

// AudioConfig holds the feature extraction parameters.
type AudioConfig struct {
	SampleRate int     `toml:"sample_rate"`
	NumMels    int     `toml:"num_mels"`
	FFTSize    int     `toml:"fft_size"`
	HopLength  int     `toml:"hop_length"`
	WinLength  int     `toml:"win_length"`
	MelFmin    float64 `toml:"mel_fmin"`
	MelFmax    float64 `toml:"mel_fmax"`
}

// CacheConfig selects the feature artifact store backend.
type CacheConfig struct {
	Backend string `toml:"backend"`
	Dir     string `toml:"dir"`
}

// NATSConfig holds the configuration for the NATS-backed feature store.
type NATSConfig struct {
	URL                      string `toml:"url"`
	FeatureObjectStoreBucket string `toml:"feature_object_store_bucket"`
}

// DatabaseConfig holds the MySQL corpus provider settings.
type DatabaseConfig struct {
	DSN   string `toml:"dsn"`
	Table string `toml:"table"`
}

// LoaderConfig holds the parallel loader settings.
type LoaderConfig struct {
	NumWorkers int  `toml:"num_workers"`
	QueueDepth int  `toml:"queue_depth"`
	DropLast   bool `toml:"drop_last"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Corpus   CorpusConfig   `toml:"corpus"`
	Dataset  DatasetConfig  `toml:"dataset"`
	Audio    AudioConfig    `toml:"audio"`
	Cache    CacheConfig    `toml:"cache"`
	NATS     NATSConfig     `toml:"nats"`
	Database DatabaseConfig `toml:"database"`
	Loader   LoaderConfig   `toml:"loader"`
	Paths    PathsConfig    `toml:"paths"`
}

// Load loads the configuration for the dataset pipeline.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return &cfg, nil
}
