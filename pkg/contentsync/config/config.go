package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/breffi/content-sync/pkg/contentsync"
	"github.com/breffi/content-sync/pkg/contentsync/remote"
	repomemory "github.com/breffi/content-sync/pkg/contentsync/repo/memory"
	repopg "github.com/breffi/content-sync/pkg/contentsync/repo/postgres"
	fsstorage "github.com/breffi/content-sync/pkg/contentsync/storage/fs"
	memorystorage "github.com/breffi/content-sync/pkg/contentsync/storage/memory"
	s3storage "github.com/breffi/content-sync/pkg/contentsync/storage/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of
// library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:                "8080",
		Environment:         "development",
		DatabaseType:        "memory",
		DBSchema:            "contentsync",
		StorageType:         "memory",
		StorageConfig:       map[string]interface{}{},
		FetchTimeout:        2 * time.Minute,
		AnsweredTTL:         contentsync.DefaultRetention.AnsweredTTL,
		SyncInterval:        10 * time.Second,
		EnableBackgroundJob: true,
	}
}

// ServerConfig represents server configuration for the content-sync service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string // Postgres schema to use (default: contentsync)

	// Local blob storage configuration
	StorageType   string // "memory", "fs", "s3"
	StorageConfig map[string]interface{}

	// Remote endpoints
	ManifestURL string
	BlobURL     string
	EventsURL   string
	APIKey      string

	// Engine options
	FetchTimeout time.Duration // per-blob download deadline
	AnsweredTTL  time.Duration // answered bridge message retention

	// Background maintenance loop (event upload + queue purge)
	SyncInterval        time.Duration
	EnableBackgroundJob bool
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	switch c.StorageType {
	case "memory", "fs", "s3":
	default:
		return fmt.Errorf("unsupported storage type: %s", c.StorageType)
	}

	if c.FetchTimeout <= 0 {
		return errors.New("fetch_timeout must be positive")
	}
	if c.AnsweredTTL <= 0 {
		return errors.New("answered_ttl must be positive")
	}

	return nil
}

// BuildService creates a Service instance from the server configuration
func (c *ServerConfig) BuildService() (contentsync.Service, error) {
	var options []contentsync.Option

	repo, err := c.buildRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	options = append(options, contentsync.WithRepository(repo))

	store, err := c.buildBlobStore()
	if err != nil {
		return nil, fmt.Errorf("failed to build blob store: %w", err)
	}
	options = append(options, contentsync.WithBlobStore(store))

	var remoteOpts []remote.ClientOption
	if c.APIKey != "" {
		remoteOpts = append(remoteOpts, remote.WithAPIKey(c.APIKey))
	}
	if c.ManifestURL != "" {
		options = append(options, contentsync.WithManifestFetcher(remote.NewManifestClient(c.ManifestURL, remoteOpts...)))
	}
	if c.BlobURL != "" {
		options = append(options, contentsync.WithBlobFetcher(remote.NewBlobClient(c.BlobURL, remoteOpts...)))
	}
	if c.EventsURL != "" {
		options = append(options, contentsync.WithEventUploader(remote.NewEventClient(c.EventsURL, remoteOpts...)))
	}

	options = append(options,
		contentsync.WithDownloader(contentsync.NewDownloader(contentsync.WithFetchTimeout(c.FetchTimeout))),
		contentsync.WithRetention(contentsync.RetentionPolicy{AnsweredTTL: c.AnsweredTTL}),
	)

	return contentsync.New(options...)
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository() (contentsync.Repository, error) {
	switch c.DatabaseType {
	case "memory":
		return repomemory.New(), nil
	case "postgres":
		if c.DatabaseURL == "" {
			return nil, errors.New("database_url is required for postgres")
		}
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		schema := c.DBSchema
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if schema == "" {
				return nil
			}
			// set search_path for this session
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
			return err
		}
		pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// buildBlobStore creates a BlobStore based on the configuration
func (c *ServerConfig) buildBlobStore() (contentsync.BlobStore, error) {
	switch c.StorageType {
	case "memory":
		return memorystorage.New(), nil

	case "fs":
		fsConfig := fsstorage.Config{
			BaseDir: getString(c.StorageConfig, "base_dir", "./data/blobs"),
		}
		return fsstorage.New(fsConfig)

	case "s3":
		s3Config := s3storage.Config{
			Region:                 getString(c.StorageConfig, "region", "us-east-1"),
			Bucket:                 getString(c.StorageConfig, "bucket", ""),
			AccessKeyID:            getString(c.StorageConfig, "access_key_id", ""),
			SecretAccessKey:        getString(c.StorageConfig, "secret_access_key", ""),
			Endpoint:               getString(c.StorageConfig, "endpoint", ""),
			UsePathStyle:           getBool(c.StorageConfig, "use_path_style", false),
			EnableSSE:              getBool(c.StorageConfig, "enable_sse", false),
			SSEAlgorithm:           getString(c.StorageConfig, "sse_algorithm", "AES256"),
			SSEKMSKeyID:            getString(c.StorageConfig, "sse_kms_key_id", ""),
			CreateBucketIfNotExist: getBool(c.StorageConfig, "create_bucket_if_not_exist", false),
		}
		return s3storage.New(s3Config)

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.StorageType)
	}
}

// PingPostgres verifies connectivity to Postgres and optionally sets
// search_path for the session. It fails if the schema (when provided) does
// not exist.
func PingPostgres(databaseURL, schema string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer pool.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
	}
	return defaultValue
}
