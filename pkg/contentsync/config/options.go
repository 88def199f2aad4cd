package config

import (
	"fmt"
	"time"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithMemoryStorage selects the in-memory blob store (for testing)
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		c.StorageType = "memory"
		c.StorageConfig = map[string]interface{}{}
		return nil
	}
}

// WithFilesystemStorage selects a filesystem blob store rooted at baseDir
func WithFilesystemStorage(baseDir string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.StorageType = "fs"
		c.StorageConfig = map[string]interface{}{
			"base_dir": baseDir,
		}
		return nil
	}
}

// WithS3Storage selects an S3 blob store
func WithS3Storage(bucket, region string) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
		if region == "" {
			region = "us-east-1"
		}
		c.StorageType = "s3"
		c.StorageConfig = map[string]interface{}{
			"bucket": bucket,
			"region": region,
		}
		return nil
	}
}

// WithS3Credentials sets AWS credentials for the S3 blob store
func WithS3Credentials(accessKeyID, secretAccessKey string) Option {
	return func(c *ServerConfig) error {
		if c.StorageConfig == nil {
			c.StorageConfig = map[string]interface{}{}
		}
		c.StorageConfig["access_key_id"] = accessKeyID
		c.StorageConfig["secret_access_key"] = secretAccessKey
		return nil
	}
}

// WithS3Endpoint sets a custom S3 endpoint (for MinIO, LocalStack, etc.)
func WithS3Endpoint(endpoint string, usePathStyle bool) Option {
	return func(c *ServerConfig) error {
		if c.StorageConfig == nil {
			c.StorageConfig = map[string]interface{}{}
		}
		c.StorageConfig["endpoint"] = endpoint
		c.StorageConfig["use_path_style"] = usePathStyle
		return nil
	}
}

// WithRemoteEndpoints configures the manifest, blob and event collector URLs
func WithRemoteEndpoints(manifestURL, blobURL, eventsURL string) Option {
	return func(c *ServerConfig) error {
		c.ManifestURL = manifestURL
		c.BlobURL = blobURL
		c.EventsURL = eventsURL
		return nil
	}
}

// WithAPIKey sets the bearer token used against the remote endpoints
func WithAPIKey(key string) Option {
	return func(c *ServerConfig) error {
		c.APIKey = key
		return nil
	}
}

// WithFetchTimeout sets the per-blob download deadline
func WithFetchTimeout(d time.Duration) Option {
	return func(c *ServerConfig) error {
		if d <= 0 {
			return fmt.Errorf("fetch timeout must be positive, got: %s", d)
		}
		c.FetchTimeout = d
		return nil
	}
}

// WithAnsweredTTL sets the retention window for answered bridge messages
func WithAnsweredTTL(d time.Duration) Option {
	return func(c *ServerConfig) error {
		if d <= 0 {
			return fmt.Errorf("answered TTL must be positive, got: %s", d)
		}
		c.AnsweredTTL = d
		return nil
	}
}

// WithSyncInterval sets the period of the background maintenance loop
func WithSyncInterval(d time.Duration) Option {
	return func(c *ServerConfig) error {
		if d <= 0 {
			return fmt.Errorf("sync interval must be positive, got: %s", d)
		}
		c.SyncInterval = d
		return nil
	}
}

// WithBackgroundJob enables or disables the background maintenance loop
func WithBackgroundJob(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableBackgroundJob = enabled
		return nil
	}
}

// WithDefaults is a convenience option that resets the configuration to
// library defaults. Useful as a base before applying more specific options.
func WithDefaults() Option {
	return func(c *ServerConfig) error {
		*c = defaults()
		return nil
	}
}
