package config

import (
	"fmt"
)

/* Validate validates the configuration */
func (c *Config) Validate() error {
	if c.Mongo.Host == "" {
		return fmt.Errorf("mongo host is required")
	}
	if c.Mongo.Database == "" {
		return fmt.Errorf("mongo database is required")
	}

	if c.Database.Path == "" {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Logging.Level != "" {
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
		if !validLevels[c.Logging.Level] {
			return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
		}
	}

	if c.Logging.Format != "" {
		validFormats := map[string]bool{"json": true, "text": true}
		if !validFormats[c.Logging.Format] {
			return fmt.Errorf("invalid log format: %s (valid: json, text)", c.Logging.Format)
		}
	}

	if c.Embedding.UseSBERT && c.Embedding.URL == "" {
		return fmt.Errorf("embedding url is required when USE_SBERT_EMBEDDINGS is enabled")
	}

	return nil
}
