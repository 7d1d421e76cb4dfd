package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the loaded configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535 (got %d)", c.Server.Port))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes must be > 0 (got %d)", c.Server.MaxUploadBytes))
	}

	switch c.Storage.Backend {
	case BackendSQLite:
		if strings.TrimSpace(c.Storage.DBPath) == "" {
			errs = append(errs, errors.New("storage.db_path is required for the sqlite backend"))
		}
		if strings.TrimSpace(c.Storage.UploadDir) == "" {
			errs = append(errs, errors.New("storage.upload_dir is required for the sqlite backend"))
		}
	case BackendMongo:
		if c.Storage.MongoURI == "" || c.Storage.MongoDB == "" {
			errs = append(errs, errors.New("storage.mongo_uri and storage.mongo_db are required for the mongo backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be %q or %q (got %q)", BackendSQLite, BackendMongo, c.Storage.Backend))
	}

	if strings.TrimSpace(c.Auth.Username) == "" {
		errs = append(errs, errors.New("auth.username (APP_USERNAME) is required"))
	}
	if c.Auth.Password == "" && c.Auth.PasswordHash == "" {
		errs = append(errs, errors.New("auth.password (APP_PASSWORD) or auth.password_hash (APP_PASSWORD_HASH) is required"))
	}
	if c.Auth.SecretKey != "" && len(c.Auth.SecretKey) < 16 {
		errs = append(errs, fmt.Errorf("auth.secret_key must be at least 16 characters (got %d)", len(c.Auth.SecretKey)))
	}
	if c.Auth.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("auth.session_ttl must be > 0 (got %s)", c.Auth.SessionTTL))
	}

	return errors.Join(errs...)
}
