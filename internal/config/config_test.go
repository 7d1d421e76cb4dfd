package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Server:  ServerConfig{Port: 8080, MaxUploadBytes: 1 << 20},
		Storage: StorageConfig{Backend: BackendSQLite, DBPath: "expenses.db", UploadDir: "uploads"},
		Auth:    AuthConfig{Username: "admin", Password: "secret", SessionTTL: time.Hour},
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Storage = StorageConfig{Backend: BackendMongo, MongoURI: "mongodb://localhost", MongoDB: "db"}
	cfg.Auth.Password = ""
	cfg.Auth.PasswordHash = "$2a$10$abcdefghijklmnopqrstuv"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Config{
		Server:  ServerConfig{Port: 0, MaxUploadBytes: 1},
		Storage: StorageConfig{Backend: "postgres"},
		Auth:    AuthConfig{SecretKey: "short", SessionTTL: time.Hour},
	}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"server.port", "storage.backend", "auth.username", "auth.password", "auth.secret_key"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestServerAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:9000", ServerConfig{Host: "127.0.0.1", Port: 9000}.Addr())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("APP_USERNAME", "admin")
	t.Setenv("APP_PASSWORD", "secret")
	t.Setenv("PORT", "9090")
	t.Setenv("DB_PATH", "/tmp/test.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/tmp/test.db", cfg.Storage.DBPath)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, "uploads", cfg.Storage.UploadDir)
	assert.Equal(t, int64(25<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, 720*time.Hour, cfg.Auth.SessionTTL)
	assert.False(t, cfg.AMQP.Enabled())
}

func TestLoad_DotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("APP_USERNAME=fromfile\nAPP_PASSWORD=filepass\n"), 0o600))
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("APP_USERNAME", "fromenv")
	// Registered for cleanup; godotenv will set it from the file.
	t.Setenv("APP_PASSWORD", "")
	os.Unsetenv("APP_PASSWORD")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "fromenv", cfg.Auth.Username)
	assert.Equal(t, "filepass", cfg.Auth.Password)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  backend: mongo
  mongo_db: books
auth:
  username: yaml-user
  password_hash: "$2a$10$abcdefghijklmnopqrstuv"
log:
  format: json
`), 0o600))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendMongo, cfg.Storage.Backend)
	assert.Equal(t, "books", cfg.Storage.MongoDB)
	assert.Equal(t, "yaml-user", cfg.Auth.Username)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("APP_USERNAME", "")
	t.Setenv("APP_PASSWORD", "")
	t.Setenv("APP_PASSWORD_HASH", "")

	_, err := Load()
	assert.Error(t, err)
}
