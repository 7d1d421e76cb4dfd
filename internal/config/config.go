package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the root application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	AMQP    AMQPConfig    `yaml:"amqp"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"HOST"                    env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"PORT"                    env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"60s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES"        env-default:"26214400"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Storage back ends.
const (
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

// StorageConfig selects and configures the expense and receipt stores.
type StorageConfig struct {
	Backend   string `yaml:"backend"    env:"STORAGE_BACKEND" env-default:"sqlite"`
	DBPath    string `yaml:"db_path"    env:"DB_PATH"         env-default:"expenses.db"`
	UploadDir string `yaml:"upload_dir" env:"UPLOAD_DIR"      env-default:"uploads"`
	MongoURI  string `yaml:"mongo_uri"  env:"MONGO_URI"       env-default:"mongodb://localhost:27017"`
	MongoDB   string `yaml:"mongo_db"   env:"MONGO_DB"        env-default:"bookkeeping"`
}

// AuthConfig holds the shared login and session settings.
type AuthConfig struct {
	Username     string        `yaml:"username"      env:"APP_USERNAME"`
	Password     string        `yaml:"password"      env:"APP_PASSWORD"`
	PasswordHash string        `yaml:"password_hash" env:"APP_PASSWORD_HASH"`
	SecretKey    string        `yaml:"secret_key"    env:"SECRET_KEY"`
	SessionTTL   time.Duration `yaml:"session_ttl"   env:"SESSION_TTL"   env-default:"720h"`
	SecureCookie bool          `yaml:"secure_cookie" env:"SECURE_COOKIE" env-default:"false"`
}

// AMQPConfig enables change notifications when URL is set.
type AMQPConfig struct {
	URL      string `yaml:"url"      env:"AMQP_URL"`
	Exchange string `yaml:"exchange" env:"AMQP_EXCHANGE" env-default:"bookkeeping.expenses"`
}

// Enabled reports whether a broker is configured.
func (a AMQPConfig) Enabled() bool { return a.URL != "" }

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}
