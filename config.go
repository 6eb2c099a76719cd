package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	ConfigFile = "./config.yml"
	EnvFile    = "./config.env"
	EnvPrefix  = "LIBAPI"
)

// Config defines the structure of the configuration file.
type Config struct {
	GitCommit    string          `yaml:"git_commit" json:"git_commit" envconfig:"GIT_COMMIT"`
	GitTag       string          `yaml:"git_tag" json:"git_tag" envconfig:"GIT_TAG"`
	BuildTime    string          `yaml:"build_time" json:"build_time" envconfig:"BUILD_TIME"`
	IsProduction bool            `yaml:"is_production" json:"is_production" envconfig:"IS_PRODUCTION"`
	LogLevel     zapcore.Level   `yaml:"log_level" json:"log_level" envconfig:"LOG_LEVEL"`
	LogFolder    string          `yaml:"log_folder" json:"log_folder" envconfig:"LOG_FOLDER"`
	LogMaxSize   int             `yaml:"log_max_size" json:"log_max_size" envconfig:"LOG_MAX_SIZE"` // in megabytes
	Server       ServerConfig    `yaml:"server" json:"server"`
	Postgres     PostgresConfig  `yaml:"postgres" json:"postgres"`
	Redis        RedisConfig     `yaml:"redis" json:"redis"`
	BoltDB       BoltDBConfig    `yaml:"boltdb" json:"boltdb"`
	Events       EventsConfig    `yaml:"events" json:"events"`
	Auth         AuthConfig      `yaml:"auth" json:"auth"`
	RateLimit    RateLimitConfig `yaml:"ratelimit" json:"ratelimit"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" json:"host" envconfig:"HOST"`
	Port            string        `yaml:"port" json:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" json:"request_timeout" envconfig:"REQUEST_TIMEOUT"` // Time to wait for a request to finish
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	OpsEnable       bool          `yaml:"ops_enable" json:"ops_enable" envconfig:"OPS_ENABLE"`
	ProfilerEnable  bool          `yaml:"profiler_enable" json:"profiler_enable" envconfig:"PROFILER_ENABLE"`
}

type PostgresConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn" envconfig:"DSN"`
	MaxConns        int32         `yaml:"max_conns" json:"max_conns" envconfig:"MAX_CONNS"`
	MinConns        int32         `yaml:"min_conns" json:"min_conns" envconfig:"MIN_CONNS"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" json:"max_conn_lifetime" envconfig:"MAX_CONN_LIFETIME"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" json:"connect_timeout" envconfig:"CONNECT_TIMEOUT"`
	TableName       string        `yaml:"table_name" json:"table_name" envconfig:"TABLE_NAME"`
}

type RedisConfig struct {
	Host          string        `yaml:"host" json:"host" envconfig:"HOST"`
	Port          string        `yaml:"port" json:"port" envconfig:"PORT"`
	DialTimeout   time.Duration `yaml:"dial_timeout" json:"dial_timeout" envconfig:"DIAL_TIMEOUT"`
	ReadTimeout   time.Duration `yaml:"read_timeout" json:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout  time.Duration `yaml:"write_timeout" json:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	PoolSize      int           `yaml:"pool_size" json:"pool_size" envconfig:"POOL_SIZE"`
	PoolTimeout   time.Duration `yaml:"pool_timeout" json:"pool_timeout" envconfig:"POOL_TIMEOUT"`
	Username      string        `yaml:"username" json:"username" envconfig:"USERNAME"`
	Password      string        `yaml:"password" json:"password" envconfig:"PASSWORD"`
	DatabaseIndex int           `yaml:"db_index" json:"db_index" envconfig:"DATABASE_INDEX"`
}

type BoltDBConfig struct {
	FilePath   string        `yaml:"filepath" json:"filepath" envconfig:"FILE_PATH"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout" envconfig:"TIMEOUT"`
	BucketName string        `yaml:"bucket_name" json:"bucket_name" envconfig:"BUCKET_NAME"`
}

// EventsConfig controls the change feed and the archive consumer.
type EventsConfig struct {
	Enable bool `yaml:"enable" json:"enable" envconfig:"ENABLE"`
}

// AuthConfig holds the statically provisioned accounts. Accounts are only
// read from the yaml file.
type AuthConfig struct {
	Realm      string          `yaml:"realm" json:"realm" envconfig:"REALM"`
	BcryptCost int             `yaml:"bcrypt_cost" json:"bcrypt_cost" envconfig:"BCRYPT_COST"`
	Accounts   []AccountConfig `yaml:"accounts" json:"accounts" ignored:"true"`
}

type AccountConfig struct {
	Username     string   `yaml:"username" json:"username"`
	Password     string   `yaml:"password" json:"-"`
	PasswordHash string   `yaml:"password_hash" json:"-"`
	Roles        []string `yaml:"roles" json:"roles"`
}

type RateLimitConfig struct {
	RPS   float64       `yaml:"rps" json:"rps" envconfig:"RPS"`
	Burst int           `yaml:"burst" json:"burst" envconfig:"BURST"`
	TTL   time.Duration `yaml:"ttl" json:"ttl" envconfig:"TTL"`

	// Only enable behind a proxy which overwrites X-Real-IP and X-Forwarded-For.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers" json:"trust_proxy_headers" envconfig:"TRUST_PROXY_HEADERS"`
}

// LoadConfigFile provides an instance of config structure for the all application.
func LoadConfigFile(configFile string) (*Config, error) {
	file, err := os.Open(configFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	cfg := &Config{}
	yd := yaml.NewDecoder(file)
	err = yd.Decode(cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigEnvs reads the environments variables and overrides the App config.
func LoadConfigEnvs(prefix string, config *Config) error {
	return envconfig.Process(prefix, config)
}

// InitConfig setup defaults values for non provided parameters
// and configures build tags values to be used if provided.
func InitConfig(config *Config, gitCommit, gitTag, buildTime string) error {
	if len(gitCommit) != 0 {
		config.GitCommit = gitCommit
	}

	if len(gitTag) != 0 {
		config.GitTag = gitTag
	}

	if len(buildTime) != 0 {
		config.BuildTime = buildTime
	}

	if len(config.Server.Host) == 0 || len(config.Server.Port) == 0 {
		return errors.New("make sure to set valid server address and port in configuration file")
	}

	if len(config.Postgres.DSN) == 0 {
		return errors.New("make sure to set a valid postgres dsn in configuration file")
	}

	if config.Events.Enable {
		if len(config.Redis.Host) == 0 || len(config.Redis.Port) == 0 {
			return errors.New("make sure to set valid redis address and port when events are enabled")
		}
		if len(config.BoltDB.FilePath) == 0 || len(config.BoltDB.BucketName) == 0 {
			return errors.New("make sure to set valid boltdb file and bucket when events are enabled")
		}
	}

	if config.LogMaxSize <= 0 {
		config.LogMaxSize = 100
	}

	if len(config.LogFolder) == 0 {
		config.LogFolder = "./logs"
	}

	if config.Server.RequestTimeout <= 0 {
		config.Server.RequestTimeout = 10 * time.Second
	}

	if config.Server.ShutdownTimeout <= 0 {
		config.Server.ShutdownTimeout = 30 * time.Second
	}

	if len(config.Postgres.TableName) == 0 {
		config.Postgres.TableName = DefaultBooksTable
	}

	if len(config.Auth.Realm) == 0 {
		config.Auth.Realm = "library"
	}

	if len(config.Auth.Accounts) == 0 {
		config.Auth.Accounts = DefaultAccounts()
	}

	return nil
}

// LoadAndInitConfigs loads in order the configs from various predefined sources
// then build the App configuration data. The env file is optional.
func LoadAndInitConfigs(gitCommit, gitTag, buildTime string) (*Config, error) {
	config, err := LoadConfigFile(ConfigFile)
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from file: %s", err)
	}

	if _, err = os.Stat(EnvFile); err == nil {
		if err = godotenv.Load(EnvFile); err != nil {
			return config, fmt.Errorf("failed to set environment configurations: %s", err)
		}
	}

	err = LoadConfigEnvs(EnvPrefix, config)
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from environment: %s", err)
	}

	err = InitConfig(config, gitCommit, gitTag, buildTime)
	if err != nil {
		return config, fmt.Errorf("failed to initialize configurations: %s", err)
	}
	return config, nil
}

// Redacted returns a copy of the configuration safe to expose on ops endpoints.
func (c *Config) Redacted() Config {
	cp := *c
	cp.Postgres.DSN = RedactDSN(c.Postgres.DSN)
	if cp.Redis.Password != "" {
		cp.Redis.Password = "***"
	}
	cp.Auth.Accounts = make([]AccountConfig, 0, len(c.Auth.Accounts))
	for _, a := range c.Auth.Accounts {
		cp.Auth.Accounts = append(cp.Auth.Accounts, AccountConfig{Username: a.Username, Roles: a.Roles})
	}
	return cp
}
