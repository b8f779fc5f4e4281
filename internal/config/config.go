package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"golang.org/x/crypto/bcrypt"
)

const (
	TokenStorePostgres = "postgres"
	TokenStoreRedis    = "redis"
	TokenStoreMemory   = "memory"
)

type Config struct {
	Env           string        `yaml:"env" env:"APP_ENV" env-default:"local"`
	DSN           string        `yaml:"dsn" env:"DSN" env-required:"true"`
	Migrations    bool          `yaml:"migrations" env:"MIGRATIONS" env-default:"true"`
	TokenStore    string        `yaml:"token_store" env:"TOKEN_STORE" env-default:"postgres"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL" env-default:"24h"`
	HTTP          HTTPConfig    `yaml:"http"`
	Auth          AuthConfig    `yaml:"auth"`
	Redis         RedisConf     `yaml:"redis"`
}

type HTTPConfig struct {
	Host         string        `yaml:"host" env:"HTTP_HOST"`
	Port         string        `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env-default:"5s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env-default:"10s"`
}

type AuthConfig struct {
	Secret          string        `yaml:"secret" env:"AUTH_SECRET"`
	Issuer          string        `yaml:"issuer" env-default:"task.app"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"10m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"336h"`
	BcryptCost      int           `yaml:"bcrypt_cost" env-default:"10"`
}

type RedisConf struct {
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redispassword" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db"`
}

func MustLoad() *Config {
	path := fetchConfigPath()
	if path == "" {
		panic("config path is empty")
	}

	return MustLoadPath(path)
}

func MustLoadPath(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}

	return cfg
}

func Load(configPath string) (*Config, error) {
	// check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Auth.Secret == "" {
		errs = append(errs, errors.New("auth.secret is required"))
	}
	if c.Auth.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("auth.access_token_ttl must be positive"))
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("auth.refresh_token_ttl must be positive"))
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("auth.bcrypt_cost must be within [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep_interval must be positive"))
	}

	switch c.TokenStore {
	case TokenStorePostgres, TokenStoreMemory:
	case TokenStoreRedis:
		if c.Redis.RedisAddr == "" {
			errs = append(errs, errors.New("redis.redis_addr is required for the redis token store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown token_store %q", c.TokenStore))
	}

	return errors.Join(errs...)
}

func fetchConfigPath() string {
	var res string

	// --config="path/to/config.yaml"
	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
