package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTotalRecords = 100000
	DefaultBatchSize    = 25
	DefaultRedisPort    = 6379
	DefaultCollection   = "companies"
)

type Config struct {
	Environment string `yaml:"environment" validate:"oneof=development production"`
	LogLevel    string `yaml:"logLevel" validate:"oneof=debug info warn error"`
	Region      string `yaml:"region"`

	TableName string       `yaml:"tableName" validate:"required"`
	Cache     Cache        `yaml:"cache"`
	Load      LoadSettings `yaml:"load"`
	Report    Report       `yaml:"report"`
}

type Cache struct {
	Host        string        `yaml:"host" validate:"required"`
	Port        int           `yaml:"port" validate:"min=1,max=65535"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db" validate:"min=0"`
	Collection  string        `yaml:"collection" validate:"required"`
	DialTimeout time.Duration `yaml:"dialTimeout"`
}

// Addr is host:port, unless Host already carries a port.
func (c Cache) Addr() string {
	if _, _, err := net.SplitHostPort(c.Host); err == nil {
		return c.Host
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type LoadSettings struct {
	TotalRecords  int    `yaml:"totalRecords" validate:"min=0"`
	BatchSize     int    `yaml:"batchSize" validate:"min=1,max=25"`
	Seed          uint64 `yaml:"seed"`
	ProgressEvery int    `yaml:"progressEvery" validate:"min=0"`
}

// Report settings are optional; an empty value disables that output.
type Report struct {
	MetricsNamespace string `yaml:"metricsNamespace"`
	Bucket           string `yaml:"bucket"`
	Prefix           string `yaml:"prefix"`
	TopicARN         string `yaml:"topicArn"`
}

func Default() *Config {
	return &Config{
		Environment: "production",
		LogLevel:    "info",
		Cache: Cache{
			Port:        DefaultRedisPort,
			Collection:  DefaultCollection,
			DialTimeout: 5 * time.Second,
		},
		Load: LoadSettings{
			TotalRecords:  DefaultTotalRecords,
			BatchSize:     DefaultBatchSize,
			ProgressEvery: 500,
		},
		Report: Report{
			Prefix: "loader-runs/",
		},
	}
}

// Load builds a config from defaults, then the YAML file at path (if any),
// then the environment. It does not validate; call Validate once flags and
// parameter references have been applied.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Environment, "ENVIRONMENT")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.Region, "AWS_REGION")
	setString(&c.TableName, "DYNAMODB_TABLE")
	setString(&c.Cache.Host, "REDIS_HOST")
	setString(&c.Cache.Password, "REDIS_PASSWORD")
	setString(&c.Cache.Collection, "CACHE_COLLECTION")
	setString(&c.Report.MetricsNamespace, "METRICS_NAMESPACE")
	setString(&c.Report.Bucket, "REPORT_BUCKET")
	setString(&c.Report.Prefix, "REPORT_PREFIX")
	setString(&c.Report.TopicARN, "REPORT_TOPIC_ARN")

	var errs []error
	errs = append(errs,
		setInt(&c.Cache.Port, "REDIS_PORT"),
		setInt(&c.Cache.DB, "REDIS_DB"),
		setInt(&c.Load.TotalRecords, "NUM_RECORDS"),
		setInt(&c.Load.BatchSize, "BATCH_SIZE"),
		setInt(&c.Load.ProgressEvery, "PROGRESS_EVERY"),
	)
	if v := os.Getenv("SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("SEED: %w", err))
		} else {
			c.Load.Seed = seed
		}
	}
	if v := os.Getenv("REDIS_DIAL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("REDIS_DIAL_TIMEOUT: %w", err))
		} else {
			c.Cache.DialTimeout = d
		}
	}
	return errors.Join(errs...)
}

var validate = validator.New()

// Validate checks field constraints and that the run divides into whole
// batches.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	if c.Load.TotalRecords%c.Load.BatchSize != 0 {
		return fmt.Errorf("load.totalRecords (%d) must be a multiple of load.batchSize (%d)", c.Load.TotalRecords, c.Load.BatchSize)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := strings.TrimPrefix(e.Namespace(), "Config.")
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, e.Param()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, e.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", field, e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}
