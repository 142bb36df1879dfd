package config

import (
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/leporo/sqlrec"
)

var AppFs = afero.NewOsFs()

// Config holds the application configuration
type Config struct {
	Driver   string                  `mapstructure:"driver"`
	DSN      string                  `mapstructure:"dsn"`
	LogLevel string                  `mapstructure:"log_level"`
	Entities map[string]EntityConfig `mapstructure:"entities"`

	v *viper.Viper
}

// EntityConfig describes a table in the config file:
//
//	entities:
//	  users:
//	    primary_key: id
//	    fillable: [name, email]
//	    casts:
//	      id: int
//	      created_at: datetime
type EntityConfig struct {
	PrimaryKey string            `mapstructure:"primary_key"`
	Fillable   []string          `mapstructure:"fillable"`
	Casts      map[string]string `mapstructure:"casts"`
}

// Load reads configuration from .sqlrec.yaml, .env files and SQLREC_ environment variables.
// A missing config file is not an error.
func Load(fs afero.Fs) (*Config, error) {
	if fs == nil {
		fs = AppFs
	}
	v := viper.New()
	v.SetFs(fs)

	v.SetConfigName(".sqlrec")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := homedir.Dir(); err == nil {
		v.AddConfigPath(home)
		v.AddConfigPath(filepath.Join(home, ".config", "sqlrec"))
	}

	v.SetEnvPrefix("SQLREC")
	v.AutomaticEnv()
	// DATABASE_URL is honoured when SQLREC_DSN is not set
	if err := v.BindEnv("dsn", "SQLREC_DSN", "DATABASE_URL"); err != nil {
		return nil, errors.WithStack(err)
	}

	v.SetDefault("driver", "sqlite3")
	v.SetDefault("dsn", ":memory:")
	v.SetDefault("log_level", "info")

	// .env never overrides the environment, .env.local does
	if err := loadEnvFile(fs, ".env", false); err != nil {
		return nil, err
	}
	if err := loadEnvFile(fs, ".env.local", true); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
	}

	cfg := &Config{v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	return cfg, nil
}

func loadEnvFile(fs afero.Fs, name string, override bool) error {
	data, err := afero.ReadFile(fs, name)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "read %s", name)
	}
	env, err := godotenv.Unmarshal(string(data))
	if err != nil {
		return errors.Wrapf(err, "parse %s", name)
	}
	for key, value := range env {
		if _, ok := os.LookupEnv(key); ok && !override {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// BindFlags lets command line flags named like configuration keys
// override every other source. Flags left unset do not.
func (c *Config) BindFlags(flags *pflag.FlagSet) error {
	for _, key := range []string{"driver", "dsn", "log_level"} {
		flag := flags.Lookup(strings.ReplaceAll(key, "_", "-"))
		if flag == nil {
			continue
		}
		if err := c.v.BindPFlag(key, flag); err != nil {
			return errors.WithStack(err)
		}
	}
	return errors.Wrap(c.v.Unmarshal(c), "decode config")
}

// Viper returns the viper instance the configuration was read with,
// so that command line flags can be bound to it.
func (c *Config) Viper() *viper.Viper {
	return c.v
}

// ConfigFile returns the path of the config file used, if any.
func (c *Config) ConfigFile() string {
	if c.v == nil {
		return ""
	}
	return c.v.ConfigFileUsed()
}

// Tables lists configured entity names in lexical order.
func (c *Config) Tables() []string {
	return slices.Sorted(maps.Keys(c.Entities))
}

// Entity builds an entity for table from its configuration.
// Tables missing from the config get an entity with default settings.
func (c *Config) Entity(table string, d sqlrec.Driver) (*sqlrec.Entity, error) {
	opts := []sqlrec.Option{sqlrec.WithDriver(d)}
	ec, ok := c.Entities[strings.ToLower(table)]
	if !ok {
		return sqlrec.NewEntity(table, opts...), nil
	}
	if ec.PrimaryKey != "" {
		opts = append(opts, sqlrec.WithPrimaryKey(ec.PrimaryKey))
	}
	if len(ec.Fillable) > 0 {
		opts = append(opts, sqlrec.WithFillable(ec.Fillable...))
	}
	if len(ec.Casts) > 0 {
		casts := make(sqlrec.Casts, len(ec.Casts))
		for attr, name := range ec.Casts {
			rule, err := sqlrec.ParseCast(name)
			if err != nil {
				return nil, errors.Wrapf(err, "entities.%s.casts.%s", table, attr)
			}
			casts[attr] = rule
		}
		opts = append(opts, sqlrec.WithCasts(casts))
	}
	return sqlrec.NewEntity(table, opts...), nil
}
