// Package config loads ClaimGuard configuration from an optional YAML file
// and CLAIMGUARD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/opensource-finance/claimguard/internal/domain"
)

// EnvPrefix prefixes every environment variable, e.g.
// CLAIMGUARD_SERVER_PORT or CLAIMGUARD_REPOSITORY_SQLITEPATH.
const EnvPrefix = "CLAIMGUARD"

// Load reads configuration. An empty path searches ./claimguard.yaml and
// /etc/claimguard/claimguard.yaml and tolerates their absence; an explicit
// path must exist. The tier (file or CLAIMGUARD_TIER) selects the defaults
// that unset keys fall back to.
func Load(path string) (*domain.Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("claimguard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/claimguard")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	base := domain.DefaultConfig()
	if domain.Tier(strings.ToLower(v.GetString("tier"))) == domain.TierPro {
		base = domain.ProConfig()
	}
	setDefaults(v, "", reflect.ValueOf(base).Elem())

	cfg := &domain.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Tier = domain.Tier(strings.ToLower(string(cfg.Tier)))

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every leaf of val under its mapstructure key. viper
// only consults the environment for keys it knows, so this also makes every
// field overridable by env.
func setDefaults(v *viper.Viper, prefix string, val reflect.Value) {
	t := val.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		fv := val.Field(i)
		if fv.Kind() == reflect.Struct {
			setDefaults(v, key, fv)
			continue
		}
		v.SetDefault(key, fv.Interface())
	}
}

// Validate rejects configurations the server cannot start with.
func Validate(cfg *domain.Config) error {
	var errs []error

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", cfg.Server.Port))
	}
	if !slices.Contains([]domain.Tier{domain.TierCommunity, domain.TierPro}, cfg.Tier) {
		errs = append(errs, fmt.Errorf("unknown tier %q", cfg.Tier))
	}
	if !slices.Contains([]string{"sqlite", "postgres"}, cfg.Repository.Driver) {
		errs = append(errs, fmt.Errorf("unsupported repository.driver %q", cfg.Repository.Driver))
	}
	if !slices.Contains([]string{"memory", "redis"}, cfg.Cache.Type) {
		errs = append(errs, fmt.Errorf("unsupported cache.type %q", cfg.Cache.Type))
	}
	if !slices.Contains([]string{"channel", "nats"}, cfg.EventBus.Type) {
		errs = append(errs, fmt.Errorf("unsupported eventBus.type %q", cfg.EventBus.Type))
	}
	if !slices.Contains([]string{"json", "text"}, strings.ToLower(cfg.Logging.Format)) {
		errs = append(errs, fmt.Errorf("unsupported logging.format %q", cfg.Logging.Format))
	}
	if cfg.Worker.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("worker.concurrency must be positive"))
	}
	if cfg.Worker.LockTTL <= cfg.Worker.LockWait {
		errs = append(errs, fmt.Errorf("worker.lockTtl must exceed worker.lockWait"))
	}

	return errors.Join(errs...)
}
