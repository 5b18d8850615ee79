package config

import (
	"reflect"
	"strings"

	"github.com/vbrik/cta-data-relay/core/archive"
	"github.com/vbrik/cta-data-relay/core/logger"
	"github.com/vbrik/cta-data-relay/core/server"
	"github.com/vbrik/cta-data-relay/core/storage"
	"github.com/vbrik/cta-data-relay/core/transfer"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the relay.
// It is divided into partial configurations, one per tier or concern.
type Config struct {
	// Storage holds configuration for the object-store tier.
	Storage storage.Config `mapstructure:"storage"`
	// Archive holds configuration for the archive tier.
	Archive archive.Config `mapstructure:"archive"`
	// Relay holds pipeline tuning: temp space, codec and pool sizes.
	Relay transfer.Config `mapstructure:"relay"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Server holds configuration for the audit HTTP server.
	Server server.Config `mapstructure:"server"`
}

// LoadConfig loads configuration from environment variables and .env file.
func LoadConfig(path string) (*Config, error) {
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// Missing .env is normal outside development.
	_ = godotenv.Overload(envPath)

	v := viper.New()
	bindValues(v, Config{}, "")

	// RELAY_S3_THREADS -> relay.s3_threads
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// bindValues walks the struct and registers every mapstructure key in Viper
// with the value of its 'default' tag.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, field.Tag.Get("default"))
	}
}
