// Package config provides configuration management for the data relay.
//
// It utilizes Viper for loading configuration from environment variables and an
// optional .env file. Defaults live next to each field in a `default` struct tag.
//
// # Configuration Structure
//
// The Config struct is divided into subsections:
//   - Storage: S3 endpoint, credentials and bucket of the object-store tier
//   - Archive: archive backend (mounted filesystem or GCS) and its root
//   - Relay: temp directory, codec, nice level, pool sizes and retry counts
//   - Log: logging level and format
//   - Server: audit API port, API key and catalog cache TTL
//
// Environment variables map onto nested keys by replacing dots with
// underscores, e.g. RELAY_ARCHIVE_THREADS sets relay.archive_threads.
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Storage.Bucket)
package config
