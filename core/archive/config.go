package archive

const (
	BackendFS  = "fs"
	BackendGCS = "gcs"
)

// Config holds configuration for the archive tier.
type Config struct {
	// Backend is fs (a mounted archive filesystem) or gcs.
	Backend string `mapstructure:"backend" default:"fs"`
	// Root is the archive directory for fs, or the bucket name for gcs.
	Root string `mapstructure:"root" default:"/data/wipac/CTA/cta-sync-test"`
	// Prefix is prepended to object names on gcs.
	Prefix string `mapstructure:"prefix" default:""`
	// CredentialsFile is a service account JSON file for gcs. Empty uses ADC.
	CredentialsFile string `mapstructure:"credentials_file" default:""`
}
