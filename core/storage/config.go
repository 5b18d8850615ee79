package storage

// Config holds configuration for the object-store tier.
type Config struct {
	// Endpoint is the URL of the S3-compatible service.
	Endpoint string `mapstructure:"endpoint" default:"https://rgw.icecube.wisc.edu"`
	// AccessKey is the access key ID for authentication.
	AccessKey string `mapstructure:"access_key" default:""`
	// SecretKey is the secret access key for authentication.
	SecretKey string `mapstructure:"secret_key" default:""`
	// UseSSL overrides the scheme of Endpoint when it has none.
	UseSSL bool `mapstructure:"use_ssl" default:"true"`
	// Bucket is the bucket holding staged and transited objects.
	Bucket string `mapstructure:"bucket" default:"cta-dev"`
	// Region is the location of the bucket (e.g., us-east-1).
	Region string `mapstructure:"region" default:"us-east-1"`
	// TimeoutSeconds is the connection timeout in seconds.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
	// CreateBucket makes the bucket on startup when it does not exist.
	CreateBucket bool `mapstructure:"create_bucket" default:"false"`
	// PartSize is the multipart threshold and chunk size in bytes.
	PartSize uint64 `mapstructure:"part_size" default:"16777216"`
}
