package options

import (
	"errors"

	"github.com/spf13/pflag"
)

var _ IOptions = (*S3Options)(nil)

// S3Options configures the mission archive bucket. An empty Endpoint disables archiving.
type S3Options struct {
	Endpoint        string `json:"endpoint" mapstructure:"endpoint"`
	AccessKeyID     string `json:"access-key-id" mapstructure:"access-key-id"`
	SecretAccessKey string `json:"secret-access-key" mapstructure:"secret-access-key"`
	UseSSL          bool   `json:"use-ssl" mapstructure:"use-ssl"`
	BucketName      string `json:"bucket-name" mapstructure:"bucket-name"`
	Region          string `json:"region" mapstructure:"region"`
}

func NewS3Options() *S3Options {
	return &S3Options{
		UseSSL:     true,
		BucketName: "missions",
		Region:     "us-east-1",
	}
}

// Enabled reports whether an archive endpoint is configured.
func (o *S3Options) Enabled() bool {
	return o != nil && o.Endpoint != ""
}

func (o *S3Options) Validate() []error {
	if !o.Enabled() {
		return nil
	}

	errs := []error{}
	if o.BucketName == "" {
		errs = append(errs, errors.New("s3.bucket-name is required when s3.endpoint is set"))
	}
	if o.AccessKeyID == "" || o.SecretAccessKey == "" {
		errs = append(errs, errors.New("s3 credentials are required when s3.endpoint is set"))
	}
	return errs
}

func (o *S3Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Endpoint, join("s3.endpoint", prefixes...), o.Endpoint, "S3 endpoint for archiving mission files (empty disables archiving).")
	fs.StringVar(&o.AccessKeyID, join("s3.access-key-id", prefixes...), o.AccessKeyID, "S3 access key ID")
	fs.StringVar(&o.SecretAccessKey, join("s3.secret-access-key", prefixes...), o.SecretAccessKey, "S3 secret access key")
	fs.BoolVar(&o.UseSSL, join("s3.use-ssl", prefixes...), o.UseSSL, "Enable SSL for S3 connection")
	fs.StringVar(&o.BucketName, join("s3.bucket-name", prefixes...), o.BucketName, "S3 bucket for archived mission files")
	fs.StringVar(&o.Region, join("s3.region", prefixes...), o.Region, "S3 region")
}
