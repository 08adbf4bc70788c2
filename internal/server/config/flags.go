package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// FlagConfig is the name of the flag selecting the config file.
const FlagConfig = "config"

// bindFlags registers every setting on fs, bound to c and defaulting to
// c's current values.
func bindFlags(fs *pflag.FlagSet, c *Config) {
	fs.StringVarP(&c.HTTPAddr, "http-addr", "a", c.HTTPAddr, "HTTP listen address")
	fs.StringVar(&c.GRPCAddr, "grpc-addr", c.GRPCAddr, "gRPC health listen address (empty disables)")

	fs.StringVarP(&c.JWTSecrets, "jwt-secrets", "s", c.JWTSecrets, "comma-separated HMAC secrets, the first one signs")
	fs.StringVar(&c.JWTIssuer, "jwt-issuer", c.JWTIssuer, "expected token issuer")
	fs.StringVar(&c.JWTAudience, "jwt-audience", c.JWTAudience, "expected token audience")
	fs.DurationVar(&c.TokenTTL, "token-ttl", c.TokenTTL, "lifetime of issued tokens")

	fs.StringVar(&c.S3AccessKey, "s3-access-key", c.S3AccessKey, "S3 access key")
	fs.StringVar(&c.S3SecretKey, "s3-secret-key", c.S3SecretKey, "S3 secret key")
	fs.StringVarP(&c.S3Bucket, "s3-bucket", "b", c.S3Bucket, "S3 bucket")
	fs.StringVar(&c.S3Region, "s3-region", c.S3Region, "S3 region")
	fs.StringVarP(&c.S3Endpoint, "s3-endpoint", "e", c.S3Endpoint, "S3 endpoint override")
	fs.BoolVar(&c.S3PathStyle, "s3-path-style", c.S3PathStyle, "use path-style S3 addressing")
	fs.DurationVar(&c.PresignTTL, "presign-ttl", c.PresignTTL, "lifetime of presigned URLs")

	fs.StringVarP(&c.MetadataBackend, "metadata-backend", "m", c.MetadataBackend, "metadata store: memory, postgres, sqlite, dynamodb or ledger")
	fs.StringVarP(&c.DatabaseDSN, "database-dsn", "d", c.DatabaseDSN, "PostgreSQL DSN")
	fs.StringVar(&c.SQLitePath, "sqlite-path", c.SQLitePath, "SQLite database file")
	fs.StringVar(&c.DynamoTable, "dynamo-table", c.DynamoTable, "DynamoDB table")
	fs.StringVar(&c.DynamoEndpoint, "dynamo-endpoint", c.DynamoEndpoint, "DynamoDB endpoint override")
	fs.StringVar(&c.LedgerPath, "ledger-path", c.LedgerPath, "JSON ledger file")

	fs.StringVar(&c.FFmpegPath, "ffmpeg", c.FFmpegPath, "ffmpeg binary")
	fs.StringVar(&c.WorkDir, "work-dir", c.WorkDir, "scratch directory for transcode jobs")
	fs.IntVar(&c.MaxConcurrentEncodes, "max-encodes", c.MaxConcurrentEncodes, "maximum concurrent ffmpeg processes")
	fs.Var(&c.MaxUploadSize, "max-upload-size", "maximum upload size, e.g. 2GiB")

	fs.DurationVar(&c.CacheTTL, "cache-ttl", c.CacheTTL, "listing cache lifetime")
	fs.BoolVar(&c.CacheCoalesce, "cache-coalesce", c.CacheCoalesce, "share one fetch between concurrent listing misses")
	fs.BoolVar(&c.RecordFailures, "record-failures", c.RecordFailures, "store the last failed transcode on the asset record")

	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn or error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format: auto, json or text")
}

// RegisterFlags adds the config file flag and every setting flag to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	defaults := &Config{}
	defaults.LoadDefaults()
	bindFlags(fs, defaults)
	fs.StringP(FlagConfig, "c", "", "config file (.json, .toml or .yaml)")
}

// applyFlags copies every flag the user set explicitly on fs into c.
func applyFlags(fs *pflag.FlagSet, c *Config) error {
	target := pflag.NewFlagSet("apply", pflag.ContinueOnError)
	bindFlags(target, c)

	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil || target.Lookup(f.Name) == nil {
			return
		}
		if e := target.Set(f.Name, f.Value.String()); e != nil {
			err = fmt.Errorf("flag --%s: %w", f.Name, e)
		}
	})
	return err
}

// Load builds a Config from defaults, then the file named by the config flag
// (if any), then explicitly set flags. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if fs != nil {
		if path, err := fs.GetString(FlagConfig); err == nil && path != "" {
			if err := loadFile(path, cfg); err != nil {
				return nil, err
			}
		}
		if err := applyFlags(fs, cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
