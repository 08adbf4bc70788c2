package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/transcoder/internal/timex"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk shape of Config. Durations use timex.Duration so
// they may be written as "30s" or as integer nanoseconds.
type fileConfig struct {
	HTTPAddr string `json:"http_addr" toml:"http_addr" yaml:"http_addr"`
	GRPCAddr string `json:"grpc_addr" toml:"grpc_addr" yaml:"grpc_addr"`

	JWTSecrets  string         `json:"jwt_secrets" toml:"jwt_secrets" yaml:"jwt_secrets"`
	JWTIssuer   string         `json:"jwt_issuer" toml:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string         `json:"jwt_audience" toml:"jwt_audience" yaml:"jwt_audience"`
	TokenTTL    timex.Duration `json:"token_ttl" toml:"token_ttl" yaml:"token_ttl"`

	S3AccessKey string         `json:"s3_access_key" toml:"s3_access_key" yaml:"s3_access_key"`
	S3SecretKey string         `json:"s3_secret_key" toml:"s3_secret_key" yaml:"s3_secret_key"`
	S3Bucket    string         `json:"s3_bucket" toml:"s3_bucket" yaml:"s3_bucket"`
	S3Region    string         `json:"s3_region" toml:"s3_region" yaml:"s3_region"`
	S3Endpoint  string         `json:"s3_endpoint" toml:"s3_endpoint" yaml:"s3_endpoint"`
	S3PathStyle bool           `json:"s3_path_style" toml:"s3_path_style" yaml:"s3_path_style"`
	PresignTTL  timex.Duration `json:"presign_ttl" toml:"presign_ttl" yaml:"presign_ttl"`

	MetadataBackend string `json:"metadata_backend" toml:"metadata_backend" yaml:"metadata_backend"`
	DatabaseDSN     string `json:"database_dsn" toml:"database_dsn" yaml:"database_dsn"`
	SQLitePath      string `json:"sqlite_path" toml:"sqlite_path" yaml:"sqlite_path"`
	DynamoTable     string `json:"dynamo_table" toml:"dynamo_table" yaml:"dynamo_table"`
	DynamoEndpoint  string `json:"dynamo_endpoint" toml:"dynamo_endpoint" yaml:"dynamo_endpoint"`
	LedgerPath      string `json:"ledger_path" toml:"ledger_path" yaml:"ledger_path"`

	FFmpegPath           string   `json:"ffmpeg_path" toml:"ffmpeg_path" yaml:"ffmpeg_path"`
	WorkDir              string   `json:"work_dir" toml:"work_dir" yaml:"work_dir"`
	MaxConcurrentEncodes int      `json:"max_concurrent_encodes" toml:"max_concurrent_encodes" yaml:"max_concurrent_encodes"`
	MaxUploadSize        ByteSize `json:"max_upload_size" toml:"max_upload_size" yaml:"max_upload_size"`

	CacheTTL       timex.Duration `json:"cache_ttl" toml:"cache_ttl" yaml:"cache_ttl"`
	CacheCoalesce  bool           `json:"cache_coalesce" toml:"cache_coalesce" yaml:"cache_coalesce"`
	RecordFailures bool           `json:"record_failures" toml:"record_failures" yaml:"record_failures"`

	LogLevel  string `json:"log_level" toml:"log_level" yaml:"log_level"`
	LogFormat string `json:"log_format" toml:"log_format" yaml:"log_format"`
}

// loadFile overlays the file at path onto c. Keys missing from the file keep
// their current values. The format follows the extension; anything other
// than .toml, .yaml or .yml is read as JSON.
func loadFile(path string, c *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	fc := toFile(c)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(fc)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(fc)
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(fc)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	fromFile(fc, c)
	return nil
}

func toFile(c *Config) *fileConfig {
	return &fileConfig{
		HTTPAddr:             c.HTTPAddr,
		GRPCAddr:             c.GRPCAddr,
		JWTSecrets:           c.JWTSecrets,
		JWTIssuer:            c.JWTIssuer,
		JWTAudience:          c.JWTAudience,
		TokenTTL:             timex.Duration{Duration: c.TokenTTL},
		S3AccessKey:          c.S3AccessKey,
		S3SecretKey:          c.S3SecretKey,
		S3Bucket:             c.S3Bucket,
		S3Region:             c.S3Region,
		S3Endpoint:           c.S3Endpoint,
		S3PathStyle:          c.S3PathStyle,
		PresignTTL:           timex.Duration{Duration: c.PresignTTL},
		MetadataBackend:      c.MetadataBackend,
		DatabaseDSN:          c.DatabaseDSN,
		SQLitePath:           c.SQLitePath,
		DynamoTable:          c.DynamoTable,
		DynamoEndpoint:       c.DynamoEndpoint,
		LedgerPath:           c.LedgerPath,
		FFmpegPath:           c.FFmpegPath,
		WorkDir:              c.WorkDir,
		MaxConcurrentEncodes: c.MaxConcurrentEncodes,
		MaxUploadSize:        c.MaxUploadSize,
		CacheTTL:             timex.Duration{Duration: c.CacheTTL},
		CacheCoalesce:        c.CacheCoalesce,
		RecordFailures:       c.RecordFailures,
		LogLevel:             c.LogLevel,
		LogFormat:            c.LogFormat,
	}
}

func fromFile(fc *fileConfig, c *Config) {
	c.HTTPAddr = fc.HTTPAddr
	c.GRPCAddr = fc.GRPCAddr
	c.JWTSecrets = fc.JWTSecrets
	c.JWTIssuer = fc.JWTIssuer
	c.JWTAudience = fc.JWTAudience
	c.TokenTTL = fc.TokenTTL.Duration
	c.S3AccessKey = fc.S3AccessKey
	c.S3SecretKey = fc.S3SecretKey
	c.S3Bucket = fc.S3Bucket
	c.S3Region = fc.S3Region
	c.S3Endpoint = fc.S3Endpoint
	c.S3PathStyle = fc.S3PathStyle
	c.PresignTTL = fc.PresignTTL.Duration
	c.MetadataBackend = fc.MetadataBackend
	c.DatabaseDSN = fc.DatabaseDSN
	c.SQLitePath = fc.SQLitePath
	c.DynamoTable = fc.DynamoTable
	c.DynamoEndpoint = fc.DynamoEndpoint
	c.LedgerPath = fc.LedgerPath
	c.FFmpegPath = fc.FFmpegPath
	c.WorkDir = fc.WorkDir
	c.MaxConcurrentEncodes = fc.MaxConcurrentEncodes
	c.MaxUploadSize = fc.MaxUploadSize
	c.CacheTTL = fc.CacheTTL.Duration
	c.CacheCoalesce = fc.CacheCoalesce
	c.RecordFailures = fc.RecordFailures
	c.LogLevel = fc.LogLevel
	c.LogFormat = fc.LogFormat
}
