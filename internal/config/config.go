// Package config provides centralized configuration for the newart server and CLI.
// Values come from defaults, an optional config file, and environment
// variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all server configuration values.
type Config struct {
	// Port is the HTTP server listen port.
	Port string

	// DBPath is the path to the SQLite database file.
	DBPath string

	// DataDir holds one directory per job; download URLs are relative to it.
	DataDir string

	// UploadsDir receives multipart uploads before they are moved into a job.
	UploadsDir string

	// WorkerInterval is the polling interval for the background worker.
	WorkerInterval time.Duration

	// OutputRetention is how long a finished job's output stays downloadable.
	OutputRetention time.Duration

	// CanvasSize is the square output edge in pixels.
	CanvasSize int

	// CanvasBackground is an optional hex color painted under the base layer.
	CanvasBackground string

	MaxItems                 int
	MaxUploadBytes           int64
	MaxConsecutiveRejections int
	MaxConsecutiveFailures   int
	RewriteConcurrency       int

	// Whitelist is a static list of admitted addresses. Empty with no RPCURL
	// admits everyone.
	Whitelist []string

	// RPCURL and WhitelistContract enable the on-chain whitelist.
	RPCURL            string
	WhitelistContract string

	// CORSOrigin is the allowed CORS origin. Defaults to "*".
	CORSOrigin string

	// GenerateRate is the sustained number of generate requests per second;
	// GenerateBurst bounds short spikes.
	GenerateRate  float64
	GenerateBurst int

	// ResultTTL is how long completed results stay in the in-memory cache.
	ResultTTL time.Duration

	// LogLevel is "debug", "info", "warn" or "error".
	LogLevel string
}

var defaults = map[string]any{
	"port":                       "3001",
	"db_path":                    "newart.db",
	"data_dir":                   "job_data",
	"uploads_dir":                "uploads_temp",
	"worker_interval":            "2s",
	"output_retention":           "2h",
	"canvas_size":                1000,
	"canvas_background":          "",
	"max_items":                  5000,
	"max_upload_bytes":           "512MB",
	"max_consecutive_rejections": 10000,
	"max_consecutive_failures":   100,
	"rewrite_concurrency":        8,
	"whitelist":                  "",
	"rpc_url":                    "",
	"whitelist_contract":         "",
	"cors_origin":                "*",
	"generate_rate":              1.0,
	"generate_burst":             5,
	"result_ttl":                 "2h",
	"log_level":                  "info",
}

// NewViper returns a viper instance with defaults set and environment
// variables bound. Keys map to upper-case env names, e.g. data_dir to DATA_DIR.
func NewViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	_ = v.BindEnv("log_level", "NEWART_LOG_LEVEL", "LOG_LEVEL")
	return v
}

// Load builds a Config from defaults, the optional file at path, and the
// environment.
func Load(path string) (Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper reads and validates a Config from v.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:                     v.GetString("port"),
		DBPath:                   v.GetString("db_path"),
		DataDir:                  v.GetString("data_dir"),
		UploadsDir:               v.GetString("uploads_dir"),
		WorkerInterval:           v.GetDuration("worker_interval"),
		OutputRetention:          v.GetDuration("output_retention"),
		CanvasSize:               v.GetInt("canvas_size"),
		CanvasBackground:         v.GetString("canvas_background"),
		MaxItems:                 v.GetInt("max_items"),
		MaxUploadBytes:           int64(v.GetSizeInBytes("max_upload_bytes")),
		MaxConsecutiveRejections: v.GetInt("max_consecutive_rejections"),
		MaxConsecutiveFailures:   v.GetInt("max_consecutive_failures"),
		RewriteConcurrency:       v.GetInt("rewrite_concurrency"),
		Whitelist:                splitList(v.GetString("whitelist")),
		RPCURL:                   v.GetString("rpc_url"),
		WhitelistContract:        v.GetString("whitelist_contract"),
		CORSOrigin:               v.GetString("cors_origin"),
		GenerateRate:             v.GetFloat64("generate_rate"),
		GenerateBurst:            v.GetInt("generate_burst"),
		ResultTTL:                v.GetDuration("result_ttl"),
		LogLevel:                 strings.ToLower(v.GetString("log_level")),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Port == "":
		return errors.New("port must be set")
	case c.DataDir == "":
		return errors.New("data_dir must be set")
	case c.WorkerInterval <= 0:
		return errors.New("worker_interval must be positive")
	case c.OutputRetention <= 0:
		return errors.New("output_retention must be positive")
	case c.CanvasSize <= 0:
		return errors.New("canvas_size must be positive")
	case c.MaxItems <= 0:
		return errors.New("max_items must be positive")
	case c.MaxUploadBytes <= 0:
		return errors.New("max_upload_bytes must be positive")
	case c.GenerateRate <= 0 || c.GenerateBurst <= 0:
		return errors.New("generate_rate and generate_burst must be positive")
	case (c.RPCURL == "") != (c.WhitelistContract == ""):
		return errors.New("rpc_url and whitelist_contract must be set together")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
