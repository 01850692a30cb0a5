/*
Copyright (C) 2026  MemCP Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package config parses the process's environment into an immutable Config
// struct. Nothing outside this package calls os.Getenv — every component
// that needs a setting receives it by value from main at startup, the same
// discipline the teacher expresses with its single package-level Settings
// value (storage/settings.go), generalized to a value threaded explicitly
// instead of a mutable global.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	units "github.com/docker/go-units"
)

// Config holds every tunable this process reads once at startup.
type Config struct {
	ShardCount     int
	DataDir        string
	Port           int
	LockLease      time.Duration
	ItemMaxBytes   int64
	IdempotencyTTL time.Duration
	LogLevel       string
	LogJSON        bool

	// S3 snapshot backend (§11.4). Enabled when DATA_DIR has an "s3://"
	// scheme: DataDir above is then rewritten to a local staging directory
	// (bbolt itself always needs a local file) and these fields describe
	// where periodic whole-shard snapshots are shipped.
	S3Enabled          bool
	S3Bucket           string
	S3Prefix           string
	S3Region           string
	S3Endpoint         string
	S3ForcePathStyle   bool
	S3AccessKeyID      string
	S3SecretAccessKey  string
	SnapshotInterval   time.Duration
}

// Defaults returns the spec's documented default values.
func Defaults() Config {
	return Config{
		ShardCount:       4,
		DataDir:          "data",
		Port:             8000,
		LockLease:        30 * time.Second,
		ItemMaxBytes:     400 * 1024,
		IdempotencyTTL:   10 * time.Minute,
		LogLevel:         "info",
		LogJSON:          false,
		SnapshotInterval: 5 * time.Minute,
	}
}

// FromEnv builds a Config starting from Defaults and overriding with any of
// SHARD_COUNT, DATA_DIR, LOCAL_STAGING_DIR, PORT, LOCK_LEASE,
// ITEM_MAX_BYTES, IDEMPOTENCY_TTL, LOG_LEVEL, LOG_JSON, S3_REGION,
// S3_ENDPOINT, S3_FORCE_PATH_STYLE, S3_ACCESS_KEY_ID, S3_SECRET_ACCESS_KEY,
// SNAPSHOT_INTERVAL found in the environment.
func FromEnv() (Config, error) {
	cfg := Defaults()

	if v, ok := os.LookupEnv("SHARD_COUNT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("config: SHARD_COUNT must be a positive integer, got %q", v)
		}
		cfg.ShardCount = n
	}
	if v, ok := os.LookupEnv("DATA_DIR"); ok {
		cfg.DataDir = v
	}
	if strings.HasPrefix(cfg.DataDir, "s3://") {
		bucket, prefix, err := parseS3URL(cfg.DataDir)
		if err != nil {
			return Config{}, fmt.Errorf("config: DATA_DIR: %w", err)
		}
		cfg.S3Enabled = true
		cfg.S3Bucket = bucket
		cfg.S3Prefix = prefix
		cfg.DataDir = "data" // local staging dir bbolt actually opens files in
		if v, ok := os.LookupEnv("LOCAL_STAGING_DIR"); ok {
			cfg.DataDir = v
		}
	}
	if v, ok := os.LookupEnv("S3_REGION"); ok {
		cfg.S3Region = v
	}
	if v, ok := os.LookupEnv("S3_ENDPOINT"); ok {
		cfg.S3Endpoint = v
	}
	if v, ok := os.LookupEnv("S3_FORCE_PATH_STYLE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: S3_FORCE_PATH_STYLE must be a bool, got %q", v)
		}
		cfg.S3ForcePathStyle = b
	}
	if v, ok := os.LookupEnv("S3_ACCESS_KEY_ID"); ok {
		cfg.S3AccessKeyID = v
	}
	if v, ok := os.LookupEnv("S3_SECRET_ACCESS_KEY"); ok {
		cfg.S3SecretAccessKey = v
	}
	if v, ok := os.LookupEnv("SNAPSHOT_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: SNAPSHOT_INTERVAL: %w", err)
		}
		cfg.SnapshotInterval = d
	}
	if v, ok := os.LookupEnv("PORT"); ok {
		p, err := strconv.Atoi(v)
		if err != nil || p < 1 || p > 65535 {
			return Config{}, fmt.Errorf("config: PORT must be a valid port number, got %q", v)
		}
		cfg.Port = p
	}
	if v, ok := os.LookupEnv("LOCK_LEASE"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: LOCK_LEASE: %w", err)
		}
		cfg.LockLease = d
	}
	if v, ok := os.LookupEnv("ITEM_MAX_BYTES"); ok {
		n, err := units.RAMInBytes(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: ITEM_MAX_BYTES: %w", err)
		}
		cfg.ItemMaxBytes = n
	}
	if v, ok := os.LookupEnv("IDEMPOTENCY_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: IDEMPOTENCY_TTL: %w", err)
		}
		cfg.IdempotencyTTL = d
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("LOG_JSON"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: LOG_JSON must be a bool, got %q", v)
		}
		cfg.LogJSON = b
	}

	return cfg, nil
}

// parseS3URL splits "s3://bucket/prefix" into its bucket and (possibly
// empty) prefix, mirroring the shape the teacher's S3Factory expects
// (storage/persistence-s3.go's Bucket/Prefix fields).
func parseS3URL(s string) (bucket, prefix string, err error) {
	rest := strings.TrimPrefix(s, "s3://")
	if rest == "" {
		return "", "", fmt.Errorf("empty s3:// URL")
	}
	parts := strings.SplitN(rest, "/", 2)
	bucket = parts[0]
	if bucket == "" {
		return "", "", fmt.Errorf("s3:// URL has no bucket name")
	}
	if len(parts) == 2 {
		prefix = strings.TrimSuffix(parts[1], "/")
	}
	return bucket, prefix, nil
}
