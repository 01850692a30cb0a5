package config

import "testing"

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.ShardCount < 1 {
		t.Fatalf("expected positive default shard count, got %d", cfg.ShardCount)
	}
	if cfg.ItemMaxBytes != 400*1024 {
		t.Fatalf("expected 400KiB default item cap, got %d", cfg.ItemMaxBytes)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("SHARD_COUNT", "8")
	t.Setenv("ITEM_MAX_BYTES", "1MiB")
	t.Setenv("LOCK_LEASE", "45s")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.ShardCount != 8 {
		t.Fatalf("expected shard count 8, got %d", cfg.ShardCount)
	}
	if cfg.ItemMaxBytes != 1024*1024 {
		t.Fatalf("expected 1MiB, got %d", cfg.ItemMaxBytes)
	}
	if cfg.LockLease.Seconds() != 45 {
		t.Fatalf("expected 45s lock lease, got %v", cfg.LockLease)
	}
}

func TestFromEnvRejectsBadShardCount(t *testing.T) {
	t.Setenv("SHARD_COUNT", "0")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for SHARD_COUNT=0")
	}
}

func TestFromEnvEnablesS3Backend(t *testing.T) {
	t.Setenv("DATA_DIR", "s3://my-bucket/prefix/sub")
	t.Setenv("S3_REGION", "eu-central-1")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if !cfg.S3Enabled {
		t.Fatal("expected S3Enabled=true for an s3:// DATA_DIR")
	}
	if cfg.S3Bucket != "my-bucket" {
		t.Fatalf("expected bucket my-bucket, got %q", cfg.S3Bucket)
	}
	if cfg.S3Prefix != "prefix/sub" {
		t.Fatalf("expected prefix prefix/sub, got %q", cfg.S3Prefix)
	}
	if cfg.DataDir == "s3://my-bucket/prefix/sub" {
		t.Fatal("expected DataDir to be rewritten to a local staging directory")
	}
	if cfg.S3Region != "eu-central-1" {
		t.Fatalf("expected region eu-central-1, got %q", cfg.S3Region)
	}
}

func TestParseS3URLRejectsEmptyBucket(t *testing.T) {
	if _, _, err := parseS3URL("s3:///prefix"); err == nil {
		t.Fatal("expected an error for a missing bucket name")
	}
}
