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

package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config names everything needed to build an S3 client, mirroring the
// teacher's S3Factory shape (storage/persistence-s3.go) one-for-one.
type S3Config struct {
	Bucket           string
	Prefix           string
	Region           string
	Endpoint         string
	ForcePathStyle   bool
	AccessKeyID      string
	SecretAccessKey  string
}

// S3Backend ships each shard's snapshot to
// s3://bucket/prefix/shard-<index>.db, overwriting the previous snapshot —
// only the latest backup per shard is kept, matching the teacher's own
// single-current-copy persistence model rather than a version history.
type S3Backend struct {
	cfg S3Config

	mu     sync.Mutex
	client *s3.Client
}

func NewS3Backend(cfg S3Config) *S3Backend {
	return &S3Backend{cfg: cfg}
}

// ensureClient lazily builds the AWS SDK client on first use, grounded on
// the teacher's S3Storage.ensureOpen (storage/persistence-s3.go): static
// credentials when given explicitly, the SDK's own default chain
// otherwise, with an optional custom endpoint and path-style addressing
// for S3-compatible object stores (MinIO, etc.).
func (b *S3Backend) ensureClient(ctx context.Context) (*s3.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		return b.client, nil
	}

	var opts []func(*config.LoadOptions) error
	if b.cfg.Region != "" {
		opts = append(opts, config.WithRegion(b.cfg.Region))
	}
	if b.cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(b.cfg.AccessKeyID, b.cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("snapshot: loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if b.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(b.cfg.Endpoint)
		}
		o.UsePathStyle = b.cfg.ForcePathStyle
	})
	b.client = client
	return client, nil
}

func (b *S3Backend) key(shardIndex int) string {
	if b.cfg.Prefix == "" {
		return fmt.Sprintf("shard-%d.db", shardIndex)
	}
	return fmt.Sprintf("%s/shard-%d.db", b.cfg.Prefix, shardIndex)
}

// Upload reads r to completion (required for a streaming PutObject call:
// the SDK needs a fully materialized or seekable body for the request's
// Content-Length and SigV4 payload hash) and puts it at this shard's
// well-known key.
func (b *S3Backend) Upload(ctx context.Context, shardIndex int, r io.Reader) error {
	client, err := b.ensureClient(ctx)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("snapshot: reading shard %d: %w", shardIndex, err)
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(shardIndex)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("snapshot: uploading shard %d: %w", shardIndex, err)
	}
	return nil
}
