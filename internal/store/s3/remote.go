// Package s3 implements the remote record store over an S3-compatible
// bucket: one JSON object per record under a fixed key prefix. The bucket
// is shared by all devices of an account; change detection rides on the
// records' own timestamps rather than bucket metadata.
package s3

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jbcrane13/jubileesync/internal/auth"
	"github.com/jbcrane13/jubileesync/internal/store"
)

const defaultPrefix = "records/"

// API is the subset of the S3 client the remote store calls. *s3.Client
// satisfies it; tests substitute a fake.
type API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// ClientConfig describes the bucket endpoint and static credentials.
type ClientConfig struct {
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
}

// NewClient builds an *s3.Client from static credentials, pointing at a
// custom endpoint when one is configured (MinIO and friends).
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
		o.UsePathStyle = cfg.BaseEndpoint != ""
	}), nil
}

// Remote implements store.Remote against a bucket.
type Remote struct {
	api    API
	bucket string
	prefix string
	tokens auth.TokenSource
	clock  func() time.Time
}

// New wires a Remote. A nil clock defaults to time.Now.
func New(api API, bucket string, tokens auth.TokenSource, clock func() time.Time) *Remote {
	if clock == nil {
		clock = time.Now
	}
	return &Remote{
		api:    api,
		bucket: bucket,
		prefix: defaultPrefix,
		tokens: tokens,
		clock:  clock,
	}
}

// AccountStatus checks the session token, then bucket reachability. A
// missing or expired token reports no account; a failing bucket probe is
// returned as an error so the caller can treat it as a network condition.
func (r *Remote) AccountStatus(ctx context.Context) (store.AccountStatus, error) {
	_, err := auth.Inspect(r.tokens.Token(), r.clock())
	switch {
	case errors.Is(err, auth.ErrNoToken), errors.Is(err, auth.ErrTokenExpired):
		return store.AccountNoAccount, nil
	case err != nil:
		return store.AccountRestricted, nil
	}

	if _, err := r.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(r.bucket)}); err != nil {
		return store.AccountUnknown, fmt.Errorf("probing bucket: %w", err)
	}
	return store.AccountAvailable, nil
}

// Query lists the record prefix and returns every record modified after
// since.
func (r *Remote) Query(ctx context.Context, since time.Time) ([]store.Record, error) {
	var records []store.Record
	var continuation *string

	for {
		out, err := r.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(r.bucket),
			Prefix:            aws.String(r.prefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, fmt.Errorf("listing records: %w", err)
		}

		for _, obj := range out.Contents {
			if obj.Key == nil {
				continue
			}
			rec, err := r.getRecord(ctx, *obj.Key)
			if err != nil {
				return nil, err
			}
			if rec.LastModified.After(since) {
				records = append(records, rec)
			}
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			return records, nil
		}
		continuation = out.NextContinuationToken
	}
}

// Save uploads each record, reporting success or failure per record.
func (r *Remote) Save(ctx context.Context, records []store.Record) ([]store.RecordResult, error) {
	results := make([]store.RecordResult, 0, len(records))
	for _, rec := range records {
		results = append(results, store.RecordResult{ID: rec.ID, Err: r.putRecord(ctx, rec)})
	}
	return results, nil
}

// Delete removes each record's object, reporting per-record results.
func (r *Remote) Delete(ctx context.Context, ids []string) ([]store.RecordResult, error) {
	results := make([]store.RecordResult, 0, len(ids))
	for _, id := range ids {
		_, err := r.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(r.bucket),
			Key:    aws.String(r.key(id)),
		})
		if err != nil {
			err = fmt.Errorf("deleting record %s: %w", id, err)
		}
		results = append(results, store.RecordResult{ID: id, Err: err})
	}
	return results, nil
}

func (r *Remote) key(id string) string {
	return path.Join(strings.TrimSuffix(r.prefix, "/"), id+".json")
}

func (r *Remote) getRecord(ctx context.Context, key string) (store.Record, error) {
	out, err := r.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return store.Record{}, fmt.Errorf("fetching record %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return store.Record{}, fmt.Errorf("reading record %s: %w", key, err)
	}

	var rec store.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return store.Record{}, fmt.Errorf("decoding record %s: %w", key, err)
	}
	return rec, nil
}

func (r *Remote) putRecord(ctx context.Context, rec store.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", rec.ID, err)
	}
	_, err = r.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key(rec.ID)),
		Body:   strings.NewReader(string(data)),
	})
	if err != nil {
		return fmt.Errorf("uploading record %s: %w", rec.ID, err)
	}
	return nil
}
