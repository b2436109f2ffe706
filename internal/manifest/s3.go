// Package manifest hands manifest requests to the external generator through
// an S3-compatible bucket (AWS S3 or MinIO). Each request is one small JSON
// object; the generator watches the prefix and deletes what it has processed.
package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/pkordes/busline/internal/clock"
	"github.com/pkordes/busline/internal/domain"
)

// DefaultPrefix is the key prefix request objects are written under.
const DefaultPrefix = "manifest-requests/"

// Config holds the bucket settings. Credentials come from the default AWS chain.
type Config struct {
	Bucket    string
	Region    string // default us-east-1
	Endpoint  string // optional, for MinIO
	PathStyle bool
	Prefix    string // default DefaultPrefix
}

// S3Requester implements dispatch.ManifestRequester by writing request objects.
type S3Requester struct {
	client *s3.Client
	bucket string
	prefix string
	clock  clock.Clock
}

// NewS3Requester loads the AWS configuration and builds the client.
func NewS3Requester(ctx context.Context, cfg Config, clk clock.Clock) (*S3Requester, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("manifest.NewS3Requester: bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("manifest.NewS3Requester: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newS3Requester(client, cfg.Bucket, cfg.Prefix, clk), nil
}

func newS3Requester(client *s3.Client, bucket, prefix string, clk clock.Clock) *S3Requester {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &S3Requester{client: client, bucket: bucket, prefix: prefix, clock: clk}
}

type request struct {
	TripID      uuid.UUID              `json:"trip_id"`
	Trigger     domain.ManifestTrigger `json:"trigger"`
	RequestedAt time.Time              `json:"requested_at"`
}

// Key returns the object key for a request. Keys sort by trip, then time.
func (r *S3Requester) Key(tripID uuid.UUID, trigger domain.ManifestTrigger, at time.Time) string {
	return fmt.Sprintf("%s%s/%s-%s.json", r.prefix, tripID, at.UTC().Format("20060102T150405.000000000Z"), trigger)
}

// RequestManifest writes one request object.
func (r *S3Requester) RequestManifest(ctx context.Context, tripID uuid.UUID, trigger domain.ManifestTrigger) error {
	now := r.clock.Now()
	body, err := json.Marshal(request{TripID: tripID, Trigger: trigger, RequestedAt: now})
	if err != nil {
		return fmt.Errorf("manifest.S3Requester.RequestManifest: %w", err)
	}

	key := r.Key(tripID, trigger, now)
	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &r.bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("manifest.S3Requester.RequestManifest: put %s: %w", key, err)
	}
	return nil
}
