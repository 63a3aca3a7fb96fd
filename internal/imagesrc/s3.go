// Package imagesrc resolves a domain.Image's byte content from an
// external store when a DomainSpec names a remote location rather than a
// local path. Today that means S3: fetching a domain image is a plain
// "GET one object, treat its bytes as opaque" operation.
package imagesrc

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/oriys/domaincore/internal/domain"
)

// S3Source fetches domain image bytes from an S3 bucket.
type S3Source struct {
	client *s3.Client
	bucket string
}

// NewS3Source builds a source bound to a single bucket, loading AWS
// credentials and region from the default provider chain (environment,
// shared config, EC2/ECS instance role) via config.LoadDefaultConfig,
// the same discovery path the SDK's other consumers in this corpus use.
func NewS3Source(ctx context.Context, region, bucket string) (*S3Source, error) {
	return NewS3SourceWithCredentials(ctx, region, bucket, "", "")
}

// NewS3SourceWithCredentials is like NewS3Source but pins the client to a
// static access key / secret pair instead of the default provider chain,
// for deployments (e.g. a local MinIO instance) with no instance role to
// discover. An empty accessKeyID leaves the default chain in place.
func NewS3SourceWithCredentials(ctx context.Context, region, bucket, accessKeyID, secretAccessKey string) (*S3Source, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("imagesrc: load AWS config: %w", err)
	}
	return &S3Source{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

// ParseKey extracts the object key from an "s3://bucket/key" URI, or from
// a bare key if ref carries no scheme. It never resolves a bucket other
// than the one S3Source was constructed with; a URI naming a different
// bucket is an error, since a domain's image source is pinned at boot.
func (s *S3Source) ParseKey(ref string) (string, error) {
	if !strings.HasPrefix(ref, "s3://") {
		return ref, nil
	}
	rest := strings.TrimPrefix(ref, "s3://")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("imagesrc: malformed s3 ref %q", ref)
	}
	if parts[0] != s.bucket {
		return "", fmt.Errorf("imagesrc: ref %q names bucket %q, source is bound to %q", ref, parts[0], s.bucket)
	}
	return parts[1], nil
}

// Fetch retrieves the object at ref and returns it as a domain.Image
// driver-tagged with driver and kind-tagged with kind. The object's
// bytes are treated as opaque, matching the loader's own "content is a
// resolved-by-name blob" contract.
func (s *S3Source) Fetch(ctx context.Context, ref, driver string, kind domain.Kind) (domain.Image, error) {
	key, err := s.ParseKey(ref)
	if err != nil {
		return domain.Image{}, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return domain.Image{}, fmt.Errorf("imagesrc: get object %s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return domain.Image{}, fmt.Errorf("imagesrc: read object %s/%s: %w", s.bucket, key, err)
	}

	return domain.Image{Bytes: data, Driver: driver, Kind: kind}, nil
}
