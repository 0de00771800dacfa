package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// GetObjectAPI is the subset of the S3 client used for reads.
type GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Options configures the object storage client.
type S3Options struct {
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// Opener resolves export locations. Local paths are opened directly and s3://bucket/key
// locations through the S3 client, which is created on first use.
type Opener struct {
	opts   S3Options
	client GetObjectAPI
}

// NewOpener returns an Opener with lazily configured S3 access.
func NewOpener(opts S3Options) *Opener {
	return &Opener{opts: opts}
}

// NewOpenerWithClient returns an Opener that reads s3:// locations through client.
func NewOpenerWithClient(client GetObjectAPI) *Opener {
	return &Opener{client: client}
}

// Open returns a reader for location. The caller closes it.
func (o *Opener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if !strings.HasPrefix(location, "s3://") {
		f, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", location, err)
		}
		return f, nil
	}
	bucket, key, ok := parseS3Location(location)
	if !ok {
		return nil, fmt.Errorf("invalid s3 location %q: want s3://bucket/key", location)
	}

	client, err := o.s3Client(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get object %s: %w", location, err)
	}
	return resp.Body, nil
}

func (o *Opener) s3Client(ctx context.Context) (GetObjectAPI, error) {
	if o.client != nil {
		return o.client, nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if o.opts.Region != "" {
		opts = append(opts, awsconfig.WithRegion(o.opts.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if o.opts.Endpoint != "" {
		s3Opts = append(s3Opts, func(so *s3.Options) {
			so.BaseEndpoint = aws.String(o.opts.Endpoint)
			so.UsePathStyle = o.opts.UsePathStyle
		})
	}
	o.client = s3.NewFromConfig(awsCfg, s3Opts...)
	return o.client, nil
}

func parseS3Location(location string) (string, string, bool) {
	rest, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		return "", "", false
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
