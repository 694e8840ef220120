package importer

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/jkdp/printshop-migrate/config"
)

//go:generate mockgen -destination=./mocks/mock_s3_client.go -package=mocks github.com/jkdp/printshop-migrate/internal/importer S3Client

// S3Client is the part of the S3 API used to fetch exports
type S3Client interface {
	GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error)
}

// S3ClientFactory builds an S3Client from the import settings
type S3ClientFactory func(cfg config.ImportConfig) (S3Client, error)

// Source is where an export is read from
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	String() string
}

// FileSource reads an export from the local filesystem
type FileSource struct {
	Path string
}

func (s *FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export: %w", err)
	}
	return f, nil
}

func (s *FileSource) String() string {
	return s.Path
}

// S3Source reads an export from an S3 object
type S3Source struct {
	Bucket string
	Key    string
	Client S3Client
}

func (s *S3Source) Open(ctx context.Context) (io.ReadCloser, error) {
	out, err := s.Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", s, err)
	}
	return out.Body, nil
}

func (s *S3Source) String() string {
	return "s3://" + s.Bucket + "/" + s.Key
}

// NewSource resolves a --source argument. s3://bucket/key locations are
// fetched with a client from factory, anything else is a local path.
func NewSource(raw string, cfg config.ImportConfig, factory S3ClientFactory) (Source, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("export source is required")
	}
	if !strings.HasPrefix(raw, "s3://") {
		return &FileSource{Path: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid s3 location %q: %w", raw, err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return nil, fmt.Errorf("invalid s3 location %q: expected s3://bucket/key", raw)
	}

	if factory == nil {
		factory = NewS3Client
	}
	client, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	return &S3Source{Bucket: u.Host, Key: key, Client: client}, nil
}

// NewS3Client creates a client using the default credential chain
func NewS3Client(cfg config.ImportConfig) (S3Client, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.S3Region),
	}
	if cfg.S3Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.S3Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, err
	}
	return s3.New(sess), nil
}
