package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/fwmesh/fwmesh/internal/graph"
)

// S3Options configures the remote state backend. Endpoint may point at any
// S3-compatible object storage.
type S3Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
}

// S3 is a durable store keeping one JSON object per resource identity under
// <prefix>/<kind>/<name>.json.
type S3 struct {
	s3     *s3.Client
	bucket string
	prefix string
}

// OpenS3 creates the remote state backend. The bucket must already exist.
func OpenS3(ctx context.Context, opts S3Options) (*S3, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")),
		awsconfig.WithRegion(opts.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &S3{s3: client, bucket: opts.Bucket, prefix: strings.Trim(opts.Prefix, "/")}, nil
}

func (s *S3) key(id graph.Identity) string {
	return path.Join(s.prefix, string(id.Kind), id.Name+".json")
}

// Save implements Store.
func (s *S3) Save(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode state for %s: %w", rec.ID, err)
	}
	_, err = s.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(rec.ID)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to save state for %s: %w", rec.ID, err)
	}
	return nil
}

// Lookup implements Store.
func (s *S3) Lookup(ctx context.Context, id graph.Identity) (Record, error) {
	result, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("failed to fetch state for %s: %w", id, err)
	}
	defer result.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(result.Body); err != nil {
		return Record{}, fmt.Errorf("failed to read state object for %s: %w", id, err)
	}

	var rec Record
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		return Record{}, fmt.Errorf("corrupt state object for %s: %w", id, err)
	}
	return rec, nil
}

// Remove implements Store.
func (s *S3) Remove(ctx context.Context, id graph.Identity) error {
	_, err := s.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return fmt.Errorf("failed to remove state for %s: %w", id, err)
	}
	return nil
}

// List implements Store. Pagination is handled internally.
func (s *S3) List(ctx context.Context) ([]Record, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix + "/")
	}

	var out []Record
	paginator := s3.NewListObjectsV2Paginator(s.s3, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list state objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || !strings.HasSuffix(*obj.Key, ".json") {
				continue
			}
			id, ok := s.identityFromKey(*obj.Key)
			if !ok {
				continue
			}
			rec, err := s.Lookup(ctx, id)
			if errors.Is(err, ErrNotFound) {
				continue // deleted between list and get
			}
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// Close implements Store.
func (s *S3) Close() error { return nil }

func (s *S3) identityFromKey(key string) (graph.Identity, bool) {
	rel := strings.TrimPrefix(key, s.prefix+"/")
	if s.prefix == "" {
		rel = key
	}
	parts := strings.SplitN(rel, "/", 2)
	if len(parts) != 2 {
		return graph.Identity{}, false
	}
	return graph.Identity{
		Kind: graph.Kind(parts[0]),
		Name: strings.TrimSuffix(parts[1], ".json"),
	}, true
}

// isNoSuchKey checks for a missing object, falling back to API error codes
// for S3-compatible services that do not return the exact SDK error types.
func isNoSuchKey(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound" || code == "404"
	}
	return false
}
