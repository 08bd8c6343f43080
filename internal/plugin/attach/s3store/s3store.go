package s3store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/chirino/weave-service/internal/config"
	registryattach "github.com/chirino/weave-service/internal/registry/attach"
	"github.com/chirino/weave-service/internal/tempfiles"
)

func init() {
	registryattach.Register(registryattach.Plugin{
		Name:   "s3",
		Loader: load,
	})
}

func load(ctx context.Context) (registryattach.ArtifactStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3store: WEAVE_ARTIFACTS_S3_BUCKET is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRequestChecksumCalculation(aws.RequestChecksumCalculationWhenRequired),
	)
	if err != nil {
		return nil, fmt.Errorf("s3store: load AWS config: %w", err)
	}
	usePathStyle := cfg.S3UsePathStyle
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = usePathStyle
	})
	return &S3ArtifactStore{
		client:           client,
		presigner:        s3.NewPresignClient(client),
		bucket:           cfg.S3Bucket,
		prefix:           strings.Trim(strings.TrimSpace(cfg.S3Prefix), "/"),
		externalEndpoint: strings.TrimSpace(cfg.S3ExternalEndpoint),
		tempDir:          cfg.ResolvedTempDir(),
	}, nil
}

// S3ArtifactStore keeps artifact bytes in a single bucket. The key stored in
// the database never includes the configured prefix.
type S3ArtifactStore struct {
	client           *s3.Client
	presigner        *s3.PresignClient
	bucket           string
	prefix           string
	externalEndpoint string
	tempDir          string
}

func (s *S3ArtifactStore) objectKey(key string) string {
	if s.prefix != "" {
		return s.prefix + "/" + key
	}
	return key
}

// Put spools the upload to a temp file so the hash and size are known before
// the object is written; S3 needs a content length up front.
func (s *S3ArtifactStore) Put(ctx context.Context, key string, data io.Reader, maxSize int64, contentType string) (*registryattach.PutResult, error) {
	tmp, err := tempfiles.Create(s.tempDir, "weave-artifact-*")
	if err != nil {
		return nil, fmt.Errorf("s3store: create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	digest := &digestWriter{h: sha256.New()}
	if _, err := io.Copy(tmp, io.TeeReader(io.LimitReader(data, maxSize+1), digest)); err != nil {
		return nil, fmt.Errorf("s3store: buffer upload stream: %w", err)
	}
	if digest.n > maxSize {
		return nil, &registryattach.TooLargeError{MaxSize: maxSize}
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("s3store: rewind temp file: %w", err)
	}

	objectKey := s.objectKey(key)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &objectKey,
		Body:          tmp,
		ContentLength: aws.Int64(digest.n),
		ContentType:   &contentType,
	}, func(o *s3.Options) {
		o.APIOptions = append(o.APIOptions, v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware)
	})
	if err != nil {
		return nil, fmt.Errorf("s3store: put object: %w", err)
	}

	return &registryattach.PutResult{
		StorageKey: key,
		Size:       digest.n,
		SHA256:     hex.EncodeToString(digest.h.Sum(nil)),
	}, nil
}

func (s *S3ArtifactStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	objectKey := s.objectKey(key)
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &objectKey,
	})
	if err != nil {
		return nil, fmt.Errorf("s3store: get object: %w", err)
	}
	return resp.Body, nil
}

func (s *S3ArtifactStore) Delete(ctx context.Context, key string) error {
	objectKey := s.objectKey(key)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &objectKey,
	})
	if err != nil {
		return fmt.Errorf("s3store: delete object: %w", err)
	}
	return nil
}

func (s *S3ArtifactStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (*url.URL, error) {
	objectKey := s.objectKey(key)
	resp, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &objectKey,
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return nil, fmt.Errorf("s3store: presign: %w", err)
	}
	parsed, err := url.Parse(resp.URL)
	if err != nil {
		return nil, err
	}
	return rewriteEndpoint(parsed, s.externalEndpoint)
}

// rewriteEndpoint points a presigned URL at the externally reachable endpoint,
// keeping the signed path and query.
func rewriteEndpoint(presigned *url.URL, endpoint string) (*url.URL, error) {
	if endpoint == "" {
		return presigned, nil
	}
	external, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("s3store: parse external endpoint: %w", err)
	}
	out := *presigned
	out.Scheme = external.Scheme
	out.Host = external.Host
	if p := strings.TrimRight(external.Path, "/"); p != "" {
		out.Path = p + presigned.Path
	}
	return &out, nil
}

type digestWriter struct {
	h hash.Hash
	n int64
}

func (w *digestWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return w.h.Write(p)
}

var _ registryattach.ArtifactStore = (*S3ArtifactStore)(nil)
