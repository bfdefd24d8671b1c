// Package repository loads the static set of points of interest that the
// spatial index is built from. Sources are read once per (re)load; nothing
// here is kept in memory between loads.
package repository

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/okian/roadwatch/internal/domain/model"
)

// Source yields the points of interest for the spatial index.
type Source interface {
	Load(ctx context.Context) ([]model.PointOfInterest, error)
	String() string
}

// NewSource picks a source by URI scheme: file://, http(s):// or
// minio://bucket/object. A bare path is treated as a file.
func NewSource(uri string, opts ...Option) (Source, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: empty uri", ErrUnsupportedScheme)
	}
	if !strings.Contains(uri, "://") {
		return &FileSource{Path: uri, opts: opts}, nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedScheme, err)
	}
	switch u.Scheme {
	case "file":
		return &FileSource{Path: u.Host + u.Path, opts: opts}, nil
	case "http", "https":
		return NewHTTPSource(uri, opts...), nil
	case "minio", "s3":
		object := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || object == "" {
			return nil, fmt.Errorf("%w: %s needs bucket and object", ErrUnsupportedScheme, uri)
		}
		return NewMinIOSource(u.Host, object, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

// FileSource reads GeoJSON from the local filesystem.
type FileSource struct {
	Path string
	opts []Option
}

// Load reads and parses the file.
func (s *FileSource) Load(_ context.Context) ([]model.PointOfInterest, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnreachable, err)
	}
	defer func() { _ = f.Close() }()
	return ParseGeoJSON(f, s.opts...)
}

func (s *FileSource) String() string { return "file://" + s.Path }

// HTTPSource fetches GeoJSON over HTTP.
type HTTPSource struct {
	URL    string
	client *http.Client
	opts   []Option
}

// NewHTTPSource creates a source fetching url.
func NewHTTPSource(url string, opts ...Option) *HTTPSource {
	return &HTTPSource{URL: url, client: newSettings(opts).httpClient, opts: opts}
}

// Load fetches and parses the document.
func (s *HTTPSource) Load(ctx context.Context) ([]model.PointOfInterest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnreachable, err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %s returned %d", ErrSourceUnreachable, s.URL, resp.StatusCode)
	}
	return ParseGeoJSON(resp.Body, s.opts...)
}

func (s *HTTPSource) String() string { return s.URL }

// MinIOSource reads a GeoJSON object from an S3-compatible bucket.
type MinIOSource struct {
	client *minio.Client
	Bucket string
	Object string
	opts   []Option
}

// NewMinIOSource creates a client from the configured MinIO settings.
// No request is made until Load.
func NewMinIOSource(bucket, object string, opts ...Option) (*MinIOSource, error) {
	cfg := newSettings(opts).minio
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: minio endpoint not configured", ErrSourceUnreachable)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinIOSource{client: client, Bucket: bucket, Object: object, opts: opts}, nil
}

// Load downloads and parses the object.
func (s *MinIOSource) Load(ctx context.Context) ([]model.PointOfInterest, error) {
	obj, err := s.client.GetObject(ctx, s.Bucket, s.Object, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnreachable, err)
	}
	defer func() { _ = obj.Close() }()

	// GetObject is lazy; request errors surface on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnreachable, err)
	}
	return parseBytes(data, s.opts)
}

func (s *MinIOSource) String() string { return "minio://" + s.Bucket + "/" + s.Object }
