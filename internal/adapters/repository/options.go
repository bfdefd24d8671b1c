package repository

import (
	"net/http"
)

const (
	// DefaultIDProperty is the GeoJSON property holding the point id.
	DefaultIDProperty = "INTERSECTION_ID"
	// DefaultDescriptionProperty is the GeoJSON property holding the label.
	DefaultDescriptionProperty = "INTERSECTION_DESC"
)

// MinIOConfig holds the object-store client settings used by minio:// sources.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

type settings struct {
	idProperty   string
	descProperty string
	httpClient   *http.Client
	minio        MinIOConfig
}

func newSettings(opts []Option) settings {
	s := settings{
		idProperty:   DefaultIDProperty,
		descProperty: DefaultDescriptionProperty,
		httpClient:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option configures parsing and source construction.
type Option func(*settings)

// WithIDProperty sets the feature property read as the point id.
func WithIDProperty(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.idProperty = name
		}
	}
}

// WithDescriptionProperty sets the feature property read as the description.
func WithDescriptionProperty(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.descProperty = name
		}
	}
}

// WithHTTPClient sets the client used by http(s):// sources.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithMinIO sets the object-store settings used by minio:// sources.
func WithMinIO(cfg MinIOConfig) Option {
	return func(s *settings) {
		s.minio = cfg
	}
}
