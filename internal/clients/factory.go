// Package clients turns a face configuration into service client handles.
// Nothing is cached: every Build call produces fresh clients, so a changed
// endpoint or key takes effect on the next call.
package clients

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/anarcoiris/FaceGUI/internal/faceapi"
)

type options struct {
	httpClient *http.Client
	logger     *zap.Logger
	credential faceapi.CredentialSource
	apiVersion string
}

// Option customises Build.
type Option func(*options)

// WithHTTPClient sets the HTTP client shared by both handles.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithLogger sets the transport logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCredentialSource overrides how the ambient identity is resolved in
// ManagedIdentity mode.
func WithCredentialSource(source faceapi.CredentialSource) Option {
	return func(o *options) { o.credential = source }
}

// WithAPIVersion overrides the REST API version.
func WithAPIVersion(version string) Option {
	return func(o *options) { o.apiVersion = version }
}

// Build validates cfg and returns the operational and administrative clients.
func Build(cfg Configuration, opts ...Option) (faceapi.Operational, faceapi.Administrative, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	var auth faceapi.Authorizer
	switch cfg.Mode() {
	case AuthModeManagedIdentity:
		auth = faceapi.NewTokenAuthorizer(o.credential)
	default:
		auth = faceapi.KeyAuthorizer(cfg.Key)
	}

	clientOpts := []faceapi.Option{
		faceapi.WithHTTPClient(o.httpClient),
		faceapi.WithLogger(o.logger),
		faceapi.WithAPIVersion(o.apiVersion),
	}
	operational := faceapi.NewClient(cfg.Endpoint, auth, clientOpts...)
	administrative := faceapi.NewClient(cfg.Endpoint, auth, clientOpts...)
	return operational, administrative, nil
}

// Factory builds client handles for a configuration.
type Factory func(cfg Configuration) (faceapi.Operational, faceapi.Administrative, error)

// NewFactory binds opts into a Factory.
func NewFactory(opts ...Option) Factory {
	return func(cfg Configuration) (faceapi.Operational, faceapi.Administrative, error) {
		return Build(cfg, opts...)
	}
}
