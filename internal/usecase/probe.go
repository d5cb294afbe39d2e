package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/anarcoiris/FaceGUI/internal/clients"
	"github.com/anarcoiris/FaceGUI/internal/faceapi"
)

// CapabilityStatus is the outcome of a check that may be skipped.
type CapabilityStatus string

const (
	CapabilitySupported   CapabilityStatus = "supported"
	CapabilityUnsupported CapabilityStatus = "unsupported"
	CapabilityNotProbed   CapabilityStatus = "not_probed"
)

// CapabilityReport tells which Face features a resource accepts. Every
// failure seen while probing is recorded in Errors as text.
type CapabilityReport struct {
	DetectBasic      bool             `json:"detect_basic"`
	DetectAttributes CapabilityStatus `json:"detect_attributes"`
	LargePersonGroup bool             `json:"large_person_group"`
	Errors           []string         `json:"errors"`
}

// AttributesSupported collapses DetectAttributes to a bool.
func (r CapabilityReport) AttributesSupported() bool {
	return r.DetectAttributes == CapabilitySupported
}

// ProbeOptions supplies the material for a probe.
type ProbeOptions struct {
	// TestImage is a real image containing a face.
	TestImage []byte
	// TestImageURL points at a real image containing a face.
	TestImageURL string
	// FallbackURL is tried once when the first detection fails.
	FallbackURL string
	// Attributes asked for by the attribute check. Empty means age and gender.
	Attributes []string
}

var defaultProbeAttributes = []string{"age", "gender"}

// degenerateImage is sent when no test image is available. A rejection of
// the content still proves the endpoint and credentials answer.
var degenerateImage = []byte{0x00}

// FaceOperations is the subset of FaceUseCase the prober drives.
type FaceOperations interface {
	Detect(ctx context.Context, cfg clients.Configuration, src ImageSource, opts DetectOptions) ([]DetectedFace, error)
	ListGroups(ctx context.Context, cfg clients.Configuration) ([]string, error)
}

// ProbeRunner runs a capability probe.
type ProbeRunner interface {
	Probe(ctx context.Context, cfg clients.Configuration, opts ProbeOptions) CapabilityReport
}

// Prober checks which features a configured resource supports. It never
// fails: every problem ends up in the report.
type Prober struct {
	faces  FaceOperations
	logger *zap.Logger
}

// NewProber constructs a Prober on top of the face operations.
func NewProber(faces FaceOperations, logger *zap.Logger) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{faces: faces, logger: logger.Named("prober")}
}

// Probe runs the basic detection, attribute and group checks in order.
func (p *Prober) Probe(ctx context.Context, cfg clients.Configuration, opts ProbeOptions) CapabilityReport {
	report := CapabilityReport{
		DetectAttributes: CapabilityNotProbed,
		Errors:           []string{},
	}
	logger := p.logger.With(zap.String("endpoint_host", endpointHost(cfg.Endpoint)))

	realSource, err := p.detectBasic(ctx, cfg, opts)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("detect_basic error: %v", err))
		logger.Warn("basic detection unavailable", zap.Error(err))
	} else {
		report.DetectBasic = true
	}

	if report.DetectBasic && realSource != nil {
		attrs := opts.Attributes
		if len(attrs) == 0 {
			attrs = defaultProbeAttributes
		}
		err := p.guard(func() error {
			_, err := p.faces.Detect(ctx, cfg, *realSource, DetectOptions{Attributes: attrs})
			return err
		})
		if err != nil {
			report.DetectAttributes = CapabilityUnsupported
			if isFeatureRestricted(err) {
				report.Errors = append(report.Errors, fmt.Sprintf("detect_attributes error (feature unavailable for this resource): %v", err))
			} else {
				report.Errors = append(report.Errors, fmt.Sprintf("detect_attributes error: %v", err))
			}
			logger.Warn("attribute detection unavailable", zap.Error(err))
		} else {
			report.DetectAttributes = CapabilitySupported
		}
	}

	err = p.guard(func() error {
		_, err := p.faces.ListGroups(ctx, cfg)
		return err
	})
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("large_person_group error: %v", err))
		logger.Warn("large person groups unavailable", zap.Error(err))
	} else {
		report.LargePersonGroup = true
	}

	logger.Info("probe finished",
		zap.Bool("detect_basic", report.DetectBasic),
		zap.String("detect_attributes", string(report.DetectAttributes)),
		zap.Bool("large_person_group", report.LargePersonGroup),
		zap.Int("errors", len(report.Errors)),
	)
	return report
}

// detectBasic returns the real image source that worked, or nil when only
// the degenerate payload was available.
func (p *Prober) detectBasic(ctx context.Context, cfg clients.Configuration, opts ProbeOptions) (*ImageSource, error) {
	var primary ImageSource
	isReal := true
	switch {
	case len(opts.TestImage) > 0:
		primary = ImageSource{Bytes: opts.TestImage}
	case strings.TrimSpace(opts.TestImageURL) != "":
		primary = ImageSource{URL: opts.TestImageURL}
	default:
		primary = ImageSource{Bytes: degenerateImage}
		isReal = false
	}

	err := p.detectOnce(ctx, cfg, primary)
	if err == nil {
		if isReal {
			return &primary, nil
		}
		return nil, nil
	}

	fallback := strings.TrimSpace(opts.FallbackURL)
	if fallback == "" {
		fallback = strings.TrimSpace(opts.TestImageURL)
	}
	if fallback == "" {
		return nil, err
	}
	p.logger.Debug("retrying basic detection with fallback url", zap.Error(err))
	second := ImageSource{URL: fallback}
	if err := p.detectOnce(ctx, cfg, second); err != nil {
		return nil, err
	}
	return &second, nil
}

func (p *Prober) detectOnce(ctx context.Context, cfg clients.Configuration, src ImageSource) error {
	return p.guard(func() error {
		_, err := p.faces.Detect(ctx, cfg, src, DetectOptions{})
		return err
	})
}

// guard turns a panic inside a check into an error.
func (p *Prober) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected failure: %v", r)
		}
	}()
	return fn()
}

func isFeatureRestricted(err error) bool {
	var reqErr *faceapi.ServiceRequestError
	if !errors.As(err, &reqErr) {
		return false
	}
	if reqErr.StatusCode == 403 {
		return true
	}
	code := strings.ToLower(reqErr.Code)
	return strings.Contains(code, "unsupported") || strings.Contains(code, "notsupported")
}
