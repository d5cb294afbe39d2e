package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anarcoiris/FaceGUI/internal/attributes"
	"github.com/anarcoiris/FaceGUI/internal/clients"
	"github.com/anarcoiris/FaceGUI/internal/faceapi"
	"github.com/anarcoiris/FaceGUI/internal/logging"
	"github.com/anarcoiris/FaceGUI/internal/normalize"
)

// DefaultTrainPollInterval is how often Train checks training status.
const DefaultTrainPollInterval = 5 * time.Second

// ImageSource carries an image either inline or by URL. Exactly one of the
// two must be set.
type ImageSource struct {
	Bytes []byte
	URL   string
}

func (s ImageSource) validate() error {
	hasBytes := len(s.Bytes) > 0
	hasURL := strings.TrimSpace(s.URL) != ""
	switch {
	case hasBytes && hasURL:
		return invalidArgument("image", "supply either image bytes or a URL, not both")
	case !hasBytes && !hasURL:
		return invalidArgument("image", "supply image bytes or a URL")
	}
	return nil
}

// DetectOptions selects what a detection returns.
type DetectOptions struct {
	Attributes       []string
	Landmarks        bool
	DetectionModel   string
	RecognitionModel string
}

// Rectangle locates a face in pixels.
type Rectangle struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DetectedFace is a normalized detection result.
type DetectedFace struct {
	FaceID         *string        `json:"faceId,omitempty"`
	FaceRectangle  Rectangle      `json:"faceRectangle"`
	FaceLandmarks  map[string]any `json:"faceLandmarks"`
	FaceAttributes map[string]any `json:"faceAttributes,omitempty"`
}

// VerificationResult is a same/different person decision.
type VerificationResult struct {
	IsIdentical bool    `json:"isIdentical"`
	Confidence  float64 `json:"confidence"`
}

// Candidate is a ranked identity for a face.
type Candidate struct {
	PersonID   string  `json:"personId"`
	Confidence float64 `json:"confidence"`
}

// FaceUseCase exposes detection, verification, identification and group
// administration with uniform signatures. Clients are built from the
// configuration on every call; no state is shared between calls.
type FaceUseCase struct {
	factory      clients.Factory
	logger       *zap.Logger
	pollInterval time.Duration
	newID        func() string
}

// FaceOption customises a FaceUseCase.
type FaceOption func(*FaceUseCase)

// WithTrainPollInterval sets the training poll interval.
func WithTrainPollInterval(interval time.Duration) FaceOption {
	return func(uc *FaceUseCase) {
		if interval > 0 {
			uc.pollInterval = interval
		}
	}
}

// WithIDGenerator replaces the group id generator.
func WithIDGenerator(gen func() string) FaceOption {
	return func(uc *FaceUseCase) {
		if gen != nil {
			uc.newID = gen
		}
	}
}

// NewFaceUseCase constructs the facade. A nil factory uses clients.Build.
func NewFaceUseCase(factory clients.Factory, logger *zap.Logger, opts ...FaceOption) *FaceUseCase {
	if factory == nil {
		factory = clients.NewFactory()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	uc := &FaceUseCase{
		factory:      factory,
		logger:       logger.Named("face_usecase"),
		pollInterval: DefaultTrainPollInterval,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

type call struct {
	operation string
	requestID string
	logger    *zap.Logger
}

func (uc *FaceUseCase) begin(operation string, cfg clients.Configuration) call {
	requestID := uuid.NewString()
	logger := logging.WithOperation(uc.logger, operation, requestID).With(zap.String("endpoint_host", endpointHost(cfg.Endpoint)))
	logger.Debug("face operation started")
	return call{operation: operation, requestID: requestID, logger: logger}
}

func (c call) fail(err error) error {
	wrapped := logging.NewOperationError(c.operation, c.requestID, err)
	switch {
	case errors.Is(err, ErrInvalidArgument):
		c.logger.Info("face operation rejected", zap.Error(err))
	case errors.Is(err, context.Canceled):
		c.logger.Info("face operation cancelled", zap.Error(err))
	default:
		c.logger.Error("face operation failed", zap.Error(wrapped))
	}
	return wrapped
}

// Detect locates faces in an image. A face id is always requested.
func (uc *FaceUseCase) Detect(ctx context.Context, cfg clients.Configuration, src ImageSource, opts DetectOptions) ([]DetectedFace, error) {
	c := uc.begin("usecase.detect", cfg)
	if err := src.validate(); err != nil {
		return nil, c.fail(err)
	}
	op, _, err := uc.factory(cfg)
	if err != nil {
		return nil, c.fail(err)
	}

	apiOpts := faceapi.DetectOptions{
		DetectionModel:   opts.DetectionModel,
		RecognitionModel: opts.RecognitionModel,
		ReturnFaceID:     true,
		ReturnLandmarks:  opts.Landmarks,
		Attributes:       attributes.Translate(opts.Attributes),
	}

	var faces []faceapi.Face
	if src.URL != "" {
		faces, err = op.DetectFromURL(ctx, strings.TrimSpace(src.URL), apiOpts)
	} else {
		faces, err = op.DetectFromBytes(ctx, src.Bytes, apiOpts)
	}
	if err != nil {
		return nil, c.fail(err)
	}

	out := make([]DetectedFace, 0, len(faces))
	for _, f := range faces {
		out = append(out, toDetectedFace(f))
	}
	c.logger.Info("faces detected", zap.Int("count", len(out)), zap.Int("attributes", len(apiOpts.Attributes)))
	return out, nil
}

func toDetectedFace(f faceapi.Face) DetectedFace {
	face := DetectedFace{
		FaceRectangle: Rectangle{
			Left:   f.FaceRectangle.Left,
			Top:    f.FaceRectangle.Top,
			Width:  f.FaceRectangle.Width,
			Height: f.FaceRectangle.Height,
		},
		FaceLandmarks:  section(f.FaceLandmarks),
		FaceAttributes: section(f.FaceAttributes),
	}
	if f.FaceID != "" {
		id := f.FaceID
		face.FaceID = &id
	}
	return face
}

func section(raw json.RawMessage) map[string]any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return normalize.Normalize(raw)
}

// Verify decides whether two detected faces belong to the same person.
func (uc *FaceUseCase) Verify(ctx context.Context, cfg clients.Configuration, faceID1, faceID2 string) (*VerificationResult, error) {
	c := uc.begin("usecase.verify", cfg)
	if faceID1 == "" || faceID2 == "" {
		return nil, c.fail(invalidArgument("faceId", "both face ids are required"))
	}
	op, _, err := uc.factory(cfg)
	if err != nil {
		return nil, c.fail(err)
	}
	res, err := op.VerifyFaceToFace(ctx, faceID1, faceID2)
	if err != nil {
		return nil, c.fail(err)
	}
	return &VerificationResult{IsIdentical: res.IsIdentical, Confidence: res.Confidence}, nil
}

// VerifyAgainstGroupMember decides whether a detected face belongs to a
// person enrolled in a group.
func (uc *FaceUseCase) VerifyAgainstGroupMember(ctx context.Context, cfg clients.Configuration, faceID, groupID, personID string) (*VerificationResult, error) {
	c := uc.begin("usecase.verify_group_member", cfg)
	if faceID == "" || groupID == "" || personID == "" {
		return nil, c.fail(invalidArgument("faceId/groupId/personId", "all three are required"))
	}
	op, _, err := uc.factory(cfg)
	if err != nil {
		return nil, c.fail(err)
	}
	res, err := op.VerifyFaceToPerson(ctx, faceID, groupID, personID)
	if err != nil {
		return nil, c.fail(err)
	}
	return &VerificationResult{IsIdentical: res.IsIdentical, Confidence: res.Confidence}, nil
}

// Identify ranks the persons of a trained group for each face. Every input
// face id has an entry; candidates are filtered by confidenceThreshold, then
// sorted by confidence descending, then cut to maxCandidates.
func (uc *FaceUseCase) Identify(ctx context.Context, cfg clients.Configuration, faceIDs []string, groupID string, maxCandidates int, confidenceThreshold float64) (map[string][]Candidate, error) {
	c := uc.begin("usecase.identify", cfg)
	switch {
	case len(faceIDs) == 0:
		return nil, c.fail(invalidArgument("faceIds", "at least one face id is required"))
	case groupID == "":
		return nil, c.fail(invalidArgument("groupId", "group id is required"))
	case maxCandidates < 1:
		return nil, c.fail(invalidArgument("maxCandidates", "must be at least 1"))
	case confidenceThreshold < 0 || confidenceThreshold > 1:
		return nil, c.fail(invalidArgument("confidenceThreshold", "must be within [0, 1]"))
	}

	op, _, err := uc.factory(cfg)
	if err != nil {
		return nil, c.fail(err)
	}
	threshold := confidenceThreshold
	results, err := op.Identify(ctx, faceIDs, groupID, faceapi.IdentifyOptions{
		MaxCandidates:       maxCandidates,
		ConfidenceThreshold: &threshold,
	})
	if err != nil {
		return nil, c.fail(err)
	}

	out := make(map[string][]Candidate, len(faceIDs))
	for _, id := range faceIDs {
		out[id] = []Candidate{}
	}
	for _, r := range results {
		candidates := make([]Candidate, 0, len(r.Candidates))
		for _, cand := range r.Candidates {
			candidates = append(candidates, Candidate{PersonID: cand.PersonID, Confidence: cand.Confidence})
		}
		out[r.FaceID] = rankCandidates(candidates, maxCandidates, confidenceThreshold)
	}
	return out, nil
}

func rankCandidates(candidates []Candidate, maxCandidates int, threshold float64) []Candidate {
	kept := make([]Candidate, 0, len(candidates))
	for _, cand := range candidates {
		if cand.Confidence >= threshold {
			kept = append(kept, cand)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Confidence > kept[j].Confidence
	})
	if len(kept) > maxCandidates {
		kept = kept[:maxCandidates]
	}
	return kept
}

// CreateGroup creates a large person group under a freshly generated id and
// returns that id. Uniqueness rests on the random generator; the service is
// not consulted first. An empty name defaults to the id.
func (uc *FaceUseCase) CreateGroup(ctx context.Context, cfg clients.Configuration, name string) (string, error) {
	c := uc.begin("usecase.create_group", cfg)
	_, admin, err := uc.factory(cfg)
	if err != nil {
		return "", c.fail(err)
	}
	groupID := uc.newID()
	if strings.TrimSpace(name) == "" {
		name = groupID
	}
	if err := admin.CreateGroup(ctx, groupID, name, faceapi.DefaultRecognitionModel); err != nil {
		return "", c.fail(err)
	}
	c.logger.Info("group created", zap.String("group_id", groupID))
	return groupID, nil
}

// CreatePerson adds a named person to a group.
func (uc *FaceUseCase) CreatePerson(ctx context.Context, cfg clients.Configuration, groupID, name string) (string, error) {
	c := uc.begin("usecase.create_person", cfg)
	if groupID == "" || strings.TrimSpace(name) == "" {
		return "", c.fail(invalidArgument("groupId/name", "group id and person name are required"))
	}
	_, admin, err := uc.factory(cfg)
	if err != nil {
		return "", c.fail(err)
	}
	person, err := admin.CreatePerson(ctx, groupID, name)
	if err != nil {
		return "", c.fail(err)
	}
	return person.PersonID, nil
}

// AddFace enrols a face image under a person and returns the persisted face id.
func (uc *FaceUseCase) AddFace(ctx context.Context, cfg clients.Configuration, groupID, personID string, src ImageSource) (string, error) {
	c := uc.begin("usecase.add_face", cfg)
	if groupID == "" || personID == "" {
		return "", c.fail(invalidArgument("groupId/personId", "group id and person id are required"))
	}
	if err := src.validate(); err != nil {
		return "", c.fail(err)
	}
	_, admin, err := uc.factory(cfg)
	if err != nil {
		return "", c.fail(err)
	}

	var face *faceapi.PersistedFace
	if src.URL != "" {
		face, err = admin.AddFaceFromURL(ctx, groupID, personID, strings.TrimSpace(src.URL), faceapi.DefaultDetectionModel)
	} else {
		face, err = admin.AddFaceFromBytes(ctx, groupID, personID, src.Bytes, faceapi.DefaultDetectionModel)
	}
	if err != nil {
		return "", c.fail(err)
	}
	return face.PersistedFaceID, nil
}

// Train starts training a group and blocks until the service reports success
// or failure, polling at a fixed interval. Cancelling ctx abandons the poll;
// the training job itself keeps running on the service.
func (uc *FaceUseCase) Train(ctx context.Context, cfg clients.Configuration, groupID string) error {
	c := uc.begin("usecase.train", cfg)
	if groupID == "" {
		return c.fail(invalidArgument("groupId", "group id is required"))
	}
	_, admin, err := uc.factory(cfg)
	if err != nil {
		return c.fail(err)
	}
	op, err := admin.BeginTrain(ctx, groupID)
	if err != nil {
		return c.fail(err)
	}
	c.logger.Info("training started", zap.String("group_id", groupID), zap.Duration("poll_interval", uc.pollInterval))
	if err := op.Wait(ctx, uc.pollInterval); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.logger.Warn("training poll abandoned, remote job continues", zap.String("group_id", groupID))
		}
		return c.fail(err)
	}
	c.logger.Info("training finished", zap.String("group_id", groupID))
	return nil
}

// ListGroups returns the ids of every large person group.
func (uc *FaceUseCase) ListGroups(ctx context.Context, cfg clients.Configuration) ([]string, error) {
	groups, err := uc.listGroups(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}
	return ids, nil
}

// ListGroupRecords returns every large person group as a plain map.
func (uc *FaceUseCase) ListGroupRecords(ctx context.Context, cfg clients.Configuration) ([]map[string]any, error) {
	groups, err := uc.listGroups(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return normalize.Slice(groups), nil
}

func (uc *FaceUseCase) listGroups(ctx context.Context, cfg clients.Configuration) ([]faceapi.LargePersonGroup, error) {
	c := uc.begin("usecase.list_groups", cfg)
	_, admin, err := uc.factory(cfg)
	if err != nil {
		return nil, c.fail(err)
	}
	groups, err := admin.ListGroups(ctx)
	if err != nil {
		return nil, c.fail(err)
	}
	return groups, nil
}

// DeleteGroup removes a group with all its persons and faces.
func (uc *FaceUseCase) DeleteGroup(ctx context.Context, cfg clients.Configuration, groupID string) error {
	c := uc.begin("usecase.delete_group", cfg)
	if groupID == "" {
		return c.fail(invalidArgument("groupId", "group id is required"))
	}
	_, admin, err := uc.factory(cfg)
	if err != nil {
		return c.fail(err)
	}
	if err := admin.DeleteGroup(ctx, groupID); err != nil {
		return c.fail(err)
	}
	c.logger.Info("group deleted", zap.String("group_id", groupID))
	return nil
}

func endpointHost(endpoint string) string {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Host
}
