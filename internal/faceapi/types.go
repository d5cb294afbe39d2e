package faceapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/anarcoiris/FaceGUI/internal/attributes"
)

// Models recommended for new deployments.
const (
	DefaultDetectionModel   = "detection_03"
	DefaultRecognitionModel = "recognition_04"
)

// Training states reported by the service.
const (
	TrainingNotStarted = "notStarted"
	TrainingRunning    = "running"
	TrainingSucceeded  = "succeeded"
	TrainingFailed     = "failed"
)

// DetectOptions shapes a detect call. Zero model values select the defaults.
type DetectOptions struct {
	DetectionModel   string
	RecognitionModel string
	ReturnFaceID     bool
	ReturnLandmarks  bool
	Attributes       []attributes.ID
	// FaceIDTimeToLive is in seconds; zero keeps the service default.
	FaceIDTimeToLive int
}

// IdentifyOptions shapes an identify call.
type IdentifyOptions struct {
	MaxCandidates       int
	ConfidenceThreshold *float64
}

// FaceRectangle locates a face in pixels.
type FaceRectangle struct {
	Top    int `json:"top"`
	Left   int `json:"left"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Face is a detect result as sent by the service. Landmarks and attributes
// vary by model and tier, so they are kept undecoded.
type Face struct {
	FaceID           string          `json:"faceId,omitempty"`
	RecognitionModel string          `json:"recognitionModel,omitempty"`
	FaceRectangle    FaceRectangle   `json:"faceRectangle"`
	FaceLandmarks    json.RawMessage `json:"faceLandmarks,omitempty"`
	FaceAttributes   json.RawMessage `json:"faceAttributes,omitempty"`
}

// VerifyResult is the verify response.
type VerifyResult struct {
	IsIdentical bool    `json:"isIdentical"`
	Confidence  float64 `json:"confidence"`
}

// Candidate is a possible identity for a face.
type Candidate struct {
	PersonID   string  `json:"personId"`
	Confidence float64 `json:"confidence"`
}

// IdentifyResult lists candidates for one input face.
type IdentifyResult struct {
	FaceID     string      `json:"faceId"`
	Candidates []Candidate `json:"candidates"`
}

// LargePersonGroup describes a group.
type LargePersonGroup struct {
	ID               string `json:"largePersonGroupId"`
	Name             string `json:"name"`
	UserData         string `json:"userData,omitempty"`
	RecognitionModel string `json:"recognitionModel,omitempty"`
}

// Person is the create person response.
type Person struct {
	PersonID string `json:"personId"`
}

// PersistedFace is the add face response.
type PersistedFace struct {
	PersistedFaceID string `json:"persistedFaceId"`
}

// TrainingStatus reports a group's training job.
type TrainingStatus struct {
	Status             string     `json:"status"`
	CreatedDateTime    *time.Time `json:"createdDateTime,omitempty"`
	LastActionDateTime *time.Time `json:"lastActionDateTime,omitempty"`
	Message            string     `json:"message,omitempty"`
}

// Terminal reports whether no further status change is expected.
func (s *TrainingStatus) Terminal() bool {
	return s != nil && (s.Status == TrainingSucceeded || s.Status == TrainingFailed)
}

// Operational exposes the detection and recognition calls.
type Operational interface {
	DetectFromBytes(ctx context.Context, image []byte, opts DetectOptions) ([]Face, error)
	DetectFromURL(ctx context.Context, imageURL string, opts DetectOptions) ([]Face, error)
	VerifyFaceToFace(ctx context.Context, faceID1, faceID2 string) (*VerifyResult, error)
	VerifyFaceToPerson(ctx context.Context, faceID, groupID, personID string) (*VerifyResult, error)
	Identify(ctx context.Context, faceIDs []string, groupID string, opts IdentifyOptions) ([]IdentifyResult, error)
}

// Administrative exposes large person group management.
type Administrative interface {
	CreateGroup(ctx context.Context, groupID, name, recognitionModel string) error
	CreatePerson(ctx context.Context, groupID, name string) (*Person, error)
	AddFaceFromBytes(ctx context.Context, groupID, personID string, image []byte, detectionModel string) (*PersistedFace, error)
	AddFaceFromURL(ctx context.Context, groupID, personID, imageURL, detectionModel string) (*PersistedFace, error)
	BeginTrain(ctx context.Context, groupID string) (TrainOperation, error)
	ListGroups(ctx context.Context) ([]LargePersonGroup, error)
	DeleteGroup(ctx context.Context, groupID string) error
}

// TrainOperation is a started training job that can be polled.
type TrainOperation interface {
	Status(ctx context.Context) (*TrainingStatus, error)
	// Wait polls every interval until the job reaches a terminal state or ctx
	// ends. Cancelling ctx stops the polling only; the job keeps running
	// server side.
	Wait(ctx context.Context, interval time.Duration) error
}
