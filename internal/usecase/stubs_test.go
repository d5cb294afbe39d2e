package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/anarcoiris/FaceGUI/internal/clients"
	"github.com/anarcoiris/FaceGUI/internal/faceapi"
)

type stubOperational struct {
	mu sync.Mutex

	faces      []faceapi.Face
	detectErrs []error
	detects    []stubDetect

	verify    *faceapi.VerifyResult
	verifyErr error

	identify    []faceapi.IdentifyResult
	identifyErr error
	identifyOpt faceapi.IdentifyOptions
}

type stubDetect struct {
	url   string
	bytes []byte
	opts  faceapi.DetectOptions
}

func (s *stubOperational) detect(d stubDetect) ([]faceapi.Face, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detects = append(s.detects, d)
	if len(s.detectErrs) > 0 {
		err := s.detectErrs[0]
		s.detectErrs = s.detectErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return s.faces, nil
}

func (s *stubOperational) DetectFromBytes(ctx context.Context, image []byte, opts faceapi.DetectOptions) ([]faceapi.Face, error) {
	return s.detect(stubDetect{bytes: image, opts: opts})
}

func (s *stubOperational) DetectFromURL(ctx context.Context, imageURL string, opts faceapi.DetectOptions) ([]faceapi.Face, error) {
	return s.detect(stubDetect{url: imageURL, opts: opts})
}

func (s *stubOperational) VerifyFaceToFace(ctx context.Context, faceID1, faceID2 string) (*faceapi.VerifyResult, error) {
	return s.verify, s.verifyErr
}

func (s *stubOperational) VerifyFaceToPerson(ctx context.Context, faceID, groupID, personID string) (*faceapi.VerifyResult, error) {
	return s.verify, s.verifyErr
}

func (s *stubOperational) Identify(ctx context.Context, faceIDs []string, groupID string, opts faceapi.IdentifyOptions) ([]faceapi.IdentifyResult, error) {
	s.identifyOpt = opts
	return s.identify, s.identifyErr
}

type stubAdministrative struct {
	mu sync.Mutex

	createdGroups []faceapi.LargePersonGroup
	createErr     error
	person        *faceapi.Person
	persisted     *faceapi.PersistedFace
	addedURLs     []string
	groups        []faceapi.LargePersonGroup
	listErr       error
	deleted       []string
	train         *stubTrain
	trainErr      error
}

func (s *stubAdministrative) CreateGroup(ctx context.Context, groupID, name, recognitionModel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createdGroups = append(s.createdGroups, faceapi.LargePersonGroup{ID: groupID, Name: name, RecognitionModel: recognitionModel})
	return s.createErr
}

func (s *stubAdministrative) CreatePerson(ctx context.Context, groupID, name string) (*faceapi.Person, error) {
	return s.person, nil
}

func (s *stubAdministrative) AddFaceFromBytes(ctx context.Context, groupID, personID string, image []byte, detectionModel string) (*faceapi.PersistedFace, error) {
	return s.persisted, nil
}

func (s *stubAdministrative) AddFaceFromURL(ctx context.Context, groupID, personID, imageURL, detectionModel string) (*faceapi.PersistedFace, error) {
	s.addedURLs = append(s.addedURLs, imageURL)
	return s.persisted, nil
}

func (s *stubAdministrative) BeginTrain(ctx context.Context, groupID string) (faceapi.TrainOperation, error) {
	if s.trainErr != nil {
		return nil, s.trainErr
	}
	return s.train, nil
}

func (s *stubAdministrative) ListGroups(ctx context.Context) ([]faceapi.LargePersonGroup, error) {
	return s.groups, s.listErr
}

func (s *stubAdministrative) DeleteGroup(ctx context.Context, groupID string) error {
	s.deleted = append(s.deleted, groupID)
	return nil
}

// stubTrain returns result from Wait unless block is set, in which case it
// waits for ctx.
type stubTrain struct {
	result  error
	block   bool
	waitArg time.Duration
}

func (s *stubTrain) Status(ctx context.Context) (*faceapi.TrainingStatus, error) {
	return &faceapi.TrainingStatus{Status: faceapi.TrainingRunning}, nil
}

func (s *stubTrain) Wait(ctx context.Context, interval time.Duration) error {
	s.waitArg = interval
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.result
}

func stubFactory(op *stubOperational, admin *stubAdministrative) clients.Factory {
	return func(cfg clients.Configuration) (faceapi.Operational, faceapi.Administrative, error) {
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
		return op, admin, nil
	}
}

func validConfig() clients.Configuration {
	return clients.Configuration{Endpoint: "https://face.example.com", AuthMode: clients.AuthModeAPIKey, Key: "secret"}
}
