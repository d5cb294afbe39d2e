package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/anarcoiris/FaceGUI/internal/attributes"
	"github.com/anarcoiris/FaceGUI/internal/clients"
	"github.com/anarcoiris/FaceGUI/internal/faceapi"
	"github.com/anarcoiris/FaceGUI/internal/logging"
)

func TestDetectRequiresExactlyOneSource(t *testing.T) {
	uc := NewFaceUseCase(stubFactory(&stubOperational{}, &stubAdministrative{}), zap.NewNop())

	sources := map[string]ImageSource{
		"neither": {},
		"both":    {Bytes: []byte{1}, URL: "https://img.example.com/a.jpg"},
	}
	for name, src := range sources {
		_, err := uc.Detect(context.Background(), validConfig(), src, DetectOptions{})
		if !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("%s: expected invalid argument, got %v", name, err)
		}
		var argErr *InvalidArgumentError
		if !errors.As(err, &argErr) || argErr.Argument != "image" {
			t.Fatalf("%s: expected image argument error, got %v", name, err)
		}
	}
}

func TestDetectAlwaysRequestsFaceIDAndTranslatesAttributes(t *testing.T) {
	op := &stubOperational{}
	uc := NewFaceUseCase(stubFactory(op, &stubAdministrative{}), zap.NewNop())

	_, err := uc.Detect(context.Background(), validConfig(), ImageSource{URL: " https://img.example.com/a.jpg "}, DetectOptions{
		Attributes: []string{"age", "bogus", "gender", "age"},
		Landmarks:  true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(op.detects) != 1 {
		t.Fatalf("expected one detect call, got %d", len(op.detects))
	}
	got := op.detects[0]
	if got.url != "https://img.example.com/a.jpg" {
		t.Fatalf("expected trimmed url, got %q", got.url)
	}
	if !got.opts.ReturnFaceID || !got.opts.ReturnLandmarks {
		t.Fatalf("expected face id and landmarks requested, got %+v", got.opts)
	}
	want := []attributes.ID{attributes.Age, attributes.Gender}
	if len(got.opts.Attributes) != len(want) {
		t.Fatalf("expected %v, got %v", want, got.opts.Attributes)
	}
	for i := range want {
		if got.opts.Attributes[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got.opts.Attributes)
		}
	}
}

func TestDetectNormalizesSections(t *testing.T) {
	op := &stubOperational{faces: []faceapi.Face{
		{
			FaceID:         "f-1",
			FaceRectangle:  faceapi.FaceRectangle{Top: 1, Left: 2, Width: 3, Height: 4},
			FaceLandmarks:  json.RawMessage("null"),
			FaceAttributes: json.RawMessage(`{"age":31}`),
		},
		{FaceRectangle: faceapi.FaceRectangle{Top: 5}},
	}}
	uc := NewFaceUseCase(stubFactory(op, &stubAdministrative{}), zap.NewNop())

	faces, err := uc.Detect(context.Background(), validConfig(), ImageSource{Bytes: []byte("jpeg")}, DetectOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(faces) != 2 {
		t.Fatalf("expected two faces, got %d", len(faces))
	}
	first := faces[0]
	if first.FaceID == nil || *first.FaceID != "f-1" {
		t.Fatalf("expected face id f-1, got %v", first.FaceID)
	}
	if first.FaceRectangle != (Rectangle{Left: 2, Top: 1, Width: 3, Height: 4}) {
		t.Fatalf("unexpected rectangle %+v", first.FaceRectangle)
	}
	if first.FaceLandmarks != nil {
		t.Fatalf("expected absent landmarks, got %v", first.FaceLandmarks)
	}
	if first.FaceAttributes["age"] != float64(31) {
		t.Fatalf("expected age 31, got %v", first.FaceAttributes)
	}
	if faces[1].FaceID != nil || faces[1].FaceAttributes != nil {
		t.Fatalf("expected bare second face, got %+v", faces[1])
	}
}

func TestDetectWrapsConfigurationError(t *testing.T) {
	uc := NewFaceUseCase(stubFactory(&stubOperational{}, &stubAdministrative{}), zap.NewNop())

	_, err := uc.Detect(context.Background(), clients.Configuration{AuthMode: clients.AuthModeAPIKey, Key: "k"}, ImageSource{Bytes: []byte{1}}, DetectOptions{})
	var cfgErr *clients.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) || opErr.Operation != "usecase.detect" || opErr.RequestID == "" {
		t.Fatalf("expected operation error, got %#v", err)
	}
}

func TestDetectAgainstServiceFixture(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"faceId":"a","faceRectangle":{"top":10,"left":20,"width":30,"height":40}},
			{"faceId":"b","faceRectangle":{"top":50,"left":60,"width":70,"height":80}}
		]`))
	}))
	defer srv.Close()

	uc := NewFaceUseCase(clients.NewFactory(clients.WithHTTPClient(srv.Client())), zap.NewNop())
	cfg := clients.Configuration{Endpoint: srv.URL, AuthMode: clients.AuthModeAPIKey, Key: "secret"}

	faces, err := uc.Detect(context.Background(), cfg, ImageSource{Bytes: []byte("jpeg")}, DetectOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(faces) != 2 {
		t.Fatalf("expected two faces, got %d", len(faces))
	}
	for _, f := range faces {
		if f.FaceLandmarks != nil {
			t.Fatalf("expected no landmarks, got %v", f.FaceLandmarks)
		}
	}
	if faces[1].FaceRectangle.Left != 60 {
		t.Fatalf("unexpected rectangle %+v", faces[1].FaceRectangle)
	}
}

func TestVerifyWrapsServiceError(t *testing.T) {
	op := &stubOperational{verifyErr: &faceapi.ServiceRequestError{StatusCode: 400, Code: "BadArgument", Message: "face id expired"}}
	uc := NewFaceUseCase(stubFactory(op, &stubAdministrative{}), zap.NewNop())

	_, err := uc.Verify(context.Background(), validConfig(), "a", "b")
	var reqErr *faceapi.ServiceRequestError
	if !errors.As(err, &reqErr) || reqErr.StatusCode != 400 {
		t.Fatalf("expected service request error, got %v", err)
	}
	if logging.OperationOf(err) != "usecase.verify" {
		t.Fatalf("expected usecase.verify, got %q", logging.OperationOf(err))
	}
}

func TestVerifyAgainstGroupMember(t *testing.T) {
	op := &stubOperational{verify: &faceapi.VerifyResult{IsIdentical: true, Confidence: 0.87}}
	uc := NewFaceUseCase(stubFactory(op, &stubAdministrative{}), zap.NewNop())

	res, err := uc.VerifyAgainstGroupMember(context.Background(), validConfig(), "f", "g", "p")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsIdentical || res.Confidence != 0.87 {
		t.Fatalf("unexpected result %+v", res)
	}

	if _, err := uc.VerifyAgainstGroupMember(context.Background(), validConfig(), "f", "", "p"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestIdentifyRanksCandidates(t *testing.T) {
	op := &stubOperational{identify: []faceapi.IdentifyResult{{
		FaceID: "f1",
		Candidates: []faceapi.Candidate{
			{PersonID: "low", Confidence: 0.3},
			{PersonID: "high", Confidence: 0.9},
			{PersonID: "mid", Confidence: 0.6},
		},
	}}}
	uc := NewFaceUseCase(stubFactory(op, &stubAdministrative{}), zap.NewNop())

	got, err := uc.Identify(context.Background(), validConfig(), []string{"f1", "f2"}, "g", 2, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ranked := got["f1"]
	if len(ranked) != 2 || ranked[0].PersonID != "high" || ranked[1].PersonID != "mid" {
		t.Fatalf("unexpected ranking %+v", ranked)
	}
	if others, ok := got["f2"]; !ok || len(others) != 0 {
		t.Fatalf("expected empty entry for f2, got %v", others)
	}
	if op.identifyOpt.MaxCandidates != 2 || op.identifyOpt.ConfidenceThreshold == nil || *op.identifyOpt.ConfidenceThreshold != 0.5 {
		t.Fatalf("unexpected identify options %+v", op.identifyOpt)
	}
}

func TestIdentifyValidatesArguments(t *testing.T) {
	uc := NewFaceUseCase(stubFactory(&stubOperational{}, &stubAdministrative{}), zap.NewNop())
	cases := []struct {
		name      string
		faceIDs   []string
		groupID   string
		max       int
		threshold float64
	}{
		{"no faces", nil, "g", 1, 0.5},
		{"no group", []string{"f"}, "", 1, 0.5},
		{"zero max", []string{"f"}, "g", 0, 0.5},
		{"negative threshold", []string{"f"}, "g", 1, -0.1},
		{"threshold above one", []string{"f"}, "g", 1, 1.1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := uc.Identify(context.Background(), validConfig(), tc.faceIDs, tc.groupID, tc.max, tc.threshold)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("expected invalid argument, got %v", err)
			}
		})
	}
}

func TestCreateGroupDefaultsNameToID(t *testing.T) {
	admin := &stubAdministrative{}
	uc := NewFaceUseCase(stubFactory(&stubOperational{}, admin), zap.NewNop(), WithIDGenerator(func() string { return "group-1" }))

	id, err := uc.CreateGroup(context.Background(), validConfig(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "group-1" {
		t.Fatalf("expected generated id, got %q", id)
	}
	created := admin.createdGroups[0]
	if created.Name != "group-1" || created.RecognitionModel != faceapi.DefaultRecognitionModel {
		t.Fatalf("unexpected group %+v", created)
	}
}

func TestCreatePersonAndAddFace(t *testing.T) {
	admin := &stubAdministrative{
		person:    &faceapi.Person{PersonID: "p-1"},
		persisted: &faceapi.PersistedFace{PersistedFaceID: "pf-1"},
	}
	uc := NewFaceUseCase(stubFactory(&stubOperational{}, admin), zap.NewNop())

	personID, err := uc.CreatePerson(context.Background(), validConfig(), "g", "Ada")
	if err != nil || personID != "p-1" {
		t.Fatalf("unexpected person %q, %v", personID, err)
	}
	faceID, err := uc.AddFace(context.Background(), validConfig(), "g", personID, ImageSource{URL: "https://img.example.com/ada.jpg"})
	if err != nil || faceID != "pf-1" {
		t.Fatalf("unexpected face %q, %v", faceID, err)
	}
	if len(admin.addedURLs) != 1 {
		t.Fatalf("expected add by url, got %v", admin.addedURLs)
	}
	if _, err := uc.CreatePerson(context.Background(), validConfig(), "g", " "); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for blank name, got %v", err)
	}
}

func TestTrainUsesPollInterval(t *testing.T) {
	train := &stubTrain{}
	admin := &stubAdministrative{train: train}
	uc := NewFaceUseCase(stubFactory(&stubOperational{}, admin), zap.NewNop(), WithTrainPollInterval(20*time.Millisecond))

	if err := uc.Train(context.Background(), validConfig(), "g"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if train.waitArg != 20*time.Millisecond {
		t.Fatalf("expected poll interval passed through, got %v", train.waitArg)
	}
}

func TestTrainReportsFailure(t *testing.T) {
	admin := &stubAdministrative{train: &stubTrain{result: &faceapi.TrainingFailedError{GroupID: "g", Message: "no faces"}}}
	uc := NewFaceUseCase(stubFactory(&stubOperational{}, admin), zap.NewNop())

	err := uc.Train(context.Background(), validConfig(), "g")
	var failed *faceapi.TrainingFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected training failure, got %v", err)
	}
}

func TestTrainStopsOnCancel(t *testing.T) {
	admin := &stubAdministrative{train: &stubTrain{block: true}}
	uc := NewFaceUseCase(stubFactory(&stubOperational{}, admin), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := uc.Train(ctx, validConfig(), "g"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestListAndDeleteGroups(t *testing.T) {
	admin := &stubAdministrative{groups: []faceapi.LargePersonGroup{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}}
	uc := NewFaceUseCase(stubFactory(&stubOperational{}, admin), zap.NewNop())

	ids, err := uc.ListGroups(context.Background(), validConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("unexpected ids %v", ids)
	}

	records, err := uc.ListGroupRecords(context.Background(), validConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records[1]["largePersonGroupId"] != "b" || records[1]["name"] != "B" {
		t.Fatalf("unexpected records %v", records)
	}

	if err := uc.DeleteGroup(context.Background(), validConfig(), "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(admin.deleted) != 1 || admin.deleted[0] != "a" {
		t.Fatalf("unexpected deletes %v", admin.deleted)
	}
}

func TestRankCandidatesKeepsOrderForTies(t *testing.T) {
	got := rankCandidates([]Candidate{{"a", 0.7}, {"b", 0.7}, {"c", 0.8}}, 5, 0)
	if got[0].PersonID != "c" || got[1].PersonID != "a" || got[2].PersonID != "b" {
		t.Fatalf("unexpected order %+v", got)
	}
}
