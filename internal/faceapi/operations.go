package faceapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/anarcoiris/FaceGUI/internal/attributes"
)

var (
	_ Operational    = (*Client)(nil)
	_ Administrative = (*Client)(nil)
)

type urlBody struct {
	URL string `json:"url"`
}

func detectQuery(opts DetectOptions) url.Values {
	q := url.Values{}
	q.Set("detectionModel", orDefault(opts.DetectionModel, DefaultDetectionModel))
	q.Set("recognitionModel", orDefault(opts.RecognitionModel, DefaultRecognitionModel))
	q.Set("returnFaceId", strconv.FormatBool(opts.ReturnFaceID))
	q.Set("returnFaceLandmarks", strconv.FormatBool(opts.ReturnLandmarks))
	if len(opts.Attributes) > 0 {
		q.Set("returnFaceAttributes", strings.Join(attributes.Strings(opts.Attributes), ","))
	}
	if opts.FaceIDTimeToLive > 0 {
		q.Set("faceIdTimeToLive", strconv.Itoa(opts.FaceIDTimeToLive))
	}
	return q
}

// DetectFromBytes detects faces in an uploaded image.
func (c *Client) DetectFromBytes(ctx context.Context, image []byte, opts DetectOptions) ([]Face, error) {
	var faces []Face
	if err := c.doBinary(ctx, http.MethodPost, "/detect", detectQuery(opts), image, &faces); err != nil {
		return nil, err
	}
	return faces, nil
}

// DetectFromURL detects faces in an image the service downloads itself.
func (c *Client) DetectFromURL(ctx context.Context, imageURL string, opts DetectOptions) ([]Face, error) {
	var faces []Face
	if err := c.doJSON(ctx, http.MethodPost, "/detect", detectQuery(opts), urlBody{URL: imageURL}, &faces); err != nil {
		return nil, err
	}
	return faces, nil
}

// VerifyFaceToFace compares two detected faces.
func (c *Client) VerifyFaceToFace(ctx context.Context, faceID1, faceID2 string) (*VerifyResult, error) {
	payload := map[string]string{"faceId1": faceID1, "faceId2": faceID2}
	var result VerifyResult
	if err := c.doJSON(ctx, http.MethodPost, "/verify", nil, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// VerifyFaceToPerson compares a detected face with a person of a group.
func (c *Client) VerifyFaceToPerson(ctx context.Context, faceID, groupID, personID string) (*VerifyResult, error) {
	payload := map[string]string{
		"faceId":             faceID,
		"personId":           personID,
		"largePersonGroupId": groupID,
	}
	var result VerifyResult
	if err := c.doJSON(ctx, http.MethodPost, "/verify", nil, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Identify ranks the persons of a trained group against detected faces.
func (c *Client) Identify(ctx context.Context, faceIDs []string, groupID string, opts IdentifyOptions) ([]IdentifyResult, error) {
	payload := struct {
		FaceIDs             []string `json:"faceIds"`
		LargePersonGroupID  string   `json:"largePersonGroupId"`
		MaxCandidates       int      `json:"maxNumOfCandidatesReturned,omitempty"`
		ConfidenceThreshold *float64 `json:"confidenceThreshold,omitempty"`
	}{
		FaceIDs:             faceIDs,
		LargePersonGroupID:  groupID,
		MaxCandidates:       opts.MaxCandidates,
		ConfidenceThreshold: opts.ConfidenceThreshold,
	}
	var results []IdentifyResult
	if err := c.doJSON(ctx, http.MethodPost, "/identify", nil, payload, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// CreateGroup creates a large person group under a caller chosen id.
func (c *Client) CreateGroup(ctx context.Context, groupID, name, recognitionModel string) error {
	payload := map[string]string{
		"name":             name,
		"recognitionModel": orDefault(recognitionModel, DefaultRecognitionModel),
	}
	return c.doJSON(ctx, http.MethodPut, groupPath(groupID), nil, payload, nil)
}

// CreatePerson adds a person to a group.
func (c *Client) CreatePerson(ctx context.Context, groupID, name string) (*Person, error) {
	var person Person
	if err := c.doJSON(ctx, http.MethodPost, groupPath(groupID, "persons"), nil, map[string]string{"name": name}, &person); err != nil {
		return nil, err
	}
	return &person, nil
}

func addFaceQuery(detectionModel string) url.Values {
	q := url.Values{}
	q.Set("detectionModel", orDefault(detectionModel, DefaultDetectionModel))
	return q
}

// AddFaceFromBytes enrols an uploaded face image under a person.
func (c *Client) AddFaceFromBytes(ctx context.Context, groupID, personID string, image []byte, detectionModel string) (*PersistedFace, error) {
	var face PersistedFace
	path := groupPath(groupID, "persons", url.PathEscape(personID), "persistedfaces")
	if err := c.doBinary(ctx, http.MethodPost, path, addFaceQuery(detectionModel), image, &face); err != nil {
		return nil, err
	}
	return &face, nil
}

// AddFaceFromURL enrols a face image fetched by the service.
func (c *Client) AddFaceFromURL(ctx context.Context, groupID, personID, imageURL, detectionModel string) (*PersistedFace, error) {
	var face PersistedFace
	path := groupPath(groupID, "persons", url.PathEscape(personID), "persistedfaces")
	if err := c.doJSON(ctx, http.MethodPost, path, addFaceQuery(detectionModel), urlBody{URL: imageURL}, &face); err != nil {
		return nil, err
	}
	return &face, nil
}

// BeginTrain queues training of a group and returns a handle to poll it.
func (c *Client) BeginTrain(ctx context.Context, groupID string) (TrainOperation, error) {
	if err := c.doJSON(ctx, http.MethodPost, groupPath(groupID, "train"), nil, nil, nil); err != nil {
		return nil, err
	}
	return &TrainPoller{client: c, groupID: groupID}, nil
}

// ListGroups returns every large person group visible to the credential.
func (c *Client) ListGroups(ctx context.Context) ([]LargePersonGroup, error) {
	q := url.Values{}
	q.Set("top", "1000")
	var groups []LargePersonGroup
	if err := c.doJSON(ctx, http.MethodGet, "/largepersongroups", q, nil, &groups); err != nil {
		return nil, err
	}
	if groups == nil {
		groups = []LargePersonGroup{}
	}
	return groups, nil
}

// DeleteGroup removes a group with all its persons and faces.
func (c *Client) DeleteGroup(ctx context.Context, groupID string) error {
	return c.doJSON(ctx, http.MethodDelete, groupPath(groupID), nil, nil, nil)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
