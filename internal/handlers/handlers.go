// Package handlers exposes the face operations as a JSON dashboard API.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anarcoiris/FaceGUI/internal/annotate"
	"github.com/anarcoiris/FaceGUI/internal/auth"
	"github.com/anarcoiris/FaceGUI/internal/blobstore"
	"github.com/anarcoiris/FaceGUI/internal/clients"
	"github.com/anarcoiris/FaceGUI/internal/repository"
	"github.com/anarcoiris/FaceGUI/internal/usecase"
)

const (
	defaultMaxCandidates       = 5
	defaultConfidenceThreshold = 0.5
	presignTTL                 = 15 * time.Minute
)

// SettingsStore persists dashboard state.
type SettingsStore interface {
	SaveConfig(ctx context.Context, cfg *repository.SavedConfig) error
	GetConfig(ctx context.Context, name string) (*repository.SavedConfig, error)
	ListConfigs(ctx context.Context) ([]repository.SavedConfig, error)
	SaveMapping(ctx context.Context, m *repository.FaceMapping) error
	ListMappings(ctx context.Context, personID string) ([]repository.FaceMapping, error)
	SaveProbe(ctx context.Context, rec *repository.ProbeRecord) error
	LatestProbe(ctx context.Context, endpoint string) (*repository.ProbeRecord, error)
}

// BlobStore keeps uploaded images.
type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	PresignGet(key string, ttl time.Duration) (string, error)
}

// Dependencies are the collaborators behind the routes. Blobs may be nil.
type Dependencies struct {
	Faces         *usecase.FaceUseCase
	Prober        *usecase.CachedProber
	Training      *usecase.TrainingTracker
	Settings      SettingsStore
	Blobs         BlobStore
	Default       clients.Configuration
	ProbeDefaults usecase.ProbeOptions
	Logger        *zap.Logger
}

type api struct {
	Dependencies
}

// RegisterRoutes wires the HTTP handlers to the Gin router. Everything under
// /api requires authMiddleware.
func RegisterRoutes(router *gin.Engine, deps Dependencies, authMiddleware gin.HandlerFunc) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Training == nil {
		deps.Training = usecase.NewTrainingTracker()
	}
	h := &api{Dependencies: deps}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	group := router.Group("/api")
	if authMiddleware != nil {
		group.Use(authMiddleware)
	}

	group.GET("/configs", h.listConfigs)
	group.POST("/configs", h.saveConfig)

	group.POST("/probe", h.probe)
	group.GET("/probe/latest", h.latestProbe)

	group.POST("/detect", h.detect)
	group.POST("/detect/annotated", h.detectAnnotated)
	group.POST("/verify", h.verify)
	group.POST("/identify", h.identify)

	group.GET("/groups", h.listGroups)
	group.POST("/groups", h.createGroup)
	group.DELETE("/groups/:id", h.deleteGroup)
	group.POST("/groups/:id/persons", h.createPerson)
	group.POST("/groups/:id/persons/:pid/faces", h.addFace)
	group.GET("/groups/:id/persons/:pid/faces", h.listFaces)
	group.POST("/groups/:id/train", h.train)

	group.GET("/training", h.listTraining)
	group.GET("/training/:job", h.trainingStatus)
	group.DELETE("/training/:job", h.cancelTraining)

	group.POST("/blobs", h.uploadBlob)
}

func (h *api) logger(c *gin.Context) *zap.Logger {
	operator, _ := auth.OperatorID(c.Request.Context())
	return h.Logger.With(zap.String("operator", operator), zap.String("route", c.FullPath()))
}

// configuration resolves ?config=<name> or falls back to the default.
func (h *api) configuration(c *gin.Context) (clients.Configuration, bool) {
	name := strings.TrimSpace(c.Query("config"))
	if name == "" || h.Settings == nil {
		return h.Default, true
	}
	saved, err := h.Settings.GetConfig(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown config " + name})
			return clients.Configuration{}, false
		}
		writeError(c, err)
		return clients.Configuration{}, false
	}
	return clients.Configuration{
		Endpoint: saved.Endpoint,
		AuthMode: clients.AuthMode(saved.AuthMode),
		Key:      saved.Key,
	}, true
}

type configRequest struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	AuthMode string `json:"auth_mode"`
	Key      string `json:"key"`
}

type configResponse struct {
	Name      string    `json:"name"`
	Endpoint  string    `json:"endpoint"`
	AuthMode  string    `json:"auth_mode"`
	Key       string    `json:"key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *api) saveConfig(c *gin.Context) {
	var req configRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		badRequest(c, "name is required")
		return
	}
	cfg, err := clients.ParseConfiguration(map[string]string{
		"endpoint": req.Endpoint,
		"authMode": req.AuthMode,
		"key":      req.Key,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	saved := &repository.SavedConfig{
		Name:     name,
		Endpoint: cfg.Endpoint,
		AuthMode: string(cfg.Mode()),
		Key:      cfg.Key,
	}
	if err := h.Settings.SaveConfig(c.Request.Context(), saved); err != nil {
		writeError(c, err)
		return
	}
	h.logger(c).Info("configuration saved", zap.String("name", name), zap.String("fingerprint", cfg.Fingerprint()))
	c.JSON(http.StatusCreated, redactedConfig(*saved))
}

func (h *api) listConfigs(c *gin.Context) {
	saved, err := h.Settings.ListConfigs(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]configResponse, 0, len(saved))
	for _, s := range saved {
		out = append(out, redactedConfig(s))
	}
	c.JSON(http.StatusOK, gin.H{"configs": out})
}

func redactedConfig(s repository.SavedConfig) configResponse {
	cfg := clients.Configuration{Endpoint: s.Endpoint, AuthMode: clients.AuthMode(s.AuthMode), Key: s.Key}.Redacted()
	return configResponse{
		Name:      s.Name,
		Endpoint:  cfg.Endpoint,
		AuthMode:  string(cfg.AuthMode),
		Key:       cfg.Key,
		CreatedAt: s.CreatedAt,
	}
}

type probeRequest struct {
	TestImageURL string   `json:"test_image_url"`
	FallbackURL  string   `json:"fallback_url"`
	Attributes   []string `json:"attributes"`
}

func (h *api) probe(c *gin.Context) {
	cfg, ok := h.configuration(c)
	if !ok {
		return
	}
	var req probeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid JSON body")
			return
		}
	}
	opts := h.ProbeDefaults
	if req.TestImageURL != "" {
		opts.TestImageURL = req.TestImageURL
	}
	if req.FallbackURL != "" {
		opts.FallbackURL = req.FallbackURL
	}
	if len(req.Attributes) > 0 {
		opts.Attributes = req.Attributes
	}
	refresh, _ := strconv.ParseBool(c.Query("refresh"))

	report, cached := h.Prober.Probe(c.Request.Context(), cfg, opts, refresh)
	if !cached && h.Settings != nil {
		rec := &repository.ProbeRecord{
			Endpoint:         cfg.Endpoint,
			DetectBasic:      report.DetectBasic,
			DetectAttributes: string(report.DetectAttributes),
			LargePersonGroup: report.LargePersonGroup,
		}
		rec.SetErrorList(report.Errors)
		if err := h.Settings.SaveProbe(c.Request.Context(), rec); err != nil {
			h.logger(c).Warn("failed to record probe", zap.Error(err))
		}
	}
	if cached {
		c.Header("X-Probe-Cache", "hit")
	} else {
		c.Header("X-Probe-Cache", "miss")
	}
	c.JSON(http.StatusOK, report)
}

func (h *api) latestProbe(c *gin.Context) {
	cfg, ok := h.configuration(c)
	if !ok {
		return
	}
	rec, err := h.Settings.LatestProbe(c.Request.Context(), cfg.Endpoint)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"endpoint": rec.Endpoint,
		"report": usecase.CapabilityReport{
			DetectBasic:      rec.DetectBasic,
			DetectAttributes: usecase.CapabilityStatus(rec.DetectAttributes),
			LargePersonGroup: rec.LargePersonGroup,
			Errors:           rec.ErrorList(),
		},
		"created_at": rec.CreatedAt,
	})
}

type imageURLRequest struct {
	URL        string   `json:"url"`
	Attributes []string `json:"attributes"`
	Landmarks  bool     `json:"landmarks"`
}

// detectRequest reads either a multipart image or a JSON url.
func (h *api) detectRequest(c *gin.Context) (usecase.ImageSource, usecase.DetectOptions, *upload, error) {
	if isMultipart(c) {
		up, err := readImage(c)
		if err != nil {
			return usecase.ImageSource{}, usecase.DetectOptions{}, nil, err
		}
		landmarks, _ := strconv.ParseBool(c.PostForm("landmarks"))
		return usecase.ImageSource{Bytes: up.data}, usecase.DetectOptions{
			Attributes: splitList(c.PostForm("attributes")),
			Landmarks:  landmarks,
		}, up, nil
	}
	var req imageURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return usecase.ImageSource{}, usecase.DetectOptions{}, nil, &uploadError{status: http.StatusBadRequest, message: "expected multipart image or JSON body"}
	}
	return usecase.ImageSource{URL: req.URL}, usecase.DetectOptions{Attributes: req.Attributes, Landmarks: req.Landmarks}, nil, nil
}

func (h *api) detect(c *gin.Context) {
	src, opts, _, err := h.detectRequest(c)
	if err != nil {
		writeUploadError(c, err)
		return
	}
	cfg, ok := h.configuration(c)
	if !ok {
		return
	}
	faces, err := h.Faces.Detect(c.Request.Context(), cfg, src, opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"faces": faces})
}

func (h *api) detectAnnotated(c *gin.Context) {
	up, err := readImage(c)
	if err != nil {
		writeUploadError(c, err)
		return
	}
	cfg, ok := h.configuration(c)
	if !ok {
		return
	}
	faces, err := h.Faces.Detect(c.Request.Context(), cfg, usecase.ImageSource{Bytes: up.data}, usecase.DetectOptions{})
	if err != nil {
		writeError(c, err)
		return
	}
	boxes := make([]annotate.Box, len(faces))
	for i, f := range faces {
		boxes[i] = annotate.Box{Left: f.FaceRectangle.Left, Top: f.FaceRectangle.Top, Width: f.FaceRectangle.Width, Height: f.FaceRectangle.Height}
	}
	maxWidth, _ := strconv.Atoi(c.Query("max_width"))
	png, err := annotate.Draw(up.data, boxes, maxWidth)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.Header("X-Face-Count", strconv.Itoa(len(faces)))
	c.Data(http.StatusOK, "image/png", png)
}

type verifyRequest struct {
	FaceID1  string `json:"face_id1"`
	FaceID2  string `json:"face_id2"`
	FaceID   string `json:"face_id"`
	GroupID  string `json:"group_id"`
	PersonID string `json:"person_id"`
}

func (h *api) verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	cfg, ok := h.configuration(c)
	if !ok {
		return
	}

	var (
		res *usecase.VerificationResult
		err error
	)
	switch {
	case req.FaceID1 != "" || req.FaceID2 != "":
		res, err = h.Faces.Verify(c.Request.Context(), cfg, req.FaceID1, req.FaceID2)
	case req.FaceID != "":
		res, err = h.Faces.VerifyAgainstGroupMember(c.Request.Context(), cfg, req.FaceID, req.GroupID, req.PersonID)
	default:
		badRequest(c, "face_id1 and face_id2, or face_id, group_id and person_id are required")
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type identifyRequest struct {
	FaceIDs             []string `json:"face_ids"`
	GroupID             string   `json:"group_id"`
	MaxCandidates       *int     `json:"max_candidates"`
	ConfidenceThreshold *float64 `json:"confidence_threshold"`
}

func (h *api) identify(c *gin.Context) {
	var req identifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	cfg, ok := h.configuration(c)
	if !ok {
		return
	}
	maxCandidates := defaultMaxCandidates
	if req.MaxCandidates != nil {
		maxCandidates = *req.MaxCandidates
	}
	threshold := defaultConfidenceThreshold
	if req.ConfidenceThreshold != nil {
		threshold = *req.ConfidenceThreshold
	}
	results, err := h.Faces.Identify(c.Request.Context(), cfg, req.FaceIDs, req.GroupID, maxCandidates, threshold)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *api) listGroups(c *gin.Context) {
	cfg, ok := h.configuration(c)
	if !ok {
		return
	}
	groups, err := h.Faces.ListGroupRecords(c.Request.Context(), cfg)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

type nameRequest struct {
	Name string `json:"name"`
}

func (h *api) createGroup(c *gin.Context) {
	var req nameRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid JSON body")
			return
		}
	}
	cfg, ok := h.configuration(c)
	if !ok {
		return
	}
	id, err := h.Faces.CreateGroup(c.Request.Context(), cfg, req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"group_id": id})
}

func (h *api) deleteGroup(c *gin.Context) {
	cfg, ok := h.configuration(c)
	if !ok {
		return
	}
	if err := h.Faces.DeleteGroup(c.Request.Context(), cfg, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *api) createPerson(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	cfg, ok := h.configuration(c)
	if !ok {
		return
	}
	id, err := h.Faces.CreatePerson(c.Request.Context(), cfg, c.Param("id"), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"person_id": id})
}

func (h *api) addFace(c *gin.Context) {
	groupID, personID := c.Param("id"), c.Param("pid")
	var (
		src     usecase.ImageSource
		blobURL string
	)
	if isMultipart(c) {
		up, err := readImage(c)
		if err != nil {
			writeUploadError(c, err)
			return
		}
		src.Bytes = up.data
		if h.Blobs != nil {
			key := groupID + "/" + personID + "/" + uuid.NewString() + up.extension()
			location, err := h.Blobs.Upload(c.Request.Context(), key, up.data, up.contentType)
			if err != nil {
				h.logger(c).Warn("failed to store enrolment image", zap.Error(err))
			} else {
				blobURL = location
			}
		}
	} else {
		var req imageURLRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "expected multipart image or JSON body")
			return
		}
		src.URL = req.URL
		blobURL = req.URL
	}

	cfg, ok := h.configuration(c)
	if !ok {
		return
	}
	faceID, err := h.Faces.AddFace(c.Request.Context(), cfg, groupID, personID, src)
	if err != nil {
		writeError(c, err)
		return
	}
	if h.Settings != nil {
		mapping := &repository.FaceMapping{GroupID: groupID, PersonID: personID, PersistedFaceID: faceID, BlobURL: blobURL}
		if err := h.Settings.SaveMapping(c.Request.Context(), mapping); err != nil {
			h.logger(c).Warn("failed to record face mapping", zap.Error(err))
		}
	}
	c.JSON(http.StatusCreated, gin.H{"persisted_face_id": faceID, "blob_url": blobURL})
}

func (h *api) listFaces(c *gin.Context) {
	mappings, err := h.Settings.ListMappings(c.Request.Context(), c.Param("pid"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]gin.H, 0, len(mappings))
	for _, m := range mappings {
		if m.GroupID != c.Param("id") {
			continue
		}
		out = append(out, gin.H{
			"persisted_face_id": m.PersistedFaceID,
			"blob_url":          m.BlobURL,
			"uploaded_at":       m.UploadedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"faces": out})
}

func (h *api) train(c *gin.Context) {
	cfg, ok := h.configuration(c)
	if !ok {
		return
	}
	groupID := c.Param("id")
	if err := cfg.Validate(); err != nil {
		writeError(c, err)
		return
	}
	// Training outlives the request; the job is cancelled through the tracker.
	job := h.Faces.StartTraining(context.Background(), cfg, groupID)
	h.Training.Track(job)
	h.logger(c).Info("training job started", zap.String("job_id", job.ID), zap.String("group_id", groupID))
	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID})
}

func (h *api) listTraining(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": h.Training.List()})
}

func (h *api) trainingStatus(c *gin.Context) {
	job, ok := h.Training.Get(c.Param("job"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown training job"})
		return
	}
	c.JSON(http.StatusOK, job.Snapshot())
}

func (h *api) cancelTraining(c *gin.Context) {
	if !h.Training.Cancel(c.Param("job")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown training job"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
}

func (h *api) uploadBlob(c *gin.Context) {
	if h.Blobs == nil {
		writeError(c, blobstore.ErrDisabled)
		return
	}
	up, err := readImage(c)
	if err != nil {
		writeUploadError(c, err)
		return
	}
	key := "uploads/" + uuid.NewString() + up.extension()
	location, err := h.Blobs.Upload(c.Request.Context(), key, up.data, up.contentType)
	if err != nil {
		writeError(c, err)
		return
	}
	presigned, err := h.Blobs.PresignGet(key, presignTTL)
	if err != nil {
		h.logger(c).Warn("failed to presign upload", zap.Error(err))
	}
	c.JSON(http.StatusCreated, gin.H{"url": location, "key": key, "presigned_url": presigned})
}
