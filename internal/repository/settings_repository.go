package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/anarcoiris/FaceGUI/internal/logging"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// SavedConfig is a named face configuration.
type SavedConfig struct {
	Name      string    `gorm:"column:name;primaryKey;size:128"`
	Endpoint  string    `gorm:"column:endpoint;size:512"`
	AuthMode  string    `gorm:"column:auth_mode;size:32"`
	Key       string    `gorm:"column:api_key;size:256"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (SavedConfig) TableName() string {
	return "saved_configs"
}

// FaceMapping links an enrolled face to the stored image it came from.
type FaceMapping struct {
	ID              uint      `gorm:"primaryKey"`
	GroupID         string    `gorm:"column:group_id;size:64;index"`
	PersonID        string    `gorm:"column:person_id;size:64;index"`
	PersistedFaceID string    `gorm:"column:persisted_face_id;size:64"`
	BlobURL         string    `gorm:"column:blob_url;type:text"`
	UploadedAt      time.Time `gorm:"column:uploaded_at"`
}

// TableName overrides the default table name.
func (FaceMapping) TableName() string {
	return "face_mappings"
}

// ProbeRecord is a stored capability report.
type ProbeRecord struct {
	ID               uint      `gorm:"primaryKey"`
	RequestID        string    `gorm:"column:request_id;uniqueIndex;size:64"`
	Endpoint         string    `gorm:"column:endpoint;size:512;index"`
	DetectBasic      bool      `gorm:"column:detect_basic"`
	DetectAttributes string    `gorm:"column:detect_attributes;size:16"`
	LargePersonGroup bool      `gorm:"column:large_person_group"`
	Errors           string    `gorm:"column:errors;type:text"`
	CreatedAt        time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (ProbeRecord) TableName() string {
	return "probe_records"
}

// ErrorList decodes the stored error texts.
func (p *ProbeRecord) ErrorList() []string {
	var out []string
	if err := json.Unmarshal([]byte(p.Errors), &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

// SetErrorList encodes error texts for storage.
func (p *ProbeRecord) SetErrorList(errs []string) {
	if errs == nil {
		errs = []string{}
	}
	data, _ := json.Marshal(errs)
	p.Errors = string(data)
}

// SettingsRepository persists configurations, face mappings and probe history.
type SettingsRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewSettingsRepository creates a new repository instance.
func NewSettingsRepository(db *gorm.DB, logger *zap.Logger) *SettingsRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsRepository{
		db:             db,
		logger:         logger,
		retryAttempts:  3,
		initialBackoff: 100 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *SettingsRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&SavedConfig{}, &FaceMapping{}, &ProbeRecord{})
}

// SaveConfig inserts or replaces a named configuration.
func (r *SettingsRepository) SaveConfig(ctx context.Context, cfg *SavedConfig) error {
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now().UTC()
	}
	return r.executeWithRetry(ctx, "repository.save_config", uuid.NewString(), func() error {
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(cfg).Error
	})
}

// GetConfig loads a configuration by name.
func (r *SettingsRepository) GetConfig(ctx context.Context, name string) (*SavedConfig, error) {
	var cfg SavedConfig
	err := r.executeWithRetry(ctx, "repository.get_config", uuid.NewString(), func() error {
		return r.db.WithContext(ctx).First(&cfg, "name = ?", name).Error
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ListConfigs returns every configuration, newest first.
func (r *SettingsRepository) ListConfigs(ctx context.Context) ([]SavedConfig, error) {
	var out []SavedConfig
	err := r.executeWithRetry(ctx, "repository.list_configs", uuid.NewString(), func() error {
		return r.db.WithContext(ctx).Order("created_at DESC").Find(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SaveMapping records where an enrolled face's image is stored.
func (r *SettingsRepository) SaveMapping(ctx context.Context, m *FaceMapping) error {
	if m.UploadedAt.IsZero() {
		m.UploadedAt = time.Now().UTC()
	}
	return r.executeWithRetry(ctx, "repository.save_mapping", uuid.NewString(), func() error {
		return r.db.WithContext(ctx).Create(m).Error
	})
}

// ListMappings returns a person's mappings, oldest first.
func (r *SettingsRepository) ListMappings(ctx context.Context, personID string) ([]FaceMapping, error) {
	var out []FaceMapping
	err := r.executeWithRetry(ctx, "repository.list_mappings", uuid.NewString(), func() error {
		return r.db.WithContext(ctx).Where("person_id = ?", personID).Order("uploaded_at ASC, id ASC").Find(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SaveProbe stores a capability report.
func (r *SettingsRepository) SaveProbe(ctx context.Context, rec *ProbeRecord) error {
	if rec.RequestID == "" {
		rec.RequestID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Errors == "" {
		rec.SetErrorList(nil)
	}
	return r.executeWithRetry(ctx, "repository.save_probe", rec.RequestID, func() error {
		return r.db.WithContext(ctx).Create(rec).Error
	})
}

// LatestProbe returns the most recent report for an endpoint.
func (r *SettingsRepository) LatestProbe(ctx context.Context, endpoint string) (*ProbeRecord, error) {
	var rec ProbeRecord
	err := r.executeWithRetry(ctx, "repository.latest_probe", uuid.NewString(), func() error {
		return r.db.WithContext(ctx).Where("endpoint = ?", endpoint).Order("created_at DESC, id DESC").First(&rec).Error
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *SettingsRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)
	attempts := r.retryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return logging.NewOperationError(operation, requestID, ErrNotFound)
		}
		if !isTransientError(err) || attempt == attempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}
		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isTransientError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var temporary interface{ Temporary() bool }
	return errors.As(err, &temporary) && temporary.Temporary()
}
