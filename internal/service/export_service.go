package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"auth-service/internal/storage"
)

// ErrExportDisabled is returned when no export bucket is configured.
var ErrExportDisabled = errors.New("user export is not configured")

// ExportConfig selects where snapshots are written.
type ExportConfig struct {
	Bucket    string
	KeyPrefix string
	URLExpiry time.Duration
}

// ExportResult describes an uploaded snapshot.
type ExportResult struct {
	Location string    `json:"location"`
	Key      string    `json:"key"`
	Count    int       `json:"count"`
	Created  time.Time `json:"created_at"`
}

type exportedUser struct {
	ID        int64     `json:"id"`
	UserName  string    `json:"user_name"`
	Name      string    `json:"name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type snapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Count       int            `json:"count"`
	Users       []exportedUser `json:"users"`
}

// ExportService writes sanitized user directory snapshots to object storage.
type ExportService interface {
	Export(ctx context.Context) (*ExportResult, error)
	List(ctx context.Context) ([]storage.ObjectInfo, error)
	URL(ctx context.Context, key string) (string, error)
	Purge(ctx context.Context) error
}

type exportService struct {
	users   UserService
	storage storage.Service
	cfg     ExportConfig
	log     logrus.FieldLogger
	now     func() time.Time
}

// NewExportService returns a service that reports ErrExportDisabled for every
// call when store is nil or no bucket is configured.
func NewExportService(users UserService, store storage.Service, cfg ExportConfig, log logrus.FieldLogger) ExportService {
	cfg.KeyPrefix = strings.Trim(cfg.KeyPrefix, "/")
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = 15 * time.Minute
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &exportService{
		users:   users,
		storage: store,
		cfg:     cfg,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *exportService) enabled() bool {
	return s.storage != nil && s.cfg.Bucket != ""
}

func (s *exportService) Export(ctx context.Context) (*ExportResult, error) {
	if !s.enabled() {
		return nil, ErrExportDisabled
	}

	users, err := s.users.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	snap := snapshot{GeneratedAt: now, Count: len(users), Users: make([]exportedUser, len(users))}
	for i, u := range users {
		snap.Users[i] = exportedUser{
			ID:        u.ID,
			UserName:  u.UserName,
			Name:      u.Name,
			LastName:  u.LastName,
			Email:     u.Email,
			Role:      u.Role.String(),
			CreatedAt: u.CreatedAt,
			UpdatedAt: u.UpdatedAt,
		}
	}

	body, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	key := path.Join(s.cfg.KeyPrefix, fmt.Sprintf("users-%s.json", now.Format("20060102T150405Z")))
	location, err := s.storage.Upload(ctx, bytes.NewReader(body), storage.UploadOptions{
		Bucket:      s.cfg.Bucket,
		Key:         key,
		ContentType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("upload snapshot: %w", err)
	}

	s.log.WithFields(logrus.Fields{"location": location, "count": len(users)}).Info("user directory exported")
	return &ExportResult{Location: location, Key: key, Count: len(users), Created: now}, nil
}

func (s *exportService) List(ctx context.Context) ([]storage.ObjectInfo, error) {
	if !s.enabled() {
		return nil, ErrExportDisabled
	}
	return s.storage.ListObjects(ctx, s.cfg.Bucket, s.prefix())
}

func (s *exportService) URL(ctx context.Context, key string) (string, error) {
	if !s.enabled() {
		return "", ErrExportDisabled
	}
	if key == "" || !strings.HasPrefix(key, s.prefix()) {
		return "", fmt.Errorf("%w: key outside export prefix", ErrValidation)
	}
	return s.storage.GetObjectURL(ctx, s.cfg.Bucket, key, s.cfg.URLExpiry)
}

func (s *exportService) Purge(ctx context.Context) error {
	if !s.enabled() {
		return ErrExportDisabled
	}
	if s.prefix() == "" {
		return fmt.Errorf("%w: refusing to purge without a key prefix", ErrValidation)
	}
	if err := s.storage.DeletePrefix(ctx, s.cfg.Bucket, s.prefix()); err != nil {
		return err
	}
	s.log.WithField("prefix", s.prefix()).Info("user exports purged")
	return nil
}

func (s *exportService) prefix() string {
	if s.cfg.KeyPrefix == "" {
		return ""
	}
	return s.cfg.KeyPrefix + "/"
}
