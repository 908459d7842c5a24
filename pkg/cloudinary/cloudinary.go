package cloudinary

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Service stores submission files in Cloudinary.
type Service struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Cloudinary service instance.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Service{
		client: cld,
		folder: cfg.Folder,
		logger: logger.With().Str("component", "cloudinary").Logger(),
		now:    time.Now,
	}, nil
}

// Upload stores the file under <folder>/<assignmentID> and returns its secure URL.
func (s *Service) Upload(ctx context.Context, assignmentID, name string, reader io.Reader) (string, error) {
	params := uploader.UploadParams{
		Folder:         uploadFolder(s.folder, assignmentID),
		PublicID:       buildPublicID(name, s.now()),
		ResourceType:   "auto",
		UseFilename:    boolPtr(false),
		UniqueFilename: boolPtr(false),
	}

	result, err := s.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return "", fmt.Errorf("failed to upload submission file: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("cloudinary rejected upload: %s", result.Error.Message)
	}

	s.logger.Info().
		Str("public_id", result.PublicID).
		Str("assignment_id", assignmentID).
		Int("bytes", result.Bytes).
		Msg("submission file uploaded")

	return result.SecureURL, nil
}

func uploadFolder(base, assignmentID string) string {
	base = strings.Trim(base, "/")
	assignmentID = strings.Trim(sanitize(assignmentID), "-")
	if assignmentID == "" {
		return base
	}
	if base == "" {
		return assignmentID
	}
	return path.Join(base, assignmentID)
}

func buildPublicID(name string, now time.Time) string {
	base := strings.Trim(sanitize(strings.TrimSuffix(name, filepath.Ext(name))), "-")
	if base == "" {
		base = "submission"
	}
	return fmt.Sprintf("%s-%d", base, now.Unix())
}

func sanitize(value string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, value)
}

func boolPtr(v bool) *bool {
	return &v
}
