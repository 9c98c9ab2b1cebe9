package resolution

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/itdd/backend/internal/domain/resolution"
	"github.com/itdd/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ExportFormat selects the encoding of an export projection
type ExportFormat string

const (
	ExportYAML ExportFormat = "yaml"
	ExportJSON ExportFormat = "json"
)

// ParseExportFormat accepts yaml, yml or json in any case; empty means yaml
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "yaml", "yml":
		return ExportYAML, nil
	case "json":
		return ExportJSON, nil
	}
	return "", shared.NewValidationError("format", fmt.Sprintf("unsupported export format %q", s))
}

// ContentType returns the MIME type of the encoding
func (f ExportFormat) ContentType() string {
	if f == ExportJSON {
		return "application/json"
	}
	return "application/yaml"
}

// Extension returns the file extension of the encoding
func (f ExportFormat) Extension() string {
	if f == ExportJSON {
		return "json"
	}
	return "yaml"
}

// ExportStore keeps rendered exports for later download
type ExportStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	GenerateDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, time.Time, error)
}

// ExportResult is a rendered projection and, when stored, where to fetch it
type ExportResult struct {
	Format      ExportFormat `json:"format"`
	ContentType string       `json:"content_type"`
	Data        []byte       `json:"-"`
	RecordCount int          `json:"record_count"`
	ObjectKey   string       `json:"object_key,omitempty"`
	DownloadURL string       `json:"download_url,omitempty"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
}

// ExportService renders read-only projections of a scope. Exports are never read back.
type ExportService struct {
	query  *QueryService
	store  ExportStore
	logger *zap.Logger
}

// NewExportService creates an export service. store may be nil, in which case
// Publish is unavailable.
func NewExportService(query *QueryService, store ExportStore, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{query: query, store: store, logger: logger}
}

// Render encodes the scope's current active records
func (s *ExportService) Render(ctx context.Context, key resolution.ScopeKey, format ExportFormat) (*ExportResult, error) {
	if !key.Scope.IsValid() {
		return nil, shared.NewValidationError("ownership_scope", `must be "target" or "acquirer"`)
	}
	snap, err := s.query.Snapshot(ctx, key)
	if err != nil {
		return nil, err
	}
	data, err := EncodeSnapshot(snap, format)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		Format:      format,
		ContentType: format.ContentType(),
		Data:        data,
		RecordCount: snap.RecordCount,
	}, nil
}

// Publish renders the scope and uploads it, returning a presigned download URL
func (s *ExportService) Publish(ctx context.Context, key resolution.ScopeKey, format ExportFormat, expiresIn time.Duration) (*ExportResult, error) {
	if s.store == nil {
		return nil, shared.NewDomainError("EXPORT_STORAGE_DISABLED", "export storage is not configured")
	}
	res, err := s.Render(ctx, key, format)
	if err != nil {
		return nil, err
	}

	objectKey := ExportObjectKey(key, format, s.query.now())
	if err := s.store.Upload(ctx, objectKey, res.Data, res.ContentType); err != nil {
		return nil, &shared.StorageError{Op: "upload_export", Err: err, Transient: true}
	}
	url, expiresAt, err := s.store.GenerateDownloadURL(ctx, objectKey, expiresIn)
	if err != nil {
		return nil, &shared.StorageError{Op: "presign_export", Err: err}
	}

	res.ObjectKey = objectKey
	res.DownloadURL = url
	res.ExpiresAt = &expiresAt
	s.logger.Info("Export published",
		zap.String("scope", key.String()),
		zap.String("object_key", objectKey),
		zap.Int("records", res.RecordCount))
	return res, nil
}

// ExportObjectKey names the stored object: exports/<deal>/<scope>/<timestamp>.<ext>
func ExportObjectKey(key resolution.ScopeKey, format ExportFormat, at time.Time) string {
	return fmt.Sprintf("exports/%s/%s/%s.%s",
		key.DealID, key.Scope, at.UTC().Format("20060102T150405Z"), format.Extension())
}

// EncodeSnapshot encodes a snapshot in the given format
func EncodeSnapshot(snap *ScopeSnapshot, format ExportFormat) ([]byte, error) {
	switch format {
	case ExportJSON:
		return json.MarshalIndent(snap, "", "  ")
	case ExportYAML:
		return yaml.MarshalWithOptions(snap, yaml.IndentSequence(true))
	}
	return nil, shared.NewValidationError("format", fmt.Sprintf("unsupported export format %q", format))
}
