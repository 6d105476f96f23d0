package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tryonix/tryonix-server/apperr"
	"github.com/tryonix/tryonix-server/config"
	"github.com/tryonix/tryonix-server/models"
	"github.com/tryonix/tryonix-server/pipeline"
)

// Runner executes one try-on generation.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*models.TryOn, error)
}

// RecordStore is the slice of the try-on store the handlers need.
type RecordStore interface {
	FindByID(ctx context.Context, id string) (*models.TryOn, error)
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string) ([]models.TryOn, error)
}

// TryOnHandler serves the try-on endpoints.
type TryOnHandler struct {
	cfg     *config.Config
	runner  Runner
	records RecordStore
	logger  *slog.Logger
}

func NewTryOnHandler(cfg *config.Config, runner Runner, records RecordStore, logger *slog.Logger) *TryOnHandler {
	return &TryOnHandler{cfg: cfg, runner: runner, records: records, logger: logger}
}

// Create handles POST /tryon: stages the two multipart files to local disk
// and hands them to the pipeline. Size and type filtering happens here, so
// the pipeline only sees pre-validated files.
func (h *TryOnHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFromContext(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	// Two files plus form overhead.
	r.Body = http.MaxBytesReader(w, r.Body, 2*h.cfg.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.respondError(w, apperr.Validation("Invalid multipart form data"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	personPath, err := h.stageUpload(r, "personImage")
	if err != nil {
		h.respondError(w, err)
		return
	}
	clothPath, err := h.stageUpload(r, "clothImage")
	if err != nil {
		// The person file is already on disk; the pipeline never sees this
		// request, so remove it here.
		if personPath != "" {
			os.Remove(personPath)
		}
		h.respondError(w, err)
		return
	}

	record, err := h.runner.Run(r.Context(), pipeline.Request{
		UserID:     userID,
		PersonPath: personPath,
		ClothPath:  clothPath,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	RespondJSON(w, http.StatusCreated, record)
}

// History handles GET /tryon/history: the caller's records, newest first.
func (h *TryOnHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFromContext(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	records, err := h.records.ListByUser(ctx, userID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, records)
}

// Delete handles DELETE /tryon/{id}. Ownership is the only access-control
// rule; the orphaned durable blobs are an accepted storage cost.
func (h *TryOnHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFromContext(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id := r.PathValue("id")
	record, err := h.records.FindByID(ctx, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if record.UserID != userID {
		h.respondError(w, apperr.Authorization("User not authorized"))
		return
	}

	if err := h.records.Delete(ctx, id); err != nil {
		h.respondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"id": id})
}

// stageUpload copies one multipart file to the upload directory and returns
// its local path. Validation failures never leave a partial file behind.
func (h *TryOnHandler) stageUpload(r *http.Request, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", apperr.Validation("Please upload both person and cloth images")
	}
	defer file.Close()

	if header.Size > h.cfg.MaxUploadBytes {
		return "", apperr.Validation(fmt.Sprintf("%s exceeds the maximum file size", field))
	}
	if !h.allowedType(header) {
		return "", apperr.Validation("Images only! Allowed formats: jpeg, jpg, png, webp")
	}

	if err := os.MkdirAll(h.cfg.UploadDir, 0o755); err != nil {
		return "", apperr.Internal(err)
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	path := filepath.Join(h.cfg.UploadDir, fmt.Sprintf("%s-%s%s", field, uuid.NewString(), ext))

	dst, err := os.Create(path)
	if err != nil {
		return "", apperr.Internal(err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(path)
		return "", apperr.Internal(err)
	}
	return path, nil
}

func (h *TryOnHandler) allowedType(header *multipart.FileHeader) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	switch ext {
	case "jpeg", "jpg", "png", "webp":
	default:
		return false
	}

	contentType := header.Header.Get("Content-Type")
	for _, allowed := range h.cfg.AllowedTypes {
		if contentType == allowed {
			return true
		}
	}
	return false
}

func (h *TryOnHandler) respondError(w http.ResponseWriter, err error) {
	RespondError(w, h.logger, err, !h.cfg.IsProduction())
}
