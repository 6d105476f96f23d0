// Package pipeline orchestrates one try-on generation: quota admission, two
// concurrent input uploads, the AI call, the result upload, and persistence.
// The flow is an explicit state machine so the compensating cleanup of local
// temp files is attached to the transition into Failed and cannot be
// forgotten when stages are added.
package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tryonix/tryonix-server/ai"
	"github.com/tryonix/tryonix-server/apperr"
	"github.com/tryonix/tryonix-server/models"
)

// tryOnPrompt describes the desired output to the generation backend.
const tryOnPrompt = "Virtual try-on. Place the uploaded clothing naturally on the person. " +
	"Preserve body proportions, pose, and facial identity. Maintain the original background. " +
	"Use realistic lighting, natural shadows, and cloth folds. High-quality fashion photography look."

// Stage identifies a pipeline state. Failed is terminal and reachable from
// every non-terminal stage.
type Stage int

const (
	StageValidating Stage = iota
	StageUploadingInputs
	StageGenerating
	StagePersistingResult
	StageSaving
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageValidating:
		return "validating"
	case StageUploadingInputs:
		return "uploading_inputs"
	case StageGenerating:
		return "generating"
	case StagePersistingResult:
		return "persisting_result"
	case StageSaving:
		return "saving"
	case StageDone:
		return "done"
	default:
		return "failed"
	}
}

// Gate admits or denies a new generation for a user.
type Gate interface {
	Admit(ctx context.Context, userID string) error
}

// Uploader moves a local file to durable storage and returns its URL. On
// success the local file is gone; on failure it is left in place.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// Generator produces the try-on image from a prompt and reference URLs.
type Generator interface {
	Generate(ctx context.Context, prompt string, refs ...string) (*ai.Result, error)
}

// RecordStore persists completed generation records.
type RecordStore interface {
	Create(ctx context.Context, record *models.TryOn) error
}

// UsageRecorder bumps the owner's daily counter after a success.
type UsageRecorder interface {
	IncrementUsage(ctx context.Context, userID string, now time.Time) error
}

// Observer is notified of the final stage of each run.
type Observer interface {
	ObservePipeline(finalStage string)
}

// Request is the ephemeral input of one run: two staged local files and the
// verified owner id. The files are removed from disk by the end of the run
// regardless of outcome.
type Request struct {
	UserID     string
	PersonPath string
	ClothPath  string
}

// Pipeline runs the try-on generation flow.
type Pipeline struct {
	gate     Gate
	blobs    Uploader
	gen      Generator
	records  RecordStore
	usage    UsageRecorder
	tempDir  string
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

func New(gate Gate, blobs Uploader, gen Generator, records RecordStore, usage UsageRecorder, tempDir string, logger *slog.Logger, observer Observer) *Pipeline {
	return &Pipeline{
		gate:     gate,
		blobs:    blobs,
		gen:      gen,
		records:  records,
		usage:    usage,
		tempDir:  tempDir,
		logger:   logger,
		observer: observer,
		now:      time.Now,
	}
}

// run tracks the current stage and the local temp files still on disk.
type run struct {
	stage Stage
	temp  []string
}

func (r *run) track(path string) {
	r.temp = append(r.temp, path)
}

func (r *run) untrack(path string) {
	for i, p := range r.temp {
		if p == path {
			r.temp = append(r.temp[:i], r.temp[i+1:]...)
			return
		}
	}
}

// Run executes the state machine for one request and returns the persisted
// record. Any error it returns is already typed for the HTTP boundary, and
// every local temp file has been removed before the error is reported.
func (p *Pipeline) Run(ctx context.Context, req Request) (*models.TryOn, error) {
	st := &run{stage: StageValidating}
	if req.PersonPath != "" {
		st.track(req.PersonPath)
	}
	if req.ClothPath != "" {
		st.track(req.ClothPath)
	}

	// Validating: no external calls are made when an input is missing.
	if req.PersonPath == "" || req.ClothPath == "" {
		return nil, p.fail(st, apperr.Validation("Please upload both person and cloth images"))
	}

	if err := p.gate.Admit(ctx, req.UserID); err != nil {
		return nil, p.fail(st, err)
	}

	// UploadingInputs: the two uploads are independent and issued
	// concurrently; the stage completes only when both settle.
	st.stage = StageUploadingInputs
	personURL, clothURL, err := p.uploadInputs(ctx, st, req)
	if err != nil {
		return nil, p.fail(st, err)
	}

	// Generating: no database writes have happened yet.
	st.stage = StageGenerating
	result, err := p.gen.Generate(ctx, tryOnPrompt, personURL, clothURL)
	if err != nil {
		return nil, p.fail(st, err)
	}

	// PersistingResult: stage the raw bytes to a short-lived local file and
	// upload it. The already-uploaded input URLs are not revoked on failure.
	st.stage = StagePersistingResult
	resultPath := filepath.Join(p.tempDir, "result-"+uuid.NewString()+extForMIME(result.MIMEType))
	if err := os.WriteFile(resultPath, result.Image, 0o644); err != nil {
		return nil, p.fail(st, apperr.Internal(err))
	}
	st.track(resultPath)

	resultURL, err := p.blobs.Upload(ctx, resultPath)
	if err != nil {
		return nil, p.fail(st, err)
	}
	st.untrack(resultPath)

	// Saving: the record write happens-before the counter increment. Quota
	// bookkeeping is best-effort; the visible history is not.
	st.stage = StageSaving
	now := p.now()
	record := &models.TryOn{
		UserID:         req.UserID,
		PersonImageURL: personURL,
		ClothImageURL:  clothURL,
		ResultImageURL: resultURL,
		CreatedAt:      now,
	}
	if err := p.records.Create(ctx, record); err != nil {
		return nil, p.fail(st, apperr.Internal(err))
	}

	if err := p.usage.IncrementUsage(ctx, req.UserID, now); err != nil {
		p.logger.Warn("failed to increment usage counter", "user_id", req.UserID, "error", err)
	}

	st.stage = StageDone
	p.observe(st.stage)
	return record, nil
}

// uploadInputs pushes both input files concurrently. On any failure both
// local files are deleted; an input that did reach durable storage stays
// there as an orphan rather than being retried or revoked.
func (p *Pipeline) uploadInputs(ctx context.Context, st *run, req Request) (string, string, error) {
	type outcome struct {
		url string
		err error
	}

	personCh := make(chan outcome, 1)
	clothCh := make(chan outcome, 1)
	go func() {
		url, err := p.blobs.Upload(ctx, req.PersonPath)
		personCh <- outcome{url, err}
	}()
	go func() {
		url, err := p.blobs.Upload(ctx, req.ClothPath)
		clothCh <- outcome{url, err}
	}()

	person := <-personCh
	cloth := <-clothCh

	if person.err == nil {
		st.untrack(req.PersonPath)
	}
	if cloth.err == nil {
		st.untrack(req.ClothPath)
	}
	if person.err != nil {
		return "", "", person.err
	}
	if cloth.err != nil {
		return "", "", cloth.err
	}
	return person.url, cloth.url, nil
}

// fail transitions into Failed: every local temp file still referenced is
// deleted before the typed error is handed back. Cleanup failures are logged
// and never replace the primary error.
func (p *Pipeline) fail(st *run, err error) error {
	failedAt := st.stage
	st.stage = StageFailed
	for _, path := range st.temp {
		if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
			p.logger.Warn("failed to delete temp file", "path", path, "error", removeErr)
		}
	}
	st.temp = nil

	p.logger.Error("try-on pipeline failed", "stage", failedAt.String(), "error", err)
	p.observe(failedAt)
	return err
}

func (p *Pipeline) observe(final Stage) {
	if p.observer != nil {
		p.observer.ObservePipeline(final.String())
	}
}

func extForMIME(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
