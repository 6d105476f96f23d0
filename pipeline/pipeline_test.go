package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tryonix/tryonix-server/ai"
	"github.com/tryonix/tryonix-server/apperr"
	"github.com/tryonix/tryonix-server/models"
)

type fakeGate struct {
	err   error
	calls int
}

func (f *fakeGate) Admit(ctx context.Context, userID string) error {
	f.calls++
	return f.err
}

// fakeUploader mimics the blob store contract: the local file is deleted on
// success and left in place on failure.
type fakeUploader struct {
	mu      sync.Mutex
	failSub string
	calls   []string
}

func (f *fakeUploader) Upload(ctx context.Context, localPath string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, localPath)
	f.mu.Unlock()

	if f.failSub != "" && strings.Contains(localPath, f.failSub) {
		return "", apperr.ExternalService("Image upload failed", errors.New("s3 unavailable"))
	}
	if err := os.Remove(localPath); err != nil {
		return "", apperr.ExternalService("Image upload failed", err)
	}
	return "https://bucket.s3.test.amazonaws.com/" + filepath.Base(localPath), nil
}

func (f *fakeUploader) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeGenerator struct {
	result *ai.Result
	err    error
	calls  int
	refs   []string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, refs ...string) (*ai.Result, error) {
	f.calls++
	f.refs = refs
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeRecords struct {
	created []*models.TryOn
	err     error
}

func (f *fakeRecords) Create(ctx context.Context, record *models.TryOn) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, record)
	return nil
}

type fakeUsage struct {
	records       *fakeRecords
	err           error
	calls         int
	recordsAtIncr int
}

func (f *fakeUsage) IncrementUsage(ctx context.Context, userID string, now time.Time) error {
	f.calls++
	if f.records != nil {
		f.recordsAtIncr = len(f.records.created)
	}
	return f.err
}

type fakeObserver struct {
	stages []string
}

func (f *fakeObserver) ObservePipeline(finalStage string) {
	f.stages = append(f.stages, finalStage)
}

type fixture struct {
	gate     *fakeGate
	blobs    *fakeUploader
	gen      *fakeGenerator
	records  *fakeRecords
	usage    *fakeUsage
	observer *fakeObserver
	tempDir  string
	p        *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	records := &fakeRecords{}
	f := &fixture{
		gate:     &fakeGate{},
		blobs:    &fakeUploader{},
		gen:      &fakeGenerator{result: &ai.Result{Image: []byte("png-bytes"), MIMEType: "image/png"}},
		records:  records,
		usage:    &fakeUsage{records: records},
		observer: &fakeObserver{},
		tempDir:  t.TempDir(),
	}
	f.p = New(f.gate, f.blobs, f.gen, f.records, f.usage, f.tempDir, slog.New(slog.DiscardHandler), f.observer)
	return f
}

func (f *fixture) writeInput(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(f.tempDir, name)
	require.NoError(t, os.WriteFile(path, []byte("image"), 0o644))
	return path
}

func (f *fixture) tempFileCount(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(f.tempDir)
	require.NoError(t, err)
	return len(entries)
}

func TestRunMissingInputMakesNoExternalCalls(t *testing.T) {
	f := newFixture(t)
	person := f.writeInput(t, "person.jpg")

	_, err := f.p.Run(context.Background(), Request{UserID: "u1", PersonPath: person})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	assert.Zero(t, f.blobs.count(), "blob store must not be called")
	assert.Zero(t, f.gen.calls, "generation client must not be called")
	assert.Zero(t, f.tempFileCount(t), "provided file must be discarded")
	assert.Equal(t, []string{"validating"}, f.observer.stages)
}

func TestRunQuotaDeniedCleansInputs(t *testing.T) {
	f := newFixture(t)
	f.gate.err = apperr.RateLimit("Daily limit reached")
	person := f.writeInput(t, "person.jpg")
	cloth := f.writeInput(t, "cloth.jpg")

	_, err := f.p.Run(context.Background(), Request{UserID: "u1", PersonPath: person, ClothPath: cloth})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindRateLimit))

	assert.Zero(t, f.blobs.count())
	assert.Zero(t, f.tempFileCount(t))
}

func TestRunInputUploadFailureCleansBothFiles(t *testing.T) {
	f := newFixture(t)
	f.blobs.failSub = "cloth"
	person := f.writeInput(t, "person.jpg")
	cloth := f.writeInput(t, "cloth.jpg")

	_, err := f.p.Run(context.Background(), Request{UserID: "u1", PersonPath: person, ClothPath: cloth})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindExternalService))

	assert.Equal(t, 2, f.blobs.count(), "both uploads are issued")
	assert.Zero(t, f.gen.calls)
	assert.Zero(t, f.tempFileCount(t), "both local inputs must be deleted")
	assert.Empty(t, f.records.created)
}

func TestRunGenerationFailureLeavesNoRecord(t *testing.T) {
	f := newFixture(t)
	f.gen.err = apperr.AIService("Try-on generation failed", nil, errors.New("backend down"))
	person := f.writeInput(t, "person.jpg")
	cloth := f.writeInput(t, "cloth.jpg")

	_, err := f.p.Run(context.Background(), Request{UserID: "u1", PersonPath: person, ClothPath: cloth})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindAIService))

	assert.Empty(t, f.records.created, "no record after generation failure")
	assert.Zero(t, f.usage.calls, "failed generation must not consume quota")
	assert.Zero(t, f.tempFileCount(t))
}

func TestRunResultUploadFailureRemovesTempResult(t *testing.T) {
	f := newFixture(t)
	f.blobs.failSub = "result-"
	person := f.writeInput(t, "person.jpg")
	cloth := f.writeInput(t, "cloth.jpg")

	_, err := f.p.Run(context.Background(), Request{UserID: "u1", PersonPath: person, ClothPath: cloth})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindExternalService))

	assert.Empty(t, f.records.created, "no record after result upload failure")
	assert.Zero(t, f.usage.calls)
	assert.Zero(t, f.tempFileCount(t), "staged result file must be removed")
}

func TestRunSuccess(t *testing.T) {
	f := newFixture(t)
	person := f.writeInput(t, "person.jpg")
	cloth := f.writeInput(t, "cloth.jpg")

	record, err := f.p.Run(context.Background(), Request{UserID: "u1", PersonPath: person, ClothPath: cloth})
	require.NoError(t, err)

	assert.Equal(t, "u1", record.UserID)
	assert.Contains(t, record.PersonImageURL, "person.jpg")
	assert.Contains(t, record.ClothImageURL, "cloth.jpg")
	assert.Contains(t, record.ResultImageURL, "result-")
	assert.False(t, record.CreatedAt.IsZero())

	require.Len(t, f.records.created, 1)
	assert.Equal(t, 1, f.usage.calls)
	assert.Equal(t, 1, f.usage.recordsAtIncr, "record write must happen before the counter increment")
	assert.Len(t, f.gen.refs, 2, "both durable URLs are passed to the generator")

	assert.Zero(t, f.tempFileCount(t), "no local files survive a run")
	assert.Equal(t, []string{"done"}, f.observer.stages)
}

func TestRunUsageIncrementFailureKeepsRecord(t *testing.T) {
	f := newFixture(t)
	f.usage.err = errors.New("counter write failed")
	person := f.writeInput(t, "person.jpg")
	cloth := f.writeInput(t, "cloth.jpg")

	record, err := f.p.Run(context.Background(), Request{UserID: "u1", PersonPath: person, ClothPath: cloth})
	require.NoError(t, err, "quota bookkeeping is best-effort")
	require.NotNil(t, record)
	assert.Len(t, f.records.created, 1)
}
