// Package reconcile promotes locally stored photos to the remote object store.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/vbonduro/pantrysync/internal/domain"
	"github.com/vbonduro/pantrysync/internal/metrics"
	"github.com/vbonduro/pantrysync/internal/photostore"
)

// ErrRemoteUnavailable is returned when no upload of a run succeeded.
var ErrRemoteUnavailable = errors.New("remote object store unavailable")

// errSuperseded marks a record whose photo changed while it was uploading.
var errSuperseded = errors.New("record photo changed during sync")

// Stage names the step at which a record failed to sync.
type Stage string

const (
	StageRead   Stage = "read"
	StageUpload Stage = "upload"
	StageUpdate Stage = "update"
)

type Failure struct {
	Collection domain.Collection
	RecordID   string
	Stage      Stage
	Err        error
}

func (f Failure) MarshalJSON() ([]byte, error) {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		Collection domain.Collection `json:"collection"`
		RecordID   string            `json:"record_id"`
		Stage      Stage             `json:"stage"`
		Error      string            `json:"error"`
	}{f.Collection, f.RecordID, f.Stage, msg})
}

// Report summarizes one reconcile pass over an owner's records.
type Report struct {
	OwnerID   string `json:"owner_id"`
	Scanned   int    `json:"scanned"`
	Uploaded  int    `json:"uploaded"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	// Superseded counts records re-attached while their old photo uploaded.
	// They stay pending and sync on the next run.
	Superseded int       `json:"superseded"`
	Failures   []Failure `json:"failures"`

	uploadAttempts int
}

func (r *Report) fail(c domain.Collection, id string, stage Stage, err error) {
	r.Failed++
	r.Failures = append(r.Failures, Failure{Collection: c, RecordID: id, Stage: stage, Err: err})
}

// recordRepository is the subset of store.RecordStore the engine requires.
type recordRepository interface {
	List(ctx context.Context, ownerID string, collection domain.Collection) ([]*domain.Record, error)
	PromoteMedia(ctx context.Context, ownerID string, collection domain.Collection, id, localPath, url string) (bool, error)
	CountPending(ctx context.Context, ownerID string) (int, error)
}

type Engine struct {
	records recordRepository
	local   photostore.LocalStore
	remote  photostore.RemoteStore
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewEngine builds an engine. remote may be nil when no object store is
// configured; Reconcile then reports ErrRemoteUnavailable.
func NewEngine(
	records recordRepository,
	local photostore.LocalStore,
	remote photostore.RemoteStore,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		records: records,
		local:   local,
		remote:  remote,
		metrics: m,
		logger:  logger,
	}
}

// Reconcile uploads every unsynced local photo of ownerID, points the record
// at the uploaded URL and only then removes the local copy. Per-record
// failures are collected in the report and retried on the next call.
func (e *Engine) Reconcile(ctx context.Context, ownerID string) (*Report, error) {
	report := &Report{OwnerID: ownerID, Failures: []Failure{}}

	pending, err := e.records.CountPending(ctx, ownerID)
	if err != nil {
		e.metrics.SyncRun("error")
		return report, fmt.Errorf("failed to count pending records: %w", err)
	}
	if pending > 0 && e.remote == nil {
		e.metrics.SyncRun("unavailable")
		return report, fmt.Errorf("remote store not configured: %w", ErrRemoteUnavailable)
	}

	for _, collection := range domain.SyncCollections {
		if err := e.reconcileCollection(ctx, ownerID, collection, report); err != nil {
			e.metrics.SyncRun("error")
			return report, err
		}
	}

	e.logger.Info("reconcile finished",
		"owner_id", ownerID,
		"scanned", report.Scanned,
		"uploaded", report.Uploaded,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"superseded", report.Superseded,
	)

	if report.uploadAttempts > 0 && report.Uploaded == 0 {
		e.metrics.SyncRun("unavailable")
		return report, fmt.Errorf("all %d uploads failed: %w", report.uploadAttempts, ErrRemoteUnavailable)
	}
	if report.Failed > 0 {
		e.metrics.SyncRun("partial")
	} else {
		e.metrics.SyncRun("ok")
	}
	return report, nil
}

func (e *Engine) reconcileCollection(ctx context.Context, ownerID string, collection domain.Collection, report *Report) error {
	category, ok := collection.Category()
	if !ok {
		return nil
	}

	records, err := e.records.List(ctx, ownerID, collection)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", collection, err)
	}

	for _, rec := range records {
		report.Scanned++
		if rec.Media.LocalPath == "" {
			continue
		}
		stage, err := e.syncRecord(ctx, rec, category, report)
		if errors.Is(err, errSuperseded) {
			e.logger.Info("record photo changed during sync, newer photo left for next run",
				"owner_id", ownerID,
				"collection", string(collection),
				"record_id", rec.ID,
			)
			report.Superseded++
			e.metrics.SyncRecord(string(collection), "superseded")
			continue
		}
		if err != nil {
			e.logger.Warn("record sync failed",
				"owner_id", ownerID,
				"collection", string(collection),
				"record_id", rec.ID,
				"stage", string(stage),
				"error", err,
			)
			report.fail(collection, rec.ID, stage, err)
			e.metrics.SyncRecord(string(collection), string(stage))
			continue
		}
		report.Succeeded++
		e.metrics.SyncRecord(string(collection), "synced")
	}
	return nil
}

func (e *Engine) syncRecord(ctx context.Context, rec *domain.Record, category domain.Category, report *Report) (Stage, error) {
	data, mimeType, err := e.readLocal(ctx, rec.Media.LocalPath)
	if err != nil {
		return StageRead, err
	}

	key := photostore.Key(rec.OwnerID, category, rec.ID)
	report.uploadAttempts++
	url, err := e.remote.Put(ctx, key, data, mimeType)
	if err != nil {
		return StageUpload, err
	}
	report.Uploaded++

	promoted, err := e.records.PromoteMedia(ctx, rec.OwnerID, rec.Collection, rec.ID, rec.Media.LocalPath, url)
	if err != nil {
		return StageUpdate, fmt.Errorf("failed to update record media: %w", err)
	}
	if !promoted {
		// The newer local file is still referenced and must survive.
		return "", errSuperseded
	}

	if err := e.local.Delete(ctx, rec.Media.LocalPath); err != nil {
		e.logger.Warn("failed to delete synced local photo",
			"owner_id", rec.OwnerID,
			"record_id", rec.ID,
			"local_path", rec.Media.LocalPath,
			"error", err,
		)
	}
	return "", nil
}

func (e *Engine) readLocal(ctx context.Context, localPath string) ([]byte, string, error) {
	rc, mimeType, err := e.local.Open(ctx, localPath)
	if err != nil {
		return nil, "", err
	}
	defer func() {
		if err := rc.Close(); err != nil {
			e.logger.Error("failed to close local photo", "local_path", localPath, "error", err)
		}
	}()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read local photo: %w", err)
	}
	return data, mimeType, nil
}

// Pending returns the number of the owner's records awaiting sync.
func (e *Engine) Pending(ctx context.Context, ownerID string) (int, error) {
	return e.records.CountPending(ctx, ownerID)
}
