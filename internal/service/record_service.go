package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vbonduro/pantrysync/internal/domain"
	"github.com/vbonduro/pantrysync/internal/photostore"
)

// recordRepository is the subset of store.RecordStore that RecordService requires.
type recordRepository interface {
	Create(ctx context.Context, rec *domain.Record) (*domain.Record, error)
	GetByID(ctx context.Context, ownerID string, collection domain.Collection, id string) (*domain.Record, error)
	List(ctx context.Context, ownerID string, collection domain.Collection) ([]*domain.Record, error)
	FindByNameLower(ctx context.Context, ownerID string, collection domain.Collection, nameLower string) ([]*domain.Record, error)
	Update(ctx context.Context, ownerID string, collection domain.Collection, id string, patch domain.RecordPatch) (*domain.Record, error)
	Delete(ctx context.Context, ownerID string, collection domain.Collection, id string) error
}

// Photo is an image captured in memory, typically from an upload.
type Photo struct {
	Data     []byte
	MimeType string
}

type CreateInput struct {
	Name   string
	Fields map[string]any
	Photo  *Photo
}

type RecordService struct {
	records   recordRepository
	local     photostore.LocalStore
	remote    photostore.RemoteStore
	localOnly bool
	logger    *slog.Logger
}

// NewRecordService wires the record write path. remote may be nil, in which
// case every photo is kept locally until a reconcile promotes it.
func NewRecordService(
	records recordRepository,
	local photostore.LocalStore,
	remote photostore.RemoteStore,
	localOnly bool,
	logger *slog.Logger,
) *RecordService {
	return &RecordService{
		records:   records,
		local:     local,
		remote:    remote,
		localOnly: localOnly,
		logger:    logger,
	}
}

// ExistsByName reports whether another record in the owner's collection has
// the same case-folded name. A match on excludeID alone is not a duplicate.
//
// The check is a plain read followed by the caller's write, so two concurrent
// creates of the same name can both succeed.
func (s *RecordService) ExistsByName(ctx context.Context, ownerID string, collection domain.Collection, name, excludeID string) (bool, error) {
	matches, err := s.records.FindByNameLower(ctx, ownerID, collection, domain.FoldName(name))
	if err != nil {
		return false, fmt.Errorf("failed to check name: %w", err)
	}
	for _, rec := range matches {
		if rec.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (s *RecordService) CreateRecord(ctx context.Context, ownerID string, collection domain.Collection, in CreateInput) (*domain.Record, error) {
	if collection == domain.CollectionProfile {
		return nil, fmt.Errorf("profile is a singleton, use UpdateProfile: %w", domain.ErrInvalidCollection)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, domain.ErrNameRequired
	}
	if in.Photo != nil {
		if _, ok := collection.Category(); !ok {
			return nil, fmt.Errorf("%s records cannot carry photos: %w", collection, domain.ErrInvalidCollection)
		}
	}
	if err := s.checkName(ctx, ownerID, collection, name, ""); err != nil {
		return nil, err
	}

	rec, err := s.records.Create(ctx, &domain.Record{
		OwnerID:    ownerID,
		Collection: collection,
		Name:       name,
		Fields:     in.Fields,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create record: %w", err)
	}
	s.logger.Info("record created", "owner_id", ownerID, "collection", string(collection), "record_id", rec.ID)

	if in.Photo == nil {
		return rec, nil
	}
	// The record exists first so the object key can use its id.
	return s.AttachPhoto(ctx, ownerID, collection, rec.ID, in.Photo.Data, in.Photo.MimeType)
}

// UpdateRecord applies a name and field patch. Media changes go through
// AttachPhoto and the reconcile engine, so patch.Media is ignored.
func (s *RecordService) UpdateRecord(ctx context.Context, ownerID string, collection domain.Collection, id string, patch domain.RecordPatch) (*domain.Record, error) {
	patch.Media = nil
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" && collection != domain.CollectionProfile {
			return nil, domain.ErrNameRequired
		}
		if err := s.checkName(ctx, ownerID, collection, name, id); err != nil {
			return nil, err
		}
		patch.Name = &name
	}

	rec, err := s.records.Update(ctx, ownerID, collection, id, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}
	return rec, nil
}

func (s *RecordService) checkName(ctx context.Context, ownerID string, collection domain.Collection, name, excludeID string) error {
	if !collection.UniqueNames() {
		return nil
	}
	exists, err := s.ExistsByName(ctx, ownerID, collection, name, excludeID)
	if err != nil {
		return err
	}
	if exists {
		return &domain.DuplicateNameError{Collection: collection, Name: name}
	}
	return nil
}

func (s *RecordService) GetRecord(ctx context.Context, ownerID string, collection domain.Collection, id string) (*domain.Record, error) {
	rec, err := s.records.GetByID(ctx, ownerID, collection, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
	}
	return rec, nil
}

func (s *RecordService) ListRecords(ctx context.Context, ownerID string, collection domain.Collection) ([]*domain.Record, error) {
	return s.records.List(ctx, ownerID, collection)
}

// DeleteRecord removes the record, then its local asset and remote object.
// Asset cleanup failures are logged only.
func (s *RecordService) DeleteRecord(ctx context.Context, ownerID string, collection domain.Collection, id string) error {
	rec, err := s.GetRecord(ctx, ownerID, collection, id)
	if err != nil {
		return err
	}
	if err := s.records.Delete(ctx, ownerID, collection, id); err != nil {
		return err
	}

	if rec.Media.LocalPath != "" {
		if err := s.local.Delete(ctx, rec.Media.LocalPath); err != nil {
			s.logger.Warn("failed to delete local photo", "record_id", id, "local_path", rec.Media.LocalPath, "error", err)
		}
	}
	if rec.Media.RemoteURL != "" && s.remote != nil {
		if category, ok := collection.Category(); ok {
			key := photostore.Key(ownerID, category, id)
			if err := s.remote.Delete(ctx, key); err != nil {
				s.logger.Warn("failed to delete remote photo", "record_id", id, "key", key, "error", err)
			}
		}
	}
	return nil
}

func (s *RecordService) GetProfile(ctx context.Context, ownerID string) (*domain.Record, error) {
	return s.GetRecord(ctx, ownerID, domain.CollectionProfile, ownerID)
}

// UpdateProfile patches the owner's profile, creating it on first write.
func (s *RecordService) UpdateProfile(ctx context.Context, ownerID string, patch domain.RecordPatch) (*domain.Record, error) {
	if _, err := s.ensureProfile(ctx, ownerID); err != nil {
		return nil, err
	}
	return s.UpdateRecord(ctx, ownerID, domain.CollectionProfile, ownerID, patch)
}

func (s *RecordService) ensureProfile(ctx context.Context, ownerID string) (*domain.Record, error) {
	rec, err := s.records.GetByID(ctx, ownerID, domain.CollectionProfile, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if rec != nil {
		return rec, nil
	}
	rec, err = s.records.Create(ctx, &domain.Record{
		ID:         ownerID,
		OwnerID:    ownerID,
		Collection: domain.CollectionProfile,
	})
	if err != nil {
		// A concurrent request may have created it first.
		existing, getErr := s.records.GetByID(ctx, ownerID, domain.CollectionProfile, ownerID)
		if getErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	s.logger.Info("profile created", "owner_id", ownerID)
	return rec, nil
}

// AttachPhoto stores an in-memory photo for the record. It uploads directly
// when a remote store is configured and local-only mode is off, and keeps a
// local copy otherwise or when the upload fails. If even the local save
// fails the record keeps its previous media.
func (s *RecordService) AttachPhoto(ctx context.Context, ownerID string, collection domain.Collection, id string, data []byte, mimeType string) (*domain.Record, error) {
	rec, category, err := s.photoTarget(ctx, ownerID, collection, id)
	if err != nil {
		return nil, err
	}

	var media domain.MediaReference
	if url, ok := s.tryUpload(ctx, rec, category, data, mimeType); ok {
		media.RemoteURL = url
	} else {
		localPath, err := s.local.SaveReader(ctx, ownerID, category, photostore.ExtForMimeType(mimeType), bytes.NewReader(data))
		if err != nil {
			s.logger.Error("failed to save photo locally, record left without new photo",
				"owner_id", ownerID, "record_id", id, "error", err)
			return rec, nil
		}
		media.LocalPath = localPath
	}
	return s.setMedia(ctx, rec, media)
}

// AttachPhotoFromURI copies the file at sourceURI into the local asset store
// and, when uploads are enabled, promotes it immediately. The source file is
// never modified.
func (s *RecordService) AttachPhotoFromURI(ctx context.Context, ownerID string, collection domain.Collection, id, sourceURI string) (*domain.Record, error) {
	rec, category, err := s.photoTarget(ctx, ownerID, collection, id)
	if err != nil {
		return nil, err
	}

	localPath, err := s.local.Save(ctx, ownerID, sourceURI, category)
	if err != nil {
		s.logger.Error("failed to save photo locally, record left without new photo",
			"owner_id", ownerID, "record_id", id, "source", sourceURI, "error", err)
		return rec, nil
	}

	media := domain.MediaReference{LocalPath: localPath}
	if s.uploadsEnabled() {
		data, mimeType, err := s.readLocal(ctx, localPath)
		if err != nil {
			s.logger.Warn("failed to read saved photo, leaving it for reconcile", "local_path", localPath, "error", err)
		} else if url, ok := s.tryUpload(ctx, rec, category, data, mimeType); ok {
			media = domain.MediaReference{RemoteURL: url}
			updated, err := s.setMedia(ctx, rec, media)
			if err != nil {
				return nil, err
			}
			if err := s.local.Delete(ctx, localPath); err != nil {
				s.logger.Warn("failed to delete promoted local photo", "local_path", localPath, "error", err)
			}
			return updated, nil
		}
	}
	return s.setMedia(ctx, rec, media)
}

func (s *RecordService) photoTarget(ctx context.Context, ownerID string, collection domain.Collection, id string) (*domain.Record, domain.Category, error) {
	category, ok := collection.Category()
	if !ok {
		return nil, "", fmt.Errorf("%s records cannot carry photos: %w", collection, domain.ErrInvalidCollection)
	}
	if collection == domain.CollectionProfile {
		rec, err := s.ensureProfile(ctx, ownerID)
		return rec, category, err
	}
	rec, err := s.GetRecord(ctx, ownerID, collection, id)
	return rec, category, err
}

func (s *RecordService) uploadsEnabled() bool {
	return !s.localOnly && s.remote != nil
}

func (s *RecordService) tryUpload(ctx context.Context, rec *domain.Record, category domain.Category, data []byte, mimeType string) (string, bool) {
	if !s.uploadsEnabled() {
		return "", false
	}
	key := photostore.Key(rec.OwnerID, category, rec.ID)
	url, err := s.remote.Put(ctx, key, data, mimeType)
	if err != nil {
		s.logger.Warn("direct upload failed, keeping photo locally",
			"owner_id", rec.OwnerID, "record_id", rec.ID, "key", key, "error", err)
		return "", false
	}
	s.logger.Debug("photo uploaded", "owner_id", rec.OwnerID, "record_id", rec.ID, "key", key)
	return url, true
}

// setMedia points the record at media and drops a superseded local file.
func (s *RecordService) setMedia(ctx context.Context, rec *domain.Record, media domain.MediaReference) (*domain.Record, error) {
	updated, err := s.records.Update(ctx, rec.OwnerID, rec.Collection, rec.ID, domain.RecordPatch{Media: &media})
	if err != nil {
		return nil, fmt.Errorf("failed to update record photo: %w", err)
	}
	if old := rec.Media.LocalPath; old != "" && old != media.LocalPath {
		if err := s.local.Delete(ctx, old); err != nil {
			s.logger.Warn("failed to delete superseded local photo", "local_path", old, "error", err)
		}
	}
	return updated, nil
}

func (s *RecordService) readLocal(ctx context.Context, localPath string) ([]byte, string, error) {
	rc, mimeType, err := s.local.Open(ctx, localPath)
	if err != nil {
		return nil, "", err
	}
	defer func() {
		if err := rc.Close(); err != nil {
			s.logger.Error("failed to close local photo", "local_path", localPath, "error", err)
		}
	}()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read local photo: %w", err)
	}
	return data, mimeType, nil
}

// OpenLocalPhoto serves an unsynced photo. The path must belong to ownerID.
func (s *RecordService) OpenLocalPhoto(ctx context.Context, ownerID, localPath string) (io.ReadCloser, string, error) {
	if !strings.HasPrefix(localPath, ownerID+"/") {
		return nil, "", fmt.Errorf("photo %s: %w", localPath, domain.ErrNotFound)
	}
	return s.local.Open(ctx, localPath)
}
