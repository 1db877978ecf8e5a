package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/vbonduro/pantrysync/internal/dbx"
	"github.com/vbonduro/pantrysync/internal/domain"
)

const recordColumns = `id, owner_id, collection, name, name_lower, photo_url, local_photo_path, fields, added_at, updated_at`

// filterColumns whitelists the columns Where may filter on.
var filterColumns = map[string]bool{
	"id":         true,
	"name_lower": true,
	"photo_url":  true,
}

// RecordStore is the owner- and collection-scoped document repository.
type RecordStore struct {
	db *sql.DB
}

func NewRecordStore(db *sql.DB) *RecordStore {
	return &RecordStore{db: db}
}

// Create inserts rec and returns the stored copy. An empty ID is replaced
// with a generated one.
func (s *RecordStore) Create(ctx context.Context, rec *domain.Record) (*domain.Record, error) {
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	media := rec.Media.Normalize()

	fields, err := encodeFields(rec.Fields)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (id, owner_id, collection, name, name_lower, photo_url, local_photo_path, fields)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, rec.OwnerID, string(rec.Collection), rec.Name, domain.FoldName(rec.Name),
		nullString(media.RemoteURL), nullString(media.LocalPath), fields)
	if err != nil {
		return nil, fmt.Errorf("failed to create record: %w", err)
	}

	return s.GetByID(ctx, rec.OwnerID, rec.Collection, id)
}

// GetByID returns nil, nil when the record does not exist.
func (s *RecordStore) GetByID(ctx context.Context, ownerID string, collection domain.Collection, id string) (*domain.Record, error) {
	return getByID(ctx, s.db, ownerID, collection, id)
}

func getByID(ctx context.Context, q dbx.DBTX, ownerID string, collection domain.Collection, id string) (*domain.Record, error) {
	rec, err := scanRecord(q.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM records WHERE owner_id = ? AND collection = ? AND id = ?
	`, ownerID, string(collection), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

func (s *RecordStore) List(ctx context.Context, ownerID string, collection domain.Collection) ([]*domain.Record, error) {
	return s.query(ctx, "list records", `
		SELECT `+recordColumns+` FROM records
		WHERE owner_id = ? AND collection = ? ORDER BY name_lower ASC, id ASC
	`, ownerID, string(collection))
}

// Where returns the records whose column equals value.
func (s *RecordStore) Where(ctx context.Context, ownerID string, collection domain.Collection, column string, value any) ([]*domain.Record, error) {
	if !filterColumns[column] {
		return nil, fmt.Errorf("unsupported filter column %q", column)
	}
	return s.query(ctx, "filter records", `
		SELECT `+recordColumns+` FROM records
		WHERE owner_id = ? AND collection = ? AND `+column+` = ? ORDER BY name_lower ASC, id ASC
	`, ownerID, string(collection), value)
}

// FindByNameLower is the equality query behind the duplicate-name check.
func (s *RecordStore) FindByNameLower(ctx context.Context, ownerID string, collection domain.Collection, nameLower string) ([]*domain.Record, error) {
	return s.Where(ctx, ownerID, collection, "name_lower", nameLower)
}

// Update applies patch inside a transaction and returns the updated record.
// A media patch replaces both photo columns in the same statement.
func (s *RecordStore) Update(ctx context.Context, ownerID string, collection domain.Collection, id string, patch domain.RecordPatch) (*domain.Record, error) {
	err := dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		current, err := getByID(ctx, tx, ownerID, collection, id)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
		}

		name := current.Name
		if patch.Name != nil {
			name = strings.TrimSpace(*patch.Name)
		}
		media := current.Media
		if patch.Media != nil {
			media = *patch.Media
		}
		media = media.Normalize()

		fields, err := encodeFields(mergeFields(current.Fields, patch.Fields))
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE records
			SET name = ?, name_lower = ?, photo_url = ?, local_photo_path = ?, fields = ?, updated_at = datetime('now')
			WHERE owner_id = ? AND collection = ? AND id = ?
		`, name, domain.FoldName(name), nullString(media.RemoteURL), nullString(media.LocalPath), fields,
			ownerID, string(collection), id)
		if err != nil {
			return fmt.Errorf("failed to update record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, ownerID, collection, id)
}

// PromoteMedia points the record at url and clears its local path, but only
// while the record still references localPath. It reports false when the
// record was re-attached or deleted in the meantime.
func (s *RecordStore) PromoteMedia(ctx context.Context, ownerID string, collection domain.Collection, id, localPath, url string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE records
		SET photo_url = ?, local_photo_path = NULL, updated_at = datetime('now')
		WHERE owner_id = ? AND collection = ? AND id = ? AND local_photo_path = ?
	`, url, ownerID, string(collection), id, localPath)
	if err != nil {
		return false, fmt.Errorf("failed to promote record media: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

func (s *RecordStore) Delete(ctx context.Context, ownerID string, collection domain.Collection, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM records WHERE owner_id = ? AND collection = ? AND id = ?
	`, ownerID, string(collection), id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
	}

	return nil
}

// ListPendingOwners returns every owner with at least one unsynced local photo.
func (s *RecordStore) ListPendingOwners(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT owner_id FROM records
		WHERE local_photo_path IS NOT NULL AND photo_url IS NULL
		ORDER BY owner_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending owners: %w", err)
	}
	defer closeRows(rows)

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		owners = append(owners, owner)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating owners: %w", err)
	}
	return owners, nil
}

// CountPending returns the number of the owner's records awaiting sync.
func (s *RecordStore) CountPending(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM records
		WHERE owner_id = ? AND local_photo_path IS NOT NULL AND photo_url IS NULL
	`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending records: %w", err)
	}
	return n, nil
}

func (s *RecordStore) query(ctx context.Context, op, query string, args ...any) ([]*domain.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer closeRows(rows)

	var records []*domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.Record, error) {
	var (
		rec        domain.Record
		collection string
		photoURL   sql.NullString
		localPath  sql.NullString
		fields     string
	)
	if err := row.Scan(&rec.ID, &rec.OwnerID, &collection, &rec.Name, &rec.NameLower,
		&photoURL, &localPath, &fields, &rec.AddedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Collection = domain.Collection(collection)
	rec.Media = domain.MediaReference{RemoteURL: photoURL.String, LocalPath: localPath.String}
	if fields != "" && fields != "{}" {
		if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode fields of %s: %w", rec.ID, err)
		}
	}
	return &rec, nil
}

func encodeFields(fields map[string]any) (string, error) {
	if len(fields) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to encode fields: %w", err)
	}
	return string(b), nil
}

func mergeFields(current, patch map[string]any) map[string]any {
	merged := make(map[string]any, len(current)+len(patch))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range patch {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	return merged
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		slog.Error("failed to close rows", "error", err)
	}
}
