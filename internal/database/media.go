package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"media-conversions/internal/logging"
	"media-conversions/internal/media"
	"media-conversions/internal/metrics"
)

var mediaColumns = []string{
	"id", "uuid", "model_type", "model_id", "collection_name", "name", "file_name",
	"mime_type", "disk", "conversions_disk", "size",
	"manipulations", "custom_properties", "generated_conversions", "responsive_images",
	"order_column", "created_at", "updated_at", "deleted_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMedia(row rowScanner) (*media.Media, error) {
	var (
		m                                        media.Media
		mimeType, conversionsDisk                sql.NullString
		manips, props, generated, responsiveImgs string
		createdAt, updatedAt                     int64
		deletedAt                                sql.NullInt64
	)

	err := row.Scan(
		&m.ID, &m.UUID, &m.ModelType, &m.ModelID, &m.CollectionName, &m.Name, &m.FileName,
		&mimeType, &m.Disk, &conversionsDisk, &m.Size,
		&manips, &props, &generated, &responsiveImgs,
		&m.OrderColumn, &createdAt, &updatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	m.MimeType = mimeType.String
	m.ConversionsDisk = conversionsDisk.String
	m.CreatedAt = time.UnixMilli(createdAt)
	m.UpdatedAt = time.UnixMilli(updatedAt)
	if deletedAt.Valid {
		t := time.UnixMilli(deletedAt.Int64)
		m.DeletedAt = &t
	}

	for _, col := range []struct {
		name string
		raw  string
		dst  any
	}{
		{"manipulations", manips, &m.Manipulations},
		{"custom_properties", props, &m.CustomProperties},
		{"generated_conversions", generated, &m.GeneratedConversions},
		{"responsive_images", responsiveImgs, &m.ResponsiveImages},
	} {
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return nil, fmt.Errorf("media %d: decode %s: %w", m.ID, col.name, err)
		}
	}

	return &m, nil
}

// encodeJSON renders a map column. A nil map is stored as an empty object.
func encodeJSON[M ~map[K]V, K comparable, V any](v M) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type encodedMaps struct {
	manipulations, customProperties, generated, responsive string
}

func encodeMaps(m *media.Media) (encodedMaps, error) {
	var (
		e   encodedMaps
		err error
	)
	if e.manipulations, err = encodeJSON(m.Manipulations); err != nil {
		return e, fmt.Errorf("encode manipulations: %w", err)
	}
	if e.customProperties, err = encodeJSON(m.CustomProperties); err != nil {
		return e, fmt.Errorf("encode custom_properties: %w", err)
	}
	if e.generated, err = encodeJSON(m.GeneratedConversions); err != nil {
		return e, fmt.Errorf("encode generated_conversions: %w", err)
	}
	if e.responsive, err = encodeJSON(m.ResponsiveImages); err != nil {
		return e, fmt.Errorf("encode responsive_images: %w", err)
	}
	return e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func getMedia(ctx context.Context, q querier, id int64) (*media.Media, error) {
	query, args, err := psql.Select(mediaColumns...).
		From("media").
		Where(sq.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for getMedia: %w", err)
	}

	m, err := scanMedia(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("media %d: %w", id, media.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query media %d: %w", id, err)
	}
	return m, nil
}

// upsertMedia writes every column of m, inserting the row when its ID is
// not present yet.
func upsertMedia(ctx context.Context, q querier, m *media.Media) error {
	enc, err := encodeMaps(m)
	if err != nil {
		return err
	}

	query, args, err := psql.Insert("media").
		Columns(mediaColumns...).
		Values(
			m.ID, m.UUID, m.ModelType, m.ModelID, m.CollectionName, m.Name, m.FileName,
			nullString(m.MimeType), m.Disk, nullString(m.ConversionsDisk), m.Size,
			enc.manipulations, enc.customProperties, enc.generated, enc.responsive,
			m.OrderColumn, m.CreatedAt.UnixMilli(), m.UpdatedAt.UnixMilli(), nullTime(m.DeletedAt),
		).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
			uuid = excluded.uuid,
			model_type = excluded.model_type,
			model_id = excluded.model_id,
			collection_name = excluded.collection_name,
			name = excluded.name,
			file_name = excluded.file_name,
			mime_type = excluded.mime_type,
			disk = excluded.disk,
			conversions_disk = excluded.conversions_disk,
			size = excluded.size,
			manipulations = excluded.manipulations,
			custom_properties = excluded.custom_properties,
			generated_conversions = excluded.generated_conversions,
			responsive_images = excluded.responsive_images,
			order_column = excluded.order_column,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build SQL query for upsertMedia: %w", err)
	}

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to write media %d: %w", m.ID, err)
	}
	return nil
}

func prepareForWrite(m *media.Media) {
	now := time.Now()
	if m.UUID == "" {
		m.UUID = uuid.NewString()
	}
	if m.CollectionName == "" {
		m.CollectionName = "default"
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
}

// Get returns the record with the given id, trashed or not.
func (r *Repository) Get(ctx context.Context, id int64) (*media.Media, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_media", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var m *media.Media
	m, err = getMedia(ctx, r.db, id)
	return m, err
}

// Create inserts m as a new record and assigns its ID and UUID.
func (r *Repository) Create(ctx context.Context, m *media.Media) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("create_media", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	prepareForWrite(m)
	enc, err := encodeMaps(m)
	if err != nil {
		return err
	}

	query, args, err := psql.Insert("media").
		Columns(mediaColumns[1:]...).
		Values(
			m.UUID, m.ModelType, m.ModelID, m.CollectionName, m.Name, m.FileName,
			nullString(m.MimeType), m.Disk, nullString(m.ConversionsDisk), m.Size,
			enc.manipulations, enc.customProperties, enc.generated, enc.responsive,
			m.OrderColumn, m.CreatedAt.UnixMilli(), m.UpdatedAt.UnixMilli(), nullTime(m.DeletedAt),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build SQL query for Create: %w", err)
	}

	var res sql.Result
	res, err = r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to insert media %s: %w", m.FileName, err)
	}
	m.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read id of media %s: %w", m.FileName, err)
	}

	logging.Debug("database: created media %d (%s)", m.ID, m.FileName)
	return nil
}

// Save writes m. A record without an ID is created.
func (r *Repository) Save(ctx context.Context, m *media.Media) error {
	if m.ID == 0 {
		return r.Create(ctx, m)
	}

	start := time.Now()
	var err error
	defer func() { recordQuery("save_media", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	prepareForWrite(m)
	err = upsertMedia(ctx, r.db, m)
	return err
}

// Update reads the record, applies fn and writes the result in one
// transaction. Callers for the same id are serialized.
func (r *Repository) Update(ctx context.Context, id int64, fn func(m *media.Media) error) (*media.Media, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	start := time.Now()
	var err error
	defer func() { recordQuery("update_media", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var tx *sql.Tx
	tx, err = r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logging.Error("database: rollback of media %d failed: %v", id, rbErr)
		}
	}()

	var m *media.Media
	m, err = getMedia(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err = fn(m); err != nil {
		return nil, err
	}
	m.ID = id
	prepareForWrite(m)
	if err = upsertMedia(ctx, tx, m); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit media %d: %w", id, err)
	}
	return m.Clone(), nil
}

// Delete soft deletes the record. Deleting a trashed record is a no-op.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	_, err := r.Update(ctx, id, func(m *media.Media) error {
		if m.DeletedAt == nil {
			now := time.Now()
			m.DeletedAt = &now
		}
		return nil
	})
	return err
}

// Restore clears the soft-delete mark.
func (r *Repository) Restore(ctx context.Context, id int64) error {
	_, err := r.Update(ctx, id, func(m *media.Media) error {
		m.DeletedAt = nil
		return nil
	})
	return err
}

// ForceDelete removes the row.
func (r *Repository) ForceDelete(ctx context.Context, id int64) error {
	unlock := r.locks.Lock(id)
	defer unlock()

	start := time.Now()
	var err error
	defer func() { recordQuery("force_delete_media", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query, args, err := psql.Delete("media").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build SQL query for ForceDelete: %w", err)
	}

	var res sql.Result
	res, err = r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete media %d: %w", id, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("media %d: %w", id, media.ErrNotFound)
	}
	return nil
}

// ListByModel returns the live media attached to one model, ordered by
// order_column. An empty or "*" collection matches every collection.
func (r *Repository) ListByModel(ctx context.Context, modelType string, modelID int64, collection string) ([]*media.Media, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_media_by_model", start, err) }()

	builder := psql.Select(mediaColumns...).
		From("media").
		Where(sq.Eq{"model_type": modelType, "model_id": modelID, "deleted_at": nil}).
		OrderBy("order_column", "id")
	if collection != "" && collection != "*" {
		builder = builder.Where(sq.Eq{"collection_name": collection})
	}

	var list []*media.Media
	list, err = r.list(ctx, builder)
	return list, err
}

// ListMissingConversions returns the live media of modelType (all types
// when empty) that lack at least one of the named conversions.
func (r *Repository) ListMissingConversions(ctx context.Context, modelType string, names []string) ([]*media.Media, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_missing_conversions", start, err) }()

	builder := psql.Select(mediaColumns...).
		From("media").
		Where(sq.Eq{"deleted_at": nil}).
		OrderBy("id")
	if modelType != "" {
		builder = builder.Where(sq.Eq{"model_type": modelType})
	}

	var all []*media.Media
	all, err = r.list(ctx, builder)
	if err != nil {
		return nil, err
	}

	var missing []*media.Media
	for _, m := range all {
		for _, name := range names {
			if !m.HasGeneratedConversion(name) {
				missing = append(missing, m)
				break
			}
		}
	}
	return missing, nil
}

func (r *Repository) list(ctx context.Context, builder sq.SelectBuilder) ([]*media.Media, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list media: %w", err)
	}
	defer rows.Close()

	var out []*media.Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetStats counts live and trashed records for the metrics collector.
func (r *Repository) GetStats() metrics.Stats {
	start := time.Now()
	var err error
	defer func() { recordQuery("stats", start, err) }()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var total, trashed int
	err = r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(deleted_at) FROM media",
	).Scan(&total, &trashed)
	if err != nil {
		logging.Warn("database: failed to collect stats: %v", err)
		return metrics.Stats{}
	}
	return metrics.Stats{TotalMedia: total, TrashedMedia: trashed}
}
