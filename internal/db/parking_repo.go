package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"drivewatch/internal/types"
)

// ParkingRepository persists confirmed parking records. Reversed records are
// flagged in place; rows are never deleted so the replay analyzer and
// support tooling can see every confirmation the engine made.
type ParkingRepository struct {
	db DBTX
}

// NewParkingRepository creates a ParkingRepository backed by db.
func NewParkingRepository(db DBTX) *ParkingRepository {
	return &ParkingRepository{db: db}
}

// Insert stores a newly confirmed record. Re-inserting the same ID is a
// no-op, so retries after a timeout are safe.
func (r *ParkingRepository) Insert(ctx context.Context, rec *types.ParkingRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO parking_records
		 (id, session_id, device_id, confirmed_at, latitude, longitude,
		  dwell_seconds, source, is_at_intersection, reversed, reversed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID,
		rec.SessionID,
		nilIfEmpty(rec.DeviceID),
		rec.ConfirmedAt,
		rec.Location.Latitude,
		rec.Location.Longitude,
		rec.DwellSeconds,
		string(rec.Source),
		rec.IsAtIntersection,
		rec.Reversed,
		rec.ReversedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert parking record", err)
	}
	return nil
}

// MarkReversed flags a record as undone by a post-confirm unwind.
func (r *ParkingRepository) MarkReversed(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE parking_records
		 SET reversed = TRUE, reversed_at = $2
		 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark parking record reversed", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundParkingRecord, "parking record not found", nil).
			WithDetails(map[string]any{"id": id})
	}
	return nil
}

// LatestForDevice returns the most recent non-reversed record for a device.
func (r *ParkingRepository) LatestForDevice(ctx context.Context, deviceID string) (*types.ParkingRecord, error) {
	var (
		rec    types.ParkingRecord
		devID  *string
		source string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, session_id, device_id, confirmed_at, latitude, longitude,
		        dwell_seconds, source, is_at_intersection, reversed, reversed_at
		 FROM parking_records
		 WHERE device_id = $1 AND reversed = FALSE
		 ORDER BY confirmed_at DESC
		 LIMIT 1`,
		deviceID,
	).Scan(
		&rec.ID,
		&rec.SessionID,
		&devID,
		&rec.ConfirmedAt,
		&rec.Location.Latitude,
		&rec.Location.Longitude,
		&rec.DwellSeconds,
		&source,
		&rec.IsAtIntersection,
		&rec.Reversed,
		&rec.ReversedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundParkingRecord, "no parking record for device", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load parking record", err)
	}
	if devID != nil {
		rec.DeviceID = *devID
	}
	rec.Source = types.ParkingSource(source)
	return &rec, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
