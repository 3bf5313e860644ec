package db

import (
	"context"

	"drivewatch/internal/types"
)

// CameraRepository reads the cameras table, the database form of the camera
// reference dataset.
type CameraRepository struct {
	db DBTX
}

// NewCameraRepository creates a CameraRepository backed by db.
func NewCameraRepository(db DBTX) *CameraRepository {
	return &CameraRepository{db: db}
}

// List returns every active camera. Rows with an unrecognized camera_type are
// skipped rather than failing the whole load.
func (r *CameraRepository) List(ctx context.Context) ([]types.CameraDef, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, camera_type, address, latitude, longitude, approach_headings
		 FROM cameras
		 WHERE retired_at IS NULL
		 ORDER BY id`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list cameras", err)
	}
	defer rows.Close()

	var out []types.CameraDef
	for rows.Next() {
		var (
			def      types.CameraDef
			rawType  string
			address  *string
			headings []float64
		)
		if err := rows.Scan(&def.ID, &rawType, &address, &def.Latitude, &def.Longitude, &headings); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan camera row", err)
		}
		ct, ok := types.ParseCameraType(rawType)
		if !ok {
			continue
		}
		def.Type = ct
		if address != nil {
			def.Address = *address
		}
		def.ApproachHeadings = headings
		out = append(out, def)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating camera rows", err)
	}
	return out, nil
}
