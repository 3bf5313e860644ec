package cameras

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"drivewatch/internal/db"
	"drivewatch/internal/fileio"
	"drivewatch/internal/geo"
	"drivewatch/internal/types"
)

// idNamespace seeds deterministic IDs for dataset rows that carry none, so a
// camera keeps the same ID across reloads and alert dedup survives restarts.
var idNamespace = uuid.MustParse("6f1c2d9e-3b7a-5e84-9d21-0c4b8a7f3e15")

// record is one entry of the flat JSON dataset.
type record struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	Address    string   `json:"address"`
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	Approaches []string `json:"approaches"`
}

// DeriveID returns the deterministic ID for a camera of type t at p.
func DeriveID(t types.CameraType, p types.Position) string {
	name := fmt.Sprintf("%s:%.6f:%.6f", t, p.Latitude, p.Longitude)
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}

// Load reads the camera dataset at path (optionally ".zst" compressed).
//
// A missing or empty dataset is not fatal: Load logs one warning and returns
// an empty index together with a nil error, and the engine runs without
// camera alerts. Malformed JSON is an error. Individual rows with an unknown
// type, invalid coordinates or an unparseable approach code are skipped.
func Load(path string, zones *Zones, logger types.Logger) (*Index, error) {
	if logger == nil {
		logger = types.NopLogger{}
	}
	if path == "" {
		warnMissing(logger, path, "no dataset configured")
		return NewIndex(nil, zones), nil
	}

	r, err := fileio.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		warnMissing(logger, path, "file not found")
		return NewIndex(nil, zones), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open camera dataset: %w", err)
	}
	defer r.Close()

	defs, skipped, err := decode(r)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		logger.Warn("Skipped invalid camera rows", "path", path, "skipped", skipped)
	}
	if len(defs) == 0 {
		warnMissing(logger, path, "dataset is empty")
		return NewIndex(nil, zones), nil
	}

	ix := NewIndex(defs, zones)
	logger.Info("Camera dataset loaded", "path", path, "cameras", ix.Len())
	return ix, nil
}

func warnMissing(logger types.Logger, path, reason string) {
	logger.Warn("Camera dataset unavailable, camera alerts disabled",
		"code", string(types.ErrCodeMissingCameraDataset),
		"path", path,
		"reason", reason,
	)
}

func decode(r io.Reader) ([]types.CameraDef, int, error) {
	var records []record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, nil
		}
		return nil, 0, types.NewAppError(types.ErrCodeInvalidCameraDataset, "malformed camera dataset", err)
	}

	defs := make([]types.CameraDef, 0, len(records))
	skipped := 0
	for _, rec := range records {
		def, err := rec.toDef()
		if err != nil {
			skipped++
			continue
		}
		defs = append(defs, def)
	}
	return defs, skipped, nil
}

func (rec record) toDef() (types.CameraDef, error) {
	ct, ok := types.ParseCameraType(rec.Type)
	if !ok {
		return types.CameraDef{}, fmt.Errorf("unknown camera type %q", rec.Type)
	}
	pos := types.Position{Latitude: rec.Latitude, Longitude: rec.Longitude}
	if err := types.ValidatePosition(pos); err != nil {
		return types.CameraDef{}, err
	}

	headings := make([]float64, 0, len(rec.Approaches))
	for _, code := range rec.Approaches {
		h, err := geo.ParseHeadingCode(code)
		if err != nil {
			return types.CameraDef{}, err
		}
		headings = append(headings, h)
	}

	id := strings.TrimSpace(rec.ID)
	if id == "" {
		id = DeriveID(ct, pos)
	}
	return types.CameraDef{
		ID:               id,
		Type:             ct,
		Address:          rec.Address,
		Latitude:         rec.Latitude,
		Longitude:        rec.Longitude,
		ApproachHeadings: headings,
	}, nil
}

// IsDatabaseSource reports whether src is a PostgreSQL connection URL.
func IsDatabaseSource(src string) bool {
	return strings.HasPrefix(src, "postgres://") || strings.HasPrefix(src, "postgresql://")
}

// CameraLister is the read side of the camera table.
type CameraLister interface {
	List(ctx context.Context) ([]types.CameraDef, error)
}

// LoadFromSource builds the index from a file path or a postgres:// URL.
// Database sources follow the same missing-dataset policy as files: an
// empty table is a warning, not an error. Connection failures are errors.
func LoadFromSource(ctx context.Context, src string, zones *Zones, logger types.Logger) (*Index, error) {
	if !IsDatabaseSource(src) {
		return Load(src, zones, logger)
	}

	pool, err := pgxpool.New(ctx, src)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to connect to camera database", err)
	}
	defer pool.Close()

	return LoadFromLister(ctx, db.NewCameraRepository(pool), zones, logger)
}

// LoadFromLister builds the index from any CameraLister.
func LoadFromLister(ctx context.Context, lister CameraLister, zones *Zones, logger types.Logger) (*Index, error) {
	if logger == nil {
		logger = types.NopLogger{}
	}
	defs, err := lister.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range defs {
		if defs[i].ID == "" {
			defs[i].ID = DeriveID(defs[i].Type, defs[i].Position())
		}
	}
	if len(defs) == 0 {
		warnMissing(logger, "database", "camera table is empty")
		return NewIndex(nil, zones), nil
	}
	ix := NewIndex(defs, zones)
	logger.Info("Camera dataset loaded", "source", "database", "cameras", ix.Len())
	return ix, nil
}
