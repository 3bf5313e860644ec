package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"drivewatch/internal/types"
)

const errCodeBatchTooLarge types.ErrorCode = "validation_batch_too_large"

// SampleError reports one rejected sample of a batch.
type SampleError struct {
	Index   int    `json:"index"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// IngestResponse is the body of a successful POST /v1/samples.
type IngestResponse struct {
	Accepted int           `json:"accepted"`
	Dropped  int           `json:"dropped"`
	Errors   []SampleError `json:"errors,omitempty"`
}

// HandleSamples accepts one sample object or an array of them. Samples are
// processed in order; a rejected sample in a batch is reported and the rest
// continue. A lone rejected sample is a 400.
func (s *Server) HandleSamples(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		Error(w, r, decodeError(err))
		return
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		Error(w, r, types.NewAppError(errCodeInvalidJSON, "request body must not be empty", nil))
		return
	}

	var (
		samples []types.SensorSample
		batch   = body[0] == '['
	)
	if batch {
		if err := decodeStrict(body, &samples); err != nil {
			Error(w, r, err)
			return
		}
		if len(samples) > s.MaxBatch {
			Error(w, r, types.NewAppErrorWithDetails(errCodeBatchTooLarge,
				fmt.Sprintf("batch of %d samples exceeds limit of %d", len(samples), s.MaxBatch), nil,
				map[string]any{"limit": s.MaxBatch, "size": len(samples)}))
			return
		}
	} else {
		var one types.SensorSample
		if err := decodeStrict(body, &one); err != nil {
			Error(w, r, err)
			return
		}
		samples = []types.SensorSample{one}
	}

	deviceID := types.GetDeviceID(r.Context())
	var resp IngestResponse
	for i, sample := range samples {
		if sample.DeviceID == "" {
			sample.DeviceID = deviceID
		}
		err := s.Ingester.Ingest(r.Context(), sample)
		if err == nil {
			resp.Accepted++
			continue
		}

		var appErr *types.AppError
		if !errors.As(err, &appErr) {
			// Cancellation or an engine fault; the remaining samples are not
			// attempted.
			s.Logger.Error("sample ingest failed", "index", i, "error", err)
			Error(w, r, err)
			return
		}
		if !batch {
			Error(w, r, appErr)
			return
		}
		resp.Dropped++
		resp.Errors = append(resp.Errors, SampleError{Index: i, Code: string(appErr.Code), Message: appErr.Message})
	}

	JSON(w, r, http.StatusAccepted, resp)
}

// HandleDevices lists devices with live engines.
func (s *Server) HandleDevices(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, map[string][]string{"devices": s.Devices.Devices()})
}

// HandleLatestParking returns the device's most recent confirmed parking
// record that has not been reversed.
func (s *Server) HandleLatestParking(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Parking.LatestForDevice(r.Context(), chi.URLParam(r, "deviceID"))
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, rec)
}
