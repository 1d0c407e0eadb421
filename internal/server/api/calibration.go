package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/ayusman/paperbeat/internal/calibration"
	"github.com/ayusman/paperbeat/internal/store"
	"github.com/ayusman/paperbeat/internal/zone"
)

// Calibrator is the calibration side of the running pipeline.
type Calibrator interface {
	// Current returns the active zone set, or nil when uncalibrated.
	Current() *zone.Set
	// RequestCalibration queues an automatic detection on the next frame.
	// It reports false when no pipeline is running to serve it.
	RequestCalibration() bool
	// CalibrateManual lays out zones on explicit corners and activates them.
	CalibrateManual(q zone.Quad) (*zone.Set, error)
	// Restore activates a stored calibration.
	Restore(set *zone.Set) (*zone.Set, error)
}

// CalibrationHandler serves /api/calibration.
type CalibrationHandler struct {
	calibrator Calibrator
}

// NewCalibrationHandler creates a CalibrationHandler.
func NewCalibrationHandler(c Calibrator) *CalibrationHandler {
	return &CalibrationHandler{calibrator: c}
}

type calibrationResponse struct {
	Calibrated bool        `json:"calibrated"`
	ID         string      `json:"id,omitempty"`
	Instrument string      `json:"instrument,omitempty"`
	Quad       *zone.Quad  `json:"quad,omitempty"`
	Zones      []zone.Zone `json:"zones,omitempty"`
	Source     zone.Source `json:"source,omitempty"`
	CreatedAt  string      `json:"created_at,omitempty"`
}

// toCalibrationResponse converts a zone set; nil means uncalibrated.
func toCalibrationResponse(set *zone.Set) calibrationResponse {
	if set == nil {
		return calibrationResponse{}
	}
	q := set.Quad
	return calibrationResponse{
		Calibrated: true,
		ID:         set.ID,
		Instrument: set.Instrument,
		Quad:       &q,
		Zones:      set.Zones,
		Source:     set.Source,
		CreatedAt:  set.CreatedAt.Format(time.RFC3339),
	}
}

// manualRequest carries either a named quad or four unordered corners.
type manualRequest struct {
	Quad    *zone.Quad   `json:"quad"`
	Corners [][2]float64 `json:"corners"`
}

func (m manualRequest) toQuad() (zone.Quad, error) {
	switch {
	case m.Quad != nil && m.Corners != nil:
		return zone.Quad{}, errors.New("give either quad or corners, not both")
	case m.Quad != nil:
		return *m.Quad, nil
	case len(m.Corners) == 4:
		var pts [4]r2.Vec
		for i, c := range m.Corners {
			pts[i] = r2.Vec{X: c[0], Y: c[1]}
		}
		return calibration.OrderCorners(pts), nil
	default:
		return zone.Quad{}, errors.New("corners must hold exactly four points")
	}
}

// ServeHTTP implements the http.Handler interface.
func (h *CalibrationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, toCalibrationResponse(h.calibrator.Current()))
	case http.MethodPost:
		queued := h.calibrator.RequestCalibration()
		writeJSON(w, http.StatusAccepted, map[string]bool{"queued": queued})
	case http.MethodPut:
		h.manual(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *CalibrationHandler) manual(w http.ResponseWriter, r *http.Request) {
	var req manualRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	q, err := req.toQuad()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	set, err := h.calibrator.CalibrateManual(q)
	if err != nil {
		writeCalibrationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCalibrationResponse(set))
}

func writeCalibrationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, calibration.ErrDegenerateGeometry), errors.Is(err, calibration.ErrInvalidZoneCount):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "Failed to calibrate")
	}
}

// HistoryHandler serves /api/calibrations and /api/calibrations/{id}.
type HistoryHandler struct {
	store      *store.Store
	calibrator Calibrator
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(s *store.Store, c Calibrator) *HistoryHandler {
	return &HistoryHandler{store: s, calibrator: c}
}

type listCalibrationsResponse struct {
	Calibrations []calibrationResponse `json:"calibrations"`
}

// ServeHTTP implements the http.Handler interface.
//
//	GET    /api/calibrations              newest first, ?limit=N
//	GET    /api/calibrations/{id}
//	POST   /api/calibrations/{id}/restore make a stored calibration active
//	DELETE /api/calibrations/{id}
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/calibrations")
	path = strings.Trim(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	id, action, _ := strings.Cut(path, "/")
	switch {
	case action == "" && r.Method == http.MethodGet:
		h.get(w, id)
	case action == "" && r.Method == http.MethodDelete:
		h.delete(w, id)
	case action == "restore" && r.Method == http.MethodPost:
		h.restore(w, id)
	case action != "" && action != "restore":
		writeError(w, http.StatusNotFound, "Not found")
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *HistoryHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r, 20, 200)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	sets, err := h.store.Calibrations().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list calibrations")
		return
	}

	response := listCalibrationsResponse{
		Calibrations: make([]calibrationResponse, 0, len(sets)),
	}
	for _, set := range sets {
		response.Calibrations = append(response.Calibrations, toCalibrationResponse(set))
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *HistoryHandler) get(w http.ResponseWriter, id string) {
	set, err := h.store.Calibrations().GetByID(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Calibration not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get calibration")
		return
	}
	writeJSON(w, http.StatusOK, toCalibrationResponse(set))
}

func (h *HistoryHandler) delete(w http.ResponseWriter, id string) {
	if cur := h.calibrator.Current(); cur != nil && cur.ID == id {
		writeError(w, http.StatusConflict, "Cannot delete the active calibration")
		return
	}

	err := h.store.Calibrations().Delete(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Calibration not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete calibration")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HistoryHandler) restore(w http.ResponseWriter, id string) {
	set, err := h.store.Calibrations().GetByID(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Calibration not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get calibration")
		return
	}

	active, err := h.calibrator.Restore(set)
	if err != nil {
		writeCalibrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCalibrationResponse(active))
}
