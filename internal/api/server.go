// Package api serves the dashboard REST surface and a WebSocket stream of
// live device events.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"curtainctl/internal/history"
	"curtainctl/internal/serialbridge"
)

// Server exposes the host bridge over HTTP.
type Server struct {
	device *serialbridge.Manager
	hist   *history.Store
	hub    *Hub
}

func NewServer(device *serialbridge.Manager, hist *history.Store) *Server {
	s := &Server{device: device, hist: hist, hub: NewHub()}
	device.OnAny(s.hub.Broadcast)
	return s
}

// Router builds the /api/v1 route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/light/current", s.getCurrentLight).Methods(http.MethodGet)
	v1.HandleFunc("/light/history", s.getLightHistory).Methods(http.MethodGet)
	v1.HandleFunc("/curtain/control", s.controlCurtain).Methods(http.MethodPost)
	v1.HandleFunc("/curtain/status", s.getCurtainStatus).Methods(http.MethodGet)
	v1.HandleFunc("/curtain/mode", s.setMode).Methods(http.MethodPost)
	v1.HandleFunc("/curtain/thresholds", s.getThresholds).Methods(http.MethodGet)
	v1.HandleFunc("/curtain/thresholds", s.setThresholds).Methods(http.MethodPost)
	v1.HandleFunc("/curtain/operations", s.getOperations).Methods(http.MethodGet)
	v1.HandleFunc("/system/status", s.getSystemStatus).Methods(http.MethodGet)
	v1.HandleFunc("/system/calibrate", s.calibrate).Methods(http.MethodPost)

	r.HandleFunc("/ws", s.hub.Serve)

	return r
}

func (s *Server) getCurrentLight(w http.ResponseWriter, _ *http.Request) {
	st := s.device.State()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"value":     st.Light,
		"timestamp": time.Now().Format(time.RFC3339),
		"unit":      "analog (0-1023)",
	})
}

func (s *Server) getLightHistory(w http.ResponseWriter, r *http.Request) {
	if s.hist == nil {
		writeError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	hours := intQuery(r, "hours", 24)
	readings, err := s.hist.RecentLightReadings(time.Now().Add(-time.Duration(hours)*time.Hour), 1000)
	if err != nil {
		logrus.Errorf("api: light history: %s", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"readings": readings,
		"count":    len(readings),
	})
}

func (s *Server) controlCurtain(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if !s.device.IsConnected() {
		writeError(w, http.StatusServiceUnavailable, "device not connected")
		return
	}

	var err error
	switch body.Action {
	case "open":
		err = s.device.OpenCurtain()
	case "close":
		err = s.device.CloseCurtain()
	case "stop":
		err = s.device.StopMotor()
	default:
		writeError(w, http.StatusBadRequest, "invalid action")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.hist != nil && body.Action != "stop" {
		if err := s.hist.LogOperation(body.Action, "api", s.device.State().Light); err != nil {
			logrus.Errorf("api: log operation: %s", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "action": body.Action})
}

func (s *Server) getCurtainStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.device.State()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"position":    st.Position,
		"motor_state": st.Motor,
		"mode":        st.Mode,
	})
}

func (s *Server) setMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if body.Mode != "auto" && body.Mode != "manual" {
		writeError(w, http.StatusBadRequest, "invalid mode")
		return
	}

	if !s.device.IsConnected() {
		writeError(w, http.StatusServiceUnavailable, "device not connected")
		return
	}
	if err := s.device.SetMode(body.Mode); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "mode": body.Mode})
}

func (s *Server) getThresholds(w http.ResponseWriter, _ *http.Request) {
	st := s.device.State()
	writeJSON(w, http.StatusOK, map[string]int{
		"dark_threshold":   st.OpenThreshold,
		"bright_threshold": st.CloseThreshold,
	})
}

// setThresholds forwards thresholds to the device. The device clamps to its
// sensor range itself; the host only rejects non-numeric input.
func (s *Server) setThresholds(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Dark   *int `json:"dark_threshold"`
		Bright *int `json:"bright_threshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid threshold values")
		return
	}

	if !s.device.IsConnected() {
		writeError(w, http.StatusServiceUnavailable, "device not connected")
		return
	}

	if body.Dark != nil {
		if err := s.device.SetOpenThreshold(*body.Dark); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if body.Bright != nil {
		if err := s.device.SetCloseThreshold(*body.Bright); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) getOperations(w http.ResponseWriter, r *http.Request) {
	if s.hist == nil {
		writeError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	hours := intQuery(r, "hours", 24)
	ops, err := s.hist.RecentOperations(time.Now().Add(-time.Duration(hours)*time.Hour), 200)
	if err != nil {
		logrus.Errorf("api: operations: %s", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"operations": ops,
		"count":      len(ops),
	})
}

func (s *Server) getSystemStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.device.State())
}

func (s *Server) calibrate(w http.ResponseWriter, _ *http.Request) {
	if !s.device.IsConnected() {
		writeError(w, http.StatusServiceUnavailable, "device not connected")
		return
	}
	if err := s.device.Calibrate(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "calibration started"})
}

func intQuery(r *http.Request, name string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(name)); err == nil && v > 0 {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		logrus.Errorf("api: encode response: %s", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
