package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/reneboer/Vera-Dutch-Smartmeter/internal/panel"
	"github.com/reneboer/Vera-Dutch-Smartmeter/internal/store"

	"github.com/go-chi/chi/v5"
)

// SaveHistory lists past save cycles. *store.Repo implements it.
type SaveHistory interface {
	ListSaves(ctx context.Context, deviceID, limit int) ([]store.SaveRecord, error)
}

type Server struct {
	panel   *panel.Service
	history SaveHistory
	events  http.Handler
}

// NewServer wires the panel endpoints. history and events may be nil.
func NewServer(svc *panel.Service, history SaveHistory, events http.Handler) *Server {
	return &Server{panel: svc, history: history, events: events}
}

func (s *Server) Register(r chi.Router) {
	if s.events != nil {
		r.Get("/ws", s.events.ServeHTTP)
	}

	r.Route("/panel/{device_id}", func(r chi.Router) {
		r.Get("/settings", s.handleSettingsPage)
		r.Post("/settings", s.handleSettingsSave)
	})

	r.Route("/api/devices", func(r chi.Router) {
		r.Get("/power-sources", s.handlePowerSources)
		r.Get("/{device_id}/variables/{name}", s.handleVariableGet)
		r.Put("/{device_id}/variables/{name}", s.handleVariablePut)
		r.Get("/{device_id}/save-status", s.handleSaveStatus)
		r.Get("/{device_id}/saves", s.handleSavesList)
		r.Get("/{device_id}/display/meter", s.handleMeterDisplay)
		r.Get("/{device_id}/display/gas", s.handleGasDisplay)
	})
}

func (s *Server) handleSettingsPage(w http.ResponseWriter, r *http.Request) {
	deviceID, err := parseDeviceID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := panel.LookupVariant(r.URL.Query().Get("variant"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := strconv.Itoa(deviceID)
	links := panel.Links{
		Save:      "/panel/" + id + "/settings?variant=" + v.Name,
		Variables: "/api/devices/" + id + "/variables",
	}
	if s.events != nil {
		links.Events = "/ws"
	}
	page, err := s.panel.SettingsPage(r.Context(), deviceID, v, links)
	if err != nil {
		writePanelError(w, err)
		return
	}
	writeHTML(w, http.StatusOK, string(page))
}

type saveResponse struct {
	DeviceID int         `json:"device_id"`
	Variant  string      `json:"variant"`
	Phase    panel.Phase `json:"phase"`
	Fields   []string    `json:"fields"`
}

func (s *Server) handleSettingsSave(w http.ResponseWriter, r *http.Request) {
	deviceID, err := parseDeviceID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := panel.LookupVariant(r.URL.Query().Get("variant"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	fields, err := s.panel.Save(r.Context(), deviceID, v, r.PostForm)
	if err != nil {
		writePanelError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, saveResponse{
		DeviceID: deviceID,
		Variant:  v.Name,
		Phase:    s.panel.Phase(deviceID),
		Fields:   panel.FieldNames(fields),
	})
}

type variableBody struct {
	Value string `json:"value"`
}

func (s *Server) handleVariableGet(w http.ResponseWriter, r *http.Request) {
	deviceID, err := parseDeviceID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	value := s.panel.Variable(r.Context(), deviceID, r.URL.Query().Get("service"), name)
	writeJSON(w, http.StatusOK, variableBody{Value: value})
}

func (s *Server) handleVariablePut(w http.ResponseWriter, r *http.Request) {
	deviceID, err := parseDeviceID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing variable name")
		return
	}
	v, err := panel.LookupVariant(r.URL.Query().Get("variant"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body variableBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.panel.SetVariable(r.Context(), deviceID, v, r.URL.Query().Get("service"), name, body.Value); err != nil {
		writePanelError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleSaveStatus(w http.ResponseWriter, r *http.Request) {
	deviceID, err := parseDeviceID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device_id": deviceID, "phase": s.panel.Phase(deviceID)})
}

func (s *Server) handleSavesList(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotImplemented, "save history disabled")
		return
	}
	deviceID, err := parseDeviceID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	saves, err := s.history.ListSaves(r.Context(), deviceID, limit)
	if err != nil {
		slog.Error("list saves failed", "device_id", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list saves")
		return
	}
	if saves == nil {
		saves = []store.SaveRecord{}
	}
	writeJSON(w, http.StatusOK, saves)
}

func (s *Server) handleMeterDisplay(w http.ResponseWriter, r *http.Request) {
	deviceID, err := parseDeviceID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeHTML(w, http.StatusOK, string(s.panel.Displays().SmartMeter(r.Context(), deviceID)))
}

func (s *Server) handleGasDisplay(w http.ResponseWriter, r *http.Request) {
	deviceID, err := parseDeviceID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeHTML(w, http.StatusOK, string(s.panel.Displays().Gas(r.Context(), deviceID)))
}

func (s *Server) handlePowerSources(w http.ResponseWriter, r *http.Request) {
	deviceID, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("for")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid device id")
		return
	}
	sources, err := s.panel.PowerSources(r.Context(), deviceID)
	if err != nil {
		writePanelError(w, err)
		return
	}
	if sources == nil {
		sources = []panel.Option{}
	}
	writeJSON(w, http.StatusOK, sources)
}

type jsonErr struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, jsonErr{Error: msg, Code: status})
}

// writePanelError maps panel errors to statuses; anything else came from the
// controller.
func writePanelError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, panel.ErrDeviceNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, panel.ErrDeviceDisabled):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, panel.ErrUnknownVariant):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "controller timed out")
	default:
		slog.Warn("controller request failed", "error", err)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("controller: %v", err))
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func parseDeviceID(r *http.Request) (int, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "device_id"))
	if raw == "" {
		return 0, errors.New("missing device id")
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id < 0 {
		return 0, errors.New("invalid device id")
	}
	return id, nil
}
