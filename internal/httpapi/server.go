package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	apimw "github.com/hamed0406/uptimemonitor/internal/httpapi/middleware"
	"github.com/hamed0406/uptimemonitor/internal/notify"
	"github.com/hamed0406/uptimemonitor/internal/recorder"
	"github.com/hamed0406/uptimemonitor/internal/repo"
	"github.com/hamed0406/uptimemonitor/internal/scheduler"
)

type StatusSource interface {
	Snapshot() []scheduler.TargetStatus
	Running() int
}

type HealthSource interface {
	Health() recorder.Health
}

type NotifyStats interface {
	Stats() notify.DispatcherStats
}

// Server exposes a read-only view of the running engine.
type Server struct {
	Logger    *zap.Logger
	Status    StatusSource
	Health    HealthSource
	History   repo.HistoryStore
	Incidents repo.IncidentStore
	Notify    NotifyStats // optional
}

func NewServer(l *zap.Logger, st StatusSource, h HealthSource, hist repo.HistoryStore, inc repo.IncidentStore) *Server {
	return &Server{Logger: l, Status: st, Health: h, History: hist, Incidents: inc}
}

// Router wires the routes behind a per-IP limit of rpm requests per minute.
func (s *Server) Router(rpm, burst int) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(rpm, burst))
		r.Get("/api/status", s.handleStatus)
		r.Get("/api/targets/{id}/history", s.handleHistory)
		r.Get("/api/targets/{id}/incident", s.handleIncident)
	})

	return r
}

type healthResponse struct {
	Status   string          `json:"status"`
	Recorder recorder.Health `json:"recorder"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.Health.Health()
	resp := healthResponse{Status: "ok", Recorder: h}
	code := http.StatusOK
	if h.Degraded {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

type targetView struct {
	scheduler.TargetStatus
	Down         bool             `json:"down"`
	OpenIncident *domain.Incident `json:"open_incident,omitempty"`
}

type statusResponse struct {
	Running  int                     `json:"running"`
	Targets  []targetView            `json:"targets"`
	Recorder recorder.Health         `json:"recorder"`
	Notify   *notify.DispatcherStats `json:"notify,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Status.Snapshot()
	views := make([]targetView, 0, len(snap))
	for _, ts := range snap {
		v := targetView{TargetStatus: ts}
		inc, err := s.Incidents.FindOpenIncident(r.Context(), ts.ID)
		if err != nil {
			s.Logger.Warn("status_incident_error", zap.String("target_id", string(ts.ID)), zap.Error(err))
		} else if inc != nil {
			v.Down = true
			v.OpenIncident = inc
		}
		views = append(views, v)
	}
	resp := statusResponse{
		Running:  s.Status.Running(),
		Targets:  views,
		Recorder: s.Health.Health(),
	}
	if s.Notify != nil {
		st := s.Notify.Stats()
		resp.Notify = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := domain.TargetID(chi.URLParam(r, "id"))
	from, err := parseTimeParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, "from must be RFC3339")
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, "to must be RFC3339")
		return
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		writeError(w, http.StatusBadRequest, "from must be before to")
		return
	}

	out, err := s.History.History(r.Context(), id, from, to)
	if err != nil {
		s.Logger.Warn("history_error", zap.String("target_id", string(id)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history error")
		return
	}
	if out == nil {
		out = []domain.CheckOutcome{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIncident(w http.ResponseWriter, r *http.Request) {
	id := domain.TargetID(chi.URLParam(r, "id"))
	inc, err := s.Incidents.FindOpenIncident(r.Context(), id)
	if err != nil {
		s.Logger.Warn("incident_lookup_error", zap.String("target_id", string(id)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "incident error")
		return
	}
	if inc == nil {
		writeError(w, http.StatusNotFound, "no open incident")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"incident": inc,
		"duration": domain.FormatDuration(inc.Duration(time.Now())),
	})
}

func parseTimeParam(r *http.Request, key string) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
