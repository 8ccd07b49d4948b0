package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"cbt-coach/internal/prompts"
)

// Reloader swaps in a fresh prompt snapshot.
type Reloader interface {
	Reload(ctx context.Context) (*prompts.Snapshot, error)
}

type Handler struct {
	svc      *Service
	reloader Reloader
}

// NewHandler serves the chat API. reloader may be nil, which disables the
// admin reload route.
func NewHandler(svc *Service, reloader Reloader) *Handler {
	return &Handler{svc: svc, reloader: reloader}
}

type CreateSessionRequest struct {
	PatientID string `json:"patient_id"`
}

type MessageRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// TurnResponse is the body of every turn endpoint.
type TurnResponse struct {
	SessionID        string `json:"session_id"`
	Response         string `json:"response"`
	State            State  `json:"current_state"`
	Skill            string `json:"current_skill,omitempty"`
	Step             string `json:"current_step,omitempty"`
	RiskLevel        string `json:"risk_level"`
	DistressLevel    string `json:"distress_level"`
	Status           Status `json:"status"`
	ShouldEndSession bool   `json:"should_end_session"`
	RiskEventID      string `json:"risk_event_id,omitempty"`
	PromptVersion    string `json:"prompt_version"`
}

func newTurnResponse(res *TurnResult) TurnResponse {
	s := res.Session
	out := TurnResponse{
		SessionID:        s.ID.String(),
		Response:         res.Reply,
		State:            s.State,
		Skill:            string(s.CurrentSkill()),
		Step:             s.CurrentStep(),
		RiskLevel:        s.RiskLevel.String(),
		DistressLevel:    s.DistressLevel.String(),
		Status:           s.Status,
		ShouldEndSession: res.ShouldEndSession,
		PromptVersion:    res.PromptVersion,
	}
	if res.RiskEvent != nil {
		out.RiskEventID = res.RiskEvent.ID.String()
	}
	return out
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
	}
	var pid uuid.UUID
	if req.PatientID != "" {
		var err error
		if pid, err = uuid.Parse(req.PatientID); err != nil {
			http.Error(w, "Invalid patient ID", http.StatusBadRequest)
			return
		}
	}

	res, err := h.svc.StartSession(r.Context(), pid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTurnResponse(res))
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	id, err := uuid.Parse(req.SessionID)
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	res, err := h.svc.SendMessage(r.Context(), id, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTurnResponse(res))
}

func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}
	res, err := h.svc.EndSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTurnResponse(res))
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}
	s, err := h.svc.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) ReloadPrompts(w http.ResponseWriter, r *http.Request) {
	if h.reloader == nil {
		http.Error(w, "Reload not configured", http.StatusNotFound)
		return
	}
	snap, err := h.reloader.Reload(r.Context())
	if err != nil {
		// The previous snapshot stays live.
		body := map[string]string{"error": err.Error()}
		if snap != nil {
			body["version"] = snap.Version
		}
		writeJSON(w, http.StatusUnprocessableEntity, body)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"version": snap.Version})
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/chat/session", h.CreateSession)
	r.Post("/chat/message", h.SendMessage)
	r.Get("/chat/session/{id}", h.GetSession)
	r.Post("/chat/session/{id}/end", h.EndSession)
	r.Post("/admin/prompts/reload", h.ReloadPrompts)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var perr *PersistenceError
	switch {
	case errors.Is(err, ErrSessionNotFound):
		http.Error(w, "Session not found", http.StatusNotFound)
	case errors.Is(err, ErrSessionClosed):
		http.Error(w, "Session has ended", http.StatusConflict)
	case errors.As(err, &perr):
		w.Header().Set("Retry-After", "1")
		http.Error(w, "Could not save the conversation, please retry", http.StatusServiceUnavailable)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "Request cancelled", http.StatusServiceUnavailable)
	default:
		http.Error(w, "Processing failed", http.StatusInternalServerError)
	}
}
