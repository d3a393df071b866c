// Package server exposes the attendant over HTTP: a chat endpoint, an
// order listing, and session reset.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	attendantx "github.com/trenchburger/attendant/agent/attendant"
	contractx "github.com/trenchburger/attendant/agent/contract"
	statex "github.com/trenchburger/attendant/agent/state"
	orderx "github.com/trenchburger/attendant/order"
)

// GreetingSentinel in the chat message field requests the canned greeting
// audio instead of a dialogue turn.
const GreetingSentinel = "__INITIAL_GREETING__"

// DefaultSessionID is used when a chat request omits session_id.
const DefaultSessionID = "default"

type Handler struct {
	attendant *attendantx.Service
	ledger    orderx.Ledger
}

func NewHandler(attendant *attendantx.Service, ledger orderx.Ledger) *Handler {
	return &Handler{attendant: attendant, ledger: ledger}
}

// Router builds the chi router with the standard middleware chain.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.Chat)
	r.Get("/orders", h.ListOrders)
	r.Delete("/sessions/{sessionID}", h.ResetSession)
}

type chatRequest struct {
	SessionID    string `json:"session_id"`
	Message      string `json:"message"`
	RequestAudio bool   `json:"request_audio"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
	Audio     []byte `json:"audio,omitempty"`
}

// Chat handles one dialogue turn. The greeting sentinel short-circuits the
// loop and streams greeting audio directly.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = DefaultSessionID
	}

	if strings.TrimSpace(req.Message) == GreetingSentinel {
		h.greet(w, r)
		return
	}

	reply, err := h.attendant.ProcessMessage(r.Context(), sessionID, req.Message, req.RequestAudio)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, contractx.ErrValidation) || errors.Is(err, statex.ErrInvalidSession) {
			status = http.StatusBadRequest
		}
		log.Error().Err(err).Str("session_id", sessionID).Msg("chat turn failed")
		JSON(w, status, chatResponse{SessionID: sessionID, Reply: reply.Text})
		return
	}

	JSON(w, http.StatusOK, chatResponse{
		SessionID: sessionID,
		Reply:     reply.Text,
		Audio:     reply.Audio,
	})
}

func (h *Handler) greet(w http.ResponseWriter, r *http.Request) {
	audio, err := h.attendant.Greeting(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("greeting synthesis failed")
		Error(w, http.StatusBadGateway, "greeting unavailable")
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio); err != nil {
		log.Warn().Err(err).Msg("write greeting audio failed")
	}
}

type ordersResponse struct {
	Orders []orderx.Order `json:"orders"`
	Totals map[string]int `json:"totals"`
}

// ListOrders returns every order, newest first, plus per-item totals over
// active orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.ledger.ListAll(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("list orders failed")
		Error(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	totals, err := h.ledger.ActiveTotals(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("active totals failed")
		Error(w, http.StatusInternalServerError, "failed to compute totals")
		return
	}
	if orders == nil {
		orders = []orderx.Order{}
	}
	JSON(w, http.StatusOK, ordersResponse{Orders: orders, Totals: totals})
}

// ResetSession discards the session's conversation history.
func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.attendant.Reset(r.Context(), sessionID); err != nil {
		if errors.Is(err, statex.ErrInvalidSession) {
			Error(w, http.StatusBadRequest, "invalid session id")
			return
		}
		log.Error().Err(err).Str("session_id", sessionID).Msg("session reset failed")
		Error(w, http.StatusInternalServerError, "failed to reset session")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "reset", "session_id": sessionID})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
