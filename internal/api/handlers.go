package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/LeventeLantos/delivery-tracker/internal/model"
	"github.com/LeventeLantos/delivery-tracker/internal/scheduler"
	"github.com/LeventeLantos/delivery-tracker/internal/service"
)

const webhookTokenHeader = "X-Webhook-Token"

// Tracker is the part of service.Tracker the HTTP layer drives.
type Tracker interface {
	Send(ctx context.Context, conversationID string, in service.SendInput) (service.SendResult, error)
	List(ctx context.Context, conversationID string, q service.ListQuery) (service.ListResult, error)
	Get(ctx context.Context, messageID string) (model.DeliveryRecord, error)
	Apply(ctx context.Context, messageID, status, reason string) (model.DeliveryRecord, error)
	Stats(ctx context.Context) (service.Stats, error)
}

type Handler struct {
	sched         *scheduler.Scheduler
	tracker       Tracker
	webhookSecret string
}

func NewHandler(s *scheduler.Scheduler, t Tracker, webhookSecret string) *Handler {
	return &Handler{sched: s, tracker: t, webhookSecret: webhookSecret}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.Status())
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, h.sched.Status())
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, h.sched.Status())
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var in service.SendInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, &model.ValidationError{Reason: "invalid json body: " + err.Error()})
		return
	}

	res, err := h.tracker.Send(r.Context(), chi.URLParam(r, "conversationID"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, limit := parseInt(q.Get("page"), 1), parseInt(q.Get("limit"), 50)
	if page < 1 {
		writeError(w, &model.ValidationError{Field: "page", Reason: "must be >= 1"})
		return
	}
	if limit < 1 {
		writeError(w, &model.ValidationError{Field: "limit", Reason: "must be between 1 and 100"})
		return
	}

	res, err := h.tracker.List(r.Context(), chi.URLParam(r, "conversationID"), service.ListQuery{
		Page:   page,
		Limit:  limit,
		Status: q.Get("status"),
		Type:   q.Get("type"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	rec, err := h.tracker.Get(r.Context(), chi.URLParam(r, "messageID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) DeliveryStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.tracker.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type webhookRequest struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
	Error     string `json:"error"`
}

func (h *Handler) DeliveryWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhookSecret != "" {
		got := r.Header.Get(webhookTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid webhook token"})
			return
		}
	}

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &model.ValidationError{Reason: "invalid json body: " + err.Error()})
		return
	}
	if req.MessageID == "" {
		writeError(w, &model.ValidationError{Field: "messageId", Reason: "is required"})
		return
	}

	rec, err := h.tracker.Apply(r.Context(), req.MessageID, req.Status, req.Error)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrRecordNotFound), errors.Is(err, model.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusInternalServerError:
		slog.Error("request failed", "err", err)
	case http.StatusConflict:
		slog.Warn("request conflicts with delivery state", "err", err)
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
