package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"quotebot/internal/config"
	"quotebot/internal/logger"
	"quotebot/internal/parser"
	"quotebot/internal/repository/store"
	conversationService "quotebot/internal/service/conversation"
	"quotebot/internal/service/dify"
	"quotebot/pkg/validation"
)

// RateLimiter counts requests per identifier in a rolling window.
// Implemented by the Redis cache client.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, identifier string, limit int) (bool, error)
}

// Request/Response types

type StartConversationRequest struct {
	store.InitialContext
}

type StartConversationResponse struct {
	ConversationID string    `json:"conversation_id"`
	Answer         string    `json:"answer"`
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
}

type ChatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

type ChatResponse struct {
	Answer               string          `json:"answer"`
	Buttons              []parser.Button `json:"buttons"`
	Stage                string          `json:"stage,omitempty"`
	ConversationComplete bool            `json:"conversation_complete"`
}

type HistoryResponse struct {
	ConversationID string                               `json:"conversation_id"`
	Messages       []conversationService.HistoryMessage `json:"messages"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ConversationHandlers exposes the orchestrator over HTTP
type ConversationHandlers struct {
	service     *conversationService.Service
	validator   *validation.ConversationRequestValidator
	rateLimiter RateLimiter
	rateLimit   config.RateLimitConfig
}

// NewConversationHandlers creates handlers around an orchestrator instance
func NewConversationHandlers(service *conversationService.Service, rateLimiter RateLimiter, rateLimit config.RateLimitConfig) *ConversationHandlers {
	return &ConversationHandlers{
		service:     service,
		validator:   validation.NewConversationRequestValidator(),
		rateLimiter: rateLimiter,
		rateLimit:   rateLimit,
	}
}

// StartConversationHandler handles POST /api/v1/start_conversation
func (h *ConversationHandlers) StartConversationHandler(w http.ResponseWriter, r *http.Request) {
	var req StartConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "validation_failed", "Invalid request body")
		return
	}

	if err := h.validator.ValidateInitialContext(req.InitialContext); err != nil {
		h.sendError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	if !h.allowSession(r.Context(), req.SessionID) {
		h.sendError(w, http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded. Please try again later.")
		return
	}

	result, err := h.service.Start(r.Context(), req.InitialContext)
	if err != nil {
		logger.Log.WithError(err).WithField("session_id", req.SessionID).Error("Error starting conversation")
		h.sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(StartConversationResponse{
		ConversationID: result.ConversationID,
		Answer:         result.Answer,
		Status:         "started",
		Timestamp:      time.Now().UTC(),
	})
}

// ChatHandler handles POST /api/v1/chat
func (h *ConversationHandlers) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "validation_failed", "Invalid request body")
		return
	}

	if err := h.validator.ValidateConversationID(req.ConversationID); err != nil {
		h.sendError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	if err := h.validator.ValidateMessage(req.Message); err != nil {
		h.sendError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	result, err := h.service.SendMessage(r.Context(), req.ConversationID, req.Message)
	if err != nil {
		logger.Log.WithError(err).WithField("conversation_id", req.ConversationID).Error("Error sending message")
		h.sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ChatResponse{
		Answer:               result.Answer,
		Buttons:              result.Buttons,
		Stage:                result.Stage,
		ConversationComplete: result.Complete,
	})
}

// HistoryHandler handles GET /api/v1/history/{id}
func (h *ConversationHandlers) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	if err := h.validator.ValidateConversationID(conversationID); err != nil {
		h.sendError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	messages, err := h.service.GetHistory(r.Context(), conversationID)
	if err != nil {
		logger.Log.WithError(err).WithField("conversation_id", conversationID).Error("Error fetching history")
		h.sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HistoryResponse{
		ConversationID: conversationID,
		Messages:       messages,
	})
}

// StatusHandler handles GET /api/v1/conversation/{id}/status (debug)
func (h *ConversationHandlers) StatusHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	conv, err := h.service.Status(r.Context(), conversationID)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conv)
}

func (h *ConversationHandlers) allowSession(ctx context.Context, sessionID string) bool {
	if !h.rateLimit.Enabled || h.rateLimiter == nil {
		return true
	}

	ok, err := h.rateLimiter.CheckRateLimit(ctx, "session:"+sessionID, h.rateLimit.PerMinute)
	if err != nil {
		// A broken limiter must not take down conversation starts
		logger.Log.WithError(err).Warn("Rate limit check failed, allowing request")
		return true
	}
	if !ok {
		logger.Log.WithField("session_id", sessionID).Warn("Rate limit exceeded")
	}
	return ok
}

func (h *ConversationHandlers) sendServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.sendError(w, http.StatusNotFound, "not_found", "Conversation not found")
	case errors.Is(err, dify.ErrUpstream):
		h.sendError(w, http.StatusBadGateway, "upstream_error", "AI backend unavailable")
	default:
		h.sendError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

func (h *ConversationHandlers) sendError(w http.ResponseWriter, status int, code, message string) {
	logger.Log.WithFields(logrus.Fields{"status": status, "code": code}).Debug("Sending error response")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   code,
		Message: message,
	})
}
