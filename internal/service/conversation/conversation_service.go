// Package conversation owns the conversation lifecycle: creation, message
// exchange, completion detection and finalization.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"quotebot/internal/logger"
	"quotebot/internal/parser"
	"quotebot/internal/repository/store"
	"quotebot/internal/service/callback"
	"quotebot/internal/service/completion"
	"quotebot/internal/service/dify"
)

// Deliverer sends a finalized summary downstream. Satisfied by
// callback.Deliverer; mocked in tests.
type Deliverer interface {
	Send(ctx context.Context, output *callback.FinalOutput) error
}

// StartResult is returned after successfully creating a conversation
type StartResult struct {
	ConversationID string
	Answer         string
}

// SendResult is returned for each successful turn
type SendResult struct {
	Answer   string
	Buttons  []parser.Button
	Stage    string
	Complete bool
}

// HistoryMessage is one entry of the derived history view. Stage and
// buttons are re-parsed from the raw stored content at read time.
type HistoryMessage struct {
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
	Buttons   []parser.Button `json:"buttons,omitempty"`
	Stage     string          `json:"stage,omitempty"`
}

type finalizeJob struct {
	conversationID string
	response       *dify.ChatResponse
	variables      []dify.Variable
}

// Service is the conversation orchestrator. All collaborators are injected;
// there is no ambient global state beyond the shared logger.
type Service struct {
	store     *store.Dual
	backend   dify.Backend
	detector  *completion.Detector
	deliverer Deliverer

	finalizeCh chan finalizeJob
	jobs       sync.WaitGroup
	workerOnce sync.Once
	closeOnce  sync.Once
}

// NewService creates a conversation service
func NewService(dual *store.Dual, backend dify.Backend, detector *completion.Detector, deliverer Deliverer) *Service {
	return &Service{
		store:      dual,
		backend:    backend,
		detector:   detector,
		deliverer:  deliverer,
		finalizeCh: make(chan finalizeJob, 16),
	}
}

// StartFinalizer launches the dedicated finalization worker. Finalization
// runs off the request path on this single worker; the bounded channel
// applies backpressure if completions outpace delivery. The worker's lifetime
// is tied to the job channel, not a context: it keeps consuming until Close,
// so a conversation completed while in-flight requests drain during shutdown
// still gets its callback delivered.
func (s *Service) StartFinalizer() {
	s.workerOnce.Do(func() {
		go func() {
			for job := range s.finalizeCh {
				s.finalize(context.Background(), job)
				s.jobs.Done()
			}
		}()
	})
}

// Close stops accepting finalization work. Already-queued jobs are still
// processed; WaitForFinalizations blocks until they are done. Callers must
// not complete conversations after Close.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.finalizeCh)
	})
}

// WaitForFinalizations blocks until every enqueued finalization has been
// processed. Used by graceful shutdown and by tests to observe delivery
// outcomes deterministically.
func (s *Service) WaitForFinalizations() {
	s.jobs.Wait()
}

// Start creates a new conversation: it forwards a synthesized first turn to
// the AI backend and, only on success, persists the conversation record
// (active, message_count=1) and the single assistant message. A backend
// failure aborts creation with nothing persisted.
func (s *Service) Start(ctx context.Context, initial store.InitialContext) (*StartResult, error) {
	conversationID := "conv-" + uuid.New().String()

	logger.Log.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"session_id":      initial.SessionID,
	}).Info("Starting conversation")

	resp, err := s.backend.CreateConversation(ctx, initial.SessionID, buildInputs(initial), buildFirstMessage(initial))
	if err != nil {
		return nil, fmt.Errorf("failed to create backend conversation: %w", err)
	}

	now := time.Now().UTC()
	conv := &store.Conversation{
		ConversationID:     conversationID,
		SessionID:          initial.SessionID,
		DifyConversationID: resp.ConversationID,
		Status:             store.StatusActive,
		DeliveryStatus:     store.DeliveryPending,
		InitialContext:     initial,
		MessageCount:       1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.store.Save(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to save conversation: %w", err)
	}

	if err := s.saveMessage(ctx, conversationID, store.RoleAssistant, resp.Answer, resp.MessageID); err != nil {
		return nil, fmt.Errorf("failed to save initial message: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"conversation_id":      conversationID,
		"dify_conversation_id": resp.ConversationID,
	}).Info("Conversation started")

	parsed := parser.Parse(resp.Answer)
	return &StartResult{
		ConversationID: conversationID,
		Answer:         parsed.Answer,
	}, nil
}

// SendMessage processes one user turn in an active conversation. The user
// message is persisted before the backend call, so a backend failure leaves
// the conversation active with the user's message retained. The raw
// assistant reply (directives included) is what gets stored; the caller
// receives the cleaned text plus the extracted stage and buttons.
func (s *Service) SendMessage(ctx context.Context, conversationID, message string) (*SendResult, error) {
	conv, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, err)
	}

	logger.Log.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"message_chars":   len(message),
	}).Debug("Processing message")

	if err := s.saveMessage(ctx, conversationID, store.RoleUser, message, ""); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	resp, err := s.backend.SendMessage(ctx, conv.DifyConversationID, conv.SessionID, message)
	if err != nil {
		return nil, fmt.Errorf("failed to send message to backend: %w", err)
	}

	parsed := parser.Parse(resp.Answer)

	// Store the original answer with directives so history retains them
	if err := s.saveMessage(ctx, conversationID, store.RoleAssistant, resp.Answer, resp.MessageID); err != nil {
		return nil, fmt.Errorf("failed to save assistant message: %w", err)
	}

	now := time.Now().UTC()
	newCount := conv.MessageCount + 2
	conv, err = s.store.Update(ctx, conversationID, store.ConversationUpdate{
		MessageCount: &newCount,
		UpdatedAt:    &now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}

	vars, err := s.backend.GetVariables(ctx, conv.DifyConversationID, conv.SessionID)
	if err != nil {
		logger.Log.WithError(err).WithField("conversation_id", conversationID).
			Warn("Failed to fetch conversation variables")
		vars = nil
	}

	complete := s.detector.IsComplete(resp, parsed.Answer, vars)
	if complete {
		logger.Log.WithField("conversation_id", conversationID).Info("Conversation is complete")
		s.markCompleted(ctx, conversationID)
		s.enqueueFinalize(conversationID, resp, vars)
	}

	return &SendResult{
		Answer:   parsed.Answer,
		Buttons:  parsed.Buttons,
		Stage:    parsed.Stage,
		Complete: complete,
	}, nil
}

// GetHistory returns the conversation's messages in chronological order.
// Assistant entries are parsed at read time: the stored content stays raw
// while the history view carries the cleaned text, stage and buttons.
func (s *Service) GetHistory(ctx context.Context, conversationID string) ([]HistoryMessage, error) {
	messages, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	history := make([]HistoryMessage, 0, len(messages))
	for _, msg := range messages {
		item := HistoryMessage{
			Role:      msg.Role,
			Content:   msg.Content,
			Timestamp: msg.CreatedAt,
		}

		if msg.Role == store.RoleAssistant {
			parsed := parser.Parse(msg.Content)
			item.Content = parsed.Answer
			item.Stage = parsed.Stage
			if len(parsed.Buttons) > 0 {
				item.Buttons = parsed.Buttons
			}
		}

		history = append(history, item)
	}

	return history, nil
}

// Status returns the conversation record. Debug surface.
func (s *Service) Status(ctx context.Context, conversationID string) (*store.Conversation, error) {
	return s.store.Get(ctx, conversationID)
}

func (s *Service) markCompleted(ctx context.Context, conversationID string) {
	now := time.Now().UTC()
	completed := store.StatusCompleted
	if _, err := s.store.Update(ctx, conversationID, store.ConversationUpdate{
		Status:      &completed,
		CompletedAt: &now,
		UpdatedAt:   &now,
	}); err != nil {
		logger.Log.WithError(err).WithField("conversation_id", conversationID).
			Error("Failed to mark conversation completed")
	}
}

func (s *Service) enqueueFinalize(conversationID string, resp *dify.ChatResponse, vars []dify.Variable) {
	s.jobs.Add(1)
	s.finalizeCh <- finalizeJob{
		conversationID: conversationID,
		response:       resp,
		variables:      vars,
	}
}

// finalize builds the final summary and hands it to the deliverer. Delivery
// success records the delivered flag; exhaustion marks the conversation
// failed while completed_at and the delivery flag keep the content-complete
// signal recoverable.
func (s *Service) finalize(ctx context.Context, job finalizeJob) {
	logger.Log.WithField("conversation_id", job.conversationID).Info("Finalizing conversation")

	conv, err := s.store.Get(ctx, job.conversationID)
	if err != nil {
		logger.Log.WithError(err).WithField("conversation_id", job.conversationID).
			Error("Cannot finalize, conversation not found")
		return
	}

	structured := dify.ExtractStructuredData(job.response, job.variables)
	if structured == nil {
		structured = map[string]interface{}{}
	}

	output := callback.BuildFinalOutput(conv, structured)

	now := time.Now().UTC()
	if err := s.deliverer.Send(ctx, output); err != nil {
		logger.Log.WithError(err).WithField("conversation_id", job.conversationID).
			Error("Failed to finalize conversation")

		failed := store.StatusFailed
		deliveryFailed := store.DeliveryFailed
		if _, uerr := s.store.Update(ctx, job.conversationID, store.ConversationUpdate{
			Status:         &failed,
			DeliveryStatus: &deliveryFailed,
			UpdatedAt:      &now,
		}); uerr != nil {
			logger.Log.WithError(uerr).WithField("conversation_id", job.conversationID).
				Error("Failed to mark conversation failed")
		}
		return
	}

	delivered := store.DeliveryDelivered
	if _, err := s.store.Update(ctx, job.conversationID, store.ConversationUpdate{
		DeliveryStatus: &delivered,
		UpdatedAt:      &now,
	}); err != nil {
		logger.Log.WithError(err).WithField("conversation_id", job.conversationID).
			Error("Failed to record delivery status")
	}

	logger.Log.WithField("conversation_id", job.conversationID).Info("Conversation finalized")
}

func (s *Service) saveMessage(ctx context.Context, conversationID, role, content, difyMessageID string) error {
	msg := &store.Message{
		MessageID:      "msg-" + uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		DifyMessageID:  difyMessageID,
		CreatedAt:      time.Now().UTC(),
	}
	return s.store.AppendMessage(ctx, msg)
}

// buildInputs flattens the initial context into the input variables the AI
// backend expects on the first turn
func buildInputs(initial store.InitialContext) map[string]interface{} {
	userName := initial.UserData.Name
	if userName == "" {
		userName = "Guest"
	}
	trafficSource := initial.TrafficData.TrafficSource
	if trafficSource == "" {
		trafficSource = "direct"
	}

	return map[string]interface{}{
		"current_date":            initial.CurrentDate,
		"is_identified_user":      initial.UserData.IsIdentifiedUser,
		"user_name":               userName,
		"user_id":                 initial.UserData.UserID,
		"user_email":              initial.UserData.Email,
		"traffic_source":          trafficSource,
		"landing_page":            initial.TrafficData.LandingPage,
		"conversation_start_page": initial.TrafficData.ConversationStartPage,
		"device_type":             initial.InteractionData.DeviceType,
		"initiation_method":       initial.InteractionData.InitiationMethod,
		"privacy_accepted":        initial.ComplianceData.PrivacyPolicyAccepted,
	}
}

// buildFirstMessage synthesizes a natural first turn carrying the context
// the widget collected before the conversation opened
func buildFirstMessage(initial store.InitialContext) string {
	parts := []string{
		"Date: " + initial.CurrentDate,
	}

	if initial.UserData.IsIdentifiedUser && initial.UserData.Name != "" {
		parts = append(parts, "User: "+initial.UserData.Name)
	}

	parts = append(parts,
		"Device: "+initial.InteractionData.DeviceType,
		"Started from: "+initial.TrafficData.ConversationStartPage,
	)

	if initial.TrafficData.TrafficSource != "" {
		parts = append(parts, "Source: "+initial.TrafficData.TrafficSource)
	}

	return strings.Join(parts, "\n")
}
