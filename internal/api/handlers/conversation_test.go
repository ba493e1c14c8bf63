package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quotebot/internal/config"
	"quotebot/internal/repository/store"
	conversationService "quotebot/internal/service/conversation"
	"quotebot/internal/service/completion"
	"quotebot/internal/service/dify"
	"quotebot/internal/testutil"
)

// mockRateLimiter is a function-field mock of RateLimiter
type mockRateLimiter struct {
	CheckRateLimitFunc func(ctx context.Context, identifier string, limit int) (bool, error)
}

func (m *mockRateLimiter) CheckRateLimit(ctx context.Context, identifier string, limit int) (bool, error) {
	if m.CheckRateLimitFunc != nil {
		return m.CheckRateLimitFunc(ctx, identifier, limit)
	}
	return true, nil
}

func newTestHandlers(backend *testutil.MockBackend, limiter RateLimiter, rateLimit config.RateLimitConfig) *ConversationHandlers {
	dual := store.NewDual(testutil.NewMemoryCache(), testutil.NewMemoryDurable(), time.Hour)
	detector := completion.NewDetector(config.CompletionConfig{
		Keywords:       []string{"quote has been prepared"},
		RequiredFields: []string{"customer_name", "customer_email", "product_type"},
	})
	service := conversationService.NewService(dual, backend, detector, &testutil.MockDeliverer{})
	return NewConversationHandlers(service, limiter, rateLimit)
}

func startRequestBody() []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"session_id": "sess-1",
		"traffic_data": map[string]interface{}{
			"landing_page":            "/products",
			"conversation_start_page": "/products",
		},
		"interaction_data": map[string]interface{}{
			"device_type":       "desktop",
			"initiation_method": "widget_click",
		},
	})
	return body
}

func greetingBackend() *testutil.MockBackend {
	return &testutil.MockBackend{
		CreateConversationFunc: func(ctx context.Context, user string, inputs map[string]interface{}, firstMessage string) (*dify.ChatResponse, error) {
			return &dify.ChatResponse{ConversationID: "dify-1", Answer: "Hello!"}, nil
		},
		SendMessageFunc: func(ctx context.Context, conversationID, user, message string) (*dify.ChatResponse, error) {
			return &dify.ChatResponse{ConversationID: "dify-1", Answer: "Sure <button>[Yes] [No]</button>"}, nil
		},
		GetVariablesFunc: func(ctx context.Context, conversationID, user string) ([]dify.Variable, error) {
			return nil, nil
		},
	}
}

func TestStartConversationHandler_Created(t *testing.T) {
	h := newTestHandlers(greetingBackend(), nil, config.RateLimitConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/start_conversation", bytes.NewReader(startRequestBody()))
	rec := httptest.NewRecorder()
	h.StartConversationHandler(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var resp StartConversationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ConversationID == "" {
		t.Error("conversation_id is empty")
	}
	if resp.Answer != "Hello!" || resp.Status != "started" {
		t.Errorf("response = %+v", resp)
	}
}

func TestStartConversationHandler_ValidationFailed(t *testing.T) {
	h := newTestHandlers(greetingBackend(), nil, config.RateLimitConfig{})

	body, _ := json.Marshal(map[string]interface{}{"session_id": ""})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/start_conversation", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.StartConversationHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	var resp ErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Error != "validation_failed" {
		t.Errorf("error code = %q, want validation_failed", resp.Error)
	}
}

func TestStartConversationHandler_InvalidJSON(t *testing.T) {
	h := newTestHandlers(greetingBackend(), nil, config.RateLimitConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/start_conversation", bytes.NewReader([]byte("{broken")))
	rec := httptest.NewRecorder()
	h.StartConversationHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestStartConversationHandler_RateLimited(t *testing.T) {
	limiter := &mockRateLimiter{
		CheckRateLimitFunc: func(ctx context.Context, identifier string, limit int) (bool, error) {
			if identifier != "session:sess-1" {
				t.Errorf("identifier = %q, want session:sess-1", identifier)
			}
			if limit != 10 {
				t.Errorf("limit = %d, want 10", limit)
			}
			return false, nil
		},
	}
	h := newTestHandlers(greetingBackend(), limiter, config.RateLimitConfig{Enabled: true, PerMinute: 10})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/start_conversation", bytes.NewReader(startRequestBody()))
	rec := httptest.NewRecorder()
	h.StartConversationHandler(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}

	var resp ErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Error != "rate_limited" {
		t.Errorf("error code = %q, want rate_limited", resp.Error)
	}
}

func TestStartConversationHandler_BrokenLimiterAllows(t *testing.T) {
	limiter := &mockRateLimiter{
		CheckRateLimitFunc: func(ctx context.Context, identifier string, limit int) (bool, error) {
			return false, context.DeadlineExceeded
		},
	}
	h := newTestHandlers(greetingBackend(), limiter, config.RateLimitConfig{Enabled: true, PerMinute: 10})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/start_conversation", bytes.NewReader(startRequestBody()))
	rec := httptest.NewRecorder()
	h.StartConversationHandler(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201 when the limiter itself fails", rec.Code)
	}
}

func TestChatHandler_Exchange(t *testing.T) {
	h := newTestHandlers(greetingBackend(), nil, config.RateLimitConfig{})

	startReq := httptest.NewRequest(http.MethodPost, "/api/v1/start_conversation", bytes.NewReader(startRequestBody()))
	startRec := httptest.NewRecorder()
	h.StartConversationHandler(startRec, startReq)

	var started StartConversationResponse
	json.Unmarshal(startRec.Body.Bytes(), &started)

	body, _ := json.Marshal(ChatRequest{ConversationID: started.ConversationID, Message: "yes please"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ChatHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Answer != "Sure" {
		t.Errorf("answer = %q, want Sure", resp.Answer)
	}
	if len(resp.Buttons) != 2 || resp.Buttons[0].Value != "Yes" || resp.Buttons[1].Value != "No" {
		t.Errorf("buttons = %v", resp.Buttons)
	}
	if resp.ConversationComplete {
		t.Error("conversation_complete = true, want false")
	}
}

func TestChatHandler_ValidationFailures(t *testing.T) {
	h := newTestHandlers(greetingBackend(), nil, config.RateLimitConfig{})

	tests := []struct {
		name string
		body ChatRequest
	}{
		{"missing conversation id", ChatRequest{Message: "hi"}},
		{"empty message", ChatRequest{ConversationID: "conv-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(tt.body)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(body))
			rec := httptest.NewRecorder()
			h.ChatHandler(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestChatHandler_NotFound(t *testing.T) {
	h := newTestHandlers(greetingBackend(), nil, config.RateLimitConfig{})

	body, _ := json.Marshal(ChatRequest{ConversationID: "conv-missing", Message: "hi"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ChatHandler(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	var resp ErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Error != "not_found" {
		t.Errorf("error code = %q, want not_found", resp.Error)
	}
}

func TestChatHandler_UpstreamError(t *testing.T) {
	backend := greetingBackend()
	backend.SendMessageFunc = func(ctx context.Context, conversationID, user, message string) (*dify.ChatResponse, error) {
		return nil, dify.ErrUpstream
	}
	h := newTestHandlers(backend, nil, config.RateLimitConfig{})

	startReq := httptest.NewRequest(http.MethodPost, "/api/v1/start_conversation", bytes.NewReader(startRequestBody()))
	startRec := httptest.NewRecorder()
	h.StartConversationHandler(startRec, startReq)

	var started StartConversationResponse
	json.Unmarshal(startRec.Body.Bytes(), &started)

	body, _ := json.Marshal(ChatRequest{ConversationID: started.ConversationID, Message: "hi"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ChatHandler(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}

	var resp ErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Error != "upstream_error" {
		t.Errorf("error code = %q, want upstream_error", resp.Error)
	}
}

func TestHistoryHandler_ReturnsParsedHistory(t *testing.T) {
	h := newTestHandlers(greetingBackend(), nil, config.RateLimitConfig{})

	startReq := httptest.NewRequest(http.MethodPost, "/api/v1/start_conversation", bytes.NewReader(startRequestBody()))
	startRec := httptest.NewRecorder()
	h.StartConversationHandler(startRec, startReq)

	var started StartConversationResponse
	json.Unmarshal(startRec.Body.Bytes(), &started)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/history/"+started.ConversationID, nil)
	req.SetPathValue("id", started.ConversationID)
	rec := httptest.NewRecorder()
	h.HistoryHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp HistoryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ConversationID != started.ConversationID {
		t.Errorf("conversation_id = %q", resp.ConversationID)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Content != "Hello!" {
		t.Errorf("messages = %v, want the greeting", resp.Messages)
	}
}

func TestStatusHandler_NotFound(t *testing.T) {
	h := newTestHandlers(greetingBackend(), nil, config.RateLimitConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversation/conv-x/status", nil)
	req.SetPathValue("id", "conv-x")
	rec := httptest.NewRecorder()
	h.StatusHandler(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
