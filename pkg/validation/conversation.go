package validation

import (
	"errors"
	"fmt"

	"quotebot/internal/repository/store"
)

// MaxMessageLength is the largest user message accepted by the chat endpoint
const MaxMessageLength = 4000

// ConversationRequestValidator validates conversation-related requests
type ConversationRequestValidator struct{}

// NewConversationRequestValidator creates a new ConversationRequestValidator
func NewConversationRequestValidator() *ConversationRequestValidator {
	return &ConversationRequestValidator{}
}

// ValidateInitialContext validates the context payload supplied at
// conversation creation
func (v *ConversationRequestValidator) ValidateInitialContext(ctx store.InitialContext) error {
	if ctx.SessionID == "" {
		return errors.New("session_id is required")
	}
	if ctx.TrafficData.LandingPage == "" {
		return errors.New("traffic_data.landing_page is required")
	}
	if ctx.InteractionData.DeviceType == "" {
		return errors.New("interaction_data.device_type is required")
	}
	return nil
}

// ValidateMessage validates a chat message
func (v *ConversationRequestValidator) ValidateMessage(message string) error {
	if message == "" {
		return errors.New("message cannot be empty")
	}
	if len([]rune(message)) > MaxMessageLength {
		return fmt.Errorf("message too long (max %d characters)", MaxMessageLength)
	}
	return nil
}

// ValidateConversationID validates the conversation id parameter
func (v *ConversationRequestValidator) ValidateConversationID(conversationID string) error {
	if conversationID == "" {
		return errors.New("conversation_id is required")
	}
	return nil
}
