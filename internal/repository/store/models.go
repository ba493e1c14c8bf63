package store

import "time"

// Status is the lifecycle state of a conversation
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusAbandoned Status = "abandoned"
)

// DeliveryStatus tracks the callback delivery outcome separately from the
// conversation status, so a failed callback does not erase the fact that the
// conversation content itself completed.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// UserData identifies the end user, when known
type UserData struct {
	IsIdentifiedUser bool   `json:"is_identified_user"`
	Name             string `json:"name,omitempty"`
	Email            string `json:"email,omitempty"`
	UserID           string `json:"user_id,omitempty"`
}

// TrafficData describes how the user arrived
type TrafficData struct {
	TrafficSource         string `json:"traffic_source,omitempty"`
	LandingPage           string `json:"landing_page"`
	ConversationStartPage string `json:"conversation_start_page"`
}

// InteractionData describes how the widget was opened
type InteractionData struct {
	DeviceType       string `json:"device_type"`
	InitiationMethod string `json:"initiation_method"`
}

// ComplianceData carries consent flags
type ComplianceData struct {
	PrivacyPolicyAccepted bool `json:"privacy_policy_accepted"`
}

// InitialContext is the caller-supplied payload captured verbatim at
// conversation creation. Read-only after creation; consumed only when
// building the final summary.
type InitialContext struct {
	SessionID       string          `json:"session_id"`
	CurrentDate     string          `json:"current_date,omitempty"`
	UserData        UserData        `json:"user_data"`
	TrafficData     TrafficData     `json:"traffic_data"`
	InteractionData InteractionData `json:"interaction_data"`
	ComplianceData  ComplianceData  `json:"compliance_data"`
}

// Conversation is one end-user interaction session
type Conversation struct {
	ConversationID     string         `json:"conversation_id"`
	SessionID          string         `json:"session_id"`
	DifyConversationID string         `json:"dify_conversation_id,omitempty"`
	Status             Status         `json:"status"`
	DeliveryStatus     DeliveryStatus `json:"delivery_status"`
	InitialContext     InitialContext `json:"initial_context"`
	MessageCount       int            `json:"message_count"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
}

// Message is one turn half within a conversation. Messages are append-only;
// assistant content is stored raw, including any embedded directive tags.
type Message struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	DifyMessageID  string    `json:"dify_message_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationUpdate is a partial update merged over an existing
// conversation record. Nil fields are left untouched.
type ConversationUpdate struct {
	DifyConversationID *string
	Status             *Status
	DeliveryStatus     *DeliveryStatus
	MessageCount       *int
	CompletedAt        *time.Time
	UpdatedAt          *time.Time
}

// Apply merges the non-nil fields of the update over the conversation
func (u ConversationUpdate) Apply(conv *Conversation) {
	if u.DifyConversationID != nil {
		conv.DifyConversationID = *u.DifyConversationID
	}
	if u.Status != nil {
		conv.Status = *u.Status
	}
	if u.DeliveryStatus != nil {
		conv.DeliveryStatus = *u.DeliveryStatus
	}
	if u.MessageCount != nil {
		conv.MessageCount = *u.MessageCount
	}
	if u.CompletedAt != nil {
		conv.CompletedAt = u.CompletedAt
	}
	if u.UpdatedAt != nil {
		conv.UpdatedAt = *u.UpdatedAt
	}
}
