package callback

import (
	"time"

	"quotebot/internal/repository/store"
)

// CompanyDetails is optional company identification collected from the user
type CompanyDetails struct {
	DunsNumber  string `json:"duns_number,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	TaxNumber   string `json:"tax_number,omitempty"`
}

// CustomerInfo identifies the customer in the final output
type CustomerInfo struct {
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	Phone          string          `json:"phone,omitempty"`
	CompanyDetails *CompanyDetails `json:"company_details,omitempty"`
}

// ProductRequest describes what the customer asked for
type ProductRequest struct {
	CategoryGuess     string                 `json:"category_guess"`
	OriginalUserQuery string                 `json:"original_user_query"`
	Specifications    map[string]interface{} `json:"specifications"`
}

// Metadata carries conversation-level context in the final output
type Metadata struct {
	TrafficSource               string `json:"traffic_source,omitempty"`
	ConversationStartPage       string `json:"conversation_start_page"`
	DeviceType                  string `json:"device_type"`
	InitiationMethod            string `json:"initiation_method"`
	FlowPath                    string `json:"flow_path"`
	ConversationDurationSeconds int    `json:"conversation_duration_seconds"`
	TotalMessages               int    `json:"total_messages"`
	PrivacyPolicyAccepted       bool   `json:"privacy_policy_accepted"`
}

// FinalOutput is the finalized conversation summary delivered downstream
type FinalOutput struct {
	ConversationID string         `json:"conversation_id"`
	SessionID      string         `json:"session_id"`
	CustomerInfo   CustomerInfo   `json:"customer_info"`
	ProductRequest ProductRequest `json:"product_request"`
	Metadata       Metadata       `json:"metadata"`
}

// Fields of the structured data that map to dedicated output fields rather
// than free-form specifications
var reservedFields = map[string]bool{
	"customer_name":  true,
	"customer_email": true,
	"customer_phone": true,
	"company_name":   true,
	"duns_number":    true,
	"tax_number":     true,
	"category":       true,
	"original_query": true,
	"flow_path":      true,
}

// BuildFinalOutput combines the conversation's initial context, the
// structured data extracted from the backend, and computed metadata into the
// write-once summary artifact.
func BuildFinalOutput(conv *store.Conversation, structured map[string]interface{}) *FinalOutput {
	ctx := conv.InitialContext

	duration := int(time.Since(conv.CreatedAt).Seconds())

	return &FinalOutput{
		ConversationID: conv.ConversationID,
		SessionID:      conv.SessionID,
		CustomerInfo:   buildCustomerInfo(structured),
		ProductRequest: buildProductRequest(structured),
		Metadata: Metadata{
			TrafficSource:               ctx.TrafficData.TrafficSource,
			ConversationStartPage:       defaultString(ctx.TrafficData.ConversationStartPage, "/"),
			DeviceType:                  defaultString(ctx.InteractionData.DeviceType, "unknown"),
			InitiationMethod:            defaultString(ctx.InteractionData.InitiationMethod, "unknown"),
			FlowPath:                    defaultString(getString(structured, "flow_path"), "STANDARD"),
			ConversationDurationSeconds: duration,
			TotalMessages:               conv.MessageCount,
			PrivacyPolicyAccepted:       ctx.ComplianceData.PrivacyPolicyAccepted,
		},
	}
}

func buildCustomerInfo(data map[string]interface{}) CustomerInfo {
	var company *CompanyDetails
	if getString(data, "company_name") != "" || getString(data, "duns_number") != "" || getString(data, "tax_number") != "" {
		company = &CompanyDetails{
			CompanyName: getString(data, "company_name"),
			DunsNumber:  getString(data, "duns_number"),
			TaxNumber:   getString(data, "tax_number"),
		}
	}

	return CustomerInfo{
		Name:           defaultString(getString(data, "customer_name"), "Unknown"),
		Email:          defaultString(getString(data, "customer_email"), "noemail@example.com"),
		Phone:          getString(data, "customer_phone"),
		CompanyDetails: company,
	}
}

func buildProductRequest(data map[string]interface{}) ProductRequest {
	specs := map[string]interface{}{}
	for key, value := range data {
		if reservedFields[key] || value == nil || value == "" {
			continue
		}
		specs[key] = value
	}

	return ProductRequest{
		CategoryGuess:     defaultString(getString(data, "category"), "unknown"),
		OriginalUserQuery: getString(data, "original_query"),
		Specifications:    specs,
	}
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
