// Package completion decides whether a conversation has reached its goal.
package completion

import (
	"strings"

	"quotebot/internal/config"
	"quotebot/internal/logger"
	"quotebot/internal/service/dify"
)

// Detector evaluates an AI turn against the configured completion ruleset.
// Stateless; the ruleset is read-only after startup.
type Detector struct {
	keywords       []string
	requiredFields []string
}

// NewDetector creates a Detector from the completion configuration
func NewDetector(cfg config.CompletionConfig) *Detector {
	return &Detector{
		keywords:       cfg.Keywords,
		requiredFields: cfg.RequiredFields,
	}
}

// IsComplete combines three independent signals, short-circuiting on the
// first that fires:
//  1. the backend's explicit completion flag in the response metadata
//  2. a configured completion keyword in the cleaned answer (case-insensitive)
//  3. every required field present with a non-empty value in the variable
//     snapshot
//
// Evaluation order only affects which signal gets logged; the result is the
// OR of the three predicates.
func (d *Detector) IsComplete(resp *dify.ChatResponse, cleanedAnswer string, vars []dify.Variable) bool {
	if resp != nil && resp.Metadata != nil && resp.Metadata.ConversationComplete {
		logger.Log.Info("Conversation marked complete by backend metadata")
		return true
	}

	answer := strings.ToLower(cleanedAnswer)
	for _, keyword := range d.keywords {
		if strings.Contains(answer, strings.ToLower(keyword)) {
			logger.Log.WithField("keyword", keyword).Info("Completion keyword found")
			return true
		}
	}

	if d.requiredFieldsCovered(vars) {
		logger.Log.Info("All required variables collected")
		return true
	}

	return false
}

func (d *Detector) requiredFieldsCovered(vars []dify.Variable) bool {
	if len(d.requiredFields) == 0 || len(vars) == 0 {
		return false
	}

	byName := make(map[string]dify.Variable, len(vars))
	for _, v := range vars {
		byName[v.Name] = v
	}

	for _, field := range d.requiredFields {
		v, ok := byName[field]
		if !ok || !v.HasValue() {
			return false
		}
	}
	return true
}
