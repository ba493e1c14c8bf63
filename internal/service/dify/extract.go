package dify

import (
	"encoding/json"
	"strings"

	"quotebot/internal/logger"
)

// ExtractStructuredData pulls the structured fields collected during the
// conversation. Sources, in priority order: the response metadata's
// structured_output, the variable snapshot, and a fenced JSON block inside
// the answer text. Returns nil when no source yields anything.
func ExtractStructuredData(resp *ChatResponse, vars []Variable) map[string]interface{} {
	if resp != nil && resp.Metadata != nil && len(resp.Metadata.StructuredOutput) > 0 {
		logger.Log.Info("Found structured data in response metadata")
		return resp.Metadata.StructuredOutput
	}

	if len(vars) > 0 {
		structured := make(map[string]interface{}, len(vars))
		for _, v := range vars {
			structured[v.Name] = v.Value
		}
		logger.Log.WithField("variable_count", len(structured)).Info("Extracted variables from conversation")
		return structured
	}

	if resp != nil {
		if data := parseJSONBlock(resp.Answer); data != nil {
			logger.Log.Info("Parsed structured data from JSON block in answer")
			return data
		}
	}

	return nil
}

func parseJSONBlock(answer string) map[string]interface{} {
	start := strings.Index(answer, "```json")
	if start < 0 {
		return nil
	}
	start += len("```json")

	end := strings.Index(answer[start:], "```")
	if end < 0 {
		return nil
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(answer[start:start+end])), &data); err != nil {
		logger.Log.WithError(err).Warn("Failed to parse JSON block from answer")
		return nil
	}
	return data
}
