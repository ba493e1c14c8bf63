// Package parser extracts structured UI directives (stage markers and
// buttons) embedded in AI answers and returns the cleaned text remainder.
package parser

import (
	"regexp"
	"strings"
)

// Button is a single extracted button directive
type Button struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Parsed is the result of extracting all directives from an answer
type Parsed struct {
	Answer  string
	Stage   string
	Buttons []Button
}

var (
	stageTagPattern  = regexp.MustCompile(`(?is)<stage[^>]*?>(.*?)</stage>`)
	buttonTagPattern = regexp.MustCompile(`(?is)<button[^>]*?>(.*?)</button>`)
	bracketPattern   = regexp.MustCompile(`\[([^\]]+)\]`)
	separatorPattern = regexp.MustCompile(`\s*[,|]\s*`)

	multiNewlinePattern = regexp.MustCompile(`\n\s*\n`)
	multiSpacePattern   = regexp.MustCompile(`[ \t]+`)
	whitespacePattern   = regexp.MustCompile(`\s+`)
)

// Parse extracts the stage directive, then button directives, from an AI
// answer and returns the cleaned text with all directive tags removed.
// Stage is extracted first because button syntax may appear inside already
// stage-stripped text. Malformed or unterminated tags are left as literal
// text; parsing never fails.
func Parse(answer string) Parsed {
	text, stage := extractStage(answer)
	text, buttons := extractButtons(text)

	return Parsed{
		Answer:  cleanWhitespace(text),
		Stage:   stage,
		Buttons: buttons,
	}
}

// ParseStage extracts the stage directive from an answer and returns the
// cleaned text. Expects at most one stage tag; absent stage yields "".
func ParseStage(answer string) (string, string) {
	text, stage := extractStage(answer)
	return cleanWhitespace(text), stage
}

// ParseButtons extracts button directives from an answer and returns the
// cleaned text with button tags removed.
func ParseButtons(answer string) (string, []Button) {
	text, buttons := extractButtons(answer)
	return cleanWhitespace(text), buttons
}

func extractStage(answer string) (string, string) {
	// Normalize escaped closing slashes emitted by some AI outputs
	text := strings.ReplaceAll(answer, `<\/stage>`, "</stage>")

	stage := ""
	if match := stageTagPattern.FindStringSubmatch(text); match != nil {
		stage = strings.TrimSpace(match[1])
	}

	return stageTagPattern.ReplaceAllString(text, ""), stage
}

func extractButtons(answer string) (string, []Button) {
	// Normalize escaped closing slashes
	text := strings.ReplaceAll(answer, `<\/button>`, "</button>")

	buttons := []Button{}
	for _, match := range buttonTagPattern.FindAllStringSubmatch(text, -1) {
		content := strings.TrimSpace(match[1])

		// Format 1: one or more bracket-delimited items [A] [B]
		bracketMatches := bracketPattern.FindAllStringSubmatch(content, -1)
		if len(bracketMatches) > 0 {
			for _, bm := range bracketMatches {
				if value := strings.TrimSpace(bm[1]); value != "" {
					buttons = append(buttons, Button{Type: "button", Value: value})
				}
			}
			continue
		}

		// Format 2: free text split on comma/pipe separators
		collapsed := whitespacePattern.ReplaceAllString(content, " ")
		for _, segment := range separatorPattern.Split(collapsed, -1) {
			value := strings.TrimSpace(segment)
			if value == "" || strings.HasPrefix(value, "<") || strings.HasSuffix(value, ">") {
				continue
			}
			buttons = append(buttons, Button{Type: "button", Value: value})
		}
	}

	return buttonTagPattern.ReplaceAllString(text, ""), buttons
}

// cleanWhitespace normalizes the text left behind after tag removal:
// runs of blank lines collapse to a single newline, runs of horizontal
// whitespace collapse to a single space, and the result is trimmed.
// Idempotent: cleaning already-cleaned text is a no-op.
func cleanWhitespace(text string) string {
	text = multiNewlinePattern.ReplaceAllString(text, "\n")
	text = multiSpacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
