package parser

import (
	"strings"
	"testing"
)

func TestParse_PlainText(t *testing.T) {
	result := Parse("Hello, how can I help you?")

	if result.Answer != "Hello, how can I help you?" {
		t.Errorf("Answer = %q, want unchanged text", result.Answer)
	}
	if result.Stage != "" {
		t.Errorf("Stage = %q, want empty", result.Stage)
	}
	if len(result.Buttons) != 0 {
		t.Errorf("Buttons = %v, want empty", result.Buttons)
	}
}

func TestParse_BracketButtons(t *testing.T) {
	result := Parse("Pick one: <button>[Laptops] [Phones] [Tablets]</button>")

	if result.Answer != "Pick one:" {
		t.Errorf("Answer = %q, want %q", result.Answer, "Pick one:")
	}

	want := []Button{
		{Type: "button", Value: "Laptops"},
		{Type: "button", Value: "Phones"},
		{Type: "button", Value: "Tablets"},
	}
	if len(result.Buttons) != len(want) {
		t.Fatalf("got %d buttons, want %d: %v", len(result.Buttons), len(want), result.Buttons)
	}
	for i, b := range want {
		if result.Buttons[i] != b {
			t.Errorf("Buttons[%d] = %v, want %v", i, result.Buttons[i], b)
		}
	}
}

func TestParse_CommaSeparatedButtons(t *testing.T) {
	result := Parse("Choose: <button>Yes, No, Maybe</button>")

	want := []string{"Yes", "No", "Maybe"}
	if len(result.Buttons) != len(want) {
		t.Fatalf("got %d buttons, want %d", len(result.Buttons), len(want))
	}
	for i, v := range want {
		if result.Buttons[i].Value != v {
			t.Errorf("Buttons[%d].Value = %q, want %q", i, result.Buttons[i].Value, v)
		}
		if result.Buttons[i].Type != "button" {
			t.Errorf("Buttons[%d].Type = %q, want %q", i, result.Buttons[i].Type, "button")
		}
	}
}

func TestParse_PipeSeparatedButtons(t *testing.T) {
	result := Parse("<button>Small | Medium | Large</button>")

	want := []string{"Small", "Medium", "Large"}
	if len(result.Buttons) != len(want) {
		t.Fatalf("got %d buttons, want %d", len(result.Buttons), len(want))
	}
	for i, v := range want {
		if result.Buttons[i].Value != v {
			t.Errorf("Buttons[%d].Value = %q, want %q", i, result.Buttons[i].Value, v)
		}
	}
}

func TestParse_MultipleButtonTagsPreserveOrder(t *testing.T) {
	result := Parse("First <button>[A] [B]</button> then <button>[C]</button>")

	want := []string{"A", "B", "C"}
	if len(result.Buttons) != len(want) {
		t.Fatalf("got %d buttons, want %d", len(result.Buttons), len(want))
	}
	for i, v := range want {
		if result.Buttons[i].Value != v {
			t.Errorf("Buttons[%d].Value = %q, want %q", i, result.Buttons[i].Value, v)
		}
	}
	if result.Answer != "First then" {
		t.Errorf("Answer = %q, want %q", result.Answer, "First then")
	}
}

func TestParse_StageTag(t *testing.T) {
	result := Parse("<stage>collecting_contact</stage>What is your email?")

	if result.Stage != "collecting_contact" {
		t.Errorf("Stage = %q, want %q", result.Stage, "collecting_contact")
	}
	if result.Answer != "What is your email?" {
		t.Errorf("Answer = %q, want %q", result.Answer, "What is your email?")
	}
}

func TestParse_StageAndButtons(t *testing.T) {
	result := Parse("<stage>info</stage>Hi <button>[A] [B]</button>")

	if result.Stage != "info" {
		t.Errorf("Stage = %q, want %q", result.Stage, "info")
	}
	if result.Answer != "Hi" {
		t.Errorf("Answer = %q, want %q", result.Answer, "Hi")
	}
	if len(result.Buttons) != 2 || result.Buttons[0].Value != "A" || result.Buttons[1].Value != "B" {
		t.Errorf("Buttons = %v, want A and B", result.Buttons)
	}
}

func TestParse_CleanedAnswerContainsNoTags(t *testing.T) {
	inputs := []string{
		"<stage>s1</stage>text<button>[A]</button>",
		"a <button>x, y</button> b <stage> late stage </stage> c",
		"<BUTTON>[Upper]</BUTTON> case insensitive",
		"<stage>\nmultiline\n</stage> body",
	}

	for _, input := range inputs {
		result := Parse(input)
		if strings.Contains(result.Answer, "<button") || strings.Contains(result.Answer, "<stage") ||
			strings.Contains(result.Answer, "</button>") || strings.Contains(result.Answer, "</stage>") {
			t.Errorf("Parse(%q).Answer = %q still contains directive tags", input, result.Answer)
		}
	}
}

func TestParse_EscapedClosingSlash(t *testing.T) {
	result := Parse(`<stage>quote<\/stage>Done <button>[Ok]<\/button>`)

	if result.Stage != "quote" {
		t.Errorf("Stage = %q, want %q", result.Stage, "quote")
	}
	if len(result.Buttons) != 1 || result.Buttons[0].Value != "Ok" {
		t.Errorf("Buttons = %v, want [Ok]", result.Buttons)
	}
	if result.Answer != "Done" {
		t.Errorf("Answer = %q, want %q", result.Answer, "Done")
	}
}

func TestParse_MalformedTagsLeftLiteral(t *testing.T) {
	// Unterminated tags are not directives and survive as text
	result := Parse("open <button>[A] and <stage>half")

	if len(result.Buttons) != 0 {
		t.Errorf("Buttons = %v, want empty for unterminated tag", result.Buttons)
	}
	if result.Stage != "" {
		t.Errorf("Stage = %q, want empty for unterminated tag", result.Stage)
	}
	if !strings.Contains(result.Answer, "<button>") || !strings.Contains(result.Answer, "<stage>") {
		t.Errorf("Answer = %q, want unterminated tags preserved", result.Answer)
	}
}

func TestParse_EmptyButtonTag(t *testing.T) {
	result := Parse("Nothing here <button>   </button>")

	if len(result.Buttons) != 0 {
		t.Errorf("Buttons = %v, want empty", result.Buttons)
	}
	if result.Answer != "Nothing here" {
		t.Errorf("Answer = %q, want %q", result.Answer, "Nothing here")
	}
}

func TestParse_ButtonsNeverNil(t *testing.T) {
	result := Parse("no directives")

	if result.Buttons == nil {
		t.Error("Buttons is nil, want empty slice")
	}
}

func TestParse_WhitespaceCollapse(t *testing.T) {
	result := Parse("line one\n\n\nline   two\t\tend")

	if result.Answer != "line one\nline two end" {
		t.Errorf("Answer = %q, want %q", result.Answer, "line one\nline two end")
	}
}

func TestCleanWhitespace_Idempotent(t *testing.T) {
	inputs := []string{
		"a\n\n\nb   c",
		"  padded  ",
		"already clean",
		"x\ny z",
	}

	for _, input := range inputs {
		once := cleanWhitespace(input)
		twice := cleanWhitespace(once)
		if once != twice {
			t.Errorf("cleanWhitespace not idempotent for %q: %q != %q", input, once, twice)
		}
	}
}

func TestParseStage_FirstMatchWins(t *testing.T) {
	cleaned, stage := ParseStage("<stage>one</stage> mid <stage>two</stage>")

	if stage != "one" {
		t.Errorf("stage = %q, want %q", stage, "one")
	}
	if strings.Contains(cleaned, "stage") {
		t.Errorf("cleaned = %q, want all stage tags removed", cleaned)
	}
}

func TestParseButtons_SkipsTagFragments(t *testing.T) {
	_, buttons := ParseButtons("<button>Yes, <br>, No</button>")

	want := []string{"Yes", "No"}
	if len(buttons) != len(want) {
		t.Fatalf("got %d buttons %v, want %d", len(buttons), buttons, len(want))
	}
	for i, v := range want {
		if buttons[i].Value != v {
			t.Errorf("buttons[%d].Value = %q, want %q", i, buttons[i].Value, v)
		}
	}
}
