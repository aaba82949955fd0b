package commands

import (
	"strings"
	"testing"
)

func TestParse_NonSlashCommand(t *testing.T) {
	tests := []string{
		"hello world",
		"",
		"   ",
		"help",
		"what is the /mode thing",
	}

	for _, input := range tests {
		result := Parse(input)
		if result != nil {
			t.Errorf("Parse(%q) = %v, want nil", input, result)
		}
	}
}

func TestParse_Help(t *testing.T) {
	tests := []string{
		"/help",
		"/HELP",
		"  /help  ",
		"/help extra args ignored",
	}

	for _, input := range tests {
		result := Parse(input)
		if result == nil {
			t.Errorf("Parse(%q) = nil, want Help{}", input)
			continue
		}
		if _, ok := result.(Help); !ok {
			t.Errorf("Parse(%q) = %T, want Help", input, result)
		}
		if result.Type() != "help" {
			t.Errorf("Parse(%q).Type() = %q, want %q", input, result.Type(), "help")
		}
	}
}

func TestParse_Clear(t *testing.T) {
	result := Parse("/clear")
	if _, ok := result.(Clear); !ok {
		t.Errorf("Parse(/clear) = %T, want Clear", result)
	}
}

func TestParse_SetMode(t *testing.T) {
	tests := []struct {
		input    string
		wantMode string
	}{
		{"/mode single", "single"},
		{"/mode group", "group"},
		{"/MODE GROUP", "group"},
		{"  /mode single  ", "single"},
	}

	for _, tt := range tests {
		result := Parse(tt.input)
		sm, ok := result.(SetMode)
		if !ok {
			t.Errorf("Parse(%q) = %T, want SetMode", tt.input, result)
			continue
		}
		if sm.Mode != tt.wantMode {
			t.Errorf("Parse(%q).Mode = %q, want %q", tt.input, sm.Mode, tt.wantMode)
		}
	}
}

func TestParse_SetModeErrors(t *testing.T) {
	tests := []string{
		"/mode",
		"/mode both",
		"/mode groupchat",
	}

	for _, input := range tests {
		result := Parse(input)
		if _, ok := result.(ParseError); !ok {
			t.Errorf("Parse(%q) = %T, want ParseError", input, result)
		}
	}
}

func TestParse_ShowRate(t *testing.T) {
	result := Parse("/rate")
	sr, ok := result.(ShowRate)
	if !ok {
		t.Fatalf("Parse(/rate) = %T, want ShowRate", result)
	}
	if sr.Force {
		t.Error("Parse(/rate).Force = true, want false")
	}

	result = Parse("/rate update")
	sr, ok = result.(ShowRate)
	if !ok {
		t.Fatalf("Parse(/rate update) = %T, want ShowRate", result)
	}
	if !sr.Force {
		t.Error("Parse(/rate update).Force = false, want true")
	}
}

func TestParse_Reconnect(t *testing.T) {
	result := Parse("/reconnect")
	if _, ok := result.(Reconnect); !ok {
		t.Errorf("Parse(/reconnect) = %T, want Reconnect", result)
	}
}

func TestParse_Export(t *testing.T) {
	result := Parse("/export")
	if _, ok := result.(Export); !ok {
		t.Errorf("Parse(/export) = %T, want Export", result)
	}
}

func TestParse_ShowHistory(t *testing.T) {
	result := Parse("/history")
	if _, ok := result.(ShowHistory); !ok {
		t.Errorf("Parse(/history) = %T, want ShowHistory", result)
	}
}

func TestParse_Quit(t *testing.T) {
	for _, input := range []string{"/quit", "/exit", "/QUIT"} {
		result := Parse(input)
		if _, ok := result.(Quit); !ok {
			t.Errorf("Parse(%q) = %T, want Quit", input, result)
		}
	}
}

func TestParse_UnknownCommand(t *testing.T) {
	result := Parse("/bogus")
	pe, ok := result.(ParseError)
	if !ok {
		t.Fatalf("Parse(/bogus) = %T, want ParseError", result)
	}
	if !strings.Contains(pe.Message, "/bogus") {
		t.Errorf("ParseError should name the command, got %q", pe.Message)
	}
}

func TestHelpText(t *testing.T) {
	text := HelpText()
	for _, cmd := range []string{"/help", "/clear", "/mode", "/providers", "/rate", "/reconnect", "/history", "/export", "/quit"} {
		if !strings.Contains(text, cmd) {
			t.Errorf("HelpText() missing %s", cmd)
		}
	}
}
