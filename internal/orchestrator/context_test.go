package orchestrator

import (
	"strings"
	"testing"

	"github.com/parley-dev/parley/internal/chat"
)

func TestBuildContext(t *testing.T) {
	persona := &chat.Persona{SystemPrompt: "you are a guide"}
	session := &chat.Session{InitialContext: "the user is planning a trip"}
	history := []*chat.Message{
		{Role: chat.RoleUser, Content: "hello"},
		{Role: chat.RoleAssistant, Content: "   "},
		{Role: chat.RoleAssistant, Content: "hi, where to?"},
	}

	msgs := BuildContext(persona, session, history, "Kyoto please")

	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[0].Content != "you are a guide" {
		t.Errorf("first entry must be the persona prompt, got %+v", msgs[0])
	}
	if msgs[1].Role != "system" || !strings.HasSuffix(msgs[1].Content, "the user is planning a trip") {
		t.Errorf("second entry must be the framed initial context, got %+v", msgs[1])
	}
	if msgs[2].Content != "hello" || msgs[3].Content != "hi, where to?" {
		t.Errorf("blank history rows must be skipped, got %+v", msgs[2:4])
	}
	if msgs[4].Role != "user" || msgs[4].Content != "Kyoto please" {
		t.Errorf("last entry must be the new user turn, got %+v", msgs[4])
	}
}

func TestBuildContext_NoInitialContext(t *testing.T) {
	persona := &chat.Persona{SystemPrompt: "p"}
	msgs := BuildContext(persona, &chat.Session{}, nil, "hi")
	if len(msgs) != 2 {
		t.Fatalf("expected system + user only, got %d", len(msgs))
	}
}
