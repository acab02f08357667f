package orchestrator

import (
	"strings"

	"github.com/parley-dev/parley/internal/chat"
	"github.com/parley-dev/parley/internal/llm/provider"
)

// initialContextFraming wraps the session's standing context so the
// model treats it as durable guidance, not a one-off user turn.
const initialContextFraming = "The following is conversation context specified by the user. " +
	"Refer to it in this turn and all later turns: "

// BuildContext assembles the model-ready message list for one turn:
// the persona's system prompt, the session's framed initial context
// if any, the bounded history window ascending by seq with blank rows
// skipped, then the new user turn. The list is rebuilt from persisted
// state on every turn.
func BuildContext(persona *chat.Persona, session *chat.Session, history []*chat.Message, userInput string) []provider.Message {
	messages := make([]provider.Message, 0, len(history)+3)
	messages = append(messages, provider.Message{Role: "system", Content: persona.SystemPrompt})

	if ic := strings.TrimSpace(session.InitialContext); ic != "" {
		messages = append(messages, provider.Message{
			Role:    "system",
			Content: initialContextFraming + ic,
		})
	}

	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		messages = append(messages, provider.Message{Role: string(m.Role), Content: m.Content})
	}

	messages = append(messages, provider.Message{Role: "user", Content: userInput})
	return messages
}
