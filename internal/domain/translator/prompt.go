package translator

import (
	"strings"

	"github.com/GriffinCanCode/chatgate/internal/domain/chat"
)

const turnSeparator = "\n\n"

// BuildInteraction flattens a request into the site script. A lone user
// message is sent verbatim; longer conversations become "role: content"
// blocks in order, ending with an "assistant:" cue.
func (t *Translator) BuildInteraction(req chat.ChatRequest) chat.SiteScript {
	return chat.SiteScript{
		Prompt:  FormatPrompt(req.Messages),
		Model:   req.Model,
		Options: req.Overrides,
	}
}

// FormatPrompt renders messages as the site prompt
func FormatPrompt(messages []chat.Message) string {
	if len(messages) == 1 && messages[0].Role == chat.RoleUser {
		return messages[0].Content
	}

	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString(turnSeparator)
		}
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(m.Content))
	}
	if len(messages) > 0 {
		b.WriteString(turnSeparator)
	}
	b.WriteString(string(chat.RoleAssistant))
	b.WriteByte(':')
	return b.String()
}

// ParseTranscript reads a prompt produced by FormatPrompt back into messages.
// Text without role prefixes is a single user message. A trailing empty
// assistant cue is dropped.
func ParseTranscript(prompt string) []chat.Message {
	lines := strings.Split(prompt, "\n")

	var (
		msgs    []chat.Message
		current *chat.Message
		body    []string
	)
	flush := func() {
		if current == nil {
			return
		}
		current.Content = strings.TrimSpace(strings.Join(body, "\n"))
		msgs = append(msgs, *current)
		current, body = nil, nil
	}

	for i, line := range lines {
		atBoundary := i == 0 || lines[i-1] == ""
		if role, rest, ok := turnHeader(line); ok && atBoundary {
			flush()
			current = &chat.Message{Role: role}
			body = []string{rest}
			continue
		}
		if current == nil {
			return []chat.Message{{Role: chat.RoleUser, Content: prompt}}
		}
		body = append(body, line)
	}
	flush()

	if n := len(msgs); n > 0 && msgs[n-1].Role == chat.RoleAssistant && msgs[n-1].Content == "" {
		msgs = msgs[:n-1]
	}
	return msgs
}

func turnHeader(line string) (chat.Role, string, bool) {
	for _, role := range []chat.Role{chat.RoleSystem, chat.RoleUser, chat.RoleAssistant} {
		prefix := string(role) + ":"
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		rest := strings.TrimPrefix(line, prefix)
		if rest != "" && rest[0] != ' ' {
			continue
		}
		return role, strings.TrimPrefix(rest, " "), true
	}
	return "", "", false
}
