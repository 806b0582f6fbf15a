package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/mr1hm/go-hazard-watch/internal/ai"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatReply struct {
	Reply    string `json:"reply"`
	Fallback bool   `json:"fallback,omitempty"`
}

// Chat answers an administrator's question with the live stats as context.
// Only the most recent messages are sent to the model.
func (s *Service) Chat(ctx context.Context, messages []ChatMessage) (ChatReply, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return ChatReply{}, err
	}

	if len(messages) > chatHistoryLimit {
		messages = messages[len(messages)-chatHistoryLimit:]
	}

	text, err := s.gen.Generate(ctx, chatPrompt(stats, messages))
	if err == nil {
		text = ai.StripFences(text)
		if text == "" {
			err = fmt.Errorf("%w: empty reply", ai.ErrService)
		}
	}
	if err != nil {
		s.fellBack("chat", err)
		return ChatReply{Reply: FallbackChat(stats), Fallback: true}, nil
	}
	return ChatReply{Reply: text}, nil
}

func chatPrompt(stats Stats, messages []ChatMessage) string {
	var b strings.Builder
	b.WriteString("You are the operations assistant for Kenya's National Disaster Management Authority (NDMA) monitoring system.\n")
	b.WriteString("Answer administrators concisely and factually. Use markdown where it helps.\n\n")
	b.WriteString("Live system status:\n")
	fmt.Fprintf(&b, "- Active incidents: %d (of %d recorded)\n", stats.ActiveIncidents, stats.TotalIncidents)
	fmt.Fprintf(&b, "- People affected by active incidents: %d\n", stats.TotalAffected)
	fmt.Fprintf(&b, "- Workers deployed / available: %d / %d\n", stats.DeployedWorkers, stats.AvailableWorkers)
	fmt.Fprintf(&b, "- High-risk regions: %d of %d monitored\n\n", stats.HighRiskRegions, stats.RegionsMonitored)
	b.WriteString("Conversation:\n")
	for _, m := range messages {
		role := "Administrator"
		if m.Role == RoleAssistant {
			role = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, strings.TrimSpace(m.Content))
	}
	b.WriteString("Assistant:")
	return b.String()
}

func FallbackChat(stats Stats) string {
	return fmt.Sprintf("The AI assistant is unavailable right now. Current status: %d active incidents affecting %d people, "+
		"%d workers deployed and %d available, %d of %d regions at high risk.",
		stats.ActiveIncidents, stats.TotalAffected, stats.DeployedWorkers, stats.AvailableWorkers,
		stats.HighRiskRegions, stats.RegionsMonitored)
}
