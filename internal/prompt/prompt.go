// Package prompt composes the message sequence sent to the chat model.
//
// Composition is pure and deterministic: the same knowledge base name,
// settings, sources, history and question always produce byte-identical
// messages. All persona levels map to fixed English instructions.
package prompt

import (
	"fmt"
	"strings"

	"github.com/knowbot-ai/knowbot/internal/llm"
	"github.com/knowbot-ai/knowbot/internal/retrieval"
	"github.com/knowbot-ai/knowbot/internal/session"
	"github.com/knowbot-ai/knowbot/internal/settings"
)

// Instruction tables indexed by the 0..4 persona levels.
var (
	toneInstructions = [5]string{
		"Use a strictly formal, businesslike tone.",
		"Use a polite, professional tone.",
		"Use a neutral, friendly tone.",
		"Use a warm, conversational tone.",
		"Use a casual, informal tone, as if talking to a friend.",
	}
	humorInstructions = [5]string{
		"Never joke; stay completely serious.",
		"Stay serious; at most a light touch of warmth.",
		"Occasional light humor is acceptable when appropriate.",
		"Feel free to be witty and add humorous remarks.",
		"Be playful and humorous whenever the topic allows it.",
	}
	brevityInstructions = [5]string{
		"Answer in a single short sentence whenever possible.",
		"Keep answers brief, a couple of sentences at most.",
		"Give moderately detailed answers.",
		"Give thorough answers with helpful detail.",
		"Give exhaustive, richly detailed answers.",
	}
)

// Input carries everything composition depends on.
type Input struct {
	KBName   string
	Settings settings.Settings
	Sources  []retrieval.Source
	History  []session.Message
	Question string
}

// Compose builds the full message sequence: one system message carrying the
// persona, the retrieved context and the grounding rules, then the history
// in order, then the user question.
func Compose(in Input) []llm.Message {
	msgs := make([]llm.Message, 0, len(in.History)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: systemPrompt(in)})

	for _, h := range in.History {
		role := llm.RoleUser
		if h.Role == session.RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: h.Content})
	}

	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: in.Question})
	return msgs
}

func systemPrompt(in Input) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a helpful assistant answering questions on behalf of %q.\n", in.KBName)
	b.WriteString("Answer using only the knowledge base excerpts below. ")
	b.WriteString("If the excerpts do not contain the answer, say you do not know; never invent facts.\n\n")

	b.WriteString(toneInstructions[in.Settings.Tone])
	b.WriteByte(' ')
	b.WriteString(humorInstructions[in.Settings.Humor])
	b.WriteByte(' ')
	b.WriteString(brevityInstructions[in.Settings.Brevity])
	b.WriteString("\n\n")

	if len(in.Sources) == 0 {
		b.WriteString("The knowledge base returned no relevant excerpts for this question.\n")
	} else {
		b.WriteString("Knowledge base excerpts:\n")
		for _, s := range in.Sources {
			fmt.Fprintf(&b, "\n[Document %d]\nQ: %s\nA: %s\n", s.DocumentID, s.Question, s.Answer)
		}
	}

	if in.Settings.AdditionalPrompt != "" {
		b.WriteString("\nAdditional instructions:\n")
		b.WriteString(in.Settings.AdditionalPrompt)
		b.WriteByte('\n')
	}

	return b.String()
}
