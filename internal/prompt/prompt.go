// Package prompt assembles model message sequences for grounded and plain
// chat turns.
//
// Both assembly paths produce one normalized []*ai.Message: system turn,
// prior history, then the new user turn. Grounding is injected as part of
// the synthetic system turn rather than concatenated into the user text, so
// the generator has a single invocation shape regardless of retrieval.
package prompt

import (
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/bogachat/boga/internal/conversation"
	"github.com/bogachat/boga/internal/store"
)

// noDocumentsText is rendered when the retrieval set is empty.
const noDocumentsText = "No relevant documents found."

// plainSystem is the system turn for ungrounded conversations.
const plainSystem = "You are a helpful and friendly AI assistant."

// groundedSystem frames the retrieved documents for the model. The documents
// block is produced by FormatDocuments.
const groundedSystem = `You are a helpful and friendly AI assistant with access to a knowledge base of documents.

Relevant documents for the query:

%s

Based on the conversation history and the relevant documents provided, respond to the user's query. If the documents don't contain relevant information, respond based on your general knowledge.`

// FormatDocuments renders retrieved chunks for prompt inclusion.
//
// Each chunk becomes "Document i: <title> (Source: <source>)" followed by a
// Content line, blocks joined by blank lines. Title and source come from
// chunk metadata with fixed fallbacks. An empty set renders the literal
// no-documents sentence.
func FormatDocuments(docs []store.Match) string {
	if len(docs) == 0 {
		return noDocumentsText
	}

	blocks := make([]string, 0, len(docs))
	for i, doc := range docs {
		title := metadataString(doc.Metadata, "title", "Untitled Document")
		source := metadataString(doc.Metadata, "source", "Unknown Source")
		blocks = append(blocks, fmt.Sprintf("Document %d: %s (Source: %s)\nContent: %s", i+1, title, source, doc.Text))
	}
	return strings.Join(blocks, "\n\n")
}

// Grounded builds the message sequence for a retrieval-augmented turn.
// history excludes the new user turn, which is appended last.
func Grounded(history []conversation.Message, docs []store.Match, query string) []*ai.Message {
	msgs := make([]*ai.Message, 0, len(history)+2)
	msgs = append(msgs, ai.NewSystemMessage(ai.NewTextPart(fmt.Sprintf(groundedSystem, FormatDocuments(docs)))))
	msgs = append(msgs, historyMessages(history)...)
	return append(msgs, ai.NewUserMessage(ai.NewTextPart(query)))
}

// Plain builds the message sequence for an ungrounded turn.
func Plain(history []conversation.Message, query string) []*ai.Message {
	msgs := make([]*ai.Message, 0, len(history)+2)
	msgs = append(msgs, ai.NewSystemMessage(ai.NewTextPart(plainSystem)))
	msgs = append(msgs, historyMessages(history)...)
	return append(msgs, ai.NewUserMessage(ai.NewTextPart(query)))
}

// historyMessages maps stored conversation turns onto model roles.
func historyMessages(history []conversation.Message) []*ai.Message {
	msgs := make([]*ai.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case conversation.RoleAssistant:
			msgs = append(msgs, ai.NewModelMessage(ai.NewTextPart(m.Content)))
		default:
			msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(m.Content)))
		}
	}
	return msgs
}

// metadataString reads a string metadata value with a fallback.
func metadataString(metadata map[string]any, key, fallback string) string {
	if v, ok := metadata[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}
