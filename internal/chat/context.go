// Package chat orchestrates tutoring turns: prompt assembly, the
// tool-calling loop, event streaming, and exactly-once persistence.
package chat

import (
	"strings"

	"github.com/studium-labs/studium/internal/domain"
	"github.com/studium-labs/studium/internal/llm"
)

// RAGInstruction is appended to the system prompt when retrieval is active
// and the configuration enables it
const RAGInstruction = `You have access to the course material through the semantic_search tool. When the question concerns the uploaded material, search it before answering and cite the sources you used.`

// BuildContext assembles the ordered message list for one turn: a single
// leading system message built from the session's prompt layers, followed by
// the conversation history role for role.
//
// Layer precedence: general prompt, then the student learning profile
// (task, persona, mission objective), then the session-specific prompt.
// Sections are joined with blank lines; the system message is omitted
// entirely when every layer is empty.
func BuildContext(session *domain.ChatSession, includeRAGInstruction bool) []llm.Message {
	var sections []string

	if session.PromptGeneral != "" {
		sections = append(sections, "# General Prompt\n"+session.PromptGeneral)
	}

	var profile []string
	if session.Task != "" {
		profile = append(profile, "# Task\n"+session.Task)
	}
	if session.Persona != "" {
		profile = append(profile, "# Persona\n"+session.Persona)
	}
	if session.Objective != "" {
		profile = append(profile, "# Mission Objective\n"+session.Objective)
	}
	if len(profile) > 0 {
		sections = append(sections, "Student Learning Profile\n"+strings.Join(profile, "\n\n"))
	}

	if session.PromptSpecific != "" {
		sections = append(sections, "# Specific Prompt\n"+session.PromptSpecific)
	}

	if includeRAGInstruction {
		sections = append(sections, RAGInstruction)
	}

	messages := make([]llm.Message, 0, len(session.Messages)+1)
	if len(sections) > 0 {
		messages = append(messages, llm.SystemMessage(strings.Join(sections, "\n\n")))
	}

	for _, m := range session.Messages {
		// The leading system message is rebuilt from the prompt layers
		// every turn; the persisted copy is skipped.
		if m.Role == domain.RoleSystem {
			continue
		}
		messages = append(messages, llm.Message{
			Role:    llm.Role(m.Role),
			Content: m.Content,
		})
	}

	return messages
}
