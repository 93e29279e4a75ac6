package engine

import (
	"fmt"
	"strings"

	"github.com/nexuslabs/nexus-go/core"
	"github.com/nexuslabs/nexus-go/learning"
	"github.com/nexuslabs/nexus-go/memory"
)

const (
	memoryExcerptLen  = 200
	episodeExcerptLen = 100
	contextEpisodes   = 3
	promptSkills      = 5
)

// DefaultSystemPrompt is the base system prompt. %s receives the skill summary.
const DefaultSystemPrompt = `You are Nexus, an autonomous agent with memory, learning, and tool-use capabilities.

Your Capabilities:
- Semantic memory for recalling related past conversations
- Episodic memory of recent interactions
- A learning engine that detects recurring requests and tracks tool proficiency
- Tool execution for actions: calculations, code evaluation, file access, search

Current Skills: %s

For each request:
1. Consider relevant memories and past interactions
2. Use tools when an action is needed
3. Give a clear, direct answer

Be proactive and precise.`

// buildContext renders retrieved memories and the newest episodes into the
// context block prepended to the user's request.
func buildContext(memories []memory.Entry, episodes []core.Episode) string {
	var b strings.Builder
	b.WriteString("# Relevant Context\n\n")

	if len(memories) > 0 {
		b.WriteString("## Relevant Memories:\n")
		for i := range memories {
			fmt.Fprintf(&b, "- %s\n", memories[i].Format(memoryExcerptLen))
		}
	}

	if len(episodes) > 0 {
		if len(episodes) > contextEpisodes {
			episodes = episodes[len(episodes)-contextEpisodes:]
		}
		b.WriteString("\n## Recent Interactions:\n")
		for _, ep := range episodes {
			fmt.Fprintf(&b, "- User: %s\n", core.Truncate(ep.UserMessage, episodeExcerptLen))
			fmt.Fprintf(&b, "  Agent: %s\n", core.Truncate(ep.AgentResponse, episodeExcerptLen))
		}
	}

	return b.String()
}

// userTurn combines the context block and the request into one user message.
func userTurn(contextBlock, text string) string {
	return contextBlock + "\n\n# Current Request:\n" + text
}

// skillSummary lists the first skills in insertion order as "name (lvl N)".
func skillSummary(skills []learning.Skill) string {
	if len(skills) == 0 {
		return "Building initial skills"
	}
	if len(skills) > promptSkills {
		skills = skills[:promptSkills]
	}
	parts := make([]string, len(skills))
	for i, s := range skills {
		parts[i] = fmt.Sprintf("%s (lvl %d)", s.Name, s.Level)
	}
	return strings.Join(parts, ", ")
}

func systemPrompt(base string, skills []learning.Skill) string {
	return fmt.Sprintf(base, skillSummary(skills))
}
