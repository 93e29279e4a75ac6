package engine

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nexuslabs/nexus-go/core"
	"github.com/nexuslabs/nexus-go/learning"
	"github.com/nexuslabs/nexus-go/memory"
)

func TestBuildContext(t *testing.T) {
	memories := []memory.Entry{
		{Content: strings.Repeat("m", 250)},
		{Content: "short memory"},
	}
	var episodes []core.Episode
	for i := 0; i < 5; i++ {
		episodes = append(episodes, core.Episode{
			ID:            strconv.Itoa(i),
			UserMessage:   "question " + strconv.Itoa(i),
			AgentResponse: "answer " + strconv.Itoa(i),
		})
	}
	episodes[4].UserMessage = strings.Repeat("u", 150)

	want := "# Relevant Context\n\n" +
		"## Relevant Memories:\n" +
		"- " + strings.Repeat("m", 200) + "...\n" +
		"- short memory\n" +
		"\n## Recent Interactions:\n" +
		"- User: question 2\n  Agent: answer 2\n" +
		"- User: question 3\n  Agent: answer 3\n" +
		"- User: " + strings.Repeat("u", 100) + "...\n  Agent: answer 4\n"

	assert.Equal(t, want, buildContext(memories, episodes))
}

func TestBuildContext_Empty(t *testing.T) {
	assert.Equal(t, "# Relevant Context\n\n", buildContext(nil, nil))
}

func TestUserTurn(t *testing.T) {
	assert.Equal(t, "CTX\n\n# Current Request:\nhello", userTurn("CTX", "hello"))
}

func TestSkillSummary(t *testing.T) {
	assert.Equal(t, "Building initial skills", skillSummary(nil))
	assert.Equal(t, "calculate (lvl 3), read_file (lvl 1)", skillSummary([]learning.Skill{
		{Name: "calculate", Level: 3},
		{Name: "read_file", Level: 1},
	}))
}

func TestConversation_Trim(t *testing.T) {
	c := NewConversation(4)
	c.Append("u1", "a1")
	c.Append("u2", "a2")
	c.Append("u3", "a3")

	msgs := c.Messages()
	assert.Len(t, msgs, 4)
	assert.Equal(t, "u2", msgs[0].Text())
	assert.Equal(t, "a3", msgs[3].Text())

	c.Reset()
	assert.Zero(t, c.Len())
}
