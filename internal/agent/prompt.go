package agent

import (
	"fmt"
	"strings"

	"github.com/animus-coder/codesmith/internal/tools"
)

const reactFormat = `## Tools

You have access to a wide variety of tools. You are responsible for using the tools in any sequence you deem appropriate to complete the task at hand.
This may require breaking the task into subtasks and using different tools to complete each subtask.

You have access to the following tools:
%s

## Output Format

Please answer in the same language as the question and use the following format:

Thought: The current language of the user is: (user's language). I need to use a tool to help me answer the question.
Action: tool name (one of %s) if using a tool.
Action Input: the input to the tool, in a JSON format representing the kwargs (e.g. {"input": "hello world"})

Please ALWAYS start with a Thought.

NEVER surround your response with markdown code markers. You may use code markers within your response if you need to.

If this format is used, the tool will respond in the following format:

Observation: tool response

You should keep repeating the above format till you have enough information to answer the question without using any more tools. At that point, you MUST respond in one of the following two formats:

Thought: I can answer without using any more tools. I'll use the user's language to answer
Answer: [your answer here (In the same language as the user's question)]

Thought: I cannot answer the question with the provided tools.
Answer: [your answer here (In the same language as the user's question)]`

// buildSystemPrompt combines the agent's instruction context with the tool
// catalogue and the reasoning format.
func buildSystemPrompt(instructions string, bound []tools.Tool) string {
	var catalogue strings.Builder
	names := make([]string, 0, len(bound))
	for _, t := range bound {
		fmt.Fprintf(&catalogue, "> Tool Name: %s\nTool Description: %s\n\n", t.Name(), t.Description())
		names = append(names, t.Name())
	}

	var b strings.Builder
	if s := strings.TrimSpace(instructions); s != "" {
		b.WriteString(s)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, reactFormat, strings.TrimSpace(catalogue.String()), strings.Join(names, ", "))
	return b.String()
}

// observationMessage formats a tool result fed back to the model.
func observationMessage(obs string) string {
	return "Observation: " + obs
}

func truncateForPrompt(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	return text[:limit] + "... [truncated]"
}
