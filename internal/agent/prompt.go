package agent

import (
	"fmt"
	"strings"

	"sedar-analyst/internal/tokenizer"
	"sedar-analyst/internal/tools"
)

// FormatCorrection is appended to the prompt after an unparsable reply.
const FormatCorrection = "Your previous reply did not follow the required format. Respond with either\n" +
	"Thought: ...\nAction: <one of the tool names>\nAction Input: <JSON object>\n" +
	"or\nThought: ...\nAnswer: <final answer>"

// maxObservationRunes bounds a single observation inside the prompt.
const maxObservationRunes = 4000

const preamble = `You are a meticulous financial analyst answering questions about a company's SEDAR+ filing.
Use the tools to look up facts in the filing, to compute ratios and to check stock prices. Never invent figures; if the tools cannot supply a number, say so.

You have access to the following tools:
`

func buildPrompt(question string, registry *tools.Registry, trace *Trace, correction bool) string {
	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n")
	for _, d := range registry.Descriptors() {
		fmt.Fprintf(&b, "%s: %s\n  Input schema: %s\n", d.Name, d.Description, d.SchemaJSON())
	}

	fmt.Fprintf(&b, `
Use the following format:

Thought: think about what to do next
Action: the tool to use, exactly one of [%s]
Action Input: a JSON object matching the tool's input schema
Observation: the tool result (provided to you, never write it yourself)
... (Thought/Action/Action Input/Observation may repeat)
Thought: I now know the final answer
Answer: the final answer to the original question

Begin!

Question: %s
`, strings.Join(registry.Names(), ", "), question)

	for _, s := range trace.Steps {
		if s.Action == "" {
			// parse failures and model errors are not replayed
			continue
		}
		fmt.Fprintf(&b, "Thought: %s\nAction: %s\nAction Input: %s\nObservation: %s\n",
			s.Thought, s.Action, s.ActionInput, tokenizer.TruncateRunes(s.Observation, maxObservationRunes))
	}
	if correction {
		b.WriteString("\n")
		b.WriteString(FormatCorrection)
		b.WriteString("\n")
	}
	b.WriteString("Thought:")
	return b.String()
}
