package agent

import (
	"errors"
	"strings"
)

var errUnparsable = errors.New("model output matches neither the action nor the answer format")

type field int

const (
	fieldNone field = iota
	fieldThought
	fieldAction
	fieldInput
	fieldAnswer
)

// labels are matched case-insensitively at the start of a line, longest first.
var labels = []struct {
	prefix string
	field  field
}{
	{"action input:", fieldInput},
	{"final answer:", fieldAnswer},
	{"thought:", fieldThought},
	{"action:", fieldAction},
	{"answer:", fieldAnswer},
}

// decision is one parsed model turn: either a tool call or a final answer.
type decision struct {
	Thought     string
	Action      string
	ActionInput string
	Answer      string
	Final       bool
}

// parseOutput reads the ReAct text format. Anything after a model-written
// "Observation:" line is discarded since observations come from tools only.
func parseOutput(text string) (decision, error) {
	var (
		parts = map[field]*strings.Builder{}
		order []field
		cur   = fieldNone
	)
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimLeft(strings.TrimSpace(line), "*#> ")
		if hasLabel(trimmed, "observation:") {
			break
		}
		matched := false
		for _, l := range labels {
			if !hasLabel(trimmed, l.prefix) {
				continue
			}
			rest := strings.TrimSpace(strings.TrimLeft(trimmed[len(l.prefix):], "*"))
			if _, seen := parts[l.field]; seen {
				// A repeated label starts a second turn the model should not have written.
				return build(parts, order)
			}
			b := &strings.Builder{}
			b.WriteString(rest)
			parts[l.field] = b
			order = append(order, l.field)
			cur = l.field
			matched = true
			break
		}
		if matched {
			continue
		}
		if cur == fieldNone {
			// the prompt ends with "Thought:", so a reply may open mid-thought
			if trimmed == "" {
				continue
			}
			parts[fieldThought] = &strings.Builder{}
			order = append(order, fieldThought)
			cur = fieldThought
		}
		b := parts[cur]
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	return build(parts, order)
}

func hasLabel(line, prefix string) bool {
	return len(line) >= len(prefix) && strings.EqualFold(line[:len(prefix)], prefix)
}

func build(parts map[field]*strings.Builder, order []field) (decision, error) {
	get := func(f field) string {
		if b, ok := parts[f]; ok {
			return strings.TrimSpace(b.String())
		}
		return ""
	}
	d := decision{Thought: get(fieldThought)}

	first := fieldNone
	for _, f := range order {
		if f == fieldAction || f == fieldAnswer {
			first = f
			break
		}
	}
	switch first {
	case fieldAnswer:
		d.Answer = get(fieldAnswer)
		if d.Answer == "" {
			return decision{}, errUnparsable
		}
		d.Final = true
	case fieldAction:
		d.Action = cleanAction(get(fieldAction))
		d.ActionInput = cleanInput(get(fieldInput))
		if d.Action == "" || d.ActionInput == "" {
			return decision{}, errUnparsable
		}
	default:
		return decision{}, errUnparsable
	}
	return d, nil
}

func cleanAction(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "`\"'[]")
	if i := strings.IndexAny(s, " \n("); i >= 0 {
		s = s[:i]
	}
	return s
}

// cleanInput strips markdown code fences around the JSON object.
func cleanInput(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.Trim(strings.TrimSpace(s), "`")
}
