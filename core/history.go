package core

import (
	"fmt"
	"strings"
)

// DefaultTokenBudget is the approximate token ceiling applied to model input.
const DefaultTokenBudget = 59000

// TrimPolicy bounds the length of a conversation history.
//
// MaxMessages <= 0 disables trimming. With PinAnchor the first message (the
// conversation's identity/context anchor) survives every trim and counts
// against the cap; pinning needs MaxMessages >= 2, smaller caps trim unpinned.
type TrimPolicy struct {
	MaxMessages int
	PinAnchor   bool
}

// Apply returns the trimmed history. The newest messages are kept in order;
// tool results whose originating call was trimmed away are dropped as well.
func (p TrimPolicy) Apply(history []Message) []Message {
	if p.MaxMessages <= 0 || len(history) <= p.MaxMessages {
		return history
	}

	if p.PinAnchor && p.MaxMessages >= 2 {
		tail := history[len(history)-(p.MaxMessages-1):]
		out := make([]Message, 0, p.MaxMessages)
		out = append(out, history[0])
		return append(out, dropOrphanToolResults(tail, callIDs(history[:1]))...)
	}

	tail := history[len(history)-p.MaxMessages:]
	return dropOrphanToolResults(append([]Message(nil), tail...), nil)
}

// ValidateToolLinkage checks that every tool-result message links to exactly
// one tool call requested earlier in the same history.
func ValidateToolLinkage(history []Message) error {
	seen := map[string]int{}
	for i, m := range history {
		switch m.Role {
		case RoleAssistant:
			for _, c := range m.ToolCalls {
				seen[c.ID]++
			}
		case RoleTool:
			n := seen[m.ToolCallID]
			if n == 0 {
				return fmt.Errorf("message %d: tool result %q has no preceding tool call", i, m.ToolCallID)
			}
			if n > 1 {
				return fmt.Errorf("message %d: tool result %q matches %d tool calls", i, m.ToolCallID, n)
			}
		}
	}
	return nil
}

// ApproximateTokens estimates the token count of text as words plus a quarter
// of the summed word lengths.
func ApproximateTokens(text string) int {
	words := strings.Fields(text)
	chars := 0
	for _, w := range words {
		chars += len(w)
	}
	return len(words) + chars/4
}

func messageTokens(m Message) int {
	n := ApproximateTokens(m.Text())
	for _, c := range m.ToolCalls {
		n += ApproximateTokens(c.Name + " " + c.Arguments)
	}
	if m.Role == RoleTool {
		n += ApproximateTokens(m.ToolResultContent())
	}
	return n
}

// FilterByTokenBudget keeps the newest messages whose combined approximate
// token count fits budget. Leading system messages are always kept. A budget
// <= 0 disables filtering.
func FilterByTokenBudget(history []Message, budget int) []Message {
	if budget <= 0 || len(history) == 0 {
		return history
	}

	lead := 0
	used := 0
	for lead < len(history) && history[lead].Role == RoleSystem {
		used += messageTokens(history[lead])
		lead++
	}

	start := len(history)
	for i := len(history) - 1; i >= lead; i-- {
		t := messageTokens(history[i])
		if used+t > budget {
			break
		}
		used += t
		start = i
	}

	if start == lead {
		return history
	}
	if start == len(history) {
		// the newest message is always sent, even when it alone exceeds the budget
		start = len(history) - 1
	}

	out := make([]Message, 0, lead+len(history)-start)
	out = append(out, history[:lead]...)
	return append(out, dropOrphanToolResults(history[start:], callIDs(history[:lead]))...)
}

func callIDs(history []Message) map[string]bool {
	ids := map[string]bool{}
	for _, m := range history {
		for _, c := range m.ToolCalls {
			ids[c.ID] = true
		}
	}
	return ids
}

// dropOrphanToolResults removes tool results not preceded by their call.
// known seeds call ids that are visible from messages before the slice.
func dropOrphanToolResults(history []Message, known map[string]bool) []Message {
	ids := map[string]bool{}
	for k := range known {
		ids[k] = true
	}
	out := history[:0:0]
	for _, m := range history {
		if m.Role == RoleTool && !ids[m.ToolCallID] {
			continue
		}
		for _, c := range m.ToolCalls {
			ids[c.ID] = true
		}
		out = append(out, m)
	}
	return out
}
