// pkg/agent/parser.go
package agent

import (
	"strconv"
	"strings"
)

// ParseAction extracts at most one action from a model reply. The grammar is
// a tool marker followed by an identifier and a parenthesized, comma
// separated argument list, e.g. `[TOOL] click(10, 20)`. Text before and
// after the call carries reasoning for the user and is ignored.
//
// The contract is permissive-fail: unknown identifiers, wrong arity, or
// non-numeric arguments where numbers are required all yield (Action{},
// false), never an error. Only the first marker occurrence is considered.
func ParseAction(reply string) (Action, bool) {
	idx := strings.Index(reply, ToolMarker)
	if idx < 0 {
		return Action{}, false
	}

	name, args, ok := scanCall(reply[idx+len(ToolMarker):])
	if !ok {
		return Action{}, false
	}

	switch name {
	case "click":
		nums, ok := parseFloats(args)
		if !ok || len(nums) != 2 {
			return Action{}, false
		}
		return Action{Kind: ActionClick, X: nums[0], Y: nums[1]}, true

	case "swipe":
		nums, ok := parseFloats(args)
		if !ok || (len(nums) != 4 && len(nums) != 5) {
			return Action{}, false
		}
		a := Action{Kind: ActionSwipe, X: nums[0], Y: nums[1], X2: nums[2], Y2: nums[3]}
		if len(nums) == 5 {
			a.DurationMs = int(nums[4])
		}
		return a, true

	case "scroll":
		if len(args) != 1 {
			return Action{}, false
		}
		dir, ok := parseDirection(args[0])
		if !ok {
			return Action{}, false
		}
		return Action{Kind: ActionScroll, Direction: dir}, true

	case "back":
		if len(args) != 0 {
			return Action{}, false
		}
		return Action{Kind: ActionBack}, true

	case "home":
		if len(args) != 0 {
			return Action{}, false
		}
		return Action{Kind: ActionHome}, true

	case "wait":
		if len(args) != 0 {
			return Action{}, false
		}
		return Action{Kind: ActionWait}, true
	}
	return Action{}, false
}

// scanCall reads `ident(arg, arg, ...)` at the start of s, after optional
// whitespace. Zero-arg calls may omit the parentheses.
func scanCall(s string) (name string, args []string, ok bool) {
	s = strings.TrimLeft(s, " \t\r\n")
	i := 0
	for i < len(s) && isIdentByte(s[i]) {
		i++
	}
	if i == 0 {
		return "", nil, false
	}
	name = strings.ToLower(s[:i])

	rest := strings.TrimLeft(s[i:], " \t")
	if !strings.HasPrefix(rest, "(") {
		return name, nil, true
	}
	end := strings.IndexByte(rest, ')')
	if end < 0 {
		return "", nil, false
	}
	inner := strings.TrimSpace(rest[1:end])
	if inner == "" {
		return name, nil, true
	}
	for _, p := range strings.Split(inner, ",") {
		args = append(args, strings.TrimSpace(p))
	}
	return name, args, true
}

func isIdentByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b == '_'
}

func parseFloats(args []string) ([]float64, bool) {
	nums := make([]float64, 0, len(args))
	for _, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, false
		}
		nums = append(nums, f)
	}
	return nums, true
}

func parseDirection(arg string) (ScrollDirection, bool) {
	switch ScrollDirection(strings.ToLower(strings.Trim(arg, `"'`))) {
	case ScrollUp:
		return ScrollUp, true
	case ScrollDown:
		return ScrollDown, true
	case ScrollLeft:
		return ScrollLeft, true
	case ScrollRight:
		return ScrollRight, true
	}
	return "", false
}
