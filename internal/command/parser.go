package command

import (
	"errors"
	"strconv"
	"strings"
)

// ErrEmpty is returned when a command line has no tokens.
var ErrEmpty = errors.New("empty command")

// Invocation is a parsed command line.
type Invocation struct {
	Name string
	// Args holds k=v tokens by key and positional tokens under "1", "2", ...
	Args map[string]string
}

// Parse splits a command line on whitespace. The first token is the name.
// A token containing "=" is split on its first "=" into a named argument;
// every other token is positional and numbered from 1 among positional
// tokens only. Later keys overwrite earlier ones.
func Parse(input string) (Invocation, error) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return Invocation{}, ErrEmpty
	}

	inv := Invocation{Name: parts[0], Args: make(map[string]string, len(parts)-1)}
	pos := 1
	for _, part := range parts[1:] {
		if key, val, ok := strings.Cut(part, "="); ok {
			inv.Args[key] = val
			continue
		}
		inv.Args[strconv.Itoa(pos)] = part
		pos++
	}
	return inv, nil
}

// ParseSlash parses a chat line such as "/review file=a.go", dropping the
// leading "/" from the name.
func ParseSlash(input string) (Invocation, error) {
	inv, err := Parse(input)
	if err != nil {
		return inv, err
	}
	inv.Name = strings.TrimPrefix(inv.Name, "/")
	if inv.Name == "" {
		return Invocation{}, ErrEmpty
	}
	return inv, nil
}

// IsSlash reports whether a chat line is a slash command.
func IsSlash(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "/")
}
