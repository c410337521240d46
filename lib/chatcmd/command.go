// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatcmd

import (
	"fmt"
	"strings"
	"unicode"
)

// Command is one in-app command: its name, help strings, and the
// parser turning validated arguments into an Action.
type Command struct {
	// Name is the command as typed after the ":" prompt.
	Name string

	// Summary is a one-line description for the welcome screen.
	Summary string

	// Usage is the full argument form, shown in validation errors.
	Usage string

	// AllowBang permits the "name!" form. Parsers receive the flag.
	AllowBang bool

	// Parse validates args and builds the action. Never nil.
	Parse func(args []string, bang bool) (Action, error)
}

// Registry is the dispatchable command set.
type Registry struct {
	commands []*Command
	byName   map[string]*Command
}

// NewRegistry returns the full Parley command set.
func NewRegistry() *Registry {
	registry := &Registry{byName: make(map[string]*Command)}
	for _, command := range parleyCommands() {
		registry.commands = append(registry.commands, command)
		registry.byName[command.Name] = command
	}
	return registry
}

// Commands returns the command set in definition order, for help
// rendering.
func (r *Registry) Commands() []*Command {
	return r.commands
}

// Dispatch parses one command line into an Action. The leading ":" is
// optional. Unknown names produce an error with a closest-match
// suggestion when one is close enough.
func (r *Registry) Dispatch(line string) (Action, error) {
	line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), ":"))
	if line == "" {
		return nil, fmt.Errorf("empty command")
	}

	name := line
	rest := ""
	if index := strings.IndexFunc(line, unicode.IsSpace); index >= 0 {
		name = line[:index]
		rest = line[index:]
	}
	bang := false
	if strings.HasSuffix(name, "!") {
		bang = true
		name = strings.TrimSuffix(name, "!")
	}

	command, ok := r.byName[name]
	if !ok {
		if suggestion := r.suggest(name); suggestion != "" {
			return nil, fmt.Errorf("unknown command %q (did you mean %q?)", name, suggestion)
		}
		return nil, fmt.Errorf("unknown command %q", name)
	}
	if bang && !command.AllowBang {
		return nil, fmt.Errorf(":%s does not take !", name)
	}

	args, err := splitArgs(rest)
	if err != nil {
		return nil, fmt.Errorf(":%s: %w", name, err)
	}
	return command.Parse(args, bang)
}

// suggest returns the closest command name to the unknown input, or ""
// if nothing is within edit distance 3.
func (r *Registry) suggest(unknown string) string {
	bestName := ""
	bestDistance := 4
	for _, command := range r.commands {
		distance := levenshtein(unknown, command.Name)
		if distance < bestDistance {
			bestDistance = distance
			bestName = command.Name
		}
	}
	return bestName
}

// levenshtein computes the edit distance between two strings using a
// single reused row of the distance matrix.
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	if len(a) > len(b) {
		a, b = b, a
	}

	previous := make([]int, len(a)+1)
	for i := range previous {
		previous[i] = i
	}
	for j := 1; j <= len(b); j++ {
		current := make([]int, len(a)+1)
		current[0] = j
		for i := 1; i <= len(a); i++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			deletion := previous[i] + 1
			insertion := current[i-1] + 1
			substitution := previous[i-1] + cost
			current[i] = min(deletion, min(insertion, substitution))
		}
		previous = current
	}
	return previous[len(a)]
}

// splitArgs splits a command tail into arguments. Double quotes group
// words ("Operations Chat" is one argument) and backslash escapes the
// next character inside or outside quotes.
func splitArgs(raw string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuote := false
	escaped := false
	started := false

	flush := func() {
		if started {
			args = append(args, current.String())
			current.Reset()
			started = false
		}
	}

	for _, r := range raw {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
			started = true
		case r == '"':
			inQuote = !inQuote
			started = true
		case unicode.IsSpace(r) && !inQuote:
			flush()
		default:
			current.WriteRune(r)
			started = true
		}
	}
	if escaped {
		return nil, fmt.Errorf("trailing backslash")
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote")
	}
	flush()
	return args, nil
}
