package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/devricklin/chatwarden/internal/biz/domain"
	"github.com/devricklin/chatwarden/internal/biz/repo"
)

// Invocation is one parsed command call
type Invocation struct {
	Msg       *domain.Context
	Transport repo.Transport
	Name      string
	Args      []string
	RawArgs   string
}

// Arg returns the i-th argument or ""
func (inv *Invocation) Arg(i int) string {
	if i < 0 || i >= len(inv.Args) {
		return ""
	}
	return inv.Args[i]
}

// CommandFunc executes a command
type CommandFunc func(ctx context.Context, inv *Invocation) error

// Command is a registry entry
type Command struct {
	Name        string
	Aliases     []string
	Capability  domain.Capability
	Usage       string
	Description string
	Run         CommandFunc
}

// CommandRegistry maps tokens to commands.
// It is filled at startup and read-only afterwards.
type CommandRegistry struct {
	prefix   string
	commands map[string]*Command
	names    []string
}

// NewCommandRegistry creates a registry for the given command prefix
func NewCommandRegistry(prefix string) *CommandRegistry {
	return &CommandRegistry{
		prefix:   prefix,
		commands: make(map[string]*Command),
	}
}

// Prefix returns the command prefix
func (r *CommandRegistry) Prefix() string {
	return r.prefix
}

// Register adds a command under its name and aliases
func (r *CommandRegistry) Register(cmd *Command) error {
	if cmd.Run == nil {
		return fmt.Errorf("command %q has no handler", cmd.Name)
	}
	tokens := append([]string{cmd.Name}, cmd.Aliases...)
	for _, tok := range tokens {
		if _, ok := r.commands[strings.ToLower(tok)]; ok {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateCommand, tok)
		}
	}
	for _, tok := range tokens {
		r.commands[strings.ToLower(tok)] = cmd
	}
	r.names = append(r.names, cmd.Name)
	sort.Strings(r.names)
	return nil
}

// Lookup resolves a token
func (r *CommandRegistry) Lookup(token string) (*Command, bool) {
	c, ok := r.commands[strings.ToLower(token)]
	return c, ok
}

// List returns commands sorted by name
func (r *CommandRegistry) List() []*Command {
	out := make([]*Command, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.commands[strings.ToLower(n)])
	}
	return out
}

// IsInvocation reports whether text starts with the prefix
func (r *CommandRegistry) IsInvocation(text string) bool {
	t := strings.TrimSpace(text)
	return len(t) > len(r.prefix) && strings.HasPrefix(t, r.prefix)
}

// Parse splits a command invocation into name and arguments
func (r *CommandRegistry) Parse(text string) (name string, args []string, raw string, ok bool) {
	if !r.IsInvocation(text) {
		return "", nil, "", false
	}
	body := strings.TrimPrefix(strings.TrimSpace(text), r.prefix)
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return "", nil, "", false
	}
	name = strings.ToLower(fields[0])
	raw = strings.TrimSpace(strings.TrimPrefix(body, fields[0]))
	return name, fields[1:], raw, true
}
