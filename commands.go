package devassist

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/everydev1618/devassist/dsl"
	"github.com/everydev1618/devassist/store"
)

// CommandFunc handles one directive of a section.
type CommandFunc func(ctx context.Context, s *Session, cmd *dsl.Command) (dsl.Result, error)

// CommandMiddleware wraps command execution.
type CommandMiddleware func(CommandFunc) CommandFunc

// Commands maps directive names to handlers. Names are matched exactly
// first, then against registered prefixes, longest prefix first.
type Commands struct {
	exact      map[string]CommandFunc
	prefixes   []prefixCommand
	middleware []CommandMiddleware
	mu         sync.RWMutex
}

type prefixCommand struct {
	prefix string
	fn     CommandFunc
}

// NewCommands creates an empty command registry.
func NewCommands() *Commands {
	return &Commands{
		exact: make(map[string]CommandFunc),
	}
}

// Register adds a handler for the directive name.
func (c *Commands) Register(name string, fn CommandFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.exact[name]; ok {
		return &CommandError{Command: name, Err: ErrCommandRegistered}
	}
	c.exact[name] = fn
	return nil
}

// RegisterPrefix adds a handler for every directive starting with prefix.
func (c *Commands) RegisterPrefix(prefix string, fn CommandFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range c.prefixes {
		if p.prefix == prefix {
			return &CommandError{Command: prefix + "*", Err: ErrCommandRegistered}
		}
	}
	c.prefixes = append(c.prefixes, prefixCommand{prefix: prefix, fn: fn})
	sort.SliceStable(c.prefixes, func(i, j int) bool {
		return len(c.prefixes[i].prefix) > len(c.prefixes[j].prefix)
	})
	return nil
}

// Use adds middleware to the command chain.
func (c *Commands) Use(mw CommandMiddleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middleware = append(c.middleware, mw)
}

// Lookup returns the handler for a directive name.
func (c *Commands) Lookup(name string) (CommandFunc, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if fn, ok := c.exact[name]; ok {
		return fn, true
	}
	for _, p := range c.prefixes {
		if strings.HasPrefix(name, p.prefix) {
			return p.fn, true
		}
	}
	return nil, false
}

// Names returns the registered names in sorted order. Prefixes end in '*'.
func (c *Commands) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.exact)+len(c.prefixes))
	for name := range c.exact {
		names = append(names, name)
	}
	for _, p := range c.prefixes {
		names = append(names, p.prefix+"*")
	}
	sort.Strings(names)
	return names
}

// Execute runs the handler for cmd.Type. A directive with no handler yields
// a *dsl.DirectiveError wrapping dsl.ErrNoHandler.
func (c *Commands) Execute(ctx context.Context, s *Session, cmd *dsl.Command) (dsl.Result, error) {
	fn, ok := c.Lookup(cmd.Type)
	c.mu.RLock()
	middleware := c.middleware
	c.mu.RUnlock()

	if !ok {
		return dsl.Result{}, &dsl.DirectiveError{Directive: cmd.Type, Err: dsl.ErrNoHandler}
	}

	exec := fn
	for i := len(middleware) - 1; i >= 0; i-- {
		exec = middleware[i](exec)
	}

	res, err := exec(ctx, s, cmd)
	if err != nil {
		return dsl.Result{}, &CommandError{Command: cmd.Type, Err: err}
	}
	return res, nil
}

// Journal returns middleware that records every command into the run
// history. Recording failures are logged, not returned.
func Journal(h History) CommandMiddleware {
	return func(next CommandFunc) CommandFunc {
		return func(ctx context.Context, s *Session, cmd *dsl.Command) (dsl.Result, error) {
			start := time.Now()
			res, err := next(ctx, s, cmd)

			ev := store.Event{
				RunID:      s.ID,
				Directive:  cmd.Type,
				Input:      truncate(cmd.Input.Text(), 4096),
				OK:         res.OK,
				Output:     truncate(res.Text(), 4096),
				DurationMS: time.Since(start).Milliseconds(),
				CreatedAt:  start,
			}
			if err != nil {
				ev.Error = err.Error()
			}
			if rerr := h.InsertEvent(ctx, ev); rerr != nil {
				s.Logger.Warn("record command failed", "directive", cmd.Type, "error", rerr)
			}
			return res, err
		}
	}
}

// Logging returns middleware that logs every command at debug level.
func Logging() CommandMiddleware {
	return func(next CommandFunc) CommandFunc {
		return func(ctx context.Context, s *Session, cmd *dsl.Command) (dsl.Result, error) {
			start := time.Now()
			res, err := next(ctx, s, cmd)
			s.Logger.Debug("command finished",
				"directive", cmd.Type,
				"ok", res.OK,
				"duration", time.Since(start),
				"error", err,
			)
			return res, err
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s... (%d bytes)", s[:n], len(s))
}
