// Copyright 2024 The coredebug Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package rsp implements the in-scope edge of the GDB Remote Serial
// Protocol host surface: the monitor-command dispatch table, the
// memory-map XML payload, and the semihosting F-packet codec. The RSP
// packet parser/dispatcher itself is an external collaborator (spec.md
// §1/§6) — this package is what it calls into.
package rsp

import (
	"fmt"
	"sort"
	"sync"
)

// CommandFunc implements one `monitor <name> [args]` extension.
type CommandFunc func(args []string) (string, error)

// Core dispatches monitor commands registered by attached target
// families (spec.md §6: "each target driver registers zero or more such
// commands on probe").
type Core struct {
	mu       sync.Mutex
	commands map[string]CommandFunc
}

// NewCore returns an empty Core.
func NewCore() *Core {
	return &Core{commands: map[string]CommandFunc{}}
}

// Register adds (or replaces) the handler for a monitor command name.
func (c *Core) Register(name string, fn CommandFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands[name] = fn
}

// Unregister removes a previously registered command, used when a
// target detaches.
func (c *Core) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.commands, name)
}

// Names returns every registered command name, sorted, mainly for `monitor
// help` style listings.
func (c *Core) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.commands))
	for n := range c.commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// HandleCommand dispatches a decoded `monitor <name> [args]` to its
// registered handler, returning the reply text the dispatcher forwards
// to GDB via a sequence of `O` packets (spec.md §6).
func (c *Core) HandleCommand(name string, args []string) (string, error) {
	c.mu.Lock()
	fn, ok := c.commands[name]
	c.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("rsp: unknown monitor command %q", name)
	}
	return fn(args)
}

// Diagnostic formats recoverable-error or progress text for the
// dispatcher to forward via `O` packets — the gdb_out/gdb_outf analog
// spec.md §6/§7 describe.
func Diagnostic(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}
