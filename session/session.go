// Copyright 2024 The coredebug Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package session owns the collection of targets attached to one debug
// probe run, the Component-ID-keyed family probe registry, and the
// cancellation token shared by long-running operations.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/armprobe/coredebug/ap"
	"github.com/armprobe/coredebug/dp"
	"github.com/armprobe/coredebug/target"
)

var log = logrus.WithField("pkg", "session")

// Probe matches a ROM-table Component's PID/CID against a known family
// and attaches a target.Target for it. Family drivers register one via
// Register from an init() in flash/<family>.go, mirroring the teacher's
// own Driver/MustRegister bring-up pattern (periph.go) adapted from
// host-bus bring-up to Component-ID-keyed target dispatch.
type Probe interface {
	Name() string
	Match(pid, cid [2]uint32) bool
	Attach(mem *ap.MemAP) (target.Target, error)
}

var (
	registryMu sync.Mutex
	registry   []Probe
)

// Register adds p to the family probe registry. Called from family
// package init() functions.
func Register(p Probe) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, p)
	log.WithField("family", p.Name()).Debug("registered probe")
}

// IDCodeReader reads a family-specific identification register through
// mem (DBGMCU_IDCODE, FICR CONFIGID, DEVICE_ID, ...) and returns the
// matching Probe, or nil if the value it read doesn't belong to its
// family. Registered for families whose ROM-table PID/CID alone can't
// distinguish them (STM32, nRF51, LPC — spec.md §8 scenarios 1/3/6):
// these probes are tried against a MEM-AP only after the generic PID/CID
// registry finds no match on any component the ROM table walk turned up.
type IDCodeReader func(mem *ap.MemAP) (Probe, error)

var (
	idCodeMu      sync.Mutex
	idCodeReaders []IDCodeReader
)

// RegisterIDCodeReader adds r to the ID-register probe fallback list.
// Called from family package init() functions alongside Register.
func RegisterIDCodeReader(r IDCodeReader) {
	idCodeMu.Lock()
	defer idCodeMu.Unlock()
	idCodeReaders = append(idCodeReaders, r)
}

// AbortToken is the single cancellation primitive threaded into any
// operation that busy-polls hardware (wire ACK retry, flash/reset status
// polling, stub wait) — spec.md §5/§12, Design Note §9: a fast-unwind
// token, not a Go panic.
type AbortToken struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewAbortToken returns a fresh, not-yet-requested token.
func NewAbortToken() *AbortToken {
	ctx, cancel := context.WithCancel(context.Background())
	return &AbortToken{ctx: ctx, cancel: cancel}
}

// Context returns the context.Context to pass into cancellable operations.
func (a *AbortToken) Context() context.Context { return a.ctx }

// RequestHalt is called from the RSP Ctrl-C handler (external, out of
// scope) to request the current operation unwind at its next check point.
func (a *AbortToken) RequestHalt() { a.cancel() }

// Session owns every target attached during one probe run.
type Session struct {
	mu      sync.Mutex
	targets []target.Target
	current int // index into targets, or -1

	abort *AbortToken
}

// New returns an empty Session.
func New() *Session {
	return &Session{current: -1, abort: NewAbortToken()}
}

// Abort returns the session's cancellation token.
func (s *Session) Abort() *AbortToken { return s.abort }

// Current returns the session's single active target, or nil if none is
// attached (spec.md §3 invariant: exactly one target is current once
// attach succeeds).
func (s *Session) Current() target.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current < 0 {
		return nil
	}
	return s.targets[s.current]
}

// Targets returns every attached target.
func (s *Session) Targets() []target.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]target.Target(nil), s.targets...)
}

// attach appends t to the owned collection, making it current if it is
// the first target attached (Design Note §9: owned collection, not a
// process-wide linked list).
func (s *Session) attach(t target.Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets = append(s.targets, t)
	if s.current < 0 {
		s.current = len(s.targets) - 1
	}
}

// Detach calls t.Detach and removes it from the owned collection.
func (s *Session) Detach(t target.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.targets {
		if cur != t {
			continue
		}
		if err := t.Detach(); err != nil {
			return err
		}
		s.targets = append(s.targets[:i], s.targets[i+1:]...)
		if s.current == i {
			s.current = -1
			if len(s.targets) > 0 {
				s.current = 0
			}
		} else if s.current > i {
			s.current--
		}
		return nil
	}
	return fmt.Errorf("session: target not attached")
}

// Discover walks every MEM-AP reachable on port, walks each one's ROM
// table, and attaches the first registered Probe that matches each
// component found (spec.md §4.3/§8 scenario 3). It returns
// target.ErrUnknownTarget, wrapped with a "session:" prefix, if no
// target.Target was attached at all; the error does not carry any
// component's PID/CID.
func (s *Session) Discover(port dp.Port) ([]target.Target, error) {
	aps, err := ap.Scan(port)
	if err != nil {
		return nil, err
	}
	var attached []target.Target
	for _, a := range aps {
		if a.Class() != ap.ClassMEM {
			continue
		}
		mem := ap.NewMemAP(port, a.Select(), a.IDR())
		components, err := ap.WalkROMTable(mem, 0xe00ff000)
		if err != nil {
			log.WithField("ap", a.Select()).WithError(err).Warn("ROM table walk failed")
			continue
		}
		matched := false
		for _, c := range components {
			t, ok := s.matchAndAttach(mem, c)
			if ok {
				attached = append(attached, t)
				matched = true
			}
		}
		// No registered family matched this MEM-AP's ROM-table PID/CID
		// (STM32/nRF51/LPC don't expose a family-distinguishing generic
		// Component-ID — spec.md §8 scenarios 1, 3, 6). Fall back to
		// reading each registered vendor-specific ID register directly
		// through the MEM-AP, once per AP so a match can't double-attach
		// across several ROM-table components.
		if !matched {
			if t, ok := s.matchByIDCode(mem); ok {
				attached = append(attached, t)
			}
		}
	}
	if len(attached) == 0 {
		return nil, fmt.Errorf("session: %w", target.ErrUnknownTarget)
	}
	return attached, nil
}

func (s *Session) matchAndAttach(mem *ap.MemAP, c ap.Component) (target.Target, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, p := range registry {
		if !p.Match(c.PID, c.CID) {
			continue
		}
		t, err := p.Attach(mem)
		if err != nil {
			log.WithField("family", p.Name()).WithError(err).Warn("attach failed")
			continue
		}
		s.attach(t)
		return t, true
	}
	return nil, false
}

// matchByIDCode tries every registered IDCodeReader against mem in turn,
// stopping at the first one that returns a non-nil Probe. A reader whose
// register read fails (bus error, not-this-family timeout) is logged and
// skipped rather than aborting discovery for the rest of the probe run.
func (s *Session) matchByIDCode(mem *ap.MemAP) (target.Target, bool) {
	idCodeMu.Lock()
	readers := append([]IDCodeReader(nil), idCodeReaders...)
	idCodeMu.Unlock()
	for _, r := range readers {
		p, err := r(mem)
		if err != nil {
			log.WithError(err).Debug("id-code read failed")
			continue
		}
		if p == nil {
			continue
		}
		t, err := p.Attach(mem)
		if err != nil {
			log.WithField("family", p.Name()).WithError(err).Warn("attach failed")
			continue
		}
		s.attach(t)
		return t, true
	}
	return nil, false
}
