// Copyright 2024 The coredebug Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flash

import (
	"context"
	"testing"
	"time"

	"github.com/armprobe/coredebug/ap"
	"github.com/armprobe/coredebug/dp"
	"github.com/armprobe/coredebug/target"
)

// fakePort is an in-memory dp.Port fake mirroring ap's own test fake:
// WriteAP(RegDRW, v) stores v at the TAR it was last given and
// auto-increments it by 4, enough to drive a real ap.MemAP.
type fakePort struct {
	mem map[uint32]uint32
	tar uint32
}

func newFakePort() *fakePort { return &fakePort{mem: map[uint32]uint32{}} }

func (p *fakePort) ReadDP(addr uint8) (uint32, error)  { return 0, nil }
func (p *fakePort) WriteDP(addr uint8, v uint32) error { return nil }
func (p *fakePort) ErrorClear() error                  { return nil }
func (p *fakePort) Fault() bool                        { return false }
func (p *fakePort) ReadAP(addr uint8) (uint32, error) {
	switch addr {
	case ap.RegIDR:
		return 0x24770011, nil
	case ap.RegDRW:
		v := p.mem[p.tar]
		p.tar += 4
		return v, nil
	}
	return 0, nil
}
func (p *fakePort) WriteAP(addr uint8, v uint32) error {
	switch addr {
	case ap.RegTAR:
		p.tar = v
	case ap.RegDRW:
		p.mem[p.tar] = v
		p.tar += 4
	}
	return nil
}

var _ dp.Port = (*fakePort)(nil)

// fakeTarget is a minimal target.Target that models just enough of
// Cortex-M register/halt semantics for RunStub to exercise its save,
// load, resume, poll, and restore sequence.
type fakeTarget struct {
	regs    [16]uint32
	state   target.State
	halted  bool
	polls   int
	haltOn  int // halts (reports Breakpoint) on this poll count
	breakAt uint32
}

func (t *fakeTarget) Variant() string       { return "faketarget" }
func (t *fakeTarget) State() target.State   { return t.state }
func (t *fakeTarget) HaltRequest() error    { t.halted = true; return nil }
func (t *fakeTarget) Resume(step bool) error {
	t.state = target.Running
	t.halted = false
	t.polls = 0
	return nil
}
func (t *fakeTarget) HaltPoll() (target.HaltReason, error) {
	t.polls++
	if t.polls < t.haltOn {
		return target.NotHalted, nil
	}
	t.state = target.Halted
	return target.Breakpoint, nil
}
func (t *fakeTarget) ReadReg(n int) (uint32, error)  { return t.regs[n], nil }
func (t *fakeTarget) WriteReg(n int, v uint32) error { t.regs[n] = v; return nil }
func (t *fakeTarget) SetBreakwatch(bw target.Breakwatch) (target.Breakwatch, error) {
	t.breakAt = bw.Addr
	bw.Addr = bw.Addr
	return bw, nil
}
func (t *fakeTarget) ClearBreakwatch(bw target.Breakwatch) error { return nil }
func (t *fakeTarget) Detach() error                              { return nil }

var _ target.Target = (*fakeTarget)(nil)

func TestRunStubRestoresRegistersAndReturnsR0(t *testing.T) {
	port := newFakePort()
	mem := ap.NewMemAP(port, 0, 0x24770011)
	tgt := &fakeTarget{haltOn: 2}
	tgt.regs[5] = 0xdeadbeef

	code := []byte{0x00, 0xbe} // BKPT #0
	args := StubArgs{1, 2, 3, 4}
	result, err := RunStub(context.Background(), tgt, mem, 0x10000000, code, args, 0x10001000, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if result != 1 {
		t.Fatalf("expected r0 result 1 (what the stub left in r0), got %d", result)
	}
	if tgt.regs[5] != 0xdeadbeef {
		t.Fatalf("expected r5 restored to 0xdeadbeef, got %#08x", tgt.regs[5])
	}
}

func TestRunStubTimesOutIfNeverHalts(t *testing.T) {
	port := newFakePort()
	mem := ap.NewMemAP(port, 0, 0x24770011)
	tgt := &fakeTarget{haltOn: 1 << 30} // never halts within the loop
	code := []byte{0x00, 0xbe}
	_, err := RunStub(context.Background(), tgt, mem, 0x10000000, code, StubArgs{}, 0x10001000, 10*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestRunStubAbortsOnContextCancel(t *testing.T) {
	port := newFakePort()
	mem := ap.NewMemAP(port, 0, 0x24770011)
	tgt := &fakeTarget{haltOn: 1 << 30}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	code := []byte{0x00, 0xbe}
	_, err := RunStub(ctx, tgt, mem, 0x10000000, code, StubArgs{}, 0x10001000, time.Second)
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
