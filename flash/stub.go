// Copyright 2024 The coredebug Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flash

import (
	"context"
	"fmt"
	"time"

	"github.com/armprobe/coredebug/ap"
	"github.com/armprobe/coredebug/target"
)

// bkptInstr is the Thumb BKPT #0 encoding a stub's trailer executes to
// signal completion.
const bkptInstr uint16 = 0xbe00

// StubArgs are the four argument registers (r0..r3) a stub receives.
type StubArgs [4]uint32

// RunStub implements the generic stub loader contract from spec.md §4.6:
// it copies code to codeAddr in target RAM, sets a breakpoint on the
// trailing BKPT, loads arguments and resumes, then restores the original
// register file once the stub halts.
//
// ctx carries the abort token (Design Note §9): a Ctrl-C observed while
// waiting converts to a halt request and RunStub returns ctx.Err().
func RunStub(ctx context.Context, t target.Target, mem *ap.MemAP, codeAddr uint32, code []byte, args StubArgs, ramTop uint32, timeout time.Duration) (result uint32, err error) {
	saved, err := saveRegs(t)
	if err != nil {
		return 0, err
	}
	defer func() {
		if rerr := restoreRegs(t, saved); rerr != nil && err == nil {
			err = rerr
		}
	}()

	if err := writeCode(mem, codeAddr, code); err != nil {
		return 0, err
	}

	bkAddr := codeAddr + uint32(len(code)) - 2
	bw, err := t.SetBreakwatch(target.Breakwatch{Kind: target.BreakHard, Addr: bkAddr})
	if err != nil {
		return 0, err
	}
	defer t.ClearBreakwatch(bw)

	for i, a := range args {
		if err := t.WriteReg(i, a); err != nil {
			return 0, err
		}
	}
	if ramTop != 0 {
		if err := t.WriteReg(13, ramTop&^7); err != nil { // 8-byte align (AAPCS)
			return 0, err
		}
	}
	entry := codeAddr | 1 // Thumb
	if err := t.WriteReg(14, entry); err != nil {
		return 0, err
	}
	if err := t.WriteReg(15, entry); err != nil {
		return 0, err
	}
	if err := t.Resume(false); err != nil {
		return 0, err
	}

	deadline := time.Now().Add(timeout)
	for {
		select {
		case <-ctx.Done():
			_ = t.HaltRequest()
			return 0, ctx.Err()
		default:
		}
		reason, err := t.HaltPoll()
		if err != nil {
			return 0, err
		}
		if reason == target.Breakpoint {
			break
		}
		if reason != target.NotHalted {
			return 0, fmt.Errorf("flash: stub halted unexpectedly, reason=%v", reason)
		}
		if time.Now().After(deadline) {
			_ = t.HaltRequest()
			return 0, fmt.Errorf("flash: stub at %#08x timed out after %s", codeAddr, timeout)
		}
	}
	return t.ReadReg(0)
}

func writeCode(mem *ap.MemAP, addr uint32, code []byte) error {
	words := make([]uint32, (len(code)+3)/4)
	padded := append(append([]byte(nil), code...), make([]byte, len(words)*4-len(code))...)
	for i := range words {
		words[i] = uint32(padded[i*4]) | uint32(padded[i*4+1])<<8 | uint32(padded[i*4+2])<<16 | uint32(padded[i*4+3])<<24
	}
	return mem.WriteBlock32(addr, words)
}

type savedRegs [16]uint32

func saveRegs(t target.Target) (savedRegs, error) {
	var s savedRegs
	for i := range s {
		v, err := t.ReadReg(i)
		if err != nil {
			return s, err
		}
		s[i] = v
	}
	return s, nil
}

func restoreRegs(t target.Target, s savedRegs) error {
	for i, v := range s {
		if err := t.WriteReg(i, v); err != nil {
			return err
		}
	}
	return nil
}
