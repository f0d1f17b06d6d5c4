// Copyright 2024 The coredebug Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dp

import "testing"

// fakeShifter scripts ShiftDR responses for JTAGDP tests; ShiftIR is a
// no-op success since JTAGDP only cares that IR selects the right chain.
type fakeShifter struct {
	drReplies [][]bool
	at        int
}

func (f *fakeShifter) ShiftIR(bits []bool) ([]bool, error) {
	return make([]bool, len(bits)), nil
}

func (f *fakeShifter) ShiftDR(bits []bool) ([]bool, error) {
	if f.at >= len(f.drReplies) {
		return make([]bool, len(bits)), nil
	}
	r := f.drReplies[f.at]
	f.at++
	return r, nil
}

func dr35(ack int, data uint32) []bool {
	bits := make([]bool, 35)
	for i := 0; i < 3; i++ {
		bits[i] = ack&(1<<uint(i)) != 0
	}
	for i := 0; i < 32; i++ {
		bits[3+i] = data&(1<<uint(i)) != 0
	}
	return bits
}

func TestJTAGDPConnect(t *testing.T) {
	f := &fakeShifter{drReplies: [][]bool{
		dr35(ackOK, 0),          // IDCODE scan, ack ok, stale data
		dr35(ackOK, 0x1ba01477), // RDBUFF scan retrieving IDCODE
		dr35(ackOK, 0),          // ABORT write scan
	}}
	d, err := NewJTAGDP(f)
	if err != nil {
		t.Fatal(err)
	}
	if d.Fault() {
		t.Fatal("unexpected fault")
	}
}

func TestJTAGDPStickyFault(t *testing.T) {
	f := &fakeShifter{drReplies: [][]bool{
		dr35(ackOK, 0),
		dr35(ackOK, 0),
		dr35(ackOK, 0), // ErrorClear
	}}
	d, err := NewJTAGDP(f)
	if err != nil {
		t.Fatal(err)
	}
	f.drReplies = append(f.drReplies, dr35(ackFault, 0), dr35(ackOK, 0xdead))
	if _, err := d.ReadAP(0x0c); err == nil {
		t.Fatal("expected fault error")
	}
	if !d.Fault() {
		t.Fatal("expected Fault() true")
	}
}

func TestJTAGDPAllowTimeoutReturnsZeroNoFault(t *testing.T) {
	f := &fakeShifter{drReplies: [][]bool{
		dr35(ackOK, 0),
		dr35(ackOK, 0x1ba01477),
		dr35(ackOK, 0), // ErrorClear
	}}
	d, err := NewJTAGDP(f, AllowTimeout())
	if err != nil {
		t.Fatal(err)
	}

	waits := make([][]bool, maxWait)
	for i := range waits {
		waits[i] = dr35(ackWait, 0)
	}
	f.drReplies = append(f.drReplies, waits...)

	v, err := d.ReadAP(0x0c)
	if err != nil {
		t.Fatalf("expected no error with AllowTimeout, got %v", err)
	}
	if v != 0 {
		t.Fatalf("expected zero value, got %#x", v)
	}
	if d.Fault() {
		t.Fatal("AllowTimeout must not raise a sticky fault")
	}
}
