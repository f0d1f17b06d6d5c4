// Copyright 2024 The coredebug Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dp implements the ADIv5 Debug Port register protocol shared by
// SW-DP and JTAG-DP: the DPACC/APACC register pair, WAIT retry, and sticky
// fault bookkeeping.
package dp

import (
	"errors"
	"fmt"
)

// DP register addresses (4-byte aligned, bits [3:2] of the request).
const (
	RegIDCODE  = 0x0 // read-only
	RegABORT   = 0x0 // write-only
	RegCTRLSTAT = 0x4
	RegSELECT  = 0x8
	RegRDBUFF  = 0xc // read-only
)

// ABORT register bits.
const (
	AbortDAPABORT  uint32 = 1 << 0
	AbortSTKCMPCLR uint32 = 1 << 1
	AbortSTKERRCLR uint32 = 1 << 2
	AbortWDERRCLR  uint32 = 1 << 3
	AbortORUNERRCLR uint32 = 1 << 4
)

// CTRL/STAT sticky fault bits.
const (
	CtrlStatSTICKYORUN uint32 = 1 << 1
	CtrlStatSTICKYCMP  uint32 = 1 << 4
	CtrlStatSTICKYERR  uint32 = 1 << 5
	CtrlStatWDATAERR   uint32 = 1 << 7
	CtrlStatCDBGPWRUPACK uint32 = 1 << 29
	CtrlStatCSYSPWRUPACK uint32 = 1 << 31
)

// maxWait bounds the WAIT-response retry loop (spec.md §4.2).
const maxWait = 1000

var (
	// ErrWait is returned if maxWait consecutive WAIT acknowledgements were
	// seen without the transaction completing.
	ErrWait = errors.New("dp: WAIT retry limit exceeded")
	// ErrFault is the low-level ACK=FAULT response, wrapped by StickyError
	// once the sticky bits are read back.
	ErrFault = errors.New("dp: FAULT response")
	// ErrProtocol signals a malformed ACK or parity failure on the wire.
	ErrProtocol = errors.New("dp: protocol error")
)

// StickyError reports which CTRL/STAT sticky fault bits were set when a
// transaction faulted. Callers must explicitly call Port.ErrorClear to
// proceed; StickyError is never silently retried (Design Note: a wire
// fault must surface, not vanish into a hidden retry).
type StickyError struct {
	CtrlStat uint32
}

func (e *StickyError) Error() string {
	return fmt.Sprintf("dp: sticky fault, CTRL/STAT=%#08x", e.CtrlStat)
}

func (e *StickyError) Unwrap() error { return ErrFault }

// Port is the register-level capability shared by SW-DP and JTAG-DP.
//
// Addr is the 4-byte-aligned register offset (RegIDCODE..RegRDBUFF for DP
// accesses; the AP's own bank-relative offset for AP accesses, with the
// active AP/bank selected via SELECT beforehand).
type Port interface {
	ReadDP(addr uint8) (uint32, error)
	WriteDP(addr uint8, v uint32) error
	ReadAP(addr uint8) (uint32, error)
	WriteAP(addr uint8, v uint32) error

	// ErrorClear writes ABORT to clear every sticky fault bit, the only
	// recovery path out of a StickyError.
	ErrorClear() error
	// Fault reports whether the last transaction returned a sticky fault
	// that has not yet been cleared.
	Fault() bool
}

// Option configures a DP implementation (SWDP or JTAGDP).
type Option func(*options)

type options struct {
	allowTimeout bool
}

// AllowTimeout tolerates a WAIT-exhausted transaction: it returns a zero
// value and a nil error, and raises no sticky fault, instead of ErrWait. Some
// targets (e.g. a Cortex-M just out of reset with DBGMCU clocks gated)
// legitimately WAIT past maxWait during the very first access.
func AllowTimeout() Option {
	return func(o *options) { o.allowTimeout = true }
}

func newOptions(opts []Option) options {
	var o options
	for _, f := range opts {
		f(&o)
	}
	return o
}
