// Copyright 2024 The coredebug Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dp

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/armprobe/coredebug/wire"
)

var swdLog = logrus.WithField("pkg", "dp/swd")

// ack values, as clocked LSB-first off SWDIO during the ACK phase.
const (
	ackOK    = 0b001
	ackWait  = 0b010
	ackFault = 0b100
)

// SWDP is a Port implementation over the two-wire SWD protocol.
type SWDP struct {
	seq  wire.Sequencer
	opts options

	selected uint32 // set to 0xffffffff by NewSWDP; SELECT writes are not shadowed or elided
	fault    bool
}

// NewSWDP wires a SWDP over seq and performs the line-reset + IDCODE read
// + ErrorClear bring-up sequence (spec.md §4.2).
func NewSWDP(seq wire.Sequencer, opts ...Option) (*SWDP, error) {
	d := &SWDP{seq: seq, opts: newOptions(opts), selected: 0xffffffff}
	if lr, ok := seq.(interface{ LineReset() error }); ok {
		if err := lr.LineReset(); err != nil {
			return nil, err
		}
	}
	if _, err := d.ReadDP(RegIDCODE); err != nil {
		return nil, err
	}
	if err := d.ErrorClear(); err != nil {
		return nil, err
	}
	return d, nil
}

// LowAccess performs one DPACC/APACC transaction: an 8-bit request header,
// a turn-around, a 3-bit ACK, then 32 data bits plus parity, clocked in for
// reads and out for writes. No turn-around cycle is clocked before write
// data.
func (d *SWDP) LowAccess(apndp bool, rnw bool, addr uint8, value uint32) (uint32, error) {
	req := swdRequest(apndp, rnw, addr)
	for attempt := 0; attempt < maxWait; attempt++ {
		if err := d.seq.ClockOut(bitsFromByte(req)); err != nil {
			return 0, err
		}
		ack, err := d.clockAck()
		if err != nil {
			return 0, err
		}
		switch ack {
		case ackWait:
			continue
		case ackFault:
			d.fault = true
			cs, _ := d.rawReadDP(RegCTRLSTAT)
			return 0, &StickyError{CtrlStat: cs}
		case ackOK:
			if rnw {
				data, parityOK, err := d.seq.ClockInParity(32)
				if err != nil {
					return 0, err
				}
				if !parityOK {
					return 0, ErrProtocol
				}
				return wire.Uint32FromBits(data), nil
			}
			if err := d.seq.ClockOutParity(wire.BitsFromUint32(value)); err != nil {
				return 0, err
			}
			return 0, nil
		default:
			return 0, ErrProtocol
		}
	}
	if d.opts.allowTimeout {
		// spec.md §4.2: with allow_timeout set, hitting the retry limit is
		// not a fault — the read returns a successful zero value.
		return 0, nil
	}
	return 0, ErrWait
}

// rawReadDP bypasses the WAIT-retry wrapper's fault bookkeeping, used only
// to read CTRL/STAT for a StickyError after a FAULT ack.
func (d *SWDP) rawReadDP(addr uint8) (uint32, error) {
	req := swdRequest(false, true, addr)
	if err := d.seq.ClockOut(bitsFromByte(req)); err != nil {
		return 0, err
	}
	if _, err := d.clockAck(); err != nil {
		return 0, err
	}
	data, _, err := d.seq.ClockInParity(32)
	if err != nil {
		return 0, err
	}
	return wire.Uint32FromBits(data), nil
}

func (d *SWDP) clockAck() (int, error) {
	if ta, ok := d.seq.(interface{ TurnAround(int) error }); ok {
		if err := ta.TurnAround(1); err != nil {
			return 0, err
		}
	}
	bits, err := d.seq.ClockIn(3)
	if err != nil {
		return 0, err
	}
	ack := 0
	for i, b := range bits {
		if b {
			ack |= 1 << uint(i)
		}
	}
	return ack, nil
}

func (d *SWDP) ReadDP(addr uint8) (uint32, error) { return d.LowAccess(false, true, addr, 0) }
func (d *SWDP) WriteDP(addr uint8, v uint32) error {
	_, err := d.LowAccess(false, false, addr, v)
	return err
}

func (d *SWDP) ReadAP(addr uint8) (uint32, error) { return d.LowAccess(true, true, addr, 0) }
func (d *SWDP) WriteAP(addr uint8, v uint32) error {
	_, err := d.LowAccess(true, false, addr, v)
	return err
}

// ErrorClear writes ABORT clearing every sticky bit.
func (d *SWDP) ErrorClear() error {
	err := d.WriteDP(RegABORT, AbortSTKCMPCLR|AbortSTKERRCLR|AbortWDERRCLR|AbortORUNERRCLR)
	if err == nil {
		d.fault = false
	}
	swdLog.Debug("error clear")
	return err
}

func (d *SWDP) Fault() bool { return d.fault }

// swdRequest builds the 8-bit SWD request header: start(1) APnDP RnW A[2:3]
// parity stop(0) park(1).
func swdRequest(apndp, rnw bool, addr uint8) byte {
	a23 := (addr >> 2) & 0x3
	parity := 0
	bits := []bool{apndp, rnw, a23&1 != 0, a23&2 != 0}
	for _, b := range bits {
		if b {
			parity++
		}
	}
	var req byte = 1 // start
	if apndp {
		req |= 1 << 1
	}
	if rnw {
		req |= 1 << 2
	}
	req |= (a23 & 0x3) << 3
	if parity%2 != 0 {
		req |= 1 << 5
	}
	req |= 1 << 7 // park
	return req
}

func bitsFromByte(b byte) []bool {
	bits := make([]bool, 8)
	for i := range bits {
		bits[i] = (b>>uint(i))&1 != 0
	}
	return bits
}

var _ Port = (*SWDP)(nil)

var errNotSupported = errors.New("dp: operation not supported on this port")
