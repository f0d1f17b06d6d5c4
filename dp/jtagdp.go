// Copyright 2024 The coredebug Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dp

import (
	"github.com/sirupsen/logrus"
)

var jtagLog = logrus.WithField("pkg", "dp/jtag")

// JTAG instruction register values selecting the DPACC/APACC scan chains
// (ARM debug interface JTAG-DP, 4-bit IR).
const (
	irAbort  = 0x8
	irDPACC  = 0xa
	irAPACC  = 0xb
	irBypass = 0xf
	irIDCODE = 0xe
)

// jtagShifter is the pair of scan methods a JTAGDP needs from
// wire/jtag.Driver (ShiftIR/ShiftDR, which are not part of wire.Sequencer),
// named separately so jtagdp.go doesn't import the bit-bang driver package
// directly.
type jtagShifter interface {
	ShiftIR(bits []bool) ([]bool, error)
	ShiftDR(bits []bool) ([]bool, error)
}

// JTAGDP is a Port implementation over the five-wire JTAG protocol.
//
// Every DPACC/APACC transaction is a 35-bit DR scan (3-bit ACK + 32-bit
// data, MSB access bit low): the result of a transaction is only valid
// once read back via the following transaction's leading ACK bits, so a
// trailing read of RDBUFF is required to retrieve the result of the final
// access in a sequence (spec.md §4.2).
type JTAGDP struct {
	seq  jtagShifter
	opts options

	curIR uint8
	fault bool
}

// NewJTAGDP selects the DPACC scan chain and performs the same
// IDCODE-read + ErrorClear bring-up as NewSWDP.
func NewJTAGDP(seq jtagShifter, opts ...Option) (*JTAGDP, error) {
	d := &JTAGDP{seq: seq, opts: newOptions(opts), curIR: 0xff}
	if _, err := d.ReadDP(RegIDCODE); err != nil {
		return nil, err
	}
	if err := d.ErrorClear(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *JTAGDP) setIR(ir uint8) error {
	if d.curIR == ir {
		return nil
	}
	bits := make([]bool, 4)
	for i := range bits {
		bits[i] = (ir>>uint(i))&1 != 0
	}
	if _, err := d.seq.ShiftIR(bits); err != nil {
		return err
	}
	d.curIR = ir
	return nil
}

// scan35 shifts a 35-bit DPACC/APACC DR: bit0 RnW, bits[2:1] A[3:2],
// bits[34:3] data (written) / previous-access data (read back), returning
// the 3-bit ACK in bits[2:0] of the result alongside the 32-bit data.
func (d *JTAGDP) scan35(rnw bool, addr uint8, value uint32) (ack int, data uint32, err error) {
	out := make([]bool, 35)
	out[0] = rnw
	a23 := (addr >> 2) & 0x3
	out[1] = a23&1 != 0
	out[2] = a23&2 != 0
	for i := 0; i < 32; i++ {
		out[3+i] = (value>>uint(i))&1 != 0
	}
	in, err := d.seq.ShiftDR(out)
	if err != nil {
		return 0, 0, err
	}
	for i := 0; i < 3; i++ {
		if in[i] {
			ack |= 1 << uint(i)
		}
	}
	for i := 0; i < 32; i++ {
		if in[3+i] {
			data |= 1 << uint(i)
		}
	}
	return ack, data, nil
}

func (d *JTAGDP) access(apndp bool, rnw bool, addr uint8, value uint32) (uint32, error) {
	ir := uint8(irDPACC)
	if apndp {
		ir = irAPACC
	}
	if err := d.setIR(ir); err != nil {
		return 0, err
	}
	for attempt := 0; attempt < maxWait; attempt++ {
		ack, _, err := d.scan35(rnw, addr, value)
		if err != nil {
			return 0, err
		}
		switch ack {
		case ackWait:
			continue
		case ackFault:
			d.fault = true
			cs, _ := d.readDPACC(RegCTRLSTAT)
			return 0, &StickyError{CtrlStat: cs}
		case ackOK:
			if !rnw {
				return 0, nil
			}
			// The result of this access is only valid on the NEXT scan; read
			// RDBUFF (a no-op on the DP pipeline) to flush it out.
			return d.readDPACC(RegRDBUFF)
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

// readDPACC issues one more DPACC read scan purely to retrieve the data
// latched by the previous transaction, per the JTAG-DP read pipeline.
func (d *JTAGDP) readDPACC(addr uint8) (uint32, error) {
	if err := d.setIR(irDPACC); err != nil {
		return 0, err
	}
	for attempt := 0; attempt < maxWait; attempt++ {
		ack, data, err := d.scan35(true, addr, 0)
		if err != nil {
			return 0, err
		}
		switch ack {
		case ackWait:
			continue
		case ackFault:
			d.fault = true
			return 0, ErrFault
		case ackOK:
			return data, nil
		default:
			return 0, ErrProtocol
		}
	}
	if d.opts.allowTimeout {
		return 0, nil
	}
	return 0, ErrWait
}

func (d *JTAGDP) ReadDP(addr uint8) (uint32, error)  { return d.access(false, true, addr, 0) }
func (d *JTAGDP) WriteDP(addr uint8, v uint32) error { _, err := d.access(false, false, addr, v); return err }
func (d *JTAGDP) ReadAP(addr uint8) (uint32, error)  { return d.access(true, true, addr, 0) }
func (d *JTAGDP) WriteAP(addr uint8, v uint32) error { _, err := d.access(true, false, addr, v); return err }

func (d *JTAGDP) ErrorClear() error {
	err := d.WriteDP(RegABORT, AbortSTKCMPCLR|AbortSTKERRCLR|AbortWDERRCLR|AbortORUNERRCLR)
	if err == nil {
		d.fault = false
	}
	jtagLog.Debug("error clear")
	return err
}

func (d *JTAGDP) Fault() bool { return d.fault }

var _ Port = (*JTAGDP)(nil)
