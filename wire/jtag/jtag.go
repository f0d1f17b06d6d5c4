// Copyright 2024 The coredebug Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package jtag bit-bangs the four-wire (plus optional TRST) JTAG physical
// layer over conn/gpio pins, driving the TAP controller state machine
// defined in conn/jtag.
package jtag

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/armprobe/coredebug/conn/gpio"
	"github.com/armprobe/coredebug/conn/jtag"
	"github.com/armprobe/coredebug/conn/physic"
	"github.com/armprobe/coredebug/wire"
)

var log = logrus.WithField("pkg", "jtag")

// Driver bit-bangs JTAG over four or five conn/gpio.PinIO pins.
type Driver struct {
	tck, tms, tdi, tdo gpio.PinIO
	trst               gpio.PinIO // optional, nil if not wired
	delay              time.Duration

	state jtag.State
}

// Option configures a Driver.
type Option func(*Driver)

// WithDelay sets the half-period between TCK edges.
func WithDelay(d physic.Duration) Option {
	return func(j *Driver) { j.delay = d.Duration() }
}

// WithTRST wires an optional nTRST pin, used by Reset for a hardware TAP
// reset instead of the 5-TMS-high software sequence.
func WithTRST(trst gpio.PinIO) Option {
	return func(j *Driver) { j.trst = trst }
}

// New returns a Driver bit-banging JTAG over tck (TCK), tms (TMS), tdi
// (TDI) and tdo (TDO).
func New(tck, tms, tdi, tdo gpio.PinIO, opts ...Option) (*Driver, error) {
	j := &Driver{tck: tck, tms: tms, tdi: tdi, tdo: tdo, state: jtag.RunTestIdle}
	for _, o := range opts {
		o(j)
	}
	if err := j.tck.Out(gpio.Low); err != nil {
		return nil, err
	}
	if err := j.tms.Out(gpio.High); err != nil {
		return nil, err
	}
	if err := j.tdi.Out(gpio.Low); err != nil {
		return nil, err
	}
	if err := j.tdo.In(gpio.Float, gpio.NoEdge); err != nil {
		return nil, err
	}
	if j.trst != nil {
		if err := j.trst.Out(gpio.High); err != nil {
			return nil, err
		}
	}
	return j, nil
}

func (j *Driver) halfPeriod() {
	if j.delay > 0 {
		time.Sleep(j.delay)
	}
}

// clockBit drives tms and tdi, pulses TCK, and samples TDO, all on a single
// clock edge.
func (j *Driver) clockBit(tms, tdi bool) (tdo bool, err error) {
	tmsLvl, tdiLvl := gpio.Low, gpio.Low
	if tms {
		tmsLvl = gpio.High
	}
	if tdi {
		tdiLvl = gpio.High
	}
	if err = j.tms.Out(tmsLvl); err != nil {
		return false, err
	}
	if err = j.tdi.Out(tdiLvl); err != nil {
		return false, err
	}
	j.halfPeriod()
	if err = j.tck.Out(gpio.High); err != nil {
		return false, err
	}
	tdo = j.tdo.Read() == gpio.High
	j.halfPeriod()
	if err = j.tck.Out(gpio.Low); err != nil {
		return false, err
	}
	j.state = jtag.Next(j.state, tms)
	return tdo, nil
}

// ClockOut implements wire.Sequencer; TMS is held low throughout, so it is
// only meaningful from inside a Shift-DR/IR state.
func (j *Driver) ClockOut(bits []bool) error {
	for _, b := range bits {
		if _, err := j.clockBit(false, b); err != nil {
			return err
		}
	}
	return nil
}

// ClockIn implements wire.Sequencer.
func (j *Driver) ClockIn(n int) ([]bool, error) {
	bits := make([]bool, n)
	for i := 0; i < n; i++ {
		b, err := j.clockBit(false, false)
		if err != nil {
			return nil, err
		}
		bits[i] = b
	}
	return bits, nil
}

// ClockOutParity implements wire.Sequencer.
func (j *Driver) ClockOutParity(bits []bool) error {
	if err := j.ClockOut(bits); err != nil {
		return err
	}
	return j.ClockOut([]bool{wire.Parity(bits)})
}

// ClockInParity implements wire.Sequencer.
func (j *Driver) ClockInParity(n int) ([]bool, bool, error) {
	bits, err := j.ClockIn(n)
	if err != nil {
		return nil, false, err
	}
	p, err := j.ClockIn(1)
	if err != nil {
		return nil, false, err
	}
	return bits, p[0] == wire.Parity(bits), nil
}

// ShiftIR moves the TAP into Shift-IR, clocks out bits (LSB-first, last bit
// accompanied by TMS=1 to exit the shift), samples the simultaneous TDO
// value, and returns the TAP to Run-Test/Idle.
func (j *Driver) ShiftIR(bits []bool) ([]bool, error) {
	return j.shift(jtag.PathToShiftIR, bits)
}

// ShiftDR is the DR-register equivalent of ShiftIR.
func (j *Driver) ShiftDR(bits []bool) ([]bool, error) {
	return j.shift(jtag.PathToShiftDR, bits)
}

func (j *Driver) shift(entryPath []bool, bits []bool) ([]bool, error) {
	for _, tms := range entryPath {
		if _, err := j.clockBit(tms, false); err != nil {
			return nil, err
		}
	}
	out := make([]bool, len(bits))
	for i, b := range bits {
		last := i == len(bits)-1
		tdo, err := j.clockBit(last, b)
		if err != nil {
			return nil, err
		}
		out[i] = tdo
	}
	for _, tms := range jtag.PathToRunTestIdle {
		if _, err := j.clockBit(tms, false); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Reset drives the TAP to Test-Logic-Reset, using nTRST if wired, otherwise
// five TCK edges with TMS high.
func (j *Driver) Reset() error {
	if j.trst != nil {
		if err := j.trst.Out(gpio.Low); err != nil {
			return err
		}
		j.halfPeriod()
		if err := j.trst.Out(gpio.High); err != nil {
			return err
		}
		j.state = jtag.TestLogicReset
		log.Debug("hardware TRST reset")
		return nil
	}
	for _, tms := range jtag.PathToReset {
		if _, err := j.clockBit(tms, false); err != nil {
			return err
		}
	}
	log.Debug("software TMS reset")
	return nil
}

// State returns the TAP controller's current state.
func (j *Driver) State() jtag.State { return j.state }

var _ wire.Sequencer = (*Driver)(nil)
