// Copyright 2024 The coredebug Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package swd bit-bangs the two-wire Serial Wire Debug physical layer over a
// pair of conn/gpio pins: SWCLK (clock, always an output) and SWDIO (data,
// switched between input and output on turn-around).
package swd

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/armprobe/coredebug/conn/gpio"
	"github.com/armprobe/coredebug/conn/physic"
	"github.com/armprobe/coredebug/wire"
)

var log = logrus.WithField("pkg", "swd")

// Driver bit-bangs SWD over two conn/gpio.PinIO pins.
//
// The protocol does not specify a bit rate (spec §6): Delay is the
// half-period the driver sleeps between clock edges, and the caller is free
// to pick whatever rate the target microcontroller can tolerate.
type Driver struct {
	clk   gpio.PinIO
	dio   gpio.PinIO
	delay time.Duration

	dioIsOutput bool
}

// Option configures a Driver.
type Option func(*Driver)

// WithDelay sets the half-period between clock edges. The zero value runs
// the link as fast as the host can toggle GPIOs.
func WithDelay(d physic.Duration) Option {
	return func(s *Driver) { s.delay = d.Duration() }
}

// New returns a Driver bit-banging SWD over clk (SWCLK) and dio (SWDIO).
// Both pins are put into a known state (clk low, dio output) before use.
func New(clk, dio gpio.PinIO, opts ...Option) (*Driver, error) {
	s := &Driver{clk: clk, dio: dio}
	for _, o := range opts {
		o(s)
	}
	if err := s.clk.Out(gpio.Low); err != nil {
		return nil, err
	}
	if err := s.dio.Out(gpio.High); err != nil {
		return nil, err
	}
	s.dioIsOutput = true
	return s, nil
}

func (s *Driver) halfPeriod() {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
}

// pulse drives SWCLK low then high, the single clock edge every wire
// operation clocks data on.
func (s *Driver) pulse() error {
	if err := s.clk.Out(gpio.Low); err != nil {
		return err
	}
	s.halfPeriod()
	if err := s.clk.Out(gpio.High); err != nil {
		return err
	}
	s.halfPeriod()
	return nil
}

func (s *Driver) toOutput() error {
	if s.dioIsOutput {
		return nil
	}
	if err := s.dio.Out(gpio.High); err != nil {
		return err
	}
	s.dioIsOutput = true
	return nil
}

func (s *Driver) toInput() error {
	if !s.dioIsOutput {
		return nil
	}
	if err := s.dio.In(gpio.Float, gpio.NoEdge); err != nil {
		return err
	}
	s.dioIsOutput = false
	return nil
}

// ClockOut implements wire.Sequencer.
func (s *Driver) ClockOut(bits []bool) error {
	if err := s.toOutput(); err != nil {
		return err
	}
	for _, b := range bits {
		lvl := gpio.Low
		if b {
			lvl = gpio.High
		}
		if err := s.dio.Out(lvl); err != nil {
			return err
		}
		if err := s.pulse(); err != nil {
			return err
		}
	}
	return nil
}

// ClockIn implements wire.Sequencer.
func (s *Driver) ClockIn(n int) ([]bool, error) {
	if err := s.toInput(); err != nil {
		return nil, err
	}
	bits := make([]bool, n)
	for i := 0; i < n; i++ {
		bits[i] = s.dio.Read() == gpio.High
		if err := s.pulse(); err != nil {
			return nil, err
		}
	}
	return bits, nil
}

// ClockOutParity implements wire.Sequencer.
func (s *Driver) ClockOutParity(bits []bool) error {
	if err := s.ClockOut(bits); err != nil {
		return err
	}
	return s.ClockOut([]bool{wire.Parity(bits)})
}

// ClockInParity implements wire.Sequencer.
func (s *Driver) ClockInParity(n int) ([]bool, bool, error) {
	bits, err := s.ClockIn(n)
	if err != nil {
		return nil, false, err
	}
	p, err := s.ClockIn(1)
	if err != nil {
		return nil, false, err
	}
	return bits, p[0] == wire.Parity(bits), nil
}

// LineReset clocks 56 high bits followed by eight idle (low) cycles, the
// sequence that flushes the SW-DP's internal state before an IDCODE read
// (spec §4.2).
func (s *Driver) LineReset() error {
	ones := make([]bool, 56)
	for i := range ones {
		ones[i] = true
	}
	if err := s.ClockOut(ones); err != nil {
		return err
	}
	return s.ClockOut(make([]bool, 8))
}

// TurnAround releases SWDIO for the ACK phase and clocks the given number
// of cycles (1 on direct SWD, 2 when a multi-drop SWD-DPv2 target select
// precedes it) without driving the line.
func (s *Driver) TurnAround(cycles int) error {
	if err := s.toInput(); err != nil {
		return err
	}
	for i := 0; i < cycles; i++ {
		if err := s.pulse(); err != nil {
			return err
		}
	}
	log.Trace("turnaround")
	return nil
}

var _ wire.Sequencer = (*Driver)(nil)
