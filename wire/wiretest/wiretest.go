// Copyright 2024 The coredebug Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package wiretest provides fakes of wire.Sequencer for testing dp and ap
// without real hardware, in the style of conn/gpio/gpiotest.
package wiretest

import "github.com/armprobe/coredebug/wire"

// Script is a scripted wire.Sequencer: Reads feeds successive ClockIn
// calls, Writes records every ClockOut call, in order.
type Script struct {
	Reads  [][]bool
	Writes [][]bool

	readAt int
}

// Feed appends one ClockIn response.
func (s *Script) Feed(bits ...bool) { s.Reads = append(s.Reads, bits) }

func (s *Script) ClockOut(bits []bool) error {
	s.Writes = append(s.Writes, append([]bool(nil), bits...))
	return nil
}

func (s *Script) ClockIn(n int) ([]bool, error) {
	if s.readAt >= len(s.Reads) {
		return make([]bool, n), nil
	}
	bits := s.Reads[s.readAt]
	s.readAt++
	if len(bits) < n {
		bits = append(bits, make([]bool, n-len(bits))...)
	}
	return bits[:n], nil
}

func (s *Script) ClockOutParity(bits []bool) error {
	return s.ClockOut(append(append([]bool(nil), bits...), wire.Parity(bits)))
}

func (s *Script) ClockInParity(n int) ([]bool, bool, error) {
	bits, err := s.ClockIn(n + 1)
	if err != nil {
		return nil, false, err
	}
	data, p := bits[:n], bits[n]
	return data, p == wire.Parity(data), nil
}

func (s *Script) TurnAround(int) error { return nil }
func (s *Script) LineReset() error     { return nil }

var _ wire.Sequencer = (*Script)(nil)
