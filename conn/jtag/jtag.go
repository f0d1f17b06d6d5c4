// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package jtag defines the API to communicate with devices over the JTAG
// protocol: the five well known pin functions (TCK, TMS, TDI, TDO, TRST) and
// the TAP controller's state machine.
//
// See https://en.wikipedia.org/wiki/JTAG for background information.
package jtag

// State is one of the 16 states of the JTAG TAP controller state machine.
type State int

// TAP controller states, in the order a reset sequence visits them.
const (
	TestLogicReset State = iota
	RunTestIdle
	SelectDRScan
	CaptureDR
	ShiftDR
	Exit1DR
	PauseDR
	Exit2DR
	UpdateDR
	SelectIRScan
	CaptureIR
	ShiftIR
	Exit1IR
	PauseIR
	Exit2IR
	UpdateIR
)

func (s State) String() string {
	switch s {
	case TestLogicReset:
		return "Test-Logic-Reset"
	case RunTestIdle:
		return "Run-Test/Idle"
	case SelectDRScan:
		return "Select-DR-Scan"
	case CaptureDR:
		return "Capture-DR"
	case ShiftDR:
		return "Shift-DR"
	case Exit1DR:
		return "Exit1-DR"
	case PauseDR:
		return "Pause-DR"
	case Exit2DR:
		return "Exit2-DR"
	case UpdateDR:
		return "Update-DR"
	case SelectIRScan:
		return "Select-IR-Scan"
	case CaptureIR:
		return "Capture-IR"
	case ShiftIR:
		return "Shift-IR"
	case Exit1IR:
		return "Exit1-IR"
	case PauseIR:
		return "Pause-IR"
	case Exit2IR:
		return "Exit2-IR"
	case UpdateIR:
		return "Update-IR"
	default:
		return "Invalid"
	}
}

// next holds the (tms=0, tms=1) transition pair for every state of the
// standard JTAG TAP controller.
var next = map[State][2]State{
	TestLogicReset: {RunTestIdle, TestLogicReset},
	RunTestIdle:    {RunTestIdle, SelectDRScan},
	SelectDRScan:   {CaptureDR, SelectIRScan},
	CaptureDR:      {ShiftDR, Exit1DR},
	ShiftDR:        {ShiftDR, Exit1DR},
	Exit1DR:        {PauseDR, UpdateDR},
	PauseDR:        {PauseDR, Exit2DR},
	Exit2DR:        {ShiftDR, UpdateDR},
	UpdateDR:       {RunTestIdle, SelectDRScan},
	SelectIRScan:   {CaptureIR, TestLogicReset},
	CaptureIR:      {ShiftIR, Exit1IR},
	ShiftIR:        {ShiftIR, Exit1IR},
	Exit1IR:        {PauseIR, UpdateIR},
	PauseIR:        {PauseIR, Exit2IR},
	Exit2IR:        {ShiftIR, UpdateIR},
	UpdateIR:       {RunTestIdle, SelectDRScan},
}

// Next returns the state reached from s after one TCK edge with TMS held at
// the given level.
func Next(s State, tms bool) State {
	pair := next[s]
	if tms {
		return pair[1]
	}
	return pair[0]
}

// PathToShiftDR is the TMS sequence, starting from RunTestIdle, that walks
// the TAP controller into ShiftDR.
var PathToShiftDR = []bool{true, false, false}

// PathToShiftIR is the TMS sequence, starting from RunTestIdle, that walks
// the TAP controller into ShiftIR.
var PathToShiftIR = []bool{true, true, false, false}

// PathToRunTestIdle is the TMS sequence, starting from ShiftDR or ShiftIR's
// Exit1 state, that returns the TAP controller to RunTestIdle via Update.
var PathToRunTestIdle = []bool{true, false}

// PathToReset is the TMS sequence that reaches TestLogicReset from any
// state: 5 TCK edges with TMS high.
var PathToReset = []bool{true, true, true, true, true}
