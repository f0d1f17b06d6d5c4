// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package gpio defines digital pins.
//
// The GPIO pins are described in their logical functionality, not in their
// physical position.
package gpio

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/armprobe/coredebug/conn/physic"
	"github.com/armprobe/coredebug/conn/pin"
)

// Level is the level of the pin: Low or High.
type Level bool

const (
	// Low represents 0v.
	Low Level = false
	// High represents Vin, generally 3.3v or 5v.
	High Level = true
)

func (l Level) String() string {
	if l == Low {
		return "Low"
	}
	return "High"
}

// Pull specifies the internal pull-up or pull-down for a pin set as input.
type Pull uint8

// Acceptable pull values.
const (
	Float        Pull = 0 // Let the input float
	PullDown     Pull = 1 // Apply pull-down
	PullUp       Pull = 2 // Apply pull-up
	PullNoChange Pull = 3 // Do not change the previous pull resistor setting or an unknown value
)

func (i Pull) String() string {
	switch i {
	case Float:
		return "Float"
	case PullDown:
		return "PullDown"
	case PullUp:
		return "PullUp"
	case PullNoChange:
		return "PullNoChange"
	default:
		return fmt.Sprintf("Pull(%d)", uint8(i))
	}
}

// Edge specifies if an input pin should have edge detection enabled.
//
// Only enable it when needed, since this causes system interrupts.
type Edge uint8

// Acceptable edge detection values.
const (
	NoEdge      Edge = 0
	RisingEdge  Edge = 1
	FallingEdge Edge = 2
	BothEdges   Edge = 3
)

func (i Edge) String() string {
	switch i {
	case NoEdge:
		return "None"
	case RisingEdge:
		return "Rising"
	case FallingEdge:
		return "Falling"
	case BothEdges:
		return "Both"
	default:
		return fmt.Sprintf("Edge(%d)", uint8(i))
	}
}

// Duty is the duty cycle for a PWM, in 1/10000th increments.
type Duty int32

// DutyMax is a duty cycle of 100%.
const DutyMax Duty = 10000

// DutyHalf is a 50% duty cycle.
const DutyHalf Duty = DutyMax / 2

func (d Duty) String() string {
	// Round to the nearest integer percentage.
	return strconv.Itoa(int((d*100+DutyMax/2)/DutyMax)) + "%"
}

// ParseDuty parses a string and converts it to a Duty value.
func ParseDuty(s string) (Duty, error) {
	if len(s) == 0 || s[len(s)-1] != '%' {
		return 0, errors.New("gpio: duty must end with %")
	}
	i, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("gpio: invalid duty %q: %w", s, err)
	}
	if i < 0 || i > 100 {
		return 0, fmt.Errorf("gpio: duty %q out of range", s)
	}
	return Duty(i) * DutyMax / 100, nil
}

// PinIn is an input GPIO pin.
//
// It may optionally support internal pull resistor and edge based triggering.
type PinIn interface {
	pin.Pin
	// In setups a pin as an input.
	//
	// If WaitForEdge() is planned to be called, make sure to use one of the
	// Edge values. Otherwise, use NoEdge to not generate unneeded hardware
	// interrupts.
	In(pull Pull, edge Edge) error
	// Read returns the current pin level.
	//
	// Behavior is undefined if In() wasn't called before.
	Read() Level
	// WaitForEdge waits for the next edge or immediately returns if an edge
	// occurred since the last call.
	//
	// Specify -1 to effectively disable the timeout.
	WaitForEdge(timeout time.Duration) bool
	// Pull returns the internal pull resistor if the pin is set as an input
	// pin. Returns PullNoChange if the value cannot be read.
	Pull() Pull
}

// PinOut is an output GPIO pin.
type PinOut interface {
	pin.Pin
	// Out sets a pin as output if it wasn't already and sets its level.
	Out(l Level) error
	// PWM sets a pin as output with a specified duty cycle at the given
	// frequency.
	PWM(duty Duty, f physic.Frequency) error
}

// PinIO is a GPIO pin that supports both input and output.
type PinIO interface {
	pin.Pin
	In(pull Pull, edge Edge) error
	Read() Level
	WaitForEdge(timeout time.Duration) bool
	Pull() Pull
	Out(l Level) error
	PWM(duty Duty, f physic.Frequency) error
}

// RealPin is implemented by aliased pins and allows the retrieval of the
// real pin underneath an alias.
type RealPin interface {
	Real() PinIO
}

// INVALID implements PinIO and fails on all access.
var INVALID PinIO = invalidPin{}

// PinAlias is an alias of a GPIO pin registered under a second, friendlier
// name (for example a board header position aliasing a chip-level pin).
type PinAlias struct {
	PinIO
	AliasName string
}

// String returns the alias name along the real pin's name in parenthesis.
func (a *PinAlias) String() string {
	return fmt.Sprintf("%s(%s)", a.AliasName, a.PinIO.String())
}

// Name implements pin.Pin.
func (a *PinAlias) Name() string { return a.AliasName }

// Real implements RealPin.
func (a *PinAlias) Real() PinIO { return a.PinIO }

// BasicPin implements Pin as a non-functional pin.
type BasicPin struct {
	N string
}

func (b *BasicPin) String() string { return b.N }

// Name implements pin.Pin.
func (b *BasicPin) Name() string { return b.N }

// Number implements pin.Pin.
func (b *BasicPin) Number() int { return -1 }

// Function implements pin.Pin.
func (b *BasicPin) Function() string { return "" }

// In implements PinIn.
func (b *BasicPin) In(Pull, Edge) error {
	return fmt.Errorf("%s cannot be used as input", b.N)
}

// Read implements PinIn.
func (b *BasicPin) Read() Level { return Low }

// WaitForEdge implements PinIn.
func (b *BasicPin) WaitForEdge(timeout time.Duration) bool { return false }

// Pull implements PinIn.
func (b *BasicPin) Pull() Pull { return PullNoChange }

// Out implements PinOut.
func (b *BasicPin) Out(Level) error {
	return fmt.Errorf("%s cannot be used as output", b.N)
}

// PWM implements PinOut.
func (b *BasicPin) PWM(Duty, physic.Frequency) error {
	return fmt.Errorf("%s cannot be used as PWM", b.N)
}

//

// ByNumber returns a GPIO pin from its number.
//
// Returns nil in case the pin is not present.
func ByNumber(number int) PinIO {
	lock.Lock()
	defer lock.Unlock()
	return byNumber[number]
}

// ByName returns a GPIO pin from its name.
//
// This can be strings like GPIO2, PB8, etc.
//
// Returns nil in case the pin is not present.
func ByName(name string) PinIO {
	lock.Lock()
	defer lock.Unlock()
	return byName[name]
}

// ByFunction returns a GPIO pin from its function.
//
// This can be strings like I2C1_SDA, SPI0_MOSI, etc.
//
// Returns nil in case there is no pin setup with this function.
func ByFunction(fn string) PinIO {
	lock.Lock()
	defer lock.Unlock()
	return byFunction[fn]
}

// All returns all the GPIO pins available on this host, in order of number.
func All() []PinIO {
	lock.Lock()
	defer lock.Unlock()
	out := make(pinList, 0, len(byNumber))
	for _, p := range byNumber {
		out = append(out, p)
	}
	sort.Sort(out)
	return out
}

// Register registers a GPIO pin.
//
// Registering the same pin number or name twice is an error.
func Register(p PinIO) error {
	lock.Lock()
	defer lock.Unlock()
	number := p.Number()
	if _, ok := byNumber[number]; ok {
		return fmt.Errorf("gpio: registering the same pin %d twice", number)
	}
	name := p.String()
	if _, ok := byName[name]; ok {
		return fmt.Errorf("gpio: registering the same pin %s twice", name)
	}
	byNumber[number] = p
	byName[name] = p
	return nil
}

// Unregister removes a previously registered pin.
//
// This can happen when a pin is exposed via a USB device and the device is
// unplugged.
func Unregister(name string, number int, function string) error {
	lock.Lock()
	defer lock.Unlock()
	if _, ok := byName[name]; !ok {
		return errors.New("gpio: unknown name")
	}
	if _, ok := byNumber[number]; !ok {
		return errors.New("gpio: unknown number")
	}
	delete(byName, name)
	delete(byNumber, number)
	if function != "" {
		delete(byFunction, function)
	}
	return nil
}

// MapFunction registers a GPIO pin for a specific function.
func MapFunction(function string, p PinIO) {
	lock.Lock()
	defer lock.Unlock()
	byFunction[function] = p
}

//

var errInvalidPin = errors.New("gpio: invalid pin")

// invalidPin implements PinIO for compatibility but fails on all access.
type invalidPin struct{}

func (invalidPin) Number() int                               { return -1 }
func (invalidPin) String() string                             { return "INVALID" }
func (invalidPin) Name() string                                { return "INVALID" }
func (invalidPin) Function() string                            { return "" }
func (invalidPin) In(Pull, Edge) error                         { return errInvalidPin }
func (invalidPin) Read() Level                                 { return Low }
func (invalidPin) WaitForEdge(timeout time.Duration) bool      { return false }
func (invalidPin) Pull() Pull                                  { return PullNoChange }
func (invalidPin) Out(Level) error                             { return errInvalidPin }
func (invalidPin) PWM(Duty, physic.Frequency) error            { return errInvalidPin }

var (
	lock       sync.Mutex
	byNumber   = map[int]PinIO{}
	byName     = map[string]PinIO{}
	byFunction = map[string]PinIO{}
)

type pinList []PinIO

func (p pinList) Len() int           { return len(p) }
func (p pinList) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }
func (p pinList) Less(i, j int) bool { return p[i].Number() < p[j].Number() }

var (
	_ PinIn  = INVALID
	_ PinOut = INVALID
	_ PinIO  = INVALID
)
