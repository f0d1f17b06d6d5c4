// Copyright 2024 The coredebug Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package flash implements the generic erase/write/program framework
// shared by every supported microcontroller family, plus per-family
// drivers that plug into it.
package flash

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("pkg", "flash")

var (
	// ErrNotImplemented is returned by a family driver operation that the
	// hardware genuinely cannot support (e.g. STM32L0 mass-erase, spec.md
	// §9's open question — never guessed at, always reported).
	ErrNotImplemented = errors.New("flash: not implemented for this family")
	ErrOutOfRange     = errors.New("flash: address out of region")
	ErrBusy           = errors.New("flash: device busy / not ready")
)

// Region describes one erase/program region of a target's flash (or
// EEPROM-like) memory, matching spec.md §3's FlashRegion exactly.
type Region struct {
	Start          uint32
	Length         uint32
	BlockSize      uint32 // erase granularity
	WriteAlignment uint32 // program granularity, in bytes
	ErasedByte     byte   // value an erased cell reads as (0xff on most parts)
	WriteBufSize   uint32 // size of the on-target stub's write buffer

	Driver Driver
}

// Driver is the per-family capability a Region's framework operations
// call into.
type Driver interface {
	// Erase erases the BlockSize-aligned block(s) covering [addr, addr+n).
	Erase(addr, n uint32) error
	// WriteBuffered stages src at dest, buffering up to WriteBufSize bytes
	// and flushing to the target when full or on Done.
	WriteBuffered(dest uint32, src []byte) error
	// Done flushes any buffered write and leaves the flash controller
	// locked/idle.
	Done() error
	// Probe reports whether the controller is idle and ready to accept
	// the next command.
	Probe() bool
}

// MassEraser is an optional Driver capability for families whose
// controller supports a single whole-chip erase command (spec.md §8
// scenario 2's `monitor erase_mass`). The STM32L0/L1 driver, whose
// controller has no such command, implements it by returning
// ErrNotImplemented rather than guessing at a workaround.
type MassEraser interface {
	EraseMass() error
}

var (
	regionsMu        sync.Mutex
	regionsByVariant = map[string][]*Region{}
)

// RegisterRegions records the flash/EEPROM regions for a target variant,
// called once by a family's Attach so the RSP layer's memory-map XML
// (spec.md §8 scenario 1) can list them without re-probing hardware.
func RegisterRegions(variant string, regions []*Region) {
	regionsMu.Lock()
	defer regionsMu.Unlock()
	regionsByVariant[variant] = regions
}

// RegionsFor returns the regions previously registered for variant, or
// nil if none were.
func RegionsFor(variant string) []*Region {
	regionsMu.Lock()
	defer regionsMu.Unlock()
	return regionsByVariant[variant]
}

// RAMRegion describes one RAM range for the memory-map XML (spec.md §8
// scenario 1); it carries no Driver since RAM isn't erased/programmed.
type RAMRegion struct {
	Start  uint32
	Length uint32
}

var ramByVariant = map[string][]RAMRegion{}

// RegisterRAM records a variant's RAM range(s), alongside RegisterRegions.
func RegisterRAM(variant string, ram ...RAMRegion) {
	regionsMu.Lock()
	defer regionsMu.Unlock()
	ramByVariant[variant] = ram
}

// RAMFor returns the RAM ranges previously registered for variant.
func RAMFor(variant string) []RAMRegion {
	regionsMu.Lock()
	defer regionsMu.Unlock()
	return ramByVariant[variant]
}

// OptionFunc backs one `monitor option <name> [args]` subcommand (spec.md
// §6), e.g. reading or toggling a family's read-protection option bytes.
type OptionFunc func(args []string) (string, error)

var (
	optionsMu       sync.Mutex
	optionsByFamily = map[string]map[string]OptionFunc{}
)

// RegisterOption adds a named option subcommand for variant, called by a
// family's Attach alongside RegisterRegions.
func RegisterOption(variant, name string, fn OptionFunc) {
	optionsMu.Lock()
	defer optionsMu.Unlock()
	if optionsByFamily[variant] == nil {
		optionsByFamily[variant] = map[string]OptionFunc{}
	}
	optionsByFamily[variant][name] = fn
}

// OptionsFor returns the option subcommands registered for variant, or nil.
func OptionsFor(variant string) map[string]OptionFunc {
	optionsMu.Lock()
	defer optionsMu.Unlock()
	return optionsByFamily[variant]
}

func (r *Region) contains(addr, n uint32) bool {
	return addr >= r.Start && uint64(addr)+uint64(n) <= uint64(r.Start)+uint64(r.Length)
}

// Erase erases [addr, addr+n) after validating it lies within r and widening
// to BlockSize boundaries.
func (r *Region) Erase(addr, n uint32) error {
	if !r.contains(addr, n) {
		return ErrOutOfRange
	}
	start := addr - (addr-r.Start)%r.BlockSize
	end := addr + n
	if rem := (end - r.Start) % r.BlockSize; rem != 0 {
		end += r.BlockSize - rem
	}
	log.WithField("region", r.Start).WithField("start", start).WithField("end", end).Debug("erase")
	return r.Driver.Erase(start, end-start)
}

// Write widens src to WriteAlignment boundaries (padding with ErasedByte)
// and streams it through Driver.WriteBuffered in WriteBufSize chunks,
// flushing via Done once fully written (spec.md §4.5).
func (r *Region) Write(dest uint32, src []byte) error {
	if !r.contains(dest, uint32(len(src))) {
		return ErrOutOfRange
	}
	padded := r.widen(dest, src)
	alignedDest := dest - (dest-r.Start)%r.WriteAlignment

	for off := 0; off < len(padded); {
		chunk := int(r.WriteBufSize)
		if chunk <= 0 || chunk > len(padded)-off {
			chunk = len(padded) - off
		}
		if err := r.Driver.WriteBuffered(alignedDest+uint32(off), padded[off:off+chunk]); err != nil {
			return fmt.Errorf("flash: write at %#08x: %w", alignedDest+uint32(off), err)
		}
		off += chunk
	}
	return r.Driver.Done()
}

// widen pads src on both ends with ErasedByte so it begins and ends on a
// WriteAlignment boundary, the alignment-widening step spec.md §4.5
// requires before programming.
func (r *Region) widen(dest uint32, src []byte) []byte {
	align := r.WriteAlignment
	if align <= 1 {
		return src
	}
	lead := (dest - r.Start) % align
	tailLen := uint32(len(src)) + lead
	if rem := tailLen % align; rem != 0 {
		tailLen += align - rem
	}
	out := make([]byte, tailLen)
	for i := range out {
		out[i] = r.ErasedByte
	}
	copy(out[lead:], src)
	return out
}
