// Copyright 2024 The coredebug Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flash

import (
	"context"
	"fmt"
	"time"

	"github.com/armprobe/coredebug/ap"
	"github.com/armprobe/coredebug/session"
	"github.com/armprobe/coredebug/target"
)

// NXP LPC parts expose flash programming only through the masked ROM's
// In-Application Programming (IAP) entry point; there is no direct
// register sequence to unlock/erase/write. lpcDriver calls that entry
// point via flash.RunStub's generic stub loader (spec.md §4.6),
// matching the LPC43xx case spec.md §4.5 calls out by name.
const (
	lpcIAPCommand  = 50
	lpcIAPErase    = 52
	lpcIAPWrite    = 51
	lpcIAPBlankChk = 53

	lpcIAPEntry11 = 0x1fff1ff1
	lpcIAPEntry43 = 0x10400100

	lpcStubRAM     = 0x10000800
	lpcStubRAMTop  = 0x10001000
	lpcStubTimeout = 2 * time.Second

	// lpc11DeviceIDAddr is the LPC11xx DEVICE_ID register (UM10398 §26.5.11).
	lpc11DeviceIDAddr = 0x400483f8
	// lpc43ChipIDAddr is the LPC43xx CREG CHIPID register (UM10503 §17.5.13).
	lpc43ChipIDAddr = 0x40045000
)

type lpcFamily struct {
	name        string
	entry       uint32
	flashStart  uint32
	flashLen    uint32
	sectorSize  uint32
	ramStart    uint32
	ramLen      uint32
}

func (f lpcFamily) Name() string { return f.name }

func (lpcFamily) Match(pid, cid [2]uint32) bool { return false }

var lpc11xx = lpcFamily{
	name: "lpc11xx", entry: lpcIAPEntry11,
	flashStart: 0x00000000, flashLen: 0x8000, sectorSize: 0x1000,
	ramStart: 0x10000000, ramLen: 0x1000,
}

var lpc43xx = lpcFamily{
	name: "lpc43xx", entry: lpcIAPEntry43,
	flashStart: 0x1a000000, flashLen: 0x80000, sectorSize: 0x2000,
	ramStart: 0x10000000, ramLen: 0x8000,
}

// MatchLPC11 and MatchLPC43 are the device-ID entry points the
// IDCodeReaders registered in this file's init call after reading the
// part's DEVICE_ID register, mirroring
// stm32f1.MatchIDCode (ROM-table PID/CID alone don't distinguish LPC
// device IDs).
func MatchLPC11(deviceID uint32) session.Probe {
	if deviceID&0xfff00000 == 0x04000000 {
		return lpc11xx
	}
	return nil
}

func MatchLPC43(deviceID uint32) session.Probe {
	if deviceID&0xff000000 == 0xa1000000 {
		return lpc43xx
	}
	return nil
}

func (f lpcFamily) Attach(mem *ap.MemAP) (target.Target, error) {
	region := &Region{
		Start: f.flashStart, Length: f.flashLen,
		BlockSize: f.sectorSize, WriteAlignment: 4, ErasedByte: 0xff, WriteBufSize: 512,
		Driver: &lpcDriver{mem: mem, family: f},
	}
	c, err := target.NewCortexM(mem, f.name)
	if err != nil {
		return nil, err
	}
	d := region.Driver.(*lpcDriver)
	d.target = c
	RegisterRegions(f.name, []*Region{region})
	RegisterRAM(f.name, RAMRegion{Start: f.ramStart, Length: f.ramLen})
	return c, nil
}

type lpcDriver struct {
	mem    *ap.MemAP
	family lpcFamily
	target target.Target
}

// callIAP loads cmd/params into the stub's argument block, runs the
// trampoline stub (a handful of instructions that call the mask ROM's
// IAP entry then BKPT), and reads back the IAP result code.
func (d *lpcDriver) callIAP(cmd uint32, params [4]uint32) error {
	// Trampoline: r0 = param block, r1 = result block, r2 = IAP entry.
	// The IAP call itself follows the AN11008 calling convention (r0/r1
	// set by the caller); this stub only has to branch-and-link into it.
	//   blx r2
	//   bkpt #0
	code := []byte{
		0x90, 0x47, // blx r2
		0x00, 0xbe, // bkpt #0
	}
	paramAddr := d.family.ramStart
	resultAddr := paramAddr + 4*5
	words := []uint32{cmd, params[0], params[1], params[2], params[3]}
	if err := d.mem.WriteBlock32(paramAddr, words); err != nil {
		return err
	}
	args := StubArgs{paramAddr, resultAddr, d.family.entry, 0}
	_, err := RunStub(context.Background(), d.target, d.mem, d.family.ramStart+0x200, code, args, d.family.ramStart+d.family.ramLen, lpcStubTimeout)
	if err != nil {
		return err
	}
	status, err := d.mem.ReadWord(resultAddr)
	if err != nil {
		return err
	}
	if status != 0 {
		return fmt.Errorf("flash: lpc IAP command %d failed, status=%d", cmd, status)
	}
	return nil
}

func (d *lpcDriver) sectorOf(addr uint32) uint32 {
	return (addr - d.family.flashStart) / d.family.sectorSize
}

func (d *lpcDriver) Erase(addr, n uint32) error {
	first := d.sectorOf(addr)
	last := d.sectorOf(addr + n - 1)
	if err := d.callIAP(lpcIAPCommand, [4]uint32{first, last, 0, 0}); err != nil { // Prepare sectors
		return err
	}
	return d.callIAP(lpcIAPErase, [4]uint32{first, last, 12000, 0})
}

func (d *lpcDriver) WriteBuffered(dest uint32, src []byte) error {
	if err := d.mem.WriteBlock32(d.family.ramStart+0x400, bytesToWords(src)); err != nil {
		return err
	}
	sector := d.sectorOf(dest)
	if err := d.callIAP(lpcIAPCommand, [4]uint32{sector, sector, 0, 0}); err != nil { // Prepare sector
		return err
	}
	return d.callIAP(lpcIAPWrite, [4]uint32{dest, d.family.ramStart + 0x400, uint32(len(src)), 12000})
}

func (d *lpcDriver) Done() error { return nil }

func (d *lpcDriver) Probe() bool { return true }

func bytesToWords(b []byte) []uint32 {
	words := make([]uint32, (len(b)+3)/4)
	padded := append(append([]byte(nil), b...), make([]byte, len(words)*4-len(b))...)
	for i := range words {
		words[i] = uint32(padded[i*4]) | uint32(padded[i*4+1])<<8 | uint32(padded[i*4+2])<<16 | uint32(padded[i*4+3])<<24
	}
	return words
}

func init() {
	session.Register(lpc11xx)
	session.Register(lpc43xx)
	session.RegisterIDCodeReader(func(mem *ap.MemAP) (session.Probe, error) {
		id, err := mem.ReadWord(lpc11DeviceIDAddr)
		if err != nil {
			return nil, err
		}
		return MatchLPC11(id), nil
	})
	session.RegisterIDCodeReader(func(mem *ap.MemAP) (session.Probe, error) {
		id, err := mem.ReadWord(lpc43ChipIDAddr)
		if err != nil {
			return nil, err
		}
		return MatchLPC43(id), nil
	})
}
