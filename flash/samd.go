// Copyright 2024 The coredebug Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flash

import (
	"fmt"

	"github.com/armprobe/coredebug/ap"
	"github.com/armprobe/coredebug/session"
	"github.com/armprobe/coredebug/target"
)

// Atmel/Microchip SAMD NVMCTRL registers, base 0x41004000.
const (
	samdNVMCtrlBase = 0x41004000
	samdCTRLA       = samdNVMCtrlBase + 0x00
	samdSTATUS      = samdNVMCtrlBase + 0x18
	samdADDR        = samdNVMCtrlBase + 0x1c
	samdINTFLAG     = samdNVMCtrlBase + 0x14

	samdDSU_DID = 0x41002018
)

const (
	samdCmdER     uint16 = 0x02 // erase row
	samdCmdWP     uint16 = 0x04 // write page
	samdCtrlaCmdEx uint16 = 0xa500 // CMDEX key, OR'd with cmd

	samdIntflagReady uint32 = 1 << 0

	samdPidMask   uint32 = 0x0001fcd0
	samdDidMask   uint32 = 0x10000000
	samdCidMatch  uint32 = 0xb105100d
)

type samdFamily struct{}

func (samdFamily) Name() string { return "samd" }

// Match identifies a SAM D21 component by CoreSight CID and masked PID
// (spec.md §8 scenario 3: CID=0xB105100D, PID masked=0x0001FCD0).
func (samdFamily) Match(pid, cid [2]uint32) bool {
	return cid[0] == samdCidMatch && pid[0]&samdPidMask == samdPidMask
}

func (samdFamily) Attach(mem *ap.MemAP) (target.Target, error) {
	did, err := mem.ReadWord(samdDSU_DID)
	if err != nil {
		return nil, err
	}
	if did&samdDidMask != samdDidMask {
		return nil, fmt.Errorf("flash: samd DID %#08x does not match expected family", did)
	}
	rev := 'A' + byte((did>>8)&0xf)
	variant := fmt.Sprintf("Atmel SAMDxxJxxA (rev %c)", rev)

	region := &Region{
		Start: 0x00000000, Length: 0x40000,
		BlockSize: 0x100, WriteAlignment: 4, ErasedByte: 0xff, WriteBufSize: 0x40,
		Driver: &samdDriver{mem: mem},
	}
	c, err := target.NewCortexM(mem, variant)
	if err != nil {
		return nil, err
	}
	RegisterRegions(variant, []*Region{region})
	RegisterRAM(variant, RAMRegion{Start: 0x20000000, Length: 0x8000})
	return c, nil
}

type samdDriver struct{ mem *ap.MemAP }

func (d *samdDriver) waitReady() error {
	for i := 0; i < 1000; i++ {
		f, err := d.mem.ReadWord(samdINTFLAG)
		if err != nil {
			return err
		}
		if f&samdIntflagReady != 0 {
			return nil
		}
	}
	return ErrBusy
}

func (d *samdDriver) command(addr uint32, cmd uint16) error {
	if err := d.mem.WriteWord(samdADDR, addr>>1); err != nil {
		return err
	}
	if err := d.mem.WriteWord(samdCTRLA, uint32(samdCtrlaCmdEx|cmd)); err != nil {
		return err
	}
	return d.waitReady()
}

// Erase issues one row-erase command (ER) per row-sized block covering
// [addr, addr+n) — SAMD's row-sized erase granularity (spec.md §4.5).
func (d *samdDriver) Erase(addr, n uint32) error {
	const rowSize = 0x100
	for off := uint32(0); off < n; off += rowSize {
		if err := d.command(addr+off, samdCmdER); err != nil {
			return err
		}
	}
	return nil
}

// WriteBuffered writes words into the page buffer then issues a
// page-sized WP (write page) command, SAMD's page-sized programming
// granularity.
func (d *samdDriver) WriteBuffered(dest uint32, src []byte) error {
	for i := 0; i+3 < len(src); i += 4 {
		word := uint32(src[i]) | uint32(src[i+1])<<8 | uint32(src[i+2])<<16 | uint32(src[i+3])<<24
		if err := d.mem.WriteWord(dest+uint32(i), word); err != nil {
			return err
		}
	}
	return d.command(dest, samdCmdWP)
}

func (d *samdDriver) Done() error { return nil }

func (d *samdDriver) Probe() bool {
	f, err := d.mem.ReadWord(samdINTFLAG)
	return err == nil && f&samdIntflagReady != 0
}

func init() {
	session.Register(samdFamily{})
}
