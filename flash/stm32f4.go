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

// STM32F4 FLASH peripheral registers (RM0090), base 0x40023c00.
const (
	f4FlashBase = 0x40023c00
	f4KEYR      = f4FlashBase + 0x04
	f4SR        = f4FlashBase + 0x0c
	f4CR        = f4FlashBase + 0x10
)

const (
	f4CrPG      uint32 = 1 << 0
	f4CrSER     uint32 = 1 << 1
	f4CrMER     uint32 = 1 << 2
	f4CrSnumPos        = 3
	f4CrSnumMsk uint32 = 0x1f << f4CrSnumPos
	f4CrPsizePos       = 8
	f4CrStrt    uint32 = 1 << 16
	f4CrLock    uint32 = 1 << 31

	f4SrBSY       uint32 = 1 << 16
	f4SrErrorMask uint32 = 1<<1 | 1<<4 | 1<<6 | 1<<7 // OPERR|WRPERR|PGAERR|PGPERR
)

const f4UnlockKey1, f4UnlockKey2 = 0x45670123, 0xcdef89ab

// f4Sectors are the fixed (non-uniform) sector boundaries of a typical
// 1 MiB STM32F4 part (RM0090 Table 5), offsets from flash base.
var f4Sectors = []uint32{
	0x00000, 0x04000, 0x08000, 0x0c000, 0x10000,
	0x20000, 0x40000, 0x60000, 0x80000, 0xa0000, 0xc0000, 0xe0000,
}

func f4SectorOf(offset uint32) (num int, size uint32) {
	for i := len(f4Sectors) - 1; i >= 0; i-- {
		if offset >= f4Sectors[i] {
			size = 0x20000
			if i < 4 {
				size = 0x4000
			} else if i == 4 {
				size = 0x10000
			}
			return i, size
		}
	}
	return 0, 0x4000
}

type stm32f4Family struct{}

func (stm32f4Family) Name() string { return "stm32f4" }

func (stm32f4Family) Match(pid, cid [2]uint32) bool { return false }

// MatchIDCodeF4 mirrors MatchIDCode for the F4 line (idcode low 12
// bits = 0x419 for the 1 MiB density line).
func MatchIDCodeF4(idcode uint32) session.Probe {
	if idcode&0xfff == 0x419 {
		return stm32f4Family{}
	}
	return nil
}

func (stm32f4Family) Attach(mem *ap.MemAP) (target.Target, error) {
	const variant = "STM32F4xx"
	region := &Region{
		Start: 0x08000000, Length: 0x100000,
		BlockSize: 0x4000, WriteAlignment: 4, ErasedByte: 0xff, WriteBufSize: 0x100,
		Driver: &stm32f4Driver{mem: mem},
	}
	c, err := target.NewCortexM(mem, variant)
	if err != nil {
		return nil, err
	}
	RegisterRegions(variant, []*Region{region})
	RegisterRAM(variant, RAMRegion{Start: 0x20000000, Length: 0x30000})
	return c, nil
}

type stm32f4Driver struct{ mem *ap.MemAP }

var _ MassEraser = (*stm32f4Driver)(nil)

func (d *stm32f4Driver) unlock() error {
	if err := d.mem.WriteWord(f4KEYR, f4UnlockKey1); err != nil {
		return err
	}
	return d.mem.WriteWord(f4KEYR, f4UnlockKey2)
}

func (d *stm32f4Driver) lock() error {
	cr, err := d.mem.ReadWord(f4CR)
	if err != nil {
		return err
	}
	return d.mem.WriteWord(f4CR, cr|f4CrLock)
}

func (d *stm32f4Driver) waitBusy() error {
	for i := 0; i < 1000; i++ {
		sr, err := d.mem.ReadWord(f4SR)
		if err != nil {
			return err
		}
		if sr&f4SrBSY == 0 {
			if sr&f4SrErrorMask != 0 {
				return fmt.Errorf("flash: stm32f4 error, SR=%#08x", sr)
			}
			return nil
		}
	}
	return ErrBusy
}

// Erase erases whole sectors covering [addr, addr+n), using the
// sector-number + PSIZE encoding STM32F4's SER bit requires.
func (d *stm32f4Driver) Erase(addr, n uint32) error {
	if err := d.unlock(); err != nil {
		return err
	}
	defer d.lock()
	base := addr - 0x08000000
	for off := uint32(0); off < n; {
		num, size := f4SectorOf(base + off)
		cr := f4CrSER | (uint32(num) << f4CrSnumPos) | (2 << f4CrPsizePos) // PSIZE=x32
		if err := d.mem.WriteWord(f4CR, cr); err != nil {
			return err
		}
		if err := d.mem.WriteWord(f4CR, cr|f4CrStrt); err != nil {
			return err
		}
		if err := d.waitBusy(); err != nil {
			return err
		}
		off += size
	}
	return nil
}

// WriteBuffered programs src word-at-a-time with PSIZE=x32.
func (d *stm32f4Driver) WriteBuffered(dest uint32, src []byte) error {
	if err := d.unlock(); err != nil {
		return err
	}
	cr := f4CrPG | (2 << f4CrPsizePos)
	if err := d.mem.WriteWord(f4CR, cr); err != nil {
		return err
	}
	for i := 0; i+3 < len(src); i += 4 {
		word := uint32(src[i]) | uint32(src[i+1])<<8 | uint32(src[i+2])<<16 | uint32(src[i+3])<<24
		if err := d.mem.WriteWord(dest+uint32(i), word); err != nil {
			return err
		}
		if err := d.waitBusy(); err != nil {
			return err
		}
	}
	return nil
}

func (d *stm32f4Driver) Done() error { return d.lock() }

func (d *stm32f4Driver) Probe() bool {
	sr, err := d.mem.ReadWord(f4SR)
	return err == nil && sr&f4SrBSY == 0
}

func (d *stm32f4Driver) EraseMass() error {
	if err := d.unlock(); err != nil {
		return err
	}
	defer d.lock()
	if err := d.mem.WriteWord(f4CR, f4CrMER); err != nil {
		return err
	}
	if err := d.mem.WriteWord(f4CR, f4CrMER|f4CrStrt); err != nil {
		return err
	}
	return d.waitBusy()
}

func init() {
	session.Register(stm32f4Family{})
	session.RegisterIDCodeReader(func(mem *ap.MemAP) (session.Probe, error) {
		idcode, err := readDBGMCUIDCode(mem)
		if err != nil {
			return nil, err
		}
		return MatchIDCodeF4(idcode), nil
	})
}
