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

// STM32L0/L1 FLASH peripheral registers (RM0377/RM0038), base 0x40022000.
const (
	l0FlashBase = 0x40022000
	l0PECR      = l0FlashBase + 0x04
	l0PEKEYR    = l0FlashBase + 0x0c
	l0PRGKEYR   = l0FlashBase + 0x10
	l0SR        = l0FlashBase + 0x18
)

const (
	l0PecrPELock uint32 = 1 << 0
	l0PecrPRGLock uint32 = 1 << 1
	l0PecrPROG   uint32 = 1 << 3
	l0PecrERASE  uint32 = 1 << 9
	l0PecrFPRG   uint32 = 1 << 10

	l0SrBSY       uint32 = 1 << 0
	l0SrEOP       uint32 = 1 << 1
	l0SrErrorMask uint32 = 1<<3 | 1<<4 | 1<<5 | 1<<8 // WRPERR|PGAERR|SIZERR|FWWERR
)

const (
	l0PEKey1, l0PEKey2   = 0x89abcdef, 0x02030405
	l0PRGKey1, l0PRGKey2 = 0x8c9daebf, 0x13141516
)

type stm32l0Family struct{}

func (stm32l0Family) Name() string { return "stm32l0" }

func (stm32l0Family) Match(pid, cid [2]uint32) bool { return false }

// MatchIDCodeL0 matches the STM32L0 Cat.2 line (idcode low 12 bits = 0x417).
func MatchIDCodeL0(idcode uint32) session.Probe {
	if idcode&0xfff == 0x417 {
		return stm32l0Family{}
	}
	return nil
}

func (stm32l0Family) Attach(mem *ap.MemAP) (target.Target, error) {
	const variant = "STM32L0xx"
	d := &stm32l0Driver{mem: mem}
	code := &Region{
		Start: 0x08000000, Length: 0x10000,
		BlockSize: 0x80, WriteAlignment: 4, ErasedByte: 0x00, WriteBufSize: 0x80,
		Driver: d,
	}
	// The DATA EEPROM region shares the PECR unlock but is written word
	// at a time with no page-erase step (RM0377 §3.3.4); it gets its own
	// Region over the same driver.
	eeprom := &Region{
		Start: 0x08080000, Length: 0x1800,
		BlockSize: 4, WriteAlignment: 4, ErasedByte: 0x00, WriteBufSize: 4,
		Driver: d,
	}
	c, err := target.NewCortexM(mem, variant)
	if err != nil {
		return nil, err
	}
	RegisterRegions(variant, []*Region{code, eeprom})
	RegisterRAM(variant, RAMRegion{Start: 0x20000000, Length: 0x2000})
	return c, nil
}

type stm32l0Driver struct{ mem *ap.MemAP }

func (d *stm32l0Driver) unlockPE() error {
	if err := d.mem.WriteWord(l0PEKEYR, l0PEKey1); err != nil {
		return err
	}
	return d.mem.WriteWord(l0PEKEYR, l0PEKey2)
}

func (d *stm32l0Driver) unlockProg() error {
	if err := d.mem.WriteWord(l0PRGKEYR, l0PRGKey1); err != nil {
		return err
	}
	return d.mem.WriteWord(l0PRGKEYR, l0PRGKey2)
}

func (d *stm32l0Driver) lock() error {
	pecr, err := d.mem.ReadWord(l0PECR)
	if err != nil {
		return err
	}
	return d.mem.WriteWord(l0PECR, pecr|l0PecrPELock|l0PecrPRGLock)
}

func (d *stm32l0Driver) waitBusy() error {
	for i := 0; i < 1000; i++ {
		sr, err := d.mem.ReadWord(l0SR)
		if err != nil {
			return err
		}
		if sr&l0SrBSY == 0 {
			if sr&l0SrErrorMask != 0 {
				return fmt.Errorf("flash: stm32l0 error, SR=%#08x", sr)
			}
			return nil
		}
	}
	return ErrBusy
}

// Erase performs a page erase (ERASE|PROG, one 0x80-byte block at a time)
// of the code region, or a
// plain word write-of-zero erase for the data EEPROM region (it has no
// page-erase step; a zero word marks a cell erased for this driver's
// purposes).
func (d *stm32l0Driver) Erase(addr, n uint32) error {
	if err := d.unlockPE(); err != nil {
		return err
	}
	defer d.lock()
	if addr >= 0x08080000 {
		for off := uint32(0); off < n; off += 4 {
			if err := d.mem.WriteWord(addr+off, 0); err != nil {
				return err
			}
			if err := d.waitBusy(); err != nil {
				return err
			}
		}
		return nil
	}
	if err := d.unlockProg(); err != nil {
		return err
	}
	const halfPage = 0x80
	for off := uint32(0); off < n; off += halfPage {
		if err := d.mem.WriteWord(l0PECR, l0PecrERASE|l0PecrPROG); err != nil {
			return err
		}
		if err := d.mem.WriteWord(addr+off, 0); err != nil {
			return err
		}
		if err := d.waitBusy(); err != nil {
			return err
		}
	}
	return nil
}

// WriteBuffered programs src word-at-a-time via FPRG half-page
// programming for the code region, or a plain word store for EEPROM.
func (d *stm32l0Driver) WriteBuffered(dest uint32, src []byte) error {
	if err := d.unlockPE(); err != nil {
		return err
	}
	isEEPROM := dest >= 0x08080000
	if !isEEPROM {
		if err := d.unlockProg(); err != nil {
			return err
		}
		if err := d.mem.WriteWord(l0PECR, l0PecrFPRG|l0PecrPROG); err != nil {
			return err
		}
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

func (d *stm32l0Driver) Done() error { return d.lock() }

func (d *stm32l0Driver) Probe() bool {
	sr, err := d.mem.ReadWord(l0SR)
	return err == nil && sr&l0SrBSY == 0
}

// EraseMass is deliberately unimplemented: STM32L0/L1 expose no single
// mass-erase command equivalent to F1/F4's MER bit, only per-page/
// half-page erase (RM0377 has no whole-bank erase bit in PECR). Rather
// than loop every page here and call it "mass erase", this reports
// ErrNotImplemented per the open question this left unresolved.
func (d *stm32l0Driver) EraseMass() error {
	return ErrNotImplemented
}

var _ MassEraser = (*stm32l0Driver)(nil)

func init() {
	session.Register(stm32l0Family{})
	session.RegisterIDCodeReader(func(mem *ap.MemAP) (session.Probe, error) {
		idcode, err := readDBGMCUIDCode(mem)
		if err != nil {
			return nil, err
		}
		return MatchIDCodeL0(idcode), nil
	})
}
