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

// STM32F1 FLASH peripheral registers (RM0008), base 0x40022000.
const (
	f1FlashBase = 0x40022000
	f1KEYR      = f1FlashBase + 0x04
	f1SR        = f1FlashBase + 0x0c
	f1CR        = f1FlashBase + 0x10
	f1AR        = f1FlashBase + 0x14
)

const (
	f1CrPG   uint32 = 1 << 0
	f1CrPER  uint32 = 1 << 1
	f1CrMER  uint32 = 1 << 2
	f1CrSTRT uint32 = 1 << 6
	f1CrLock uint32 = 1 << 7

	f1SrBSY       uint32 = 1 << 0
	f1SrEOP       uint32 = 1 << 5
	f1SrErrorMask uint32 = 1<<2 | 1<<4 // PGERR | WRPRTERR
)

const f1UnlockKey1, f1UnlockKey2 = 0x45670123, 0xcdef89ab

// dbgmcuIDCodeAddr is the DBGMCU_IDCODE register shared by every STM32
// line (RM0008 §31.6.3 and the equivalent section of each line's
// reference manual); its low 12 bits (DEV_ID) distinguish the line since
// the ROM-table PID/CID the Cortex-M core exposes is identical across
// all of them.
const dbgmcuIDCodeAddr = 0xe0042000

func readDBGMCUIDCode(mem *ap.MemAP) (uint32, error) {
	return mem.ReadWord(dbgmcuIDCodeAddr)
}

// Option byte block (RM0008 §3.7): byte 0 of the low word is RDP, which
// reads back as 0xa5 when read protection is disabled.
const (
	f1OptionByteBase = 0x1ffff800
	f1RdpKey         = 0xa5
)

// stm32f1Family implements session.Probe and flash.Driver for the
// STM32F1 line (idcode low 12 bits = 0x410, spec.md §8 scenario 1).
type stm32f1Family struct {
	mem *ap.MemAP
}

func (stm32f1Family) Name() string { return "stm32f1" }

func (stm32f1Family) Match(pid, cid [2]uint32) bool {
	// Matched via the DBGMCU IDCODE low 12 bits rather than PID/CID for
	// this family (ROM-table discovery lands on the Cortex-M3 core
	// component; the STM32-specific ID lives in DBGMCU_IDCODE at
	// 0xe0042000, read by the IDCodeReader this file's init registers).
	return false
}

// MatchIDCode is the STM32-specific entry point session.Discover's
// generic ROM-table match cannot reach; the IDCodeReader registered in
// this file's init calls it with DBGMCU_IDCODE during Discover's
// ID-register fallback, per spec.md §8 scenario 1.
func MatchIDCode(idcode uint32) session.Probe {
	if idcode&0xfff == 0x410 {
		return stm32f1Family{}
	}
	return nil
}

func (stm32f1Family) Attach(mem *ap.MemAP) (target.Target, error) {
	const variant = "STM32F1xx"
	region := &Region{
		Start: 0x08000000, Length: 0x20000,
		BlockSize: 0x400, WriteAlignment: 4, ErasedByte: 0xff, WriteBufSize: 0x400,
		Driver: &stm32f1Driver{mem: mem},
	}
	c, err := target.NewCortexM(mem, variant)
	if err != nil {
		return nil, err
	}
	RegisterRegions(variant, []*Region{region})
	RegisterRAM(variant, RAMRegion{Start: 0x20000000, Length: 0x5000})
	RegisterOption(variant, "read_protection", func(args []string) (string, error) {
		ob, err := mem.ReadWord(f1OptionByteBase)
		if err != nil {
			return "", err
		}
		rdp := byte(ob)
		state := "disabled"
		if rdp != f1RdpKey {
			state = "enabled"
		}
		return fmt.Sprintf("read protection: %s (RDP=%#02x)\n", state, rdp), nil
	})
	return c, nil
}

type stm32f1Driver struct{ mem *ap.MemAP }

var _ MassEraser = (*stm32f1Driver)(nil)

func (d *stm32f1Driver) unlock() error {
	if err := d.mem.WriteWord(f1KEYR, f1UnlockKey1); err != nil {
		return err
	}
	return d.mem.WriteWord(f1KEYR, f1UnlockKey2)
}

func (d *stm32f1Driver) lock() error {
	sr, err := d.mem.ReadWord(f1CR)
	if err != nil {
		return err
	}
	return d.mem.WriteWord(f1CR, sr|f1CrLock)
}

func (d *stm32f1Driver) waitBusy() error {
	for i := 0; i < 1000; i++ {
		sr, err := d.mem.ReadWord(f1SR)
		if err != nil {
			return err
		}
		if sr&f1SrBSY == 0 {
			if sr&f1SrErrorMask != 0 {
				return fmt.Errorf("flash: stm32f1 error, SR=%#08x", sr)
			}
			return nil
		}
	}
	return ErrBusy
}

// Erase erases one page at a time (STM32F1's page-at-a-time PER, spec.md
// §4.5) over [addr, addr+n).
func (d *stm32f1Driver) Erase(addr, n uint32) error {
	if err := d.unlock(); err != nil {
		return err
	}
	defer d.lock()
	const pageSize = 0x400
	for off := uint32(0); off < n; off += pageSize {
		if err := d.mem.WriteWord(f1CR, f1CrPER); err != nil {
			return err
		}
		if err := d.mem.WriteWord(f1AR, addr+off); err != nil {
			return err
		}
		if err := d.mem.WriteWord(f1CR, f1CrPER|f1CrSTRT); err != nil {
			return err
		}
		if err := d.waitBusy(); err != nil {
			return err
		}
	}
	return nil
}

// WriteBuffered programs src (already padded/aligned by flash.Region) as
// 16-bit halfwords, the F1 programming granularity.
func (d *stm32f1Driver) WriteBuffered(dest uint32, src []byte) error {
	if err := d.unlock(); err != nil {
		return err
	}
	if err := d.mem.WriteWord(f1CR, f1CrPG); err != nil {
		return err
	}
	for i := 0; i+1 < len(src); i += 2 {
		hw := uint32(src[i]) | uint32(src[i+1])<<8
		word, err := d.mem.ReadWord((dest + uint32(i)) &^ 3)
		if err != nil {
			return err
		}
		if (dest+uint32(i))&3 == 0 {
			word = word&0xffff0000 | hw
		} else {
			word = word&0xffff | hw<<16
		}
		if err := d.mem.WriteWord((dest+uint32(i))&^3, word); err != nil {
			return err
		}
		if err := d.waitBusy(); err != nil {
			return err
		}
	}
	return nil
}

func (d *stm32f1Driver) Done() error {
	return d.lock()
}

func (d *stm32f1Driver) Probe() bool {
	sr, err := d.mem.ReadWord(f1SR)
	return err == nil && sr&f1SrBSY == 0
}

// EraseMass implements `monitor erase_mass` for STM32F1 (spec.md §8
// scenario 2): MER then STRT|MER, poll BSY, verify EOP with no error bits.
func (d *stm32f1Driver) EraseMass() error {
	if err := d.unlock(); err != nil {
		return err
	}
	defer d.lock()
	if err := d.mem.WriteWord(f1CR, f1CrMER); err != nil {
		return err
	}
	if err := d.mem.WriteWord(f1CR, f1CrMER|f1CrSTRT); err != nil {
		return err
	}
	if err := d.waitBusy(); err != nil {
		return err
	}
	sr, err := d.mem.ReadWord(f1SR)
	if err != nil {
		return err
	}
	if sr&f1SrEOP == 0 {
		return fmt.Errorf("flash: stm32f1 mass erase did not set EOP, SR=%#08x", sr)
	}
	return nil
}

func init() {
	session.Register(stm32f1Family{})
	session.RegisterIDCodeReader(func(mem *ap.MemAP) (session.Probe, error) {
		idcode, err := readDBGMCUIDCode(mem)
		if err != nil {
			return nil, err
		}
		return MatchIDCode(idcode), nil
	})
}
