// Copyright 2024 The coredebug Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flash

import (
	"github.com/armprobe/coredebug/ap"
	"github.com/armprobe/coredebug/session"
	"github.com/armprobe/coredebug/target"
)

// stm32l1Family is the Cat.3/Cat.4 STM32L1 line. Its FLASH/EEPROM
// controller (RM0038) is register-compatible with the L0's PECR
// interface, so it reuses stm32l0Driver; only the IDCODE match, flash
// size, and EEPROM size differ between the two lines.
type stm32l1Family struct{}

func (stm32l1Family) Name() string { return "stm32l1" }

func (stm32l1Family) Match(pid, cid [2]uint32) bool { return false }

// MatchIDCodeL1 matches the STM32L1 Cat.3/4 line (idcode low 12 bits = 0x437).
func MatchIDCodeL1(idcode uint32) session.Probe {
	if idcode&0xfff == 0x437 {
		return stm32l1Family{}
	}
	return nil
}

func (stm32l1Family) Attach(mem *ap.MemAP) (target.Target, error) {
	const variant = "STM32L1xx"
	d := &stm32l0Driver{mem: mem}
	code := &Region{
		Start: 0x08000000, Length: 0x60000,
		BlockSize: 0x100, WriteAlignment: 4, ErasedByte: 0x00, WriteBufSize: 0x100,
		Driver: d,
	}
	eeprom := &Region{
		Start: 0x08080000, Length: 0x3000,
		BlockSize: 4, WriteAlignment: 4, ErasedByte: 0x00, WriteBufSize: 4,
		Driver: d,
	}
	c, err := target.NewCortexM(mem, variant)
	if err != nil {
		return nil, err
	}
	RegisterRegions(variant, []*Region{code, eeprom})
	RegisterRAM(variant, RAMRegion{Start: 0x20000000, Length: 0x8000})
	return c, nil
}

func init() {
	session.Register(stm32l1Family{})
	session.RegisterIDCodeReader(func(mem *ap.MemAP) (session.Probe, error) {
		idcode, err := readDBGMCUIDCode(mem)
		if err != nil {
			return nil, err
		}
		return MatchIDCodeL1(idcode), nil
	})
}
