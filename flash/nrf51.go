// Copyright 2024 The coredebug Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flash

import (
	"github.com/armprobe/coredebug/ap"
	"github.com/armprobe/coredebug/session"
	"github.com/armprobe/coredebug/target"
)

// Nordic nRF51 NVMC registers (nRF51 Reference Manual §6.5), base
// 0x4001e000. nRF51 flash requires no key/unlock sequence, only a
// CONFIG register mode select before erase/write.
const (
	nrf51NVMCBase = 0x4001e000
	nrf51READY    = nrf51NVMCBase + 0x400
	nrf51CONFIG   = nrf51NVMCBase + 0x504
	nrf51ERASEPAGE = nrf51NVMCBase + 0x508
	nrf51ERASEALL  = nrf51NVMCBase + 0x50c
)

// nrf51FICRConfigID is the FICR CONFIGID register (nRF51 Reference Manual
// §7.1.2), FICR base 0x10000000 + offset 0x05c. Its low 16 bits (HWID)
// distinguish the nRF51 variant since ROM-table PID/CID don't.
const nrf51FICRConfigID = 0x1000005c

const (
	nrf51ConfigRen uint32 = 0x00
	nrf51ConfigWen uint32 = 0x01
	nrf51ConfigEen uint32 = 0x02
)

type nrf51Family struct{}

func (nrf51Family) Name() string { return "nrf51" }

func (nrf51Family) Match(pid, cid [2]uint32) bool { return false }

// MatchFICR identifies an nRF51 by its FICR CONFIGID register (read at
// nrf51FICRConfigID once a Cortex-M0 core is found; ROM-table PID/CID
// alone don't distinguish nRF51 variants).
func MatchFICR(configid uint32) session.Probe {
	if configid&0xffff == 0x0052 { // nRF51422-family HWID
		return nrf51Family{}
	}
	return nil
}

func (nrf51Family) Attach(mem *ap.MemAP) (target.Target, error) {
	const variant = "nRF51"
	region := &Region{
		Start: 0x00000000, Length: 0x40000,
		BlockSize: 0x400, WriteAlignment: 4, ErasedByte: 0xff, WriteBufSize: 0x400,
		Driver: &nrf51Driver{mem: mem},
	}
	c, err := target.NewCortexM(mem, variant)
	if err != nil {
		return nil, err
	}
	RegisterRegions(variant, []*Region{region})
	RegisterRAM(variant, RAMRegion{Start: 0x20000000, Length: 0x4000})
	return c, nil
}

type nrf51Driver struct{ mem *ap.MemAP }

var _ MassEraser = (*nrf51Driver)(nil)

func (d *nrf51Driver) waitReady() error {
	for i := 0; i < 1000; i++ {
		r, err := d.mem.ReadWord(nrf51READY)
		if err != nil {
			return err
		}
		if r&1 != 0 {
			return nil
		}
	}
	return ErrBusy
}

func (d *nrf51Driver) Erase(addr, n uint32) error {
	if err := d.mem.WriteWord(nrf51CONFIG, nrf51ConfigEen); err != nil {
		return err
	}
	defer d.mem.WriteWord(nrf51CONFIG, nrf51ConfigRen)
	const pageSize = 0x400
	for off := uint32(0); off < n; off += pageSize {
		if err := d.mem.WriteWord(nrf51ERASEPAGE, addr+off); err != nil {
			return err
		}
		if err := d.waitReady(); err != nil {
			return err
		}
	}
	return nil
}

func (d *nrf51Driver) WriteBuffered(dest uint32, src []byte) error {
	if err := d.mem.WriteWord(nrf51CONFIG, nrf51ConfigWen); err != nil {
		return err
	}
	defer d.mem.WriteWord(nrf51CONFIG, nrf51ConfigRen)
	for i := 0; i+3 < len(src); i += 4 {
		word := uint32(src[i]) | uint32(src[i+1])<<8 | uint32(src[i+2])<<16 | uint32(src[i+3])<<24
		if err := d.mem.WriteWord(dest+uint32(i), word); err != nil {
			return err
		}
		if err := d.waitReady(); err != nil {
			return err
		}
	}
	return nil
}

func (d *nrf51Driver) Done() error {
	return d.mem.WriteWord(nrf51CONFIG, nrf51ConfigRen)
}

func (d *nrf51Driver) Probe() bool {
	r, err := d.mem.ReadWord(nrf51READY)
	return err == nil && r&1 != 0
}

func (d *nrf51Driver) EraseMass() error {
	if err := d.mem.WriteWord(nrf51CONFIG, nrf51ConfigEen); err != nil {
		return err
	}
	defer d.mem.WriteWord(nrf51CONFIG, nrf51ConfigRen)
	if err := d.mem.WriteWord(nrf51ERASEALL, 1); err != nil {
		return err
	}
	return d.waitReady()
}

func init() {
	session.Register(nrf51Family{})
	session.RegisterIDCodeReader(func(mem *ap.MemAP) (session.Probe, error) {
		configid, err := mem.ReadWord(nrf51FICRConfigID)
		if err != nil {
			return nil, err
		}
		return MatchFICR(configid), nil
	})
}
