// Copyright 2024 The coredebug Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ap

import (
	"github.com/armprobe/coredebug/dp"
)

// tarBoundary is the address granularity the AP's auto-increment TAR logic
// is guaranteed to wrap within; a burst must never be allowed to carry the
// increment across it (spec.md §4.3, §8 testable property).
const tarBoundary = 1024

// MemAP is a MEM-AP: an AccessPort that reads and writes target memory
// through the CSW/TAR/DRW register triple.
type MemAP struct {
	port dp.Port
	sel  uint8
	idr  uint32

	lastCSW uint32
	lastTAR uint32
	haveCSW bool
	haveTAR bool
}

// NewMemAP wraps port's AP at select index sel, whose IDR was already read
// by Scan.
func NewMemAP(port dp.Port, sel uint8, idr uint32) *MemAP {
	return &MemAP{port: port, sel: sel, idr: idr}
}

func (m *MemAP) Select() uint8 { return m.sel }
func (m *MemAP) IDR() uint32   { return m.idr }
func (m *MemAP) Class() Class  { return classOf(m.idr) }

// Reset drops the CSW/TAR shadow, forcing the next access to rewrite both
// rather than trust stale state (used after a target reset).
func (m *MemAP) Reset() {
	m.haveCSW = false
	m.haveTAR = false
}

func (m *MemAP) selectBank(bank uint8) error {
	return m.port.WriteDP(dp.RegSELECT, uint32(m.sel)<<24|uint32(bank)<<4)
}

func (m *MemAP) writeCSW(v uint32) error {
	if m.haveCSW && m.lastCSW == v {
		return nil
	}
	if err := m.selectBank(0); err != nil {
		return err
	}
	if err := m.port.WriteAP(RegCSW, v); err != nil {
		return err
	}
	m.lastCSW, m.haveCSW = v, true
	return nil
}

func (m *MemAP) writeTAR(addr uint32) error {
	if m.haveTAR && m.lastTAR == addr {
		return nil
	}
	return m.writeTARForce(addr)
}

// writeTARForce unconditionally reprograms TAR, bypassing the shadow
// cache. Used at every 1 KiB auto-increment boundary split (spec.md §4.3,
// §8): the AP's increment logic is not architecturally guaranteed past the
// boundary, so TAR must be actively reprogrammed there even though the
// cached shadow value already matches the expected address.
func (m *MemAP) writeTARForce(addr uint32) error {
	if err := m.selectBank(0); err != nil {
		return err
	}
	if err := m.port.WriteAP(RegTAR, addr); err != nil {
		return err
	}
	m.lastTAR, m.haveTAR = addr, true
	return nil
}

// ReadWord reads one 32-bit word at addr.
func (m *MemAP) ReadWord(addr uint32) (uint32, error) {
	if err := m.writeCSW(cswSize32 | cswAddrInc1); err != nil {
		return 0, err
	}
	if err := m.writeTAR(addr); err != nil {
		return 0, err
	}
	if err := m.selectBank(0); err != nil {
		return 0, err
	}
	v, err := m.port.ReadAP(RegDRW)
	// The DRW access auto-increments TAR on the target, so the shadow no
	// longer matches the AP's TAR.
	m.haveTAR = false
	if err != nil {
		return 0, err
	}
	return v, nil
}

// WriteWord writes one 32-bit word at addr.
func (m *MemAP) WriteWord(addr uint32, v uint32) error {
	if err := m.writeCSW(cswSize32 | cswAddrInc1); err != nil {
		return err
	}
	if err := m.writeTAR(addr); err != nil {
		return err
	}
	if err := m.selectBank(0); err != nil {
		return err
	}
	err := m.port.WriteAP(RegDRW, v)
	// As in ReadWord, the access moved the AP's TAR past addr.
	m.haveTAR = false
	return err
}

// ReadBlock32 reads len(data) words starting at addr using TAR
// auto-increment, splitting the burst at every 1 KiB boundary the AP's
// increment logic wraps within.
func (m *MemAP) ReadBlock32(addr uint32, data []uint32) error {
	if err := m.writeCSW(cswSize32 | cswAddrInc1); err != nil {
		return err
	}
	i := 0
	for i < len(data) {
		n := wordsToBoundary(addr, len(data)-i)
		var err error
		if i == 0 {
			err = m.writeTAR(addr)
		} else {
			err = m.writeTARForce(addr)
		}
		if err != nil {
			return err
		}
		if err := m.selectBank(0); err != nil {
			return err
		}
		for j := 0; j < n; j++ {
			v, err := m.port.ReadAP(RegDRW)
			if err != nil {
				m.haveTAR = false
				return err
			}
			data[i+j] = v
		}
		addr += uint32(n) * 4
		i += n
		m.lastTAR = addr // TAR auto-incremented on-target too
	}
	return nil
}

// WriteBlock32 is the write-side equivalent of ReadBlock32.
func (m *MemAP) WriteBlock32(addr uint32, data []uint32) error {
	if err := m.writeCSW(cswSize32 | cswAddrInc1); err != nil {
		return err
	}
	i := 0
	for i < len(data) {
		n := wordsToBoundary(addr, len(data)-i)
		var err error
		if i == 0 {
			err = m.writeTAR(addr)
		} else {
			err = m.writeTARForce(addr)
		}
		if err != nil {
			return err
		}
		if err := m.selectBank(0); err != nil {
			return err
		}
		for j := 0; j < n; j++ {
			if err := m.port.WriteAP(RegDRW, data[i+j]); err != nil {
				m.haveTAR = false
				return err
			}
		}
		addr += uint32(n) * 4
		i += n
		m.lastTAR = addr
	}
	return nil
}

// wordsToBoundary returns how many 32-bit words can be transferred from
// addr before crossing the next tarBoundary, capped at remaining.
func wordsToBoundary(addr uint32, remaining int) int {
	toBoundary := int((tarBoundary - addr%tarBoundary) / 4)
	if toBoundary <= 0 {
		toBoundary = tarBoundary / 4
	}
	if toBoundary < remaining {
		return toBoundary
	}
	return remaining
}

var _ AccessPort = (*MemAP)(nil)
