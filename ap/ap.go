// Copyright 2024 The coredebug Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ap implements the ADIv5 Access Port layer: generic AP
// enumeration and the MEM-AP memory-access register protocol.
package ap

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/armprobe/coredebug/dp"
)

var log = logrus.WithField("pkg", "ap")

// MEM-AP register offsets (bank 0).
const (
	RegCSW = 0x00
	RegTAR = 0x04
	RegDRW = 0x0c
	RegIDR = 0xfc
)

// CSW bits this package sets directly; the rest are left at the AP's
// power-on default.
const (
	cswSize32    uint32 = 0x2
	cswAddrInc1  uint32 = 0x10
	cswDbgStatus uint32 = 0x40
	cswMstrDebug uint32 = 0x20000000
)

// Class categorizes an Access Port by its IDR class field.
type Class uint8

const (
	ClassUnknown Class = iota
	ClassCOM
	ClassMEM
	ClassJTAGCOM
)

func classOf(idr uint32) Class {
	switch (idr >> 13) & 0xf {
	case 0x0:
		return ClassCOM
	case 0x8:
		return ClassMEM
	case 0x1:
		return ClassJTAGCOM
	default:
		return ClassUnknown
	}
}

// AccessPort is the generic AP capability every AP exposes, regardless of
// its class.
type AccessPort interface {
	Select() uint8
	IDR() uint32
	Class() Class
}

// Scan probes AP select indices starting at 0 on dp, stopping at the
// first zero IDR (spec.md §4.3), and returns every AP found before then,
// classified by IDR class.
func Scan(port dp.Port) ([]AccessPort, error) {
	var found []AccessPort
	for idx := 0; idx < 256; idx++ {
		if err := port.WriteDP(dp.RegSELECT, uint32(idx)<<24); err != nil {
			return nil, err
		}
		idr, err := port.ReadAP(RegIDR)
		if err != nil {
			return nil, err
		}
		if idr == 0 {
			break
		}
		found = append(found, &genericAP{sel: uint8(idx), idr: idr, class: classOf(idr)})
		log.WithField("ap", idx).WithField("idr", fmt.Sprintf("%#08x", idr)).Debug("found access port")
	}
	return found, nil
}

type genericAP struct {
	sel   uint8
	idr   uint32
	class Class
}

func (g *genericAP) Select() uint8 { return g.sel }
func (g *genericAP) IDR() uint32   { return g.idr }
func (g *genericAP) Class() Class  { return g.class }
