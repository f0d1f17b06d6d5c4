// Copyright 2024 The coredebug Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ap

import "fmt"

// Component describes one entry found while walking a CoreSight ROM table:
// its base address and the PID/CID quintuples identifying it.
type Component struct {
	Base uint32
	PID  [2]uint32 // [0] packs PIDR0..PIDR3, [1] packs PIDR4..PIDR7, see readIDs
	CID  [2]uint32
}

// entryCount is the number of 32-bit ROM table entries scanned before
// giving up on a malformed table; real ROM tables are far smaller.
const entryCount = 960

// WalkROMTable recurses into base and every nested ROM table it points to,
// returning every leaf Component found (spec.md §4.3).
func WalkROMTable(mem *MemAP, base uint32) ([]Component, error) {
	var out []Component
	if err := walk(mem, base, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func walk(mem *MemAP, base uint32, out *[]Component) error {
	cid, pid, err := readIDs(mem, base)
	if err != nil {
		return err
	}
	if !isROMTable(cid) {
		*out = append(*out, Component{Base: base, PID: pid, CID: cid})
		return nil
	}
	for i := 0; i < entryCount; i++ {
		entry, err := mem.ReadWord(base + uint32(i)*4)
		if err != nil {
			return err
		}
		if entry == 0 {
			break // ROM tables are terminated by a zero entry
		}
		if entry&1 == 0 {
			continue // present bit clear: not populated
		}
		offset := signExtend12(entry &^ 0xfff)
		child := uint32(int64(base) + int64(offset))
		if err := walk(mem, child, out); err != nil {
			return err
		}
	}
	return nil
}

// readIDs reads the CoreSight 12-register ID block (PIDR4-7, PIDR0-3,
// CIDR0-3) ending at base+0xffc, returning packed 2-word PID/CID values.
func readIDs(mem *MemAP, base uint32) (cid, pid [2]uint32, err error) {
	var raw [8]uint32
	// PIDR4..7 at 0xfd0, PIDR0..3 at 0xfe0, CIDR0..3 at 0xff0.
	offsets := []uint32{0xfd0, 0xfd4, 0xfd8, 0xfdc, 0xfe0, 0xfe4, 0xfe8, 0xfec}
	for i, off := range offsets {
		v, e := mem.ReadWord(base + off)
		if e != nil {
			return cid, pid, fmt.Errorf("ap: read ID register at %#x: %w", base+off, e)
		}
		raw[i] = v & 0xff
	}
	pid[0] = raw[4] | raw[5]<<8 | raw[6]<<16 | raw[7]<<24
	pid[1] = raw[0] | raw[1]<<8 | raw[2]<<16 | raw[3]<<24
	cidOffsets := []uint32{0xff0, 0xff4, 0xff8, 0xffc}
	var craw [4]uint32
	for i, off := range cidOffsets {
		v, e := mem.ReadWord(base + off)
		if e != nil {
			return cid, pid, fmt.Errorf("ap: read CID register at %#x: %w", base+off, e)
		}
		craw[i] = v & 0xff
	}
	cid[0] = craw[0] | craw[1]<<8 | craw[2]<<16 | craw[3]<<24
	return cid, pid, nil
}

// isROMTable reports whether cid's component class nibble (bits [7:4] of
// CIDR1, packed into cid[0] bits [15:12]) identifies a ROM table (class 0x1).
func isROMTable(cid [2]uint32) bool {
	return (cid[0]>>12)&0xf == 0x1
}

// signExtend12 reinterprets a ROM table entry's offset field (entry bits
// [31:12], low 12 bits already masked off) as a signed relative address
// (spec.md §4.3).
func signExtend12(offset uint32) int32 {
	return int32(offset)
}
