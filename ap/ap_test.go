// Copyright 2024 The coredebug Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ap

import "testing"

// zeroAtPort is a dp.Port fake returning a non-zero MEM-AP IDR for select
// indices below a threshold and zero at/after it, letting the test assert
// Scan stops there instead of walking all 256 indices.
type zeroAtPort struct {
	zeroAt uint8
	sel    uint8
}

func (p *zeroAtPort) ReadDP(addr uint8) (uint32, error) { return 0, nil }
func (p *zeroAtPort) WriteDP(addr uint8, v uint32) error {
	if addr == 0x8 {
		p.sel = uint8(v >> 24)
	}
	return nil
}
func (p *zeroAtPort) ReadAP(addr uint8) (uint32, error) {
	if addr != RegIDR {
		return 0, nil
	}
	if p.sel >= p.zeroAt {
		return 0, nil
	}
	return 0x24770011, nil
}
func (p *zeroAtPort) WriteAP(addr uint8, v uint32) error { return nil }
func (p *zeroAtPort) ErrorClear() error                  { return nil }
func (p *zeroAtPort) Fault() bool                        { return false }

func TestScanStopsAtFirstZeroIDR(t *testing.T) {
	p := &zeroAtPort{zeroAt: 3}
	aps, err := Scan(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(aps) != 3 {
		t.Fatalf("expected scan to stop at the first zero IDR (3 APs found), got %d", len(aps))
	}
	for i, a := range aps {
		if a.Select() != uint8(i) {
			t.Fatalf("ap %d: expected select index %d, got %d", i, i, a.Select())
		}
	}
}
