// Copyright 2024 The coredebug Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flash

import (
	"testing"

	"github.com/armprobe/coredebug/ap"
)

// stm32FakePort is a dp.Port fake over a plain memory map, enough to drive
// a real ap.MemAP + target.NewCortexM attach sequence and an STM32F1 FLASH
// register sequence without real hardware (mirrors target/cortexm_test.go
// and ap/memap_test.go's fakePort shape).
type stm32FakePort struct {
	mem map[uint32]uint32
	tar uint32
}

func newSTM32FakePort() *stm32FakePort {
	p := &stm32FakePort{mem: map[uint32]uint32{}}
	p.mem[0xe0002000] = 6 << 4  // FP_CTRL: 6 code comparators, FPBv1
	p.mem[0xe0001000] = 4 << 28 // DWT_CTRL: 4 comparators
	p.mem[dbgmcuIDCodeAddr] = 0x20036410
	return p
}

func (p *stm32FakePort) ReadDP(addr uint8) (uint32, error)  { return 0, nil }
func (p *stm32FakePort) WriteDP(addr uint8, v uint32) error { return nil }
func (p *stm32FakePort) ReadAP(addr uint8) (uint32, error) {
	if addr == 0x04 {
		return p.tar, nil
	}
	return p.mem[p.tar], nil
}
func (p *stm32FakePort) WriteAP(addr uint8, v uint32) error {
	switch addr {
	case 0x04:
		p.tar = v
	case 0x0c:
		p.mem[p.tar] = v
		const regAIRCR, regDHCSR = 0xe000ed0c, 0xe000edf0
		const aircrSysResetReq, dhcsrSHalt = 1 << 2, 1 << 17
		if p.tar == regAIRCR && v&aircrSysResetReq != 0 {
			p.mem[regDHCSR] |= dhcsrSHalt
		}
	}
	return nil
}
func (p *stm32FakePort) ErrorClear() error { return nil }
func (p *stm32FakePort) Fault() bool       { return false }

// TestSTM32F1AttachRegistersRegionsAndOption exercises spec.md §8 scenario
// 1: attaching an STM32F1 registers its flash/RAM regions (for the
// memory-map XML) and its read_protection option.
func TestSTM32F1AttachRegistersRegionsAndOption(t *testing.T) {
	p := newSTM32FakePort()
	p.mem[f1OptionByteBase] = f1RdpKey
	mem := ap.NewMemAP(p, 0, 0x24770011)
	probe := MatchIDCode(p.mem[dbgmcuIDCodeAddr])
	if probe == nil {
		t.Fatal("expected MatchIDCode to recognize the STM32F1 idcode")
	}
	tgt, err := probe.Attach(mem)
	if err != nil {
		t.Fatal(err)
	}
	if tgt.Variant() != "STM32F1xx" {
		t.Fatalf("got variant %q", tgt.Variant())
	}
	regions := RegionsFor("STM32F1xx")
	if len(regions) != 1 || regions[0].Start != 0x08000000 || regions[0].Length != 0x20000 {
		t.Fatalf("unexpected regions: %+v", regions)
	}
	ram := RAMFor("STM32F1xx")
	if len(ram) != 1 || ram[0].Start != 0x20000000 {
		t.Fatalf("unexpected ram: %+v", ram)
	}
	opt, ok := OptionsFor("STM32F1xx")["read_protection"]
	if !ok {
		t.Fatal("expected read_protection option registered")
	}
	out, err := opt(nil)
	if err != nil {
		t.Fatal(err)
	}
	if out != "read protection: disabled (RDP=0xa5)\n" {
		t.Fatalf("got %q", out)
	}
}

// TestSTM32F1EraseMass exercises spec.md §8 scenario 2: `monitor
// erase_mass` unlocks FLASH, sets MER then MER|STRT, and verifies EOP.
func TestSTM32F1EraseMass(t *testing.T) {
	p := newSTM32FakePort()
	mem := ap.NewMemAP(p, 0, 0x24770011)
	d := &stm32f1Driver{mem: mem}
	p.mem[f1SR] = f1SrEOP
	if err := d.EraseMass(); err != nil {
		t.Fatal(err)
	}
	if p.mem[f1CR]&f1CrMER == 0 {
		t.Fatal("expected MER to be set")
	}
}

// TestSTM32F1WriteBufferedHalfwordAlignment exercises spec.md §8 scenario
// 4: programming writes 16-bit halfwords merged into the 32-bit flash
// array without disturbing the other half of the word.
func TestSTM32F1WriteBufferedHalfwordAlignment(t *testing.T) {
	p := newSTM32FakePort()
	mem := ap.NewMemAP(p, 0, 0x24770011)
	d := &stm32f1Driver{mem: mem}
	p.mem[0x08000000&^uint32(3)] = 0xffffffff
	p.mem[f1SR] = 0 // BSY clear immediately
	if err := d.WriteBuffered(0x08000000, []byte{0xef, 0xbe}); err != nil {
		t.Fatal(err)
	}
	word := p.mem[0x08000000]
	if word&0xffff != 0xbeef {
		t.Fatalf("expected low halfword 0xbeef, got %#08x", word)
	}
	if word&0xffff0000 != 0xffff0000 {
		t.Fatalf("expected high halfword untouched, got %#08x", word)
	}
}
