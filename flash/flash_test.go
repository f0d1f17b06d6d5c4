// Copyright 2024 The coredebug Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flash

import (
	"bytes"
	"testing"
)

type recordingDriver struct {
	erased [][2]uint32
	writes []struct {
		dest uint32
		data []byte
	}
	done bool
}

func (d *recordingDriver) Erase(addr, n uint32) error {
	d.erased = append(d.erased, [2]uint32{addr, n})
	return nil
}

func (d *recordingDriver) WriteBuffered(dest uint32, src []byte) error {
	d.writes = append(d.writes, struct {
		dest uint32
		data []byte
	}{dest, append([]byte(nil), src...)})
	return nil
}

func (d *recordingDriver) Done() error { d.done = true; return nil }
func (d *recordingDriver) Probe() bool { return true }

// TestRegionWriteWidensToAlignment exercises spec.md §8 scenario 4: a
// write of 100 bytes at offset 0x08000003 on 4-byte alignment widens to
// offset 0x08000000, length 104.
func TestRegionWriteWidensToAlignment(t *testing.T) {
	d := &recordingDriver{}
	r := &Region{
		Start: 0x08000000, Length: 0x20000,
		BlockSize: 0x400, WriteAlignment: 4, ErasedByte: 0xff, WriteBufSize: 0x1000,
		Driver: d,
	}
	src := bytes.Repeat([]byte{0xaa}, 100)
	if err := r.Write(0x08000003, src); err != nil {
		t.Fatal(err)
	}
	if len(d.writes) != 1 {
		t.Fatalf("expected 1 write call, got %d", len(d.writes))
	}
	w := d.writes[0]
	if w.dest != 0x08000000 {
		t.Fatalf("expected widened dest 0x08000000, got %#08x", w.dest)
	}
	if len(w.data) != 104 {
		t.Fatalf("expected widened length 104, got %d", len(w.data))
	}
	if w.data[0] != 0xff || w.data[1] != 0xff || w.data[2] != 0xff {
		t.Fatalf("expected leading pad bytes to be ErasedByte, got %v", w.data[:3])
	}
	if w.data[3] != 0xaa {
		t.Fatalf("expected payload to start at widened offset 3, got %#02x", w.data[3])
	}
	if !d.done {
		t.Fatal("expected Done to be called")
	}
}

func TestRegionEraseWidensToBlockSize(t *testing.T) {
	d := &recordingDriver{}
	r := &Region{
		Start: 0x08000000, Length: 0x20000,
		BlockSize: 0x400, WriteAlignment: 4, ErasedByte: 0xff, WriteBufSize: 0x1000,
		Driver: d,
	}
	if err := r.Erase(0x08000100, 0x10); err != nil {
		t.Fatal(err)
	}
	if len(d.erased) != 1 {
		t.Fatalf("expected 1 erase call, got %d", len(d.erased))
	}
	if d.erased[0][0] != 0x08000000 || d.erased[0][1] != 0x400 {
		t.Fatalf("expected widened erase [0x08000000,0x400), got %#08x,%#x", d.erased[0][0], d.erased[0][1])
	}
}

func TestRegionOutOfRange(t *testing.T) {
	d := &recordingDriver{}
	r := &Region{Start: 0x08000000, Length: 0x1000, BlockSize: 0x100, WriteAlignment: 4, Driver: d}
	if err := r.Write(0x08001000, []byte{1, 2}); err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestRegionWriteChunksAtWriteBufSize(t *testing.T) {
	d := &recordingDriver{}
	r := &Region{
		Start: 0, Length: 0x1000,
		BlockSize: 0x100, WriteAlignment: 1, ErasedByte: 0xff, WriteBufSize: 16,
		Driver: d,
	}
	if err := r.Write(0, bytes.Repeat([]byte{1}, 40)); err != nil {
		t.Fatal(err)
	}
	if len(d.writes) != 3 {
		t.Fatalf("expected 3 chunked writes (16+16+8), got %d", len(d.writes))
	}
}

func TestRegisterOptionAndOptionsFor(t *testing.T) {
	const variant = "test-option-variant"
	RegisterOption(variant, "read_protection", func(args []string) (string, error) {
		return "read protection: disabled\n", nil
	})
	opts := OptionsFor(variant)
	fn, ok := opts["read_protection"]
	if !ok {
		t.Fatal("expected read_protection option to be registered")
	}
	out, err := fn(nil)
	if err != nil {
		t.Fatal(err)
	}
	if out != "read protection: disabled\n" {
		t.Fatalf("got %q", out)
	}
	if OptionsFor("no-such-variant") != nil {
		t.Fatal("expected nil for unregistered variant")
	}
}
