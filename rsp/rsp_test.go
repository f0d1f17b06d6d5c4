// Copyright 2024 The coredebug Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package rsp

import "testing"

func TestHandleCommandDispatch(t *testing.T) {
	c := NewCore()
	c.Register("erase_mass", func(args []string) (string, error) {
		return "Erased.\n", nil
	})
	out, err := c.HandleCommand("erase_mass", nil)
	if err != nil {
		t.Fatal(err)
	}
	if out != "Erased.\n" {
		t.Fatalf("got %q", out)
	}
}

func TestHandleCommandUnknown(t *testing.T) {
	c := NewCore()
	if _, err := c.HandleCommand("nope", nil); err == nil {
		t.Fatal("expected error for unregistered command")
	}
}

func TestNamesSorted(t *testing.T) {
	c := NewCore()
	c.Register("zeta", func(args []string) (string, error) { return "", nil })
	c.Register("alpha", func(args []string) (string, error) { return "", nil })
	names := c.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Fatalf("got %v", names)
	}
}

func TestDiagnosticFormats(t *testing.T) {
	if got := Diagnostic("halted at %#x", uint32(0x08000100)); got != "halted at 0x8000100" {
		t.Fatalf("got %q", got)
	}
}
