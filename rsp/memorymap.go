// Copyright 2024 The coredebug Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package rsp

import (
	"fmt"
	"strings"

	"github.com/armprobe/coredebug/flash"
	"github.com/armprobe/coredebug/target"
)

// MemoryMapXML renders the qXfer:memory-map:read:: payload for t's
// registered flash regions and RAM ranges (spec.md §8 scenario 1: an
// STM32F103 advertises flash at 0x08000000 length 0x20000 block size
// 0x400, and RAM at 0x20000000 length 0x5000).
func MemoryMapXML(t target.Target) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?>` + "\n")
	b.WriteString(`<!DOCTYPE memory-map PUBLIC "+//IDN gnu.org//DTD GDB Memory Map V1.0//EN" "http://sourceware.org/gdb/gdb-memory-map.dtd">` + "\n")
	b.WriteString("<memory-map>\n")

	for _, r := range flash.RegionsFor(t.Variant()) {
		fmt.Fprintf(&b, "  <memory type=\"flash\" start=\"%#x\" length=\"%#x\">\n", r.Start, r.Length)
		fmt.Fprintf(&b, "    <property name=\"blocksize\">%#x</property>\n", r.BlockSize)
		b.WriteString("  </memory>\n")
	}
	for _, ram := range flash.RAMFor(t.Variant()) {
		fmt.Fprintf(&b, "  <memory type=\"ram\" start=\"%#x\" length=\"%#x\"/>\n", ram.Start, ram.Length)
	}

	b.WriteString("</memory-map>\n")
	return b.String()
}
