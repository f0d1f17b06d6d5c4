// Copyright 2024 The coredebug Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// probed attaches to an ARM Cortex-M target over a bit-banged SWD link,
// discovers its flash family, and serves the monitor-command surface a
// GDB RSP dispatcher (external, out of scope) would call into.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/gousb"
	"github.com/sirupsen/logrus"

	"github.com/armprobe/coredebug/conn/gpio/gpioreg"
	"github.com/armprobe/coredebug/dp"
	"github.com/armprobe/coredebug/flash"
	"github.com/armprobe/coredebug/rsp"
	"github.com/armprobe/coredebug/session"
	"github.com/armprobe/coredebug/wire/swd"
)

// knownAdapterIDs lists vendor/product pairs of debug adapters probed
// recognizes on USB before falling back to a direct GPIO bit-bang link,
// the same enumerate-by-VID/PID approach gostlink's usbFindDevices uses.
var knownAdapterIDs = []struct{ vid, pid gousb.ID }{
	{0x0483, 0x3748}, // ST-Link/V2
	{0x0483, 0x374b}, // ST-Link/V2-1
	{0x1366, 0x0101}, // J-Link
}

func listUSBAdapters() []string {
	ctx := gousb.NewContext()
	defer ctx.Close()

	var found []string
	devices, _ := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		for _, known := range knownAdapterIDs {
			if desc.Vendor == known.vid && desc.Product == known.pid {
				return true
			}
		}
		return false
	})
	for _, d := range devices {
		found = append(found, d.Desc.String())
		d.Close()
	}
	return found
}

func mainImpl() error {
	clkName := flag.String("clk", "GPIO11", "SWCLK pin name")
	dioName := flag.String("dio", "GPIO25", "SWDIO pin name")
	flag.Parse()

	if adapters := listUSBAdapters(); len(adapters) > 0 {
		fmt.Println("found USB debug adapters (transport not yet wired, direct GPIO link used instead):")
		for _, a := range adapters {
			fmt.Println("  " + a)
		}
	}

	clk := gpioreg.ByName(*clkName)
	dio := gpioreg.ByName(*dioName)
	if clk == nil || dio == nil {
		return fmt.Errorf("probed: pin %q or %q not registered; a platform bring-up package must call gpioreg.Register for this board before probed runs", *clkName, *dioName)
	}

	seq, err := swd.New(clk, dio)
	if err != nil {
		return fmt.Errorf("probed: swd bring-up: %w", err)
	}
	port, err := dp.NewSWDP(seq)
	if err != nil {
		return fmt.Errorf("probed: SW-DP connect: %w", err)
	}

	sess := session.New()
	targets, err := sess.Discover(port)
	if err != nil {
		return fmt.Errorf("probed: discover: %w", err)
	}

	core := rsp.NewCore()
	for _, t := range targets {
		t := t
		for _, r := range flash.RegionsFor(t.Variant()) {
			r := r
			if me, ok := r.Driver.(flash.MassEraser); ok {
				core.Register("erase_mass", func(args []string) (string, error) {
					if err := me.EraseMass(); err != nil {
						return "", err
					}
					return rsp.Diagnostic("mass erase of %s complete\n", t.Variant()), nil
				})
			}
		}
		if opts := flash.OptionsFor(t.Variant()); len(opts) > 0 {
			core.Register("option", func(args []string) (string, error) {
				if len(args) == 0 {
					return "", fmt.Errorf("probed: option: missing subcommand")
				}
				fn, ok := opts[args[0]]
				if !ok {
					return "", fmt.Errorf("probed: option: unknown subcommand %q", args[0])
				}
				return fn(args[1:])
			})
		}
		fmt.Println(rsp.Diagnostic("attached: %s (%s)", t.Variant(), t.State()))
		fmt.Print(rsp.MemoryMapXML(t))
	}

	fmt.Println("probed ready; `monitor <cmd> [args]`, `quit` to exit")
	return runMonitorREPL(core)
}

// runMonitorREPL is the stand-in host loop until the real USB CDC-ACM RSP
// transport (external, out of scope per spec.md §1) is wired in; it lets
// an operator exercise the same monitor-command dispatch the RSP layer
// would drive.
func runMonitorREPL(core *rsp.Core) error {
	halt := make(chan os.Signal, 1)
	signal.Notify(halt, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-halt:
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(line), "monitor "))
			if len(fields) == 0 {
				continue
			}
			if fields[0] == "quit" {
				return nil
			}
			out, err := core.HandleCommand(fields[0], fields[1:])
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				continue
			}
			fmt.Print(out)
		}
	}
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "probed: %s.\n", err)
		os.Exit(1)
	}
}
