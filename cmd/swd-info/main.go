// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// swd-info probes a target over a bit-banged SWD session and prints its
// liveness IDCODE plus its memory descriptor, in the idiom of
// periph.io/x/periph/cmd/gpio-list.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"

	"github.com/swd-tools/swdhost"
)

func mainImpl() error {
	clk := flag.String("clk", "", "SWCLK GPIO pin name")
	dio := flag.String("dio", "", "SWDIO GPIO pin name")
	core := flag.String("core", "stm32f10xx", "target core (stm32f10xx, stm32f411xx)")
	verbose := flag.Bool("v", false, "verbose mode")
	flag.Parse()

	if !*verbose {
		log.SetOutput(ioutil.Discard)
	}
	log.SetFlags(log.Lmicroseconds)

	if *clk == "" || *dio == "" {
		return errors.New("specify -clk and -dio GPIO pin names")
	}

	if _, err := swdhost.Init(); err != nil {
		return err
	}

	s, err := swdhost.Open(swdhost.Binding{SWCLK: *clk, SWDIO: *dio, Core: *core})
	if err != nil {
		return err
	}
	defer s.Release()

	var id uint32
	if err := s.Ioctl(swdhost.TSTALIVE, &id); err != nil {
		return err
	}
	fmt.Printf("idcode: %#08x\n", id)

	a := swdhost.NewAttrs(s)
	fmt.Printf("core_name: %s\n", a.CoreName())
	fmt.Printf("status: %s\n", a.Status())
	fmt.Print(a.CoreMem())
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "swd-info: %s.\n", err)
		os.Exit(1)
	}
}
