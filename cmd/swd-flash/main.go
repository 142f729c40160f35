// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// swd-flash programs a file's contents to a target's SRAM or flash over a
// bit-banged SWD session, in the idiom of
// periph.io/x/periph/cmd/gpio-write: flags, hostInit, then one operation.
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
	offset := flag.Uint("offset", 0, "byte offset within the region to program")
	sram := flag.Bool("sram", false, "write to SRAM instead of flash")
	erase := flag.Bool("erase", false, "mass-erase flash before programming")
	verbose := flag.Bool("v", false, "verbose mode")
	flag.Parse()

	if !*verbose {
		log.SetOutput(ioutil.Discard)
	}
	log.SetFlags(log.Lmicroseconds)

	if *clk == "" || *dio == "" {
		return errors.New("specify -clk and -dio GPIO pin names")
	}
	if flag.NArg() != 1 {
		return errors.New("specify the path of the file to program")
	}

	if _, err := swdhost.Init(); err != nil {
		return err
	}

	data, err := ioutil.ReadFile(flag.Args()[0])
	if err != nil {
		return err
	}

	s, err := swdhost.Open(swdhost.Binding{SWCLK: *clk, SWDIO: *dio, Core: *core})
	if err != nil {
		return err
	}
	defer s.Release()

	da := &swdhost.DownloadArg{Data: data, Offset: uint32(*offset)}
	if *sram {
		return s.Ioctl(swdhost.DWNLDSRAM, da)
	}
	if *erase {
		if err := s.Ioctl(swdhost.ERSFLSH, nil); err != nil {
			return err
		}
	}
	return s.Ioctl(swdhost.DWNLDFLSH, da)
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "swd-flash: %s.\n", err)
		os.Exit(1)
	}
}
