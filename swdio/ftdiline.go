// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build ftdi

package swdio

// Importing this file (build tag "ftdi") pulls in periph.io/x/host/v3/ftdi
// for its driverreg side effect: it registers every connected FTDI MPSSE
// adapter's D-bus pins into periph.io/x/conn/v3/gpio/gpioreg, under names
// like "ft232h.D0". NewGPIODriver doesn't care which backend resolved a
// pin name, so an FTDI adapter's two spare D-bus lines work as a Line
// Driver the same way a native Linux gpiochip line does — this file is the
// entire alternate backend; no SWD-specific FTDI code is needed on top of
// it, the same way gpioioctl needed none either once it registered with
// gpioreg.
import (
	_ "periph.io/x/host/v3/ftdi"
)
