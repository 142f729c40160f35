// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package swdhost drives an ARM Serial Wire Debug port over two bit-banged
// GPIO lines: protocol engine, MEM-AP transport, core controller and the
// STM32F103/STM32F411 flash programmers, fronted by a session surface that
// stands in for the character-device and sysfs collaborators of a real
// deployment.
package swdhost

import "periph.io/x/conn/v3/driver/driverreg"

// Init calls driverreg.Init() and returns it as-is.
//
// The only difference is that by calling swdhost.Init(), you are guaranteed
// to have the GPIO drivers this package depends on (gpioioctl) implicitly
// loaded, the same way periph.io/x/host/v3's Init guarantees its own
// drivers are loaded.
func Init() (*driverreg.State, error) {
	return driverreg.Init()
}
