// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package swdhost

import (
	// Make sure the GPIO line driver is registered.
	_ "github.com/swd-tools/swdhost/gpioioctl"
)
