//go:build !windows

package main

import (
	"os"
	"syscall"
)

// terminationSignals stop the server once in-flight exchanges have committed.
// SIGTERM is what systemd and kubernetes send.
var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
