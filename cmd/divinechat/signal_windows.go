//go:build windows

package main

import (
	"os"
)

// terminationSignals stop the server once in-flight exchanges have committed.
var terminationSignals = []os.Signal{os.Interrupt}
