//go:build !windows

package logging

import "os"

// EnableVT is a no-op outside Windows.
func EnableVT(*os.File) {}

// EnableVTInput is a no-op outside Windows.
func EnableVTInput(*os.File) {}
