//go:build !debug

package debug

const Enabled = false

func assert(cond bool, msg ...interface{})             {}
func assertf(cond bool, format string, args ...interface{}) {}
