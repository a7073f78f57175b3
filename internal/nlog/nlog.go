// Package nlog is a small leveled logger in the shape of the teacher's
// cmn/nlog (itself grown out of the older 3rdparty/glog used by lru.go).
// It exists so the rest of the module never imports log or glog directly.
package nlog

import (
	"fmt"
	"log"
	"os"
	"sync"
)

type Level int32

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
	LevelVerbose
)

var (
	mu       sync.Mutex
	logger   = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	curLevel = LevelInfo
)

// SetLevel adjusts the global verbosity. Safe for concurrent use.
func SetLevel(l Level) {
	mu.Lock()
	curLevel = l
	mu.Unlock()
}

func enabled(l Level) bool {
	mu.Lock()
	defer mu.Unlock()
	return l <= curLevel
}

func output(prefix string, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	logger.Output(3, prefix+fmt.Sprintf(format, args...))
}

func outputln(prefix string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	logger.Output(3, prefix+fmt.Sprintln(args...))
}

func Errorf(format string, args ...interface{}) {
	if enabled(LevelError) {
		output("E ", format, args...)
	}
}

func Errorln(args ...interface{}) {
	if enabled(LevelError) {
		outputln("E ", args...)
	}
}

func Warningf(format string, args ...interface{}) {
	if enabled(LevelWarning) {
		output("W ", format, args...)
	}
}

func Infof(format string, args ...interface{}) {
	if enabled(LevelInfo) {
		output("I ", format, args...)
	}
}

func Infoln(args ...interface{}) {
	if enabled(LevelInfo) {
		outputln("I ", args...)
	}
}

// FastV reports whether verbosity v is active for module smodule, mirroring
// cmn.Config.FastV call sites (e.g. r.BckJog.Config.FastV(5, cos.SmoduleMirror))
// in the teacher repo. This module has only one logging domain, so smodule is
// accepted for call-site parity but otherwise ignored.
func FastV(v int, smodule string) bool {
	return enabled(LevelVerbose) && v <= 5
}

func Verbosef(smodule, format string, args ...interface{}) {
	if FastV(5, smodule) {
		output("V ", format, args...)
	}
}

const SmoduleScan = "scan"
