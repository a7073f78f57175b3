// Package cos ("common small stuff", named after the teacher's cmn/cos)
// holds the error sum-type and miscellaneous helpers shared across the
// module.
package cos

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors per spec.md's error-return discipline. Call sites wrap
// these with github.com/pkg/errors when call-site context is useful;
// callers test membership with errors.Is.
var (
	ErrBusy     = errors.New("scan: busy")
	ErrNotFound = errors.New("scan: not found")
	ErrRestart  = errors.New("scan: restart required")
	ErrIOError  = errors.New("scan: io error")
	ErrPaused   = errors.New("scan: paused")
	ErrCanceled = errors.New("scan: canceled")
)

// Restartf wraps ErrRestart with call-site context, matching the
// teacher's cmn.NewErrXactUsePrev-style constructors around a sentinel
// condition.
func Restartf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrRestart, format, args...)
}

func IOErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrIOError, format, args...)
}

func Busyf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrBusy, format, args...)
}

func NotFoundf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrNotFound, format, args...)
}

// IsRestart reports whether err (or any error it wraps) is ErrRestart.
func IsRestart(err error) bool { return errors.Is(err, ErrRestart) }

func IsBusy(err error) bool     { return errors.Is(err, ErrBusy) }
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
func IsIOError(err error) bool  { return errors.Is(err, ErrIOError) }
func IsPaused(err error) bool   { return errors.Is(err, ErrPaused) }
func IsCanceled(err error) bool { return errors.Is(err, ErrCanceled) }

// B2S formats a byte count the way the teacher's cos.ToSizeIEC helpers do,
// used only in logging and history-log payloads, never in comparisons.
func B2S(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f%ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
