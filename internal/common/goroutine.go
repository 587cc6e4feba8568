// -----------------------------------------------------------------------
// Safe Goroutine - panic-protected goroutine launch for the worker loop
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ternarybob/arbor"
)

// SafeGo runs fn in a new goroutine with panic recovery: a panic is logged,
// written to a non-fatal crash file under CrashLogDir, and swallowed rather
// than taking down the worker loop.
func SafeGo(logger arbor.ILogger, name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				stackTrace := string(buf[:n])

				if logger != nil {
					logger.Error().
						Str("goroutine", name).
						Str("panic", fmt.Sprintf("%v", r)).
						Str("stack", stackTrace).
						Msg("Recovered from panic in background goroutine")
				} else {
					fmt.Fprintf(os.Stderr, "panic in goroutine %s: %v\n%s\n", name, r, stackTrace)
				}

				writeGoroutinePanicFile(name, r, stackTrace)
			}
		}()

		fn()
	}()
}

// writeGoroutinePanicFile records a recovered, non-fatal panic alongside the
// fatal crash reports WriteCrashFile produces, tagged by goroutine name so
// the two are easy to tell apart on disk.
func writeGoroutinePanicFile(name string, panicVal interface{}, stackTrace string) {
	now := time.Now()
	path := filepath.Join(CrashLogDir, fmt.Sprintf("goroutine-panic-%s-%s.log", name, now.Format("2006-01-02T15-04-05")))

	var report []byte
	report = append(report, fmt.Sprintf("=== LINKCHECKER GOROUTINE PANIC: %s ===\n", name)...)
	report = append(report, fmt.Sprintf("Time: %s\n\n", now.Format(time.RFC3339))...)
	report = append(report, fmt.Sprintf("Panic: %v\n\n", panicVal)...)
	report = append(report, "=== STACK TRACE ===\n"...)
	report = append(report, stackTrace...)

	if err := os.WriteFile(path, report, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write goroutine panic file %s: %v\n", path, err)
	}
}
