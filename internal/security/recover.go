package security

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Recover runs fn, which mutates state guarded by a lock the caller already
// holds. A panic inside fn does not escape: reset rebuilds the guarded state
// (still under the caller's lock), a warning is logged and the panic comes
// back as an error. The next locker sees consistent state instead of a
// half-applied mutation.
func Recover(logger *slog.Logger, section string, fn func(), reset func()) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if reset != nil {
			reset()
		}
		if logger != nil {
			logger.Warn("recovered panic in guarded section",
				"section", section,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
		err = fmt.Errorf("%s: recovered panic: %v", section, r)
	}()
	fn()
	return nil
}
