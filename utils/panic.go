package utils

import (
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
)

func PanicRecovery(log *zap.Logger) {
	if r := recover(); r != nil {
		log.With(zap.String("stack", string(debug.Stack()))).Error("recovered panic")
	}
}

// PanicToError is PanicRecovery for functions with a named error result; the
// panic is logged and returned as err.
//
//	func run() (err error) {
//		defer utils.PanicToError(log, &err)
func PanicToError(log *zap.Logger, err *error) {
	if r := recover(); r != nil {
		log.With(zap.String("stack", string(debug.Stack()))).Error("recovered panic")
		*err = fmt.Errorf("panic: %v", r)
	}
}
