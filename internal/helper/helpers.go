package helper

import (
	"fmt"
)

// As asserts an erased interpreter value back to its static type. The
// lowering guarantees the dynamic type by construction, so a mismatch
// is a defect, not user error.
func As[T any](raw any) T {
	val, ok := raw.(T)
	if !ok {
		panic(fmt.Errorf("unexpected type: %T", raw))
	}
	return val
}
