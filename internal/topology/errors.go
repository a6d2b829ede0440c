package topology

import (
	"errors"
	"fmt"
)

// ErrStructural matches every StructuralError via errors.Is
var ErrStructural = errors.New("could not determine network structure")

// StructuralError reports an input shape that cannot be repaired into a tree.
// Retrying cannot fix it.
type StructuralError struct {
	Reason string
}

// Error implements the error interface.
func (e *StructuralError) Error() string {
	return fmt.Sprintf("%v: %s", ErrStructural, e.Reason)
}

// Is makes errors.Is(err, ErrStructural) true.
func (e *StructuralError) Is(target error) bool {
	return target == ErrStructural
}

func structural(format string, args ...any) error {
	return &StructuralError{Reason: fmt.Sprintf(format, args...)}
}
