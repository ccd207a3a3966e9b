package loader

import "fmt"

// GenerationError means the record stream could not be planned. It is fatal.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("failed to plan record batches: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
