package apierrors

import "errors"

// Normalized is the shape handed to UI-facing callbacks. Subscribers never
// see a raw transport exception, only this.
type Normalized struct {
	Message string `json:"message"`
	Code    Class  `json:"code"`
	Details string `json:"details,omitempty"`
}

// Normalize converts any error into its subscriber-facing form.
func Normalize(err error) Normalized {
	if err == nil {
		return Normalized{}
	}

	var e *Error
	if errors.As(err, &e) {
		return Normalized{
			Message: e.Err.Error(),
			Code:    e.Class,
			Details: e.Detail,
		}
	}

	return Normalized{
		Message: err.Error(),
		Code:    ClassOf(err),
	}
}
