// Package fault defines the shared error taxonomy for the boga backend.
//
// Components wrap these sentinels with fmt.Errorf("...: %w", ...) so callers
// can classify failures with errors.Is without depending on the component
// that produced them. The HTTP layer maps each sentinel to a status code.
package fault

import "errors"

var (
	// ErrUpstreamModel indicates a model or embedding provider call failed.
	ErrUpstreamModel = errors.New("upstream model error")

	// ErrStore indicates a persistence operation failed.
	ErrStore = errors.New("store error")

	// ErrParse indicates structured output from a model could not be decoded.
	ErrParse = errors.New("parse error")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
)
