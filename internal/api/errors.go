package api

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/torfleet/internal/fleet"
)

// fleetError maps supervisor errors to HTTP errors.
func fleetError(err error) error {
	var validation *fleet.ValidationError
	switch {
	case errors.As(err, &validation):
		return huma.Error400BadRequest(validation.Error(), err)
	case errors.Is(err, fleet.ErrBusy):
		return huma.Error409Conflict("A start or stop is already in progress", err)
	case errors.Is(err, fleet.ErrClosed):
		return huma.Error503ServiceUnavailable("Supervisor is shutting down", err)
	default:
		return huma.Error500InternalServerError("Fleet operation failed", err)
	}
}

func errorStrings(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}
