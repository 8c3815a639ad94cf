// Package validate implements the single-shot cross-reference check that
// runs after all configuration create-calls and before the event loop
// starts. It never mutates the Registry and produces the same verdict no
// matter how many times it is run against the same Registry.
package validate

import (
	"fmt"

	"github.com/kestrelnet/repeater/internal/registry"
	"github.com/kestrelnet/repeater/internal/rerrors"
)

// Run performs, in order: every map's target id exists; every target's
// transmitter id exists and is referenced by at least one map; every
// transmitter is referenced by at least one target. All checks run to
// completion before returning, so an operator sees every violation from one
// invocation.
//
// Returns the full list of violations found; a non-empty return means the
// daemon must not enter the event loop.
func Run(r *registry.Registry) []error {
	var errs []error

	targetUsed := make(map[int32]bool)
	for _, m := range r.Maps() {
		if _, ok := r.FindTarget(m.TargetID); !ok {
			errs = append(errs, rerrors.New(rerrors.Validation, "map target reference",
				fmt.Sprintf("Target %d referenced in map but not defined", m.TargetID), nil))
			continue
		}
		targetUsed[m.TargetID] = true
	}

	transmitterUsed := make(map[int32]bool)
	for id, t := range r.Targets() {
		if _, ok := r.FindTransmitter(t.TransmitterID); !ok {
			errs = append(errs, rerrors.New(rerrors.Validation, "target transmitter reference",
				fmt.Sprintf("Transmitter %d referenced by target %d but not defined", t.TransmitterID, id), nil))
		} else {
			transmitterUsed[t.TransmitterID] = true
		}

		if !targetUsed[id] {
			errs = append(errs, rerrors.New(rerrors.Validation, "unused target",
				fmt.Sprintf("Target %d is defined but not referenced by any map", id), nil))
		}
	}

	for id := range r.Transmitters() {
		if !transmitterUsed[id] {
			errs = append(errs, rerrors.New(rerrors.Validation, "unused transmitter",
				fmt.Sprintf("Transmitter %d is defined but not referenced by any target", id), nil))
		}
	}

	return errs
}
