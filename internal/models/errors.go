package models

import (
	"fmt"
	"strings"
)

// PrerequisiteError is returned when rides (or zone-bound entities) are
// requested without the records they depend on.
type PrerequisiteError struct {
	Entity  string
	Missing []string
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("cannot generate %s without %s", e.Entity, strings.Join(e.Missing, ", "))
}

type InvalidZoneError struct {
	ZoneID string
}

func (e *InvalidZoneError) Error() string { return "unknown zone " + e.ZoneID }

// Violation describes a single broken reference or status mismatch.
type Violation struct {
	Entity string `json:"entity"`
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type DataIntegrityError struct {
	Violations []Violation
}

func (e *DataIntegrityError) Error() string {
	if len(e.Violations) == 1 {
		v := e.Violations[0]
		return fmt.Sprintf("data integrity: %s %s: %s", v.Entity, v.ID, v.Reason)
	}
	return fmt.Sprintf("data integrity: %d violations", len(e.Violations))
}
