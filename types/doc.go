// Package types defines the shared data model for the swarm coordination
// engine: signals, evidence, conflicts, handoff records, the role/phase
// enumerations, and the structured error type used across the framework.
//
// The types package is the lowest-level package with no internal
// dependencies, so placing the shared contracts here avoids circular
// imports.
package types
