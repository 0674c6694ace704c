package rto

import (
	errors "gopkg.in/src-d/go-errors.v1"
)

var (
	// ErrInvalidArgument is returned when a caller violates a contract at a
	// component boundary. It indicates a bug in the caller and is never
	// recovered internally.
	ErrInvalidArgument = errors.NewKind("invalid argument: %s")

	// ErrExecutionFault is returned when the bounded join sub-query fails
	// while it is being evaluated by the engine.
	ErrExecutionFault = errors.NewKind("cutoff join %s failed")

	// ErrNoPlan is returned by the join graph when no join order covering
	// every vertex could be estimated.
	ErrNoPlan = errors.NewKind("no join order found: %s")
)
