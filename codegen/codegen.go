// Package codegen turns register-allocated IR into AArch64 machine code.
//
// Blocks are emitted in one forward pass. Branches to blocks that have
// not been emitted yet reserve one instruction slot and are patched when
// their target is entered.
package codegen

import "tlog.app/go/errors"

// Errors.
var (
	ErrUnimplemented      = errors.New("unimplemented")
	ErrDisplacementRange  = errors.New("branch displacement out of range")
	ErrNearBranchPending  = errors.New("near branch already pending")
	ErrNoNearBranch       = errors.New("no near branch pending")
	ErrUnresolvedBranches = errors.New("unresolved branches")
	ErrBlockRevisited     = errors.New("block entered twice")
	ErrInvalidOperand     = errors.New("invalid operand")
	ErrWriterOutOfRange   = errors.New("write cursor out of range")
)
