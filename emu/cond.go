package emu

import "github.com/sarchlab/m2dbt/insts"

// ConditionHolds evaluates an ARM64 condition code against the flags.
func ConditionHolds(cond insts.Cond, f Flags) bool {
	switch cond {
	case insts.CondEQ:
		return f.Z
	case insts.CondNE:
		return !f.Z
	case insts.CondCS:
		return f.C
	case insts.CondCC:
		return !f.C
	case insts.CondMI:
		return f.N
	case insts.CondPL:
		return !f.N
	case insts.CondVS:
		return f.V
	case insts.CondVC:
		return !f.V
	case insts.CondHI:
		return f.C && !f.Z
	case insts.CondLS:
		return !f.C || f.Z
	case insts.CondGE:
		return f.N == f.V
	case insts.CondLT:
		return f.N != f.V
	case insts.CondGT:
		return !f.Z && (f.N == f.V)
	case insts.CondLE:
		return f.Z || (f.N != f.V)
	case insts.CondAL, insts.CondNV:
		return true
	default:
		return false
	}
}
