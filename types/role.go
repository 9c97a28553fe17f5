package types

// Role identifies a worker variant. All seven roles share the same worker
// contract; behavior differences live entirely behind it.
type Role string

const (
	RoleScout      Role = "scout"
	RoleExperience Role = "experience"
	RoleTechnical  Role = "technical"
	RoleMarket     Role = "market"
	RoleRedTeam    Role = "red_team"
	RoleBlueTeam   Role = "blue_team"
	RoleElite      Role = "elite"
)

// CollectionRoles lists the roles dispatched during the collection phase,
// one per primary dimension.
func CollectionRoles() []Role {
	return []Role{RoleScout, RoleExperience, RoleTechnical, RoleMarket}
}

// AllRoles lists every worker role.
func AllRoles() []Role {
	return []Role{
		RoleScout, RoleExperience, RoleTechnical, RoleMarket,
		RoleRedTeam, RoleBlueTeam, RoleElite,
	}
}

// PrimaryDimension returns the dimension a collection role owns, or "" for
// roles without one (red team, blue team, elite).
func (r Role) PrimaryDimension() Dimension {
	switch r {
	case RoleScout:
		return DimensionProduct
	case RoleExperience:
		return DimensionUX
	case RoleTechnical:
		return DimensionTechnical
	case RoleMarket:
		return DimensionMarket
	default:
		return ""
	}
}

// Phase is a state of the orchestrator's four-phase machine.
type Phase string

const (
	PhaseCollecting   Phase = "collecting"
	PhaseValidating   Phase = "validating"
	PhaseDebating     Phase = "debating"
	PhaseSynthesizing Phase = "synthesizing"
	PhaseDone         Phase = "done"
	PhaseFailed       Phase = "failed"
)

// Next returns the phase that legally follows p, or PhaseFailed if p is
// terminal.
func (p Phase) Next() Phase {
	switch p {
	case PhaseCollecting:
		return PhaseValidating
	case PhaseValidating:
		return PhaseDebating
	case PhaseDebating:
		return PhaseSynthesizing
	case PhaseSynthesizing:
		return PhaseDone
	default:
		return PhaseFailed
	}
}

// Terminal reports whether no further phase may be entered.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// RunStatus is the externally visible state of a run.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunTimedOut  RunStatus = "timed_out"
)
