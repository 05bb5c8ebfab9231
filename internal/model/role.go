package model

// Role is the election state of one monitor process within a session.
type Role int

const (
	// RoleUndetermined is the startup state. Side effects are dropped.
	RoleUndetermined Role = iota
	// RoleMaster owns the live connection and OS notifications.
	RoleMaster
	// RoleSlave receives processed state via the relay.
	RoleSlave
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleMaster:
		return "master"
	case RoleSlave:
		return "slave"
	default:
		return "undetermined"
	}
}
