package executor

// PermissionMatrix maps actor roles to the command types they may invoke.
// The zero value denies everything; entitlements are granted explicitly.
type PermissionMatrix struct {
	grants map[string]map[string]bool
}

// NewPermissionMatrix builds a matrix from role -> command types. A role
// granted "*" may invoke any command type.
func NewPermissionMatrix(grants map[string][]string) *PermissionMatrix {
	m := &PermissionMatrix{grants: make(map[string]map[string]bool, len(grants))}
	for role, cmds := range grants {
		set := make(map[string]bool, len(cmds))
		for _, c := range cmds {
			set[c] = true
		}
		m.grants[role] = set
	}
	return m
}

// Allowed reports whether role may invoke commandType. Unknown roles and
// unknown command types are denied.
func (m *PermissionMatrix) Allowed(role, commandType string) bool {
	if m == nil {
		return false
	}
	set, ok := m.grants[role]
	if !ok {
		return false
	}
	return set[commandType] || set["*"]
}
