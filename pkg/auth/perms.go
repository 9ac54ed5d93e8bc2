package auth

// PermRequirement is one element of a HasPerms list: a permission that must
// be held, or a group of alternatives of which one must be held.
type PermRequirement struct {
	anyOf []string
}

// Perm requires perm
func Perm(perm string) PermRequirement {
	return PermRequirement{anyOf: []string{perm}}
}

// AnyOf requires at least one of perms. An empty group is satisfied.
func AnyOf(perms ...string) PermRequirement {
	return PermRequirement{anyOf: perms}
}

// Alternatives returns the permissions that satisfy the requirement
func (r PermRequirement) Alternatives() []string {
	return r.anyOf
}

func (r PermRequirement) satisfied(has func(string) bool) bool {
	if len(r.anyOf) == 0 {
		return true
	}
	for _, perm := range r.anyOf {
		if has(perm) {
			return true
		}
	}
	return false
}
