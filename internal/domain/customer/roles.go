package customer

import "strings"

// Roles resolves staff identity from email allow-lists loaded at start-up.
type Roles struct {
	admins map[string]struct{}
	owners map[string]struct{}
}

// NewRoles builds Roles from admin and owner email lists.
func NewRoles(admins, owners []string) *Roles {
	return &Roles{
		admins: toSet(admins),
		owners: toSet(owners),
	}
}

// ParseList splits a comma separated email list, normalizing entries and
// dropping empty ones.
func ParseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if e := NormalizeEmail(part); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// IsAdmin reports whether email is on the admin allow-list.
func (r *Roles) IsAdmin(email string) bool {
	if r == nil {
		return false
	}
	_, ok := r.admins[NormalizeEmail(email)]
	return ok
}

// IsOwner reports whether email is on the owner allow-list.
func (r *Roles) IsOwner(email string) bool {
	if r == nil {
		return false
	}
	_, ok := r.owners[NormalizeEmail(email)]
	return ok
}

func toSet(emails []string) map[string]struct{} {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e = NormalizeEmail(e); e != "" {
			set[e] = struct{}{}
		}
	}
	return set
}
