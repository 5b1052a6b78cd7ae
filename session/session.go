// Package session holds the authenticated identity and credential bundle for
// the Quantify client, persisted across process restarts. The Store is the
// single source of truth: every other component reads it or requests
// mutations through its operations, and every mutation is published
// synchronously to subscribers.
package session

// Permission is a named capability attached to a role.
type Permission struct {
	ID          uint
	Name        string
	Description string
}

// Role is the user's assigned role with its permission set, as serialized by
// the backend.
type Role struct {
	ID          uint
	Name        string
	Description string
	IsSystem    bool
	Permissions []Permission
}

// User is the authenticated user identity returned by the login endpoint.
type User struct {
	ID          uint
	Username    string
	Role        Role
	IsActive    bool
	Permissions []string
}

// Session is the credential and identity bundle. IsAuthenticated is true iff
// the three tokens and the user are all present.
type Session struct {
	AccessToken  string
	RefreshToken string
	CSRFToken    string
	User         *User
	Permissions  []string

	IsAuthenticated bool
}

// newSession assembles a Session and derives IsAuthenticated and the
// effective permission set.
func newSession(access, refresh, csrf string, user *User, perms []string) Session {
	s := Session{
		AccessToken:  access,
		RefreshToken: refresh,
		CSRFToken:    csrf,
		User:         user,
		Permissions:  effectivePermissions(perms, user),
	}
	s.IsAuthenticated = access != "" && refresh != "" && csrf != "" && user != nil
	return s
}

// effectivePermissions resolves the capability set: the explicit list wins
// when non-empty, otherwise the names embedded in the user's role, otherwise
// empty.
func effectivePermissions(explicit []string, user *User) []string {
	if len(explicit) > 0 {
		return explicit
	}
	if user == nil {
		return nil
	}
	if len(user.Permissions) > 0 {
		return user.Permissions
	}
	names := make([]string, 0, len(user.Role.Permissions))
	for _, p := range user.Role.Permissions {
		names = append(names, p.Name)
	}
	return names
}

// HasPermission reports whether name is in the session's permission set.
func (s Session) HasPermission(name string) bool {
	for _, p := range s.Permissions {
		if p == name {
			return true
		}
	}
	return false
}
