package service

import "strings"

// AuthorityGuard admits only the single principal fixed at construction.
type AuthorityGuard struct {
	authority string
}

func NewAuthorityGuard(authority string) *AuthorityGuard {
	return &AuthorityGuard{authority: strings.TrimSpace(authority)}
}

func (g *AuthorityGuard) Authority() string { return g.authority }

// Authorize fails with ErrUnauthorized unless caller is the authority.
func (g *AuthorityGuard) Authorize(caller string) error {
	caller = strings.TrimSpace(caller)
	if caller == "" || g.authority == "" || caller != g.authority {
		return ErrUnauthorized
	}
	return nil
}
