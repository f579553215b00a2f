// Package policy evaluates access expressions such as
//
//	isAnonymous() or hasAuthority('ROLE_TRUSTED_CLIENT')
//	hasRole('TRUSTED_CLIENT') and hasScope('write')
//
// against the authorities and scopes of a caller. Expressions are parsed
// once with Compile and evaluated without side effects.
package policy

import (
	"slices"
	"strings"

	"github.com/aussiebroadwan/tokensmith/pkg/jwtx"
)

// RolePrefix is added by hasRole/hasAnyRole when the argument lacks it.
const RolePrefix = "ROLE_"

// Subject is the caller an expression is evaluated against.
type Subject struct {
	Anonymous   bool
	Name        string
	Authorities []string
	Scopes      []string
}

// Anonymous returns the subject used when no credentials were presented.
func Anonymous() Subject {
	return Subject{Anonymous: true}
}

// SubjectFromClaims builds an authenticated subject from token claims.
func SubjectFromClaims(c jwtx.Claims) Subject {
	name := c.ClientID
	if name == "" {
		name = c.Subject
	}
	return Subject{
		Name:        name,
		Authorities: slices.Clone(c.Authorities),
		Scopes:      slices.Clone(c.Scopes),
	}
}

// HasAuthority reports whether an authenticated subject holds authority.
// Anonymous subjects hold nothing.
func (s Subject) HasAuthority(authority string) bool {
	return !s.Anonymous && slices.Contains(s.Authorities, authority)
}

// HasScope reports whether an authenticated subject was granted scope.
func (s Subject) HasScope(scope string) bool {
	return !s.Anonymous && slices.Contains(s.Scopes, scope)
}

// Policy is a compiled expression.
type Policy struct {
	src  string
	root node
}

// Compile parses expr.
func Compile(expr string) (*Policy, error) {
	root, err := parse(expr)
	if err != nil {
		return nil, err
	}
	return &Policy{src: expr, root: root}, nil
}

// MustCompile is Compile that panics, for expressions fixed at build time.
func MustCompile(expr string) *Policy {
	p, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// Allow evaluates the policy for sub.
func (p *Policy) Allow(sub Subject) bool {
	if p == nil || p.root == nil {
		return false
	}
	return p.root.eval(sub)
}

// String returns the source expression.
func (p *Policy) String() string {
	if p == nil {
		return "denyAll"
	}
	return p.src
}

// Evaluate compiles and evaluates expr in one step. A syntax error denies
// and is returned so the caller can log it.
func Evaluate(sub Subject, expr string) (bool, error) {
	p, err := Compile(expr)
	if err != nil {
		return false, err
	}
	return p.Allow(sub), nil
}

func roleAuthority(role string) string {
	if strings.HasPrefix(role, RolePrefix) {
		return role
	}
	return RolePrefix + role
}
