package policy_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/tokensmith/pkg/jwtx"
	"github.com/aussiebroadwan/tokensmith/pkg/policy"
	"github.com/stretchr/testify/require"
)

var (
	anonymous = policy.Anonymous()
	trusted   = policy.Subject{
		Name:        "trusted",
		Authorities: []string{"ROLE_TRUSTED_CLIENT"},
		Scopes:      []string{"read", "write"},
	}
	reader = policy.Subject{
		Name:        "reader",
		Authorities: []string{"ROLE_CLIENT"},
		Scopes:      []string{"read"},
	}
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		sub  policy.Subject
		want bool
	}{
		// /oauth/token_key
		{"isAnonymous() || hasAuthority('ROLE_TRUSTED_CLIENT')", anonymous, true},
		{"isAnonymous() || hasAuthority('ROLE_TRUSTED_CLIENT')", trusted, true},
		{"isAnonymous() || hasAuthority('ROLE_TRUSTED_CLIENT')", reader, false},

		// /oauth/check_token
		{"hasRole('TRUSTED_CLIENT')", trusted, true},
		{"hasRole('ROLE_TRUSTED_CLIENT')", trusted, true},
		{"hasRole('TRUSTED_CLIENT')", reader, false},
		{"hasRole('TRUSTED_CLIENT')", anonymous, false},

		{"permitAll", anonymous, true},
		{"permitAll()", reader, true},
		{"denyAll", trusted, false},
		{"isAuthenticated()", anonymous, false},
		{"isAuthenticated()", reader, true},
		{"isFullyAuthenticated()", reader, true},

		{"hasScope('write')", trusted, true},
		{"hasScope('write')", reader, false},
		{"hasAnyScope('admin', 'read')", reader, true},
		{"hasAnyRole('ADMIN', 'CLIENT')", reader, true},
		{"hasAnyAuthority(\"ROLE_X\", \"ROLE_Y\")", reader, false},

		{"hasRole('TRUSTED_CLIENT') and hasScope('write')", trusted, true},
		{"hasRole('TRUSTED_CLIENT') AND hasScope('admin')", trusted, false},
		{"not isAnonymous()", reader, true},
		{"!isAnonymous() && !hasScope('write')", reader, true},
		{"!isAnonymous() && !hasScope('write')", trusted, false},

		// and binds tighter than or.
		{"permitAll or denyAll and denyAll", anonymous, true},
		{"(permitAll or denyAll) and denyAll", anonymous, false},
	}

	for _, tt := range tests {
		t.Run(tt.expr+"/"+tt.sub.Name, func(t *testing.T) {
			got, err := policy.Evaluate(tt.sub, tt.expr)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestAnonymousHoldsNothing(t *testing.T) {
	sneaky := policy.Subject{Anonymous: true, Authorities: []string{"ROLE_TRUSTED_CLIENT"}, Scopes: []string{"write"}}

	ok, err := policy.Evaluate(sneaky, "hasRole('TRUSTED_CLIENT') or hasScope('write')")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCompile_SyntaxErrors(t *testing.T) {
	for _, expr := range []string{
		"",
		"   ",
		"hasRole(",
		"hasRole('x'",
		"hasRole('x)",
		"hasRole(x)",
		"hasRole()",
		"hasRole('a', 'b')",
		"isAnonymous('a')",
		"unknownFn()",
		"permitAll and",
		"permitAll permitAll",
		"(permitAll",
		"permitAll & denyAll",
		"and permitAll",
	} {
		_, err := policy.Compile(expr)
		require.ErrorIs(t, err, policy.ErrSyntax, "expr %q", expr)

		ok, err := policy.Evaluate(trusted, expr)
		require.Error(t, err)
		require.False(t, ok, "a broken expression denies")
	}
}

func TestMustCompile(t *testing.T) {
	p := policy.MustCompile("hasScope('read')")
	require.Equal(t, "hasScope('read')", p.String())
	require.True(t, p.Allow(reader))

	var nilPolicy *policy.Policy
	require.False(t, nilPolicy.Allow(trusted))

	require.Panics(t, func() { policy.MustCompile("hasScope(") })
}

func TestSubjectFromClaims(t *testing.T) {
	claims := jwtx.NewClientClaims("iss", "trusted", []string{"ROLE_TRUSTED_CLIENT"}, []string{"read"}, time.Now(), time.Minute)

	sub := policy.SubjectFromClaims(claims)
	require.False(t, sub.Anonymous)
	require.Equal(t, "trusted", sub.Name)
	require.True(t, sub.HasAuthority("ROLE_TRUSTED_CLIENT"))
	require.True(t, sub.HasScope("read"))
	require.False(t, sub.HasScope("write"))
}
