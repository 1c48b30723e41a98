package authn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func TestAdmit_PrimaryAndSecondary(t *testing.T) {
	a := New("p1", "s1", false)
	require.True(t, a.Admit("p1"))
	require.True(t, a.Admit("s1"))
	require.False(t, a.Admit("other"))
	require.False(t, a.Admit(""))
}

func TestAdmit_BypassAdmitsAnything(t *testing.T) {
	a := New("p1", "s1", true)
	require.True(t, a.Admit("whatever"))
	require.True(t, a.Admit(""))
}

func TestRotate_ScenarioS1(t *testing.T) {
	a := New("p1", "s1", false)
	require.True(t, a.Admit("p1"))

	_, err := a.Rotate(RotateRequest{
		Primary:   strptr("p2"),
		Secondary: strptr("s2"),
		Activate:  strptr("secondary"),
	})
	require.NoError(t, err)

	require.True(t, a.Admit("p2"))
	require.True(t, a.Admit("s2"))
	require.False(t, a.Admit("p1"))
	require.False(t, a.Admit("s1"))
	require.Equal(t, SlotSecondary, a.Active())
}

func TestRotate_InvalidActivate(t *testing.T) {
	a := New("p1", "s1", false)
	_, err := a.Rotate(RotateRequest{Activate: strptr("tertiary")})
	require.Error(t, err)
}

func TestMaskedAudit_HidesTokens(t *testing.T) {
	masked := MaskedAudit(RotateRequest{Primary: strptr("secret"), Activate: strptr("primary")})
	require.Equal(t, "***", masked["primary"])
	require.Equal(t, "primary", masked["activate"])
	require.NotContains(t, masked, "secondary")
}
