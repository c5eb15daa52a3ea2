package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allSandboxes = []SandboxMode{SandboxReadOnly, SandboxWorkspaceWrite, SandboxDangerFullAccess}

func TestEffectiveSandbox_ReadOnlyAlwaysWins(t *testing.T) {
	for _, requested := range allSandboxes {
		assert.Equal(t, SandboxReadOnly, EffectiveSandbox(ReadOnly, requested), "requested %s", requested)
	}
}

func TestEffectiveSandbox_OtherStrategiesPassThrough(t *testing.T) {
	for _, strategy := range []SafetyStrategy{DropSudo, UnprivilegedUser, Unsafe} {
		for _, requested := range allSandboxes {
			assert.Equal(t, requested, EffectiveSandbox(strategy, requested), "%s/%s", strategy, requested)
		}
	}
}

func TestParseSafetyStrategy(t *testing.T) {
	for _, s := range Strategies {
		got, err := ParseSafetyStrategy(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := ParseSafetyStrategy("root")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownStrategy))
	assert.Contains(t, err.Error(), `"root"`)
}

func TestParseSandboxMode(t *testing.T) {
	got, err := ParseSandboxMode("workspace-write")
	require.NoError(t, err)
	assert.Equal(t, SandboxWorkspaceWrite, got)

	_, err = ParseSandboxMode("full")
	assert.ErrorIs(t, err, ErrUnknownSandbox)
}

func TestRunAsUser(t *testing.T) {
	user, err := UnprivilegedUser.RunAsUser("codex")
	require.NoError(t, err)
	assert.Equal(t, "codex", user)

	_, err = UnprivilegedUser.RunAsUser(" ")
	assert.ErrorIs(t, err, ErrRunAsUserMissing)

	user, err = DropSudo.RunAsUser("codex")
	require.NoError(t, err)
	assert.Empty(t, user, "only unprivileged-user elevates")
}

func TestResolvePath(t *testing.T) {
	got, err := ResolvePath("sub/../out.md", "/work")
	require.NoError(t, err)
	assert.Equal(t, "/work/out.md", got)

	got, err = ResolvePath("/abs/path/", "/work")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)

	_, err = ResolvePath("", "/work")
	assert.ErrorIs(t, err, ErrPathEmpty)

	_, err = ResolvePath("bad\x00path", "/work")
	assert.ErrorIs(t, err, ErrPathControlChar)
}
