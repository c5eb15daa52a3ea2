package platform

import (
	"os"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakePlatform struct {
	supports bool
}

func (fakePlatform) Name() string              { return "plan9" }
func (f fakePlatform) SupportsElevation() bool { return f.supports }
func (fakePlatform) EffectiveUID() int         { return -1 }

func TestCheckElevation(t *testing.T) {
	assert.NoError(t, CheckElevation(fakePlatform{supports: true}))

	err := CheckElevation(fakePlatform{})
	assert.ErrorIs(t, err, ErrElevationUnsupported)
	assert.Contains(t, err.Error(), "plan9")
}

func TestNew_MatchesHost(t *testing.T) {
	p := New()
	assert.Equal(t, runtime.GOOS, p.Name())

	if runtime.GOOS == "windows" {
		assert.False(t, p.SupportsElevation())
		assert.Equal(t, -1, p.EffectiveUID())
		return
	}
	assert.True(t, p.SupportsElevation())
	assert.Equal(t, os.Geteuid(), p.EffectiveUID())
}
