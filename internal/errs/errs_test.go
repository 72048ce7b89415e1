package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesChain(t *testing.T) {
	root := errors.New("root")
	err := Wrapf(Wrap(root, "inner"), "outer %d", 7)

	require.Error(t, err)
	assert.True(t, errors.Is(err, root))
	assert.Equal(t, "outer 7: inner: root", err.Error())
	assert.Equal(t, []string{"outer 7: inner: root", "inner: root", "root"}, ErrorChainStrings(err))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "x"))
	assert.NoError(t, Wrapf(nil, "x %d", 1))
	assert.Nil(t, ErrorChainStrings(nil))
}
