package header

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRequestValidate(t *testing.T) {
	require.NoError(t, HeaderRequest{Data: Origin(5), Amount: 25}.Validate())
	require.NoError(t, HeaderRequest{Data: Origin(0), Amount: 1}.Validate())
	require.NoError(t, HeaderRequest{Data: ByHash(fakeHash(1)), Amount: 1}.Validate())

	require.ErrorIs(t, HeaderRequest{Data: Origin(5), Amount: 0}.Validate(), ErrInvalidRequest)
	require.ErrorIs(t, HeaderRequest{Data: Origin(0), Amount: 2}.Validate(), ErrInvalidRequest)
	require.ErrorIs(t, HeaderRequest{Data: ByHash(fakeHash(1)), Amount: 2}.Validate(), ErrInvalidRequest)
}

func TestHeaderRequestIsHeadRequest(t *testing.T) {
	require.True(t, HeaderRequest{Data: Origin(0), Amount: 1}.IsHeadRequest())
	require.False(t, HeaderRequest{Data: Origin(1), Amount: 1}.IsHeadRequest())
	require.False(t, HeaderRequest{Data: ByHash(fakeHash(1)), Amount: 1}.IsHeadRequest())
}
