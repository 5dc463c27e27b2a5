package access

import (
	"oraclehub/internal/domain"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmin_Require(t *testing.T) {
	a := New("GADMIN")

	require.NoError(t, a.Require("set_price", "GADMIN"))

	err := a.Require("set_price", "GOTHER")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Contains(t, err.Error(), "set_price")

	// zero admin never authorizes, not even an empty caller
	var empty Admin
	require.ErrorIs(t, empty.Require("op", ""), domain.ErrUnauthorized)
}

func TestAdmin_TwoStepTransfer(t *testing.T) {
	a := New("GADMIN")

	require.ErrorIs(t, a.Propose("GOTHER", "GNEW"), domain.ErrUnauthorized)
	require.NoError(t, a.Propose("GADMIN", "GNEW"))
	assert.Equal(t, domain.Address("GNEW"), a.Pending)
	assert.Equal(t, domain.Address("GADMIN"), a.Current)

	_, err := a.Accept("GADMIN")
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	prev, err := a.Accept("GNEW")
	require.NoError(t, err)
	assert.Equal(t, domain.Address("GADMIN"), prev)
	assert.Equal(t, domain.Address("GNEW"), a.Current)
	assert.Empty(t, a.Pending)

	_, err = a.Accept("GNEW")
	require.ErrorIs(t, err, domain.ErrNoPendingAdmin)
}

func TestAdmin_Set(t *testing.T) {
	a := New("GADMIN")
	require.NoError(t, a.Propose("GADMIN", "GPENDING"))

	require.ErrorIs(t, a.Set("GPENDING", "GPENDING"), domain.ErrUnauthorized)
	require.ErrorIs(t, a.Set("GADMIN", ""), domain.ErrInvalidConfig)

	require.NoError(t, a.Set("GADMIN", "GNEW"))
	assert.Equal(t, domain.Address("GNEW"), a.Current)
	assert.Empty(t, a.Pending, "single-step set clears a stale proposal")
}
