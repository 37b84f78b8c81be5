package uuid

import (
	"testing"

	guuid "github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

var _ warmer.IDGenerator = (*Generator)(nil)

func TestNewRawIDIsV7AndUnique(t *testing.T) {
	t.Parallel()

	gen := NewGenerator()
	a, err := gen.NewRawID()
	require.NoError(t, err)
	b, err := gen.NewRawID()
	require.NoError(t, err)

	require.Equal(t, guuid.Version(7), a.Version())
	require.NotEqual(t, a, b)
}
