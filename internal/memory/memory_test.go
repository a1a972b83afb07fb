package memory_test

import (
	"testing"

	"github.com/amyip/riscvum/internal/memory"
	"github.com/stretchr/testify/require"
)

func TestUnbackedAccessFaults(t *testing.T) {
	m := memory.NewMap()
	_, err := m.ReadU8(0x1000)
	require.ErrorIs(t, err, memory.ErrAccessFault)
}

func TestAllocatePageIdempotent(t *testing.T) {
	m := memory.NewMap()
	require.True(t, m.AllocatePage(0x1000))
	require.False(t, m.AllocatePage(0x1000))
	require.Equal(t, 1, m.PageCount())
}

func TestRoundTripU64(t *testing.T) {
	m := memory.NewMap()
	require.True(t, m.AllocatePage(0x2000))
	require.NoError(t, m.WriteU64(0x2000, 0x0102030405060708))
	v, err := m.ReadU64(0x2000)
	require.NoError(t, err)
	require.Equal(t, uint64(0x0102030405060708), v)

	for i, want := range []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01} {
		b, err := m.ReadU8(0x2000 + uint64(i))
		require.NoError(t, err)
		require.Equal(t, want, b)
	}
}

func TestCrossPageBoundary(t *testing.T) {
	m := memory.NewMap()
	require.True(t, m.AllocatePage(0x0FFE))
	require.True(t, m.AllocatePage(0x1000))
	require.NoError(t, m.WriteU32(0x0FFE, 0xAABBCCDD))
	v, err := m.ReadU32(0x0FFE)
	require.NoError(t, err)
	require.Equal(t, uint32(0xAABBCCDD), v)
}

func TestCrossPageBoundaryFailsWithoutSecondPage(t *testing.T) {
	m := memory.NewMap()
	require.True(t, m.AllocatePage(0x0FFE))
	_, err := m.ReadU32(0x0FFE)
	require.ErrorIs(t, err, memory.ErrAccessFault)
}

func TestAllocateRangeCoversAllTouchedPages(t *testing.T) {
	m := memory.NewMap()
	require.True(t, m.AllocateRange(0x10, 0x2000))
	require.NoError(t, m.WriteU8(0x10, 1))
	require.NoError(t, m.WriteU8(0x2000, 2))
}

func TestStackRegionAddressing(t *testing.T) {
	m := memory.NewMap()
	require.True(t, m.AllocateRange(memory.StackBase, memory.StackSize))
	require.NoError(t, m.WriteU64(memory.TopOfStack-8, 0x42))
	v, err := m.ReadU64(memory.TopOfStack - 8)
	require.NoError(t, err)
	require.Equal(t, uint64(0x42), v)
}

func TestReadWriteBytesStaging(t *testing.T) {
	m := memory.NewMap()
	require.True(t, m.AllocateRange(0x3000, 16))
	require.NoError(t, m.WriteBytes(0x3000, []byte("Hi\n")))
	data, err := m.ReadBytes(0x3000, 3)
	require.NoError(t, err)
	require.Equal(t, []byte("Hi\n"), data)
}
