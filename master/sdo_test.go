package master

import (
	"testing"

	"github.com/arloliu/go-ecat/ecat"
	"github.com/arloliu/go-ecat/sim"
	"github.com/stretchr/testify/require"
)

func TestMaster_SDO(t *testing.T) {
	require := require.New(t)

	engine := sim.New(testTopology())
	m := newTestMaster(t, engine)

	_, err := m.ReadSDO(1, 0x1018, 0x01, 4)
	require.ErrorIs(err, ecat.ErrNotOpened)

	require.NoError(m.Initialize("sim0"))
	require.NoError(m.ConfigureDevices())

	t.Run("Read", func(t *testing.T) {
		data, err := m.ReadSDO(1, 0x1018, 0x01, 4)
		require.NoError(err)
		require.Equal([]byte{0x02, 0x00, 0x00, 0x00}, data)

		vendorID, err := ReadSDOValue[uint32](m, 1, 0x1018, 0x01)
		require.NoError(err)
		require.Equal(uint32(2), vendorID)

		_, err = m.ReadSDO(1, 0x1018, 0x02, 4)
		require.ErrorIs(err, ecat.ErrObjectAccess)
	})

	t.Run("Write Then Read", func(t *testing.T) {
		require.NoError(WriteSDOValue(m, 2, 0x6040, 0x00, uint16(0x000f)))

		data, err := m.ReadSDO(2, 0x6040, 0x00, 2)
		require.NoError(err)
		require.Equal([]byte{0x0f, 0x00}, data)

		controlWord, err := ReadSDOValue[uint16](m, 2, 0x6040, 0x00)
		require.NoError(err)
		require.Equal(uint16(0x000f), controlWord)

		require.NoError(WriteSDOValue(m, 3, 0x8000, 0x01, uint8(1)))
		enabled, err := ReadSDOValue[uint8](m, 3, 0x8000, 0x01)
		require.NoError(err)
		require.Equal(uint8(1), enabled)
	})

	t.Run("Short Object", func(t *testing.T) {
		require.NoError(m.WriteSDO(2, 0x2000, 0x00, []byte{0x01}))

		_, err := ReadSDOValue[uint32](m, 2, 0x2000, 0x00)
		require.ErrorIs(err, ecat.ErrObjectAccess)
	})

	t.Run("Invalid Access", func(t *testing.T) {
		_, err := m.ReadSDO(0, 0x1018, 0x01, 4)
		require.ErrorIs(err, ecat.ErrNoDevice)

		require.ErrorIs(m.WriteSDO(4, 0x1018, 0x01, []byte{0}), ecat.ErrNoDevice)

		_, err = ReadSDOValue[string](m, 1, 0x1018, 0x01)
		require.ErrorIs(err, ecat.ErrObjectAccess)

		engine.Drop(2)
		require.ErrorIs(m.WriteSDO(2, 0x6040, 0x00, []byte{0x06, 0x00}), ecat.ErrObjectAccess)
		_, err = m.ReadSDO(2, 0x6040, 0x00, 2)
		require.ErrorIs(err, ecat.ErrObjectAccess)
	})
}
