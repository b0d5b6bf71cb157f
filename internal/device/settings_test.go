package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	nvm := NewMemNVM()
	s := NewStore(nvm, calibrationBase)

	_, ok, err := s.Load()
	require.NoError(t, err)
	assert.False(t, ok, "empty NVM has no valid record")

	require.NoError(t, s.Save(Record{A: 120, B: 940}))

	rec, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Record{A: 120, B: 940}, rec)
}

func TestStoreResetClearsMagicOnly(t *testing.T) {
	nvm := NewMemNVM()
	s := NewStore(nvm, thresholdsBase)

	require.NoError(t, s.Save(Record{A: 300, B: 700}))
	require.NoError(t, s.Reset())

	_, ok, err := s.Load()
	require.NoError(t, err)
	assert.False(t, ok, "record is invalid after reset")

	// the numeric field bytes are deliberately left behind
	b, err := nvm.ReadByte(thresholdsBase + 1)
	require.NoError(t, err)
	assert.Equal(t, byte(300&0xFF), b)

	// saving again revalidates in place
	require.NoError(t, s.Save(Record{A: 1, B: 2}))
	rec, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Record{A: 1, B: 2}, rec)
}

func TestStoreLittleEndianLayout(t *testing.T) {
	nvm := NewMemNVM()
	s := NewStore(nvm, 0)

	require.NoError(t, s.Save(Record{A: 0x0201, B: 0x0403}))

	expect := []byte{settingsMagic, 0x01, 0x02, 0x03, 0x04}
	for i, want := range expect {
		b, err := nvm.ReadByte(i)
		require.NoError(t, err)
		assert.Equal(t, want, b, "byte %d", i)
	}
}

func TestStoresDoNotOverlap(t *testing.T) {
	nvm := NewMemNVM()
	cal := NewStore(nvm, calibrationBase)
	thr := NewStore(nvm, thresholdsBase)

	require.NoError(t, cal.Save(Record{A: 50, B: 950}))
	require.NoError(t, thr.Save(Record{A: 300, B: 700}))

	rec, ok, err := cal.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Record{A: 50, B: 950}, rec)
}
