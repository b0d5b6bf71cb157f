package driver

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileNVMPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nvm.bin")

	n, err := OpenFileNVM(path, 32)
	require.NoError(t, err)

	b, err := n.ReadByte(31)
	require.NoError(t, err)
	assert.Equal(t, byte(0), b, "fresh NVM reads zero")

	require.NoError(t, n.WriteByte(0, 0xA5))
	require.NoError(t, n.WriteByte(4, 0x42))
	require.NoError(t, n.Close())

	n, err = OpenFileNVM(path, 32)
	require.NoError(t, err)
	defer n.Close()

	b, err = n.ReadByte(0)
	require.NoError(t, err)
	assert.Equal(t, byte(0xA5), b)

	b, err = n.ReadByte(4)
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), b)
}

func TestRelayMotorExclusive(t *testing.T) {
	open := &fakePin{}
	close := &fakePin{}
	m := NewRelayMotor(open, close, false)

	require.NoError(t, m.Drive(0, 200))
	assert.True(t, open.high)
	assert.False(t, close.high)

	require.NoError(t, m.Drive(1, 200))
	assert.False(t, open.high, "opposite relay released before energizing")
	assert.True(t, close.high)

	require.NoError(t, m.Stop())
	assert.False(t, open.high)
	assert.False(t, close.high)
}

func TestRelayMotorNormalClosedInverts(t *testing.T) {
	open := &fakePin{}
	close := &fakePin{}
	m := NewRelayMotor(open, close, true)

	require.NoError(t, m.Stop())
	assert.True(t, open.high, "released NC relay is held high")
	assert.True(t, close.high)

	require.NoError(t, m.Drive(0, 200))
	assert.False(t, open.high)
}

type fakePin struct {
	high bool
}

func (p *fakePin) High() error { p.high = true; return nil }
func (p *fakePin) Low() error  { p.high = false; return nil }
