package driver

import (
	"os"

	"github.com/pkg/errors"
)

// FileNVM emulates a small EEPROM with a fixed-size file. Each WriteByte is
// one pwrite followed by a sync, so writes land byte by byte exactly like the
// settings layout assumes. There is no atomicity across bytes.
type FileNVM struct {
	f *os.File
}

// OpenFileNVM opens or creates the backing file and grows it to size so every
// address reads as zero until first written.
func OpenFileNVM(path string, size int) (*FileNVM, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "nvm: open %s", path)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "nvm: stat")
	}
	if info.Size() < int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "nvm: grow")
		}
	}

	return &FileNVM{f: f}, nil
}

func (n *FileNVM) ReadByte(addr int) (byte, error) {
	var buf [1]byte
	if _, err := n.f.ReadAt(buf[:], int64(addr)); err != nil {
		return 0, errors.Wrapf(err, "nvm: read %d", addr)
	}
	return buf[0], nil
}

func (n *FileNVM) WriteByte(addr int, b byte) error {
	if _, err := n.f.WriteAt([]byte{b}, int64(addr)); err != nil {
		return errors.Wrapf(err, "nvm: write %d", addr)
	}
	return errors.Wrap(n.f.Sync(), "nvm: sync")
}

func (n *FileNVM) Close() error {
	return n.f.Close()
}
