package device

import "github.com/pkg/errors"

// Layout per record: one magic validity byte, then two u16 fields stored
// low byte first. Calibration bounds live at base 0, auto thresholds at
// base 8. The shape is fixed even though the field semantics differ.
const (
	settingsMagic = 0xA5

	calibrationBase = 0
	thresholdsBase  = 8

	recordSize = 5
)

// Record is one persisted pair of 16-bit fields.
type Record struct {
	A uint16
	B uint16
}

// Store reads and writes one Record at a fixed NVM base address. A record is
// valid only while its magic byte matches; Reset clears just the magic and
// leaves the stale field bytes in place.
type Store struct {
	nvm  NVM
	base int
}

func NewStore(nvm NVM, base int) *Store {
	return &Store{nvm: nvm, base: base}
}

// Save writes the record in layout order. The bytes of a field are written
// separately, so a power loss between the two halves leaves an undetected
// torn value. That window is inherent to the layout and accepted.
func (s *Store) Save(r Record) error {
	bytes := [recordSize]byte{
		settingsMagic,
		byte(r.A), byte(r.A >> 8),
		byte(r.B), byte(r.B >> 8),
	}
	for i, b := range bytes {
		if err := s.nvm.WriteByte(s.base+i, b); err != nil {
			return errors.Wrapf(err, "settings: write byte %d", s.base+i)
		}
	}
	return nil
}

// Load returns the stored record and whether a valid one exists. A magic
// mismatch is not an error: callers fall back to their defaults.
func (s *Store) Load() (Record, bool, error) {
	magic, err := s.nvm.ReadByte(s.base)
	if err != nil {
		return Record{}, false, errors.Wrap(err, "settings: read magic")
	}
	if magic != settingsMagic {
		return Record{}, false, nil
	}

	var raw [recordSize - 1]byte
	for i := range raw {
		raw[i], err = s.nvm.ReadByte(s.base + 1 + i)
		if err != nil {
			return Record{}, false, errors.Wrapf(err, "settings: read byte %d", s.base+1+i)
		}
	}

	return Record{
		A: uint16(raw[0]) | uint16(raw[1])<<8,
		B: uint16(raw[2]) | uint16(raw[3])<<8,
	}, true, nil
}

// Reset invalidates the record by clearing the magic byte only.
func (s *Store) Reset() error {
	return errors.Wrap(s.nvm.WriteByte(s.base, 0), "settings: clear magic")
}
