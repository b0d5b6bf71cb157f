package device

// MotorState is the drive state of the curtain motor.
type MotorState int

const (
	MotorStopped MotorState = iota
	MotorOpening
	MotorClosing
)

func (s MotorState) String() string {
	switch s {
	case MotorOpening:
		return "OPENING"
	case MotorClosing:
		return "CLOSING"
	default:
		return "STOPPED"
	}
}

// Position is the inferred curtain position. There is no encoder, so this is
// a best-effort estimate derived from completed moves, never ground truth.
type Position int

const (
	PositionUnknown Position = iota
	PositionOpen
	PositionClosed
	PositionPartial
)

func (p Position) String() string {
	switch p {
	case PositionOpen:
		return "OPEN"
	case PositionClosed:
		return "CLOSED"
	case PositionPartial:
		return "PARTIAL"
	default:
		return "UNKNOWN"
	}
}

// Mode selects between explicit serial commands and threshold-driven control.
type Mode int

const (
	ModeManual Mode = iota
	ModeAuto
)

func (m Mode) String() string {
	if m == ModeAuto {
		return "AUTO"
	}
	return "MANUAL"
}

// Direction is the physical drive direction requested from a MotorDriver.
type Direction int

const (
	DirectionOpen Direction = iota
	DirectionClose
)

func (d Direction) String() string {
	if d == DirectionClose {
		return "close"
	}
	return "open"
}

// MotorDriver moves the curtain hardware. Drive replaces whatever the driver
// was doing before; Stop must leave the output fully de-energized.
type MotorDriver interface {
	Drive(dir Direction, duty uint8) error
	Stop() error
}

// LightSensor reads the raw LDR value in [0, 1023].
type LightSensor interface {
	Read() (int, error)
}

// NVM is a byte-addressed non-volatile memory. Writes are not atomic across
// multi-byte values; the settings layout accepts that.
type NVM interface {
	ReadByte(addr int) (byte, error)
	WriteByte(addr int, b byte) error
}
