package device

import "github.com/sirupsen/logrus"

// SimMotor is a stand-in motor driver for running without hardware and for
// tests. It just remembers what it was last told.
type SimMotor struct {
	Running bool
	Dir     Direction
	Duty    uint8
}

func (s *SimMotor) Drive(dir Direction, duty uint8) error {
	s.Running = true
	s.Dir = dir
	s.Duty = duty
	logrus.Debugf("sim motor: drive %s at %d", dir, duty)
	return nil
}

func (s *SimMotor) Stop() error {
	s.Running = false
	s.Duty = 0
	logrus.Debugf("sim motor: stop")
	return nil
}

// SimSensor replays a fixed light level, or a scripted sequence when Values
// is set.
type SimSensor struct {
	Value  int
	Values []int
	idx    int
}

func (s *SimSensor) Read() (int, error) {
	if len(s.Values) == 0 {
		return s.Value, nil
	}
	v := s.Values[s.idx%len(s.Values)]
	s.idx++
	return v, nil
}

// MemNVM is an in-memory NVM, used by tests and the simulated device.
type MemNVM struct {
	cells map[int]byte
}

func NewMemNVM() *MemNVM {
	return &MemNVM{cells: map[int]byte{}}
}

func (m *MemNVM) ReadByte(addr int) (byte, error) {
	return m.cells[addr], nil
}

func (m *MemNVM) WriteByte(addr int, b byte) error {
	m.cells[addr] = b
	return nil
}
