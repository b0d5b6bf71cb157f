package driver

import (
	"github.com/pkg/errors"
	rpio "github.com/stianeikeland/go-rpio/v4"
)

// MCP3008 reads the LDR through an MCP3008 ADC on SPI0. The chip returns
// 10-bit samples, which is exactly the [0, 1023] range the filter expects.
type MCP3008 struct {
	channel uint8
}

func NewMCP3008(channel uint8) (*MCP3008, error) {
	if channel > 7 {
		return nil, errors.Errorf("mcp3008: channel %d out of range", channel)
	}
	if err := rpio.SpiBegin(rpio.Spi0); err != nil {
		return nil, errors.Wrap(err, "mcp3008: spi begin")
	}
	rpio.SpiSpeed(1350000)
	return &MCP3008{channel: channel}, nil
}

func (m *MCP3008) Read() (int, error) {
	// start bit, single-ended mode + channel, one clocking byte
	buf := []byte{0x01, (0x08 | m.channel) << 4, 0x00}
	rpio.SpiExchange(buf)
	return int(buf[1]&0x03)<<8 | int(buf[2]), nil
}

func (m *MCP3008) Close() {
	rpio.SpiEnd(rpio.Spi0)
}
