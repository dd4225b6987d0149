package bme68x

import (
	"github.com/kidoman/embd"
	"github.com/pkg/errors"
)

// regBus hides the transport behind register level reads and writes. The chip
// speaks the same register file over I2C and SPI, but the wire formats differ:
// I2C writes travel as (register, value) pairs, SPI masks the address down to
// seven bits and needs the memory page selected first.
type regBus interface {
	ReadReg(reg byte, data []byte) error
	WriteReg(reg byte, data ...byte) error
	Close() error
}

type i2cBus struct {
	bus  embd.I2CBus
	addr byte
}

func openI2C(busNo byte, addr byte) (*i2cBus, error) {
	err := embd.InitI2C()
	if err != nil {
		return nil, errors.Wrap(err, "failed to init i2c host")
	}

	return &i2cBus{bus: embd.NewI2CBus(busNo), addr: addr}, nil
}

func (b *i2cBus) ReadReg(reg byte, data []byte) error {
	return b.bus.ReadFromReg(b.addr, reg, data)
}

func (b *i2cBus) WriteReg(reg byte, data ...byte) error {
	if len(data) == 0 {
		return errors.New("nothing to write")
	}
	if len(data) == 1 {
		return b.bus.WriteByteToReg(b.addr, reg, data[0])
	}

	buf := make([]byte, 0, 2*len(data)-1)
	buf = append(buf, data[0])
	for ix := 1; ix < len(data); ix++ {
		buf = append(buf, reg+byte(ix), data[ix])
	}

	return b.bus.WriteToReg(b.addr, reg, buf)
}

func (b *i2cBus) Close() error {
	err := b.bus.Close()
	if err != nil {
		return err
	}

	return embd.CloseI2C()
}

type spiBus struct {
	bus embd.SPIBus

	page     byte
	pageSet  bool
	transfer []byte
}

func openSPI(channel byte, speed int) (*spiBus, error) {
	err := embd.InitSPI()
	if err != nil {
		return nil, errors.Wrap(err, "failed to init spi host")
	}

	return &spiBus{bus: embd.NewSPIBus(embd.SPIMode0, channel, speed, 8, 0)}, nil
}

// setPage flips the spi_mem_page bit when the target register lives on the
// other half of the register file. The page select register itself is
// reachable from both pages.
func (b *spiBus) setPage(reg byte) error {
	want := maskMemPage
	if reg >= 0x80 {
		want = 0x00
	}
	if b.pageSet && b.page == want {
		return nil
	}

	tx := []byte{RegMemPage | maskSpiRead, 0}
	err := b.bus.TransferAndReceiveData(tx)
	if err != nil {
		return err
	}

	status := tx[1]&^maskMemPage | want
	_, err = b.bus.Write([]byte{RegMemPage & maskSpiWrite, status})
	if err != nil {
		return err
	}

	b.page = want
	b.pageSet = true
	return nil
}

func (b *spiBus) ReadReg(reg byte, data []byte) error {
	err := b.setPage(reg)
	if err != nil {
		return err
	}

	if len(b.transfer) < len(data)+1 {
		b.transfer = make([]byte, len(data)+1)
	}
	tx := b.transfer[:len(data)+1]
	for ix := range tx {
		tx[ix] = 0
	}
	tx[0] = reg | maskSpiRead

	err = b.bus.TransferAndReceiveData(tx)
	if err != nil {
		return err
	}

	copy(data, tx[1:])
	return nil
}

func (b *spiBus) WriteReg(reg byte, data ...byte) error {
	if len(data) == 0 {
		return errors.New("nothing to write")
	}
	err := b.setPage(reg)
	if err != nil {
		return err
	}

	buf := make([]byte, 0, 2*len(data))
	for ix, value := range data {
		buf = append(buf, (reg+byte(ix))&maskSpiWrite, value)
	}

	_, err = b.bus.Write(buf)
	return err
}

func (b *spiBus) Close() error {
	err := b.bus.Close()
	if err != nil {
		return err
	}

	return embd.CloseSPI()
}
