package bme68x

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hubertat/gaskit/drivers"
)

const (
	deviceName      = "bme68x"
	defaultSpiSpeed = 1000000
	resetPeriod     = 10 * time.Millisecond
	defaultAmbient  = 25
)

type Oversampling byte
type Mode byte
type FilterCoefficient byte

// Device talks to a single BME680/BME688. The exported fields come from the
// configuration file; zero values fall back to the primary I2C bus address
// and the oversampling set the gas scanner application note suggests.
type Device struct {
	Bus     string `json:"bus,omitempty"` // "i2c" (default) or "spi"
	BusNo   byte   `json:"bus_no,omitempty"`
	Address byte   `json:"address,omitempty"`
	Channel byte   `json:"channel,omitempty"` // spi chip select
	Speed   int    `json:"speed,omitempty"`   // spi clock [Hz]

	Temperature Oversampling      `json:"temperature_oversampling,omitempty"`
	Pressure    Oversampling      `json:"pressure_oversampling,omitempty"`
	Humidity    Oversampling      `json:"humidity_oversampling,omitempty"`
	Filter      FilterCoefficient `json:"filter,omitempty"`

	bus        regBus
	cali       calibrationCoefficients
	variant    byte
	uniqueId   uint32
	profile    drivers.HeaterProfile
	mode       Mode
	ambient    int32
	ambientSet bool
	ready      bool
	lastCode   int8
}

func (d *Device) Setup(ctx context.Context) (err error) {
	switch strings.ToLower(d.Bus) {
	case "", "i2c":
		if d.Address == 0 {
			d.Address = DefaultAddress
		}
		d.bus, err = openI2C(d.BusNo, d.Address)
	case "spi":
		speed := d.Speed
		if speed == 0 {
			speed = defaultSpiSpeed
		}
		d.bus, err = openSPI(d.Channel, speed)
	default:
		err = errors.Errorf("unknown bus type: %s", d.Bus)
	}
	if err != nil {
		return
	}

	err = d.bus.WriteReg(RegSoftReset, ResetCmd)
	if err != nil {
		d.lastCode = CodeComFail
		return errors.Wrap(err, "soft reset failed")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(resetPeriod):
	}

	var chip [1]byte
	err = d.bus.ReadReg(RegChipId, chip[:])
	if err != nil {
		d.lastCode = CodeComFail
		return errors.Wrap(err, "failed to read chip id")
	}
	if chip[0] != ChipId {
		d.lastCode = CodeDevNotFound
		return errors.Errorf("unexpected chip id %#02x (want %#02x)", chip[0], ChipId)
	}

	var variant [1]byte
	err = d.bus.ReadReg(RegVariantId, variant[:])
	if err != nil {
		d.lastCode = CodeComFail
		return errors.Wrap(err, "failed to read variant id")
	}
	d.variant = variant[0]

	err = d.readCalibration()
	if err != nil {
		d.lastCode = CodeComFail
		return
	}

	err = d.readUniqueId()
	if err != nil {
		d.lastCode = CodeComFail
		return
	}

	if d.Temperature == Skipped {
		d.Temperature = Sampling2X
	}
	if d.Pressure == Skipped {
		d.Pressure = Sampling16X
	}
	if d.Humidity == Skipped {
		d.Humidity = Sampling1X
	}

	err = d.bus.WriteReg(RegCtrlHum, byte(d.Humidity))
	if err == nil {
		err = d.bus.WriteReg(RegConfig, byte(d.Filter)<<2)
	}
	if err == nil {
		err = d.bus.WriteReg(RegCtrlMeas, byte(d.Temperature)<<5|byte(d.Pressure)<<2)
	}
	if err != nil {
		d.lastCode = CodeComFail
		return errors.Wrap(err, "failed to write measurement config")
	}

	d.mode = Sleep
	d.lastCode = CodeOk
	d.ready = true
	return nil
}

func (d *Device) readCalibration() error {
	coeff1 := make([]byte, Coeff1Len)
	coeff2 := make([]byte, Coeff2Len)
	coeff3 := make([]byte, Coeff3Len)

	err := d.bus.ReadReg(RegCoeff1, coeff1)
	if err == nil {
		err = d.bus.ReadReg(RegCoeff2, coeff2)
	}
	if err == nil {
		err = d.bus.ReadReg(RegCoeff3, coeff3)
	}
	if err != nil {
		return errors.Wrap(err, "failed to read calibration coefficients")
	}

	d.cali = parseCalibration(coeff1, coeff2, coeff3)
	return nil
}

// readUniqueId assembles the factory serial the same way the Bosch firmware
// does, so ids printed by this gateway match ids recorded elsewhere.
func (d *Device) readUniqueId() error {
	var uid [4]byte
	err := d.bus.ReadReg(RegUniqueId, uid[:])
	if err != nil {
		return errors.Wrap(err, "failed to read unique id")
	}

	base := (uint32(uid[3]) | uint32(uid[2])<<8) & 0x7FFF
	d.uniqueId = base<<16 | uint32(uid[1])<<8 | uint32(uid[0])
	return nil
}

func (d *Device) Close() error {
	d.ready = false
	if d.bus == nil {
		return nil
	}

	d.setMode(Sleep)
	return d.bus.Close()
}

func (d *Device) IsReady() bool {
	return d.ready
}

func (d *Device) Name() string {
	return deviceName
}

func (d *Device) GetUniqueId() uint32 {
	return d.uniqueId
}

func (d *Device) StatusCode() int8 {
	return d.lastCode
}

func (d *Device) CheckHealth() (drivers.Health, string) {
	return drivers.HealthFromCode(d.lastCode), codeMessage(d.lastCode)
}

func (d *Device) SetAmbientTemperature(celsius float64) {
	d.ambient = int32(celsius)
	d.ambientSet = true
}

func (d *Device) ambientTemp() int32 {
	if !d.ambientSet {
		return defaultAmbient
	}

	return d.ambient
}

func (d *Device) MeasureDuration() time.Duration {
	return measureDuration(d.Temperature, d.Pressure, d.Humidity, Parallel)
}

func (d *Device) setMode(mode Mode) error {
	var ctrl [1]byte
	err := d.bus.ReadReg(RegCtrlMeas, ctrl[:])
	if err != nil {
		d.lastCode = CodeComFail
		return errors.Wrap(err, "failed to read ctrl_meas")
	}

	err = d.bus.WriteReg(RegCtrlMeas, ctrl[0]&^maskMode | byte(mode))
	if err != nil {
		d.lastCode = CodeComFail
		return errors.Wrap(err, "failed to write ctrl_meas")
	}

	d.mode = mode
	return nil
}

// SetHeaterProfile writes the heater set points and timings and starts the
// parallel measurement sequence. The shared heater-on time is whatever the
// measure period leaves after the TPH conversion.
func (d *Device) SetHeaterProfile(profile drivers.HeaterProfile) (err error) {
	if !d.ready {
		return errors.New("bme68x not set up")
	}
	err = profile.Validate()
	if err != nil {
		return errors.Wrap(err, "rejecting heater profile")
	}

	err = d.setMode(Sleep)
	if err != nil {
		return
	}

	resHeat := make([]byte, profile.Len())
	gasWait := make([]byte, profile.Len())
	for ix, target := range profile.Temperatures {
		resHeat[ix] = d.cali.resHeat(target, d.ambientTemp())
		gasWait[ix] = uint8(profile.Multipliers[ix])
	}

	err = d.bus.WriteReg(RegResHeat0, resHeat...)
	if err == nil {
		err = d.bus.WriteReg(RegGasWait0, gasWait...)
	}
	if err == nil {
		shared := drivers.SharedHeaterDuration(d.MeasureDuration())
		err = d.bus.WriteReg(RegGasWaitShd, encodeSharedDuration(shared))
	}
	if err == nil {
		runGas := runGasLow
		if d.variant == VariantGasHigh {
			runGas = runGasHigh
		}
		err = d.bus.WriteReg(RegCtrlGas1, byte(profile.Len())&maskNbConv | runGas)
	}
	if err != nil {
		d.lastCode = CodeComFail
		return errors.Wrap(err, "failed to write heater profile")
	}

	d.profile = profile
	return d.setMode(Parallel)
}

// Fetch reads all three data fields and returns the ones holding fresh
// measurements, oldest first. An empty result just means the current
// conversion has not finished yet.
func (d *Device) Fetch() ([]drivers.Reading, error) {
	if !d.ready {
		return nil, errors.New("bme68x not set up")
	}

	type fieldData struct {
		sub     uint8
		reading drivers.Reading
	}

	found := make([]fieldData, 0, FieldNum)
	buf := make([]byte, FieldLen)
	for field := 0; field < FieldNum; field++ {
		err := d.bus.ReadReg(RegField0+byte(field*FieldLen), buf)
		if err != nil {
			d.lastCode = CodeComFail
			return nil, errors.Wrapf(err, "failed to read data field %d", field)
		}
		if buf[0]&maskNewData == 0 {
			continue
		}

		found = append(found, fieldData{sub: buf[1], reading: d.parseField(buf)})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].sub < found[j].sub })

	readings := make([]drivers.Reading, 0, len(found))
	for _, f := range found {
		readings = append(readings, f.reading)
	}

	return readings, nil
}

func (d *Device) parseField(buf []byte) drivers.Reading {
	adcPres := int32(buf[2])<<12 | int32(buf[3])<<4 | int32(buf[4])>>4
	adcTemp := int32(buf[5])<<12 | int32(buf[6])<<4 | int32(buf[7])>>4
	adcHum := int32(buf[8])<<8 | int32(buf[9])

	var gasOhm uint32
	var gasFlags byte
	if d.variant == VariantGasHigh {
		adcGas := uint16(buf[15])<<2 | uint16(buf[16])>>6
		gasFlags = buf[16] & (maskGasValid | maskHeatStab)
		gasOhm = d.cali.gasResistanceHigh(adcGas, buf[16]&maskGasRange)
	} else {
		adcGas := uint16(buf[13])<<2 | uint16(buf[14])>>6
		gasFlags = buf[14] & (maskGasValid | maskHeatStab)
		gasOhm = d.cali.gasResistanceLow(adcGas, buf[14]&maskGasRange)
	}

	tfine := d.cali.tfine(adcTemp)

	return drivers.Reading{
		Temperature:   float64(d.cali.temperature(tfine)) / 100,
		Pressure:      float64(d.cali.pressure(tfine, adcPres)),
		Humidity:      float64(d.cali.humidity(tfine, adcHum)) / 1000,
		GasResistance: float64(gasOhm),
		Flags:         buf[0]&maskNewData | gasFlags,
		GasIndex:      buf[0] & maskGasIndex,
	}
}

func codeMessage(code int8) string {
	switch code {
	case CodeOk:
		return "ok"
	case CodeComFail:
		return "communication failure"
	case CodeDevNotFound:
		return "device not found"
	case CodeInvalidLen:
		return "invalid register length"
	case CodeSelfTest:
		return "self test failed"
	case CodeDefOpMode:
		return "operating mode not set"
	case CodeNoNewData:
		return "no new data"
	}

	return fmt.Sprintf("diagnostic code %d", code)
}
