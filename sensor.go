package gaskit

import (
	"fmt"
	"sync"
	"time"

	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"
	"github.com/pkg/errors"

	"github.com/hubertat/gaskit/drivers"
	"github.com/hubertat/gaskit/drivers/bme68x"
)

// Sensor binds one configured gas scanner to everything that hangs off it.
// The poll loop is the only writer; HomeKit, the HTTP API and the export
// sinks read the cached last record instead of touching the device.
type Sensor struct {
	Name string

	Bme68x *bme68x.Device
	Sim    *drivers.SimDevice

	DisableHomeKit bool

	index  int
	device drivers.Device
	failed bool

	mx       sync.Mutex
	last     Record
	lastSeen time.Time

	hkAccessory *accessory.A
	hkTemp      *service.TemperatureSensor
	hkHum       *service.HumiditySensor
	hkAir       *service.AirQualitySensor
	hkFault     *characteristic.StatusFault
}

func (s *Sensor) Init(index int) error {
	s.index = index
	if len(s.Name) == 0 {
		s.Name = fmt.Sprintf("sensor-%d", index)
	}

	switch {
	case s.Bme68x != nil && s.Sim != nil:
		return errors.Errorf("sensor %s: both bme68x and sim configured", s.Name)
	case s.Bme68x != nil:
		s.device = s.Bme68x
	case s.Sim != nil:
		s.device = s.Sim
	default:
		return errors.Errorf("sensor %s has no device configured", s.Name)
	}

	return nil
}

func (s *Sensor) Device() drivers.Device {
	return s.device
}

func (s *Sensor) Index() int {
	return s.index
}

func (s *Sensor) initHomeKit() {
	if s.DisableHomeKit {
		return
	}

	info := accessory.Info{
		Name:         s.Name,
		SerialNumber: fmt.Sprintf("%s:%08x", s.device.Name(), s.device.GetUniqueId()),
	}

	s.hkAccessory = accessory.New(info, accessory.TypeSensor)
	s.hkTemp = service.NewTemperatureSensor()
	s.hkHum = service.NewHumiditySensor()
	s.hkAir = service.NewAirQualitySensor()
	s.hkFault = characteristic.NewStatusFault()
	s.hkFault.SetValue(characteristic.StatusFaultGeneralFault)
	s.hkAir.AddC(s.hkFault.C)

	s.hkAccessory.AddS(s.hkTemp.S)
	s.hkAccessory.AddS(s.hkHum.S)
	s.hkAccessory.AddS(s.hkAir.S)
}

func (s *Sensor) GetHk() *accessory.A {
	return s.hkAccessory
}

func (s *Sensor) GetUniqueId() uint64 {
	return uint64(s.device.GetUniqueId())
}

// store caches the record and refreshes the HomeKit characteristics.
func (s *Sensor) store(rec Record) {
	s.mx.Lock()
	s.last = rec
	s.lastSeen = time.Now()
	s.mx.Unlock()

	if s.hkAccessory == nil {
		return
	}
	s.hkTemp.CurrentTemperature.SetValue(rec.Temperature)
	s.hkHum.CurrentRelativeHumidity.SetValue(rec.Humidity)
	s.hkAir.AirQuality.SetValue(airQualityFromGas(rec.GasResistance))
	s.hkFault.SetValue(characteristic.StatusFaultNoFault)
}

// Last returns the most recent record, its arrival time, and whether any
// record arrived at all.
func (s *Sensor) Last() (Record, time.Time, bool) {
	s.mx.Lock()
	defer s.mx.Unlock()

	return s.last, s.lastSeen, !s.lastSeen.IsZero()
}

func (s *Sensor) markFault() {
	s.failed = true
	if s.hkFault != nil {
		s.hkFault.SetValue(characteristic.StatusFaultGeneralFault)
	}
}

func (s *Sensor) Failed() bool {
	return s.failed
}

// airQualityFromGas maps gas resistance onto the five HomeKit air quality
// levels. Cleaner air leaves more oxygen on the sensing plate, so higher
// resistance means better air. Break points follow the common hobbyist
// interpretation of the sensor output, not a calibrated index.
func airQualityFromGas(ohm float64) int {
	switch {
	case ohm >= 100000:
		return characteristic.AirQualityExcellent
	case ohm >= 50000:
		return characteristic.AirQualityGood
	case ohm >= 20000:
		return characteristic.AirQualityFair
	case ohm >= 10000:
		return characteristic.AirQualityInferior
	case ohm > 0:
		return characteristic.AirQualityPoor
	}

	return characteristic.AirQualityUnknown
}
