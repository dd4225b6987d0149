package drivers

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

const (
	FlagNewData  byte = 0x80
	FlagGasValid byte = 0x20
	FlagHeatStab byte = 0x10

	FlagsGasComplete = FlagNewData | FlagGasValid | FlagHeatStab
)

const (
	MaxHeaterSteps       = 10
	MaxHeaterTemperature = 400
	MaxHeaterMultiplier  = 255

	MeasurePeriod = 140 * time.Millisecond
)

type Device interface {
	Setup(ctx context.Context) error
	Close() error
	IsReady() bool
	Name() string
	GetUniqueId() uint32
	SetHeaterProfile(profile HeaterProfile) error
	MeasureDuration() time.Duration
	Fetch() ([]Reading, error)
	CheckHealth() (Health, string)
	StatusCode() int8
}

type AmbientAware interface {
	SetAmbientTemperature(celsius float64)
}

type Reading struct {
	Temperature   float64
	Pressure      float64
	Humidity      float64
	GasResistance float64
	Flags         byte
	GasIndex      uint8
}

// GasComplete reports whether the reading carries a finished gas scan step:
// new data with a valid gas measurement taken at a stable heater temperature.
// Any other flag combination means the step is not usable.
func (r Reading) GasComplete() bool {
	return r.Flags == FlagsGasComplete
}

type Health int

const (
	HealthOk Health = iota
	HealthWarning
	HealthError
)

func (h Health) String() string {
	switch h {
	case HealthOk:
		return "ok"
	case HealthWarning:
		return "warning"
	default:
		return "error"
	}
}

func HealthFromCode(code int8) Health {
	switch {
	case code == 0:
		return HealthOk
	case code > 0:
		return HealthWarning
	default:
		return HealthError
	}
}

// HeaterProfile holds the gas scanner heater steps: target temperatures in
// degrees Celsius paired with time multipliers of the shared step duration.
type HeaterProfile struct {
	Temperatures []uint16
	Multipliers  []uint16
}

func DefaultHeaterProfile() HeaterProfile {
	return HeaterProfile{
		Temperatures: []uint16{320, 100, 100, 100, 200, 200, 200, 320, 320, 320},
		Multipliers:  []uint16{5, 2, 10, 30, 5, 5, 5, 5, 5, 5},
	}
}

func (hp HeaterProfile) Len() int {
	return len(hp.Temperatures)
}

func (hp HeaterProfile) Validate() error {
	if len(hp.Temperatures) != len(hp.Multipliers) {
		return errors.Errorf("heater profile mismatch: %d temperatures, %d multipliers", len(hp.Temperatures), len(hp.Multipliers))
	}
	if len(hp.Temperatures) == 0 {
		return errors.New("heater profile is empty")
	}
	if len(hp.Temperatures) > MaxHeaterSteps {
		return errors.Errorf("heater profile too long: %d steps (max %d)", len(hp.Temperatures), MaxHeaterSteps)
	}
	for ix, temp := range hp.Temperatures {
		if temp > MaxHeaterTemperature {
			return errors.Errorf("heater step %d: temperature %d out of range (max %d)", ix, temp, MaxHeaterTemperature)
		}
		mult := hp.Multipliers[ix]
		if mult < 1 || mult > MaxHeaterMultiplier {
			return errors.Errorf("heater step %d: multiplier %d out of range (1..%d)", ix, mult, MaxHeaterMultiplier)
		}
	}

	return nil
}

func (hp HeaterProfile) Equal(other HeaterProfile) bool {
	if len(hp.Temperatures) != len(other.Temperatures) || len(hp.Multipliers) != len(other.Multipliers) {
		return false
	}
	for ix := range hp.Temperatures {
		if hp.Temperatures[ix] != other.Temperatures[ix] || hp.Multipliers[ix] != other.Multipliers[ix] {
			return false
		}
	}

	return true
}

// SharedHeaterDuration returns the portion of the measure period left for the
// heater after the TPH conversion, which parallel mode shares between steps.
func SharedHeaterDuration(measureDuration time.Duration) time.Duration {
	if measureDuration >= MeasurePeriod {
		return 0
	}

	return MeasurePeriod - measureDuration
}
