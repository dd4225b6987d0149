package drivers

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"
)

const simDefaultId = 0xABCDEF00

// SimDevice mimics a gas scanner without hardware attached. Batches queued on
// Pending are served first, one per Fetch; with Generate set the device then
// synthesizes one complete record per heater step, walking the profile the
// way the parallel measurement sequence would.
type SimDevice struct {
	Id       uint32 `json:"id,omitempty"`
	Seed     int64  `json:"seed,omitempty"`
	Generate bool   `json:"generate,omitempty"`

	Pending [][]Reading `json:"-"`
	Code    int8        `json:"-"`

	profile HeaterProfile
	ambient float64
	step    int
	rnd     *rand.Rand
	ready   bool
}

func (sd *SimDevice) Setup(ctx context.Context) error {
	if sd.Id == 0 {
		sd.Id = simDefaultId
	}

	seed := sd.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	sd.rnd = rand.New(rand.NewSource(seed))
	sd.ambient = 22
	sd.ready = true

	return nil
}

func (sd *SimDevice) Close() error {
	sd.ready = false
	return nil
}

func (sd *SimDevice) IsReady() bool {
	return sd.ready
}

func (sd *SimDevice) Name() string {
	return "sim"
}

func (sd *SimDevice) GetUniqueId() uint32 {
	return sd.Id
}

func (sd *SimDevice) SetHeaterProfile(profile HeaterProfile) error {
	err := profile.Validate()
	if err != nil {
		return errors.Wrap(err, "rejecting heater profile")
	}

	sd.profile = profile
	sd.step = 0
	return nil
}

func (sd *SimDevice) MeasureDuration() time.Duration {
	return 42 * time.Millisecond
}

func (sd *SimDevice) SetAmbientTemperature(celsius float64) {
	sd.ambient = celsius
}

func (sd *SimDevice) Fetch() ([]Reading, error) {
	if !sd.ready {
		return nil, errors.New("sim device not set up")
	}

	if len(sd.Pending) > 0 {
		batch := sd.Pending[0]
		sd.Pending = sd.Pending[1:]
		return batch, nil
	}

	if !sd.Generate || sd.profile.Len() == 0 {
		return nil, nil
	}

	// hotter steps burn off more, so resistance rises with the set point
	target := float64(sd.profile.Temperatures[sd.step])
	reading := Reading{
		Temperature:   sd.ambient + sd.rnd.Float64(),
		Pressure:      100600 + sd.rnd.Float64()*120,
		Humidity:      40 + sd.rnd.Float64()*6,
		GasResistance: target*150 + sd.rnd.Float64()*4000,
		Flags:         FlagsGasComplete,
		GasIndex:      uint8(sd.step),
	}
	sd.step = (sd.step + 1) % sd.profile.Len()

	return []Reading{reading}, nil
}

func (sd *SimDevice) CheckHealth() (Health, string) {
	health := HealthFromCode(sd.Code)
	if health == HealthOk {
		return health, "ok"
	}

	return health, "simulated fault"
}

func (sd *SimDevice) StatusCode() int8 {
	return sd.Code
}
