// Package aistudio reads BME AI-Studio configuration files and writes raw
// data archives in the format the studio imports, so recorded sessions can go
// straight into model training.
package aistudio

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/hubertat/gaskit/drivers"
)

const ConfigExtension = ".bmeconfig"
const RawDataExtension = ".bmerawdata"

// Config is a parsed .bmeconfig document. The raw bytes are kept around
// because the raw data archive embeds the original configuration untouched.
type Config struct {
	Body ConfigBody `json:"configBody"`

	raw json.RawMessage
}

type ConfigBody struct {
	HeaterProfiles       []HeaterProfileConfig `json:"heaterProfiles"`
	SensorConfigurations []SensorConfiguration `json:"sensorConfigurations"`
}

type HeaterProfileConfig struct {
	Id string `json:"id"`
	// TimeBase is the heater step unit in milliseconds.
	TimeBase int `json:"timeBase"`
	// TemperatureTimeVectors pairs a set point in degrees Celsius with a
	// multiplier of the time base, one entry per heater step.
	TemperatureTimeVectors [][]int `json:"temperatureTimeVectors"`
}

type SensorConfiguration struct {
	SensorIndex      int    `json:"sensorIndex"`
	HeaterProfile    string `json:"heaterProfile"`
	DutyCycleProfile string `json:"dutyCycleProfile"`
}

func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	err := json.Unmarshal(data, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse bmeconfig")
	}

	cfg.raw = append(json.RawMessage{}, data...)
	return cfg, nil
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}

	return ParseConfig(data)
}

// FindConfig locates the single .bmeconfig file in dir. More than one config
// is an error, there is no way to tell which one the session should use.
func FindConfig(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+ConfigExtension))
	if err != nil {
		return "", errors.Wrap(err, "failed to glob for config files")
	}

	switch len(matches) {
	case 0:
		return "", errors.Errorf("no %s file found in %s", ConfigExtension, dir)
	case 1:
		return matches[0], nil
	}

	return "", errors.Errorf("found %d config files in %s, expected exactly one", len(matches), dir)
}

// SelectHeaterProfile resolves the heater profile of the single configured
// sensor. Configurations with several sensors are rejected, the stream
// handshake carries one profile only.
func (c *Config) SelectHeaterProfile() (profile drivers.HeaterProfile, timeBase int, err error) {
	if len(c.Body.SensorConfigurations) != 1 {
		err = errors.Errorf("config has %d sensor configurations, expected exactly one", len(c.Body.SensorConfigurations))
		return
	}

	wantId := c.Body.SensorConfigurations[0].HeaterProfile
	for _, hp := range c.Body.HeaterProfiles {
		if hp.Id != wantId {
			continue
		}

		timeBase = hp.TimeBase
		for ix, vector := range hp.TemperatureTimeVectors {
			if len(vector) < 2 {
				err = errors.Errorf("heater profile %s: vector %d too short", wantId, ix)
				return
			}
			if vector[0] < 0 || vector[0] > drivers.MaxHeaterTemperature {
				err = errors.Errorf("heater profile %s: temperature %d out of range", wantId, vector[0])
				return
			}
			if vector[1] < 1 || vector[1] > drivers.MaxHeaterMultiplier {
				err = errors.Errorf("heater profile %s: multiplier %d out of range", wantId, vector[1])
				return
			}
			profile.Temperatures = append(profile.Temperatures, uint16(vector[0]))
			profile.Multipliers = append(profile.Multipliers, uint16(vector[1]))
		}

		err = errors.Wrapf(profile.Validate(), "heater profile %s", wantId)
		return
	}

	err = errors.Errorf("heater profile %s not found in config", wantId)
	return
}
