package drivers

import (
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const wireSystemPath = "/sys/bus/w1/devices"
const wireSensorPrefix = "28-"

// WireAmbient reads a DS18B20 thermometer on the 1-Wire bus. The gateway uses
// it as the ambient reference for heater set point calculation, since the gas
// scanner's own temperature channel runs warm next to an active heater plate.
type WireAmbient struct {
	// Id is the sensor serial, decimal or 0x-prefixed hex. Leave empty to
	// pick the only sensor present on the bus.
	Id string `json:"id,omitempty"`

	root  string
	path  string
	ready bool
}

func (wa *WireAmbient) Setup() (err error) {
	if len(wa.root) == 0 {
		wa.root = wireSystemPath
	}

	var folder string
	if len(wa.Id) > 0 {
		folder, err = wa.folderFromId()
		if err != nil {
			return
		}
	} else {
		folder, err = wa.discover()
		if err != nil {
			return
		}
	}
	wa.path = path.Join(wa.root, folder, "temperature")

	_, err = wa.Read()
	if err != nil {
		return errors.Wrap(err, "wire ambient probe read failed")
	}

	wa.ready = true
	return
}

func (wa *WireAmbient) folderFromId() (string, error) {
	stringId := strings.ToLower(wa.Id)
	intBase := 10
	if strings.HasPrefix(stringId, "0x") {
		stringId = strings.TrimPrefix(stringId, "0x")
		intBase = 16
	}
	numId, err := strconv.ParseInt(stringId, intBase, 64)
	if err != nil {
		return "", errors.Wrapf(err, "failed to convert wire sensor id %s to int", wa.Id)
	}

	return fmt.Sprintf("%s%012x", wireSensorPrefix, numId), nil
}

func (wa *WireAmbient) discover() (string, error) {
	entries, err := os.ReadDir(wa.root)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read 1-wire device dir (%s)", wa.root)
	}

	matches := []string{}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), wireSensorPrefix) {
			matches = append(matches, entry.Name())
		}
	}
	if len(matches) == 0 {
		return "", errors.Errorf("no %s* sensors found in %s", wireSensorPrefix, wa.root)
	}
	if len(matches) > 1 {
		return "", errors.Errorf("found %d wire sensors, set id to pick one", len(matches))
	}

	return matches[0], nil
}

func (wa *WireAmbient) Read() (celsius float64, err error) {
	raw, err := os.ReadFile(wa.path)
	if err != nil {
		err = errors.Wrapf(err, "failed reading wire sensor file %s", wa.path)
		return
	}

	milli, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 32)
	if err != nil {
		err = errors.Wrapf(err, "failed converting wire sensor reading to milli celsius")
		return
	}
	if milli < -55000 || milli > 125000 {
		err = errors.Errorf("wire sensor reading out of range: %d m°C", milli)
		return
	}

	celsius = float64(milli) / 1000
	return
}

func (wa *WireAmbient) IsReady() bool {
	return wa.ready
}

func (wa *WireAmbient) Name() string {
	return "wire"
}

func (wa *WireAmbient) Close() error {
	return nil
}
