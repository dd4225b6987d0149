package stream

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/hubertat/gaskit/drivers"
)

// The configuration handshake runs once after boot. The host announces how
// many heater steps follow, then sends one "temperature,multiplier" line per
// step; the gateway validates each line and echoes it back with the step
// index appended. A line that does not parse fails the whole handshake, there
// is no silent skipping.

// ReceiveProfile is the gateway side of the handshake.
func ReceiveProfile(ctx context.Context, link *Link) (profile drivers.HeaterProfile, err error) {
	countLine, err := link.ReadLine(ctx)
	if err != nil {
		err = errors.Wrap(err, "handshake failed reading step count")
		return
	}

	count, err := strconv.Atoi(strings.TrimSpace(countLine))
	if err != nil {
		err = errors.Wrapf(err, "handshake step count %q is not a number", countLine)
		return
	}
	if count < 1 || count > drivers.MaxHeaterSteps {
		err = errors.Errorf("handshake step count %d out of range (1..%d)", count, drivers.MaxHeaterSteps)
		return
	}

	err = link.WriteLine(strconv.Itoa(count))
	if err != nil {
		err = errors.Wrap(err, "handshake failed echoing step count")
		return
	}

	for ix := 0; ix < count; ix++ {
		var line string
		line, err = link.ReadLine(ctx)
		if err != nil {
			err = errors.Wrapf(err, "handshake failed reading step %d", ix)
			return
		}

		var temp, mult uint16
		temp, mult, err = parseStep(line)
		if err != nil {
			err = errors.Wrapf(err, "handshake step %d", ix)
			return
		}

		err = link.WriteLine(fmt.Sprintf("%d,%d,%d", temp, mult, ix))
		if err != nil {
			err = errors.Wrapf(err, "handshake failed echoing step %d", ix)
			return
		}

		profile.Temperatures = append(profile.Temperatures, temp)
		profile.Multipliers = append(profile.Multipliers, mult)
	}

	return
}

func parseStep(line string) (temp, mult uint16, err error) {
	fields := strings.Split(line, ",")
	if len(fields) != 2 {
		err = errors.Errorf("malformed step line %q (want temperature,multiplier)", line)
		return
	}

	temp64, err := strconv.ParseUint(strings.TrimSpace(fields[0]), 10, 16)
	if err != nil {
		err = errors.Wrapf(err, "bad temperature in step line %q", line)
		return
	}
	mult64, err := strconv.ParseUint(strings.TrimSpace(fields[1]), 10, 16)
	if err != nil {
		err = errors.Wrapf(err, "bad multiplier in step line %q", line)
		return
	}

	if temp64 > drivers.MaxHeaterTemperature {
		err = errors.Errorf("step temperature %d out of range (max %d)", temp64, drivers.MaxHeaterTemperature)
		return
	}
	if mult64 < 1 || mult64 > drivers.MaxHeaterMultiplier {
		err = errors.Errorf("step multiplier %d out of range (1..%d)", mult64, drivers.MaxHeaterMultiplier)
		return
	}

	temp = uint16(temp64)
	mult = uint16(mult64)
	return
}

// SendProfile is the host side of the handshake. Every echoed step is checked
// against what was sent, so a desynchronized or lossy link surfaces here
// instead of corrupting the heater configuration.
func SendProfile(ctx context.Context, link *Link, profile drivers.HeaterProfile) error {
	err := profile.Validate()
	if err != nil {
		return errors.Wrap(err, "refusing to send heater profile")
	}

	err = link.WriteLine(strconv.Itoa(profile.Len()))
	if err != nil {
		return errors.Wrap(err, "handshake failed sending step count")
	}
	countEcho, err := link.ReadLine(ctx)
	if err != nil {
		return errors.Wrap(err, "handshake failed reading step count echo")
	}
	if countEcho != strconv.Itoa(profile.Len()) {
		return errors.Errorf("handshake count echo mismatch: got %q want %q", countEcho, strconv.Itoa(profile.Len()))
	}

	for ix := range profile.Temperatures {
		temp := profile.Temperatures[ix]
		mult := profile.Multipliers[ix]

		err = link.WriteLine(fmt.Sprintf("%d,%d", temp, mult))
		if err != nil {
			return errors.Wrapf(err, "handshake failed sending step %d", ix)
		}

		echo, err := link.ReadLine(ctx)
		if err != nil {
			return errors.Wrapf(err, "handshake failed reading echo for step %d", ix)
		}
		want := fmt.Sprintf("%d,%d,%d", temp, mult, ix)
		if echo != want {
			return errors.Errorf("handshake echo mismatch: got %q want %q", echo, want)
		}
	}

	return nil
}
