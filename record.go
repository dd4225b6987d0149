package gaskit

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const recordFieldCount = 9

// Record is one complete gas scanner measurement as it travels over the
// stream link. The JSON keys match the raw data column keys of BME AI-Studio,
// so broker payloads line up with recorded session files.
type Record struct {
	SensorIndex   int     `json:"sensor_index"`
	SensorId      uint32  `json:"sensor_id"`
	Millis        int64   `json:"timestamp_since_poweron"`
	Temperature   float64 `json:"temperature"`
	Pressure      float64 `json:"pressure"`
	Humidity      float64 `json:"relative_humidity"`
	GasResistance float64 `json:"resistance_gassensor"`
	StatusCode    int8    `json:"error_code"`
	GasIndex      uint8   `json:"heater_profile_step_index"`
}

// Line renders the record in stream order: sensor index, sensor id,
// milliseconds since power-on, temperature, pressure, humidity, gas
// resistance, status code and heater step index. Floats carry two decimals.
func (r Record) Line() string {
	return fmt.Sprintf("%d,%d,%d,%.2f,%.2f,%.2f,%.2f,%d,%d",
		r.SensorIndex, r.SensorId, r.Millis,
		r.Temperature, r.Pressure, r.Humidity, r.GasResistance,
		r.StatusCode, r.GasIndex)
}

// ParseLine is the inverse of Line, used on the host side when ingesting the
// stream.
func ParseLine(line string) (r Record, err error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != recordFieldCount {
		err = errors.Errorf("record line has %d fields, want %d: %q", len(fields), recordFieldCount, line)
		return
	}

	r.SensorIndex, err = strconv.Atoi(fields[0])
	if err != nil {
		err = errors.Wrapf(err, "bad sensor index in record %q", line)
		return
	}

	id, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		err = errors.Wrapf(err, "bad sensor id in record %q", line)
		return
	}
	r.SensorId = uint32(id)

	r.Millis, err = strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		err = errors.Wrapf(err, "bad timestamp in record %q", line)
		return
	}

	floats := []*float64{&r.Temperature, &r.Pressure, &r.Humidity, &r.GasResistance}
	for ix, target := range floats {
		*target, err = strconv.ParseFloat(fields[3+ix], 64)
		if err != nil {
			err = errors.Wrapf(err, "bad value in field %d of record %q", 3+ix, line)
			return
		}
	}

	code, err := strconv.ParseInt(fields[7], 10, 8)
	if err != nil {
		err = errors.Wrapf(err, "bad status code in record %q", line)
		return
	}
	r.StatusCode = int8(code)

	gasIndex, err := strconv.ParseUint(fields[8], 10, 8)
	if err != nil {
		err = errors.Wrapf(err, "bad heater step index in record %q", line)
		return
	}
	r.GasIndex = uint8(gasIndex)

	return
}
