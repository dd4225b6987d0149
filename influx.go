package gaskit

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/pkg/errors"
)

const defaultInfluxMeasurement = "gas_scan"
const influxWriteTimeout = 3 * time.Second

// InfluxSink pushes every emitted record into an InfluxDB v2 bucket, one
// point per record, tagged with the sensor name and chip id.
type InfluxSink struct {
	Host         string
	Organization string
	Bucket       string
	Measurement  string
	Token        string

	client   influxdb2.Client
	writeApi api.WriteAPIBlocking
	ready    bool
}

func (is *InfluxSink) Setup(ctx context.Context) error {
	if len(is.Host) == 0 {
		return errors.New("influx host not set")
	}
	if len(is.Measurement) == 0 {
		is.Measurement = defaultInfluxMeasurement
	}

	is.client = influxdb2.NewClient(is.Host, is.Token)
	ok, err := is.client.Ping(ctx)
	if err != nil {
		is.client.Close()
		return errors.Wrapf(err, "influx ping to %s failed", is.Host)
	}
	if !ok {
		is.client.Close()
		return errors.Errorf("influx at %s did not answer ping", is.Host)
	}

	is.writeApi = is.client.WriteAPIBlocking(is.Organization, is.Bucket)
	is.ready = true
	return nil
}

func (is *InfluxSink) IsReady() bool {
	return is.ready
}

func (is *InfluxSink) Write(sensorName string, rec Record) error {
	if !is.ready {
		return errors.New("influx sink not ready")
	}

	point := influxdb2.NewPoint(is.Measurement,
		map[string]string{
			"sensor":    sensorName,
			"sensor_id": uniqueIdString(rec.SensorId),
		},
		map[string]interface{}{
			"temperature":          rec.Temperature,
			"pressure":             rec.Pressure,
			"relative_humidity":    rec.Humidity,
			"resistance_gassensor": rec.GasResistance,
			"heater_step":          int64(rec.GasIndex),
		},
		time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), influxWriteTimeout)
	defer cancel()

	return is.writeApi.WritePoint(ctx, point)
}

func (is *InfluxSink) Close() {
	if is.client != nil {
		is.client.Close()
	}
	is.ready = false
}
