package gaskit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	dnslog "github.com/brutella/dnssd/log"
	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	hklog "github.com/brutella/hap/log"
	"github.com/pkg/errors"

	"github.com/hubertat/gaskit/drivers"
	"github.com/hubertat/gaskit/mqtt"
	"github.com/hubertat/gaskit/stream"
)

const defaultHomeKitDirectory = "./homekit"
const homeKitBridgeName = "gaskit"
const homeKitBridgeAuthor = "github.com/hubertat"

const defaultMqttTopic = "gaskit"
const haltBlinkInterval = 100 * time.Millisecond

// RunState tracks the controller lifecycle. The only transitions are
// Init -> Running -> Halted; a halted controller stays halted until the
// process is restarted.
type RunState int

const (
	StateInit RunState = iota
	StateRunning
	StateHalted
)

func (rs RunState) String() string {
	switch rs {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateHalted:
		return "halted"
	}

	return "unknown"
}

type GasKit struct {
	Name string

	Sensors []*Sensor

	// Port is the serial device the record stream goes out on. Empty means
	// stdin/stdout, which keeps a bench setup or a systemd pipe working
	// without extra configuration.
	Port     string
	BaudRate int

	// WaitProfile holds boot until the host pushes a heater profile over the
	// stream. Without it the Heater field applies, or the vendor default.
	WaitProfile bool
	Heater      *drivers.HeaterProfile

	// PollInterval overrides the measure period, as a time.ParseDuration
	// string. Leave empty in production: the heater timing is derived from
	// the default period, polling at another rate only shifts when fetches
	// happen.
	PollInterval string

	// IsolateFailures keeps the loop running on the remaining sensors when
	// one fails. Default is to halt on the first failure.
	IsolateFailures bool

	HkPin       string
	HkDirectory string
	HkAddress   string
	HkDebug     bool

	MqttBroker string
	MqttTopic  string

	Influx *InfluxSink
	Kafka  *KafkaSink

	Ambient   *drivers.WireAmbient
	StatusLed *drivers.StatusLed

	HttpListen string
	HttpToken  string

	link          *stream.Link
	mqttClient    *mqtt.MqttClient
	ticker        *time.Ticker
	started       time.Time
	httpServer    *http.Server
	httpServerErr chan error

	mx    sync.Mutex
	state RunState
}

// SetStream replaces the record stream, mainly for feeding the loop from a
// buffer or a pipe instead of a serial port.
func (gk *GasKit) SetStream(rw io.ReadWriter) {
	gk.link = stream.NewLink(rw)
}

type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

func (gk *GasKit) openStream() error {
	if gk.link != nil {
		return nil
	}

	if len(gk.Port) > 0 {
		port, err := stream.OpenPort(gk.Port, gk.BaudRate, stream.DefaultReadTimeout)
		if err != nil {
			return err
		}
		gk.link = stream.NewLink(port)
		return nil
	}

	gk.link = stream.NewLink(stdio{})
	return nil
}

// Init brings up the stream, the sensors and the heater configuration. After
// a successful Init the controller is ready for Run.
func (gk *GasKit) Init(ctx context.Context) error {
	if len(gk.Sensors) == 0 {
		return errors.New("no sensors configured")
	}

	err := gk.openStream()
	if err != nil {
		return err
	}

	for ix, sensor := range gk.Sensors {
		err = sensor.Init(ix)
		if err != nil {
			return errors.Wrapf(err, "failed to init sensor %d", ix)
		}
		err = sensor.Device().Setup(ctx)
		if err != nil {
			return errors.Wrapf(err, "failed to setup sensor %s", sensor.Name)
		}
		sensor.initHomeKit()
		log.Info("sensor ready", "sensor", sensor.Name, "device", sensor.Device().Name(), "id", uniqueIdString(sensor.Device().GetUniqueId()))
	}

	if gk.Ambient != nil {
		err = gk.Ambient.Setup()
		if err != nil {
			return errors.Wrap(err, "failed to setup ambient temperature sensor")
		}
		celsius, ambientErr := gk.Ambient.Read()
		if ambientErr != nil {
			log.Warn("ambient temperature read failed", "error", ambientErr)
		} else {
			log.Info("ambient temperature set", "celsius", celsius)
			for _, sensor := range gk.Sensors {
				if aware, ok := sensor.Device().(drivers.AmbientAware); ok {
					aware.SetAmbientTemperature(celsius)
				}
			}
		}
	}

	profile, err := gk.resolveProfile(ctx)
	if err != nil {
		return err
	}
	for _, sensor := range gk.Sensors {
		err = sensor.Device().SetHeaterProfile(profile)
		if err != nil {
			return errors.Wrapf(err, "failed to set heater profile on %s", sensor.Name)
		}
	}
	log.Info("heater profile applied", "steps", profile.Len())

	if gk.StatusLed != nil {
		err = gk.StatusLed.Setup()
		if err != nil {
			return errors.Wrap(err, "failed to setup status led")
		}
	}

	gk.started = time.Now()
	return nil
}

// resolveProfile picks the heater profile for this boot: the stream handshake
// when enabled, otherwise the configured profile, otherwise the vendor
// default. All sensors share the one profile, the handshake carries no sensor
// address.
func (gk *GasKit) resolveProfile(ctx context.Context) (profile drivers.HeaterProfile, err error) {
	if gk.WaitProfile {
		log.Info("waiting for heater profile handshake")
		profile, err = stream.ReceiveProfile(ctx, gk.link)
		if err != nil {
			err = errors.Wrap(err, "heater profile handshake failed")
		}
		return
	}

	if gk.Heater != nil {
		profile = *gk.Heater
		return
	}

	profile = drivers.DefaultHeaterProfile()
	return
}

// Run drives the measure loop until the context ends or a sensor failure
// halts the controller. A halted controller keeps blinking the status led
// and never returns on its own, mirroring a device waiting for power cycle.
func (gk *GasKit) Run(ctx context.Context) error {
	if len(gk.Sensors) == 0 {
		return errors.New("no sensors configured")
	}
	if gk.started.IsZero() {
		gk.started = time.Now()
	}

	period := gk.pollInterval()
	gk.setState(StateRunning)
	log.Info("starting measure loop", "period", period, "sensors", len(gk.Sensors))

	gk.ticker = time.NewTicker(period)
	defer gk.ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-gk.ticker.C:
			err := gk.pollCycle()
			if err != nil {
				log.Error("measure loop failed", "error", err)
				gk.halt(ctx)
				return err
			}
		}
	}
}

func (gk *GasKit) pollCycle() error {
	for _, sensor := range gk.Sensors {
		if sensor.Failed() {
			continue
		}

		err := gk.pollSensor(sensor)
		if err == nil {
			continue
		}

		sensor.markFault()
		log.Error("sensor failed", "sensor", sensor.Name, "error", err)

		if gk.IsolateFailures && !gk.allFailed() {
			log.Warn("isolating failed sensor, continuing with the rest", "sensor", sensor.Name)
			continue
		}

		return errors.Wrapf(err, "sensor %s failed", sensor.Name)
	}

	return nil
}

func (gk *GasKit) pollSensor(sensor *Sensor) error {
	device := sensor.Device()

	health, message := device.CheckHealth()
	switch health {
	case drivers.HealthError:
		return errors.Errorf("health check failed: %s", message)
	case drivers.HealthWarning:
		log.Warn("sensor health warning", "sensor", sensor.Name, "message", message)
	}

	readings, err := device.Fetch()
	if err != nil {
		return errors.Wrap(err, "fetch failed")
	}

	for _, reading := range readings {
		if !reading.GasComplete() {
			continue
		}

		rec := Record{
			SensorIndex:   sensor.Index(),
			SensorId:      device.GetUniqueId(),
			Millis:        gk.uptimeMillis(),
			Temperature:   reading.Temperature,
			Pressure:      reading.Pressure,
			Humidity:      reading.Humidity,
			GasResistance: reading.GasResistance,
			StatusCode:    device.StatusCode(),
			GasIndex:      reading.GasIndex,
		}

		err = gk.emit(sensor, rec)
		if err != nil {
			return err
		}
	}

	return nil
}

// emit writes the record to the stream first, then updates the cached state
// and hands copies to the export sinks. Sink failures are logged and dropped,
// only the stream is load bearing.
func (gk *GasKit) emit(sensor *Sensor, rec Record) error {
	err := gk.link.WriteLine(rec.Line())
	if err != nil {
		return errors.Wrap(err, "failed to write record to stream")
	}

	sensor.store(rec)
	gk.publish(sensor, rec)
	return nil
}

func (gk *GasKit) publish(sensor *Sensor, rec Record) {
	if gk.mqttClient == nil && gk.Influx == nil && gk.Kafka == nil {
		return
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		log.Warn("failed to marshal record", "error", err)
		return
	}

	if gk.mqttClient != nil {
		err = gk.mqttClient.Publish(gk.recordTopic(sensor), payload)
		if err != nil {
			log.Warn("mqtt publish failed", "sensor", sensor.Name, "error", err)
		}
	}

	if gk.Influx != nil && gk.Influx.IsReady() {
		err = gk.Influx.Write(sensor.Name, rec)
		if err != nil {
			log.Warn("influx write failed", "sensor", sensor.Name, "error", err)
		}
	}

	if gk.Kafka != nil && gk.Kafka.IsReady() {
		err = gk.Kafka.Write(sensor.Name, payload)
		if err != nil {
			log.Warn("kafka write failed", "sensor", sensor.Name, "error", err)
		}
	}
}

func (gk *GasKit) recordTopic(sensor *Sensor) string {
	topic := gk.MqttTopic
	if len(topic) == 0 {
		topic = defaultMqttTopic
	}

	return topic + "/" + sensor.Name
}

func (gk *GasKit) pollInterval() time.Duration {
	if len(gk.PollInterval) == 0 {
		return drivers.MeasurePeriod
	}

	parsed, err := time.ParseDuration(gk.PollInterval)
	if err != nil || parsed <= 0 {
		log.Warn("invalid poll interval, using default", "value", gk.PollInterval, "default", drivers.MeasurePeriod)
		return drivers.MeasurePeriod
	}

	return parsed
}

func (gk *GasKit) allFailed() bool {
	for _, sensor := range gk.Sensors {
		if !sensor.Failed() {
			return false
		}
	}

	return true
}

// halt parks the controller in the failed state and blinks the status led
// until the context ends.
func (gk *GasKit) halt(ctx context.Context) {
	gk.setState(StateHalted)
	log.Error("controller halted, restart required")

	if gk.StatusLed == nil || !gk.StatusLed.IsReady() {
		<-ctx.Done()
		return
	}

	blink := time.NewTicker(haltBlinkInterval)
	defer blink.Stop()

	for {
		select {
		case <-ctx.Done():
			gk.StatusLed.Set(false)
			return
		case <-blink.C:
			gk.StatusLed.Toggle()
		}
	}
}

func (gk *GasKit) State() RunState {
	gk.mx.Lock()
	defer gk.mx.Unlock()

	return gk.state
}

func (gk *GasKit) setState(state RunState) {
	gk.mx.Lock()
	gk.state = state
	gk.mx.Unlock()
}

func (gk *GasKit) uptimeMillis() int64 {
	return time.Since(gk.started).Milliseconds()
}

func (gk *GasKit) GetHkAccessories(firmwareVersion string) (acc []*accessory.A) {
	acc = []*accessory.A{}

	for _, sensor := range gk.Sensors {
		hkAcc := sensor.GetHk()
		if hkAcc != nil {
			if hkAcc.Info != nil && hkAcc.Info.FirmwareRevision != nil {
				hkAcc.Info.FirmwareRevision.SetValue(firmwareVersion)
			}
			hkAcc.Id = sensor.GetUniqueId()
			acc = append(acc, hkAcc)
		}
	}

	return
}

func appendClose(err, closeErr error) error {
	if closeErr == nil {
		return err
	}
	if err == nil {
		return closeErr
	}

	return errors.Wrap(err, closeErr.Error())
}

func (gk *GasKit) Close() (err error) {
	for _, sensor := range gk.Sensors {
		if sensor.Device() == nil {
			continue
		}
		err = appendClose(err, sensor.Device().Close())
	}

	if gk.Ambient != nil {
		err = appendClose(err, gk.Ambient.Close())
	}
	if gk.StatusLed != nil {
		err = appendClose(err, gk.StatusLed.Close())
	}
	if gk.mqttClient != nil {
		err = appendClose(err, gk.mqttClient.Close())
	}
	if gk.Influx != nil {
		gk.Influx.Close()
	}
	if gk.Kafka != nil {
		err = appendClose(err, gk.Kafka.Close())
	}
	if gk.httpServer != nil {
		err = appendClose(err, gk.httpServer.Close())
	}
	if gk.link != nil {
		err = appendClose(err, gk.link.Close())
	}

	return
}

func uniqueIdString(id uint32) string {
	return fmt.Sprintf("%08x", id)
}

func (gk *GasKit) PrintSensorStatus(writer io.Writer) {
	fmt.Fprintln(writer)
	fmt.Fprintln(writer, "=== configured sensors ===")
	for _, sensor := range gk.Sensors {
		fmt.Fprintln(writer, "________")
		fmt.Fprintf(writer, "| sensor: %s (index %d)\n", sensor.Name, sensor.Index())
		device := sensor.Device()
		if device == nil {
			fmt.Fprintln(writer, "| device: not initialized")
			fmt.Fprintln(writer, "--------")
			continue
		}
		fmt.Fprintf(writer, "| device: %s id %08x ready %v\n", device.Name(), device.GetUniqueId(), device.IsReady())
		health, message := device.CheckHealth()
		fmt.Fprintf(writer, "| health: %s %s\n", health, message)
		rec, seen, ok := sensor.Last()
		if ok {
			fmt.Fprintf(writer, "| last record: %s (%s)\n", rec.Line(), seen.Format(time.RFC3339))
		} else {
			fmt.Fprintln(writer, "| last record: none")
		}
		fmt.Fprintln(writer, "--------")
	}
	fmt.Fprintln(writer, "-----------------------------")
	fmt.Fprintln(writer)
}

func (gk *GasKit) StartHomeKit(ctx context.Context, firmwareVersion string) error {
	hkName := gk.Name
	if len(hkName) < 1 {
		hkName = homeKitBridgeName
	}
	bridge := accessory.NewBridge(accessory.Info{
		Name:         hkName,
		Manufacturer: homeKitBridgeAuthor,
		Firmware:     firmwareVersion,
	})

	var store hap.Store
	if len(gk.HkDirectory) > 1 {
		store = hap.NewFsStore(gk.HkDirectory)
	} else {
		store = hap.NewFsStore(defaultHomeKitDirectory)
	}
	hkServer, err := hap.NewServer(store, bridge.A, gk.GetHkAccessories(firmwareVersion)...)
	if err != nil {
		return errors.Wrap(err, "failed to create HomeKit server")
	}
	hkServer.Pin = gk.HkPin
	if len(gk.HkAddress) > 0 {
		hkServer.Addr = gk.HkAddress
	}

	if gk.HkDebug {
		hklog.Debug.Enable()
		dnslog.Debug.Enable()
	}

	c := make(chan os.Signal)
	signal.Notify(c, os.Interrupt)
	signal.Notify(c, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		<-c
		// Stop delivering signals.
		signal.Stop(c)
		// Cancel the context to stop the server.
		cancel()
	}()

	return hkServer.ListenAndServe(ctx)
}

func (gk *GasKit) InitMqtt(ctx context.Context) (err error) {
	if len(gk.MqttBroker) == 0 {
		err = errors.New("mqtt broker not set")
		return
	}

	name := gk.Name
	if len(name) == 0 {
		name = homeKitBridgeName
	}

	mc, err := mqtt.NewMqttClient(gk.MqttBroker, name)
	if err != nil {
		err = errors.Wrap(err, "failed to create mqtt client")
		return
	}

	gk.mqttClient = mc

	err = mc.Connect(ctx)
	if err != nil {
		err = errors.Wrap(err, "failed to connect to mqtt broker")
	}

	return
}

func (gk *GasKit) InitExports(ctx context.Context) error {
	if gk.Influx != nil {
		err := gk.Influx.Setup(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to setup influx export")
		}
	}

	if gk.Kafka != nil {
		err := gk.Kafka.Setup()
		if err != nil {
			return errors.Wrap(err, "failed to setup kafka export")
		}
	}

	return nil
}
