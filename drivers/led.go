package drivers

import (
	"github.com/pkg/errors"
	"github.com/stianeikeland/go-rpio/v4"
)

// StatusLed drives a single indicator pin, used to signal a halted
// controller. Set Invert for boards that sink the LED instead of
// sourcing it.
type StatusLed struct {
	Pin    uint16 `json:"pin"`
	Invert bool   `json:"invert,omitempty"`

	state bool
	ready bool
}

func (led *StatusLed) Setup() error {
	if led.Pin > 255 {
		return errors.Errorf("pin out of range (gpio takes uint8 pin)")
	}

	err := rpio.Open()
	if err != nil {
		return errors.Wrapf(err, "failed to Setup status led on pin %d", led.Pin)
	}
	pin := rpio.Pin(led.Pin)
	pin.Output()
	led.ready = true

	return led.Set(false)
}

func (led *StatusLed) Set(state bool) error {
	if !led.ready {
		return errors.New("status led not ready")
	}

	led.state = state
	if led.Invert {
		state = !state
	}
	if state {
		rpio.Pin(led.Pin).High()
	} else {
		rpio.Pin(led.Pin).Low()
	}

	return nil
}

func (led *StatusLed) Toggle() error {
	return led.Set(!led.state)
}

func (led *StatusLed) IsReady() bool {
	return led.ready
}

func (led *StatusLed) Close() error {
	if !led.ready {
		return nil
	}

	led.Set(false)
	led.ready = false
	return rpio.Close()
}
