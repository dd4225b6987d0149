package bme68x

import "time"

var osCycles = [6]uint32{0, 1, 2, 4, 8, 16}

func cycles(os Oversampling) uint32 {
	if os > Sampling16X {
		os = Sampling16X
	}

	return osCycles[os]
}

// measureDuration returns how long one TPH plus gas conversion takes for the
// given oversampling settings. Values are the datasheet cycle times.
func measureDuration(temp, pres, hum Oversampling, mode Mode) time.Duration {
	micros := cycles(temp) + cycles(pres) + cycles(hum)
	micros *= 1963
	micros += 477 * 4 // TPH switching
	micros += 477 * 5 // gas measurement
	if mode != Parallel {
		micros += 1000 // wake up from sleep
	}

	return time.Duration(micros) * time.Microsecond
}

// encodeSharedDuration packs the shared heater-on time into the gas_wait_shared
// register format: a 6 bit mantissa with a 4x step multiplier.
func encodeSharedDuration(dur time.Duration) uint8 {
	ms := dur.Milliseconds()
	if ms >= 0x783 {
		return 0xFF
	}

	val := uint32(ms) * 1000 / 477
	factor := uint8(0)
	for val > 0x3F {
		val >>= 2
		factor++
	}

	return uint8(val) + factor*64
}
