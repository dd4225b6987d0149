package bme68x

// calibrationCoefficients holds the factory trim values read from the chip.
// Field naming follows the datasheet (par_t*, par_p*, par_h*, par_g*).
type calibrationCoefficients struct {
	t1 uint16
	t2 int16
	t3 int8

	p1  uint16
	p2  int16
	p3  int8
	p4  int16
	p5  int16
	p6  int8
	p7  int8
	p8  int16
	p9  int16
	p10 uint8

	h1 uint16
	h2 uint16
	h3 int8
	h4 int8
	h5 int8
	h6 uint8
	h7 int8

	g1 int8
	g2 int16
	g3 int8

	resHeatRange uint8
	resHeatVal   int8
	rangeSwErr   int8
}

// parseCalibration unpacks the three coefficient blocks (0x8A, 0xE1 and 0x00)
// into their trim values. Offsets come from the Bosch reference API; note the
// humidity pair h1/h2 shares a register byte.
func parseCalibration(coeff1, coeff2, coeff3 []byte) (cali calibrationCoefficients) {
	cali.t2 = int16(coeff1[1])<<8 | int16(coeff1[0])
	cali.t3 = int8(coeff1[2])
	cali.p1 = uint16(coeff1[5])<<8 | uint16(coeff1[4])
	cali.p2 = int16(coeff1[7])<<8 | int16(coeff1[6])
	cali.p3 = int8(coeff1[8])
	cali.p4 = int16(coeff1[11])<<8 | int16(coeff1[10])
	cali.p5 = int16(coeff1[13])<<8 | int16(coeff1[12])
	cali.p7 = int8(coeff1[14])
	cali.p6 = int8(coeff1[15])
	cali.p8 = int16(coeff1[19])<<8 | int16(coeff1[18])
	cali.p9 = int16(coeff1[21])<<8 | int16(coeff1[20])
	cali.p10 = coeff1[22]

	cali.h2 = uint16(coeff2[0])<<4 | uint16(coeff2[1])>>4
	cali.h1 = uint16(coeff2[2])<<4 | uint16(coeff2[1])&0x0F
	cali.h3 = int8(coeff2[3])
	cali.h4 = int8(coeff2[4])
	cali.h5 = int8(coeff2[5])
	cali.h6 = coeff2[6]
	cali.h7 = int8(coeff2[7])
	cali.t1 = uint16(coeff2[9])<<8 | uint16(coeff2[8])
	cali.g2 = int16(coeff2[11])<<8 | int16(coeff2[10])
	cali.g1 = int8(coeff2[12])
	cali.g3 = int8(coeff2[13])

	cali.resHeatVal = int8(coeff3[0])
	cali.resHeatRange = (coeff3[2] & maskHeatRange) >> 4
	cali.rangeSwErr = int8(coeff3[4]&0xF0) >> 4

	return
}

// tfine is the shared fine temperature term the pressure and humidity
// compensation are based on.
func (c calibrationCoefficients) tfine(adcTemp int32) int32 {
	var1 := (int64(adcTemp) >> 3) - (int64(c.t1) << 1)
	var2 := (var1 * int64(c.t2)) >> 11
	var3 := ((var1 >> 1) * (var1 >> 1)) >> 12
	var3 = (var3 * (int64(c.t3) << 4)) >> 14

	return int32(var2 + var3)
}

// temperature returns centidegrees Celsius.
func (c calibrationCoefficients) temperature(tfine int32) int32 {
	return ((tfine * 5) + 128) >> 8
}

// pressure returns Pascal. The arithmetic deliberately stays in 32 bits with
// the same overflow branch the reference implementation has.
func (c calibrationCoefficients) pressure(tfine, adcPres int32) int32 {
	var1 := (tfine >> 1) - 64000
	var2 := ((((var1 >> 2) * (var1 >> 2)) >> 11) * int32(c.p6)) >> 2
	var2 = var2 + ((var1 * int32(c.p5)) << 1)
	var2 = (var2 >> 2) + (int32(c.p4) << 16)
	var1 = (((((var1 >> 2) * (var1 >> 2)) >> 13) * (int32(c.p3) << 5)) >> 3) + ((int32(c.p2) * var1) >> 1)
	var1 = var1 >> 18
	var1 = ((32768 + var1) * int32(c.p1)) >> 15

	comp := 1048576 - adcPres
	comp = (comp - (var2 >> 12)) * 3125
	if comp >= 0x40000000 {
		comp = (comp / var1) << 1
	} else {
		comp = (comp << 1) / var1
	}

	var1 = (int32(c.p9) * (((comp >> 3) * (comp >> 3)) >> 13)) >> 12
	var2 = ((comp >> 2) * int32(c.p8)) >> 13
	var3 := ((comp >> 8) * (comp >> 8) * (comp >> 8) * int32(c.p10)) >> 17

	return comp + ((var1 + var2 + var3 + (int32(c.p7) << 7)) >> 4)
}

// humidity returns milli-percent relative humidity, clamped to 0..100%.
func (c calibrationCoefficients) humidity(tfine, adcHum int32) int32 {
	tempScaled := ((tfine * 5) + 128) >> 8
	var1 := adcHum - (int32(c.h1) << 4) - (((tempScaled * int32(c.h3)) / 100) >> 1)
	var2 := (int32(c.h2) *
		(((tempScaled * int32(c.h4)) / 100) +
			(((tempScaled * ((tempScaled * int32(c.h5)) / 100)) >> 6) / 100) +
			(1 << 14))) >> 10
	var3 := var1 * var2
	var4 := ((int32(c.h6) << 7) + ((tempScaled * int32(c.h7)) / 100)) >> 4
	var5 := ((var3 >> 14) * (var3 >> 14)) >> 10
	var6 := (var4 * var5) >> 1

	hum := (((var3 + var6) >> 10) * 1000) >> 12
	if hum > 100000 {
		hum = 100000
	} else if hum < 0 {
		hum = 0
	}

	return hum
}

// gasResistanceHigh converts the gas ADC reading of the BME688 variant to
// Ohms.
func (c calibrationCoefficients) gasResistanceHigh(adcGas uint16, gasRange uint8) uint32 {
	var1 := int64(262144) >> gasRange
	var2 := (int64(adcGas)-512)*3 + 4096
	gas := (10000 * var1) / var2

	return uint32(gas * 100)
}

var lookupTable1 = [16]int64{
	2147483647, 2147483647, 2147483647, 2147483647, 2147483647, 2126008810,
	2147483647, 2130303777, 2147483647, 2147483647, 2143188679, 2136746228,
	2147483647, 2126008810, 2147483647, 2147483647,
}

var lookupTable2 = [16]int64{
	4096000000, 2048000000, 1024000000, 512000000, 255744255, 127110228,
	64000000, 32258064, 16016016, 8000000, 4000000, 2000000, 1000000,
	500000, 250000, 125000,
}

// gasResistanceLow is the BME680 variant formula, which additionally folds in
// the range switching error trim value.
func (c calibrationCoefficients) gasResistanceLow(adcGas uint16, gasRange uint8) uint32 {
	var1 := ((1340 + 5*int64(c.rangeSwErr)) * lookupTable1[gasRange]) >> 16
	var2 := ((int64(adcGas) << 15) - 16777216) + var1
	var3 := (lookupTable2[gasRange] * var1) >> 9

	return uint32((var3 + (var2 >> 1)) / var2)
}

// resHeat encodes a heater set point in degrees Celsius into the register
// value, using the ambient temperature the heater works against.
func (c calibrationCoefficients) resHeat(target uint16, ambient int32) uint8 {
	if target > 400 {
		target = 400
	}

	var1 := ((ambient * int32(c.g3)) / 1000) * 256
	var2 := (int32(c.g1) + 784) * (((((int32(c.g2) + 154009) * int32(target) * 5) / 100) + 3276800) / 10)
	var3 := var1 + (var2 / 2)
	var4 := var3 / (int32(c.resHeatRange) + 4)
	var5 := (131 * int32(c.resHeatVal)) + 65536
	resX100 := ((var4 / var5) - 250) * 34

	return uint8((resX100 + 50) / 100)
}
