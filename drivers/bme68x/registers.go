// Package bme68x drives Bosch's BME680/BME688 gas scanner over I2C or SPI.
// Register map and measurement sequencing follow the Bosch BME68x reference
// API; the datasheet lives at
// https://www.bosch-sensortec.com/media/boschsensortec/downloads/datasheets/bst-bme688-ds000.pdf
package bme68x

const DefaultAddress byte = 0x76 // primary I2C address, 0x77 when SDO is pulled high

const (
	RegChipId     byte = 0xD0
	RegVariantId  byte = 0xF0
	RegSoftReset  byte = 0xE0
	RegCtrlMeas   byte = 0x74 // osrs_t, osrs_p, mode
	RegCtrlHum    byte = 0x72 // osrs_h
	RegConfig     byte = 0x75 // iir filter
	RegCtrlGas0   byte = 0x70 // heat_off
	RegCtrlGas1   byte = 0x71 // nb_conv, run_gas
	RegResHeat0   byte = 0x5A // first of ten heater set-point registers
	RegGasWait0   byte = 0x64 // first of ten heater timing registers
	RegGasWaitShd byte = 0x6E // shared heater-on time, parallel mode only
	RegField0     byte = 0x1D // first measurement field, fields are 17 bytes apart
	RegCoeff1     byte = 0x8A
	RegCoeff2     byte = 0xE1
	RegCoeff3     byte = 0x00
	RegUniqueId   byte = 0x83
	RegMemPage    byte = 0xF3 // SPI memory page select
)

const (
	ChipId    byte = 0x61
	ResetCmd  byte = 0xB6
	FieldLen       = 17
	FieldNum       = 3
	Coeff1Len      = 23
	Coeff2Len      = 14
	Coeff3Len      = 5
)

// The gas measurement block differs between the two chip revisions: the
// BME688 ("high" variant) uses a wider ADC and its own resistance formula.
const (
	VariantGasLow  byte = 0x00 // BME680
	VariantGasHigh byte = 0x01 // BME688
)

const (
	Sleep    Mode = 0x00
	Forced   Mode = 0x01
	Parallel Mode = 0x02
)

const (
	Skipped Oversampling = iota
	Sampling1X
	Sampling2X
	Sampling4X
	Sampling8X
	Sampling16X
)

const (
	Coeff0 FilterCoefficient = iota
	Coeff1
	Coeff3
	Coeff7
	Coeff15
	Coeff31
	Coeff63
	Coeff127
)

const (
	maskNewData   byte = 0x80
	maskGasValid  byte = 0x20
	maskHeatStab  byte = 0x10
	maskGasIndex  byte = 0x0F
	maskGasRange  byte = 0x0F
	maskHeatRange byte = 0x30
	maskMode      byte = 0x03
	maskNbConv    byte = 0x0F
	runGasLow     byte = 0x10
	runGasHigh    byte = 0x20
	maskMemPage   byte = 0x10
	maskSpiRead   byte = 0x80
	maskSpiWrite  byte = 0x7F
)

// Diagnostic codes mirror the Bosch reference API so the status column of a
// record stream can be read against their documentation.
const (
	CodeOk          int8 = 0
	CodeComFail     int8 = -2
	CodeDevNotFound int8 = -3
	CodeInvalidLen  int8 = -4
	CodeSelfTest    int8 = -5
	CodeDefOpMode   int8 = 1
	CodeNoNewData   int8 = 2
)
