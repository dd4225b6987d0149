package aistudio

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/hubertat/gaskit"
)

// FirmwareVersion is the board firmware generation the studio file format
// tracks, not the version of this program.
const FirmwareVersion = "1.5.0"

const fileNameTimeLayout = "2006_01_02_15_04"

type RawDataHeader struct {
	CounterPowerOnOff int    `json:"counterPowerOnOff"`
	SeedPowerOnOff    int    `json:"seedPowerOnOff"`
	CounterFileLimit  int    `json:"counterFileLimit"`
	DateCreated       string `json:"dateCreated"`
	DateCreatedISO    string `json:"dateCreated_ISO"`
	FirmwareVersion   string `json:"firmwareVersion"`
	BoardId           uint32 `json:"boardId"`
}

type DataColumn struct {
	Name   string `json:"name"`
	Unit   string `json:"unit"`
	Format string `json:"format"`
	Key    string `json:"key"`
}

type rawDataBody struct {
	DataColumns []DataColumn `json:"dataColumns"`
	DataBlock   [][]any      `json:"dataBlock"`
}

// dataColumns describes the fixed twelve column layout of a raw data file,
// with the spellings the studio importer expects.
func dataColumns() []DataColumn {
	return []DataColumn{
		{Name: "Sensor Index", Unit: "", Format: "integer", Key: "sensor_index"},
		{Name: "Sensor ID", Unit: "", Format: "integer", Key: "sensor_id"},
		{Name: "Time Since PowerOn", Unit: "Milliseconds", Format: "integer", Key: "timestamp_since_poweron"},
		{Name: "Real time clock", Unit: "Unix Timestamp: seconds since Jan 01 1970. (UTC); 0 = missing", Format: "integer", Key: "real_time_clock"},
		{Name: "Temperature", Unit: "DegreesCelcius", Format: "float", Key: "temperature"},
		{Name: "Pressure", Unit: "Hectopascals", Format: "float", Key: "pressure"},
		{Name: "Relative Humidity", Unit: "Percent", Format: "float", Key: "relative_humidity"},
		{Name: "Resistance Gassensor", Unit: "Ohms", Format: "float", Key: "resistance_gassensor"},
		{Name: "Heater Profile Step Index", Unit: "", Format: "integer", Key: "heater_profile_step_index"},
		{Name: "Scanning Mode Enabled", Unit: "", Format: "integer", Key: "scanning_mode_enabled"},
		{Name: "Label Tag", Unit: "", Format: "integer", Key: "label_tag"},
		{Name: "Error Code", Unit: "", Format: "integer", Key: "error_code"},
	}
}

// Session collects records of one measurement run and serializes them into a
// .bmerawdata archive wrapped around the configuration that produced them.
type Session struct {
	BoardId     uint32
	PowerCycles int
	FileCount   int

	config  *Config
	seed    int
	created time.Time
	rows    [][]any
}

func NewSession(config *Config, boardId uint32) *Session {
	return &Session{
		BoardId: boardId,
		config:  config,
		seed:    rand.Intn(10000000),
		created: time.Now(),
	}
}

// Add appends one record row. The stream carries pressure in Pascals while
// the archive declares Hectopascals, the conversion happens here.
func (s *Session) Add(rec gaskit.Record, at time.Time) {
	row := []any{
		rec.SensorIndex,
		rec.SensorId,
		rec.Millis,
		at.Unix(),
		rec.Temperature,
		rec.Pressure / 100,
		rec.Humidity,
		rec.GasResistance,
		rec.GasIndex,
		1,
		0,
		rec.StatusCode,
	}
	s.rows = append(s.rows, row)
}

func (s *Session) Len() int {
	return len(s.rows)
}

func (s *Session) FileName() string {
	return fmt.Sprintf("%s_Board_%d_PowerOnOff_%d_%d_File_%d%s",
		s.created.Format(fileNameTimeLayout), s.BoardId, s.PowerCycles, s.seed, s.FileCount, RawDataExtension)
}

// Marshal builds the archive document: the original configuration with the
// rawDataHeader and rawDataBody sections added next to it.
func (s *Session) Marshal() ([]byte, error) {
	doc := map[string]json.RawMessage{}
	err := json.Unmarshal(s.config.raw, &doc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to reread config document")
	}

	header := RawDataHeader{
		CounterPowerOnOff: s.PowerCycles,
		SeedPowerOnOff:    s.seed,
		CounterFileLimit:  s.FileCount,
		DateCreated:       fmt.Sprintf("%d", s.created.Unix()),
		DateCreatedISO:    s.created.UTC().Format(time.RFC3339),
		FirmwareVersion:   FirmwareVersion,
		BoardId:           s.BoardId,
	}

	body := rawDataBody{
		DataColumns: dataColumns(),
		DataBlock:   s.rows,
	}
	if body.DataBlock == nil {
		body.DataBlock = [][]any{}
	}

	doc["rawDataHeader"], err = json.Marshal(header)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal raw data header")
	}
	doc["rawDataBody"], err = json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal raw data body")
	}

	return json.Marshal(doc)
}

// Save writes the archive into dir under the studio file naming scheme and
// returns the path.
func (s *Session) Save(dir string) (string, error) {
	data, err := s.Marshal()
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, s.FileName())
	err = os.WriteFile(path, data, 0644)
	if err != nil {
		return "", errors.Wrapf(err, "failed to write raw data file %s", path)
	}

	return path, nil
}
