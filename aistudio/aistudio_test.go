package aistudio

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/hubertat/gaskit"
	"github.com/hubertat/gaskit/drivers"
)

const sampleConfig = `{
  "configHeader": {
    "dateCreated_ISO": "2025-11-02T14:44:10.000Z",
    "appVersion": "1.6.0",
    "generatorType": "manual"
  },
  "configBody": {
    "heaterProfiles": [
      {
        "id": "heater_354",
        "timeBase": 140,
        "temperatureTimeVectors": [
          [320, 5], [100, 2], [100, 10], [100, 30], [200, 5],
          [200, 5], [200, 5], [320, 5], [320, 5], [320, 5]
        ]
      }
    ],
    "dutyCycleProfiles": [
      {"id": "duty_1", "numberScanningCycles": 1, "numberSleepingCycles": 0}
    ],
    "sensorConfigurations": [
      {"sensorIndex": 0, "heaterProfile": "heater_354", "dutyCycleProfile": "duty_1"}
    ]
  }
}`

func TestSelectHeaterProfile(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	if err != nil {
		t.Fatal(err)
	}

	profile, timeBase, err := cfg.SelectHeaterProfile()
	if err != nil {
		t.Fatal(err)
	}

	if timeBase != 140 {
		t.Errorf("got time base %d, want 140", timeBase)
	}
	if !profile.Equal(drivers.DefaultHeaterProfile()) {
		t.Errorf("got profile %v, want the vendor default", profile)
	}
}

func TestSelectHeaterProfileRejects(t *testing.T) {
	t.Run("several sensor configurations", func(t *testing.T) {
		doubled := strings.Replace(sampleConfig,
			`{"sensorIndex": 0, "heaterProfile": "heater_354", "dutyCycleProfile": "duty_1"}`,
			`{"sensorIndex": 0, "heaterProfile": "heater_354", "dutyCycleProfile": "duty_1"},
			 {"sensorIndex": 1, "heaterProfile": "heater_354", "dutyCycleProfile": "duty_1"}`, 1)
		cfg, err := ParseConfig([]byte(doubled))
		if err != nil {
			t.Fatal(err)
		}
		_, _, err = cfg.SelectHeaterProfile()
		if err == nil {
			t.Error("expected error for two sensor configurations")
		}
	})

	t.Run("unknown heater profile id", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(strings.Replace(sampleConfig, `"heaterProfile": "heater_354"`, `"heaterProfile": "heater_999"`, 1)))
		if err != nil {
			t.Fatal(err)
		}
		_, _, err = cfg.SelectHeaterProfile()
		if err == nil {
			t.Error("expected error for missing heater profile")
		}
	})

	t.Run("temperature out of range", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(strings.Replace(sampleConfig, "[320, 5]", "[500, 5]", 1)))
		if err != nil {
			t.Fatal(err)
		}
		_, _, err = cfg.SelectHeaterProfile()
		if err == nil {
			t.Error("expected error for temperature above the heater limit")
		}
	})
}

func TestFindConfig(t *testing.T) {
	dir := t.TempDir()

	_, err := FindConfig(dir)
	if err == nil {
		t.Error("expected error for empty directory")
	}

	first := filepath.Join(dir, "session"+ConfigExtension)
	if err := os.WriteFile(first, []byte(sampleConfig), 0644); err != nil {
		t.Fatal(err)
	}

	found, err := FindConfig(dir)
	if err != nil {
		t.Fatal(err)
	}
	if found != first {
		t.Errorf("got %s, want %s", found, first)
	}

	second := filepath.Join(dir, "other"+ConfigExtension)
	if err := os.WriteFile(second, []byte(sampleConfig), 0644); err != nil {
		t.Fatal(err)
	}

	_, err = FindConfig(dir)
	if err == nil {
		t.Error("expected error for two config files")
	}
}

func TestSessionMarshal(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	if err != nil {
		t.Fatal(err)
	}

	session := NewSession(cfg, 3151782)
	at := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)
	session.Add(gaskit.Record{
		SensorIndex:   0,
		SensorId:      3151782,
		Millis:        1282,
		Temperature:   25.11,
		Pressure:      100733.19,
		Humidity:      41.3,
		GasResistance: 10077.5,
		StatusCode:    0,
		GasIndex:      3,
	}, at)
	session.Add(gaskit.Record{
		SensorIndex:   0,
		SensorId:      3151782,
		Millis:        1422,
		Temperature:   25.13,
		Pressure:      100731.44,
		Humidity:      41.2,
		GasResistance: 10233.0,
		StatusCode:    0,
		GasIndex:      4,
	}, at.Add(140*time.Millisecond))

	if session.Len() != 2 {
		t.Fatalf("got %d rows, want 2", session.Len())
	}

	data, err := session.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	var out struct {
		Body    ConfigBody    `json:"configBody"`
		Header  RawDataHeader `json:"rawDataHeader"`
		RawBody struct {
			DataColumns []DataColumn `json:"dataColumns"`
			DataBlock   [][]float64  `json:"dataBlock"`
		} `json:"rawDataBody"`
	}
	err = json.Unmarshal(data, &out)
	if err != nil {
		t.Fatal(err)
	}

	if len(out.Body.HeaterProfiles) != 1 {
		t.Error("expected the original config body carried over")
	}
	if out.Header.BoardId != 3151782 {
		t.Errorf("got board id %d, want 3151782", out.Header.BoardId)
	}
	if out.Header.FirmwareVersion != FirmwareVersion {
		t.Errorf("got firmware version %s, want %s", out.Header.FirmwareVersion, FirmwareVersion)
	}

	if len(out.RawBody.DataColumns) != 12 {
		t.Fatalf("got %d data columns, want 12", len(out.RawBody.DataColumns))
	}
	wantKeys := []string{
		"sensor_index", "sensor_id", "timestamp_since_poweron", "real_time_clock",
		"temperature", "pressure", "relative_humidity", "resistance_gassensor",
		"heater_profile_step_index", "scanning_mode_enabled", "label_tag", "error_code",
	}
	for ix, col := range out.RawBody.DataColumns {
		if col.Key != wantKeys[ix] {
			t.Errorf("column %d: got key %s, want %s", ix, col.Key, wantKeys[ix])
		}
	}
	if out.RawBody.DataColumns[5].Unit != "Hectopascals" {
		t.Errorf("got pressure unit %s, want Hectopascals", out.RawBody.DataColumns[5].Unit)
	}

	if len(out.RawBody.DataBlock) != 2 {
		t.Fatalf("got %d data rows, want 2", len(out.RawBody.DataBlock))
	}
	row := out.RawBody.DataBlock[0]
	if len(row) != 12 {
		t.Fatalf("got row of %d values, want 12", len(row))
	}
	if row[2] != 1282 {
		t.Errorf("got millis %v, want 1282", row[2])
	}
	if row[3] != float64(at.Unix()) {
		t.Errorf("got rtc %v, want %d", row[3], at.Unix())
	}
	if math.Abs(row[5]-1007.3319) > 1e-9 {
		t.Errorf("got pressure %v, want 1007.3319 hPa", row[5])
	}
	if row[8] != 3 || row[9] != 1 || row[10] != 0 {
		t.Errorf("got heater step %v, scan mode %v, label %v", row[8], row[9], row[10])
	}
}

func TestSessionSave(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	if err != nil {
		t.Fatal(err)
	}

	session := NewSession(cfg, 4242)
	dir := t.TempDir()

	path, err := session.Save(dir)
	if err != nil {
		t.Fatal(err)
	}

	namePattern := regexp.MustCompile(`^\d{4}_\d{2}_\d{2}_\d{2}_\d{2}_Board_4242_PowerOnOff_0_\d+_File_0\.bmerawdata$`)
	if !namePattern.MatchString(filepath.Base(path)) {
		t.Errorf("file name %s does not match the studio naming scheme", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"dataBlock":[]`) {
		t.Error("expected an empty data block in a fresh session file")
	}
}
