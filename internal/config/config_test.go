package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_Defaults(t *testing.T) {
	config := NewConfig("")
	if err := config.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if config.GetSerialDevice() != "/dev/ttyUSB0" {
		t.Errorf("GetSerialDevice() = %q, want %q", config.GetSerialDevice(), "/dev/ttyUSB0")
	}
	if config.GetBaudRate() != 38400 {
		t.Errorf("GetBaudRate() = %d, want 38400", config.GetBaudRate())
	}
	if config.GetListenAddress() != "127.0.0.1:1587" {
		t.Errorf("GetListenAddress() = %q, want %q", config.GetListenAddress(), "127.0.0.1:1587")
	}
	if config.GetProbePeriod() != 10 {
		t.Errorf("GetProbePeriod() = %d, want 10", config.GetProbePeriod())
	}
	if config.GetTickInterval() != time.Second {
		t.Errorf("GetTickInterval() = %v, want 1s", config.GetTickInterval())
	}
	if config.GetDatabaseEnabled() {
		t.Error("GetDatabaseEnabled() = true, want false")
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfig_LoadFromFile(t *testing.T) {
	testConfig := `
[serial]
device = "/dev/ttyS1"
baud = 9600

[gateway]
listen = "0.0.0.0:1600"
socket_timeout = "2s"
tick = "500ms"
probe_period = 4
frame_timeout = "750ms"
max_subscribers = 8

[log]
level = "debug"
syslog = true
timestamp = false

[monitor]
host = "alarm.lan:1600"
notify = "/usr/local/bin/alarm-notify"
request_timeout = "3s"

[database]
enabled = true
path = "/var/lib/caddx/labels.db"
labels_file = "/etc/caddx/labels.txt"
cache_size = 32
`

	path := filepath.Join(t.TempDir(), "caddx.toml")
	if err := os.WriteFile(path, []byte(testConfig), 0644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}

	config := NewConfig(path)
	if err := config.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if config.GetSerialDevice() != "/dev/ttyS1" {
		t.Errorf("GetSerialDevice() = %q, want %q", config.GetSerialDevice(), "/dev/ttyS1")
	}
	if config.GetBaudRate() != 9600 {
		t.Errorf("GetBaudRate() = %d, want 9600", config.GetBaudRate())
	}
	if config.GetListenAddress() != "0.0.0.0:1600" {
		t.Errorf("GetListenAddress() = %q, want %q", config.GetListenAddress(), "0.0.0.0:1600")
	}
	if config.GetSocketTimeout() != 2*time.Second {
		t.Errorf("GetSocketTimeout() = %v, want 2s", config.GetSocketTimeout())
	}
	if config.GetTickInterval() != 500*time.Millisecond {
		t.Errorf("GetTickInterval() = %v, want 500ms", config.GetTickInterval())
	}
	if config.GetProbePeriod() != 4 {
		t.Errorf("GetProbePeriod() = %d, want 4", config.GetProbePeriod())
	}
	if config.GetFrameTimeout() != 750*time.Millisecond {
		t.Errorf("GetFrameTimeout() = %v, want 750ms", config.GetFrameTimeout())
	}
	if config.GetMaxSubscribers() != 8 {
		t.Errorf("GetMaxSubscribers() = %d, want 8", config.GetMaxSubscribers())
	}
	if config.GetLogLevel() != "debug" || !config.GetLogSyslog() || config.GetLogTimestamp() {
		t.Errorf("log = %q/%v/%v, want debug/true/false", config.GetLogLevel(), config.GetLogSyslog(), config.GetLogTimestamp())
	}
	if config.GetMonitorHost() != "alarm.lan:1600" {
		t.Errorf("GetMonitorHost() = %q, want %q", config.GetMonitorHost(), "alarm.lan:1600")
	}
	if config.GetNotifyCommand() != "/usr/local/bin/alarm-notify" {
		t.Errorf("GetNotifyCommand() = %q", config.GetNotifyCommand())
	}
	if config.GetRequestTimeout() != 3*time.Second {
		t.Errorf("GetRequestTimeout() = %v, want 3s", config.GetRequestTimeout())
	}
	if !config.GetDatabaseEnabled() {
		t.Error("GetDatabaseEnabled() = false, want true")
	}
	if config.GetDatabasePath() != "/var/lib/caddx/labels.db" {
		t.Errorf("GetDatabasePath() = %q", config.GetDatabasePath())
	}
	if config.GetLabelsFile() != "/etc/caddx/labels.txt" {
		t.Errorf("GetLabelsFile() = %q", config.GetLabelsFile())
	}
	if config.GetDatabaseCacheSize() != 32 {
		t.Errorf("GetDatabaseCacheSize() = %d, want 32", config.GetDatabaseCacheSize())
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfig_PartialOverride(t *testing.T) {
	config := NewConfig("")
	if err := config.LoadFromString("[serial]\nbaud = 115200\n"); err != nil {
		t.Fatalf("LoadFromString() error = %v", err)
	}

	if config.GetBaudRate() != 115200 {
		t.Errorf("GetBaudRate() = %d, want 115200", config.GetBaudRate())
	}
	if config.GetSerialDevice() != "/dev/ttyUSB0" {
		t.Errorf("GetSerialDevice() = %q, want default", config.GetSerialDevice())
	}
	if !config.GetLogTimestamp() {
		t.Error("GetLogTimestamp() = false, want default true")
	}
}

func TestConfig_MissingFile(t *testing.T) {
	config := NewConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err := config.Load(); err != nil {
		t.Errorf("Load() error = %v, want nil for missing file", err)
	}
}

func TestConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad toml", "[serial\nbaud = 1"},
		{"bad duration", "[gateway]\nsocket_timeout = \"soon\""},
		{"bad tick", "[gateway]\ntick = \"1 sec\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := NewConfig("").LoadFromString(tt.data); err == nil {
				t.Error("LoadFromString() error = nil, want error")
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{"defaults", "", false},
		{"odd baud", "[serial]\nbaud = 12345", true},
		{"empty device", "[serial]\ndevice = \"\"", true},
		{"empty listen", "[gateway]\nlisten = \"\"", true},
		{"zero probe period", "[gateway]\nprobe_period = 0", true},
		{"negative timeout", "[gateway]\nsocket_timeout = \"-1s\"", true},
		{"zero frame timeout", "[gateway]\nframe_timeout = \"0s\"", true},
		{"no subscribers", "[gateway]\nmax_subscribers = 0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewConfig("")
			if err := config.LoadFromString(tt.data); err != nil {
				t.Fatalf("LoadFromString() error = %v", err)
			}
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Setters(t *testing.T) {
	config := NewConfig("")
	config.SetSerialDevice("/dev/ttyACM0")
	config.SetBaudRate(19200)
	config.SetListenAddress(":1587")
	config.SetMonitorHost("10.0.0.2:1587")

	if config.GetSerialDevice() != "/dev/ttyACM0" || config.GetBaudRate() != 19200 {
		t.Errorf("serial = %q@%d, want /dev/ttyACM0@19200", config.GetSerialDevice(), config.GetBaudRate())
	}
	if config.GetListenAddress() != ":1587" {
		t.Errorf("GetListenAddress() = %q, want %q", config.GetListenAddress(), ":1587")
	}
	if config.GetMonitorHost() != "10.0.0.2:1587" {
		t.Errorf("GetMonitorHost() = %q", config.GetMonitorHost())
	}
}

func TestConfig_ExampleMatchesDefaults(t *testing.T) {
	example := NewConfig(filepath.Join("..", "..", "caddxd.example.toml"))
	if err := example.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defaults := NewConfig(example.GetFilename())

	example.filename = ""
	defaults.filename = ""
	if *example != *defaults {
		t.Errorf("example config = %+v, want defaults %+v", *example, *defaults)
	}
}
