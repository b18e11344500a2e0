package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dbehnke/caddxd/internal/protocol"
)

// Config represents the gateway, monitor and control client configuration
type Config struct {
	filename string

	// Serial section
	serialDevice string
	baudRate     int

	// Gateway section
	listenAddress  string
	socketTimeout  time.Duration
	tickInterval   time.Duration
	probePeriod    int
	frameTimeout   time.Duration
	maxSubscribers int

	// Log section
	logLevel     string
	logSyslog    bool
	logTimestamp bool

	// Monitor section
	monitorHost    string
	notifyCommand  string
	requestTimeout time.Duration

	// Database section (zone and partition labels)
	databaseEnabled   bool
	databasePath      string
	labelsFile        string
	databaseCacheSize int
}

type fileConfig struct {
	Serial struct {
		Device string `toml:"device"`
		Baud   int    `toml:"baud"`
	} `toml:"serial"`
	Gateway struct {
		Listen         string `toml:"listen"`
		SocketTimeout  string `toml:"socket_timeout"`
		Tick           string `toml:"tick"`
		ProbePeriod    int    `toml:"probe_period"`
		FrameTimeout   string `toml:"frame_timeout"`
		MaxSubscribers int    `toml:"max_subscribers"`
	} `toml:"gateway"`
	Log struct {
		Level     string `toml:"level"`
		Syslog    bool   `toml:"syslog"`
		Timestamp bool   `toml:"timestamp"`
	} `toml:"log"`
	Monitor struct {
		Host           string `toml:"host"`
		Notify         string `toml:"notify"`
		RequestTimeout string `toml:"request_timeout"`
	} `toml:"monitor"`
	Database struct {
		Enabled    bool   `toml:"enabled"`
		Path       string `toml:"path"`
		LabelsFile string `toml:"labels_file"`
		CacheSize  int    `toml:"cache_size"`
	} `toml:"database"`
}

// Baud rates the panel interface supports
var supportedBaudRates = []int{115200, 57600, 38400, 19200, 9600, 4800, 2400, 1200, 300}

// NewConfig creates a new configuration instance with defaults
func NewConfig(filename string) *Config {
	return &Config{
		filename: filename,

		serialDevice: protocol.DEFAULT_SERIAL_DEVICE,
		baudRate:     protocol.DEFAULT_BAUD_RATE,

		listenAddress:  protocol.DEFAULT_LISTEN_ADDR,
		socketTimeout:  5 * time.Second,
		tickInterval:   time.Second,
		probePeriod:    10,
		frameTimeout:   2 * time.Second,
		maxSubscribers: 64,

		logLevel:     "warn",
		logTimestamp: true,

		monitorHost:    protocol.DEFAULT_LISTEN_ADDR,
		requestTimeout: 5 * time.Second,

		databasePath:      "data/caddx_labels.db",
		databaseCacheSize: 256,
	}
}

// Load loads configuration from the file given to NewConfig.
// A missing file leaves the defaults in place.
func (c *Config) Load() error {
	if c.filename == "" {
		return nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(c.filename, &raw)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load config file %s: %w", c.filename, err)
	}

	return c.apply(raw, meta)
}

// LoadFromString loads configuration from a string (useful for testing)
func (c *Config) LoadFromString(data string) error {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return c.apply(raw, meta)
}

func (c *Config) apply(raw fileConfig, meta toml.MetaData) error {
	var err error

	if meta.IsDefined("serial", "device") {
		c.serialDevice = strings.TrimSpace(raw.Serial.Device)
	}
	if meta.IsDefined("serial", "baud") {
		c.baudRate = raw.Serial.Baud
	}

	if meta.IsDefined("gateway", "listen") {
		c.listenAddress = strings.TrimSpace(raw.Gateway.Listen)
	}
	if meta.IsDefined("gateway", "socket_timeout") {
		if c.socketTimeout, err = parseDuration("gateway.socket_timeout", raw.Gateway.SocketTimeout); err != nil {
			return err
		}
	}
	if meta.IsDefined("gateway", "tick") {
		if c.tickInterval, err = parseDuration("gateway.tick", raw.Gateway.Tick); err != nil {
			return err
		}
	}
	if meta.IsDefined("gateway", "probe_period") {
		c.probePeriod = raw.Gateway.ProbePeriod
	}
	if meta.IsDefined("gateway", "frame_timeout") {
		if c.frameTimeout, err = parseDuration("gateway.frame_timeout", raw.Gateway.FrameTimeout); err != nil {
			return err
		}
	}
	if meta.IsDefined("gateway", "max_subscribers") {
		c.maxSubscribers = raw.Gateway.MaxSubscribers
	}

	if meta.IsDefined("log", "level") {
		c.logLevel = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "syslog") {
		c.logSyslog = raw.Log.Syslog
	}
	if meta.IsDefined("log", "timestamp") {
		c.logTimestamp = raw.Log.Timestamp
	}

	if meta.IsDefined("monitor", "host") {
		c.monitorHost = strings.TrimSpace(raw.Monitor.Host)
	}
	if meta.IsDefined("monitor", "notify") {
		c.notifyCommand = strings.TrimSpace(raw.Monitor.Notify)
	}
	if meta.IsDefined("monitor", "request_timeout") {
		if c.requestTimeout, err = parseDuration("monitor.request_timeout", raw.Monitor.RequestTimeout); err != nil {
			return err
		}
	}

	if meta.IsDefined("database", "enabled") {
		c.databaseEnabled = raw.Database.Enabled
	}
	if meta.IsDefined("database", "path") {
		c.databasePath = strings.TrimSpace(raw.Database.Path)
	}
	if meta.IsDefined("database", "labels_file") {
		c.labelsFile = strings.TrimSpace(raw.Database.LabelsFile)
	}
	if meta.IsDefined("database", "cache_size") {
		c.databaseCacheSize = raw.Database.CacheSize
	}

	return nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

// Validate checks the gateway settings
func (c *Config) Validate() error {
	if c.serialDevice == "" {
		return fmt.Errorf("serial device is empty")
	}
	if !IsSupportedBaudRate(c.baudRate) {
		return fmt.Errorf("unsupported baud rate %d", c.baudRate)
	}
	if c.listenAddress == "" {
		return fmt.Errorf("listen address is empty")
	}
	if c.socketTimeout <= 0 {
		return fmt.Errorf("socket timeout must be positive, got %v", c.socketTimeout)
	}
	if c.tickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %v", c.tickInterval)
	}
	if c.frameTimeout <= 0 {
		return fmt.Errorf("frame timeout must be positive, got %v", c.frameTimeout)
	}
	if c.probePeriod < 1 {
		return fmt.Errorf("probe period must be at least 1, got %d", c.probePeriod)
	}
	if c.maxSubscribers < 1 {
		return fmt.Errorf("max subscribers must be at least 1, got %d", c.maxSubscribers)
	}
	return nil
}

// IsSupportedBaudRate reports whether baud is one of the panel's rates
func IsSupportedBaudRate(baud int) bool {
	for _, b := range supportedBaudRates {
		if b == baud {
			return true
		}
	}
	return false
}

// Getter methods

func (c *Config) GetFilename() string              { return c.filename }
func (c *Config) GetSerialDevice() string          { return c.serialDevice }
func (c *Config) GetBaudRate() int                 { return c.baudRate }
func (c *Config) GetListenAddress() string         { return c.listenAddress }
func (c *Config) GetSocketTimeout() time.Duration  { return c.socketTimeout }
func (c *Config) GetTickInterval() time.Duration   { return c.tickInterval }
func (c *Config) GetProbePeriod() int              { return c.probePeriod }
func (c *Config) GetFrameTimeout() time.Duration   { return c.frameTimeout }
func (c *Config) GetMaxSubscribers() int           { return c.maxSubscribers }
func (c *Config) GetLogLevel() string              { return c.logLevel }
func (c *Config) GetLogSyslog() bool               { return c.logSyslog }
func (c *Config) GetLogTimestamp() bool            { return c.logTimestamp }
func (c *Config) GetMonitorHost() string           { return c.monitorHost }
func (c *Config) GetNotifyCommand() string         { return c.notifyCommand }
func (c *Config) GetRequestTimeout() time.Duration { return c.requestTimeout }
func (c *Config) GetDatabaseEnabled() bool         { return c.databaseEnabled }
func (c *Config) GetDatabasePath() string          { return c.databasePath }
func (c *Config) GetLabelsFile() string            { return c.labelsFile }
func (c *Config) GetDatabaseCacheSize() int        { return c.databaseCacheSize }

// Setters used by command-line overrides

func (c *Config) SetSerialDevice(device string) { c.serialDevice = device }
func (c *Config) SetBaudRate(baud int)          { c.baudRate = baud }
func (c *Config) SetListenAddress(addr string)  { c.listenAddress = addr }
func (c *Config) SetLogLevel(level string)      { c.logLevel = level }
func (c *Config) SetLogSyslog(enabled bool)     { c.logSyslog = enabled }
func (c *Config) SetMonitorHost(host string)    { c.monitorHost = host }
func (c *Config) SetNotifyCommand(cmd string)   { c.notifyCommand = cmd }
