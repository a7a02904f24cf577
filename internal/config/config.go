package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// Controller bus
	BusAddress     byte   // controller address on the command/response bus
	SerialPort     string // host side of the command/response link
	SerialBaudRate int

	// IMU hardware
	IMUI2CBus  string // periph bus name, empty picks the first available
	IMUI2CAddr uint16

	// IMU sensor configuration
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte
	IMUODRHz     int // output data rate in Hz

	// Fault handling
	IMUInitRetries    int // attempts per configuration register write
	IMUFaultThreshold int // consecutive read faults before the driver faults

	// Control loop
	LoopPeriodUS int // tick period in microseconds
	StaleTicks   int // sample age in ticks before the stale bit is set

	// Host polling
	RequestTimeoutMS   int
	PollIntervalMS     int
	StalePollThreshold int // unchanged polls tolerated before a warning

	// MQTT
	MQTTBroker          string
	MQTTClientIDBridge  string
	MQTTClientIDConsole string
	MQTTClientIDWeb     string
	MQTTClientIDDisplay string

	// Topics
	TopicIMU         string
	TopicIMUPhysical string
	TopicStatus      string

	// Web server
	WebServerPort int

	// Display
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: unexported (lowercase) so other packages cannot access it directly.
//     This enforces encapsulation and prevents external code from modifying config without proper locking.
//     Has package-level scope (visible to all functions in this package, persists for program lifetime).
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access. Write lock (Lock) for initialization,
//     read lock (RLock) for Get() allows multiple concurrent readers without blocking each other.
//
// External code must use InitGlobal() to set and Get() to read, ensuring thread safety.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := &Config{}
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Controller bus
	case "BUS_ADDRESS":
		addr, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid BUS_ADDRESS %q: %w", value, err)
		}
		if addr < 1 || addr > 127 {
			return fmt.Errorf("BUS_ADDRESS must be 1-127, got %d", addr)
		}
		c.BusAddress = byte(addr)
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SERIAL_BAUD_RATE %q: %w", value, err)
		}
		c.SerialBaudRate = rate

	// IMU hardware
	case "IMU_I2C_BUS":
		c.IMUI2CBus = value
	case "IMU_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid IMU_I2C_ADDR %q: %w", value, err)
		}
		c.IMUI2CAddr = uint16(addr)

	// IMU sensor configuration
	case "IMU_ACCEL_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_ACCEL_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_ACCEL_RANGE must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", rangeVal)
		}
		c.IMUAccelRange = byte(rangeVal)
	case "IMU_GYRO_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_GYRO_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_GYRO_RANGE must be 0-3 (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s), got %d", rangeVal)
		}
		c.IMUGyroRange = byte(rangeVal)
	case "IMU_ODR_HZ":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_ODR_HZ %q: %w", value, err)
		}
		c.IMUODRHz = val

	// Fault handling
	case "IMU_INIT_RETRIES":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_INIT_RETRIES %q: %w", value, err)
		}
		if val < 1 {
			return fmt.Errorf("IMU_INIT_RETRIES must be >= 1, got %d", val)
		}
		c.IMUInitRetries = val
	case "IMU_FAULT_THRESHOLD":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_FAULT_THRESHOLD %q: %w", value, err)
		}
		if val < 1 {
			return fmt.Errorf("IMU_FAULT_THRESHOLD must be >= 1, got %d", val)
		}
		c.IMUFaultThreshold = val

	// Control loop
	case "LOOP_PERIOD_US":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid LOOP_PERIOD_US %q: %w", value, err)
		}
		if val < 1 {
			return fmt.Errorf("LOOP_PERIOD_US must be >= 1, got %d", val)
		}
		c.LoopPeriodUS = val
	case "STALE_TICKS":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid STALE_TICKS %q: %w", value, err)
		}
		c.StaleTicks = val

	// Host polling
	case "REQUEST_TIMEOUT_MS":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid REQUEST_TIMEOUT_MS %q: %w", value, err)
		}
		c.RequestTimeoutMS = val
	case "POLL_INTERVAL_MS":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid POLL_INTERVAL_MS %q: %w", value, err)
		}
		c.PollIntervalMS = val
	case "STALE_POLL_THRESHOLD":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid STALE_POLL_THRESHOLD %q: %w", value, err)
		}
		if val < 1 {
			return fmt.Errorf("STALE_POLL_THRESHOLD must be >= 1, got %d", val)
		}
		c.StalePollThreshold = val

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_BRIDGE":
		c.MQTTClientIDBridge = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_IMU":
		c.TopicIMU = value
	case "TOPIC_IMU_PHYSICAL":
		c.TopicIMUPhysical = value
	case "TOPIC_STATUS":
		c.TopicStatus = value

	// Web server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	// Display
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.BusAddress == 0 {
		return fmt.Errorf("BUS_ADDRESS is required")
	}
	if c.SerialPort == "" {
		return fmt.Errorf("SERIAL_PORT is required")
	}
	if c.SerialBaudRate == 0 {
		return fmt.Errorf("SERIAL_BAUD_RATE is required")
	}
	if c.IMUODRHz == 0 {
		return fmt.Errorf("IMU_ODR_HZ is required")
	}
	if c.LoopPeriodUS == 0 {
		return fmt.Errorf("LOOP_PERIOD_US is required")
	}
	if c.PollIntervalMS == 0 {
		return fmt.Errorf("POLL_INTERVAL_MS is required")
	}
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
// Acquires write lock (configMu.Lock) during initialization to prevent concurrent access.
// This is the only function that can set globalConfig.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
// Uses read lock (configMu.RLock) to allow multiple concurrent readers without blocking.
// This is thread-safe and efficient for concurrent access across goroutines.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
