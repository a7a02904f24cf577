package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validConfig = `
# controller bus
BUS_ADDRESS=1
SERIAL_PORT=/dev/ttyUSB0
SERIAL_BAUD_RATE=115200

# imu
IMU_I2C_ADDR=0x6B
IMU_ACCEL_RANGE=3
IMU_GYRO_RANGE=3
IMU_ODR_HZ=480
IMU_INIT_RETRIES=3
IMU_FAULT_THRESHOLD=5

# loop
LOOP_PERIOD_US=2500
STALE_TICKS=16

# host
REQUEST_TIMEOUT_MS=100
POLL_INTERVAL_MS=10
STALE_POLL_THRESHOLD=3

# mqtt
MQTT_BROKER=tcp://localhost:1883
TOPIC_IMU=moteus/imu
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BusAddress != 1 {
		t.Errorf("BusAddress = %d, want 1", cfg.BusAddress)
	}
	if cfg.IMUI2CAddr != 0x6B {
		t.Errorf("IMUI2CAddr = 0x%02X, want 0x6B", cfg.IMUI2CAddr)
	}
	if cfg.IMUAccelRange != 3 || cfg.IMUGyroRange != 3 {
		t.Errorf("ranges = %d/%d, want 3/3", cfg.IMUAccelRange, cfg.IMUGyroRange)
	}
	if cfg.IMUODRHz != 480 {
		t.Errorf("IMUODRHz = %d, want 480", cfg.IMUODRHz)
	}
	if cfg.LoopPeriodUS != 2500 {
		t.Errorf("LoopPeriodUS = %d, want 2500", cfg.LoopPeriodUS)
	}
	if cfg.TopicIMU != "moteus/imu" {
		t.Errorf("TopicIMU = %q", cfg.TopicIMU)
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	_, err := Load(writeConfig(t, validConfig+"\nNO_SUCH_KEY=1\n"))
	if err == nil || !strings.Contains(err.Error(), "unknown config key") {
		t.Errorf("err = %v, want unknown key error", err)
	}
}

func TestLoadRejectsOutOfRange(t *testing.T) {
	for _, line := range []string{
		"IMU_ACCEL_RANGE=4",
		"IMU_GYRO_RANGE=-1",
		"BUS_ADDRESS=200",
		"IMU_FAULT_THRESHOLD=0",
	} {
		if _, err := Load(writeConfig(t, validConfig+"\n"+line+"\n")); err == nil {
			t.Errorf("%s accepted", line)
		}
	}
}

func TestLoadRequiresMandatoryKeys(t *testing.T) {
	for _, drop := range []string{"BUS_ADDRESS", "SERIAL_PORT", "IMU_ODR_HZ", "LOOP_PERIOD_US", "MQTT_BROKER"} {
		var kept []string
		for _, line := range strings.Split(validConfig, "\n") {
			if !strings.HasPrefix(strings.TrimSpace(line), drop+"=") {
				kept = append(kept, line)
			}
		}
		if _, err := Load(writeConfig(t, strings.Join(kept, "\n"))); err == nil {
			t.Errorf("config without %s accepted", drop)
		}
	}
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	_, err := Load(writeConfig(t, "THIS IS NOT KEY VALUE\n"))
	if err == nil {
		t.Error("malformed line accepted")
	}
}
