package app

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/Neel20/moteus-imu-firmware/internal/config"
	"github.com/Neel20/moteus-imu-firmware/internal/host"
	"github.com/Neel20/moteus-imu-firmware/internal/imu"
)

// rawReading is the JSON shape published on the raw IMU topic: the raw
// counts plus the controller- and host-side health flags.
type rawReading struct {
	imu.Sample
	Stale        bool `json:"stale"`
	Faulted      bool `json:"faulted"`
	StaleWarning bool `json:"stale_warning"`
}

// bridgeStatus is published on the status topic once per second.
type bridgeStatus struct {
	Polls   uint64 `json:"polls"`
	Errors  uint64 `json:"errors"`
	Faulted bool   `json:"faulted"`
	LastSeq uint16 `json:"last_seq"`
	Time    string `json:"time"`
}

// RunTelemetryBridge polls the controller for IMU samples over the serial
// bus and republishes them to MQTT, raw counts on one topic and converted
// physical units on another.
func RunTelemetryBridge() error {
	log.Println("starting telemetry bridge (serial bus → MQTT)")

	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDBridge)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("bridge: connected to MQTT broker at %s", cfg.MQTTBroker)

	// Reads must return periodically so the host client's request
	// timeout can fire; the port has no I/O deadlines. The driver rounds
	// the inter-character timeout to deciseconds with a 100 ms floor.
	interCharMS := uint(cfg.RequestTimeoutMS)
	if interCharMS < 100 {
		interCharMS = 100
	}
	port, err := serial.Open(serial.OpenOptions{
		PortName:              cfg.SerialPort,
		BaudRate:              uint(cfg.SerialBaudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		InterCharacterTimeout: interCharMS,
		ParityMode:            serial.PARITY_NONE,
	})
	if err != nil {
		return err
	}
	defer port.Close()
	log.Printf("bridge: serial port %s opened at %d baud", cfg.SerialPort, cfg.SerialBaudRate)

	hc := host.NewClient(port, cfg.BusAddress,
		time.Duration(cfg.RequestTimeoutMS)*time.Millisecond, cfg.StalePollThreshold)

	var (
		polls, pollErrs uint64
		lastSeq         uint16
		lastFaulted     bool
		lastStatus      time.Time
	)

	ticker := time.NewTicker(time.Duration(cfg.PollIntervalMS) * time.Millisecond)
	defer ticker.Stop()

	for t := range ticker.C {
		polls++
		r, err := hc.ReadSample()
		if err != nil {
			pollErrs++
			var ce *host.CommunicationError
			if errors.As(err, &ce) {
				log.Printf("bridge: poll %d: %v", polls, ce)
			} else {
				log.Printf("bridge: poll %d: %v", polls, err)
			}
			continue
		}
		lastSeq = r.Seq
		lastFaulted = r.Faulted
		if r.StaleWarning {
			log.Printf("bridge: sample seq %d not advancing (controller stale=%v faulted=%v)",
				r.Seq, r.Stale, r.Faulted)
		}

		raw := rawReading{Sample: r.Sample, Stale: r.Stale, Faulted: r.Faulted, StaleWarning: r.StaleWarning}
		if payload, err := json.Marshal(raw); err != nil {
			log.Printf("bridge: raw marshal error: %v", err)
		} else if token := client.Publish(cfg.TopicIMU, 0, true, payload); token.Wait() && token.Error() != nil {
			log.Printf("bridge: MQTT publish error (%s): %v", cfg.TopicIMU, token.Error())
			continue
		}

		phys := imu.Convert(r.Sample, cfg.IMUAccelRange, cfg.IMUGyroRange)
		if payload, err := json.Marshal(phys); err != nil {
			log.Printf("bridge: physical marshal error: %v", err)
		} else if token := client.Publish(cfg.TopicIMUPhysical, 0, true, payload); token.Wait() && token.Error() != nil {
			log.Printf("bridge: MQTT publish error (%s): %v", cfg.TopicIMUPhysical, token.Error())
			continue
		}

		if t.Sub(lastStatus) >= time.Second {
			lastStatus = t
			st := bridgeStatus{
				Polls:   polls,
				Errors:  pollErrs,
				Faulted: lastFaulted,
				LastSeq: lastSeq,
				Time:    t.Format(time.RFC3339),
			}
			if payload, err := json.Marshal(st); err != nil {
				log.Printf("bridge: status marshal error: %v", err)
			} else {
				client.Publish(cfg.TopicStatus, 0, true, payload)
			}
			log.Printf("bridge: seq=%d accel ax=%d ay=%d az=%d | gyro gx=%d gy=%d gz=%d | stale=%v faulted=%v polls=%d errs=%d",
				r.Seq, r.Ax, r.Ay, r.Az, r.Gx, r.Gy, r.Gz, r.Stale, r.Faulted, polls, pollErrs)
		}
	}
	return nil
}
