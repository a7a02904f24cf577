package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Neel20/moteus-imu-firmware/internal/config"
	"github.com/Neel20/moteus-imu-firmware/internal/imu"
)

// RunConsoleMQTT subscribes to the bridge's topics and prints every
// message in a fixed-width line format. Diagnostics tool, not part of the
// data path.
func RunConsoleMQTT() error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	// Subscribe to raw IMU counts
	rawToken := client.Subscribe(cfg.TopicIMU, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var r rawReading
		if err := json.Unmarshal(msg.Payload(), &r); err != nil {
			log.Printf("console: raw unmarshal error: %v", err)
			return
		}

		flags := ""
		if r.Stale {
			flags += " STALE"
		}
		if r.Faulted {
			flags += " FAULT"
		}
		if r.StaleWarning {
			flags += " WARN"
		}
		fmt.Printf(
			"[RAW ] seq=%5d ax=%6d ay=%6d az=%6d  gx=%6d gy=%6d gz=%6d%s\n",
			r.Seq, r.Ax, r.Ay, r.Az, r.Gx, r.Gy, r.Gz, flags,
		)
	})
	rawToken.Wait()
	if rawToken.Error() != nil {
		return rawToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicIMU)

	// Subscribe to converted physical units
	physToken := client.Subscribe(cfg.TopicIMUPhysical, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var p imu.Physical
		if err := json.Unmarshal(msg.Payload(), &p); err != nil {
			log.Printf("console: physical unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[PHYS] seq=%5d a=(%7.3f %7.3f %7.3f) m/s²  g=(%8.2f %8.2f %8.2f) °/s\n",
			p.Seq, p.Ax, p.Ay, p.Az, p.Gx, p.Gy, p.Gz,
		)
	})
	physToken.Wait()
	if physToken.Error() != nil {
		return physToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicIMUPhysical)

	// Subscribe to bridge status
	statusToken := client.Subscribe(cfg.TopicStatus, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var st bridgeStatus
		if err := json.Unmarshal(msg.Payload(), &st); err != nil {
			log.Printf("console: status unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[STAT] polls=%d errors=%d last_seq=%d faulted=%v time=%s\n",
			st.Polls, st.Errors, st.LastSeq, st.Faulted, st.Time,
		)
	})
	statusToken.Wait()
	if statusToken.Error() != nil {
		return statusToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicStatus)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
