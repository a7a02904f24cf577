// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"
	"net/http"

	"github.com/Neel20/moteus-imu-firmware/internal/app"
	"github.com/Neel20/moteus-imu-firmware/internal/bus"
	"github.com/Neel20/moteus-imu-firmware/internal/config"
)

// Standalone register debug tool. Talks to the sensor directly over I2C;
// do not run it while the controller owns the bus.
func main() {
	configPath := flag.String("config", "./imu_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting LSM6DSV16X register debug tool (standalone)")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Get()

	tr, err := bus.NewI2C(cfg.IMUI2CBus, cfg.IMUI2CAddr)
	if err != nil {
		log.Fatalf("failed to open sensor bus: %v", err)
	}
	defer tr.Close()
	log.Printf("sensor bus open at I2C addr 0x%02X", cfg.IMUI2CAddr)

	srv := app.NewRegisterDebugServer(tr)
	http.HandleFunc("/ws", srv.HandleWS)

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "web/register_debug.html")
	})

	addr := ":8081"
	log.Printf("register debug tool listening on %s", addr)
	log.Printf("open http://localhost:8081 in your browser")
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
