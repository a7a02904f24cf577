// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/Neel20/moteus-imu-firmware/internal/app"
	"github.com/Neel20/moteus-imu-firmware/internal/config"
)

func main() {
	configPath := flag.String("config", "./imu_config.txt", "path to configuration file")
	useSim := flag.Bool("sim", false, "use the simulated sensor instead of real I2C hardware")
	flag.Parse()

	log.Println("starting motor controller (control loop + IMU + bus service)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunController(*useSim); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
