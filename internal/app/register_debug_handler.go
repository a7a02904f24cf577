// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Neel20/moteus-imu-firmware/internal/bus"
	"github.com/Neel20/moteus-imu-firmware/internal/lsm6"
)

// RegisterDebugSession holds WebSocket connection state for register
// debugging. The sensor bus is shared by all sessions; busMu serializes
// access since the debug tool owns the sensor without a control loop.
type RegisterDebugSession struct {
	Conn *websocket.Conn
	tr   bus.Transactor
	mu   *sync.Mutex
}

// Response type for all register debug messages.
type RegisterResponse struct {
	Type        string              `json:"type"` // "register_data", "register_map", "status", "error"
	Address     string              `json:"addr,omitempty"`
	Value       string              `json:"value,omitempty"`
	Registers   map[string]string   `json:"registers,omitempty"` // for bulk read
	Timestamp   string              `json:"timestamp,omitempty"`
	Message     string              `json:"message,omitempty"`
	Status      string              `json:"status,omitempty"`
	RegisterMap []lsm6.RegisterInfo `json:"register_map,omitempty"`
}

// RegisterConfigFile is the JSON structure for exported register dumps.
type RegisterConfigFile struct {
	Version   int               `json:"version"`
	Timestamp string            `json:"timestamp"`
	Registers map[string]string `json:"registers"` // hex address -> hex value
}

// RegisterDebugServer serves the register debug websocket against one
// sensor bus transactor.
type RegisterDebugServer struct {
	tr    bus.Transactor
	busMu sync.Mutex
}

func NewRegisterDebugServer(tr bus.Transactor) *RegisterDebugServer {
	return &RegisterDebugServer{tr: tr}
}

// HandleWS handles the WebSocket connection for register debugging.
func (srv *RegisterDebugServer) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("register_debug: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	session := &RegisterDebugSession{Conn: conn, tr: srv.tr, mu: &srv.busMu}

	// Send register map on connection
	if err := session.sendRegisterMap(); err != nil {
		log.Printf("register_debug: error sending register map: %v", err)
		return
	}

	// Message loop
	for {
		var rawMsg map[string]interface{}
		err := conn.ReadJSON(&rawMsg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("register_debug: websocket error: %v", err)
			}
			break
		}

		action, ok := rawMsg["action"].(string)
		if !ok {
			session.sendError("missing or invalid action field")
			continue
		}

		// Route based on action
		switch action {
		case "get_map":
			session.sendRegisterMap()
		case "read":
			session.handleRead(rawMsg)
		case "read_all":
			session.handleReadAll(rawMsg)
		case "write":
			session.handleWrite(rawMsg)
		case "export_config":
			session.handleExportConfig(rawMsg)
		default:
			session.sendError(fmt.Sprintf("unknown action: %s", action))
		}
	}
}

func (s *RegisterDebugSession) readReg(reg byte) (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := bus.ReadReg(s.tr, reg, 1)
	if err != nil {
		return 0, err
	}
	if len(data) != 1 {
		return 0, fmt.Errorf("read returned %d bytes", len(data))
	}
	return data[0], nil
}

func (s *RegisterDebugSession) writeReg(reg, value byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bus.WriteReg(s.tr, reg, value)
}

func (s *RegisterDebugSession) handleRead(rawMsg map[string]interface{}) {
	addr, _ := rawMsg["addr"].(string)
	if addr == "" {
		s.sendError("missing addr field")
		return
	}

	// Parse hex address
	var addrByte byte
	if _, err := fmt.Sscanf(addr, "0x%X", &addrByte); err != nil {
		s.sendError(fmt.Sprintf("invalid address format: %s", addr))
		return
	}

	value, err := s.readReg(addrByte)
	if err != nil {
		s.sendError(fmt.Sprintf("read error: %v", err))
		return
	}

	// Send response
	resp := RegisterResponse{
		Type:      "register_data",
		Address:   addr,
		Value:     fmt.Sprintf("0x%02X", value),
		Timestamp: time.Now().Format(time.RFC3339),
	}
	s.Conn.WriteJSON(resp)
}

func (s *RegisterDebugSession) handleReadAll(rawMsg map[string]interface{}) {
	registers, err := s.readAll()
	if err != nil {
		s.sendError(fmt.Sprintf("read all error: %v", err))
		return
	}

	resp := RegisterResponse{
		Type:      "register_data",
		Registers: registers,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	s.Conn.WriteJSON(resp)
}

// readAll dumps every register named in the register map.
func (s *RegisterDebugSession) readAll() (map[string]string, error) {
	regMap := make(map[string]string)
	for _, info := range lsm6.RegisterMap() {
		var addrByte byte
		if _, err := fmt.Sscanf(info.Address, "0x%X", &addrByte); err != nil {
			continue
		}
		value, err := s.readReg(addrByte)
		if err != nil {
			return nil, fmt.Errorf("reg %s: %w", info.Address, err)
		}
		regMap[info.Address] = fmt.Sprintf("0x%02X", value)
	}
	return regMap, nil
}

func (s *RegisterDebugSession) handleWrite(rawMsg map[string]interface{}) {
	addr, _ := rawMsg["addr"].(string)
	valueStr, _ := rawMsg["value"].(string)

	if addr == "" || valueStr == "" {
		s.sendError("missing addr or value field")
		return
	}

	// Parse hex address and value
	var addrByte, valueByte byte
	if _, err := fmt.Sscanf(addr, "0x%X", &addrByte); err != nil {
		s.sendError(fmt.Sprintf("invalid address format: %s", addr))
		return
	}
	if _, err := fmt.Sscanf(valueStr, "0x%X", &valueByte); err != nil {
		s.sendError(fmt.Sprintf("invalid value format: %s", valueStr))
		return
	}

	if !isRegisterWritable(addr) {
		s.sendError(fmt.Sprintf("register %s is not writable", addr))
		return
	}

	if err := s.writeReg(addrByte, valueByte); err != nil {
		s.sendError(fmt.Sprintf("write error: %v", err))
		return
	}

	// Send confirmation
	resp := RegisterResponse{
		Type:      "register_data",
		Address:   addr,
		Value:     valueStr,
		Timestamp: time.Now().Format(time.RFC3339),
		Message:   "write successful",
	}
	s.Conn.WriteJSON(resp)
}

func (s *RegisterDebugSession) handleExportConfig(rawMsg map[string]interface{}) {
	registers, err := s.readAll()
	if err != nil {
		s.sendError(fmt.Sprintf("export error: %v", err))
		return
	}

	configFile := RegisterConfigFile{
		Version:   1,
		Timestamp: time.Now().Format(time.RFC3339),
		Registers: registers,
	}

	// Send as download
	configJSON, _ := json.Marshal(configFile)
	rawResp := map[string]interface{}{
		"type":     "export_config",
		"message":  "config exported",
		"config":   string(configJSON),
		"filename": fmt.Sprintf("lsm6dsv16x_%s_registers.json", time.Now().Format("20060102_150405")),
	}
	s.Conn.WriteJSON(rawResp)
}

func (s *RegisterDebugSession) sendRegisterMap() error {
	resp := RegisterResponse{
		Type:        "register_map",
		RegisterMap: lsm6.RegisterMap(),
	}
	return s.Conn.WriteJSON(resp)
}

func (s *RegisterDebugSession) sendError(message string) {
	resp := RegisterResponse{
		Type:    "error",
		Message: message,
	}
	s.Conn.WriteJSON(resp)
}

// isRegisterWritable allows writes only to registers the map marks RW or
// W. Output and status registers stay read-only.
func isRegisterWritable(addr string) bool {
	for _, info := range lsm6.RegisterMap() {
		if info.Address == addr {
			return info.Access == "RW" || info.Access == "W"
		}
	}
	return false
}
