package imu

// Sample is a single validated 6-axis reading in raw sensor counts.
type Sample struct {
	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`

	Seq   uint16 `json:"seq"`   // increments once per published sample, wraps
	Tick  uint32 `json:"tick"`  // control-loop tick on which the read completed
	Valid bool   `json:"valid"` // set only after a complete, status-checked read
}

// Age reports how many ticks have elapsed since the sample was published.
// Tick counters wrap; the subtraction is deliberately unsigned.
func (s Sample) Age(now uint32) uint32 {
	return now - s.Tick
}
