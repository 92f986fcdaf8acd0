// Package sensors exposes read-only device state the scheduler uses to gate
// background work. Implementations are platform bindings; the fixed values
// here cover composition roots and tests.
package sensors

// NetworkClass is the coarse connection type.
type NetworkClass int

const (
	NetworkUnavailable NetworkClass = iota
	NetworkWiFi
	NetworkCellular
)

func (c NetworkClass) String() string {
	switch c {
	case NetworkWiFi:
		return "wifi"
	case NetworkCellular:
		return "cellular"
	}
	return "unavailable"
}

// Network reports the current connection.
type Network interface {
	Class() NetworkClass
	// Expensive marks metered or otherwise constrained links.
	Expensive() bool
}

// Battery reports charge state. Level is 0..1.
type Battery interface {
	Level() float64
	Charging() bool
}

// StaticNetwork is a fixed Network reading.
type StaticNetwork struct {
	NetworkClass NetworkClass
	Metered      bool
}

func (s StaticNetwork) Class() NetworkClass { return s.NetworkClass }
func (s StaticNetwork) Expensive() bool     { return s.Metered }

// StaticBattery is a fixed Battery reading.
type StaticBattery struct {
	ChargeLevel float64
	OnCharger   bool
}

func (s StaticBattery) Level() float64 { return s.ChargeLevel }
func (s StaticBattery) Charging() bool { return s.OnCharger }
