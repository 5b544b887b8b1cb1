package core

// Recorder receives simulation measurements. Implementations must not alter
// simulation state.
type Recorder interface {
	RecordTurn(time int, federates []*Federate)
	RecordResolution(federate, outcome string, value float64)
	RecordReveal(kind string)
	RecordDisturbanceHit(federate string)
	RecordLiquidation(federate string)
}

type noopRecorder struct{}

func (noopRecorder) RecordTurn(int, []*Federate)              {}
func (noopRecorder) RecordResolution(string, string, float64) {}
func (noopRecorder) RecordReveal(string)                      {}
func (noopRecorder) RecordDisturbanceHit(string)              {}
func (noopRecorder) RecordLiquidation(string)                 {}
