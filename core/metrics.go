package core

// Metrics collects runtime measurements of the attendance engine.
type Metrics interface {
	// ObserveWrite records the outcome of a single store write ("create", "update", "delete").
	ObserveWrite(op string, ok bool)
	// ObserveSnapshot records one live feed snapshot and the aggregation result.
	ObserveSnapshot(records, sessions int)
	ObserveMalformedRecord()
	// ListenerOpened is called with +1 when a live listener opens and -1 when it closes.
	ListenerOpened(delta int)
}

type nopMetrics struct{}

var NopMetrics Metrics = nopMetrics{}

func (nopMetrics) ObserveWrite(string, bool) {}
func (nopMetrics) ObserveSnapshot(int, int)  {}
func (nopMetrics) ObserveMalformedRecord()   {}
func (nopMetrics) ListenerOpened(int)        {}
