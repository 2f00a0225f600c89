package telemetry

// Provider gives read access to the most recently decoded sample.
// Get returns nil until the first payload has been decoded.
type Provider interface {
	Get() *Sample
}
