package monitor

import "errors"

var (
	// ErrFeedFetch marks a feed that could not be fetched or parsed.
	ErrFeedFetch = errors.New("feed fetch failed")
	// ErrMetadataNotFound marks a video or channel id unknown to the provider.
	ErrMetadataNotFound = errors.New("metadata not found")
	// ErrSinkDelivery marks a notification that was not accepted by the destination.
	ErrSinkDelivery = errors.New("sink delivery failed")
	// ErrStateStore marks a failed read or write of persisted video state.
	ErrStateStore = errors.New("state store failure")
	// ErrNotConfigured marks a tenant without destination or channels.
	ErrNotConfigured = errors.New("not configured")
	// ErrRunInProgress is returned when a tenant pass is already running in this process.
	ErrRunInProgress = errors.New("run already in progress")
)

// ErrorClass groups errors by how a run reacts to them.
type ErrorClass int

const (
	// ErrorClassUnknown is any error outside the taxonomy.
	ErrorClassUnknown ErrorClass = iota
	// ErrorClassFeed is reported to the destination and the run continues.
	ErrorClassFeed
	// ErrorClassMetadata aborts the channel cycle.
	ErrorClassMetadata
	// ErrorClassDelivery is logged only.
	ErrorClassDelivery
	// ErrorClassState aborts the channel cycle.
	ErrorClassState
	// ErrorClassConfig aborts the whole pass.
	ErrorClassConfig
)

// String returns a human-readable name for the error class.
func (c ErrorClass) String() string {
	switch c {
	case ErrorClassFeed:
		return "feed"
	case ErrorClassMetadata:
		return "metadata"
	case ErrorClassDelivery:
		return "delivery"
	case ErrorClassState:
		return "state"
	case ErrorClassConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Classify maps an error onto its ErrorClass using errors.Is.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ErrorClassUnknown
	case errors.Is(err, ErrFeedFetch):
		return ErrorClassFeed
	case errors.Is(err, ErrMetadataNotFound):
		return ErrorClassMetadata
	case errors.Is(err, ErrSinkDelivery):
		return ErrorClassDelivery
	case errors.Is(err, ErrStateStore):
		return ErrorClassState
	case errors.Is(err, ErrNotConfigured):
		return ErrorClassConfig
	default:
		return ErrorClassUnknown
	}
}
