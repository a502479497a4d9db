package lens

import (
	"runtime"
	"time"
)

// Event types sent by the client wrappers.
const (
	EventLog       = "log"
	EventDump      = "dump"
	EventSQL       = "sql"
	EventException = "exception"
	EventTime      = "time"
	EventTable     = "table"
	EventHTTP      = "http"
	EventDiff      = "diff"

	unknownEventType = "unknown"
)

// TimestampLayout is the ISO-8601 layout of Envelope.Timestamp.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Envelope wraps a typed data body with metadata for the debug server.
type Envelope struct {
	Type      string `json:"type" msgpack:"type"`
	Timestamp string `json:"timestamp" msgpack:"timestamp"`
	Origin    string `json:"origin" msgpack:"origin"`
	Data      any    `json:"data" msgpack:"data"`
	Meta      Meta   `json:"meta" msgpack:"meta"`
}

// Meta describes the process that produced an envelope.
type Meta struct {
	Runtime     string `json:"runtime" msgpack:"runtime"`         // Go version
	Environment string `json:"environment" msgpack:"environment"` // execution environment tag
	Memory      string `json:"memory" msgpack:"memory"`           // current heap allocation, humanized
}

var defaultOriginDetector = NewOriginDetector("")

// Assemble wraps body into an Envelope, detecting the origin from the working directory module
// when the config has none.
func Assemble(eventType string, body any, cfg Config) Envelope {
	return AssembleWith(eventType, body, cfg, defaultOriginDetector)
}

// AssembleWith wraps body into an Envelope using detector as the origin fallback.
// All envelope fields are populated regardless of the config state.
func AssembleWith(eventType string, body any, cfg Config, detector OriginDetector) Envelope {
	if eventType == "" {
		eventType = unknownEventType
	}
	origin := cfg.Origin
	if origin == "" && detector != nil {
		origin = detector.DetectOrigin()
	}
	if origin == "" {
		origin = unknownOrigin
	}
	return Envelope{
		Type:      eventType,
		Timestamp: time.Now().Format(TimestampLayout),
		Origin:    origin,
		Data:      body,
		Meta:      currentMeta(cfg),
	}
}

func currentMeta(cfg Config) Meta {
	environment := cfg.Environment
	if environment == "" {
		environment = runtime.GOOS + "/" + runtime.GOARCH
	}
	return Meta{
		Runtime:     runtime.Version(),
		Environment: environment,
		Memory:      HumanizeBytes(currentMemory()),
	}
}

func currentMemory() int64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int64(ms.Alloc)
}
