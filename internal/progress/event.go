package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart      Stage = "RUN_START"
	StageResourceDone  Stage = "RESOURCE_DONE"
	StageResourceError Stage = "RESOURCE_ERROR"
	StageRunDone       Stage = "RUN_DONE"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes.
const (
	Status1xx   StatusClass = "1xx"
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
	StatusNone  StatusClass = "none"
)

// Event captures a single step of a warm run.
type Event struct {
	// RunID identifies the run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Worker is the index of the emitting worker, -1 for run-level events.
	Worker      int
	URI         string
	Site        string
	CacheStatus warmer.CacheStatus
	HTTPStatus  int
	StatusClass StatusClass
	Captcha     bool
	Bytes       int64
	Dur         time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageResourceDone:
		if e.URI == "" {
			return errors.New("resource done requires uri")
		}
		if e.StatusClass == "" || e.CacheStatus == "" {
			return errors.New("resource done requires status class and cache status")
		}
	case StageResourceError:
		if e.URI == "" {
			return errors.New("resource error requires uri")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ResourceEvent builds the completion event for a finished resource.
func ResourceEvent(runID [16]byte, worker int, res warmer.Resource, ts time.Time) Event {
	evt := Event{
		RunID:       runID,
		TS:          ts,
		Stage:       StageResourceDone,
		Worker:      worker,
		URI:         res.URI,
		Site:        siteOf(res.URI),
		CacheStatus: res.CacheStatus,
		HTTPStatus:  res.HTTPStatus,
		StatusClass: ClassifyStatus(res.HTTPStatus),
		Captcha:     res.CaptchaFound,
		Bytes:       res.Bytes,
		Dur:         res.Duration,
	}
	if res.CacheStatus == warmer.CacheStatusError {
		evt.Stage = StageResourceError
		evt.Note = res.Err
	}
	return evt
}

// RunEvent builds a run-level lifecycle event.
func RunEvent(runID [16]byte, stage Stage, ts time.Time, dur time.Duration) Event {
	return Event{RunID: runID, TS: ts, Stage: stage, Worker: -1, Dur: dur}
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// RunUUID converts the binary run ID back to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// ClassifyStatus groups HTTP status codes. Zero means no response was read.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code == warmer.HTTPStatusUnset:
		return StatusNone
	case code >= 100 && code < 200:
		return Status1xx
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
