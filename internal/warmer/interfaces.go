package warmer

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Fetcher issues a single GET and reads the complete response.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Registry hands out pending resources and collects finished ones.
type Registry interface {
	Pop() (Resource, bool)
	Complete(resource Resource) error
	CaptchaDetected() bool
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}
