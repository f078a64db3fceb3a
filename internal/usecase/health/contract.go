package health

import "context"

// CachePinger checks availability of the shared image-text cache backend.
type CachePinger interface {
	Ping(ctx context.Context) error
}

// VisionChecker checks vision model provider availability.
type VisionChecker interface {
	HealthCheck(ctx context.Context) error
}
