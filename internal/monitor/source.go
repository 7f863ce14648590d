package monitor

import (
	"context"

	"github.com/web3-frozen/yield-monitor/internal/alert"
	"github.com/web3-frozen/yield-monitor/internal/market"
)

// Source defines the interface that all platform collectors implement.
// To add a platform, create a struct that implements this interface and
// register it with the Engine.
type Source interface {
	// Name returns a unique identifier for this source (e.g., "pendle").
	Name() string

	// Platform is stamped on every pool the source produces.
	Platform() market.Platform

	// Policy holds the alert thresholds applied to this source's pools.
	Policy() alert.Policy

	// Collect fetches the current markets and normalizes them.
	Collect(ctx context.Context) ([]market.Observation, error)
}
