// Package di contains dependency injection tokens for the arbitrage context.
package di

import (
	"arbscan/business/arbitrage/app"
	"arbscan/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Detector = di.NewToken[*app.Detector]("arbitrage.Detector")
)

// Helper functions for type-safe access
func GetDetector(c di.ServiceRegistry) *app.Detector {
	return di.GetToken(c, Detector)
}
