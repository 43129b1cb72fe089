// Package di contains dependency injection tokens for the detection context.
package di

import (
	"github.com/fd1az/dexarb/business/detection/app"
	"github.com/fd1az/dexarb/business/detection/domain"
	"github.com/fd1az/dexarb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Detector = di.NewToken[*app.Detector]("detection.Detector")
	// RouteCooldown is public so the execution engine can record trade
	// outcomes against routes.
	RouteCooldown = di.NewToken[*domain.RouteCooldown]("detection.RouteCooldown")
)

// Private dependency tokens - internal to detection module
var (
	WhitelistProvider = di.NewToken[app.WhitelistProvider]("detection:whitelistProvider")
	QuoteVerifier     = di.NewToken[app.QuoteVerifier]("detection:quoteVerifier")
)

// Helper functions for type-safe access
func GetDetector(c di.ServiceRegistry) *app.Detector {
	return di.GetToken(c, Detector)
}

func GetRouteCooldown(c di.ServiceRegistry) *domain.RouteCooldown {
	return di.GetToken(c, RouteCooldown)
}
