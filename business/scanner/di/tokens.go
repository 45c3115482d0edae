// Package di contains dependency injection tokens for the scanner context.
package di

import (
	"arbscan/business/scanner/app"
	"arbscan/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Orchestrator = di.NewToken[*app.Orchestrator]("scanner.Orchestrator")
)

// Private dependency tokens - internal to the scanner module
var (
	Store    = di.NewToken[app.OpportunityStore]("scanner:store")
	Notifier = di.NewToken[app.Notifier]("scanner:notifier")
)

// Helper functions for type-safe access
func GetOrchestrator(c di.ServiceRegistry) *app.Orchestrator {
	return di.GetToken(c, Orchestrator)
}

func GetStore(c di.ServiceRegistry) app.OpportunityStore {
	return di.GetToken(c, Store)
}

func GetNotifier(c di.ServiceRegistry) app.Notifier {
	return di.GetToken(c, Notifier)
}
