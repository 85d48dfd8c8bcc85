// Package core contains the delivery domain contracts, the token store, and the
// delivery orchestrator. Adapters (identity client, delivery sender, stores)
// depend on this package; core must not depend on transport-specific adapters.
package core
