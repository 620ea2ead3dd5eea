// Package distributionservice implements the Merkle token distribution
// service inside the token-distribution context.
//
// The module owns the off-chain mirror of distributor contract state:
// allocation validation, commitment tree construction, proof serving,
// claim-event ingestion, and automatic finalization of expired
// distributions. The distributor contract stays the source of truth for
// claimed totals and finalization; the mirror only ever converges toward it.
//
// Layering follows the monolith conventions: domain holds entities and the
// tree algorithm, application holds commands/queries/workers behind explicit
// ports, adapters provide postgres, in-memory, EVM ledger, and HTTP
// implementations, and transport carries module-private HTTP DTOs.
package distributionservice
