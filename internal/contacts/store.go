// Package contacts persists research output back onto contact records. The
// orchestrator treats this store as a collaborator: updates are idempotent
// and a failure here never fails the contact's research outcome.
package contacts

import "context"

// ResearchTag marks contact records that have been enriched.
const ResearchTag = "ai-researched"

// Store updates the backing contact record with enrichment output.
type Store interface {
	// UpdateResearch writes research notes and tags onto the contact record.
	// Idempotent: repeating the same update is safe.
	UpdateResearch(ctx context.Context, contactID, notes string, tags []string) error
	Close() error
}
