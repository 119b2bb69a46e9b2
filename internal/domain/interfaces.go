package domain

import "context"

// ─── Collaborator Interfaces ────────────────────────────────────────────────
// These interfaces define boundaries between the core and external
// collaborators (spec §1, §6). Infrastructure implements them; the
// scheduler and cache depend only on them.

// TrialLog is an append-only store of graded exercise attempts.
type TrialLog interface {
	// Append records a trial. Returns ErrStorage on failure.
	Append(ctx context.Context, t Trial) error

	// Recent returns the most recent n trials for exercise, in
	// reverse-chronological order (insertion order breaks ties within
	// equal timestamps).
	Recent(ctx context.Context, exercise UnitHandle, n int) ([]Trial, error)
}

// RewardLog is an append-only store of reward events.
type RewardLog interface {
	Append(ctx context.Context, e RewardEvent) error
	Recent(ctx context.Context, unit UnitHandle, n int) ([]RewardEvent, error)
}

// Blacklist is the set of units to be treated as mastered regardless of
// their own trial history.
type Blacklist interface {
	Contains(ctx context.Context, h UnitHandle) (bool, error)
	Add(ctx context.Context, h UnitHandle) error
	Remove(ctx context.Context, h UnitHandle) error
}

// ManifestRef identifies the on-disk or content-addressed location of a
// unit's manifest. Manifest parsing itself is out of core scope; this is
// the narrow reference the scheduler hands back to callers.
type ManifestRef struct {
	Digest string // content hash, e.g. "sha256:..."
	Path   string // collaborator-defined location hint
}

// ManifestStore resolves a unit handle to its manifest reference.
type ManifestStore interface {
	Resolve(ctx context.Context, h UnitHandle) (ManifestRef, error)
}

// ReviewList is an external collaborator narrowing a traversal to a
// learner's saved review set (spec §4.7 ReviewListFilter).
type ReviewList interface {
	Contains(ctx context.Context, h UnitHandle) (bool, error)
	Handles(ctx context.Context) ([]UnitHandle, error)
}
