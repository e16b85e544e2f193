package engine

import "github.com/tabpress/tabledger/internal/content"

// Phase tags the lifecycle transition described by an (old, new)
// snapshot pair. The tag is derived once per transition; the debit and
// credit decisions keep their own guards and are evaluated
// independently, so a pathological pair can never be silently dropped by
// the classification.
type Phase string

const (
	PhaseNeverPublished   Phase = "never_published"
	PhaseStillPublished   Phase = "still_published"
	PhaseNewlyUnpublished Phase = "newly_unpublished"
	PhaseNewlyPublished   Phase = "newly_published"
	PhaseUnchanged        Phase = "unchanged"
)

// Classify derives the transition phase for a snapshot pair.
func Classify(old, new *content.Snapshot) Phase {
	nowPublished := new.Published() && new.Status == content.StatusPublished

	switch {
	case !old.Published() && nowPublished:
		return PhaseNewlyPublished
	case old.Published() && nowPublished:
		if old.Status == new.Status {
			return PhaseUnchanged
		}
		return PhaseStillPublished
	case old.Published():
		return PhaseNewlyUnpublished
	case old != nil && old.Status == new.Status:
		return PhaseUnchanged
	default:
		return PhaseNeverPublished
	}
}

// debitDue reports whether the old snapshot has published value to claw
// back: it was published, is not already deleted, and is leaving the
// published status.
func debitDue(old, new *content.Snapshot) bool {
	if !old.Published() {
		return false
	}
	if old.Status == content.StatusDeleted {
		return false
	}
	return new.Status != content.StatusPublished
}

// creditDue reports whether the new snapshot is newly published.
func creditDue(old, new *content.Snapshot) bool {
	return new.Published() && new.Status == content.StatusPublished && !old.Published()
}
