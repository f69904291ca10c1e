// Package binding checks that a set of artifact-to-recipient pairings
// uses each recipient at most once.
package binding

import "github.com/slipmail/slipmail/internal/model"

// Validate fails with *model.DuplicateRecipientError on the first recipient
// identity that appears in more than one binding. Identities are compared
// in canonical form; blank recipients are ignored.
func Validate(bindings []model.Binding) error {
	seen := make(map[string]struct{}, len(bindings))
	for _, b := range bindings {
		email := model.CanonicalEmail(b.Recipient)
		if email == "" {
			continue
		}
		if _, dup := seen[email]; dup {
			return &model.DuplicateRecipientError{Recipient: email}
		}
		seen[email] = struct{}{}
	}
	return nil
}

// Candidates returns the recipients that may still be offered for
// artifactID: everyone not already bound to a different artifact.
// Directory order is preserved.
func Candidates(recipients []model.Recipient, bindings []model.Binding, artifactID string) []model.Recipient {
	used := make(map[string]struct{}, len(bindings))
	for _, b := range bindings {
		if b.ArtifactID == artifactID {
			continue
		}
		if email := model.CanonicalEmail(b.Recipient); email != "" {
			used[email] = struct{}{}
		}
	}

	out := make([]model.Recipient, 0, len(recipients))
	for _, r := range recipients {
		if _, taken := used[model.CanonicalEmail(r.Email)]; taken {
			continue
		}
		out = append(out, r)
	}
	return out
}
