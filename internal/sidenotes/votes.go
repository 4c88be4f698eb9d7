package sidenotes

// voteAction is the decision resolveVote reaches for one cast against the
// voter's existing row for the same target.
type voteAction int

const (
	voteActionInsert voteAction = iota
	voteActionRemove
	voteActionReplace
)

// resolveVote applies the toggle semantics: casting a value with no existing
// vote inserts one, casting the same value again removes it, and casting the
// opposite value replaces it. A conflicting insert that races an existing row
// therefore lands on the replace or remove path instead of failing.
func resolveVote(existing *Vote, value VoteValue) voteAction {
	if existing == nil {
		return voteActionInsert
	}
	if existing.Value == value.Int() {
		return voteActionRemove
	}
	return voteActionReplace
}

// TallyVotes recomputes the aggregate for one target from its full vote set.
// Aggregates are never incremented in place, so they cannot drift out of sync
// with the underlying votes.
func TallyVotes(votes []Vote) VoteTally {
	tally := VoteTally{}
	for _, vote := range votes {
		switch {
		case vote.Value > 0:
			tally.Upvotes++
		case vote.Value < 0:
			tally.Downvotes++
		}
	}
	tally.NetVotes = tally.Upvotes - tally.Downvotes
	return tally
}

// viewerVoteOf returns the given user's vote value within a target's vote
// set, or zero when the user has not voted.
func viewerVoteOf(votes []Vote, userID string) int {
	for _, vote := range votes {
		if vote.UserID == userID {
			return vote.Value
		}
	}
	return 0
}
