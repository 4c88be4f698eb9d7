package sidenotes

import "testing"

func TestResolveVoteInsertsWhenNoExistingVote(t *testing.T) {
	if action := resolveVote(nil, mustVoteValue(t, 1)); action != voteActionInsert {
		t.Fatalf("expected insert, got %d", action)
	}
}

func TestResolveVoteRemovesOnSameValue(t *testing.T) {
	existing := &Vote{VoteID: "v-1", Value: 1}
	if action := resolveVote(existing, mustVoteValue(t, 1)); action != voteActionRemove {
		t.Fatalf("expected remove, got %d", action)
	}
}

func TestResolveVoteReplacesOnOppositeValue(t *testing.T) {
	existing := &Vote{VoteID: "v-1", Value: -1}
	if action := resolveVote(existing, mustVoteValue(t, 1)); action != voteActionReplace {
		t.Fatalf("expected replace, got %d", action)
	}
}

func TestTallyVotesRecomputesFromFullSet(t *testing.T) {
	votes := []Vote{
		{VoteID: "v-1", UserID: "u-1", Value: 1},
		{VoteID: "v-2", UserID: "u-2", Value: 1},
		{VoteID: "v-3", UserID: "u-3", Value: -1},
	}
	tally := TallyVotes(votes)
	if tally.Upvotes != 2 || tally.Downvotes != 1 || tally.NetVotes != 1 {
		t.Fatalf("unexpected tally: %#v", tally)
	}
}

func TestTallyVotesEmptySet(t *testing.T) {
	tally := TallyVotes(nil)
	if tally.Upvotes != 0 || tally.Downvotes != 0 || tally.NetVotes != 0 {
		t.Fatalf("unexpected tally: %#v", tally)
	}
}

func TestViewerVoteOf(t *testing.T) {
	votes := []Vote{
		{VoteID: "v-1", UserID: "u-1", Value: 1},
		{VoteID: "v-2", UserID: "u-2", Value: -1},
	}
	if got := viewerVoteOf(votes, "u-2"); got != -1 {
		t.Fatalf("expected -1, got %d", got)
	}
	if got := viewerVoteOf(votes, "u-9"); got != 0 {
		t.Fatalf("expected 0 for non-voter, got %d", got)
	}
}

func TestNewVoteValueRejectsOutOfRange(t *testing.T) {
	for _, value := range []int{0, 2, -2, 5} {
		if _, err := NewVoteValue(value); err == nil {
			t.Fatalf("expected rejection for %d", value)
		}
	}
}
