package sidenotes

import (
	"errors"
	"testing"
)

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

func mustSidenoteID(t *testing.T, value string) SidenoteID {
	t.Helper()
	id, err := NewSidenoteID(value)
	if err != nil {
		t.Fatalf("unexpected sidenote id error: %v", err)
	}
	return id
}

func mustReplyID(t *testing.T, value string) ReplyID {
	t.Helper()
	id, err := NewReplyID(value)
	if err != nil {
		t.Fatalf("unexpected reply id error: %v", err)
	}
	return id
}

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

func mustPageURL(t *testing.T, value string) PageURL {
	t.Helper()
	page, err := NewPageURL(value)
	if err != nil {
		t.Fatalf("unexpected page url error: %v", err)
	}
	return page
}

func mustVoteValue(t *testing.T, value int) VoteValue {
	t.Helper()
	vote, err := NewVoteValue(value)
	if err != nil {
		t.Fatalf("unexpected vote value error: %v", err)
	}
	return vote
}

func stringPtr(value string) *string {
	return &value
}
