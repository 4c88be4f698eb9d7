package sidenotes

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/sidenotes/backend/internal/anchor"
)

const (
	maxIdentifierLength = 190
	maxPageURLLength    = 500
)

var (
	// ErrInvalidSidenoteID indicates that a sidenote identifier is empty or exceeds storage bounds.
	ErrInvalidSidenoteID = errors.New("sidenotes: invalid sidenote id")
	// ErrInvalidReplyID indicates that a reply identifier is empty or exceeds storage bounds.
	ErrInvalidReplyID = errors.New("sidenotes: invalid reply id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("sidenotes: invalid user id")
	// ErrInvalidPageURL indicates that a page URL is empty or exceeds storage bounds.
	ErrInvalidPageURL = errors.New("sidenotes: invalid page url")
	// ErrInvalidVoteValue indicates a vote value other than -1 or +1.
	ErrInvalidVoteValue = errors.New("sidenotes: invalid vote value")
)

// SidenoteID represents a validated sidenote identifier.
type SidenoteID string

// NewSidenoteID validates raw input and returns a SidenoteID.
func NewSidenoteID(rawInput string) (SidenoteID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSidenoteID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidSidenoteID, maxIdentifierLength)
	}
	return SidenoteID(trimmed), nil
}

// String returns the underlying string identifier.
func (id SidenoteID) String() string {
	return string(id)
}

// ReplyID represents a validated reply identifier.
type ReplyID string

// NewReplyID validates raw input and returns a ReplyID.
func NewReplyID(rawInput string) (ReplyID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidReplyID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidReplyID, maxIdentifierLength)
	}
	return ReplyID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ReplyID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// PageURL scopes all anchors to one logical document.
type PageURL string

// NewPageURL validates raw input and returns a PageURL.
func NewPageURL(rawInput string) (PageURL, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPageURL)
	}
	if len(trimmed) > maxPageURLLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidPageURL, maxPageURLLength)
	}
	return PageURL(trimmed), nil
}

// String returns the underlying string value.
func (p PageURL) String() string {
	return string(p)
}

// VoteValue is a validated vote value, either -1 or +1.
type VoteValue int

// NewVoteValue validates the value and returns a VoteValue.
func NewVoteValue(value int) (VoteValue, error) {
	if value != -1 && value != 1 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidVoteValue, value)
	}
	return VoteValue(value), nil
}

// Int exposes the raw vote value.
func (v VoteValue) Int() int {
	return int(v)
}

// Sidenote models a persisted annotation record. A sidenote is created
// atomically with exactly one highlight and is never highlight-less.
type Sidenote struct {
	SidenoteID       string `gorm:"column:sidenote_id;primaryKey;size:190;not null"`
	AuthorID         string `gorm:"column:author_id;size:190;not null"`
	PageURL          string `gorm:"column:page_url;size:500;not null;index:idx_sidenotes_page_created,priority:1"`
	Content          string `gorm:"column:content;type:text;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null;index:idx_sidenotes_page_created,priority:2"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Sidenote) TableName() string {
	return "sidenotes"
}

// Highlight is the persisted form of a resolved serialized range. The
// highlighted text is authoritative for fallback re-resolution; the offsets
// are advisory and may become stale.
type Highlight struct {
	HighlightID       string `gorm:"column:highlight_id;primaryKey;size:190;not null"`
	SidenoteID        string `gorm:"column:sidenote_id;size:190;not null;uniqueIndex:idx_highlights_sidenote"`
	StartOffset       int    `gorm:"column:start_offset;not null"`
	EndOffset         int    `gorm:"column:end_offset;not null"`
	HighlightedText   string `gorm:"column:highlighted_text;type:text;not null"`
	BeforeContext     string `gorm:"column:before_context;size:200;not null;default:''"`
	AfterContext      string `gorm:"column:after_context;size:200;not null;default:''"`
	ContainerSelector string `gorm:"column:container_selector;size:500;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (Highlight) TableName() string {
	return "highlights"
}

// Anchor converts the persisted highlight back into a portable anchor record
// for resolution against the live document.
func (h Highlight) Anchor() anchor.SerializedRange {
	return anchor.SerializedRange{
		ID:                h.HighlightID,
		Text:              h.HighlightedText,
		StartOffset:       h.StartOffset,
		EndOffset:         h.EndOffset,
		BeforeContext:     h.BeforeContext,
		AfterContext:      h.AfterContext,
		ContainerSelector: h.ContainerSelector,
	}
}

// Reply models a persisted threaded reply. ParentReplyID is nil for top-level
// replies; the relation over one sidenote's replies forms a forest.
type Reply struct {
	ReplyID          string  `gorm:"column:reply_id;primaryKey;size:190;not null"`
	SidenoteID       string  `gorm:"column:sidenote_id;size:190;not null;index:idx_replies_sidenote_created,priority:1"`
	ParentReplyID    *string `gorm:"column:parent_reply_id;size:190"`
	AuthorID         string  `gorm:"column:author_id;size:190;not null"`
	Content          string  `gorm:"column:content;type:text;not null"`
	CreatedAtSeconds int64   `gorm:"column:created_at_s;not null;index:idx_replies_sidenote_created,priority:2"`
	UpdatedAtSeconds int64   `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Reply) TableName() string {
	return "replies"
}

// Vote models a single user's vote on exactly one target, a sidenote or a
// reply. At most one row exists per (user, target).
type Vote struct {
	VoteID           string  `gorm:"column:vote_id;primaryKey;size:190;not null"`
	UserID           string  `gorm:"column:user_id;size:190;not null;index:idx_votes_user;uniqueIndex:uq_votes_user_sidenote,priority:1;uniqueIndex:uq_votes_user_reply,priority:1"`
	SidenoteID       *string `gorm:"column:sidenote_id;size:190;index:idx_votes_sidenote;uniqueIndex:uq_votes_user_sidenote,priority:2"`
	ReplyID          *string `gorm:"column:reply_id;size:190;index:idx_votes_reply;uniqueIndex:uq_votes_user_reply,priority:2"`
	Value            int     `gorm:"column:value;not null"`
	CreatedAtSeconds int64   `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Vote) TableName() string {
	return "votes"
}

// VoteTally is the derived aggregate for one target, always recomputed from
// the target's full vote set.
type VoteTally struct {
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
	NetVotes  int `json:"net_votes"`
}

// ReplyNode is a reply annotated with its vote aggregate and children.
type ReplyNode struct {
	Reply
	Tally      VoteTally
	ViewerVote int
	Children   []*ReplyNode
}

// SidenoteView is the assembled presentation shape for one sidenote: the
// record, its highlight, its reply forest, and its vote aggregate.
type SidenoteView struct {
	Sidenote
	Highlight  Highlight
	Replies    []*ReplyNode
	Tally      VoteTally
	ViewerVote int
}

// FlattenedReply is a reply positioned for rendering, with its nesting depth
// capped for presentation.
type FlattenedReply struct {
	Reply
	Depth      int
	Tally      VoteTally
	ViewerVote int
}
