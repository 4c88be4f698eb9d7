package sidenotes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/sidenotes/backend/internal/anchor"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()

	// ErrSidenoteNotFound indicates that no sidenote exists for the identifier.
	ErrSidenoteNotFound = errors.New("sidenotes: sidenote not found")
	// ErrReplyNotFound indicates that no reply exists for the identifier.
	ErrReplyNotFound = errors.New("sidenotes: reply not found")
	// ErrNotAuthor indicates that the acting user does not own the record.
	ErrNotAuthor = errors.New("sidenotes: actor is not the author")
	// ErrParentReplyMismatch indicates a parent reply belonging to a different sidenote.
	ErrParentReplyMismatch = errors.New("sidenotes: parent reply belongs to another sidenote")
	// ErrEmptyContent indicates blank sidenote or reply content.
	ErrEmptyContent = errors.New("sidenotes: content is empty")
	// ErrInvalidAnchor indicates an anchor record unusable as a highlight.
	ErrInvalidAnchor = errors.New("sidenotes: invalid anchor record")
	// ErrInvalidVoteTarget indicates a vote row binding both targets or neither.
	ErrInvalidVoteTarget = errors.New("sidenotes: vote must target exactly one of sidenote or reply")
)

// ServiceError carries a stable operation code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the stable operation code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew     = "sidenotes.service.new"
	opCreateSidenote = "sidenotes.create_sidenote"
	opListSidenotes  = "sidenotes.list_sidenotes"
	opGetSidenote    = "sidenotes.get_sidenote"
	opUpdateSidenote = "sidenotes.update_sidenote"
	opDeleteSidenote = "sidenotes.delete_sidenote"
	opCreateReply    = "sidenotes.create_reply"
	opGetReply       = "sidenotes.get_reply"
	opUpdateReply    = "sidenotes.update_reply"
	opDeleteReply    = "sidenotes.delete_reply"
	opVoteSidenote   = "sidenotes.vote_sidenote"
	opVoteReply      = "sidenotes.vote_reply"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues fresh record identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig carries the dependencies of a Service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service is the annotation store: sidenotes with their highlights, threaded
// replies, and votes, persisted per page.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// CreateSidenoteRequest describes the input for creating a sidenote together
// with its single highlight. SidenoteID may be supplied by an optimistic
// client so the eventual store echo carries the same identifier; when absent
// a fresh identifier is issued.
type CreateSidenoteRequest struct {
	SidenoteID string
	AuthorID   UserID
	PageURL    PageURL
	Content    string
	Anchor     anchor.SerializedRange
}

// CreateSidenote persists a sidenote atomically with its highlight. A
// sidenote is never highlight-less.
func (s *Service) CreateSidenote(ctx context.Context, req CreateSidenoteRequest) (SidenoteView, error) {
	if strings.TrimSpace(req.Content) == "" {
		return SidenoteView{}, newServiceError(opCreateSidenote, "empty_content", ErrEmptyContent)
	}
	if strings.TrimSpace(req.Anchor.Text) == "" || req.Anchor.StartOffset < 0 || req.Anchor.EndOffset <= req.Anchor.StartOffset {
		return SidenoteView{}, newServiceError(opCreateSidenote, "invalid_anchor", ErrInvalidAnchor)
	}

	sidenoteID := strings.TrimSpace(req.SidenoteID)
	if sidenoteID == "" {
		generated, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opCreateSidenote, "id_generation_failed", err)
			return SidenoteView{}, newServiceError(opCreateSidenote, "id_generation_failed", err)
		}
		sidenoteID = generated
	}
	highlightID := strings.TrimSpace(req.Anchor.ID)
	if highlightID == "" {
		generated, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opCreateSidenote, "id_generation_failed", err)
			return SidenoteView{}, newServiceError(opCreateSidenote, "id_generation_failed", err)
		}
		highlightID = generated
	}

	now := s.clock().UTC().Unix()
	sidenote := Sidenote{
		SidenoteID:       sidenoteID,
		AuthorID:         req.AuthorID.String(),
		PageURL:          req.PageURL.String(),
		Content:          req.Content,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	highlight := Highlight{
		HighlightID:       highlightID,
		SidenoteID:        sidenoteID,
		StartOffset:       req.Anchor.StartOffset,
		EndOffset:         req.Anchor.EndOffset,
		HighlightedText:   req.Anchor.Text,
		BeforeContext:     req.Anchor.BeforeContext,
		AfterContext:      req.Anchor.AfterContext,
		ContainerSelector: req.Anchor.ContainerSelector,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&sidenote).Error; err != nil {
			s.logError(opCreateSidenote, "sidenote_insert_failed", err,
				zap.String("sidenote_id", sidenoteID))
			return newServiceError(opCreateSidenote, "sidenote_insert_failed", err)
		}
		if err := tx.Create(&highlight).Error; err != nil {
			s.logError(opCreateSidenote, "highlight_insert_failed", err,
				zap.String("sidenote_id", sidenoteID))
			return newServiceError(opCreateSidenote, "highlight_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return SidenoteView{}, txErr
	}

	return SidenoteView{Sidenote: sidenote, Highlight: highlight}, nil
}

// GetSidenotesForPage returns every sidenote on a page with its highlight,
// reply forest, and vote aggregates, ordered by creation time.
func (s *Service) GetSidenotesForPage(ctx context.Context, pageURL PageURL, viewerID string) ([]SidenoteView, error) {
	var records []Sidenote
	if err := s.db.WithContext(ctx).
		Where("page_url = ?", pageURL.String()).
		Order("created_at_s ASC").
		Find(&records).Error; err != nil {
		s.logError(opListSidenotes, "query_failed", err, zap.String("page_url", pageURL.String()))
		return nil, newServiceError(opListSidenotes, "query_failed", err)
	}
	if len(records) == 0 {
		return []SidenoteView{}, nil
	}

	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.SidenoteID)
	}

	views, err := s.assembleViews(ctx, opListSidenotes, records, ids, viewerID)
	if err != nil {
		return nil, err
	}
	return views, nil
}

// GetSidenote returns one assembled sidenote view.
func (s *Service) GetSidenote(ctx context.Context, id SidenoteID, viewerID string) (SidenoteView, error) {
	var record Sidenote
	err := s.db.WithContext(ctx).
		Where("sidenote_id = ?", id.String()).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SidenoteView{}, newServiceError(opGetSidenote, "not_found", ErrSidenoteNotFound)
	}
	if err != nil {
		s.logError(opGetSidenote, "query_failed", err, zap.String("sidenote_id", id.String()))
		return SidenoteView{}, newServiceError(opGetSidenote, "query_failed", err)
	}

	views, err := s.assembleViews(ctx, opGetSidenote, []Sidenote{record}, []string{record.SidenoteID}, viewerID)
	if err != nil {
		return SidenoteView{}, err
	}
	return views[0], nil
}

// UpdateSidenote replaces a sidenote's content. Only the author may edit.
func (s *Service) UpdateSidenote(ctx context.Context, id SidenoteID, editorID UserID, content string) (SidenoteView, error) {
	if strings.TrimSpace(content) == "" {
		return SidenoteView{}, newServiceError(opUpdateSidenote, "empty_content", ErrEmptyContent)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record Sidenote
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("sidenote_id = ?", id.String()).
			Take(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opUpdateSidenote, "not_found", ErrSidenoteNotFound)
		}
		if err != nil {
			s.logError(opUpdateSidenote, "select_failed", err, zap.String("sidenote_id", id.String()))
			return newServiceError(opUpdateSidenote, "select_failed", err)
		}
		if record.AuthorID != editorID.String() {
			return newServiceError(opUpdateSidenote, "not_author", ErrNotAuthor)
		}

		record.Content = content
		record.UpdatedAtSeconds = s.clock().UTC().Unix()
		if err := tx.Save(&record).Error; err != nil {
			s.logError(opUpdateSidenote, "save_failed", err, zap.String("sidenote_id", id.String()))
			return newServiceError(opUpdateSidenote, "save_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return SidenoteView{}, txErr
	}

	return s.GetSidenote(ctx, id, editorID.String())
}

// DeleteSidenote removes a sidenote and everything it owns: its highlight,
// all replies, and all votes on the sidenote and its replies. The removed
// record is returned so callers can notify the page it belonged to.
func (s *Service) DeleteSidenote(ctx context.Context, id SidenoteID, actorID UserID) (Sidenote, error) {
	var deleted Sidenote
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record Sidenote
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("sidenote_id = ?", id.String()).
			Take(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opDeleteSidenote, "not_found", ErrSidenoteNotFound)
		}
		if err != nil {
			s.logError(opDeleteSidenote, "select_failed", err, zap.String("sidenote_id", id.String()))
			return newServiceError(opDeleteSidenote, "select_failed", err)
		}
		if record.AuthorID != actorID.String() {
			return newServiceError(opDeleteSidenote, "not_author", ErrNotAuthor)
		}

		var replyIDs []string
		if err := tx.Model(&Reply{}).
			Where("sidenote_id = ?", id.String()).
			Pluck("reply_id", &replyIDs).Error; err != nil {
			s.logError(opDeleteSidenote, "reply_lookup_failed", err, zap.String("sidenote_id", id.String()))
			return newServiceError(opDeleteSidenote, "reply_lookup_failed", err)
		}

		if len(replyIDs) > 0 {
			if err := tx.Where("reply_id IN ?", replyIDs).Delete(&Vote{}).Error; err != nil {
				return newServiceError(opDeleteSidenote, "reply_vote_delete_failed", err)
			}
			if err := tx.Where("sidenote_id = ?", id.String()).Delete(&Reply{}).Error; err != nil {
				return newServiceError(opDeleteSidenote, "reply_delete_failed", err)
			}
		}
		if err := tx.Where("sidenote_id = ?", id.String()).Delete(&Vote{}).Error; err != nil {
			return newServiceError(opDeleteSidenote, "vote_delete_failed", err)
		}
		if err := tx.Where("sidenote_id = ?", id.String()).Delete(&Highlight{}).Error; err != nil {
			return newServiceError(opDeleteSidenote, "highlight_delete_failed", err)
		}
		if err := tx.Where("sidenote_id = ?", id.String()).Delete(&Sidenote{}).Error; err != nil {
			return newServiceError(opDeleteSidenote, "sidenote_delete_failed", err)
		}
		deleted = record
		return nil
	})
	if txErr != nil {
		return Sidenote{}, txErr
	}
	return deleted, nil
}

// CreateReplyRequest describes the input for creating a reply against an
// existing sidenote, optionally nested under a parent reply.
type CreateReplyRequest struct {
	SidenoteID    SidenoteID
	ParentReplyID string
	AuthorID      UserID
	Content       string
}

// CreateReply persists a reply. A non-empty parent must already exist and
// belong to the same sidenote.
func (s *Service) CreateReply(ctx context.Context, req CreateReplyRequest) (Reply, error) {
	if strings.TrimSpace(req.Content) == "" {
		return Reply{}, newServiceError(opCreateReply, "empty_content", ErrEmptyContent)
	}

	replyID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateReply, "id_generation_failed", err)
		return Reply{}, newServiceError(opCreateReply, "id_generation_failed", err)
	}

	now := s.clock().UTC().Unix()
	reply := Reply{
		ReplyID:          replyID,
		SidenoteID:       req.SidenoteID.String(),
		AuthorID:         req.AuthorID.String(),
		Content:          req.Content,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var parentCount int64
		if err := tx.Model(&Sidenote{}).
			Where("sidenote_id = ?", req.SidenoteID.String()).
			Count(&parentCount).Error; err != nil {
			s.logError(opCreateReply, "sidenote_lookup_failed", err, zap.String("sidenote_id", req.SidenoteID.String()))
			return newServiceError(opCreateReply, "sidenote_lookup_failed", err)
		}
		if parentCount == 0 {
			return newServiceError(opCreateReply, "sidenote_not_found", ErrSidenoteNotFound)
		}

		if trimmed := strings.TrimSpace(req.ParentReplyID); trimmed != "" {
			var parent Reply
			err := tx.Where("reply_id = ?", trimmed).Take(&parent).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newServiceError(opCreateReply, "parent_not_found", ErrReplyNotFound)
			}
			if err != nil {
				s.logError(opCreateReply, "parent_lookup_failed", err, zap.String("parent_reply_id", trimmed))
				return newServiceError(opCreateReply, "parent_lookup_failed", err)
			}
			if parent.SidenoteID != req.SidenoteID.String() {
				return newServiceError(opCreateReply, "parent_mismatch", ErrParentReplyMismatch)
			}
			reply.ParentReplyID = &parent.ReplyID
		}

		if err := tx.Create(&reply).Error; err != nil {
			s.logError(opCreateReply, "reply_insert_failed", err, zap.String("sidenote_id", req.SidenoteID.String()))
			return newServiceError(opCreateReply, "reply_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Reply{}, txErr
	}

	return reply, nil
}

// UpdateReply replaces a reply's content. Only the author may edit.
func (s *Service) UpdateReply(ctx context.Context, id ReplyID, editorID UserID, content string) (Reply, error) {
	if strings.TrimSpace(content) == "" {
		return Reply{}, newServiceError(opUpdateReply, "empty_content", ErrEmptyContent)
	}

	var updated Reply
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record Reply
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("reply_id = ?", id.String()).
			Take(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opUpdateReply, "not_found", ErrReplyNotFound)
		}
		if err != nil {
			s.logError(opUpdateReply, "select_failed", err, zap.String("reply_id", id.String()))
			return newServiceError(opUpdateReply, "select_failed", err)
		}
		if record.AuthorID != editorID.String() {
			return newServiceError(opUpdateReply, "not_author", ErrNotAuthor)
		}

		record.Content = content
		record.UpdatedAtSeconds = s.clock().UTC().Unix()
		if err := tx.Save(&record).Error; err != nil {
			s.logError(opUpdateReply, "save_failed", err, zap.String("reply_id", id.String()))
			return newServiceError(opUpdateReply, "save_failed", err)
		}
		updated = record
		return nil
	})
	if txErr != nil {
		return Reply{}, txErr
	}
	return updated, nil
}

// GetReply returns one reply record.
func (s *Service) GetReply(ctx context.Context, id ReplyID) (Reply, error) {
	var record Reply
	err := s.db.WithContext(ctx).
		Where("reply_id = ?", id.String()).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Reply{}, newServiceError(opGetReply, "not_found", ErrReplyNotFound)
	}
	if err != nil {
		s.logError(opGetReply, "query_failed", err, zap.String("reply_id", id.String()))
		return Reply{}, newServiceError(opGetReply, "query_failed", err)
	}
	return record, nil
}

// DeleteReply removes a reply, its descendant subtree, and all votes on the
// removed replies. The owning sidenote identifier is returned so callers can
// notify the page.
func (s *Service) DeleteReply(ctx context.Context, id ReplyID, actorID UserID) (string, error) {
	sidenoteID := ""
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record Reply
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("reply_id = ?", id.String()).
			Take(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opDeleteReply, "not_found", ErrReplyNotFound)
		}
		if err != nil {
			s.logError(opDeleteReply, "select_failed", err, zap.String("reply_id", id.String()))
			return newServiceError(opDeleteReply, "select_failed", err)
		}
		if record.AuthorID != actorID.String() {
			return newServiceError(opDeleteReply, "not_author", ErrNotAuthor)
		}

		var siblings []Reply
		if err := tx.Where("sidenote_id = ?", record.SidenoteID).Find(&siblings).Error; err != nil {
			s.logError(opDeleteReply, "subtree_lookup_failed", err, zap.String("reply_id", id.String()))
			return newServiceError(opDeleteReply, "subtree_lookup_failed", err)
		}
		doomed := descendantIDs(siblings, record.ReplyID)

		if err := tx.Where("reply_id IN ?", doomed).Delete(&Vote{}).Error; err != nil {
			return newServiceError(opDeleteReply, "vote_delete_failed", err)
		}
		if err := tx.Where("reply_id IN ?", doomed).Delete(&Reply{}).Error; err != nil {
			return newServiceError(opDeleteReply, "reply_delete_failed", err)
		}
		sidenoteID = record.SidenoteID
		return nil
	})
	if txErr != nil {
		return "", txErr
	}
	return sidenoteID, nil
}

// VoteSidenote applies one vote cast against a sidenote and returns the
// recomputed aggregate.
func (s *Service) VoteSidenote(ctx context.Context, id SidenoteID, voterID UserID, value VoteValue) (VoteTally, error) {
	var tally VoteTally
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Sidenote{}).
			Where("sidenote_id = ?", id.String()).
			Count(&count).Error; err != nil {
			s.logError(opVoteSidenote, "target_lookup_failed", err, zap.String("sidenote_id", id.String()))
			return newServiceError(opVoteSidenote, "target_lookup_failed", err)
		}
		if count == 0 {
			return newServiceError(opVoteSidenote, "not_found", ErrSidenoteNotFound)
		}

		result, err := s.applyVote(tx, opVoteSidenote, voterID, value,
			"sidenote_id = ?", id.String(),
			func(vote *Vote) { target := id.String(); vote.SidenoteID = &target })
		if err != nil {
			return err
		}
		tally = result
		return nil
	})
	if txErr != nil {
		return VoteTally{}, txErr
	}
	return tally, nil
}

// VoteReply applies one vote cast against a reply and returns the recomputed
// aggregate.
func (s *Service) VoteReply(ctx context.Context, id ReplyID, voterID UserID, value VoteValue) (VoteTally, error) {
	var tally VoteTally
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Reply{}).
			Where("reply_id = ?", id.String()).
			Count(&count).Error; err != nil {
			s.logError(opVoteReply, "target_lookup_failed", err, zap.String("reply_id", id.String()))
			return newServiceError(opVoteReply, "target_lookup_failed", err)
		}
		if count == 0 {
			return newServiceError(opVoteReply, "not_found", ErrReplyNotFound)
		}

		result, err := s.applyVote(tx, opVoteReply, voterID, value,
			"reply_id = ?", id.String(),
			func(vote *Vote) { target := id.String(); vote.ReplyID = &target })
		if err != nil {
			return err
		}
		tally = result
		return nil
	})
	if txErr != nil {
		return VoteTally{}, txErr
	}
	return tally, nil
}

// applyVote runs the toggle decision against the voter's existing row and
// recomputes the target's aggregate from its full vote set.
func (s *Service) applyVote(tx *gorm.DB, operation string, voterID UserID, value VoteValue, targetQuery string, targetID string, bindTarget func(*Vote)) (VoteTally, error) {
	var existing Vote
	var existingPtr *Vote
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", voterID.String()).
		Where(targetQuery, targetID).
		Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		existingPtr = nil
	} else if err != nil {
		s.logError(operation, "vote_select_failed", err, zap.String("user_id", voterID.String()))
		return VoteTally{}, newServiceError(operation, "vote_select_failed", err)
	} else {
		existingPtr = &existing
	}

	switch resolveVote(existingPtr, value) {
	case voteActionInsert:
		voteID, err := s.idProvider.NewID()
		if err != nil {
			s.logError(operation, "id_generation_failed", err)
			return VoteTally{}, newServiceError(operation, "id_generation_failed", err)
		}
		vote := Vote{
			VoteID:           voteID,
			UserID:           voterID.String(),
			Value:            value.Int(),
			CreatedAtSeconds: s.clock().UTC().Unix(),
		}
		bindTarget(&vote)
		if (vote.SidenoteID == nil) == (vote.ReplyID == nil) {
			return VoteTally{}, newServiceError(operation, "invalid_vote_target", ErrInvalidVoteTarget)
		}
		if err := tx.Create(&vote).Error; err != nil {
			s.logError(operation, "vote_insert_failed", err, zap.String("user_id", voterID.String()))
			return VoteTally{}, newServiceError(operation, "vote_insert_failed", err)
		}
	case voteActionRemove:
		if err := tx.Where("vote_id = ?", existing.VoteID).Delete(&Vote{}).Error; err != nil {
			s.logError(operation, "vote_delete_failed", err, zap.String("user_id", voterID.String()))
			return VoteTally{}, newServiceError(operation, "vote_delete_failed", err)
		}
	case voteActionReplace:
		existing.Value = value.Int()
		if err := tx.Save(&existing).Error; err != nil {
			s.logError(operation, "vote_update_failed", err, zap.String("user_id", voterID.String()))
			return VoteTally{}, newServiceError(operation, "vote_update_failed", err)
		}
	}

	var votes []Vote
	if err := tx.Where(targetQuery, targetID).Find(&votes).Error; err != nil {
		s.logError(operation, "tally_query_failed", err)
		return VoteTally{}, newServiceError(operation, "tally_query_failed", err)
	}
	return TallyVotes(votes), nil
}

// assembleViews loads highlights, replies, and votes for the given sidenotes
// and assembles presentation views.
func (s *Service) assembleViews(ctx context.Context, operation string, records []Sidenote, ids []string, viewerID string) ([]SidenoteView, error) {
	var highlights []Highlight
	if err := s.db.WithContext(ctx).
		Where("sidenote_id IN ?", ids).
		Find(&highlights).Error; err != nil {
		s.logError(operation, "highlight_query_failed", err)
		return nil, newServiceError(operation, "highlight_query_failed", err)
	}
	highlightsBySidenote := make(map[string]Highlight, len(highlights))
	for _, highlight := range highlights {
		highlightsBySidenote[highlight.SidenoteID] = highlight
	}

	var replies []Reply
	if err := s.db.WithContext(ctx).
		Where("sidenote_id IN ?", ids).
		Order("created_at_s ASC").
		Find(&replies).Error; err != nil {
		s.logError(operation, "reply_query_failed", err)
		return nil, newServiceError(operation, "reply_query_failed", err)
	}
	repliesBySidenote := make(map[string][]Reply)
	replyIDs := make([]string, 0, len(replies))
	for _, reply := range replies {
		repliesBySidenote[reply.SidenoteID] = append(repliesBySidenote[reply.SidenoteID], reply)
		replyIDs = append(replyIDs, reply.ReplyID)
	}

	var sidenoteVotes []Vote
	if err := s.db.WithContext(ctx).
		Where("sidenote_id IN ?", ids).
		Find(&sidenoteVotes).Error; err != nil {
		s.logError(operation, "vote_query_failed", err)
		return nil, newServiceError(operation, "vote_query_failed", err)
	}
	votesBySidenote := make(map[string][]Vote)
	for _, vote := range sidenoteVotes {
		if vote.SidenoteID != nil {
			votesBySidenote[*vote.SidenoteID] = append(votesBySidenote[*vote.SidenoteID], vote)
		}
	}

	votesByReply := make(map[string][]Vote)
	if len(replyIDs) > 0 {
		var replyVotes []Vote
		if err := s.db.WithContext(ctx).
			Where("reply_id IN ?", replyIDs).
			Find(&replyVotes).Error; err != nil {
			s.logError(operation, "reply_vote_query_failed", err)
			return nil, newServiceError(operation, "reply_vote_query_failed", err)
		}
		for _, vote := range replyVotes {
			if vote.ReplyID != nil {
				votesByReply[*vote.ReplyID] = append(votesByReply[*vote.ReplyID], vote)
			}
		}
	}

	views := make([]SidenoteView, 0, len(records))
	for _, record := range records {
		forest := BuildReplyForest(repliesBySidenote[record.SidenoteID])
		decorateForest(forest, votesByReply, viewerID)

		votes := votesBySidenote[record.SidenoteID]
		views = append(views, SidenoteView{
			Sidenote:   record,
			Highlight:  highlightsBySidenote[record.SidenoteID],
			Replies:    forest,
			Tally:      TallyVotes(votes),
			ViewerVote: viewerVoteOf(votes, viewerID),
		})
	}
	return views, nil
}

func decorateForest(forest []*ReplyNode, votesByReply map[string][]Vote, viewerID string) {
	for _, node := range forest {
		votes := votesByReply[node.ReplyID]
		node.Tally = TallyVotes(votes)
		node.ViewerVote = viewerVoteOf(votes, viewerID)
		decorateForest(node.Children, votesByReply, viewerID)
	}
}

// descendantIDs returns the reply id plus every descendant id within the
// sidenote's reply set, walking a child index rather than recursion over
// parent pointers.
func descendantIDs(replies []Reply, rootID string) []string {
	children := make(map[string][]string)
	for _, reply := range replies {
		if reply.ParentReplyID == nil {
			continue
		}
		parent := *reply.ParentReplyID
		children[parent] = append(children[parent], reply.ReplyID)
	}

	seen := map[string]struct{}{rootID: {}}
	ids := []string{rootID}
	queue := []string{rootID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, child := range children[current] {
			if _, done := seen[child]; done {
				continue
			}
			seen[child] = struct{}{}
			ids = append(ids, child)
			queue = append(queue, child)
		}
	}
	return ids
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("sidenotes service error", attrs...)
}
