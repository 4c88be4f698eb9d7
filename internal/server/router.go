package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/sidenotes/backend/internal/anchor"
	"github.com/MarcoPoloResearchLab/sidenotes/backend/internal/sidenotes"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// identityHeader names the acting user for every mutating request.
// Authentication itself is handled by the fronting deployment.
const identityHeader = "X-Sidenote-User"

const heartbeatInterval = 25 * time.Second

var (
	errMissingSidenotesService = errors.New("sidenotes service dependency required")
	errMissingDispatcher       = errors.New("realtime dispatcher dependency required")
)

// Dependencies carries the collaborators of the HTTP handler.
type Dependencies struct {
	SidenotesService *sidenotes.Service
	Dispatcher       *RealtimeDispatcher
	Logger           *zap.Logger
}

// NewHTTPHandler builds the gin router exposing the annotation store contract
// and the page event stream.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SidenotesService == nil {
		return nil, errMissingSidenotesService
	}
	if deps.Dispatcher == nil {
		return nil, errMissingDispatcher
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", identityHeader},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		service:    deps.SidenotesService,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}

	router.GET("/pages/sidenotes", handler.handleListSidenotes)
	router.GET("/pages/events", handler.handlePageEvents)
	router.POST("/pages/sidenotes", handler.handleCreateSidenote)
	router.PATCH("/sidenotes/:id", handler.handleUpdateSidenote)
	router.DELETE("/sidenotes/:id", handler.handleDeleteSidenote)
	router.POST("/sidenotes/:id/replies", handler.handleCreateReply)
	router.POST("/sidenotes/:id/vote", handler.handleVoteSidenote)
	router.PATCH("/replies/:id", handler.handleUpdateReply)
	router.DELETE("/replies/:id", handler.handleDeleteReply)
	router.POST("/replies/:id/vote", handler.handleVoteReply)

	return router, nil
}

type httpHandler struct {
	service    *sidenotes.Service
	dispatcher *RealtimeDispatcher
	logger     *zap.Logger
}

type highlightPayload struct {
	HighlightID       string `json:"highlight_id"`
	SidenoteID        string `json:"sidenote_id"`
	StartOffset       int    `json:"start_offset"`
	EndOffset         int    `json:"end_offset"`
	HighlightedText   string `json:"highlighted_text"`
	BeforeContext     string `json:"before_context"`
	AfterContext      string `json:"after_context"`
	ContainerSelector string `json:"container_selector"`
}

type replyPayload struct {
	ReplyID          string         `json:"reply_id"`
	SidenoteID       string         `json:"sidenote_id"`
	ParentReplyID    string         `json:"parent_reply_id,omitempty"`
	AuthorID         string         `json:"author_id"`
	Content          string         `json:"content"`
	CreatedAtSeconds int64          `json:"created_at_s"`
	UpdatedAtSeconds int64          `json:"updated_at_s"`
	Upvotes          int            `json:"upvotes"`
	Downvotes        int            `json:"downvotes"`
	NetVotes         int            `json:"net_votes"`
	ViewerVote       int            `json:"viewer_vote"`
	Children         []replyPayload `json:"children"`
}

type sidenotePayload struct {
	SidenoteID       string           `json:"sidenote_id"`
	AuthorID         string           `json:"author_id"`
	PageURL          string           `json:"page_url"`
	Content          string           `json:"content"`
	CreatedAtSeconds int64            `json:"created_at_s"`
	UpdatedAtSeconds int64            `json:"updated_at_s"`
	Highlight        highlightPayload `json:"highlight"`
	Replies          []replyPayload   `json:"replies"`
	Upvotes          int              `json:"upvotes"`
	Downvotes        int              `json:"downvotes"`
	NetVotes         int              `json:"net_votes"`
	ViewerVote       int              `json:"viewer_vote"`
}

func presentReplies(nodes []*sidenotes.ReplyNode) []replyPayload {
	payloads := make([]replyPayload, 0, len(nodes))
	for _, node := range nodes {
		parentID := ""
		if node.ParentReplyID != nil {
			parentID = *node.ParentReplyID
		}
		payloads = append(payloads, replyPayload{
			ReplyID:          node.ReplyID,
			SidenoteID:       node.SidenoteID,
			ParentReplyID:    parentID,
			AuthorID:         node.AuthorID,
			Content:          node.Content,
			CreatedAtSeconds: node.CreatedAtSeconds,
			UpdatedAtSeconds: node.UpdatedAtSeconds,
			Upvotes:          node.Tally.Upvotes,
			Downvotes:        node.Tally.Downvotes,
			NetVotes:         node.Tally.NetVotes,
			ViewerVote:       node.ViewerVote,
			Children:         presentReplies(node.Children),
		})
	}
	return payloads
}

func presentSidenote(view sidenotes.SidenoteView) sidenotePayload {
	return sidenotePayload{
		SidenoteID:       view.SidenoteID,
		AuthorID:         view.AuthorID,
		PageURL:          view.PageURL,
		Content:          view.Content,
		CreatedAtSeconds: view.CreatedAtSeconds,
		UpdatedAtSeconds: view.UpdatedAtSeconds,
		Highlight: highlightPayload{
			HighlightID:       view.Highlight.HighlightID,
			SidenoteID:        view.Highlight.SidenoteID,
			StartOffset:       view.Highlight.StartOffset,
			EndOffset:         view.Highlight.EndOffset,
			HighlightedText:   view.Highlight.HighlightedText,
			BeforeContext:     view.Highlight.BeforeContext,
			AfterContext:      view.Highlight.AfterContext,
			ContainerSelector: view.Highlight.ContainerSelector,
		},
		Replies:    presentReplies(view.Replies),
		Upvotes:    view.Tally.Upvotes,
		Downvotes:  view.Tally.Downvotes,
		NetVotes:   view.Tally.NetVotes,
		ViewerVote: view.ViewerVote,
	}
}

type createSidenoteRequestPayload struct {
	SidenoteID string                 `json:"sidenote_id"`
	PageURL    string                 `json:"page_url"`
	Content    string                 `json:"content"`
	Anchor     anchor.SerializedRange `json:"anchor"`
}

func (h *httpHandler) handleCreateSidenote(c *gin.Context) {
	actorID, ok := h.requireIdentity(c)
	if !ok {
		return
	}

	var request createSidenoteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	pageURL, err := sidenotes.NewPageURL(request.PageURL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_page_url"})
		return
	}

	view, err := h.service.CreateSidenote(c.Request.Context(), sidenotes.CreateSidenoteRequest{
		SidenoteID: request.SidenoteID,
		AuthorID:   actorID,
		PageURL:    pageURL,
		Content:    request.Content,
		Anchor:     request.Anchor,
	})
	if err != nil {
		h.respondServiceError(c, "sidenote creation failed", err)
		return
	}

	h.publish(view.PageURL, RealtimeEventSidenoteInserted, view.SidenoteID)
	c.JSON(http.StatusCreated, presentSidenote(view))
}

func (h *httpHandler) handleListSidenotes(c *gin.Context) {
	pageURL, err := sidenotes.NewPageURL(c.Query("page_url"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_page_url"})
		return
	}
	viewerID := strings.TrimSpace(c.GetHeader(identityHeader))

	views, err := h.service.GetSidenotesForPage(c.Request.Context(), pageURL, viewerID)
	if err != nil {
		h.respondServiceError(c, "sidenote listing failed", err)
		return
	}

	payloads := make([]sidenotePayload, 0, len(views))
	for _, view := range views {
		payloads = append(payloads, presentSidenote(view))
	}
	c.JSON(http.StatusOK, gin.H{"sidenotes": payloads})
}

type updateContentRequestPayload struct {
	Content string `json:"content"`
}

func (h *httpHandler) handleUpdateSidenote(c *gin.Context) {
	actorID, ok := h.requireIdentity(c)
	if !ok {
		return
	}
	sidenoteID, err := sidenotes.NewSidenoteID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_sidenote_id"})
		return
	}
	var request updateContentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	view, err := h.service.UpdateSidenote(c.Request.Context(), sidenoteID, actorID, request.Content)
	if err != nil {
		h.respondServiceError(c, "sidenote update failed", err)
		return
	}

	h.publish(view.PageURL, RealtimeEventSidenoteUpdated, view.SidenoteID)
	c.JSON(http.StatusOK, presentSidenote(view))
}

func (h *httpHandler) handleDeleteSidenote(c *gin.Context) {
	actorID, ok := h.requireIdentity(c)
	if !ok {
		return
	}
	sidenoteID, err := sidenotes.NewSidenoteID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_sidenote_id"})
		return
	}

	deleted, err := h.service.DeleteSidenote(c.Request.Context(), sidenoteID, actorID)
	if err != nil {
		h.respondServiceError(c, "sidenote deletion failed", err)
		return
	}

	h.publish(deleted.PageURL, RealtimeEventSidenoteDeleted, deleted.SidenoteID)
	c.JSON(http.StatusOK, gin.H{"deleted": deleted.SidenoteID})
}

type createReplyRequestPayload struct {
	Content       string `json:"content"`
	ParentReplyID string `json:"parent_reply_id"`
}

func (h *httpHandler) handleCreateReply(c *gin.Context) {
	actorID, ok := h.requireIdentity(c)
	if !ok {
		return
	}
	sidenoteID, err := sidenotes.NewSidenoteID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_sidenote_id"})
		return
	}
	var request createReplyRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	reply, err := h.service.CreateReply(c.Request.Context(), sidenotes.CreateReplyRequest{
		SidenoteID:    sidenoteID,
		ParentReplyID: request.ParentReplyID,
		AuthorID:      actorID,
		Content:       request.Content,
	})
	if err != nil {
		h.respondServiceError(c, "reply creation failed", err)
		return
	}

	h.notifySidenoteChanged(c, sidenoteID.String())
	parentID := ""
	if reply.ParentReplyID != nil {
		parentID = *reply.ParentReplyID
	}
	c.JSON(http.StatusCreated, replyPayload{
		ReplyID:          reply.ReplyID,
		SidenoteID:       reply.SidenoteID,
		ParentReplyID:    parentID,
		AuthorID:         reply.AuthorID,
		Content:          reply.Content,
		CreatedAtSeconds: reply.CreatedAtSeconds,
		UpdatedAtSeconds: reply.UpdatedAtSeconds,
		Children:         []replyPayload{},
	})
}

func (h *httpHandler) handleUpdateReply(c *gin.Context) {
	actorID, ok := h.requireIdentity(c)
	if !ok {
		return
	}
	replyID, err := sidenotes.NewReplyID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_reply_id"})
		return
	}
	var request updateContentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	reply, err := h.service.UpdateReply(c.Request.Context(), replyID, actorID, request.Content)
	if err != nil {
		h.respondServiceError(c, "reply update failed", err)
		return
	}

	h.notifySidenoteChanged(c, reply.SidenoteID)
	parentID := ""
	if reply.ParentReplyID != nil {
		parentID = *reply.ParentReplyID
	}
	c.JSON(http.StatusOK, replyPayload{
		ReplyID:          reply.ReplyID,
		SidenoteID:       reply.SidenoteID,
		ParentReplyID:    parentID,
		AuthorID:         reply.AuthorID,
		Content:          reply.Content,
		CreatedAtSeconds: reply.CreatedAtSeconds,
		UpdatedAtSeconds: reply.UpdatedAtSeconds,
		Children:         []replyPayload{},
	})
}

func (h *httpHandler) handleDeleteReply(c *gin.Context) {
	actorID, ok := h.requireIdentity(c)
	if !ok {
		return
	}
	replyID, err := sidenotes.NewReplyID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_reply_id"})
		return
	}

	sidenoteID, err := h.service.DeleteReply(c.Request.Context(), replyID, actorID)
	if err != nil {
		h.respondServiceError(c, "reply deletion failed", err)
		return
	}

	h.notifySidenoteChanged(c, sidenoteID)
	c.JSON(http.StatusOK, gin.H{"deleted": replyID.String()})
}

type voteRequestPayload struct {
	Value int `json:"value"`
}

type voteResponsePayload struct {
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
	NetVotes  int `json:"net_votes"`
}

func (h *httpHandler) handleVoteSidenote(c *gin.Context) {
	actorID, ok := h.requireIdentity(c)
	if !ok {
		return
	}
	sidenoteID, err := sidenotes.NewSidenoteID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_sidenote_id"})
		return
	}
	var request voteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	value, err := sidenotes.NewVoteValue(request.Value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_vote_value"})
		return
	}

	tally, err := h.service.VoteSidenote(c.Request.Context(), sidenoteID, actorID, value)
	if err != nil {
		h.respondServiceError(c, "sidenote vote failed", err)
		return
	}

	h.notifySidenoteChanged(c, sidenoteID.String())
	c.JSON(http.StatusOK, voteResponsePayload{
		Upvotes:   tally.Upvotes,
		Downvotes: tally.Downvotes,
		NetVotes:  tally.NetVotes,
	})
}

func (h *httpHandler) handleVoteReply(c *gin.Context) {
	actorID, ok := h.requireIdentity(c)
	if !ok {
		return
	}
	replyID, err := sidenotes.NewReplyID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_reply_id"})
		return
	}
	var request voteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	value, err := sidenotes.NewVoteValue(request.Value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_vote_value"})
		return
	}

	tally, err := h.service.VoteReply(c.Request.Context(), replyID, actorID, value)
	if err != nil {
		h.respondServiceError(c, "reply vote failed", err)
		return
	}

	if reply, lookupErr := h.service.GetReply(c.Request.Context(), replyID); lookupErr == nil {
		h.notifySidenoteChanged(c, reply.SidenoteID)
	}
	c.JSON(http.StatusOK, voteResponsePayload{
		Upvotes:   tally.Upvotes,
		Downvotes: tally.Downvotes,
		NetVotes:  tally.NetVotes,
	})
}

type realtimeEventPayload struct {
	PageURL    string `json:"page_url"`
	SidenoteID string `json:"sidenote_id"`
	Timestamp  int64  `json:"ts"`
}

func (h *httpHandler) handlePageEvents(c *gin.Context) {
	pageURL, err := sidenotes.NewPageURL(c.Query("page_url"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_page_url"})
		return
	}

	stream, cleanup := h.dispatcher.Subscribe(c.Request.Context(), pageURL.String())
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case message, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(message.EventType, realtimeEventPayload{
				PageURL:    message.PageURL,
				SidenoteID: message.SidenoteID,
				Timestamp:  message.Timestamp.Unix(),
			})
			return true
		case <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"ts": time.Now().UTC().Unix()})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// notifySidenoteChanged publishes a sidenote-update event, resolving the
// owning page from the store.
func (h *httpHandler) notifySidenoteChanged(c *gin.Context, sidenoteID string) {
	id, err := sidenotes.NewSidenoteID(sidenoteID)
	if err != nil {
		return
	}
	view, err := h.service.GetSidenote(c.Request.Context(), id, "")
	if err != nil {
		h.logger.Warn("realtime publish skipped, sidenote lookup failed",
			zap.String("sidenote_id", sidenoteID), zap.Error(err))
		return
	}
	h.publish(view.PageURL, RealtimeEventSidenoteUpdated, view.SidenoteID)
}

func (h *httpHandler) publish(pageURL, eventType, sidenoteID string) {
	h.dispatcher.Publish(RealtimeMessage{
		PageURL:    pageURL,
		EventType:  eventType,
		SidenoteID: sidenoteID,
		Timestamp:  time.Now().UTC(),
	})
}

func (h *httpHandler) requireIdentity(c *gin.Context) (sidenotes.UserID, bool) {
	actorID, err := sidenotes.NewUserID(c.GetHeader(identityHeader))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_identity"})
		return "", false
	}
	return actorID, true
}

func (h *httpHandler) respondServiceError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, sidenotes.ErrSidenoteNotFound), errors.Is(err, sidenotes.ErrReplyNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, sidenotes.ErrNotAuthor):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, sidenotes.ErrEmptyContent),
		errors.Is(err, sidenotes.ErrInvalidAnchor),
		errors.Is(err, sidenotes.ErrParentReplyMismatch),
		errors.Is(err, sidenotes.ErrInvalidVoteValue):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
	default:
		h.logger.Error(message, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
