package view

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/sidenotes/backend/internal/anchor"
	"github.com/MarcoPoloResearchLab/sidenotes/backend/internal/dom"
	"github.com/MarcoPoloResearchLab/sidenotes/backend/internal/highlight"
	"github.com/MarcoPoloResearchLab/sidenotes/backend/internal/layout"
	"github.com/MarcoPoloResearchLab/sidenotes/backend/internal/sidenotes"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

var (
	errMissingContainer  = errors.New("container is required")
	errMissingStore      = errors.New("store is required")
	errMissingSerializer = errors.New("serializer is required")
	errMissingResolver   = errors.New("resolver is required")
	errMissingHighlights = errors.New("highlight manager is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingPageURL    = errors.New("page url is required")
)

// Store is the annotation store collaborator as the page view consumes it.
type Store interface {
	CreateSidenote(ctx context.Context, req sidenotes.CreateSidenoteRequest) (sidenotes.SidenoteView, error)
	GetSidenotesForPage(ctx context.Context, pageURL sidenotes.PageURL, viewerID string) ([]sidenotes.SidenoteView, error)
}

// PageViewConfig carries the collaborators of a PageView. Layout is optional;
// without it no vertical positions are produced.
type PageViewConfig struct {
	Container         *html.Node
	ContainerSelector string
	PageURL           sidenotes.PageURL
	ViewerID          sidenotes.UserID
	Store             Store
	Serializer        *anchor.Serializer
	Resolver          *anchor.Resolver
	Highlights        *highlight.Manager
	Layout            *layout.Calculator
	IDProvider        sidenotes.IDProvider
	Clock             func() time.Time
	Logger            *zap.Logger
}

// PageView orchestrates one page's annotations: it holds the in-memory
// sidenote set, renders highlights through the resolver, and reconciles
// optimistic local inserts with the store's push notifications.
type PageView struct {
	mu sync.Mutex

	container         *html.Node
	containerSelector string
	pageURL           sidenotes.PageURL
	viewerID          sidenotes.UserID
	store             Store
	serializer        *anchor.Serializer
	resolver          *anchor.Resolver
	highlights        *highlight.Manager
	layout            *layout.Calculator
	idProvider        sidenotes.IDProvider
	clock             func() time.Time
	logger            *zap.Logger

	entries  map[string]sidenotes.SidenoteView
	resolved map[string]dom.Range
}

// NewPageView constructs a PageView.
func NewPageView(cfg PageViewConfig) (*PageView, error) {
	switch {
	case cfg.Container == nil:
		return nil, fmt.Errorf("view: new page view: %w", errMissingContainer)
	case cfg.Store == nil:
		return nil, fmt.Errorf("view: new page view: %w", errMissingStore)
	case cfg.Serializer == nil:
		return nil, fmt.Errorf("view: new page view: %w", errMissingSerializer)
	case cfg.Resolver == nil:
		return nil, fmt.Errorf("view: new page view: %w", errMissingResolver)
	case cfg.Highlights == nil:
		return nil, fmt.Errorf("view: new page view: %w", errMissingHighlights)
	case cfg.IDProvider == nil:
		return nil, fmt.Errorf("view: new page view: %w", errMissingIDProvider)
	case cfg.PageURL.String() == "":
		return nil, fmt.Errorf("view: new page view: %w", errMissingPageURL)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PageView{
		container:         cfg.Container,
		containerSelector: cfg.ContainerSelector,
		pageURL:           cfg.PageURL,
		viewerID:          cfg.ViewerID,
		store:             cfg.Store,
		serializer:        cfg.Serializer,
		resolver:          cfg.Resolver,
		highlights:        cfg.Highlights,
		layout:            cfg.Layout,
		idProvider:        cfg.IDProvider,
		clock:             clock,
		logger:            logger,
		entries:           make(map[string]sidenotes.SidenoteView),
		resolved:          make(map[string]dom.Range),
	}, nil
}

// Load fetches the page's sidenotes from the store and rebuilds the rendered
// highlight set.
func (v *PageView) Load(ctx context.Context) error {
	views, err := v.store.GetSidenotesForPage(ctx, v.pageURL, v.viewerID.String())
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries = make(map[string]sidenotes.SidenoteView, len(views))
	for _, entry := range views {
		v.entries[entry.SidenoteID] = entry
	}
	v.rerenderLocked()
	return nil
}

// CaptureSelection serializes a live selection, applies an optimistic local
// insert with immediate rendering, then persists through the store. The
// store's eventual push for the same identifier is skipped by ApplyInsert.
// On persistence failure the optimistic insert is rolled back and the failure
// returned to the caller.
func (v *PageView) CaptureSelection(ctx context.Context, rng dom.Range, content string) (sidenotes.SidenoteView, error) {
	record, err := v.serializer.Serialize(v.container, rng, v.containerSelector)
	if err != nil {
		return sidenotes.SidenoteView{}, err
	}

	sidenoteID, err := v.idProvider.NewID()
	if err != nil {
		return sidenotes.SidenoteView{}, fmt.Errorf("view: capture selection: %w", err)
	}

	now := v.clock().UTC().Unix()
	optimistic := sidenotes.SidenoteView{
		Sidenote: sidenotes.Sidenote{
			SidenoteID:       sidenoteID,
			AuthorID:         v.viewerID.String(),
			PageURL:          v.pageURL.String(),
			Content:          content,
			CreatedAtSeconds: now,
			UpdatedAtSeconds: now,
		},
		Highlight: sidenotes.Highlight{
			HighlightID:       record.ID,
			SidenoteID:        sidenoteID,
			StartOffset:       record.StartOffset,
			EndOffset:         record.EndOffset,
			HighlightedText:   record.Text,
			BeforeContext:     record.BeforeContext,
			AfterContext:      record.AfterContext,
			ContainerSelector: record.ContainerSelector,
		},
	}

	v.mu.Lock()
	v.entries[sidenoteID] = optimistic
	v.renderEntryLocked(optimistic)
	v.mu.Unlock()

	confirmed, err := v.store.CreateSidenote(ctx, sidenotes.CreateSidenoteRequest{
		SidenoteID: sidenoteID,
		AuthorID:   v.viewerID,
		PageURL:    v.pageURL,
		Content:    content,
		Anchor:     record,
	})
	if err != nil {
		v.mu.Lock()
		delete(v.entries, sidenoteID)
		v.highlights.RemoveHighlight(sidenoteID)
		delete(v.resolved, sidenoteID)
		v.mu.Unlock()
		return sidenotes.SidenoteView{}, err
	}

	v.mu.Lock()
	if _, present := v.entries[confirmed.SidenoteID]; present {
		v.entries[confirmed.SidenoteID] = confirmed
	}
	v.mu.Unlock()
	return confirmed, nil
}

// ApplyInsert merges a pushed insert notification. An identifier already
// known locally means the push is the echo of an optimistic insert, and the
// record is not re-added or re-rendered.
func (v *PageView) ApplyInsert(entry sidenotes.SidenoteView) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, exists := v.entries[entry.SidenoteID]; exists {
		return
	}
	v.entries[entry.SidenoteID] = entry
	v.renderEntryLocked(entry)
}

// ApplyUpdate merges a pushed update notification. Updating an unknown
// identifier is a no-op.
func (v *PageView) ApplyUpdate(entry sidenotes.SidenoteView) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, exists := v.entries[entry.SidenoteID]; !exists {
		return
	}
	v.entries[entry.SidenoteID] = entry
}

// ApplyDelete merges a pushed delete notification. Deleting an unknown
// identifier is a no-op.
func (v *PageView) ApplyDelete(sidenoteID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, exists := v.entries[sidenoteID]; !exists {
		return
	}
	delete(v.entries, sidenoteID)
	v.highlights.RemoveHighlight(sidenoteID)
	delete(v.resolved, sidenoteID)
}

// Rerender clears every rendered highlight and rebuilds the set from the
// current annotation set through the resolver. The clear-then-rebuild is
// idempotent; anchors that fail resolution are skipped without affecting the
// others.
func (v *PageView) Rerender() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rerenderLocked()
}

func (v *PageView) rerenderLocked() {
	v.highlights.ClearHighlights()
	v.resolved = make(map[string]dom.Range)
	for _, entry := range v.sortedEntriesLocked() {
		v.renderEntryLocked(entry)
	}
}

func (v *PageView) renderEntryLocked(entry sidenotes.SidenoteView) {
	rng, err := v.resolver.Resolve(v.container, entry.Highlight.Anchor())
	if err != nil {
		v.logger.Debug("sidenote anchor skipped for this session",
			zap.String("sidenote_id", entry.SidenoteID),
			zap.Error(err))
		return
	}
	if err := v.highlights.AddHighlight(entry.SidenoteID, rng); err != nil {
		v.logger.Warn("highlight rendering failed",
			zap.String("sidenote_id", entry.SidenoteID),
			zap.Error(err))
		return
	}
	v.resolved[entry.SidenoteID] = rng
}

// SelectSidenote marks one sidenote's highlight as selected; the empty id
// clears the selection.
func (v *PageView) SelectSidenote(sidenoteID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.highlights.SetSelectedHighlight(sidenoteID)
}

// ResolvedRanges returns the current id-to-range set of successfully
// resolved anchors.
func (v *PageView) ResolvedRanges() map[string]dom.Range {
	v.mu.Lock()
	defer v.mu.Unlock()
	copied := make(map[string]dom.Range, len(v.resolved))
	for id, rng := range v.resolved {
		copied[id] = rng
	}
	return copied
}

// Positions computes the fractional vertical position of every resolved
// anchor for ordering the companion list view. Anchors that failed
// resolution contribute no position. Recomputed wholesale on every call, so
// a rapid resize burst simply supersedes earlier outputs.
func (v *PageView) Positions() map[string]float64 {
	if v.layout == nil {
		return map[string]float64{}
	}
	return v.layout.Positions(v.ResolvedRanges())
}

// Sidenotes returns the in-memory annotation set ordered by creation time.
func (v *PageView) Sidenotes() []sidenotes.SidenoteView {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sortedEntriesLocked()
}

func (v *PageView) sortedEntriesLocked() []sidenotes.SidenoteView {
	entries := make([]sidenotes.SidenoteView, 0, len(v.entries))
	for _, entry := range v.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAtSeconds != entries[j].CreatedAtSeconds {
			return entries[i].CreatedAtSeconds < entries[j].CreatedAtSeconds
		}
		return entries[i].SidenoteID < entries[j].SidenoteID
	})
	return entries
}
