// Package services – PuzzleService
//
// PuzzleService is the puzzle catalog: creating listings (with an optional
// image handed to the storage collaborator), reading them, the owner's active
// list, browsing other users' available puzzles and soft deletion.
//
// Category labels and manufacturer names are canonicalized with
// golang.org/x/text title casing so "ravensburger" and "Ravensburger" end up
// as the same value.

package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/sfreeley/puzzle-post/internal/domain"
	"github.com/sfreeley/puzzle-post/internal/repo"
	"github.com/sfreeley/puzzle-post/internal/search"
	"github.com/sfreeley/puzzle-post/internal/storage"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// defaultValidate is shared by services constructed without a validator.
var defaultValidate = validator.New(validator.WithRequiredStructEnabled())

// NewPuzzle is the input to CreatePuzzle.
type NewPuzzle struct {
	Title        string   `validate:"required,max=64"`
	Pieces       int      `validate:"required,gt=0,lte=100000"`
	Manufacturer string   `validate:"required,max=64"`
	Description  string   `validate:"max=140"`
	Categories   []string `validate:"max=10,dive,required,max=64"`
	Image        []byte
}

// Filter narrows Browse. Zero values disable a clause.
type Filter struct {
	Query     string
	Category  string
	MinPieces int
	MaxPieces int
	Page      int
	PageSize  int
}

// PuzzleService provides catalog operations.
type PuzzleService struct {
	DB       *gorm.DB
	Store    storage.Store
	Validate *validator.Validate

	// Locale drives title casing of categories and manufacturers.
	Locale language.Tag
}

func (s *PuzzleService) tracer() trace.Tracer { return otel.Tracer("services/PuzzleService") }

func (s *PuzzleService) validate() *validator.Validate {
	if s.Validate == nil {
		return defaultValidate
	}
	return s.Validate
}

// canonical trims, collapses inner whitespace and title-cases label.
func (s *PuzzleService) canonical(label string) string {
	label = strings.Join(strings.Fields(label), " ")
	if label == "" {
		return ""
	}
	tag := s.Locale
	if tag == language.Und {
		tag = language.English
	}
	return cases.Title(tag, cases.NoLower).String(label)
}

// CreatePuzzle validates in, stores the image when present and persists a new
// Available puzzle owned by ownerID.
func (s *PuzzleService) CreatePuzzle(ctx context.Context, ownerID string, in NewPuzzle) (*domain.Puzzle, error) {
	ctx, span := s.tracer().Start(ctx, "CreatePuzzle",
		trace.WithAttributes(attribute.String("user.id", ownerID)),
	)
	defer span.End()

	const op = "create_puzzle"
	in.Title = strings.TrimSpace(in.Title)
	in.Manufacturer = s.canonical(in.Manufacturer)
	in.Description = strings.TrimSpace(in.Description)
	names := make([]string, 0, len(in.Categories))
	for _, c := range in.Categories {
		names = append(names, s.canonical(c))
	}
	in.Categories = names
	if err := s.validate().Struct(in); err != nil {
		return nil, &Error{Kind: KindInvalid, Op: op, Msg: "invalid puzzle", Err: err}
	}

	if _, err := loadUser(ctx, s.DB, op, ownerID); err != nil {
		return nil, err
	}

	var imageURL string
	if len(in.Image) > 0 {
		if s.Store == nil {
			return nil, newErr(KindInvalid, op, "image uploads are not enabled")
		}
		url, err := s.Store.Put(ctx, in.Image)
		switch {
		case errors.Is(err, storage.ErrEmpty), errors.Is(err, storage.ErrTooLarge), errors.Is(err, storage.ErrUnsupportedType):
			return nil, &Error{Kind: KindInvalid, Op: op, Msg: "invalid image", Err: err}
		case err != nil:
			return nil, err
		}
		imageURL = url
	}

	to, err := domain.Transition("", domain.EventCreate)
	if err != nil {
		return nil, err
	}
	p := &domain.Puzzle{
		UserID:       ownerID,
		Title:        in.Title,
		Pieces:       in.Pieces,
		Manufacturer: in.Manufacturer,
		Description:  in.Description,
		ImageURL:     imageURL,
	}
	p.SetFlags(domain.FlagsFor(to, domain.Flags{}))

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cats, err := repo.UpsertCategories(ctx, tx, in.Categories)
		if err != nil {
			return err
		}
		p.Categories = cats
		return repo.CreatePuzzle(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}

	countTransition(domain.EventCreate)
	return p, nil
}

// GetPuzzle returns a puzzle with owner and categories.
func (s *PuzzleService) GetPuzzle(ctx context.Context, id string) (*domain.Puzzle, error) {
	ctx, span := s.tracer().Start(ctx, "GetPuzzle",
		trace.WithAttributes(attribute.String("puzzle.id", id)),
	)
	defer span.End()

	p, err := repo.GetPuzzleDetail(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, newErr(KindNotFound, "get_puzzle", "puzzle %s not found", id)
	}
	return p, err
}

// ListOwned returns ownerID's active (non-deleted) puzzles, newest first.
func (s *PuzzleService) ListOwned(ctx context.Context, ownerID string) ([]domain.Puzzle, error) {
	ctx, span := s.tracer().Start(ctx, "ListOwned",
		trace.WithAttributes(attribute.String("user.id", ownerID)),
	)
	defer span.End()

	return repo.ListOwnedPuzzles(ctx, s.DB, ownerID)
}

// Browse lists Available puzzles not owned by viewerID. Category and piece
// filters run in SQL; a free-text Query re-ranks the filtered set by
// similarity before paging.
func (s *PuzzleService) Browse(ctx context.Context, viewerID string, f Filter) ([]domain.Puzzle, int64, error) {
	ctx, span := s.tracer().Start(ctx, "Browse",
		trace.WithAttributes(
			attribute.String("user.id", viewerID),
			attribute.String("query", f.Query),
			attribute.Int("page", f.Page),
			attribute.Int("page_size", f.PageSize),
		),
	)
	defer span.End()

	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = 20
	}
	if f.MinPieces > 0 && f.MaxPieces > 0 && f.MinPieces > f.MaxPieces {
		return nil, 0, newErr(KindInvalid, "browse", "min_pieces greater than max_pieces")
	}
	lf := repo.ListingFilter{
		ExcludeOwner: viewerID,
		Category:     s.canonical(f.Category),
		MinPieces:    f.MinPieces,
		MaxPieces:    f.MaxPieces,
	}
	offset := (f.Page - 1) * f.PageSize

	if strings.TrimSpace(f.Query) == "" {
		total, err := repo.CountListings(ctx, s.DB, lf)
		if err != nil {
			return nil, 0, err
		}
		if total == 0 {
			return []domain.Puzzle{}, 0, nil
		}
		items, err := repo.ListListingsPage(ctx, s.DB, lf, offset, f.PageSize)
		return items, total, err
	}

	all, err := repo.ListListingsPage(ctx, s.DB, lf, 0, 0)
	if err != nil {
		return nil, 0, err
	}
	docs := make([]search.Document, 0, len(all))
	byID := make(map[string]domain.Puzzle, len(all))
	for _, p := range all {
		docs = append(docs, search.Document{ID: p.ID, Text: listingText(p)})
		byID[p.ID] = p
	}
	ranked := search.NewIndex(docs, search.WithStopwords(search.DefaultStopwords)).TopK(f.Query, 0)

	total := int64(len(ranked))
	if offset >= len(ranked) {
		return []domain.Puzzle{}, total, nil
	}
	end := min(offset+f.PageSize, len(ranked))
	out := make([]domain.Puzzle, 0, end-offset)
	for _, r := range ranked[offset:end] {
		out = append(out, byID[r.ID])
	}
	return out, total, nil
}

// listingText is the searchable text of a listing.
func listingText(p domain.Puzzle) string {
	parts := []string{p.Title, p.Manufacturer, p.Description}
	for _, c := range p.Categories {
		parts = append(parts, c.Name)
	}
	return strings.Join(parts, " ")
}

// DeletePuzzle soft-deletes puzzleID on behalf of its owner.
func (s *PuzzleService) DeletePuzzle(ctx context.Context, puzzleID, ownerID string) (*domain.Puzzle, error) {
	ctx, span := s.tracer().Start(ctx, "DeletePuzzle",
		trace.WithAttributes(
			attribute.String("puzzle.id", puzzleID),
			attribute.String("user.id", ownerID),
		),
	)
	defer span.End()

	var p *domain.Puzzle
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if p, err = loadPuzzle(ctx, tx, "delete", puzzleID); err != nil {
			return err
		}
		return softDeleteTx(ctx, tx, p, ownerID)
	})
	if err != nil {
		return nil, err
	}

	countTransition(domain.EventDelete)
	return p, nil
}

// ListCategories returns every category by name.
func (s *PuzzleService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	ctx, span := s.tracer().Start(ctx, "ListCategories")
	defer span.End()

	return repo.ListCategories(ctx, s.DB)
}

// OwnedVersion returns (count, latest update) of ownerID's active puzzles,
// suitable for building an ETag.
func (s *PuzzleService) OwnedVersion(ctx context.Context, ownerID string) (int64, *time.Time, error) {
	return repo.OwnedPuzzleStats(ctx, s.DB, ownerID)
}
