// Package services – MessageService
//
// This file implements MessageService, the messaging subsystem of the puzzle
// exchange. It sends messages between the two parties of a negotiation,
// tracks read state, applies per-party soft deletion and summarizes a user's
// threads for the inbox.
//
// A user-authored message from a non-owner to the owner of an Available
// puzzle also requests the puzzle; both writes share one transaction.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include puzzle/user/message identifiers where applicable.

package services

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/sfreeley/puzzle-post/internal/domain"
	"github.com/sfreeley/puzzle-post/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MessageService owns message persistence and visibility rules.
type MessageService struct {
	DB *gorm.DB

	// MaxContentRunes caps user-authored content; 0 disables the cap.
	MaxContentRunes int

	// IdempotencyTTL is how long a recorded send can be replayed.
	IdempotencyTTL time.Duration
}

// ThreadSummary is one entry of a user's inbox: the latest activity with a
// counterpart across all puzzles.
type ThreadSummary struct {
	Counterpart        domain.User `json:"counterpart"`
	MostRecentPuzzleID string      `json:"most_recent_puzzle_id"`
	LastMessageAt      time.Time   `json:"last_message_at"`
	UnreadCount        int64       `json:"unread_count"`
}

func (s *MessageService) tracer() trace.Tracer { return otel.Tracer("services/MessageService") }

// Send stores a user-authored message from senderID to recipientID about
// puzzleID. When the puzzle is Available, the sender is not its owner and the
// recipient is, the puzzle is requested in the same transaction.
func (s *MessageService) Send(ctx context.Context, senderID, recipientID, puzzleID, content string) (*domain.Message, error) {
	ctx, span := s.tracer().Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("puzzle.id", puzzleID),
			attribute.String("sender.id", senderID),
			attribute.String("recipient.id", recipientID),
		),
	)
	defer span.End()

	var (
		msg       *domain.Message
		requested bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := loadPuzzle(ctx, tx, "send", puzzleID)
		if err != nil {
			return err
		}
		msg, requested, err = s.sendTx(ctx, tx, p, senderID, recipientID, content, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	if requested {
		countTransition(domain.EventRequest)
	}
	countMessage(msg)
	return msg, nil
}

// sendTx validates and inserts one message on tx. automated messages skip the
// empty/length checks and never trigger a request.
func (s *MessageService) sendTx(ctx context.Context, tx *gorm.DB, p *domain.Puzzle, senderID, recipientID, content string, automated bool) (*domain.Message, bool, error) {
	const op = "send"

	content = strings.TrimSpace(content)
	if !automated {
		if content == "" {
			return nil, false, newErr(KindEmptyContent, op, "message content is empty")
		}
		if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
			return nil, false, newErr(KindInvalid, op, "message exceeds %d characters", s.MaxContentRunes)
		}
	}
	if senderID == recipientID {
		return nil, false, newErr(KindInvalid, op, "cannot message yourself")
	}
	if _, err := loadUser(ctx, tx, op, senderID); err != nil {
		return nil, false, err
	}
	if _, err := loadUser(ctx, tx, op, recipientID); err != nil {
		return nil, false, err
	}
	if senderID != p.UserID && recipientID != p.UserID {
		return nil, false, newErr(KindNotParty, op, "one party must own the puzzle")
	}

	requested := false
	if !automated && senderID != p.UserID && recipientID == p.UserID {
		if st, err := p.State(); err == nil && st == domain.StateAvailable {
			if err := requestTx(ctx, tx, p, senderID); err != nil {
				return nil, false, err
			}
			requested = true
		}
	}

	m := &domain.Message{
		PuzzleID:    p.ID,
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		IsAutomated: automated,
	}
	if err := repo.CreateMessage(ctx, tx, m); err != nil {
		return nil, false, err
	}
	return m, requested, nil
}

// MarkRead marks messageID read on behalf of its recipient and returns the
// reader's unread count afterwards. Re-marking is a no-op.
func (s *MessageService) MarkRead(ctx context.Context, messageID, readerID string) (int64, error) {
	ctx, span := s.tracer().Start(ctx, "MarkRead",
		trace.WithAttributes(
			attribute.String("message.id", messageID),
			attribute.String("user.id", readerID),
		),
	)
	defer span.End()

	var unread int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.loadMessage(ctx, tx, "mark_read", messageID)
		if err != nil {
			return err
		}
		if m.RecipientID != readerID {
			return newErr(KindNotRecipient, "mark_read", "only the recipient can mark a message read")
		}
		if _, err := repo.MarkRead(ctx, tx, messageID); err != nil {
			return err
		}
		unread, err = repo.CountUnread(ctx, tx, readerID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return unread, nil
}

// UnreadCount is the number of unread messages addressed to userID that the
// user has not deleted.
func (s *MessageService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	ctx, span := s.tracer().Start(ctx, "UnreadCount",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	return repo.CountUnread(ctx, s.DB, userID)
}

// Thread yields the messages between viewerID and otherID about puzzleID that
// are visible to viewerID, oldest first. Each range over the sequence runs a
// fresh query. A missing puzzle is reported as the first (and only) error.
func (s *MessageService) Thread(ctx context.Context, viewerID, otherID, puzzleID string) iter.Seq2[domain.Message, error] {
	return func(yield func(domain.Message, error) bool) {
		ctx, span := s.tracer().Start(ctx, "Thread",
			trace.WithAttributes(
				attribute.String("puzzle.id", puzzleID),
				attribute.String("user.id", viewerID),
				attribute.String("other.id", otherID),
			),
		)
		defer span.End()

		if _, err := loadPuzzle(ctx, s.DB, "thread", puzzleID); err != nil {
			yield(domain.Message{}, err)
			return
		}
		stopped := false
		err := repo.EachThreadMessage(ctx, s.DB, viewerID, otherID, puzzleID, func(m domain.Message) bool {
			if !yield(m, nil) {
				stopped = true
				return false
			}
			return true
		})
		if err != nil && !stopped {
			yield(domain.Message{}, err)
		}
	}
}

// ThreadPage returns one page of the viewer-visible thread and its total.
func (s *MessageService) ThreadPage(ctx context.Context, viewerID, otherID, puzzleID string, page, pageSize int) ([]domain.Message, int64, error) {
	ctx, span := s.tracer().Start(ctx, "ThreadPage",
		trace.WithAttributes(
			attribute.String("puzzle.id", puzzleID),
			attribute.String("user.id", viewerID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	if _, err := loadPuzzle(ctx, s.DB, "thread", puzzleID); err != nil {
		return nil, 0, err
	}
	total, err := repo.CountThread(ctx, s.DB, viewerID, otherID, puzzleID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListThreadPage(ctx, s.DB, viewerID, otherID, puzzleID, (page-1)*pageSize, pageSize)
	return items, total, err
}

// ThreadVersion returns (count, latest update) of the viewer-visible thread,
// suitable for building an ETag.
func (s *MessageService) ThreadVersion(ctx context.Context, viewerID, otherID, puzzleID string) (int64, *time.Time, error) {
	return repo.ThreadStats(ctx, s.DB, viewerID, otherID, puzzleID)
}

// Delete hides messageID from requesterID's side only.
func (s *MessageService) Delete(ctx context.Context, messageID, requesterID string) error {
	ctx, span := s.tracer().Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("message.id", messageID),
			attribute.String("user.id", requesterID),
		),
	)
	defer span.End()

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.loadMessage(ctx, tx, "delete_message", messageID)
		if err != nil {
			return err
		}
		switch requesterID {
		case m.SenderID:
			return repo.HideForSender(ctx, tx, m.ID)
		case m.RecipientID:
			return repo.HideForRecipient(ctx, tx, m.ID)
		default:
			return newErr(KindNotParty, "delete_message", "not a party to message %s", messageID)
		}
	})
}

// DeleteThread hides the whole thread between viewerID and otherID about
// puzzleID from viewerID's side and returns how many messages were hidden.
func (s *MessageService) DeleteThread(ctx context.Context, viewerID, otherID, puzzleID string) (int64, error) {
	ctx, span := s.tracer().Start(ctx, "DeleteThread",
		trace.WithAttributes(
			attribute.String("puzzle.id", puzzleID),
			attribute.String("user.id", viewerID),
			attribute.String("other.id", otherID),
		),
	)
	defer span.End()

	var n int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadPuzzle(ctx, tx, "delete_thread", puzzleID); err != nil {
			return err
		}
		var err error
		n, err = repo.HideThread(ctx, tx, viewerID, otherID, puzzleID)
		return err
	})
	return n, err
}

// ListThreads summarizes userID's conversations, one entry per counterpart,
// most recent first.
func (s *MessageService) ListThreads(ctx context.Context, userID string) ([]ThreadSummary, error) {
	ctx, span := s.tracer().Start(ctx, "ListThreads",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	rows, err := repo.ListVisibleMessages(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}

	// rows are newest first, so the first hit per counterpart is the latest.
	var (
		order []string
		byID  = map[string]*ThreadSummary{}
	)
	for i := range rows {
		m := &rows[i]
		other := m.Counterpart(userID)
		sum, seen := byID[other]
		if !seen {
			sum = &ThreadSummary{
				Counterpart:        domain.User{ID: other},
				MostRecentPuzzleID: m.PuzzleID,
				LastMessageAt:      m.CreatedAt,
			}
			byID[other] = sum
			order = append(order, other)
		}
		if m.RecipientID == userID && !m.IsRead {
			sum.UnreadCount++
		}
	}

	users, err := repo.GetUsersByIDs(ctx, s.DB, order)
	if err != nil {
		return nil, err
	}
	out := make([]ThreadSummary, 0, len(order))
	for _, id := range order {
		sum := byID[id]
		if u, ok := users[id]; ok {
			sum.Counterpart = u
		}
		out = append(out, *sum)
	}
	return out, nil
}

// Replay returns the message recorded for an idempotent send, if any.
func (s *MessageService) Replay(ctx context.Context, userID, puzzleID, key string) (*domain.Message, bool) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, puzzleID, key, time.Now().UTC())
	if err != nil || rec == nil {
		return nil, false
	}
	m, err := repo.GetMessage(ctx, s.DB, rec.ResourceID)
	if err != nil {
		return nil, false
	}
	return m, true
}

// Remember records that key produced messageID. A concurrent duplicate is
// not an error.
func (s *MessageService) Remember(ctx context.Context, userID, puzzleID, key, messageID string, status int) error {
	ttl := s.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	_, err := repo.CreateIdempotency(ctx, s.DB, userID, puzzleID, key, messageID, status, ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

func (s *MessageService) loadMessage(ctx context.Context, db *gorm.DB, op, id string) (*domain.Message, error) {
	m, err := repo.GetMessage(ctx, db, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, newErr(KindNotFound, op, "message %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}
