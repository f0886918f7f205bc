// Package services – NegotiationService
//
// NegotiationService runs the request → approve/decline → complete protocol.
// Each action is one transaction: the lifecycle transition and the message
// that accompanies it commit together or not at all. Request carries the
// requester's own note; approve and decline emit an automated message from
// the approver to the requester.

package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/sfreeley/puzzle-post/internal/domain"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// defaultRequestNote is used when a requester leaves the note blank.
const defaultRequestNote = "Hi! I'd like to request %q."

// NegotiationService composes the lifecycle engine with MessageService.
type NegotiationService struct {
	DB       *gorm.DB
	Messages *MessageService
}

func (s *NegotiationService) tracer() trace.Tracer {
	return otel.Tracer("services/NegotiationService")
}

func (s *NegotiationService) span(ctx context.Context, name, puzzleID, actorID string) (context.Context, trace.Span) {
	return s.tracer().Start(ctx, name,
		trace.WithAttributes(
			attribute.String("puzzle.id", puzzleID),
			attribute.String("user.id", actorID),
		),
	)
}

// RequestPuzzle moves puzzleID to Requested on behalf of requesterID and
// sends the requester's note to the owner.
func (s *NegotiationService) RequestPuzzle(ctx context.Context, puzzleID, requesterID, note string) (*domain.Puzzle, *domain.Message, error) {
	ctx, span := s.span(ctx, "RequestPuzzle", puzzleID, requesterID)
	defer span.End()

	var (
		p   *domain.Puzzle
		msg *domain.Message
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if p, err = loadPuzzle(ctx, tx, "request", puzzleID); err != nil {
			return err
		}
		if _, err = loadUser(ctx, tx, "request", requesterID); err != nil {
			return err
		}
		if err = requestTx(ctx, tx, p, requesterID); err != nil {
			return err
		}
		note = strings.TrimSpace(note)
		if note == "" {
			note = fmt.Sprintf(defaultRequestNote, p.Title)
		}
		msg, _, err = s.Messages.sendTx(ctx, tx, p, requesterID, p.UserID, note, false)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	countTransition(domain.EventRequest)
	countMessage(msg)
	return p, msg, nil
}

// ApproveRequest hands puzzleID to the pending requester and notifies them.
func (s *NegotiationService) ApproveRequest(ctx context.Context, puzzleID, approverID, note string) (*domain.Puzzle, *domain.Message, error) {
	ctx, span := s.span(ctx, "ApproveRequest", puzzleID, approverID)
	defer span.End()

	return s.resolve(ctx, domain.EventApprove, puzzleID, approverID, note)
}

// DeclineRequest returns puzzleID to Available and notifies the requester.
func (s *NegotiationService) DeclineRequest(ctx context.Context, puzzleID, approverID, note string) (*domain.Puzzle, *domain.Message, error) {
	ctx, span := s.span(ctx, "DeclineRequest", puzzleID, approverID)
	defer span.End()

	return s.resolve(ctx, domain.EventDecline, puzzleID, approverID, note)
}

// resolve runs approve or decline plus the automated notice in one transaction.
func (s *NegotiationService) resolve(ctx context.Context, ev domain.Event, puzzleID, approverID, note string) (*domain.Puzzle, *domain.Message, error) {
	op := string(ev)
	note = strings.TrimSpace(note)
	if limit := s.Messages.MaxContentRunes; limit > 0 && utf8.RuneCountInString(note) > limit {
		return nil, nil, newErr(KindInvalid, op, "note exceeds %d characters", limit)
	}

	var (
		p   *domain.Puzzle
		msg *domain.Message
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if p, err = loadPuzzle(ctx, tx, op, puzzleID); err != nil {
			return err
		}
		var requester string
		if ev == domain.EventApprove {
			requester, err = approveTx(ctx, tx, p, approverID)
		} else {
			requester, err = declineTx(ctx, tx, p, approverID)
		}
		if err != nil {
			return err
		}
		approver, err := loadUser(ctx, tx, op, approverID)
		if err != nil {
			return err
		}
		msg, _, err = s.Messages.sendTx(ctx, tx, p, approverID, requester, automatedNotice(ev, approver.Username, p.Title, note), true)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	countTransition(ev)
	countMessage(msg)
	return p, msg, nil
}

// automatedNotice renders the message that accompanies approve/decline.
func automatedNotice(ev domain.Event, approver, title, note string) string {
	verb := "approved"
	if ev == domain.EventDecline {
		verb = "declined"
	}
	text := fmt.Sprintf("%s %s your request for %q.", approver, verb, title)
	if note != "" {
		text += " " + note
	}
	return text
}

// CompletePuzzle returns puzzleID from InProgress to Available. Only the
// current holder may complete it.
func (s *NegotiationService) CompletePuzzle(ctx context.Context, puzzleID, holderID string) (*domain.Puzzle, error) {
	ctx, span := s.span(ctx, "CompletePuzzle", puzzleID, holderID)
	defer span.End()

	var p *domain.Puzzle
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if p, err = loadPuzzle(ctx, tx, "complete", puzzleID); err != nil {
			return err
		}
		return completeTx(ctx, tx, p, holderID)
	})
	if err != nil {
		return nil, err
	}

	countTransition(domain.EventComplete)
	return p, nil
}

// SendMessage is the negotiation-facing entry to MessageService.Send.
func (s *NegotiationService) SendMessage(ctx context.Context, senderID, recipientID, puzzleID, content string) (*domain.Message, error) {
	return s.Messages.Send(ctx, senderID, recipientID, puzzleID, content)
}
