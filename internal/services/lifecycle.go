// Package services – puzzle lifecycle
//
// This file holds the puzzle state machine as applied to stored rows. Every
// function here runs on a caller-owned transaction: it reads the puzzle,
// validates the transition against domain.Transition and the actor's
// relationship to the puzzle, then writes the new flags with a
// compare-and-set UPDATE. A concurrent transition that got there first makes
// the UPDATE match zero rows, which is reported as InvalidState.
//
// Validation order is state first, then actor. A repeated approve therefore
// fails with InvalidState even though the caller is no longer the owner.

package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/sfreeley/puzzle-post/internal/domain"
	"github.com/sfreeley/puzzle-post/internal/repo"
)

// loadPuzzle reads puzzle id on db, translating a missing row to NotFound.
func loadPuzzle(ctx context.Context, db *gorm.DB, op, id string) (*domain.Puzzle, error) {
	p, err := repo.GetPuzzle(ctx, db, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, newErr(KindNotFound, op, "puzzle %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// loadUser reads user id on db, translating a missing row to NotFound.
func loadUser(ctx context.Context, db *gorm.DB, op, id string) (*domain.User, error) {
	u, err := repo.GetUser(ctx, db, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, newErr(KindNotFound, op, "user %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// next validates ev from p's current state and returns the target state.
func next(op string, p *domain.Puzzle, ev domain.Event) (domain.State, error) {
	from, err := p.State()
	if err != nil {
		return "", &Error{Kind: KindInvalidState, Op: op, Msg: "puzzle flags are inconsistent", Err: err}
	}
	to, err := domain.Transition(from, ev)
	if err != nil {
		return "", &Error{Kind: KindInvalidState, Op: op, Msg: "puzzle is " + string(from), Err: err}
	}
	return to, nil
}

// apply writes the flags for state `to` onto p's row, guarded by the flags and
// owner p was read with. extra columns are written in the same statement.
func apply(ctx context.Context, tx *gorm.DB, op string, p *domain.Puzzle, to domain.State, extra map[string]any) error {
	from := p.Flags()
	want := domain.FlagsFor(to, from)
	err := repo.SwapPuzzleFlags(ctx, tx, p.ID, p.UserID, from, want, extra)
	if errors.Is(err, repo.ErrStale) {
		return &Error{Kind: KindInvalidState, Op: op, Msg: "puzzle changed concurrently", Err: err}
	}
	if err != nil {
		return err
	}
	p.SetFlags(want)
	return nil
}

// requestTx moves p from Available to Requested on behalf of requesterID.
// The owner cannot request their own puzzle.
func requestTx(ctx context.Context, tx *gorm.DB, p *domain.Puzzle, requesterID string) error {
	const op = "request"
	to, err := next(op, p, domain.EventRequest)
	if err != nil {
		return err
	}
	if requesterID == p.UserID {
		return newErr(KindInvalidState, op, "owner cannot request their own puzzle")
	}
	if err := apply(ctx, tx, op, p, to, map[string]any{"requested_by": requesterID}); err != nil {
		return err
	}
	p.RequestedBy = &requesterID
	return nil
}

// approveTx moves p from Requested to InProgress and hands ownership to the
// pending requester. It returns the requester's ID.
func approveTx(ctx context.Context, tx *gorm.DB, p *domain.Puzzle, approverID string) (string, error) {
	const op = "approve"
	to, err := next(op, p, domain.EventApprove)
	if err != nil {
		return "", err
	}
	if approverID != p.UserID {
		return "", newErr(KindNotOwner, op, "only the owner can approve")
	}
	if p.RequestedBy == nil || *p.RequestedBy == "" {
		return "", newErr(KindInvalidState, op, "no pending requester")
	}
	requester := *p.RequestedBy
	if err := apply(ctx, tx, op, p, to, map[string]any{"user_id": requester, "requested_by": nil}); err != nil {
		return "", err
	}
	p.UserID = requester
	p.RequestedBy = nil
	return requester, nil
}

// declineTx returns p from Requested to Available, owner unchanged. It returns
// the requester's ID.
func declineTx(ctx context.Context, tx *gorm.DB, p *domain.Puzzle, approverID string) (string, error) {
	const op = "decline"
	to, err := next(op, p, domain.EventDecline)
	if err != nil {
		return "", err
	}
	if approverID != p.UserID {
		return "", newErr(KindNotOwner, op, "only the owner can decline")
	}
	if p.RequestedBy == nil || *p.RequestedBy == "" {
		return "", newErr(KindInvalidState, op, "no pending requester")
	}
	requester := *p.RequestedBy
	if err := apply(ctx, tx, op, p, to, map[string]any{"requested_by": nil}); err != nil {
		return "", err
	}
	p.RequestedBy = nil
	return requester, nil
}

// completeTx returns p from InProgress to Available. Only the current holder
// may complete.
func completeTx(ctx context.Context, tx *gorm.DB, p *domain.Puzzle, holderID string) error {
	const op = "complete"
	to, err := next(op, p, domain.EventComplete)
	if err != nil {
		return err
	}
	if holderID != p.UserID {
		return newErr(KindNotOwner, op, "only the current holder can complete")
	}
	return apply(ctx, tx, op, p, to, nil)
}

// softDeleteTx marks p deleted. Open negotiation state (requested_by and the
// requested/in-progress flags) is left as it was.
func softDeleteTx(ctx context.Context, tx *gorm.DB, p *domain.Puzzle, ownerID string) error {
	const op = "delete"
	to, err := next(op, p, domain.EventDelete)
	if err != nil {
		return err
	}
	if ownerID != p.UserID {
		return newErr(KindNotOwner, op, "only the owner can delete")
	}
	return apply(ctx, tx, op, p, to, nil)
}
