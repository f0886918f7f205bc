package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sfreeley/puzzle-post/internal/domain"
)

func TestNegotiation_RequestChatApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "agatha"), f.user(t, "bruno")
	p := f.puzzle(t, a, "Cocoa Beach")

	_, _, err := f.nego.RequestPuzzle(ctx, p.ID, b.ID, "")
	require.NoError(t, err)
	_, err = f.nego.SendMessage(ctx, b.ID, a.ID, p.ID, "interested")
	require.NoError(t, err)

	before, err := f.messages.UnreadCount(ctx, b.ID)
	require.NoError(t, err)

	got, notice, err := f.nego.ApproveRequest(ctx, p.ID, a.ID, "enjoy!")
	require.NoError(t, err)
	require.Equal(t, domain.StateInProgress, got.Status)
	require.Equal(t, b.ID, got.UserID)

	stored := f.reload(t, p.ID)
	require.Equal(t, domain.StateInProgress, stored.Status)
	require.Equal(t, b.ID, stored.UserID)
	require.Nil(t, stored.RequestedBy)

	require.True(t, notice.IsAutomated)
	require.Equal(t, a.ID, notice.SenderID)
	require.Equal(t, b.ID, notice.RecipientID)
	require.Equal(t, `agatha approved your request for "Cocoa Beach". enjoy!`, notice.Content)

	th := f.thread(t, b.ID, a.ID, p.ID)
	require.Len(t, th, 3)
	require.Equal(t, notice.ID, th[2].ID)

	after, err := f.messages.UnreadCount(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, before+1, after)

	// The new holder can complete; the previous owner cannot.
	_, err = f.nego.CompletePuzzle(ctx, p.ID, a.ID)
	requireKind(t, err, ErrNotOwner)
	done, err := f.nego.CompletePuzzle(ctx, p.ID, b.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StateAvailable, done.Status)
	require.Equal(t, b.ID, done.UserID)
	require.Len(t, f.thread(t, b.ID, a.ID, p.ID), 3, "complete sends no message")
}

func TestNegotiation_Decline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.user(t, "agatha"), f.user(t, "bruno"), f.user(t, "carla")
	p := f.puzzle(t, a, "Kitties")

	_, _, err := f.nego.RequestPuzzle(ctx, p.ID, b.ID, "please?")
	require.NoError(t, err)

	got, notice, err := f.nego.DeclineRequest(ctx, p.ID, a.ID, "  sorry  ")
	require.NoError(t, err)
	require.Equal(t, domain.StateAvailable, got.Status)
	require.Equal(t, a.ID, got.UserID)
	require.Nil(t, f.reload(t, p.ID).RequestedBy)
	require.Equal(t, `agatha declined your request for "Kitties". sorry`, notice.Content)
	require.True(t, notice.IsAutomated)

	// Available again, so someone else may request it.
	_, _, err = f.nego.RequestPuzzle(ctx, p.ID, c.ID, "")
	require.NoError(t, err)
}

func TestNegotiation_NoteTooLong(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "agatha"), f.user(t, "bruno")
	p := f.puzzle(t, a, "Kitties")

	_, _, err := f.nego.RequestPuzzle(ctx, p.ID, b.ID, "")
	require.NoError(t, err)

	_, _, err = f.nego.ApproveRequest(ctx, p.ID, a.ID, strings.Repeat("é", 201))
	requireKind(t, err, ErrInvalidInput)
	require.Equal(t, domain.StateRequested, f.reload(t, p.ID).Status)
}

func TestNegotiation_DefaultRequestNote(t *testing.T) {
	f := newFixture(t)
	a, b := f.user(t, "agatha"), f.user(t, "bruno")
	p := f.puzzle(t, a, "Kitties")

	_, msg, err := f.nego.RequestPuzzle(context.Background(), p.ID, b.ID, "   ")
	require.NoError(t, err)
	require.Equal(t, `Hi! I'd like to request "Kitties".`, msg.Content)
}

func TestAutomatedNotice(t *testing.T) {
	require.Equal(t, `ann approved your request for "X".`, automatedNotice(domain.EventApprove, "ann", "X", ""))
	require.Equal(t, `ann declined your request for "X". maybe later`, automatedNotice(domain.EventDecline, "ann", "X", "maybe later"))
}

// failMessageInserts makes every INSERT into messages fail on db.
func failMessageInserts(t *testing.T, db *gorm.DB) {
	t.Helper()
	err := db.Callback().Create().Before("gorm:create").Register("test:fail_messages", func(tx *gorm.DB) {
		if tx.Statement.Table == "messages" {
			_ = tx.AddError(errors.New("insert refused"))
		}
	})
	require.NoError(t, err)
}

func TestNegotiation_RollsBackWhenMessageFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "agatha"), f.user(t, "bruno")
	p := f.puzzle(t, a, "Cocoa Beach")
	q := f.puzzle(t, a, "Kitties")

	_, _, err := f.nego.RequestPuzzle(ctx, q.ID, b.ID, "")
	require.NoError(t, err)

	failMessageInserts(t, f.db)

	_, _, err = f.nego.RequestPuzzle(ctx, p.ID, b.ID, "")
	require.Error(t, err)
	stored := f.reload(t, p.ID)
	require.Equal(t, domain.StateAvailable, stored.Status)
	require.Nil(t, stored.RequestedBy)

	_, _, err = f.nego.ApproveRequest(ctx, q.ID, a.ID, "")
	require.Error(t, err)
	stored = f.reload(t, q.ID)
	require.Equal(t, domain.StateRequested, stored.Status)
	require.Equal(t, a.ID, stored.UserID)
	require.Equal(t, b.ID, *stored.RequestedBy)

	_, err = f.messages.Send(ctx, b.ID, a.ID, p.ID, "send-implied request")
	require.Error(t, err)
	require.Equal(t, domain.StateAvailable, f.reload(t, p.ID).Status)
}
