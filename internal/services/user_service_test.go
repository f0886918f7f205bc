package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateUser_ValidationAndConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.users.CreateUser(ctx, NewUser{Username: " agatha ", Email: "Agatha@Example.COM"})
	require.NoError(t, err)
	require.NotEmpty(t, u.ID)
	require.Equal(t, "agatha", u.Username)
	require.Equal(t, "agatha@example.com", u.Email)

	_, err = f.users.CreateUser(ctx, NewUser{Username: "agatha", Email: "other@example.com"})
	requireKind(t, err, ErrConflict)
	_, err = f.users.CreateUser(ctx, NewUser{Username: "other", Email: "AGATHA@example.com"})
	requireKind(t, err, ErrConflict)

	for _, in := range []NewUser{
		{Username: "ab", Email: "ab@example.com"},
		{Username: "has space", Email: "x@example.com"},
		{Username: "valid", Email: "not-an-email"},
		{Username: "", Email: ""},
	} {
		_, err := f.users.CreateUser(ctx, in)
		requireKind(t, err, ErrInvalidInput)
	}
}

func TestGetUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, "agatha")

	got, err := f.users.GetUser(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "agatha", got.Username)

	got, err = f.users.GetUserByUsername(ctx, "agatha")
	require.NoError(t, err)
	require.Equal(t, a.ID, got.ID)

	_, err = f.users.GetUser(ctx, "ghost")
	requireKind(t, err, ErrNotFound)
	_, err = f.users.GetUserByUsername(ctx, "ghost")
	requireKind(t, err, ErrNotFound)
}

func TestLegacyUnreadCount_UsesInboxWatermark(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t, "agatha"), f.user(t, "bruno")
	p := f.puzzle(t, a, "Cocoa Beach")

	_, err := f.messages.Send(ctx, b.ID, a.ID, p.ID, "one")
	require.NoError(t, err)
	_, err = f.messages.Send(ctx, b.ID, a.ID, p.ID, "two")
	require.NoError(t, err)

	n, err := f.users.LegacyUnreadCount(ctx, a.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	require.NoError(t, f.users.TouchInbox(ctx, a.ID))
	n, err = f.users.LegacyUnreadCount(ctx, a.ID)
	require.NoError(t, err)
	require.Zero(t, n)

	// Per-message read flags are untouched by the watermark.
	unread, err := f.messages.UnreadCount(ctx, a.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, unread)

	_, err = f.messages.Send(ctx, b.ID, a.ID, p.ID, "three")
	require.NoError(t, err)
	n, err = f.users.LegacyUnreadCount(ctx, a.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	requireKind(t, f.users.TouchInbox(ctx, "ghost"), ErrNotFound)
	_, err = f.users.LegacyUnreadCount(ctx, "ghost")
	requireKind(t, err, ErrNotFound)
}
