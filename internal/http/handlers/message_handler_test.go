package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sfreeley/puzzle-post/internal/domain"
	"github.com/sfreeley/puzzle-post/internal/services"
)

func TestSanitizeContent(t *testing.T) {
	require.Equal(t, "line1\n\nline2\nline3", sanitizeContent("  line1\r\n\r\n\r\n\r\nline2\rline3  "))
	require.Empty(t, sanitizeContent(" \r\n\t "))
}

func TestSendMessage(t *testing.T) {
	a := newAPI(t)
	owner, other := a.user(t, "agatha"), a.user(t, "bertie")
	p := a.puzzle(t, owner, "Kitties")
	path := "/puzzles/" + p.ID + "/messages"

	// A non-owner messaging the owner of an available puzzle also requests it.
	w := a.do(t, http.MethodPost, path, other.ID, SendMessageRequest{RecipientID: owner.ID, Content: "Still have it?\r\n"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	m := decode[domain.Message](t, w)
	require.Equal(t, "Still have it?", m.Content)
	require.False(t, m.IsAutomated)

	w = a.do(t, http.MethodGet, "/puzzles/"+p.ID, owner.ID, nil)
	require.Equal(t, domain.StateRequested, decode[domain.Puzzle](t, w).Status)

	cases := []struct {
		name   string
		user   string
		body   SendMessageRequest
		status int
		code   string
	}{
		{"blank", other.ID, SendMessageRequest{RecipientID: owner.ID, Content: " \n "}, http.StatusBadRequest, ErrCodeBadRequest},
		{"too long", other.ID, SendMessageRequest{RecipientID: owner.ID, Content: strings.Repeat("a", 101)}, http.StatusBadRequest, ErrCodeBadRequest},
		{"self", owner.ID, SendMessageRequest{RecipientID: owner.ID, Content: "hi"}, http.StatusBadRequest, ErrCodeBadRequest},
		{"unknown recipient", other.ID, SendMessageRequest{RecipientID: "ghost", Content: "hi"}, http.StatusNotFound, ErrCodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := a.do(t, http.MethodPost, path, tc.user, tc.body)
			requireError(t, w, tc.status, tc.code)
		})
	}

	t.Run("neither party owns", func(t *testing.T) {
		third := a.user(t, "carla")
		w := a.do(t, http.MethodPost, path, other.ID, SendMessageRequest{RecipientID: third.ID, Content: "hi"})
		requireError(t, w, http.StatusForbidden, ErrCodeForbidden)
	})
}

func TestSendMessage_Idempotency(t *testing.T) {
	a := newAPI(t)
	owner, other := a.user(t, "agatha"), a.user(t, "bertie")
	p := a.puzzle(t, owner, "Kitties")
	path := "/puzzles/" + p.ID + "/messages"
	body := SendMessageRequest{RecipientID: owner.ID, Content: "hello"}

	w := a.do(t, http.MethodPost, path, other.ID, body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decode[domain.Message](t, w)
	require.Empty(t, w.Header().Get("Idempotency-Replayed"))

	w = a.do(t, http.MethodPost, path, other.ID, body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "true", w.Header().Get("Idempotency-Replayed"))
	require.Equal(t, first.ID, decode[domain.Message](t, w).ID)

	w = a.do(t, http.MethodGet, "/puzzles/"+p.ID+"/messages/"+owner.ID, other.ID, nil)
	require.Len(t, decode[ThreadResponse](t, w).Messages, 1)

	w = a.do(t, http.MethodPost, path, other.ID, body, "Idempotency-Key", "bad key!")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestThread_ETagPagingAndDelete(t *testing.T) {
	a := newAPI(t)
	owner, other := a.user(t, "agatha"), a.user(t, "bertie")
	p := a.puzzle(t, owner, "Kitties")
	send := func(from, to *domain.User, text string) {
		w := a.do(t, http.MethodPost, "/puzzles/"+p.ID+"/messages", from.ID, SendMessageRequest{RecipientID: to.ID, Content: text})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	send(other, owner, "one")
	send(owner, other, "two")
	send(other, owner, "three")

	ownerView := "/puzzles/" + p.ID + "/messages/" + other.ID
	w := a.do(t, http.MethodGet, ownerView+"?page_size=2", owner.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[ThreadResponse](t, w)
	require.Len(t, resp.Messages, 2)
	require.Equal(t, "one", resp.Messages[0].Content)
	require.Equal(t, int64(3), resp.Pagination.Total)
	require.True(t, resp.Pagination.HasNext)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	w = a.do(t, http.MethodGet, ownerView+"?page_size=2", owner.ID, nil, "If-None-Match", etag)
	require.Equal(t, http.StatusNotModified, w.Code)

	// Hiding the thread affects the owner's side only.
	w = a.do(t, http.MethodDelete, ownerView, owner.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, int64(3), decode[DeleteThreadResponse](t, w).Hidden)

	w = a.do(t, http.MethodGet, ownerView, owner.ID, nil, "If-None-Match", etag)
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, decode[ThreadResponse](t, w).Messages)

	w = a.do(t, http.MethodGet, "/puzzles/"+p.ID+"/messages/"+owner.ID, other.ID, nil)
	require.Len(t, decode[ThreadResponse](t, w).Messages, 3)
}

func TestInbox_UnreadMarkReadAndDelete(t *testing.T) {
	a := newAPI(t)
	owner, other := a.user(t, "agatha"), a.user(t, "bertie")
	p := a.puzzle(t, owner, "Kitties")

	w := a.do(t, http.MethodPost, "/puzzles/"+p.ID+"/messages", other.ID, SendMessageRequest{RecipientID: owner.ID, Content: "hi"})
	require.Equal(t, http.StatusCreated, w.Code)
	m := decode[domain.Message](t, w)

	w = a.do(t, http.MethodGet, "/messages/unread", owner.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, UnreadResponse{Unread: 1, SinceLastVisit: 1}, decode[UnreadResponse](t, w))

	// Opening the inbox resets the since-last-visit counter only.
	w = a.do(t, http.MethodGet, "/messages/threads", owner.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	threads := decode[[]services.ThreadSummary](t, w)
	require.Len(t, threads, 1)
	require.Equal(t, other.ID, threads[0].Counterpart.ID)
	require.Equal(t, p.ID, threads[0].MostRecentPuzzleID)
	require.Equal(t, int64(1), threads[0].UnreadCount)

	w = a.do(t, http.MethodGet, "/messages/unread", owner.ID, nil)
	require.Equal(t, UnreadResponse{Unread: 1, SinceLastVisit: 0}, decode[UnreadResponse](t, w))

	w = a.do(t, http.MethodPost, "/messages/"+m.ID+"/read", other.ID, nil)
	requireError(t, w, http.StatusForbidden, ErrCodeForbidden)

	for range 2 {
		w = a.do(t, http.MethodPost, "/messages/"+m.ID+"/read", owner.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, int64(0), decode[MarkReadResponse](t, w).Unread)
	}

	w = a.do(t, http.MethodDelete, "/messages/"+m.ID, a.user(t, "carla").ID, nil)
	requireError(t, w, http.StatusForbidden, ErrCodeForbidden)

	w = a.do(t, http.MethodDelete, "/messages/"+m.ID, other.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	// Still visible to the recipient.
	w = a.do(t, http.MethodGet, "/puzzles/"+p.ID+"/messages/"+other.ID, owner.ID, nil)
	require.Len(t, decode[ThreadResponse](t, w).Messages, 1)

	w = a.do(t, http.MethodDelete, "/messages/missing", owner.ID, nil)
	requireError(t, w, http.StatusNotFound, ErrCodeNotFound)
}

func TestUnread_UnknownUser(t *testing.T) {
	a := newAPI(t)
	w := a.do(t, http.MethodGet, "/messages/unread", "ghost", nil)
	requireError(t, w, http.StatusNotFound, ErrCodeNotFound)
}
