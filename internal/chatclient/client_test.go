package chatclient

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concordhq/concord/internal/api"
	"github.com/concordhq/concord/internal/auth"
	"github.com/concordhq/concord/internal/config"
	"github.com/concordhq/concord/internal/membership"
	"github.com/concordhq/concord/internal/model"
	"github.com/concordhq/concord/internal/realtime"
	"github.com/concordhq/concord/internal/store"
)

// testServer is a live Concord server on a random port.
type testServer struct {
	t      *testing.T
	url    string
	store  *store.Store
	tokens *auth.Manager
}

func startServer(t *testing.T) *testServer {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "concord.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfg.Security.JWTSecret = "0123456789abcdef0123456789abcdef"
	cfg.Security.BcryptCost = 4
	cfg.Limits.HTTPRateRequests = 10000

	hub := realtime.NewHub(membership.NewOracle(st), realtime.Options{
		MaxMessageSize: cfg.Limits.MaxMessageSize,
		MessageRate:    1000,
		MessageBurst:   1000,
	})
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(2 * time.Second) })

	tokens := auth.NewManager(cfg.Security.JWTSecret, cfg.Security.TokenTTL)
	app := api.New(st, tokens, auth.NewHasher(cfg.Security.BcryptCost), hub, cfg)

	srv := httptest.NewServer(app.Router())
	t.Cleanup(srv.Close)

	return &testServer{t: t, url: srv.URL, store: st, tokens: tokens}
}

// user provisions an account and returns its id and session token.
func (s *testServer) user(email string) (string, string) {
	s.t.Helper()
	u, err := s.store.CreateUser(context.Background(), email, "Test User", "hash")
	require.NoError(s.t, err)
	token, err := s.tokens.Issue(u.ID, u.Email)
	require.NoError(s.t, err)
	return u.ID, token
}

// connect dials the server and starts the client's read loop.
func (s *testServer) connect(ctx context.Context, token string) *Client {
	s.t.Helper()
	c, err := Dial(ctx, s.url, token)
	require.NoError(s.t, err)
	s.t.Cleanup(func() { _ = c.Close() })
	go func() { _ = c.Run(ctx) }()
	return c
}

func waitForMessages(t *testing.T, c *Client, roomID string, want int) []model.Message {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Cache().Len(roomID) >= want
	}, 3*time.Second, 10*time.Millisecond)
	return c.Messages(roomID)
}

func TestChannelMessageEcho(t *testing.T) {
	srv := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ownerID, ownerToken := srv.user("owner@example.com")
	memberID, memberToken := srv.user("member@example.com")

	server, general, err := srv.store.CreateServer(ctx, "Team", ownerID)
	require.NoError(t, err)
	require.NoError(t, srv.store.UpsertMember(ctx, server.ID, memberID, model.RoleMember))

	sender := srv.connect(ctx, ownerToken)
	receiver := srv.connect(ctx, memberToken)
	require.NoError(t, sender.JoinChannel(general.ID))
	require.NoError(t, receiver.JoinChannel(general.ID))

	// Room joins are processed by the server's read pump; give them a moment
	// before broadcasting into the room.
	time.Sleep(100 * time.Millisecond)

	msg, err := srv.store.CreateMessage(ctx, general.ID, ownerID, "hello room")
	require.NoError(t, err)
	require.NoError(t, sender.AnnounceMessage(realtime.EventCreated, general.ID, msg))

	got := waitForMessages(t, receiver, general.ID, 1)
	assert.Equal(t, msg.ID, got[0].ID)
	assert.Equal(t, "hello room", got[0].Content)

	// The sender's own echo must not duplicate the confirmed entry.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, sender.Cache().Len(general.ID))
}

func TestEditAndDeleteOverlay(t *testing.T) {
	srv := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ownerID, ownerToken := srv.user("owner@example.com")
	memberID, memberToken := srv.user("member@example.com")

	server, general, err := srv.store.CreateServer(ctx, "Team", ownerID)
	require.NoError(t, err)
	require.NoError(t, srv.store.UpsertMember(ctx, server.ID, memberID, model.RoleMember))

	sender := srv.connect(ctx, ownerToken)
	receiver := srv.connect(ctx, memberToken)
	require.NoError(t, sender.JoinChannel(general.ID))
	require.NoError(t, receiver.JoinChannel(general.ID))
	time.Sleep(100 * time.Millisecond)

	msg, err := srv.store.CreateMessage(ctx, general.ID, ownerID, "original")
	require.NoError(t, err)
	require.NoError(t, sender.AnnounceMessage(realtime.EventCreated, general.ID, msg))
	waitForMessages(t, receiver, general.ID, 1)

	edited, err := srv.store.UpdateMessageContent(ctx, msg.ID, "edited")
	require.NoError(t, err)
	require.NoError(t, sender.AnnounceMessage(realtime.EventUpdated, general.ID, edited))

	require.Eventually(t, func() bool {
		msgs := receiver.Messages(general.ID)
		return len(msgs) == 1 && msgs[0].Content == "edited" && msgs[0].IsEdited
	}, 3*time.Second, 10*time.Millisecond)

	tombstone, err := srv.store.TombstoneMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.NoError(t, sender.AnnounceMessage(realtime.EventDeleted, general.ID, tombstone))

	require.Eventually(t, func() bool {
		msgs := receiver.Messages(general.ID)
		return len(msgs) == 1 && msgs[0].Deleted() && msgs[0].Content == model.DeletedContent
	}, 3*time.Second, 10*time.Millisecond)
}

func TestNonMemberEventsAreDropped(t *testing.T) {
	srv := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ownerID, ownerToken := srv.user("owner@example.com")
	_, strangerToken := srv.user("stranger@example.com")

	_, general, err := srv.store.CreateServer(ctx, "Team", ownerID)
	require.NoError(t, err)

	owner := srv.connect(ctx, ownerToken)
	stranger := srv.connect(ctx, strangerToken)
	require.NoError(t, owner.JoinChannel(general.ID))
	// The stranger's join is silently refused server-side.
	require.NoError(t, stranger.JoinChannel(general.ID))
	time.Sleep(100 * time.Millisecond)

	msg, err := srv.store.CreateMessage(ctx, general.ID, ownerID, "members only")
	require.NoError(t, err)
	require.NoError(t, owner.AnnounceMessage(realtime.EventCreated, general.ID, msg))

	waitForMessages(t, owner, general.ID, 1)
	assert.Equal(t, 0, stranger.Cache().Len(general.ID), "non-member must receive nothing")
}

func TestModerationOverride(t *testing.T) {
	srv := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ownerID, ownerToken := srv.user("owner@example.com")
	authorID, authorToken := srv.user("author@example.com")
	peerID, peerToken := srv.user("peer@example.com")

	server, general, err := srv.store.CreateServer(ctx, "Team", ownerID)
	require.NoError(t, err)
	require.NoError(t, srv.store.UpsertMember(ctx, server.ID, authorID, model.RoleMember))
	require.NoError(t, srv.store.UpsertMember(ctx, server.ID, peerID, model.RoleMember))

	owner := srv.connect(ctx, ownerToken)
	author := srv.connect(ctx, authorToken)
	peer := srv.connect(ctx, peerToken)
	for _, c := range []*Client{owner, author, peer} {
		require.NoError(t, c.JoinChannel(general.ID))
	}
	time.Sleep(100 * time.Millisecond)

	msg, err := srv.store.CreateMessage(ctx, general.ID, authorID, "hi")
	require.NoError(t, err)
	require.NoError(t, author.AnnounceMessage(realtime.EventCreated, general.ID, msg))
	waitForMessages(t, owner, general.ID, 1)
	waitForMessages(t, peer, general.ID, 1)

	// A plain member announcing a delete of someone else's message is dropped:
	// the peer's later create still arrives, the fake tombstone never does.
	fakeTombstone := msg
	fakeTombstone.Content = model.DeletedContent
	now := time.Now().UTC()
	fakeTombstone.DeletedAt = &now
	require.NoError(t, peer.AnnounceMessage(realtime.EventDeleted, general.ID, fakeTombstone))

	marker, err := srv.store.CreateMessage(ctx, general.ID, peerID, "marker")
	require.NoError(t, err)
	require.NoError(t, peer.AnnounceMessage(realtime.EventCreated, general.ID, marker))
	waitForMessages(t, owner, general.ID, 2)
	assert.False(t, owner.Messages(general.ID)[0].Deleted(), "member's moderation attempt must not propagate")

	// The owner's delete of the member's message is an accepted override.
	tombstone, err := srv.store.TombstoneMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.NoError(t, owner.AnnounceMessage(realtime.EventDeleted, general.ID, tombstone))

	require.Eventually(t, func() bool {
		msgs := author.Messages(general.ID)
		return len(msgs) == 2 && msgs[0].Deleted()
	}, 3*time.Second, 10*time.Millisecond)
}

func TestDirectMessageFlow(t *testing.T) {
	srv := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	aliceID, aliceToken := srv.user("alice@example.com")
	bobID, bobToken := srv.user("bob@example.com")

	conv, err := srv.store.UpsertConversation(ctx, aliceID, bobID)
	require.NoError(t, err)

	alice := srv.connect(ctx, aliceToken)
	bob := srv.connect(ctx, bobToken)
	require.NoError(t, alice.JoinDM(conv.ID))
	require.NoError(t, bob.JoinDM(conv.ID))
	time.Sleep(100 * time.Millisecond)

	msg, err := srv.store.CreateDMMessage(ctx, conv.ID, aliceID, "psst")
	require.NoError(t, err)
	require.NoError(t, alice.AnnounceDMMessage(realtime.EventCreated, conv.ID, msg))

	got := waitForMessages(t, bob, conv.ID, 1)
	assert.Equal(t, "psst", got[0].Content)
}

func TestOptimisticRollback(t *testing.T) {
	srv := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ownerID, ownerToken := srv.user("owner@example.com")
	_, general, err := srv.store.CreateServer(ctx, "Team", ownerID)
	require.NoError(t, err)

	c := srv.connect(ctx, ownerToken)

	c.Optimistic(general.ID, model.Message{
		ID:        "provisional-1",
		AuthorID:  ownerID,
		Content:   "might fail",
		CreatedAt: time.Now().UTC(),
	})
	require.Equal(t, 1, c.Cache().Len(general.ID))

	c.Rollback(general.ID, "provisional-1")
	assert.Equal(t, 0, c.Cache().Len(general.ID))
}

func TestDialRejectsBadToken(t *testing.T) {
	srv := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := Dial(ctx, srv.url, "not-a-valid-token")
	assert.Error(t, err)
}
