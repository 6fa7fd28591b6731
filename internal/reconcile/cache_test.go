package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concordhq/concord/internal/model"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func message(id string, offset time.Duration) model.Message {
	return model.Message{
		ID:        id,
		AuthorID:  "alice",
		Content:   "content of " + id,
		CreatedAt: base.Add(offset),
	}
}

func ids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestOwnSendConvergesToSingleEntry(t *testing.T) {
	// The author's send touches the cache three times: optimistic insert,
	// HTTP confirmation, then the realtime echo. One entry must remain.
	c := NewCache()
	m := message("m1", 0)

	c.ApplyOptimistic("room", m)
	confirmed := m
	confirmed.Content = "confirmed content"
	c.ApplyServerConfirmed("room", confirmed)
	c.ApplyCreated("room", confirmed)

	msgs := c.Messages("room")
	require.Len(t, msgs, 1)
	assert.Equal(t, "confirmed content", msgs[0].Content)
}

func TestServerConfirmedInsertsWhenNoOptimisticEntry(t *testing.T) {
	c := NewCache()
	c.ApplyServerConfirmed("room", message("m1", 0))
	assert.Equal(t, 1, c.Len("room"))
}

func TestCreatedIsIdempotent(t *testing.T) {
	c := NewCache()
	m := message("m1", 0)
	c.ApplyCreated("room", m)
	c.ApplyCreated("room", m)
	assert.Equal(t, 1, c.Len("room"))
}

func TestOrderingByCreationTimeWithIDTiebreak(t *testing.T) {
	c := NewCache()
	// Arrival order deliberately scrambled.
	c.ApplyCreated("room", message("m3", 2*time.Second))
	c.ApplyCreated("room", message("m1", 0))
	c.ApplyCreated("room", message("m2", time.Second))
	// Same timestamp as m2: id decides.
	c.ApplyCreated("room", message("m2a", time.Second))

	assert.Equal(t, []string{"m1", "m2", "m2a", "m3"}, ids(c.Messages("room")))
}

func TestOverlayReplacesInPlace(t *testing.T) {
	c := NewCache()
	c.ApplyCreated("room", message("m1", 0))
	c.ApplyCreated("room", message("m2", time.Second))

	edited := message("m1", 0)
	edited.Content = "edited"
	edited.IsEdited = true
	c.ApplyOverlay("room", edited)

	msgs := c.Messages("room")
	assert.Equal(t, []string{"m1", "m2"}, ids(msgs), "overlay must not move the entry")
	assert.Equal(t, "edited", msgs[0].Content)
	assert.True(t, msgs[0].IsEdited)
}

func TestOverlayIgnoresUnknownID(t *testing.T) {
	c := NewCache()
	c.ApplyCreated("room", message("m1", 0))
	c.ApplyOverlay("room", message("never-seen", time.Second))
	assert.Equal(t, []string{"m1"}, ids(c.Messages("room")))
}

func TestDeleteOverlayKeepsTombstoneInPosition(t *testing.T) {
	c := NewCache()
	c.ApplyCreated("room", message("m1", 0))
	c.ApplyCreated("room", message("m2", time.Second))

	now := base.Add(time.Minute)
	tombstone := message("m1", 0)
	tombstone.Content = model.DeletedContent
	tombstone.DeletedAt = &now
	c.ApplyOverlay("room", tombstone)

	msgs := c.Messages("room")
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.True(t, msgs[0].Deleted())
	assert.Equal(t, model.DeletedContent, msgs[0].Content)
}

func TestOverlayLastWriteWinsByArrival(t *testing.T) {
	c := NewCache()
	c.ApplyCreated("room", message("m1", 0))

	first := message("m1", 0)
	first.Content = "first edit"
	second := message("m1", 0)
	second.Content = "second edit"

	c.ApplyOverlay("room", first)
	c.ApplyOverlay("room", second)

	assert.Equal(t, "second edit", c.Messages("room")[0].Content)
}

func TestRollbackRemovesOptimisticEntry(t *testing.T) {
	c := NewCache()
	c.ApplyCreated("room", message("m1", 0))
	c.ApplyOptimistic("room", message("provisional", time.Second))

	c.Rollback("room", "provisional")

	assert.Equal(t, []string{"m1"}, ids(c.Messages("room")))

	// Unknown ids and rooms are no-ops.
	c.Rollback("room", "provisional")
	c.Rollback("other-room", "m1")
	assert.Equal(t, 1, c.Len("room"))
}

func TestRoomsAreIndependent(t *testing.T) {
	c := NewCache()
	c.ApplyCreated("general", message("m1", 0))
	c.ApplyCreated("random", message("m2", 0))

	assert.Equal(t, []string{"m1"}, ids(c.Messages("general")))
	assert.Equal(t, []string{"m2"}, ids(c.Messages("random")))
	assert.Nil(t, c.Messages("never-viewed"))
}
