package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/concordhq/concord/internal/auth"
	"github.com/concordhq/concord/internal/logging"
	"github.com/concordhq/concord/internal/realtime"
)

// handleWebSocket upgrades an authenticated request into a realtime session.
// The origin check runs before the upgrade; the token middleware has already
// established the user identity.
func (a *API) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     a.origins.check,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		logging.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := realtime.NewClient(a.hub, conn, auth.UserID(r.Context()), r.RemoteAddr)
	a.hub.Register(client)
}
