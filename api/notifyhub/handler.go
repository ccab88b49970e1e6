package notifyhub

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the owner middleware already authenticated the request
	},
}

// HandleEventsWS upgrades the request to WebSocket and registers the
// connection under the caller's owner id.
func HandleEventsWS(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetString("owner")
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		hub.Register(conn, owner)
		defer hub.Unregister(conn)

		// Read loop to detect client close and keep connection alive
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}
}
