package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chapsmart/chappay/pkg/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The widget is embedded on merchant pages; origin checking is the
	// reverse proxy's concern.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 5 * time.Second
	wsEventBuffer  = 16
)

// SessionEvents streams state transitions of one session over a websocket.
// The current state is delivered first, then every transition until the
// session is terminal or the client goes away.
func (h *Handler) SessionEvents(c *gin.Context) {
	ctrl, ok := h.manager.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	eventCh := make(chan session.Event, wsEventBuffer)
	cancel := ctrl.Subscribe(func(ev session.Event) {
		select {
		case eventCh <- ev:
		default:
			// slow consumer; it can recover from the snapshot endpoint
		}
	})
	defer cancel()

	// Drain reads so close frames and errors are noticed.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-readerDone:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev := <-eventCh:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
			if ev.State.Terminal() {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(ev.State)),
					time.Now().Add(wsWriteTimeout))
				return
			}
		}
	}
}
