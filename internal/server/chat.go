package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"pharmasure/internal/app"
	"pharmasure/pkg/chat"
	"pharmasure/pkg/domain"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Sessions are authorized by token, not by cookie, so any origin may connect.
	CheckOrigin: func(*http.Request) bool { return true },
}

type chatState struct {
	Active   domain.Channel                          `json:"active"`
	Partner  string                                  `json:"partner"`
	Typing   bool                                    `json:"typing"`
	Channels map[domain.Channel][]domain.ChatMessage `json:"channels"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	channels := []domain.Channel{domain.ChannelUpstream}
	if sess.User().Role == domain.RolePharmacist {
		channels = append(channels, domain.ChannelDownstream)
	}
	state := chatState{
		Active:   sess.Chat.Active(),
		Partner:  sess.Chat.Partner(),
		Typing:   sess.Chat.Typing(),
		Channels: make(map[domain.Channel][]domain.ChatMessage, len(channels)),
	}
	for _, ch := range channels {
		msgs, err := sess.Chat.Messages(ch)
		if err != nil {
			writeChatError(w, err)
			return
		}
		state.Channels[ch] = msgs
	}
	writeJSON(w, http.StatusOK, state)
}

// handleChatActive sets the active channel, or toggles it when none is given.
func (s *Server) handleChatActive(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Channel domain.Channel `json:"channel"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	var err error
	if req.Channel == "" {
		_, err = sess.Chat.Toggle()
	} else {
		err = sess.Chat.SetActive(req.Channel)
	}
	if err != nil {
		writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active":  sess.Chat.Active(),
		"partner": sess.Chat.Partner(),
	})
}

func (s *Server) handleChatMessages(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	ch, ok := domain.ParseChannel(r.PathValue("channel"))
	if !ok {
		writeChatError(w, chat.ErrUnknownChannel)
		return
	}
	switch r.Method {
	case http.MethodGet:
		msgs, err := sess.Chat.Messages(ch)
		if err != nil {
			writeChatError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
	case http.MethodPost:
		var req struct {
			Text string `json:"text"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		msg, err := sess.Chat.SendMessage(ch, req.Text)
		if err != nil {
			writeChatError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, msg)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleChatOrder(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Item     string `json:"item"`
		Quantity string `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	msg, err := sess.Chat.PlaceOrder(req.Item, req.Quantity)
	if err != nil {
		writeChatError(w, err)
		return
	}
	s.audit(r, "chat.order", "success", "email", sess.User().Email, "item", req.Item)
	writeJSON(w, http.StatusAccepted, msg)
}

// handleChatStream pushes chat events over a WebSocket until the client
// disconnects or the session ends.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	events, cancel := sess.Chat.Subscribe()
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case ev, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func writeChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrOrderFieldsRequired), errors.Is(err, chat.ErrUnknownChannel):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrOrderNotAllowed), errors.Is(err, chat.ErrChannelLocked):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, chat.ErrClosed):
		writeError(w, http.StatusGone, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
