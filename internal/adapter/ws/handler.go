package ws

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/confetex/tracker/internal/adapter/logger"
	"github.com/confetex/tracker/internal/config"
	"github.com/confetex/tracker/internal/domain"
	"github.com/confetex/tracker/internal/interfaces"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Cross-origin is handled by the fronting proxy.
		return true
	},
}

// Server owns the channel endpoints: it upgrades connections, speaks the
// register/ping protocol, and probes liveness so stale endpoints never
// accumulate in the dispatcher.
type Server struct {
	notifier interfaces.Notifier
	cfg      config.RealtimeConfig
	logger   logger.Logger
}

func NewServer(notifier interfaces.Notifier, cfg config.RealtimeConfig, lgr logger.Logger) *Server {
	return &Server{notifier: notifier, cfg: cfg, logger: lgr}
}

// Handle upgrades the request and runs the connection until it dies.
func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws_upgrade_failed", "Failed to upgrade websocket", "", nil, err)
		return
	}

	ep := NewEndpoint(uuid.New().String(), conn)
	s.logger.Info("ws_connected", "Channel endpoint connected", ep.ID(), nil)

	defer func() {
		s.notifier.Unregister(ep)
		ep.Close()
		s.logger.Info("ws_disconnected", "Channel endpoint closed", ep.ID(), nil)
	}()

	// An endpoint that answers neither protocol pongs nor sends anything
	// within the window is dead; the expired read deadline ends readLoop.
	pongWait := s.cfg.HeartbeatInterval() + s.cfg.HeartbeatTimeout()
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stop := make(chan struct{})
	defer close(stop)
	go s.pingLoop(ep, stop)

	s.readLoop(conn, ep)
}

func (s *Server) pingLoop(ep *Endpoint, stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval())
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := ep.ping(); err != nil {
				// readLoop will observe the dead connection and tear down.
				ep.Close()
				return
			}
		}
	}
}

func (s *Server) readLoop(conn *websocket.Conn, ep *Endpoint) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}

		ev, err := domain.DecodeEvent(frame)
		if err != nil {
			// Malformed frames are dropped; the connection stays up.
			s.logger.Error("ws_bad_frame", "Dropping malformed frame", ep.ID(), nil, err)
			continue
		}

		switch p := ev.Payload.(type) {
		case *domain.RegisterPayload:
			s.handleRegister(ep, p.Department)
		case *domain.PingPayload:
			s.reply(ep, domain.NewEvent(&domain.PongPayload{
				Timestamp:  p.Timestamp,
				ServerTime: time.Now().UnixMilli(),
			}))
		default:
			s.logger.Debug("ws_unexpected_type", "Ignoring unexpected client event", ep.ID(), map[string]interface{}{
				"type": string(ev.Type),
			})
		}
	}
}

func (s *Server) handleRegister(ep *Endpoint, dept domain.Department) {
	if err := s.notifier.Register(ep, dept); err != nil {
		s.logger.Error("ws_register_rejected", "Registration rejected", ep.ID(), map[string]interface{}{
			"department": string(dept),
		}, err)
		s.reply(ep, domain.NewEvent(&domain.RegisterErrorPayload{
			Department: dept,
			Reason:     err.Error(),
		}))
		return
	}

	s.reply(ep, domain.NewEvent(&domain.RegisterConfirmPayload{Department: dept}))
}

func (s *Server) reply(ep *Endpoint, ev domain.Event) {
	frame, err := ev.Encode()
	if err != nil {
		s.logger.Error("event_encode_failed", "Failed to encode reply", ep.ID(), map[string]interface{}{
			"type": string(ev.Type),
		}, err)
		return
	}
	if err := ep.Send(frame); err != nil {
		s.logger.Error("ws_reply_failed", "Failed to send reply", ep.ID(), map[string]interface{}{
			"type": string(ev.Type),
		}, err)
	}
}
