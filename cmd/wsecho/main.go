// Command wsecho is a minimal WebSocket echo server: it upgrades every
// request on its configured path, echoes back whatever text/binary
// message it receives, and answers pings and close frames the way
// package websocket already does internally. /healthz and /metrics sit
// alongside the upgrade route on the same listener, routed by wsmux.
package main

import (
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitalvas/wsforge/websocket"
	"github.com/vitalvas/wsforge/wsmux"
	"github.com/vitalvas/wsforge/wsnet"
)

func main() {
	cfg, err := loadConfig(os.Getenv("WSECHO_CONFIG"))
	if err != nil {
		zerolog.New(os.Stderr).With().Timestamp().Logger().Fatal().Err(err).Msg("loading config")
	}

	var logger zerolog.Logger
	if cfg.PrettyLog {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	server := &echoServer{cfg: cfg, log: logger, started: time.Now()}

	router := wsmux.NewRouter()
	router.Use(wsmux.RecoveryMiddleware(wsmux.RecoveryConfig{
		LogFunc: func(r *http.Request, recovered any) {
			logger.Error().Any("panic", recovered).Str("path", r.URL.Path).Msg("handler panicked")
		},
	}))
	router.Use(wsmux.ConnectionIDMiddleware)
	router.HandleFunc("/healthz", server.handleHealthz, http.MethodGet)
	router.HandleFunc("/metrics", server.handleMetrics, http.MethodGet)
	router.HandleFunc(cfg.Path, server.handleUpgrade, http.MethodGet)

	logger.Info().Str("addr", cfg.ListenAddr).Str("path", cfg.Path).Msg("wsecho listening")
	if err := http.ListenAndServe(cfg.ListenAddr, router); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

type echoServer struct {
	cfg     Config
	log     zerolog.Logger
	started time.Time

	connCount atomic.Int64
	msgCount  atomic.Int64
}

func (s *echoServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *echoServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(
		"wsecho_connections_total " + strconv.FormatInt(s.connCount.Load(), 10) + "\n" +
			"wsecho_messages_echoed_total " + strconv.FormatInt(s.msgCount.Load(), 10) + "\n" +
			"wsecho_uptime_seconds " + strconv.FormatInt(int64(time.Since(s.started).Seconds()), 10) + "\n",
	))
}

func (s *echoServer) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	connID := wsmux.ConnectionID(r)
	log := s.log.With().Str("connection_id", connID).Logger()

	opts := websocket.ServerOptions{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	wsCfg := websocket.NewConfig()
	if s.cfg.EnableCompression {
		wsCfg.Compression = websocket.Compression{Mode: websocket.CompressionDeflate}
		opts.Compression = wsCfg.Compression
	}

	conn, _, err := wsnet.AcceptHTTP(w, r, opts, wsCfg, acceptAny, wsnet.AcceptOptions{Blocking: true})
	if err != nil {
		log.Error().Err(err).Msg("handshake failed")
		return
	}
	if conn == nil {
		log.Warn().Msg("handshake rejected")
		return
	}
	s.connCount.Add(1)
	log.Info().Msg("connection established")
	s.serve(log, conn)
}

func acceptAny(*http.Request) (*websocket.ServerAccept, *http.Response) {
	return &websocket.ServerAccept{}, nil
}

// serve drives one connection to completion. AcceptOptions.Blocking above
// put conn's Stream in ordinary blocking mode, matching this
// goroutine-per-connection model -- one goroutine, one Conn, no polling.
func (s *echoServer) serve(log zerolog.Logger, conn *websocket.Conn) {
	defer func() {
		_ = conn.Close(websocket.CloseNormal, "")
	}()

	for {
		msg, err := conn.Read()
		if err != nil {
			if err != websocket.ErrConnectionClosed {
				log.Debug().Err(err).Msg("connection ended")
			}
			return
		}

		switch msg.Type {
		case websocket.TextMessage, websocket.BinaryMessage:
			s.msgCount.Add(1)
			if err := conn.Send(msg); err != nil {
				log.Warn().Err(err).Msg("echo send failed")
				return
			}
		case websocket.CloseMessage:
			return
		}
	}
}
