package main

import (
	"crypto/tls"
	"log"
	"net"
	"net/http"

	"blackjack-lite/internal/auth"
	"blackjack-lite/internal/command"
	"blackjack-lite/internal/config"
	"blackjack-lite/internal/games"
	"blackjack-lite/internal/gateway"
	"blackjack-lite/internal/history"
	"blackjack-lite/internal/httpapi"
	"blackjack-lite/internal/session"
	"blackjack-lite/internal/sweeper"
)

func main() {
	cfg := config.Load()

	users, usersMode, err := auth.NewStoreFromEnv()
	if err != nil {
		log.Fatalf("[Server] failed to init user store: %v", err)
	}
	defer users.Close()
	tables, gamesMode, err := games.NewStoreFromEnv()
	if err != nil {
		log.Fatalf("[Server] failed to init game store: %v", err)
	}
	defer tables.Close()
	hist, histMode, err := history.NewServiceFromEnv()
	if err != nil {
		log.Fatalf("[Server] failed to init history service: %v", err)
	}
	defer hist.Close()

	sessions := session.NewRegistry(users, hist, session.Config{
		BetCeiling:       cfg.BetCeiling,
		TurnCeiling:      cfg.TurnCeiling,
		DealerPause:      cfg.DealerPause,
		ShuffleThreshold: cfg.ShuffleThreshold,
	})

	dispatcher := command.NewRegistry()
	command.RegisterAll(dispatcher, command.Deps{
		Users:    users,
		Games:    tables,
		Sessions: sessions,
		Version:  cfg.ServerVersion,
	})
	gw := gateway.New(dispatcher, cfg.ServerVersion)

	sw := sweeper.New(func() []sweeper.Target {
		conns := gw.Connections()
		targets := make([]sweeper.Target, len(conns))
		for i, c := range conns {
			targets[i] = c
		}
		return targets
	}, cfg.SweepInterval, nil)
	sw.Start()
	defer sw.Stop()

	ops := httpapi.New(tables, sessions, hist)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.HandleWebSocket)
	mux.Handle("/", ops.Router())
	go func() {
		log.Printf("[Server] HTTP API and websocket endpoint on %s", cfg.HTTPAddr)
		if err := http.ListenAndServe(cfg.HTTPAddr, mux); err != nil {
			log.Fatalf("[Server] HTTP listener failed: %v", err)
		}
	}()

	if cfg.TLSListenAddr != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			log.Fatalf("[Server] failed to load TLS keypair: %v", err)
		}
		tlsLn, err := tls.Listen("tcp", cfg.TLSListenAddr, &tls.Config{Certificates: []tls.Certificate{cert}})
		if err != nil {
			log.Fatalf("[Server] TLS listener failed: %v", err)
		}
		go func() {
			log.Printf("[Server] TLS game protocol on %s", cfg.TLSListenAddr)
			if err := gw.Serve(tlsLn); err != nil {
				log.Fatalf("[Server] TLS accept loop failed: %v", err)
			}
		}()
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		log.Fatalf("[Server] listener failed: %v", err)
	}
	log.Printf("[Server] user store: %s, game store: %s, history: %s", usersMode, gamesMode, histMode)
	log.Printf("[Server] game protocol on %s", cfg.ListenAddr)
	if err := gw.Serve(ln); err != nil {
		log.Fatalf("[Server] accept loop failed: %v", err)
	}
}
