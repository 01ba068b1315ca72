package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/handlers"
	"github.com/kubilayture/notes-realtime/internal/config"
	"github.com/kubilayture/notes-realtime/internal/notify"
	"github.com/kubilayture/notes-realtime/internal/presence"
	"github.com/kubilayture/notes-realtime/internal/stats"
	"github.com/kubilayture/notes-realtime/internal/transport"
)

var (
	serverURL string
	collabURL string
	token     string
	debugAddr string
	threadId  string
)

// consoleBridge stands in for the UI layer's cache and router: effects
// are printed instead of re-rendering views.
type consoleBridge struct {
	log *log.Logger
}

func (b *consoleBridge) Invalidate(key string) {
	b.log.Printf("invalidate %q", key)
}

func (b *consoleBridge) Navigate(path string) {
	b.log.Printf("navigate %q", path)
}

func (b *consoleBridge) Toast(title, message string) {
	fmt.Printf("*** %s: %s\n", title, message)
}

func main() {
	flag.StringVar(&serverURL, "server-url", "ws://localhost:8000/ws", "realtime server websocket url")
	flag.StringVar(&collabURL, "collab-url", "", "collaboration server websocket url")
	flag.StringVar(&token, "token", "", "session token")
	flag.StringVar(&debugAddr, "debug-addr", "localhost:6060", "address for the debug/metrics endpoint")
	flag.StringVar(&threadId, "thread", "", "conversation to enter on startup")
	flag.Parse()

	logger := log.New(os.Stderr, "[notesync] ", log.LstdFlags)

	cfg, err := config.NewConfig(serverURL, collabURL, token, debugAddr)
	if err != nil {
		logger.Fatal("config:", err)
	}

	selfId, err := transport.UserIdFromToken(cfg.SessionToken)
	if err != nil {
		logger.Fatal("session token:", err)
	}

	mux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.Run()
	defer statsUpdater.Stop()

	if cfg.DebugAddr != "" {
		go func() {
			h := handlers.LoggingHandler(os.Stderr, mux)
			if err := http.ListenAndServe(cfg.DebugAddr, h); err != nil {
				logger.Println("debug server:", err)
			}
		}()
	}

	client := transport.NewClient(cfg.ServerURL, logger, statsUpdater)
	defer client.Close()

	client.OnStatus(func(s transport.Status) {
		logger.Println("connection:", s)
	})

	bridge := &consoleBridge{log: logger}

	router := notify.NewRouter(client, bridge, bridge, bridge, logger, statsUpdater)
	defer router.Close()

	session := presence.NewSession(client, selfId, bridge, logger, statsUpdater)
	defer session.Close()

	client.Connect(cfg.SessionToken)

	if threadId != "" {
		session.EnterConversation(threadId)
		defer session.ExitConversation(threadId)
	}

	// read stdin as keystrokes: a line is a sent message, everything
	// typed before newline drives the typing indicator
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if threadId == "" {
				continue
			}
			if line == "" {
				if ind := session.Indicator(threadId); ind != "" {
					fmt.Println(ind)
				}
				continue
			}
			session.Typing(threadId)
			if !session.SendMessage(threadId, line) {
				logger.Println("not connected, message dropped")
			}
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigs
	logger.Printf("received signal: %s\n", sig)
	logger.Println("shutdown complete")
}
