package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"

	"github.com/Guizzs26/single_ballot_poll_system/internal/config"
	"github.com/Guizzs26/single_ballot_poll_system/internal/model"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Correct usage: go run ./cmd/pollwatch <poll-id>")
	}
	pollID := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalChan
		log.Println("Shutting 'pollwatch' down...")
		cancel()
	}()

	url := fmt.Sprintf("%s/ws/votes/%s", wsBase(cfg.BaseURL), pollID)
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "client exit")

	log.Printf("Listening for votes on poll '%s'...", pollID)
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Println("Connection closed")
				return
			}
			log.Printf("Read error: %v", err)
			return
		}
		var ev model.VoteEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			log.Printf("Unreadable update: %s", string(msg))
			continue
		}
		log.Printf("%s voted %q, now %d", ev.Voter, ev.Option, ev.Count)
	}
}

func wsBase(baseURL string) string {
	baseURL = strings.TrimRight(baseURL, "/")
	if rest, ok := strings.CutPrefix(baseURL, "https://"); ok {
		return "wss://" + rest
	}
	if rest, ok := strings.CutPrefix(baseURL, "http://"); ok {
		return "ws://" + rest
	}
	return baseURL
}
