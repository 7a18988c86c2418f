package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rollcall/internal/config"
	"rollcall/internal/notify"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

// Worker drains parent-notify messages and delivers them to the
// notification gateway. Delivery is best effort; failures are logged and
// the message is dropped.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "rollcall:notify")
	}

	gateway := notify.New(cfg.NotifyGatewayURL, cfg.NotifySkip)
	if !cfg.NotifySkip {
		if err := gateway.Health(ctx); err != nil {
			log.Printf("WARNING: notify gateway not available: %v", err)
			log.Println("Worker will retry delivery as messages arrive")
		} else {
			log.Println("Notify gateway connected")
		}
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != "parent-notify" {
			continue
		}

		var n notify.Notification
		if err := json.Unmarshal(msg.Body, &n); err != nil {
			log.Printf("bad notification payload: %v", err)
			continue
		}

		if err := gateway.Send(ctx, n); err != nil {
			log.Printf("notify send failed for %s: %v", n.StudentID, err)
			continue
		}
		log.Printf("notified parent of %s (%s %s)", n.StudentID, n.Status, n.Timestamp.Format(time.Kitchen))
	}

	log.Println("worker stopped")
}
