// Command demo wires the full stack against real MySQL and Redis backends
// and walks the core flow end to end: sign-up, mutual like, match, chat
// provisioning, messaging with read receipts, and the merged conversation
// view.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/emberapp/ember-core/internal/app"
	"github.com/emberapp/ember-core/internal/cache"
	"github.com/emberapp/ember-core/internal/config"
	"github.com/emberapp/ember-core/internal/db"
	"github.com/emberapp/ember-core/internal/engine"
	"github.com/emberapp/ember-core/internal/logger"
	"github.com/emberapp/ember-core/internal/pipeline"
	"github.com/emberapp/ember-core/internal/presence"
	"github.com/emberapp/ember-core/internal/registry"
	"github.com/emberapp/ember-core/internal/session"
	"github.com/emberapp/ember-core/internal/store"

	"github.com/google/uuid"
)

func main() {
	ctx := context.Background()
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		return
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(ctx); err != nil {
		log.Error("failed to connect to redis", "err", err)
		return
	}

	feed := store.NewFeed(redisCache)
	appCtx := app.New(database, redisCache, feed, log)

	auth := session.NewAuthenticator(appCtx, cfg.Session.TTL)
	eng := engine.New(appCtx)
	reg := registry.New(appCtx)
	pipe := pipeline.New(appCtx)

	// Two fresh users so the demo is re-runnable against a seeded DB.
	suffix := uuid.NewString()[:8]
	alice, err := auth.SignUp(ctx, db.Profile{
		FullName: "Alice Demo",
		Email:    fmt.Sprintf("alice-%s@example.com", suffix),
		Age:      28,
		Location: "London",
	}, "password")
	if err != nil {
		log.Error("sign-up failed", "err", err)
		return
	}
	bob, err := auth.SignUp(ctx, db.Profile{
		FullName: "Bob Demo",
		Email:    fmt.Sprintf("bob-%s@example.com", suffix),
		Age:      30,
		Location: "Brighton",
	}, "password")
	if err != nil {
		log.Error("sign-up failed", "err", err)
		return
	}

	// Alice likes Bob: no match yet.
	res, err := eng.SubmitLike(ctx, alice, bob.UserID)
	if err != nil {
		log.Error("like failed", "err", err)
		return
	}
	log.Info("alice liked bob", "matched", res.Matched)

	// Bob likes Alice back: reciprocal, match + chat provisioned.
	res, err = eng.SubmitLike(ctx, bob, alice.UserID)
	if err != nil {
		log.Error("like failed", "err", err)
		return
	}
	log.Info("bob liked alice", "matched", res.Matched, "chat", res.Chat.ID)

	// Alice opens the chat and says hello.
	conv, err := pipe.Open(ctx, alice, res.Chat.ID)
	if err != nil {
		log.Error("failed to open conversation", "err", err)
		return
	}
	defer conv.Close()

	msg, err := conv.Send(ctx, "Hi! 👋")
	if err != nil {
		log.Error("send failed", "err", err)
		return
	}
	log.Info("sent", "id", msg.ServerID, "status", msg.Status)

	// Bob's side: read receipt.
	bobConv, err := pipe.Open(ctx, bob, res.Chat.ID)
	if err != nil {
		log.Error("failed to open conversation", "err", err)
		return
	}
	defer bobConv.Close()
	if err := bobConv.MarkRead(ctx); err != nil {
		log.Error("mark read failed", "err", err)
		return
	}

	// Alice's merged conversation view.
	handle, err := reg.Open(ctx, alice.UserID)
	if err != nil {
		log.Error("failed to open registry", "err", err)
		return
	}
	defer handle.Close()

	for _, e := range handle.View(registry.FilterAll) {
		fmt.Printf("%-10s %-40s unread=%d last_active=%s\n",
			e.Kind, e.Preview, e.Unread,
			presence.DescribeLastActive(e.Other, time.Now()))
	}
}
