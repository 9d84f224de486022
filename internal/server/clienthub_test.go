package server

import (
	"context"
	"testing"
)

func TestRegisterPollDeregister(t *testing.T) {
	hub := NewClientHub()

	client := hub.Register("http://site.local/blog/")
	if client.ID == "" {
		t.Fatalf("register must assign an id")
	}

	commands, ok := hub.Poll(client.ID)
	if !ok {
		t.Fatalf("registered client must be pollable")
	}
	if len(commands) != 0 {
		t.Fatalf("fresh client must have no commands, got %v", commands)
	}

	if !hub.Deregister(client.ID) {
		t.Fatalf("deregister of known client must succeed")
	}
	if hub.Deregister(client.ID) {
		t.Fatalf("second deregister must report unknown client")
	}
	if _, ok := hub.Poll(client.ID); ok {
		t.Fatalf("deregistered client must not be pollable")
	}
}

func TestNavigateEnqueuesCommand(t *testing.T) {
	hub := NewClientHub()
	client := hub.Register("http://site.local/blog/")

	if err := hub.Navigate(context.Background(), client.ID, "http://site.local/blog/"); err != nil {
		t.Fatalf("navigate error: %v", err)
	}

	commands, _ := hub.Poll(client.ID)
	if len(commands) != 1 {
		t.Fatalf("expected one command, got %d", len(commands))
	}
	if commands[0].Action != "navigate" || commands[0].URL != "http://site.local/blog/" {
		t.Fatalf("unexpected command: %+v", commands[0])
	}

	// 指令取走即消费。
	commands, _ = hub.Poll(client.ID)
	if len(commands) != 0 {
		t.Fatalf("commands must be drained by poll, got %v", commands)
	}
}

func TestNavigateUnknownClient(t *testing.T) {
	hub := NewClientHub()
	if err := hub.Navigate(context.Background(), "ghost", "http://site.local/"); err == nil {
		t.Fatalf("navigate to unknown client must fail")
	}
}

func TestNavigateQueueFull(t *testing.T) {
	hub := NewClientHub()
	client := hub.Register("http://site.local/")

	for i := 0; i < commandBuffer; i++ {
		if err := hub.Navigate(context.Background(), client.ID, "http://site.local/"); err != nil {
			t.Fatalf("navigate %d error: %v", i, err)
		}
	}
	if err := hub.Navigate(context.Background(), client.ID, "http://site.local/"); err == nil {
		t.Fatalf("full queue must reject further commands")
	}
}

func TestClaimIsObservable(t *testing.T) {
	hub := NewClientHub()
	if hub.Claimed() {
		t.Fatalf("fresh hub must not be claimed")
	}
	if err := hub.Claim(context.Background()); err != nil {
		t.Fatalf("claim error: %v", err)
	}
	if !hub.Claimed() {
		t.Fatalf("claim must be observable")
	}
}
