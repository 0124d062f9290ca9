package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tos-network/coal-miner/internal/config"
)

func TestNotifyRoundResultDisabledIsNoop(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	n := NewNotifier(&config.WebhookConfig{Enabled: false, URL: server.URL, Kind: "discord"})
	n.NotifyRoundResult(RoundResult{Difficulty: 10})

	time.Sleep(50 * time.Millisecond)
	if called {
		t.Error("disabled notifier should not post")
	}
}

func TestNotifyRoundResultDiscord(t *testing.T) {
	received := make(chan discordMessage, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg discordMessage
		json.NewDecoder(r.Body).Decode(&msg)
		received <- msg
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := NewNotifier(&config.WebhookConfig{Enabled: true, URL: server.URL, Kind: "discord"})
	n.NotifyRoundResult(RoundResult{Difficulty: 24, EarnedCoal: 100, EarnedOre: 50})

	select {
	case msg := <-received:
		if len(msg.Embeds) != 1 {
			t.Fatalf("len(Embeds) = %d, want 1", len(msg.Embeds))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no request received")
	}
}

func TestNotifyRoundResultTelegram(t *testing.T) {
	received := make(chan telegramMessage, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg telegramMessage
		json.NewDecoder(r.Body).Decode(&msg)
		received <- msg
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewNotifier(&config.WebhookConfig{Enabled: true, URL: server.URL, Kind: "telegram"})
	n.NotifyRoundResult(RoundResult{Difficulty: 9})

	select {
	case msg := <-received:
		if msg.Text == "" {
			t.Error("expected non-empty text")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no request received")
	}
}

func TestNotifyRoundResultUnknownKind(t *testing.T) {
	n := NewNotifier(&config.WebhookConfig{Enabled: true, URL: "http://127.0.0.1:0", Kind: "carrier-pigeon"})
	// Should not panic.
	n.NotifyRoundResult(RoundResult{Difficulty: 1})
}

func TestFormatGrains(t *testing.T) {
	got := formatGrains(150000000000)
	want := "1.50000000000"
	if got != want {
		t.Errorf("formatGrains = %q, want %q", got, want)
	}
}
