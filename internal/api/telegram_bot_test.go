package api

import (
	"context"
	"strings"
	"testing"

	"github.com/abelzeko/riego-bot/internal/entities"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestParsePlantArgs(t *testing.T) {
	p, err := parsePlantArgs("Gorilla Glue 12,5 grande exterior flora auto")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if p.Name != "Gorilla Glue" || p.PotLiters != 12.5 {
		t.Errorf("Unexpected name or pot: %q %.1f", p.Name, p.PotLiters)
	}
	if p.Size != entities.SizeLarge || p.Mode != entities.ModeOutdoor || !p.Flowering || p.Kind != entities.KindAuto {
		t.Errorf("Options not applied: %+v", p)
	}

	p, err = parsePlantArgs("Amnesia 7")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if p.Size != entities.SizeMedium || p.Mode != entities.ModeIndoor || p.Kind != entities.KindPhoto {
		t.Errorf("Expected defaults, got %+v", p)
	}

	for _, args := range []string{"", "12", "Amnesia", "Amnesia 7 violeta"} {
		if _, err := parsePlantArgs(args); err == nil {
			t.Errorf("Expected an error for %q", args)
		}
	}
}

func TestSplitTrailingNumber(t *testing.T) {
	tests := []struct {
		args   string
		name   string
		amount float64
	}{
		{"Gorilla 500", "Gorilla", 500},
		{"Gorilla Glue 750ml", "Gorilla Glue", 750},
		{"Gorilla", "Gorilla", 0},
		{"500", "500", 0},
	}
	for _, tt := range tests {
		name, amount := splitTrailingNumber(tt.args)
		if name != tt.name || amount != tt.amount {
			t.Errorf("splitTrailingNumber(%q) = %q, %v; want %q, %v", tt.args, name, amount, tt.name, tt.amount)
		}
	}
}

func command(text string) *tgbotapi.Message {
	cmdLen := len(text)
	if i := strings.Index(text, " "); i >= 0 {
		cmdLen = i
	}
	return &tgbotapi.Message{
		Text:     text,
		From:     &tgbotapi.User{ID: 7, UserName: "grower"},
		Chat:     &tgbotapi.Chat{ID: 7},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}
}

func TestRespondCommands(t *testing.T) {
	env := newTestEnv(t)
	bot := &TelegramBot{plants: env.plants, accounts: env.accounts}
	ctx := context.Background()

	if reply := bot.respond(ctx, command("/plantas")); !strings.Contains(reply, "Todavía no tenés plantas") {
		t.Errorf("Unexpected empty list reply: %q", reply)
	}

	if reply := bot.respond(ctx, command("/agregar Gorilla 10 exterior")); !strings.Contains(reply, "Gorilla agregada") {
		t.Fatalf("Unexpected add reply: %q", reply)
	}
	if reply := bot.respond(ctx, command("/agregar 10")); !strings.Contains(reply, "Dato inválido") {
		t.Errorf("Expected validation reply, got %q", reply)
	}

	if reply := bot.respond(ctx, command("/regar gorilla 1200")); !strings.Contains(reply, "Riego de Gorilla registrado") {
		t.Errorf("Unexpected water reply: %q", reply)
	}
	if reply := bot.respond(ctx, command("/historial Gorilla")); !strings.Contains(reply, "1200 ml") {
		t.Errorf("Unexpected history reply: %q", reply)
	}

	if reply := bot.respond(ctx, command("/recalcular")); !strings.Contains(reply, "/ubicacion") {
		t.Errorf("Expected a hint to set the location, got %q", reply)
	}
	if reply := bot.respond(ctx, command("/calendario")); !strings.Contains(reply, "no está conectado") {
		t.Errorf("Unexpected calendar reply: %q", reply)
	}
	if reply := bot.respond(ctx, command("/nada")); !strings.Contains(reply, "Comando desconocido") {
		t.Errorf("Unexpected reply for unknown command: %q", reply)
	}

	owner, err := env.accounts.GetOwner(ctx, 7)
	if err != nil {
		t.Fatalf("Owner was not registered: %v", err)
	}
	if owner.ChatID != 7 {
		t.Errorf("Expected chat 7, got %d", owner.ChatID)
	}
}
