// Package api provides handlers for external APIs and interfaces
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/abelzeko/riego-bot/internal/entities"
	"github.com/abelzeko/riego-bot/internal/integration"
	"github.com/abelzeko/riego-bot/internal/repository"
	"github.com/abelzeko/riego-bot/internal/usecases"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const helpText = "Comandos disponibles:\n" +
	"/plantas - Lista tus plantas y el próximo riego\n" +
	"/agregar [nombre] [litros] [chica|mediana|grande] [interior|exterior] [flora] [auto] - Agrega una planta\n" +
	"/estado [nombre] - Estado de riego de una planta\n" +
	"/regar [nombre] [ml] - Registra un riego\n" +
	"/historial [nombre] - Últimos riegos de una planta\n" +
	"/borrar [nombre] - Elimina una planta\n" +
	"/ubicacion [ciudad] - Configura tu ubicación para el clima\n" +
	"/clima [°C] [% humedad] - Clima de interior\n" +
	"/hora [HH:MM] - Hora de los recordatorios\n" +
	"/recalcular - Recalcula tus plantas de exterior con el clima de hoy\n" +
	"/vincular - Conecta Google Calendar\n" +
	"/calendario - Estado de la conexión con Google Calendar\n" +
	"/desvincular - Desconecta Google Calendar\n" +
	"/help - Muestra esta ayuda"

// TelegramBot handles interactions with the Telegram API
type TelegramBot struct {
	bot      *tgbotapi.BotAPI
	plants   *usecases.PlantUseCase
	accounts *usecases.AccountUseCase
	timeout  time.Duration
}

// NewTelegramBot creates a new Telegram bot handler
func NewTelegramBot(botToken string, plants *usecases.PlantUseCase, accounts *usecases.AccountUseCase, timeout time.Duration) (*TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &TelegramBot{
		bot:      bot,
		plants:   plants,
		accounts: accounts,
		timeout:  timeout,
	}, nil
}

// Start begins listening for and handling Telegram messages until ctx is done
func (t *TelegramBot) Start(ctx context.Context) {
	log.Printf("Authorized on Telegram account %s", t.bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := t.bot.GetUpdatesChan(u)
	log.Println("Bot is now listening for messages...")

	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			log.Println("Bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}

			log.Printf("Received message from %s (ID: %d): %s",
				update.Message.From.UserName,
				update.Message.From.ID,
				update.Message.Text)

			t.handleMessage(ctx, update)
		}
	}
}

// NotifyOwner sends text to the owner's chat
func (t *TelegramBot) NotifyOwner(ctx context.Context, ownerID int64, text string) error {
	owner, err := t.accounts.GetOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	chatID := owner.ChatID
	if chatID == 0 {
		chatID = ownerID
	}
	_, err = t.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// handleMessage processes a Telegram message update
func (t *TelegramBot) handleMessage(ctx context.Context, update tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	msg := tgbotapi.NewMessage(update.Message.Chat.ID, t.respond(ctx, update.Message))

	log.Printf("Sending response to user %s", update.Message.From.UserName)
	if _, err := t.bot.Send(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

// respond builds the reply to a message
func (t *TelegramBot) respond(ctx context.Context, message *tgbotapi.Message) string {
	if _, err := t.accounts.RegisterOwner(ctx, message.From.ID, message.From.UserName, message.Chat.ID); err != nil {
		log.Printf("Error registering owner %d: %v", message.From.ID, err)
		return "Error interno. Probá de nuevo más tarde."
	}

	if message.IsCommand() {
		return t.handleCommand(ctx, message)
	}
	return t.handleNonCommand(ctx, message)
}

// handleCommand processes commands like /start, /help, etc.
func (t *TelegramBot) handleCommand(ctx context.Context, message *tgbotapi.Message) string {
	ownerID := message.From.ID
	args := strings.TrimSpace(message.CommandArguments())
	log.Printf("Handling /%s command with args '%s' for user %s", message.Command(), args, message.From.UserName)

	switch message.Command() {
	case "start":
		return "¡Bienvenido a Riego Bot! Agregá tu primera planta con /agregar o usá /help para ver los comandos."
	case "help", "ayuda":
		return helpText
	case "plantas", "plants":
		return t.handlePlants(ctx, ownerID)
	case "agregar", "add":
		return t.handleAdd(ctx, ownerID, args)
	case "estado", "status":
		return t.withPlant(ctx, ownerID, args, func(p *entities.Plant) string {
			status, err := t.plants.GetPlantStatus(ctx, ownerID, p.ID)
			if err != nil {
				return errorText(err)
			}
			return usecases.FormatPlantStatus(*status)
		})
	case "regar", "water":
		return t.handleWater(ctx, ownerID, args)
	case "historial", "history":
		return t.withPlant(ctx, ownerID, args, func(p *entities.Plant) string {
			history, err := t.plants.GetHistory(ctx, ownerID, p.ID, 10)
			if err != nil {
				return errorText(err)
			}
			return formatHistory(history)
		})
	case "borrar", "delete":
		return t.withPlant(ctx, ownerID, args, func(p *entities.Plant) string {
			if err := t.plants.DeletePlant(ctx, ownerID, p.ID); err != nil {
				return errorText(err)
			}
			return fmt.Sprintf("🗑️ %s eliminada.", p.Name)
		})
	case "ubicacion", "location":
		return t.handleLocation(ctx, ownerID, args)
	case "clima", "indoor":
		return t.handleIndoorClimate(ctx, ownerID, args)
	case "hora", "time":
		return t.handleReminderTime(ctx, ownerID, args)
	case "recalcular", "recalc":
		return t.handleRecalculate(ctx, ownerID)
	case "vincular", "link":
		url, err := t.accounts.StartCalendarLink(ctx, ownerID)
		if err != nil {
			return errorText(err)
		}
		return "Abrí este enlace para conectar Google Calendar (vence en 10 minutos):\n" + url
	case "calendario", "calendar":
		status, err := t.accounts.CalendarStatus(ctx, ownerID)
		if err != nil {
			return errorText(err)
		}
		if !status.Linked {
			return "📅 Google Calendar no está conectado. Usá /vincular."
		}
		return fmt.Sprintf("📅 Conectado al calendario %s. %d de %d planta(s) con recordatorio.",
			status.CalendarID, status.SyncedPlants, status.TotalPlants)
	case "desvincular", "unlink":
		report, err := t.accounts.DisconnectCalendar(ctx, ownerID)
		if err != nil {
			return errorText(err)
		}
		text := "📅 Google Calendar desconectado."
		if report.HasWarnings() {
			text += fmt.Sprintf("\n⚠️ %d recordatorio(s) no se pudieron borrar del calendario.", report.Counts().Failed)
		}
		return text
	}

	log.Printf("Received unknown command /%s from user %s", message.Command(), message.From.UserName)
	return "Comando desconocido. Usá /help para ver los comandos."
}

func (t *TelegramBot) handlePlants(ctx context.Context, ownerID int64) string {
	statuses, err := t.plants.ListPlants(ctx, ownerID)
	if err != nil {
		log.Printf("Error listing plants: %v", err)
		return errorText(err)
	}
	if len(statuses) == 0 {
		return "Todavía no tenés plantas. Agregá una con /agregar."
	}

	var b strings.Builder
	b.WriteString("Tus plantas:\n")
	for _, s := range statuses {
		fmt.Fprintf(&b, "\n• %s: %s, %d ml (%s)", s.Plant.Name, s.Plan.NextWatering.Format("02/01"),
			s.Plan.Computation.RecommendedML, s.Plan.Computation.StatusText())
	}
	b.WriteString("\n\nUsá /estado [nombre] para ver el detalle.")
	return b.String()
}

func (t *TelegramBot) handleAdd(ctx context.Context, ownerID int64, args string) string {
	plant, err := parsePlantArgs(args)
	if err != nil {
		return errorText(err) + "\nEjemplo: /agregar Gorilla 10 mediana exterior"
	}
	plant.OwnerID = ownerID
	if err := t.plants.CreatePlant(ctx, plant); err != nil {
		return errorText(err)
	}
	return fmt.Sprintf("🌱 %s agregada. Te aviso cuando toque regarla.", plant.Name)
}

func (t *TelegramBot) handleWater(ctx context.Context, ownerID int64, args string) string {
	name, amount := splitTrailingNumber(args)
	return t.withPlant(ctx, ownerID, name, func(p *entities.Plant) string {
		rec := &entities.WateringRecord{PlantID: p.ID, AmountML: int(amount)}
		if err := t.plants.RecordWatering(ctx, ownerID, rec); err != nil {
			return errorText(err)
		}
		return fmt.Sprintf("💧 Riego de %s registrado.", p.Name)
	})
}

func (t *TelegramBot) handleLocation(ctx context.Context, ownerID int64, args string) string {
	if args == "" {
		return "Indicá una ciudad. Ejemplo: /ubicacion Córdoba, Argentina"
	}
	loc, err := t.accounts.SetLocation(ctx, ownerID, args)
	if err != nil {
		return errorText(err)
	}
	return fmt.Sprintf("📍 Ubicación guardada: %s (%.4f, %.4f). Recalculo tus plantas de exterior.", loc.Name, loc.Latitude, loc.Longitude)
}

func (t *TelegramBot) handleIndoorClimate(ctx context.Context, ownerID int64, args string) string {
	fields := strings.Fields(args)
	if len(fields) == 0 || len(fields) > 2 {
		return "Uso: /clima [°C] [% humedad]. Ejemplo: /clima 26 55"
	}
	values := make([]*float64, 2)
	for i, f := range fields {
		v, err := parseDecimal(f)
		if err != nil {
			return fmt.Sprintf("Valor inválido: %s", f)
		}
		values[i] = &v
	}
	if err := t.accounts.SetIndoorClimate(ctx, ownerID, values[0], values[1]); err != nil {
		return errorText(err)
	}
	return "🌡️ Clima de interior guardado. Recalculo tus plantas de interior."
}

func (t *TelegramBot) handleReminderTime(ctx context.Context, ownerID int64, args string) string {
	parsed, err := time.Parse("15:04", args)
	if err != nil {
		return "Uso: /hora HH:MM. Ejemplo: /hora 08:30"
	}
	if err := t.accounts.SetReminderTime(ctx, ownerID, parsed.Hour(), parsed.Minute()); err != nil {
		return errorText(err)
	}
	return fmt.Sprintf("⏰ Los recordatorios se crearán a las %s.", parsed.Format("15:04"))
}

func (t *TelegramBot) handleRecalculate(ctx context.Context, ownerID int64) string {
	if _, err := t.accounts.Recalculate(ctx, ownerID, false); err != nil {
		return errorText(err)
	}
	return "🔄 Recalculando tus plantas de exterior. Te aviso cuando termine."
}

// withPlant resolves a plant name and runs fn with it
func (t *TelegramBot) withPlant(ctx context.Context, ownerID int64, name string, fn func(p *entities.Plant) string) string {
	if name == "" {
		return "Indicá el nombre de la planta."
	}
	plant, err := t.plants.FindPlantByName(ctx, ownerID, name)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Sprintf("No encontré la planta '%s'. Usá /plantas para ver tus plantas.", name)
	}
	if err != nil {
		return errorText(err)
	}
	return fn(plant)
}

// handleNonCommand processes regular messages
func (t *TelegramBot) handleNonCommand(ctx context.Context, message *tgbotapi.Message) string {
	log.Printf("Received non-command message from user %s: %s", message.From.UserName, message.Text)

	reply, err := t.plants.HandleNaturalLanguageMessage(ctx, message.From.ID, message.Text)
	if err != nil {
		log.Printf("Error handling message: %v", err)
		return errorText(err)
	}
	return reply
}

// errorText maps use case errors to messages for people
func errorText(err error) string {
	var verr *entities.ValidationError
	switch {
	case errors.As(err, &verr):
		return "Dato inválido: " + verr.Error()
	case errors.Is(err, repository.ErrNotFound):
		return "No encontré lo que buscabas."
	case errors.Is(err, usecases.ErrNoLocation):
		return "Primero configurá tu ubicación con /ubicacion."
	case errors.Is(err, integration.ErrGeocodeNotFound):
		return "No encontré esa ubicación. Probá con 'Ciudad, País'."
	case errors.Is(err, usecases.ErrQueueFull):
		return "Estoy ocupado, probá de nuevo en un momento."
	}
	log.Printf("Unexpected error: %v", err)
	return "Error interno. Probá de nuevo más tarde."
}

// parsePlantArgs reads "name liters [size] [mode] [flora] [auto]"
func parsePlantArgs(args string) (*entities.Plant, error) {
	fields := strings.Fields(args)
	idx := -1
	for i, f := range fields {
		if _, err := parseDecimal(f); err == nil {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return nil, &entities.ValidationError{Field: "plant", Reason: "se necesita nombre y litros de la maceta"}
	}

	liters, _ := parseDecimal(fields[idx])
	p := &entities.Plant{
		Name:      strings.Join(fields[:idx], " "),
		PotLiters: liters,
		Size:      entities.SizeMedium,
		Mode:      entities.ModeIndoor,
		Kind:      entities.KindPhoto,
	}
	for _, opt := range fields[idx+1:] {
		switch strings.ToLower(opt) {
		case "flora", "floración", "floracion", "flowering":
			p.Flowering = true
			continue
		case "auto", "automática", "automatica":
			p.Kind = entities.KindAuto
			continue
		}
		if size, err := entities.ParseSizeCategory(opt); err == nil {
			p.Size = size
			continue
		}
		mode, err := entities.ParseCultivationMode(opt)
		if err != nil {
			return nil, &entities.ValidationError{Field: "plant", Reason: fmt.Sprintf("opción desconocida %q", opt)}
		}
		p.Mode = mode
	}
	return p, nil
}

// splitTrailingNumber separates "name 500" into "name" and 500
func splitTrailingNumber(args string) (string, float64) {
	fields := strings.Fields(args)
	if len(fields) > 1 {
		last := strings.TrimSuffix(strings.ToLower(fields[len(fields)-1]), "ml")
		if v, err := parseDecimal(last); err == nil {
			return strings.Join(fields[:len(fields)-1], " "), v
		}
	}
	return strings.Join(fields, " "), 0
}

// parseDecimal accepts a decimal comma
func parseDecimal(s string) (float64, error) {
	return strconv.ParseFloat(strings.Replace(strings.TrimSpace(s), ",", ".", 1), 64)
}

func formatHistory(h *usecases.PlantHistory) string {
	if len(h.Records) == 0 {
		return fmt.Sprintf("%s no tiene riegos registrados.", h.Plant.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📒 Riegos de %s:\n", h.Plant.Name)
	for _, r := range h.Records {
		fmt.Fprintf(&b, "\n• %s", r.Date.Format("02/01/2006"))
		if r.AmountML > 0 {
			fmt.Fprintf(&b, " - %d ml", r.AmountML)
		}
		if r.PH != nil {
			fmt.Fprintf(&b, " - pH %.1f", *r.PH)
		}
		if r.EC != nil {
			fmt.Fprintf(&b, " - EC %.2f", *r.EC)
		}
	}
	s := h.Stats
	fmt.Fprintf(&b, "\n\nTotal: %d riegos, %d ml (promedio %.0f ml)", s.Count, s.TotalML, s.AverageML)
	if s.AverageInterval > 0 {
		fmt.Fprintf(&b, ", cada %.1f días", s.AverageInterval)
	}
	return b.String()
}
