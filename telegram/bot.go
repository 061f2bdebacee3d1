package telegram

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/wiresocks/wiresocks-ui/database/model"
	"github.com/wiresocks/wiresocks-ui/logger"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// AppServices defines the interface the bot needs to interact with the main app
type AppServices interface {
	RestartApp()
	ListInstances() []model.ProxyInstance
	AddProxy(selection string, port int) (model.ProxyInstance, error)
	RemoveProxy(id uint) error
	StartProxy(id uint) error
	StopProxy(id uint) error
	StopAllProxies()
	ReloadServers()
	RenderedConfig(id uint) (string, error)
	CountryOptions() []string
	StatusText() string
	GetLogs(count int, level string) []string
}

var (
	adminIDs   = make(map[int64]bool)
	services   AppServices
	currentBot *bot.Bot
)

// Start initializes and starts the Telegram bot
func Start(ctx context.Context, config *Config, appServices AppServices) {
	if !config.Enabled || config.BotToken == "" {
		log.Println("Telegram bot is disabled or token is not configured.")
		return
	}

	services = appServices

	for _, id := range config.AdminUserIDs {
		adminIDs[id] = true
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(handler),
	}

	b, err := bot.New(config.BotToken, opts...)
	if err != nil {
		log.Printf("Error creating Telegram bot: %v", err)
		return
	}
	currentBot = b

	logger.Info("Telegram bot started.")
	b.Start(ctx)
}

func Stop() {
	if currentBot != nil {
		currentBot.Close(context.Background())
		currentBot = nil
	}
}

func handler(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	userID := update.Message.From.ID
	if !isAdmin(userID) {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: update.Message.Chat.ID,
			Text:   "You are not authorized to use this bot.",
		})
		return
	}

	if strings.HasPrefix(update.Message.Text, "/") {
		handleCommand(ctx, b, update.Message)
	}
}

func isAdmin(userID int64) bool {
	_, ok := adminIDs[userID]
	return ok
}

func handleCommand(ctx context.Context, b *bot.Bot, message *models.Message) {
	command, args := parseCommand(message.Text)

	switch command {
	case "/start":
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: message.Chat.ID,
			Text:   "Welcome to WireSocks Admin Bot. Send /help to see available commands.",
		})
	case "/help":
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: message.Chat.ID,
			Text: "Available commands:\n" +
				"/status\n" +
				"/list\n" +
				"/countries\n" +
				"/add <country> <port>\n" +
				"/remove <id>\n" +
				"/start_proxy <id>\n" +
				"/stop_proxy <id>\n" +
				"/stopall\n" +
				"/reload\n" +
				"/config <id>\n" +
				"/logs [count] [level]\n" +
				"/restart",
		})
	case "/status":
		handleStatus(ctx, b, message)
	case "/list":
		handleList(ctx, b, message)
	case "/countries":
		handleCountries(ctx, b, message)
	case "/add":
		handleAdd(ctx, b, message, args)
	case "/remove":
		handleInstanceAction(ctx, b, message, args, "remove")
	case "/start_proxy":
		handleInstanceAction(ctx, b, message, args, "start")
	case "/stop_proxy":
		handleInstanceAction(ctx, b, message, args, "stop")
	case "/stopall":
		services.StopAllProxies()
		b.SendMessage(ctx, &bot.SendMessageParams{ChatID: message.Chat.ID, Text: "Stopping all proxies..."})
	case "/reload":
		services.ReloadServers()
		b.SendMessage(ctx, &bot.SendMessageParams{ChatID: message.Chat.ID, Text: "Reloading server list..."})
	case "/config":
		handleConfig(ctx, b, message, args)
	case "/logs":
		handleLogs(ctx, b, message, args)
	case "/restart":
		b.SendMessage(ctx, &bot.SendMessageParams{ChatID: message.Chat.ID, Text: "Restarting service..."})
		services.RestartApp()
	default:
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: message.Chat.ID,
			Text:   "Unknown command. Send /help to see available commands.",
		})
	}
}

func handleStatus(ctx context.Context, b *bot.Bot, message *models.Message) {
	instances := services.ListInstances()
	running := 0
	for _, inst := range instances {
		if inst.Status == model.Running {
			running++
		}
	}

	var response strings.Builder
	response.WriteString(services.StatusText() + "\n")
	response.WriteString(fmt.Sprintf("Proxies: %d total, %d running\n", len(instances), running))
	b.SendMessage(ctx, &bot.SendMessageParams{ChatID: message.Chat.ID, Text: response.String()})
}

func handleList(ctx context.Context, b *bot.Bot, message *models.Message) {
	instances := services.ListInstances()
	if len(instances) == 0 {
		b.SendMessage(ctx, &bot.SendMessageParams{ChatID: message.Chat.ID, Text: "No proxies configured."})
		return
	}

	var response strings.Builder
	response.WriteString("Configured proxies:\n")
	for _, inst := range instances {
		response.WriteString(fmt.Sprintf("- ID: %d, %s (%s), port %d, %s\n",
			inst.Id, inst.Country, inst.Location, inst.Port, inst.Status))
	}
	b.SendMessage(ctx, &bot.SendMessageParams{ChatID: message.Chat.ID, Text: response.String()})
}

func handleCountries(ctx context.Context, b *bot.Bot, message *models.Message) {
	options := services.CountryOptions()
	if len(options) == 0 {
		b.SendMessage(ctx, &bot.SendMessageParams{ChatID: message.Chat.ID, Text: "Server list not loaded yet. Try /reload first."})
		return
	}
	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: message.Chat.ID,
		Text:   "Available selections:\n" + strings.Join(options, "\n"),
	})
}

func handleAdd(ctx context.Context, b *bot.Bot, message *models.Message, args []string) {
	if len(args) < 2 {
		b.SendMessage(ctx, &bot.SendMessageParams{ChatID: message.Chat.ID, Text: "Usage: /add <country> <port>"})
		return
	}

	port, err := strconv.Atoi(args[len(args)-1])
	if err != nil {
		b.SendMessage(ctx, &bot.SendMessageParams{ChatID: message.Chat.ID, Text: "Invalid port number."})
		return
	}
	selection := strings.Join(args[:len(args)-1], " ")

	inst, err := services.AddProxy(selection, port)
	if err != nil {
		b.SendMessage(ctx, &bot.SendMessageParams{ChatID: message.Chat.ID, Text: fmt.Sprintf("Error adding proxy: %v", err)})
		return
	}
	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: message.Chat.ID,
		Text:   fmt.Sprintf("Proxy %d added: %s (%s) on port %d.", inst.Id, inst.Country, inst.Location, inst.Port),
	})
}

func handleInstanceAction(ctx context.Context, b *bot.Bot, message *models.Message, args []string, action string) {
	if len(args) != 1 {
		b.SendMessage(ctx, &bot.SendMessageParams{ChatID: message.Chat.ID, Text: fmt.Sprintf("Usage: /%s_proxy <id>", action)})
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		b.SendMessage(ctx, &bot.SendMessageParams{ChatID: message.Chat.ID, Text: "Invalid proxy id."})
		return
	}

	switch action {
	case "remove":
		err = services.RemoveProxy(uint(id))
	case "start":
		err = services.StartProxy(uint(id))
	case "stop":
		err = services.StopProxy(uint(id))
	}
	if err != nil {
		b.SendMessage(ctx, &bot.SendMessageParams{ChatID: message.Chat.ID, Text: fmt.Sprintf("Error: %v", err)})
		return
	}
	b.SendMessage(ctx, &bot.SendMessageParams{ChatID: message.Chat.ID, Text: fmt.Sprintf("Proxy %d: %s requested.", id, action)})
}

func handleConfig(ctx context.Context, b *bot.Bot, message *models.Message, args []string) {
	if len(args) != 1 {
		b.SendMessage(ctx, &bot.SendMessageParams{ChatID: message.Chat.ID, Text: "Usage: /config <id>"})
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		b.SendMessage(ctx, &bot.SendMessageParams{ChatID: message.Chat.ID, Text: "Invalid proxy id."})
		return
	}
	content, err := services.RenderedConfig(uint(id))
	if err != nil {
		b.SendMessage(ctx, &bot.SendMessageParams{ChatID: message.Chat.ID, Text: fmt.Sprintf("Error: %v", err)})
		return
	}
	b.SendMessage(ctx, &bot.SendMessageParams{ChatID: message.Chat.ID, Text: content})
}

func handleLogs(ctx context.Context, b *bot.Bot, message *models.Message, args []string) {
	count := 10
	level := "debug"

	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			count = n
		}
	}
	if len(args) > 1 {
		level = args[1]
	}

	logs := services.GetLogs(count, level)
	if len(logs) == 0 {
		b.SendMessage(ctx, &bot.SendMessageParams{ChatID: message.Chat.ID, Text: "No logs found."})
		return
	}

	b.SendMessage(ctx, &bot.SendMessageParams{ChatID: message.Chat.ID, Text: "Logs:\n" + strings.Join(logs, "\n")})
}

func parseCommand(text string) (string, []string) {
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
