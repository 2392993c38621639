package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// WebhookPath is the route Telegram posts updates to; the secret segment is
// the only thing authenticating the caller.
const WebhookPath = "/telegram/webhook/"

const pollTimeoutSeconds = 30

// Connect logs in with the bot token.
func Connect(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	return api, nil
}

// WebhookURL joins the public base URL with the secret route.
func WebhookURL(base, secret string) string {
	return strings.TrimRight(base, "/") + WebhookPath + secret
}

// RegisterWebhook points Telegram at this process.
func RegisterWebhook(api *tgbotapi.BotAPI, base, secret string) error {
	hook, err := tgbotapi.NewWebhook(WebhookURL(base, secret))
	if err != nil {
		return fmt.Errorf("webhook url: %w", err)
	}
	hook.AllowedUpdates = []string{"message", "callback_query"}
	if _, err := api.Request(hook); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}

// StartPolling removes any webhook and starts long polling. Call
// api.StopReceivingUpdates to close the returned channel.
func StartPolling(api *tgbotapi.BotAPI) (tgbotapi.UpdatesChannel, error) {
	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return nil, fmt.Errorf("delete webhook: %w", err)
	}
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeoutSeconds
	cfg.AllowedUpdates = []string{"message", "callback_query"}
	return api.GetUpdatesChan(cfg), nil
}
