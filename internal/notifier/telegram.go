package notifier

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"binance-spot-bot-go/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Telegram delivers messages to one chat and resolves YES/NO confirmation
// prompts from inline-keyboard callbacks. Start must be called once before
// AskConfirmation is used.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *zap.SugaredLogger

	mu      sync.Mutex
	pending map[string]chan bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewTelegram(token string, chatID int64, logger *zap.SugaredLogger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	logger.Infow("telegram bot authorized", "username", api.Self.UserName)

	return &Telegram{
		api:     api,
		chatID:  chatID,
		logger:  logger,
		pending: make(map[string]chan bool),
		stopCh:  make(chan struct{}),
	}, nil
}

// Start consumes the update stream for callback answers.
func (t *Telegram) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.api.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-t.stopCh:
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.CallbackQuery == nil {
					continue
				}
				t.handleCallback(update.CallbackQuery)
			}
		}
	}()
}

func (t *Telegram) Stop() {
	t.stopOnce.Do(func() {
		t.api.StopReceivingUpdates()
		close(t.stopCh)
	})
}

func (t *Telegram) Notify(text string) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.api.Send(msg); err != nil {
		t.logger.Warnw("failed to send telegram message", "error", err)
	}
}

func (t *Telegram) NotifyEphemeral(text string, deleteAfter time.Duration) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	sent, err := t.api.Send(msg)
	if err != nil {
		t.logger.Warnw("failed to send ephemeral telegram message", "error", err)
		return
	}
	time.AfterFunc(deleteAfter, func() {
		del := tgbotapi.NewDeleteMessage(t.chatID, sent.MessageID)
		if _, err := t.api.Request(del); err != nil {
			t.logger.Warnw("failed to delete ephemeral telegram message",
				"message_id", sent.MessageID, "error", err)
		}
	})
}

func (t *Telegram) AskConfirmation(ctx context.Context, text string) (bool, error) {
	token := models.NewClientOrderID("confirm")
	answer := make(chan bool, 1)

	t.mu.Lock()
	t.pending[token] = answer
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, token)
		t.mu.Unlock()
	}()

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ YES", token+":yes"),
			tgbotapi.NewInlineKeyboardButtonData("❌ NO", token+":no"),
		),
	)
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ReplyMarkup = keyboard
	sent, err := t.api.Send(msg)
	if err != nil {
		return false, fmt.Errorf("failed to send confirmation prompt: %w", err)
	}

	select {
	case <-ctx.Done():
		t.clearKeyboard(sent.MessageID, text+"\n\n(expired)")
		return false, ctx.Err()
	case approved := <-answer:
		verdict := "declined"
		if approved {
			verdict = "confirmed"
		}
		t.clearKeyboard(sent.MessageID, text+"\n\n("+verdict+")")
		return approved, nil
	}
}

func (t *Telegram) handleCallback(q *tgbotapi.CallbackQuery) {
	if q.Message == nil || q.Message.Chat.ID != t.chatID {
		return
	}

	token, verdict, found := strings.Cut(q.Data, ":")
	if !found {
		return
	}

	t.mu.Lock()
	answer, ok := t.pending[token]
	t.mu.Unlock()

	if _, err := t.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		t.logger.Warnw("failed to answer callback query", "error", err)
	}
	if !ok {
		return
	}

	select {
	case answer <- verdict == "yes":
	default:
	}
}

// clearKeyboard replaces the prompt with its resolved text so stale buttons
// cannot be pressed twice.
func (t *Telegram) clearKeyboard(messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(t.chatID, messageID, text)
	if _, err := t.api.Send(edit); err != nil {
		t.logger.Warnw("failed to clear confirmation keyboard", "error", err)
	}
}
