// Package bot runs the minimal Telegram update loop of the scheduler core:
// cancellation callbacks coming from reminder keyboards and the "my bookings"
// listing. The full conversational booking menu lives in its own service and
// calls the booking package directly.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/AlexBil-rar/tg-bot-EMKA/internal/booking"
	"github.com/AlexBil-rar/tg-bot-EMKA/internal/database"
	"github.com/AlexBil-rar/tg-bot-EMKA/internal/models"
)

const myBookingsCommand = "Мои записи"

type telegramClient interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	SelfUser() tgbotapi.User
}

type realTelegramClient struct {
	api *tgbotapi.BotAPI
}

func (c *realTelegramClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return c.api.Send(msg)
}

func (c *realTelegramClient) Request(msg tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return c.api.Request(msg)
}

func (c *realTelegramClient) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return c.api.GetUpdatesChan(cfg)
}

func (c *realTelegramClient) StopReceivingUpdates() {
	c.api.StopReceivingUpdates()
}

func (c *realTelegramClient) SelfUser() tgbotapi.User {
	return c.api.Self
}

type Bot struct {
	tg     telegramClient
	svc    *booking.Service
	logger *zerolog.Logger
}

func New(api *tgbotapi.BotAPI, svc *booking.Service, logger *zerolog.Logger) *Bot {
	return &Bot{tg: &realTelegramClient{api: api}, svc: svc, logger: logger}
}

// Start polls updates until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.tg.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tg.SelfUser().UserName).Msg("Bot update loop started")

	for {
		select {
		case <-ctx.Done():
			b.tg.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil && strings.HasPrefix(update.CallbackQuery.Data, "cancel_"):
		b.handleCancel(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.Text == myBookingsCommand:
		b.handleMyBookings(ctx, update.Message)
	}
}

func (b *Bot) handleCancel(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	bookingID := strings.TrimPrefix(cb.Data, "cancel_")
	userID := cb.From.ID

	var text string
	err := b.svc.Cancel(ctx, bookingID, userID)
	switch {
	case err == nil:
		text = "✅ Ваша запись успешно отменена."
	case errors.Is(err, database.ErrBookingNotFound):
		text = booking.UserMessage(err)
	default:
		b.logger.Error().Err(err).Str("booking", bookingID).Msg("Cancel failed")
		text = booking.UserMessage(err)
	}

	// Callbacks on messages older than 48 hours arrive without the message.
	if cb.Message != nil {
		edit := tgbotapi.NewEditMessageText(cb.Message.Chat.ID, cb.Message.MessageID, text)
		if _, err := b.tg.Send(edit); err != nil {
			b.logger.Error().Err(err).Msg("Failed to edit cancel message")
		}
	} else {
		b.reply(userID, text)
	}
	if _, err := b.tg.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.Error().Err(err).Msg("Failed to answer callback")
	}
}

func (b *Bot) handleMyBookings(ctx context.Context, msg *tgbotapi.Message) {
	bookings, err := b.svc.UserBookings(ctx, msg.From.ID)
	if err != nil {
		b.logger.Error().Err(err).Int64("user", msg.From.ID).Msg("List bookings failed")
		b.reply(msg.Chat.ID, booking.UserMessage(err))
		return
	}

	if len(bookings) == 0 {
		b.reply(msg.Chat.ID, "У вас пока нет активных записей 🙃")
		return
	}

	for _, bk := range bookings {
		text := fmt.Sprintf("🏢 Магазин: %s\n📅 Дата: %s\n⏰ Время: %s",
			bk.Branch, displayDate(bk.Date), bk.Time)

		out := tgbotapi.NewMessage(msg.Chat.ID, text)
		out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("❌ Отменить", "cancel_"+bk.ID),
			),
		)
		if _, err := b.tg.Send(out); err != nil {
			b.logger.Error().Err(err).Int64("user", msg.From.ID).Msg("Failed to send booking card")
		}
	}
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.tg.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Error().Err(err).Msg("Failed to send reply")
	}
}

func displayDate(date string) string {
	d, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return date
	}
	return d.Format("02-01-2006")
}
