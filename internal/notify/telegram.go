package notify

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/AlexBil-rar/tg-bot-EMKA/internal/models"
)

// TelegramSender is the part of the bot API the sink uses.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink sends notifications to the client's Telegram chat, rate
// limited so reminder bursts stay under the Bot API ceiling.
type TelegramSink struct {
	bot     TelegramSender
	limiter *rate.Limiter
	logger  *zerolog.Logger
}

func NewTelegramSink(bot TelegramSender, logger *zerolog.Logger) *TelegramSink {
	return &TelegramSink{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(20), 30),
		logger:  logger,
	}
}

func (s *TelegramSink) Deliver(ctx context.Context, kind Kind, p Payload) error {
	if p.UserID == 0 {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(p.UserID, s.text(kind, p))
	if kind == KindReminder24h || kind == KindReminder2h {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("❌ Отменить запись", "cancel_"+p.BookingID),
			),
		)
	}

	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send to %d: %w", p.UserID, err)
	}
	return nil
}

func (s *TelegramSink) text(kind Kind, p Payload) string {
	date := displayDate(p.Date)
	switch kind {
	case KindReminder24h:
		return fmt.Sprintf("📅 Привет, %s!\nНапоминаем, что вы записаны завтра — %s в %s.", p.Name, date, p.Time)
	case KindReminder2h:
		return fmt.Sprintf("⏰ Привет, %s!\nЧерез 2 часа у вас запись в %s.", p.Name, p.Time)
	case KindBookingCancelled:
		return fmt.Sprintf("✅ Ваша запись в %s на %s %s отменена.", p.Branch, date, p.Time)
	default:
		return fmt.Sprintf("✅ Вы записаны!\n🏢 Магазин: %s\n📅 Дата: %s\n⏰ Время: %s", p.Branch, date, p.Time)
	}
}

func displayDate(date string) string {
	d, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return date
	}
	return d.Format("02-01-2006")
}
