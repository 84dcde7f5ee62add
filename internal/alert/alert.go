// Package alert posts operator alerts to a Telegram chat.
package alert

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/hray3182/reminder-engine/internal/generator"
)

// Alerter is told about runs that did not complete cleanly.
type Alerter interface {
	RunFailed(ctx context.Context, summary generator.Summary, err error)
}

// Sender is the subset of *tgbotapi.BotAPI used to post messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Telegram struct {
	api    Sender
	chatID int64
	log    logrus.FieldLogger
}

func NewTelegram(api Sender, chatID int64, log logrus.FieldLogger) *Telegram {
	return &Telegram{api: api, chatID: chatID, log: log}
}

// Dial connects to the Bot API with token.
func Dial(token string, chatID int64, log logrus.FieldLogger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram API: %w", err)
	}
	return NewTelegram(api, chatID, log), nil
}

// RunFailed sends a short report. Delivery errors are logged, never returned.
func (t *Telegram) RunFailed(_ context.Context, summary generator.Summary, err error) {
	text, entities := Format(summary, err)
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.Entities = entities
	if _, sendErr := t.api.Send(msg); sendErr != nil {
		t.log.WithError(sendErr).Error("Failed to send operator alert")
	}
}

// Format renders a run report as text with Telegram entities.
func Format(summary generator.Summary, err error) (string, []tgbotapi.MessageEntity) {
	var m message
	m.bold(fmt.Sprintf("Reminder run %s", summary.Status))
	m.text(" at %s\n", summary.StartedAt.Format(time.RFC3339))
	if err != nil {
		m.text("Error: ")
		m.code(err.Error())
		m.text("\n")
	}
	m.text("Schedules: %d fetched, %d processed, %d skipped, %d errored\n",
		summary.SchedulesFetched, summary.SchedulesProcessed, summary.SchedulesSkipped, summary.Errors)
	m.text("Notifications: %d created, %d duplicate",
		summary.NotificationsCreated, summary.NotificationsSkippedDuplicate)

	const shown = 5
	for i, f := range summary.Failures {
		if i == shown {
			m.text("\n... and %d more", len(summary.Failures)-shown)
			break
		}
		m.text("\n- ")
		m.code(f.ScheduleID)
		m.text(": %s", f.Error)
	}
	return m.String(), m.entities
}

// ShouldAlert reports whether a run outcome deserves operator attention.
func ShouldAlert(summary generator.Summary, err error) bool {
	return err != nil || summary.Status == generator.StatusFailed || summary.Errors > 0
}

// Nop discards alerts.
type Nop struct{}

func (Nop) RunFailed(context.Context, generator.Summary, error) {}
