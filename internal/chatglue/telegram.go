package chatglue

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// TelegramTransport adapts a telego.Bot to ChatTransport.
type TelegramTransport struct {
	bot *telego.Bot
}

// NewTelegramTransport wraps an already-constructed bot. Construction
// (token, proxy, polling) stays with whatever owns the bot's lifecycle;
// this adapter only speaks the ChatTransport contract.
func NewTelegramTransport(bot *telego.Bot) *TelegramTransport {
	return &TelegramTransport{bot: bot}
}

func (t *TelegramTransport) SendMessage(ctx context.Context, chatID, text string, mode ParseMode, markup ReplyMarkup) (MessageHandle, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return MessageHandle{}, err
	}

	params := tu.Message(tu.ID(id), text)
	params.ParseMode = telegramParseMode(mode)
	if len(markup) > 0 {
		params.ReplyMarkup = toInlineKeyboard(markup)
	}

	msg, err := t.bot.SendMessage(ctx, params)
	if err != nil {
		return MessageHandle{}, fmt.Errorf("telegram send message: %w", err)
	}
	return MessageHandle{ChatID: chatID, MessageID: strconv.Itoa(msg.MessageID)}, nil
}

func (t *TelegramTransport) EditMessage(ctx context.Context, handle MessageHandle, text string, mode ParseMode) error {
	id, err := parseChatID(handle.ChatID)
	if err != nil {
		return err
	}
	messageID, err := strconv.Atoi(handle.MessageID)
	if err != nil {
		return fmt.Errorf("telegram edit message: invalid message id %q: %w", handle.MessageID, err)
	}

	_, err = t.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    tu.ID(id),
		MessageID: messageID,
		Text:      text,
		ParseMode: telegramParseMode(mode),
	})
	if err != nil && isNotModified(err) {
		return nil
	}
	return err
}

func (t *TelegramTransport) DeleteMessage(ctx context.Context, handle MessageHandle) error {
	id, err := parseChatID(handle.ChatID)
	if err != nil {
		return err
	}
	messageID, err := strconv.Atoi(handle.MessageID)
	if err != nil {
		return fmt.Errorf("telegram delete message: invalid message id %q: %w", handle.MessageID, err)
	}

	return t.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(id),
		MessageID: messageID,
	})
}

func (t *TelegramTransport) SendDocument(ctx context.Context, chatID string, data []byte, filename, caption string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}

	_, err = t.bot.SendDocument(ctx, &telego.SendDocumentParams{
		ChatID:   tu.ID(id),
		Document: tu.FileFromBytes(data, filename),
		Caption:  caption,
	})
	if err != nil {
		return fmt.Errorf("telegram send document: %w", err)
	}
	return nil
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: invalid chat id %q: %w", chatID, err)
	}
	return id, nil
}

func telegramParseMode(mode ParseMode) string {
	switch mode {
	case ParseModeMarkdown:
		return telego.ModeMarkdownV2
	case ParseModeHTML:
		return telego.ModeHTML
	default:
		return ""
	}
}

func toInlineKeyboard(markup ReplyMarkup) *telego.InlineKeyboardMarkup {
	rows := make([][]telego.InlineKeyboardButton, 0, len(markup))
	for _, row := range markup {
		buttons := make([]telego.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tu.InlineKeyboardButton(b.Label).WithCallbackData(b.CallbackData))
		}
		rows = append(rows, tu.InlineKeyboardRow(buttons...))
	}
	return tu.InlineKeyboard(rows...)
}

// isNotModified detects Telegram's "message is not modified" API error,
// which §6 requires callers to swallow rather than surface.
func isNotModified(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}
