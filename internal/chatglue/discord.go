package chatglue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// discordCustomIDSeparator packs a row/column coordinate into a button's
// CustomID so DiscordTransport can hand back plain callback_data strings
// on the ChatTransport surface without leaking Discord's component model.
const discordCustomIDSeparator = "\x1f"

// DiscordTransport adapts a discordgo.Session to ChatTransport. Discord
// has no message-level "reply markup" concept like Telegram's inline
// keyboards; buttons are rendered as message components instead.
type DiscordTransport struct {
	session *discordgo.Session
}

func NewDiscordTransport(session *discordgo.Session) *DiscordTransport {
	return &DiscordTransport{session: session}
}

func (d *DiscordTransport) SendMessage(ctx context.Context, chatID, text string, mode ParseMode, markup ReplyMarkup) (MessageHandle, error) {
	send := &discordgo.MessageSend{Content: text}
	if len(markup) > 0 {
		send.Components = toMessageComponents(markup)
	}

	msg, err := d.session.ChannelMessageSendComplex(chatID, send, discordgo.WithContext(ctx))
	if err != nil {
		return MessageHandle{}, fmt.Errorf("discord send message: %w", err)
	}
	return MessageHandle{ChatID: chatID, MessageID: msg.ID}, nil
}

func (d *DiscordTransport) EditMessage(ctx context.Context, handle MessageHandle, text string, mode ParseMode) error {
	_, err := d.session.ChannelMessageEdit(handle.ChatID, handle.MessageID, text, discordgo.WithContext(ctx))
	if err != nil && isDiscordNotModified(err) {
		return nil
	}
	return err
}

func (d *DiscordTransport) DeleteMessage(ctx context.Context, handle MessageHandle) error {
	return d.session.ChannelMessageDelete(handle.ChatID, handle.MessageID, discordgo.WithContext(ctx))
}

func (d *DiscordTransport) SendDocument(ctx context.Context, chatID string, data []byte, filename, caption string) error {
	_, err := d.session.ChannelMessageSendComplex(chatID, &discordgo.MessageSend{
		Content: caption,
		Files: []*discordgo.File{
			{Name: filename, Reader: bytes.NewReader(data)},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord send document: %w", err)
	}
	return nil
}

// toMessageComponents renders a button grid as one ActionsRow per row,
// packing each button's {row}{sep}{col} coordinate into CustomID so the
// gateway event handler can recover which cell was pressed.
func toMessageComponents(markup ReplyMarkup) []discordgo.MessageComponent {
	rows := make([]discordgo.MessageComponent, 0, len(markup))
	for r, row := range markup {
		buttons := make([]discordgo.MessageComponent, 0, len(row))
		for c, b := range row {
			buttons = append(buttons, discordgo.Button{
				Label:    b.Label,
				Style:    discordgo.SecondaryButton,
				CustomID: strconv.Itoa(r) + discordCustomIDSeparator + strconv.Itoa(c) + discordCustomIDSeparator + b.CallbackData,
			})
		}
		rows = append(rows, discordgo.ActionsRow{Components: buttons})
	}
	return rows
}

// CallbackDataFromCustomID extracts the original callback_data packed by
// toMessageComponents out of a Discord interaction's CustomID.
func CallbackDataFromCustomID(customID string) string {
	parts := strings.SplitN(customID, discordCustomIDSeparator, 3)
	if len(parts) != 3 {
		return customID
	}
	return parts[2]
}

func isDiscordNotModified(err error) bool {
	var rerr *discordgo.RESTError
	if errors.As(err, &rerr) && rerr.Message != nil {
		return strings.Contains(strings.ToLower(rerr.Message.Message), "no changes")
	}
	return false
}
