package discord_notifier

import (
	"context"
	"errors"
	"fmt"
	"log"

	"sd_db_storage/db_storage"

	"github.com/bwmarrin/discordgo"
)

// messageSender is the part of *discordgo.Session the notifier needs.
type messageSender interface {
	ChannelMessageSend(channelID string, content string) (*discordgo.Message, error)
}

type notifierImpl struct {
	botSession *discordgo.Session
	sender     messageSender
	channelID  string
}

type Config struct {
	BotToken  string
	ChannelID string
}

// New only prepares the REST session; no gateway connection is opened.
func New(cfg Config) (Notifier, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("missing bot token")
	}

	if cfg.ChannelID == "" {
		return nil, errors.New("missing channel ID")
	}

	botSession, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, err
	}

	return &notifierImpl{
		botSession: botSession,
		sender:     botSession,
		channelID:  cfg.ChannelID,
	}, nil
}

func (n *notifierImpl) BatchSaved(ctx context.Context, summary *db_storage.BatchSummary) error {
	if summary == nil {
		return errors.New("missing batch summary")
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := n.sender.ChannelMessageSend(n.channelID, batchMessageContent(summary))
	if err != nil {
		log.Printf("Error sending message to channel %s: %v", n.channelID, err)

		return err
	}

	return nil
}

func (n *notifierImpl) Close() error {
	return n.botSession.Close()
}

func batchMessageContent(summary *db_storage.BatchSummary) string {
	mode := summary.Mode
	if mode == "" {
		mode = "generation"
	}

	noun := "images"
	if summary.Stored == 1 {
		noun = "image"
	}

	content := fmt.Sprintf("Saved %d %s from a %s batch to `%s.%s`.",
		summary.Stored, noun, mode, summary.Database, summary.Collection)

	if summary.Err != nil {
		content += fmt.Sprintf("\nThe rest of the batch was skipped: %v", summary.Err)
	}

	return content
}
