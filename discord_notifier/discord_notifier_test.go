package discord_notifier

import (
	"context"
	"errors"
	"testing"

	"sd_db_storage/db_storage"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	channelID string
	content   string
	err       error
}

func (s *fakeSender) ChannelMessageSend(channelID string, content string) (*discordgo.Message, error) {
	if s.err != nil {
		return nil, s.err
	}

	s.channelID = channelID
	s.content = content

	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{ChannelID: "1"})
	assert.EqualError(t, err, "missing bot token")

	_, err = New(Config{BotToken: "token"})
	assert.EqualError(t, err, "missing channel ID")

	notifier, err := New(Config{BotToken: "token", ChannelID: "1"})
	require.NoError(t, err)
	assert.NotNil(t, notifier)
}

func TestBatchSaved(t *testing.T) {
	sender := &fakeSender{}
	notifier := &notifierImpl{sender: sender, channelID: "42"}

	err := notifier.BatchSaved(context.Background(), &db_storage.BatchSummary{
		Database:   "StableDiffusion",
		Collection: "Images",
		Mode:       "Txt2Img",
		Stored:     3,
	})
	require.NoError(t, err)

	assert.Equal(t, "42", sender.channelID)
	assert.Equal(t, "Saved 3 images from a Txt2Img batch to `StableDiffusion.Images`.", sender.content)
}

func TestBatchSavedReportsSkippedRecords(t *testing.T) {
	sender := &fakeSender{}
	notifier := &notifierImpl{sender: sender, channelID: "42"}

	err := notifier.BatchSaved(context.Background(), &db_storage.BatchSummary{
		Database:   "StableDiffusion",
		Collection: "Images",
		Stored:     1,
		Err:        errors.New("record 1: missing field \"Model\""),
	})
	require.NoError(t, err)

	assert.Equal(t, "Saved 1 image from a generation batch to `StableDiffusion.Images`.\n"+
		"The rest of the batch was skipped: record 1: missing field \"Model\"", sender.content)
}

func TestBatchSavedErrors(t *testing.T) {
	sendErr := errors.New("HTTP 403 Forbidden")
	notifier := &notifierImpl{sender: &fakeSender{err: sendErr}, channelID: "42"}

	err := notifier.BatchSaved(context.Background(), &db_storage.BatchSummary{Stored: 1})
	assert.ErrorIs(t, err, sendErr)

	err = notifier.BatchSaved(context.Background(), nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = notifier.BatchSaved(ctx, &db_storage.BatchSummary{Stored: 1})
	assert.ErrorIs(t, err, context.Canceled)
}
