package notify

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// channelSender is the part of a discord session used for announcements.
type channelSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts new proposals to a community channel.
type Discord struct {
	session   channelSender
	closer    func() error
	channelID string
}

// NewDiscord creates a REST-only bot session. No gateway connection is
// opened.
func NewDiscord(token, channelID string) (*Discord, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return &Discord{session: session, closer: session.Close, channelID: channelID}, nil
}

func (d *Discord) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer()
}

func (d *Discord) Announce(ctx context.Context, n Notice) error {
	return d.sendWithRetry(ctx, announcement(n))
}

func announcement(n Notice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🌳 **New community proposal #%d: %s**\n", n.ProposalID, n.ParkName)
	if n.Description != "" {
		b.WriteString(n.Description)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Voting closes %s.", n.Deadline)
	if n.ExplorerURL != "" {
		fmt.Fprintf(&b, "\n%s", n.ExplorerURL)
	}
	return b.String()
}

func (d *Discord) sendWithRetry(ctx context.Context, content string) error {
	const attemptTimeout = 12 * time.Second
	const maxAttempts = 2

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		_, err := d.session.ChannelMessageSend(d.channelID, content, discordgo.WithContext(sendCtx))
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTemporaryOrTimeout(err) {
			return err
		}
		time.Sleep(time.Duration(300+rand.Intn(500)) * time.Millisecond)
	}
	return lastErr
}

func isTemporaryOrTimeout(err error) bool {
	if ne, ok := err.(net.Error); ok {
		return ne.Timeout()
	}
	return false
}
