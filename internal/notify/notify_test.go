package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  string
}

type recorder struct {
	mu   sync.Mutex
	sent []sentMail
	fail map[string]bool
}

func (r *recorder) send(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[to[0]] {
		return errors.New("mailbox unavailable")
	}
	r.sent = append(r.sent, sentMail{addr: addr, from: from, to: to, msg: string(msg)})
	return nil
}

func testNotice(to string) Notice {
	return Notice{
		Recipient:   to,
		ParkName:    "Rock Creek",
		ProposalID:  7,
		Deadline:    "October 25, 2025",
		Description: "Rock Creek: NDVI 0.6→0.5, PM2.5 +10%",
		ExplorerURL: "https://hashscan.io/testnet/transaction/tx",
	}
}

func TestEmailSend(t *testing.T) {
	rec := &recorder{}
	e := NewEmail(EmailConfig{Host: "smtp.example.org", Port: 587, From: "parkpulse@example.org"})
	e.sendMail = rec.send
	e.now = func() time.Time { return time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, e.Send(context.Background(), testNotice("a@example.org")))
	require.Len(t, rec.sent, 1)

	m := rec.sent[0]
	assert.Equal(t, "smtp.example.org:587", m.addr)
	assert.Equal(t, []string{"a@example.org"}, m.to)
	assert.Contains(t, m.msg, "Subject: New proposal: protect Rock Creek (#7)\r\n")
	assert.Contains(t, m.msg, "Content-Type: text/html")
	assert.Contains(t, m.msg, "October 25, 2025")
	assert.Contains(t, m.msg, "NDVI 0.6→0.5")
	assert.True(t, strings.Contains(m.msg, "\r\n\r\n<!DOCTYPE html>"))
}

func TestEmailEscapesHTML(t *testing.T) {
	rec := &recorder{}
	e := NewEmail(EmailConfig{Host: "localhost", Port: 25, From: "x@example.org"})
	e.sendMail = rec.send

	n := testNotice("a@example.org")
	n.ParkName = "<script>Park</script>"
	require.NoError(t, e.Send(context.Background(), n))
	_, body, ok := strings.Cut(rec.sent[0].msg, "\r\n\r\n")
	require.True(t, ok)
	assert.NotContains(t, body, "<script>Park")
	assert.Contains(t, body, "&lt;script&gt;Park")
}

func TestEmailErrors(t *testing.T) {
	rec := &recorder{fail: map[string]bool{"bad@example.org": true}}
	e := NewEmail(EmailConfig{Host: "localhost", Port: 25, From: "x@example.org"})
	e.sendMail = rec.send

	assert.Error(t, e.Send(context.Background(), testNotice("")))
	assert.Error(t, e.Send(context.Background(), testNotice("bad@example.org")))
	assert.NoError(t, e.Send(context.Background(), testNotice("good@example.org")))
}

func TestEmailRateLimit(t *testing.T) {
	rec := &recorder{}
	e := NewEmail(EmailConfig{Host: "localhost", Port: 25, From: "x@example.org", RatePerSecond: 0.001})
	e.sendMail = rec.send

	require.NoError(t, e.Send(context.Background(), testNotice("a@example.org")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, e.Send(ctx, testNotice("b@example.org")))
	assert.Len(t, rec.sent, 1)
}

type fakeChannel struct {
	channel string
	content string
	err     error
}

func (f *fakeChannel) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.channel = channelID
	f.content = content
	return &discordgo.Message{}, f.err
}

func TestDiscordAnnounce(t *testing.T) {
	ch := &fakeChannel{}
	d := &Discord{session: ch, channelID: "123"}

	require.NoError(t, d.Announce(context.Background(), testNotice("")))
	assert.Equal(t, "123", ch.channel)
	assert.Contains(t, ch.content, "#7: Rock Creek")
	assert.Contains(t, ch.content, "Voting closes October 25, 2025.")
	assert.Contains(t, ch.content, "https://hashscan.io/testnet/transaction/tx")

	ch.err = errors.New("missing permissions")
	assert.Error(t, d.Announce(context.Background(), testNotice("")))
	assert.NoError(t, d.Close())
}
