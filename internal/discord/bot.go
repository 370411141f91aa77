package discord

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/NgigiN/ledgerbot/internal/chat"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Discord allows at most five buttons per action row, five rows and 2000
// characters of content per message.
const (
	buttonsPerRow = 5
	maxRows       = 5
	maxMessageLen = 2000
)

type Options struct {
	Token     string
	ChannelID string
	// AllowedUsers lists the Discord user IDs the bot answers. Empty means
	// everyone in the channel.
	AllowedUsers []string
	Logger       *zap.Logger
}

// Bot adapts a Discord gateway session to chat.Receiver and chat.Sender.
// Gateway callbacks only enqueue messages; the dispatcher drains them.
type Bot struct {
	session   *discordgo.Session
	channelID string
	allowed   map[string]bool
	inbox     chan chat.Message
	startTime time.Time
	logger    *zap.Logger
}

func NewBot(opts Options) (*Bot, error) {
	session, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	bot := newBot(session, opts)
	session.AddHandler(bot.handleMessage)
	session.AddHandler(bot.handleInteraction)
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	return bot, nil
}

func newBot(session *discordgo.Session, opts Options) *Bot {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]bool, len(opts.AllowedUsers))
	for _, id := range opts.AllowedUsers {
		if id = strings.TrimSpace(id); id != "" {
			allowed[id] = true
		}
	}
	if len(allowed) == 0 {
		logger.Warn("No allowed users configured, accepting every author in the channel")
	}
	return &Bot{
		session:   session,
		channelID: opts.ChannelID,
		allowed:   allowed,
		inbox:     make(chan chat.Message, 64),
		startTime: time.Now(),
		logger:    logger.With(zap.String("component", "discord")),
	}
}

func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	return nil
}

func (b *Bot) Stop() error {
	return b.session.Close()
}

func (b *Bot) Receive(ctx context.Context) (chat.Message, error) {
	select {
	case <-ctx.Done():
		return chat.Message{}, ctx.Err()
	case msg := <-b.inbox:
		return msg, nil
	}
}

// Send delivers text as one or more messages, split to fit the content limit.
func (b *Bot) Send(_ context.Context, chatID, text string) error {
	for _, chunk := range splitMessage(text, maxMessageLen) {
		if _, err := b.session.ChannelMessageSend(chatID, chunk); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
	}
	return nil
}

// SendWithOptions attaches one button per option to the last chunk. A click
// comes back as an inbound message whose text is the option.
func (b *Bot) SendWithOptions(ctx context.Context, chatID, text string, options []string) error {
	if len(options) == 0 {
		return b.Send(ctx, chatID, text)
	}
	chunks := splitMessage(text, maxMessageLen)
	last := len(chunks) - 1
	for _, chunk := range chunks[:last] {
		if _, err := b.session.ChannelMessageSend(chatID, chunk); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
	}
	_, err := b.session.ChannelMessageSendComplex(chatID, &discordgo.MessageSend{
		Content:    chunks[last],
		Components: buttonRows(options),
	})
	if err != nil {
		return fmt.Errorf("failed to send message with options: %w", err)
	}
	return nil
}

// splitMessage cuts text into pieces of at most limit characters, breaking
// at the last newline that fits when there is one. The newline itself is
// dropped. Always returns at least one piece.
func splitMessage(text string, limit int) []string {
	var chunks []string
	for utf8.RuneCountInString(text) > limit {
		cut := runeOffset(text, limit)
		if i := strings.LastIndexByte(text[:cut], '\n'); i > 0 {
			chunks = append(chunks, text[:i])
			text = text[i+1:]
			continue
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	return append(chunks, text)
}

// runeOffset returns the byte offset just past the first n runes of s.
func runeOffset(s string, n int) int {
	count := 0
	for i := range s {
		if count == n {
			return i
		}
		count++
	}
	return len(s)
}

func buttonRows(options []string) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	for start := 0; start < len(options) && len(rows) < maxRows; start += buttonsPerRow {
		end := min(start+buttonsPerRow, len(options))
		buttons := make([]discordgo.MessageComponent, 0, end-start)
		for _, opt := range options[start:end] {
			buttons = append(buttons, discordgo.Button{
				Label:    opt,
				Style:    discordgo.SecondaryButton,
				CustomID: opt,
			})
		}
		rows = append(rows, discordgo.ActionsRow{Components: buttons})
	}
	return rows
}

func (b *Bot) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || (s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID) {
		return //bot's messages
	}
	if !b.accept(m.ChannelID, m.Author.ID) {
		return
	}
	if strings.TrimSpace(m.Content) == "" {
		return
	}
	b.enqueue(chat.Message{ChatID: m.ChannelID, AuthorID: m.Author.ID, Text: m.Content})
}

func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	userID := interactionUser(i)
	if !b.accept(i.ChannelID, userID) {
		return
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
	if err != nil {
		b.logger.Warn("Failed to acknowledge button", zap.Error(err))
	}
	b.enqueue(chat.Message{ChatID: i.ChannelID, AuthorID: userID, Text: i.MessageComponentData().CustomID})
}

func interactionUser(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// accept applies the channel restriction and the user allow-list.
func (b *Bot) accept(channelID, userID string) bool {
	if b.channelID != "" && channelID != b.channelID {
		return false
	}
	if len(b.allowed) > 0 && !b.allowed[userID] {
		b.logger.Info("Blocked message from unauthorized user", zap.String("user", userID))
		return false
	}
	return true
}

func (b *Bot) enqueue(msg chat.Message) {
	select {
	case b.inbox <- msg:
	default:
		b.logger.Warn("Inbox full, dropping message", zap.String("chat", msg.ChatID))
	}
}

var (
	_ chat.Receiver = (*Bot)(nil)
	_ chat.Sender   = (*Bot)(nil)
)
