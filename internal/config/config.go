package config

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	DiscordBotToken  string   `env:"DISCORD_BOT_TOKEN"`
	DiscordChannelId string   `env:"DISCORD_CHANNEL_ID"`
	AllowedUsers     []string `env:"ALLOWED_USERS" envSeparator:","`
	AllowedUsersFile string   `env:"ALLOWED_USERS_FILE"`

	LedgerFile       string `env:"LEDGER_FILE" envDefault:"ledger.csv"`
	JournalDB        string `env:"JOURNAL_DB" envDefault:"journal.db"`
	TerminationToken string `env:"TERMINATION_TOKEN" envDefault:"/end"`

	LLMProvider  string        `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey string        `env:"OPENAI_API_KEY"`
	OpenAIModel  string        `env:"OPENAI_MODEL" envDefault:"gpt-4o"`
	GeminiAPIKey string        `env:"GEMINI_API_KEY"`
	GeminiModel  string        `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	PersonaFile  string        `env:"PERSONA_FILE" envDefault:"personality.txt"`
	LLMTimeout   time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`

	AMQPURL        string `env:"AMQP_URL"`
	AMQPExchange   string `env:"AMQP_EXCHANGE" envDefault:"ledgerbot"`
	AMQPRoutingKey string `env:"AMQP_ROUTING_KEY" envDefault:"ledger.events"`

	HealthAddr string `env:"HEALTH_ADDR" envDefault:":8080"`
}

// Load reads the process environment. Callers load any .env file first.
// IDs from AllowedUsersFile are merged into AllowedUsers.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.AllowedUsers = normalizeIDs(cfg.AllowedUsers)

	if cfg.AllowedUsersFile != "" {
		ids, err := readLines(cfg.AllowedUsersFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read allowed users file: %w", err)
		}
		for _, id := range ids {
			if !slices.Contains(cfg.AllowedUsers, id) {
				cfg.AllowedUsers = append(cfg.AllowedUsers, id)
			}
		}
	}
	return &cfg, nil
}

// Validate checks the settings every entry point needs.
func (c *Config) Validate() error {
	var problems []string

	switch c.LLMProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			problems = append(problems, "OPENAI_API_KEY is not set")
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			problems = append(problems, "GEMINI_API_KEY is not set")
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid LLM provider '%s': must be one of [%s %s]", c.LLMProvider, ProviderOpenAI, ProviderGemini))
	}

	if c.LLMTimeout < 0 {
		problems = append(problems, fmt.Sprintf("invalid LLM timeout %s: must not be negative", c.LLMTimeout))
	}
	if strings.TrimSpace(c.TerminationToken) == "" {
		problems = append(problems, "termination token cannot be empty")
	}
	if c.LedgerFile == "" {
		problems = append(problems, "ledger file path cannot be empty")
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL: %v", err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQPExchange == "" {
			problems = append(problems, "AMQP exchange cannot be empty when AMQP_URL is set")
		}
	}

	if len(problems) > 0 {
		return errors.New("configuration validation failed:\n  - " + strings.Join(problems, "\n  - "))
	}
	return nil
}

// ValidateDiscord checks the settings only the Discord bot needs.
func (c *Config) ValidateDiscord() error {
	if c.DiscordBotToken == "" {
		return fmt.Errorf("Bot token is not set")
	}
	if c.DiscordChannelId == "" {
		return fmt.Errorf("Channel ID is not set")
	}
	if len(c.AllowedUsers) == 0 {
		return fmt.Errorf("Allowed users are not set: add IDs to ALLOWED_USERS or ALLOWED_USERS_FILE")
	}
	return nil
}

// readLines returns the trimmed non-empty lines of path, skipping # comments.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, sc.Err()
}

func normalizeIDs(ids []string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
