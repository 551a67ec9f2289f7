// Package config handles Gen configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/gen/config.yaml, /etc/gen/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "gen", "config.yaml"))
	}

	paths = append(paths, "/etc/gen/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Gen configuration.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	LLM       LLMConfig       `yaml:"llm"`
	History   HistoryConfig   `yaml:"history"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Search    SearchConfig    `yaml:"search"`
	Media     MediaConfig     `yaml:"media"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	DataDir   string          `yaml:"data_dir"`
	Persona   PersonaConfig   `yaml:"persona"`
	Timezone  string          `yaml:"timezone"`
	LogLevel  string          `yaml:"log_level"`
}

// GatewayConfig defines the chat gateway connection.
type GatewayConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
	// BotUserID is the agent's own user ID on the chat service. When empty
	// it is taken from the gateway's ready event.
	BotUserID string `yaml:"bot_user_id"`
	// MessageLimit is the transport's maximum message length in characters.
	MessageLimit int `yaml:"message_limit"`
	// PlainText strips markdown from outgoing replies for transports
	// without styling support.
	PlainText bool `yaml:"plain_text"`
	// Channels maps channel ids to display names. Its key set is also
	// the universe of channels the history builder may widen into.
	Channels map[string]string `yaml:"channels"`
}

// LLMConfig defines the OpenAI-compatible completion endpoint.
type LLMConfig struct {
	URL             string  `yaml:"url"`
	APIKey          string  `yaml:"api_key"`
	Model           string  `yaml:"model"`
	Temperature     float64 `yaml:"temperature"`
	TimeoutSec      int     `yaml:"timeout_sec"`
	MaxContextTok   int     `yaml:"max_context_tokens"`
	MaxOutputTok    int     `yaml:"max_output_tokens"`
	MaxIterations   int     `yaml:"max_iterations"`
	SecondaryURL    string  `yaml:"secondary_url"`
	RerankModel     string  `yaml:"rerank_model"`
	VisionModel     string  `yaml:"vision_model"`
}

// HistoryConfig tunes the token-budgeted history builder.
type HistoryConfig struct {
	PrimaryLookbackHours       int     `yaml:"primary_lookback_hours"`
	PrimaryFetchLimit          int     `yaml:"primary_fetch_limit"`
	SupplementaryLookbackHours int     `yaml:"supplementary_lookback_hours"`
	SupplementaryFetchLimit    int     `yaml:"supplementary_fetch_limit"`
	LowTokenFraction           float64 `yaml:"low_token_fraction"`
	FreshnessThreshold         int     `yaml:"freshness_threshold"`
	MinimumBudget              int     `yaml:"minimum_budget"`
}

// KnowledgeConfig defines the knowledge-store service connection.
type KnowledgeConfig struct {
	URL string `yaml:"url"`
	// IdleResumeSec is how long the agent must sit idle before the
	// background knowledge worker is nudged back to work (0 disables).
	IdleResumeSec int `yaml:"idle_resume_sec"`
}

// SearchConfig defines the web search backend.
type SearchConfig struct {
	SearXNGURL string `yaml:"searxng_url"`
	MaxResults int    `yaml:"max_results"`
}

// MediaConfig defines the image generation backend.
type MediaConfig struct {
	URL       string `yaml:"url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	ImageSize string `yaml:"image_size"`
	ImageN    int    `yaml:"image_n"`
}

// MQTTConfig defines the optional presence publisher.
type MQTTConfig struct {
	Broker     string `yaml:"broker"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	DeviceName string `yaml:"device_name"`
}

// PersonaConfig locates the agent's profile and trait documents.
type PersonaConfig struct {
	ProfileFile string `yaml:"profile_file"`
	TraitsDir   string `yaml:"traits_dir"`
}

// Configured reports whether an MQTT broker is set.
func (c MQTTConfig) Configured() bool { return c.Broker != "" }

// Timeout returns the LLM call timeout as a duration.
func (c LLMConfig) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse unmarshals YAML config bytes after environment variable expansion.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a configuration with the stock tuning values.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			MessageLimit: 2000,
		},
		LLM: LLMConfig{
			URL:           "http://localhost:8080",
			Model:         "gpt-4",
			Temperature:   0.7,
			TimeoutSec:    120,
			MaxContextTok: 8192,
			MaxOutputTok:  2048,
			MaxIterations: 12,
		},
		History: HistoryConfig{
			PrimaryLookbackHours:       24,
			PrimaryFetchLimit:          150,
			SupplementaryLookbackHours: 6,
			SupplementaryFetchLimit:    50,
			LowTokenFraction:           0.6,
			FreshnessThreshold:         20,
			MinimumBudget:              500,
		},
		Search: SearchConfig{
			MaxResults: 10,
		},
		Media: MediaConfig{
			Model:     "stablediffusion",
			ImageSize: "768x768",
			ImageN:    2,
		},
		DataDir:  "data",
		Timezone: "UTC",
	}
}
