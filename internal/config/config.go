package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// Credential environment variables, one per model provider. Each provider
// settings block resolves its own key and fails validation when it is absent.
const (
	EnvLLMAPIKey = "OPENAI_API_KEY"
	EnvSTTAPIKey = "DEEPGRAM_API_KEY"
	EnvTTSAPIKey = "CARTESIA_API_KEY"

	EnvSignalingURL       = "LIVEKIT_URL"
	EnvSignalingAPIKey    = "LIVEKIT_API_KEY"
	EnvSignalingAPISecret = "LIVEKIT_API_SECRET"
)

const defaultTTSWarmupDelay = time.Second

// ToolServerConfig identifies one tool-server endpoint a use case connects to.
type ToolServerConfig struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// UseCaseConfig is one deployment profile: prompt, greeting and tool servers.
// Immutable after load.
type UseCaseConfig struct {
	Name        string             `yaml:"name" json:"name"`
	Greeting    string             `yaml:"greeting" json:"greeting"`
	PromptFile  string             `yaml:"prompt_file" json:"prompt_file"`
	ToolServers []ToolServerConfig `yaml:"tool_servers" json:"tool_servers"`
}

// LLMSettings configures the language-model client.
type LLMSettings struct {
	Type        string  `yaml:"type" json:"type"`
	Model       string  `yaml:"model" json:"model"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	BaseURL     string  `yaml:"base_url" json:"base_url,omitempty"`

	apiKey string
}

func (s LLMSettings) APIKey() string { return s.apiKey }

// STTSettings configures the speech-to-text client.
type STTSettings struct {
	Type     string `yaml:"type" json:"type"`
	Model    string `yaml:"model" json:"model"`
	Language string `yaml:"language" json:"language"`
	BaseURL  string `yaml:"base_url" json:"base_url,omitempty"`

	apiKey string
}

func (s STTSettings) APIKey() string { return s.apiKey }

// TTSSettings configures the speech-synthesis client.
type TTSSettings struct {
	Type     string `yaml:"type" json:"type"`
	Model    string `yaml:"model" json:"model"`
	Language string `yaml:"language" json:"language"`
	Voice    string `yaml:"voice" json:"voice"`
	BaseURL  string `yaml:"base_url" json:"base_url,omitempty"`

	apiKey string
}

func (s TTSSettings) APIKey() string { return s.apiKey }

// SignalingSettings holds call-signaling server connectivity. Optional for the
// worker; required by the token and room-admin API endpoints.
type SignalingSettings struct {
	URL       string
	APIKey    string
	APISecret string
}

// Unset reports whether signaling connectivity was not configured.
func (s SignalingSettings) Unset() bool {
	return s.URL == "" || s.APIKey == "" || s.APISecret == ""
}

// ApplicationSettings is the fully validated configuration aggregate.
type ApplicationSettings struct {
	UseCase  string
	UseCases map[string]UseCaseConfig

	LLM LLMSettings
	STT STTSettings
	TTS TTSSettings

	Signaling SignalingSettings

	// TTSWarmupDelay is the post-start settling interval before the synthesis
	// path is treated as ready. Empirical workaround for first-greeting
	// synthesis failures against a cold backend.
	TTSWarmupDelay time.Duration

	// DatabaseURL selects the postgres record-store backend when set.
	DatabaseURL string
	// DataDir is where CSV record files are written.
	DataDir string

	BindAddr         string
	MetricsNamespace string

	// ConfigDir is the directory the config document was loaded from, used
	// as the last prompt-file fallback location.
	ConfigDir string
}

type document struct {
	UseCase  string                   `yaml:"use_case"`
	UseCases map[string]UseCaseConfig `yaml:"use_cases"`

	LLM LLMSettings `yaml:"llm"`
	STT STTSettings `yaml:"stt"`
	TTS TTSSettings `yaml:"tts"`

	TTSWarmupDelay string `yaml:"tts_warmup_delay"`
	DataDir        string `yaml:"data_dir"`

	BindAddr         string `yaml:"bind_addr"`
	MetricsNamespace string `yaml:"metrics_namespace"`
}

// Load reads and validates the YAML configuration document at path.
func Load(path string, logger *slog.Logger) (*ApplicationSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	s, err := FromDocument(data, logger)
	if err != nil {
		return nil, err
	}
	s.ConfigDir = filepath.Dir(path)
	return s, nil
}

// FromDocument parses and validates a YAML configuration document.
// Validation order: base document, use-case section (synthesizing the default
// hospitality profile when absent), provider credentials, signaling env.
func FromDocument(data []byte, logger *slog.Logger) (*ApplicationSettings, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config document: %w", err)
	}

	s := &ApplicationSettings{
		UseCase:          strings.TrimSpace(doc.UseCase),
		UseCases:         doc.UseCases,
		LLM:              doc.LLM,
		STT:              doc.STT,
		TTS:              doc.TTS,
		DataDir:          doc.DataDir,
		BindAddr:         doc.BindAddr,
		MetricsNamespace: doc.MetricsNamespace,
		TTSWarmupDelay:   defaultTTSWarmupDelay,
	}
	if s.BindAddr == "" {
		s.BindAddr = ":8000"
	}
	if s.MetricsNamespace == "" {
		s.MetricsNamespace = "voicedesk"
	}
	if s.DataDir == "" {
		s.DataDir = "."
	}
	if doc.TTSWarmupDelay != "" {
		d, err := time.ParseDuration(doc.TTSWarmupDelay)
		if err != nil {
			return nil, fmt.Errorf("tts_warmup_delay parse error: %w", err)
		}
		if d < 0 {
			return nil, fmt.Errorf("tts_warmup_delay must not be negative")
		}
		s.TTSWarmupDelay = d
	}

	if len(s.UseCases) == 0 {
		logger.Warn("config has no use_cases section, synthesizing default hospitality use case")
		s.UseCases = map[string]UseCaseConfig{
			"hospitality": DefaultHospitalityUseCase(),
		}
	}
	if s.UseCase == "" {
		s.UseCase = "hospitality"
	}
	if _, ok := s.UseCases[s.UseCase]; !ok {
		return nil, fmt.Errorf("unknown use_case %q, valid use cases: %s",
			s.UseCase, strings.Join(useCaseIDs(s.UseCases), ", "))
	}

	if s.LLM.apiKey = strings.TrimSpace(os.Getenv(EnvLLMAPIKey)); s.LLM.apiKey == "" {
		return nil, fmt.Errorf("llm settings: %s is required", EnvLLMAPIKey)
	}
	if s.STT.apiKey = strings.TrimSpace(os.Getenv(EnvSTTAPIKey)); s.STT.apiKey == "" {
		return nil, fmt.Errorf("stt settings: %s is required", EnvSTTAPIKey)
	}
	if s.TTS.apiKey = strings.TrimSpace(os.Getenv(EnvTTSAPIKey)); s.TTS.apiKey == "" {
		return nil, fmt.Errorf("tts settings: %s is required", EnvTTSAPIKey)
	}

	s.Signaling = SignalingSettings{
		URL:       strings.TrimSpace(os.Getenv(EnvSignalingURL)),
		APIKey:    strings.TrimSpace(os.Getenv(EnvSignalingAPIKey)),
		APISecret: strings.TrimSpace(os.Getenv(EnvSignalingAPISecret)),
	}
	if s.Signaling.Unset() {
		logger.Warn("call-signaling connectivity not configured, token and room endpoints will be unavailable")
		s.Signaling = SignalingSettings{}
	}

	return s, nil
}

// CurrentUseCase returns the selected use-case profile.
func (s *ApplicationSettings) CurrentUseCase() UseCaseConfig {
	return s.UseCases[s.UseCase]
}

// ValidUseCases returns the sorted list of configured use-case identifiers.
func (s *ApplicationSettings) ValidUseCases() []string {
	return useCaseIDs(s.UseCases)
}

// DefaultHospitalityUseCase is the backward-compatible profile synthesized
// when a configuration document predates the use_cases section.
func DefaultHospitalityUseCase() UseCaseConfig {
	return UseCaseConfig{
		Name:       "hospitality",
		Greeting:   "Assalamu alaikum! Welcome to Al Faisaliah Grand Hotel. How may I help you?",
		PromptFile: "prompts/hospitality.yml",
		ToolServers: []ToolServerConfig{
			{Name: "booking", URL: "http://localhost:8001"},
		},
	}
}

func useCaseIDs(m map[string]UseCaseConfig) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
