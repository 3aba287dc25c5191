package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/sashabaranov/go-openai"
)

// Provider names accepted by AI_PROVIDER, ASR_PROVIDER and TTS_PROVIDER.
const (
	ProviderArk        = "ark"
	ProviderOpenAI     = "openai"
	ProviderElevenLabs = "elevenlabs"
	ProviderVolcengine = "volcengine"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	AI     AIConfig
	Speech SpeechConfig
	Call   CallConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	call, err := loadCallConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Speech: speech, Call: call}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr        string
	CORSOrigins string
	LogLevel    string
	LogFormat   string
}

// loadServerConfig 解析服务器监听地址与日志设置。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	cfg := ServerConfig{
		CORSOrigins: getEnvOrDefault("CORS_ORIGINS", "*"),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:   getEnvOrDefault("LOG_FORMAT", "json"),
	}

	switch {
	case strings.Contains(port, " "):
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	case strings.Contains(port, ":"):
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		cfg.Addr = port
	default:
		cfg.Addr = ":" + port
	}
	return cfg, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider string

	// Ark
	ArkAPIKey    string
	ArkAccessKey string
	ArkSecretKey string
	ArkModel     string
	ArkBaseURL   string
	ArkRegion    string

	// OpenAI
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Timeout     time.Duration
}

// Enabled 表示所选 provider 的必需密钥是否齐全。
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderOpenAI:
		return c.OpenAIAPIKey != ""
	case ProviderArk:
		return c.ArkModel != "" && (c.ArkAPIKey != "" || (c.ArkAccessKey != "" && c.ArkSecretKey != ""))
	default:
		return false
	}
}

// NewChatModel 使用 Ark 配置创建一个 eino 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if c.Provider != ProviderArk || !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     c.ArkBaseURL,
		Region:      c.ArkRegion,
		APIKey:      c.ArkAPIKey,
		AccessKey:   c.ArkAccessKey,
		SecretKey:   c.ArkSecretKey,
		Model:       c.ArkModel,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	})
}

// NewOpenAIClient 构造 OpenAI 客户端，生成与转写共用。
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	if temperature == nil {
		// 与原版保持一致的高随机度，让角色回复更口语化
		defaultTemperature := 1.2
		temperature = &defaultTemperature
	}

	topP, err := parseOptionalFloatEnv("AI_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("AI_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	timeout, err := parseDurationEnv("AI_TIMEOUT", 60*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	cfg := AIConfig{
		ArkAPIKey:     strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		ArkAccessKey:  strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		ArkSecretKey:  strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		ArkModel:      getEnvOrDefault("ARK_MODEL", strings.TrimSpace(os.Getenv("Model"))),
		ArkBaseURL:    getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		ArkRegion:     getEnvOrDefault("ARK_REGION", "cn-beijing"),
		OpenAIAPIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL: strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		OpenAIModel:   getEnvOrDefault("OPENAI_MODEL", openai.GPT4o),
		Temperature:   temperature,
		TopP:          topP,
		MaxTokens:     maxTokens,
		Timeout:       timeout,
	}

	provider := strings.ToLower(strings.TrimSpace(os.Getenv("AI_PROVIDER")))
	switch provider {
	case "":
		provider = ProviderArk
		if cfg.OpenAIAPIKey != "" {
			provider = ProviderOpenAI
		}
	case ProviderArk, ProviderOpenAI:
	default:
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", provider)
	}
	cfg.Provider = provider

	return cfg, nil
}

// SpeechConfig 描述语音转写与合成配置。
type SpeechConfig struct {
	ASRProvider string
	TTSProvider string

	// OpenAI Whisper
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	TranscribeModel string
	ASRLanguage     string

	// ElevenLabs
	ElevenAPIKey       string
	ElevenVoiceID      string
	ElevenModelID      string
	ElevenOutputFormat string
	ElevenBaseURL      string

	// Volcengine
	AppID       string
	AccessToken string
	TTSVoice    string
	TTSSpeed    float32
	TTSVolume   float32
	TTSLanguage string

	Timeout time.Duration
}

// TranscriptionEnabled 表示转写 provider 的凭证是否齐全。
func (c SpeechConfig) TranscriptionEnabled() bool {
	switch c.ASRProvider {
	case ProviderOpenAI:
		return c.OpenAIAPIKey != ""
	default:
		return false
	}
}

// SynthesisEnabled 表示合成 provider 的凭证是否齐全。
func (c SpeechConfig) SynthesisEnabled() bool {
	switch c.TTSProvider {
	case ProviderElevenLabs:
		return c.ElevenAPIKey != "" && c.ElevenVoiceID != ""
	case ProviderVolcengine:
		return c.AppID != "" && c.AccessToken != ""
	default:
		return false
	}
}

func loadSpeechConfig() (SpeechConfig, error) {
	timeout, err := parseDurationEnv("SPEECH_TIMEOUT", 30*time.Second)
	if err != nil {
		return SpeechConfig{}, err
	}

	speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsSpeed := float32(1.0)
	if speed != nil {
		ttsSpeed = *speed
	}

	volume, err := parseOptionalFloat32Env("SPEECH_TTS_VOLUME")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsVolume := float32(1.0)
	if volume != nil {
		ttsVolume = *volume
	}

	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	if accessToken == "" {
		accessToken = strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	}

	cfg := SpeechConfig{
		OpenAIAPIKey:       strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:      strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		TranscribeModel:    getEnvOrDefault("OPENAI_TRANSCRIBE_MODEL", openai.Whisper1),
		ASRLanguage:        getEnvOrDefault("ASR_LANGUAGE", "en"),
		ElevenAPIKey:       strings.TrimSpace(os.Getenv("ELEVEN_API_KEY")),
		ElevenVoiceID:      strings.TrimSpace(os.Getenv("VOICE_ID")),
		ElevenModelID:      getEnvOrDefault("ELEVEN_MODEL_ID", "eleven_turbo_v2_5"),
		ElevenOutputFormat: getEnvOrDefault("ELEVEN_OUTPUT_FORMAT", "mp3_44100_128"),
		ElevenBaseURL:      getEnvOrDefault("ELEVEN_BASE_URL", "wss://api.elevenlabs.io/v1/text-to-speech"),
		AppID:              strings.TrimSpace(os.Getenv("SPEECH_APP_ID")),
		AccessToken:        accessToken,
		TTSVoice:           getEnvOrDefault("SPEECH_TTS_VOICE", ""),
		TTSSpeed:           ttsSpeed,
		TTSVolume:          ttsVolume,
		TTSLanguage:        getEnvOrDefault("SPEECH_TTS_LANGUAGE", "en-US"),
		Timeout:            timeout,
	}

	asr := strings.ToLower(getEnvOrDefault("ASR_PROVIDER", ProviderOpenAI))
	if asr != ProviderOpenAI {
		return SpeechConfig{}, fmt.Errorf("invalid ASR_PROVIDER value %q", asr)
	}
	cfg.ASRProvider = asr

	tts := strings.ToLower(strings.TrimSpace(os.Getenv("TTS_PROVIDER")))
	switch tts {
	case "":
		tts = ProviderElevenLabs
		if cfg.ElevenAPIKey == "" && cfg.AppID != "" {
			tts = ProviderVolcengine
		}
	case ProviderElevenLabs, ProviderVolcengine:
	default:
		return SpeechConfig{}, fmt.Errorf("invalid TTS_PROVIDER value %q", tts)
	}
	cfg.TTSProvider = tts

	return cfg, nil
}

// CallConfig 描述通话会话的生命周期参数。
type CallConfig struct {
	IdleTTL        time.Duration
	SweepInterval  time.Duration
	MaxActive      int
	WrapUpAfter    int
	// ToneEnabled 按回复内容推断语气并传给 TTS
	ToneEnabled    bool
	DefaultPersona string
	PersonaFile    string
	MaxAudioBytes  int64
}

func loadCallConfig() (CallConfig, error) {
	idleTTL, err := parseDurationEnv("CALL_IDLE_TTL", 30*time.Minute)
	if err != nil {
		return CallConfig{}, err
	}

	sweep, err := parseDurationEnv("CALL_SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return CallConfig{}, err
	}

	maxActive := 1000
	if override, err := parseOptionalIntEnv("CALL_MAX_ACTIVE"); err != nil {
		return CallConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return CallConfig{}, fmt.Errorf("invalid CALL_MAX_ACTIVE value %d: must be positive", *override)
		}
		maxActive = *override
	}

	wrapUp := 6
	if override, err := parseOptionalIntEnv("CALL_WRAP_UP_AFTER"); err != nil {
		return CallConfig{}, err
	} else if override != nil {
		if *override < 1 {
			wrapUp = 1
		} else {
			wrapUp = *override
		}
	}

	tone, err := parseBoolEnv("CALL_TONE_ENABLED", true)
	if err != nil {
		return CallConfig{}, err
	}

	maxAudio := int64(25 << 20)
	if override, err := parseOptionalIntEnv("MAX_AUDIO_BYTES"); err != nil {
		return CallConfig{}, err
	} else if override != nil && *override > 0 {
		maxAudio = int64(*override)
	}

	return CallConfig{
		IdleTTL:        idleTTL,
		SweepInterval:  sweep,
		MaxActive:      maxActive,
		WrapUpAfter:    wrapUp,
		ToneEnabled:    tone,
		DefaultPersona: getEnvOrDefault("DEFAULT_PERSONA", "tyler"),
		PersonaFile:    strings.TrimSpace(os.Getenv("PERSONA_FILE")),
		MaxAudioBytes:  maxAudio,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	// 兼容旧配置：纯数字按秒处理
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
