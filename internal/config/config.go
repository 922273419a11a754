// Package config provides configuration management for the lipsync service
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	TTS       TTSConfig       `mapstructure:"tts" yaml:"tts"`
	Lipsync   LipsyncConfig   `mapstructure:"lipsync" yaml:"lipsync"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	STT       STTConfig       `mapstructure:"stt" yaml:"stt"`
	Animation AnimationConfig `mapstructure:"animation" yaml:"animation"`
	Playback  PlaybackConfig  `mapstructure:"playback" yaml:"playback"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	Addr           string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
}

// TTSConfig configures synthesis providers and the language capability table
type TTSConfig struct {
	General         string              `mapstructure:"general" yaml:"general"`       // provider tried first for unrestricted languages
	Specialist      string              `mapstructure:"specialist" yaml:"specialist"` // fallback, and sole provider for restricted languages
	Restricted      []string            `mapstructure:"restricted_languages" yaml:"restricted_languages"`
	Languages       map[string][]string `mapstructure:"languages" yaml:"languages"` // explicit per-language chains
	DefaultLanguage string              `mapstructure:"default_language" yaml:"default_language"`
	ProviderTimeout time.Duration       `mapstructure:"provider_timeout" yaml:"provider_timeout"`

	ElevenLabs ElevenLabsConfig `mapstructure:"elevenlabs" yaml:"elevenlabs"`
	Sarvam     SarvamConfig     `mapstructure:"sarvam" yaml:"sarvam"`
	OpenAI     OpenAIConfig     `mapstructure:"openai" yaml:"openai"`
	Yandex     YandexConfig     `mapstructure:"yandex" yaml:"yandex"`
	Piper      PiperConfig      `mapstructure:"piper" yaml:"piper"`
}

// ElevenLabsConfig configures the ElevenLabs REST provider
type ElevenLabsConfig struct {
	APIKey          string  `mapstructure:"api_key" yaml:"api_key"`
	BaseURL         string  `mapstructure:"base_url" yaml:"base_url"`
	VoiceID         string  `mapstructure:"voice_id" yaml:"voice_id"`
	ModelID         string  `mapstructure:"model_id" yaml:"model_id"`
	Stability       float64 `mapstructure:"stability" yaml:"stability"`
	SimilarityBoost float64 `mapstructure:"similarity_boost" yaml:"similarity_boost"`
}

// SarvamConfig configures the Sarvam REST provider (TTS and STT)
type SarvamConfig struct {
	APIKey           string            `mapstructure:"api_key" yaml:"api_key"`
	BaseURL          string            `mapstructure:"base_url" yaml:"base_url"`
	Model            string            `mapstructure:"model" yaml:"model"`
	STTModel         string            `mapstructure:"stt_model" yaml:"stt_model"`
	Speakers         map[string]string `mapstructure:"speakers" yaml:"speakers"`
	ChunkSize        int               `mapstructure:"chunk_size" yaml:"chunk_size"`
	EnglishChunkSize int               `mapstructure:"english_chunk_size" yaml:"english_chunk_size"`
	Silence          time.Duration     `mapstructure:"silence" yaml:"silence"`
	Pace             float64           `mapstructure:"pace" yaml:"pace"`
	// SourceLanguage, when set ("auto" or a language code), makes the
	// provider translate text into the target language before synthesis.
	SourceLanguage string `mapstructure:"source_language" yaml:"source_language"`
	TranslateModel string `mapstructure:"translate_model" yaml:"translate_model"`
}

// OpenAIConfig configures OpenAI speech and transcription
type OpenAIConfig struct {
	APIKey   string  `mapstructure:"api_key" yaml:"api_key"`
	BaseURL  string  `mapstructure:"base_url" yaml:"base_url"`
	Model    string  `mapstructure:"model" yaml:"model"`
	Voice    string  `mapstructure:"voice" yaml:"voice"`
	Speed    float64 `mapstructure:"speed" yaml:"speed"`
	STTModel string  `mapstructure:"stt_model" yaml:"stt_model"`
}

// YandexConfig configures the SpeechKit gRPC provider
type YandexConfig struct {
	APIKey   string  `mapstructure:"api_key" yaml:"api_key"`
	FolderID string  `mapstructure:"folder_id" yaml:"folder_id"`
	Endpoint string  `mapstructure:"endpoint" yaml:"endpoint"`
	Voice    string  `mapstructure:"voice" yaml:"voice"`
	Speed    float64 `mapstructure:"speed" yaml:"speed"`
}

// PiperConfig configures the local Piper binary
type PiperConfig struct {
	BinaryPath string `mapstructure:"binary_path" yaml:"binary_path"`
	ModelsDir  string `mapstructure:"models_dir" yaml:"models_dir"`
	Voice      string `mapstructure:"voice" yaml:"voice"`
}

// LipsyncConfig configures transcoding and forced alignment
type LipsyncConfig struct {
	RhubarbPath string        `mapstructure:"rhubarb_path" yaml:"rhubarb_path"`
	Recognizer  string        `mapstructure:"recognizer" yaml:"recognizer"` // phonetic or pocketSphinx
	FFmpegPath  string        `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path"`
	WorkDir     string        `mapstructure:"work_dir" yaml:"work_dir"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	KeepFailed  bool          `mapstructure:"keep_failed" yaml:"keep_failed"`
}

// StoreConfig selects where synthesized audio is kept
type StoreConfig struct {
	Backend string      `mapstructure:"backend" yaml:"backend"` // file or redis
	Dir     string      `mapstructure:"dir" yaml:"dir"`
	Redis   RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// RedisConfig configures the Redis audio store
type RedisConfig struct {
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"password"`
	DB       int           `mapstructure:"db" yaml:"db"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
	Prefix   string        `mapstructure:"prefix" yaml:"prefix"`
}

// STTConfig configures speech-to-text
type STTConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"` // openai or sarvam
	Language string `mapstructure:"language" yaml:"language"`
}

// AnimationConfig configures the tick loop and face blending
type AnimationConfig struct {
	FPS               int           `mapstructure:"fps" yaml:"fps"`
	ReferenceFPS      float64       `mapstructure:"reference_fps" yaml:"reference_fps"`
	FixedStep         bool          `mapstructure:"fixed_step" yaml:"fixed_step"`
	VisemeRate        float64       `mapstructure:"viseme_rate" yaml:"viseme_rate"`
	ExpressionRate    float64       `mapstructure:"expression_rate" yaml:"expression_rate"`
	BlinkRate         float64       `mapstructure:"blink_rate" yaml:"blink_rate"`
	BlinkMinInterval  time.Duration `mapstructure:"blink_min_interval" yaml:"blink_min_interval"`
	BlinkMaxInterval  time.Duration `mapstructure:"blink_max_interval" yaml:"blink_max_interval"`
	BlinkHold         time.Duration `mapstructure:"blink_hold" yaml:"blink_hold"`
	DefaultExpression string        `mapstructure:"default_expression" yaml:"default_expression"`
	ModelPath         string        `mapstructure:"model_path" yaml:"model_path"` // optional .glb for morph target mapping
}

// PlaybackConfig selects the audio output
type PlaybackConfig struct {
	Device          string `mapstructure:"device" yaml:"device"` // clock or portaudio
	FramesPerBuffer int    `mapstructure:"frames_per_buffer" yaml:"frames_per_buffer"`
}

// LogConfig configures logging
type LogConfig struct {
	Dir     string `mapstructure:"dir" yaml:"dir"`
	Level   string `mapstructure:"level" yaml:"level"`
	Console bool   `mapstructure:"console" yaml:"console"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	dir, _ := GetConfigDir()

	return &Config{
		Server: ServerConfig{
			Addr:           ":3000",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   120 * time.Second,
			MaxUploadBytes: 25 << 20,
		},
		TTS: TTSConfig{
			General:         "elevenlabs",
			Specialist:      "sarvam",
			Restricted:      []string{"te-IN", "kn-IN"},
			Languages:       map[string][]string{},
			DefaultLanguage: "en-IN",
			ProviderTimeout: 20 * time.Second,
			ElevenLabs: ElevenLabsConfig{
				BaseURL:         "https://api.elevenlabs.io/v1",
				VoiceID:         "21m00Tcm4TlvDq8ikWAM",
				ModelID:         "eleven_monolingual_v1",
				Stability:       0.5,
				SimilarityBoost: 0.5,
			},
			Sarvam: SarvamConfig{
				BaseURL:  "https://api.sarvam.ai",
				Model:    "bulbul:v2",
				STTModel: "saarika:v2.5",
				Speakers: map[string]string{
					"en-IN": "anushka",
					"hi-IN": "abhilash",
					"ta-IN": "vidya",
					"te-IN": "karun",
					"kn-IN": "hitesh",
					"ml-IN": "arya",
					"mr-IN": "manisha",
					"bn-IN": "anushka",
					"gu-IN": "karun",
					"pa-IN": "hitesh",
				},
				ChunkSize:        300,
				EnglishChunkSize: 500,
				Silence:          150 * time.Millisecond,
				Pace:             1.0,
			},
			OpenAI: OpenAIConfig{
				Model:    "tts-1",
				Voice:    "nova",
				Speed:    1.0,
				STTModel: "whisper-1",
			},
			Yandex: YandexConfig{
				Endpoint: "tts.api.cloud.yandex.net:443",
				Voice:    "alena",
				Speed:    1.0,
			},
			Piper: PiperConfig{
				BinaryPath: "piper",
				Voice:      "en_US-lessac-medium",
			},
		},
		Lipsync: LipsyncConfig{
			RhubarbPath: "rhubarb",
			Recognizer:  "phonetic",
			FFmpegPath:  "ffmpeg",
			Timeout:     30 * time.Second,
		},
		Store: StoreConfig{
			Backend: "file",
			Dir:     filepath.Join(dir, "audios"),
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				TTL:    time.Hour,
				Prefix: "lipsync:audio:",
			},
		},
		STT: STTConfig{
			Provider: "openai",
			Language: "en",
		},
		Animation: AnimationConfig{
			FPS:               60,
			ReferenceFPS:      60,
			VisemeRate:        0.2,
			ExpressionRate:    0.1,
			BlinkRate:         0.4,
			BlinkMinInterval:  2500 * time.Millisecond,
			BlinkMaxInterval:  5000 * time.Millisecond,
			BlinkHold:         150 * time.Millisecond,
			DefaultExpression: "neutral",
		},
		Playback: PlaybackConfig{
			Device:          "clock",
			FramesPerBuffer: 1024,
		},
		Log: LogConfig{
			Dir:     filepath.Join(dir, "logs"),
			Level:   "info",
			Console: true,
		},
	}
}

// Load reads configuration from ~/.lipsync (or the working directory) and environment
func Load() (*Config, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return DefaultConfig(), err
	}
	return LoadFrom(dir)
}

// LoadFrom reads config.yaml from dir, writing the defaults there when no file exists.
func LoadFrom(dir string) (*Config, error) {
	cfg := DefaultConfig()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return cfg, err
	}

	if err := LoadEnv(dir); err != nil {
		return cfg, err
	}

	v := newViper(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := SaveTo(dir, cfg); err != nil {
			return cfg, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	applyEnv(cfg)
	return cfg, nil
}

// Watch re-reads the config file in dir whenever it changes.
func Watch(dir string, onChange func(*Config, error)) error {
	v := newViper(dir)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg := DefaultConfig()
		err := v.Unmarshal(cfg)
		if err == nil {
			applyEnv(cfg)
		}
		onChange(cfg, err)
	})
	v.WatchConfig()
	return nil
}

func newViper(dir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.AddConfigPath(".")

	// Environment variable overrides, e.g. LIPSYNC_SERVER_ADDR
	v.SetEnvPrefix("LIPSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadEnv loads .env files from dir and the working directory without
// overriding variables that are already set. Missing files are skipped; a
// file that exists but does not parse is an error.
func LoadEnv(dir string) error {
	for _, path := range []string{filepath.Join(dir, ".env"), ".env"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	fill := func(dst *string, keys ...string) {
		if *dst != "" {
			return
		}
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}

	fill(&cfg.TTS.ElevenLabs.APIKey, "ELEVENLABS_API_KEY")
	fill(&cfg.TTS.Sarvam.APIKey, "SARVAM_API_KEY")
	fill(&cfg.TTS.OpenAI.APIKey, "OPENAI_API_KEY")
	fill(&cfg.TTS.Yandex.APIKey, "YANDEX_API_KEY")
	fill(&cfg.TTS.Yandex.FolderID, "YANDEX_FOLDER_ID")
	fill(&cfg.Store.Redis.Addr, "REDIS_ADDR")
}

// Save writes the configuration to ~/.lipsync/config.yaml
func Save(cfg *Config) error {
	dir, err := GetConfigDir()
	if err != nil {
		return err
	}
	return SaveTo(dir, cfg)
}

// SaveTo writes the configuration to dir/config.yaml
func SaveTo(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".lipsync"), nil
}
