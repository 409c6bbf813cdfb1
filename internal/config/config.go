package config

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shouni/go-utils/envutil"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/generator"
	"github.com/shouni/go-storyboard-kit/pkg/workflow"
)

// デフォルト値の定義なのだ
const (
	DefaultDataDir       = ".storyboard"
	DefaultListenAddr    = ":8080"
	DefaultOutputDir     = "output"
	DefaultHTTPTimeout   = 60 * time.Second
	DefaultVideoTimeout  = 10 * time.Minute
	DefaultPlanProvider  = "gemini"
	DefaultProfileStore  = "supabase"
	DefaultSessionStore  = "memory"
	DefaultRedisPrefix   = "storyboard:"
	DefaultGeminiRPS     = 0.0
	DefaultCLISessionID  = "cli"
	DefaultRedisPoolSize = 10
)

// Config はアプリケーション全体の環境設定（APIキーや接続先）を保持する構造体なのだ。
type Config struct {
	GeminiAPIKey      string
	GeminiVideoAPIKey string
	GeminiModel       string
	GeminiImageModel  string
	GeminiVideoModel  string
	// GeminiRPS は Gemini 呼び出し全体の毎秒上限です。0 なら制限しないのだ。
	GeminiRPS         float64
	GeminiTemperature float32

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	PlanProvider  string

	SupabaseURL     string
	SupabaseAnonKey string
	ProfileStore    string
	MySQLDSN        string

	SessionStore  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	DataDir        string
	CharactersFile string
	ListenAddr     string

	APIDelay           time.Duration
	SessionTTL         time.Duration
	HTTPTimeout        time.Duration
	VideoTimeout       time.Duration
	VideoPollInterval  time.Duration
	SimulatedVideoWait time.Duration
	PlaceholderVideo   string
	// AllowPrivateNetwork は外部 HTTP 呼び出しでローカルやプライベートの宛先を許可します。
	AllowPrivateNetwork bool
}

// LoadConfig は .env と環境変数から設定を読み込み、構造体を返すのだ！
func LoadConfig() *Config {
	if err := godotenv.Load(); err == nil {
		slog.Debug(".env を読み込みました")
	}

	return &Config{
		GeminiAPIKey:      envutil.GetEnv("GEMINI_API_KEY", ""),
		GeminiVideoAPIKey: envutil.GetEnv("GEMINI_VIDEO_API_KEY", ""),
		GeminiModel:       envutil.GetEnv("GEMINI_MODEL", generator.DefaultPlanModel),
		GeminiImageModel:  envutil.GetEnv("IMAGE_GEMINI_MODEL", generator.DefaultImageModel),
		GeminiVideoModel:  envutil.GetEnv("VIDEO_GEMINI_MODEL", generator.DefaultVideoModel),
		GeminiRPS:         parseFloat(envutil.GetEnv("GEMINI_RPS", ""), DefaultGeminiRPS),
		GeminiTemperature: float32(parseFloat(envutil.GetEnv("GEMINI_TEMPERATURE", ""), float64(generator.DefaultTemperature))),

		OpenAIAPIKey:  envutil.GetEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   envutil.GetEnv("OPENAI_MODEL", generator.DefaultOpenAIModel),
		OpenAIBaseURL: envutil.GetEnv("OPENAI_BASE_URL", ""),
		PlanProvider:  strings.ToLower(envutil.GetEnv("PLAN_PROVIDER", DefaultPlanProvider)),

		SupabaseURL:     envutil.GetEnv("SUPABASE_URL", ""),
		SupabaseAnonKey: envutil.GetEnv("SUPABASE_ANON_KEY", ""),
		ProfileStore:    strings.ToLower(envutil.GetEnv("PROFILE_STORE", DefaultProfileStore)),
		MySQLDSN:        envutil.GetEnv("MYSQL_DSN", ""),

		SessionStore:  strings.ToLower(envutil.GetEnv("SESSION_STORE", DefaultSessionStore)),
		RedisAddr:     envutil.GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: envutil.GetEnv("REDIS_PASSWORD", ""),
		RedisDB:       parseInt(envutil.GetEnv("REDIS_DB", ""), 0),
		RedisPrefix:   envutil.GetEnv("REDIS_PREFIX", DefaultRedisPrefix),

		DataDir:        envutil.GetEnv("DATA_DIR", DefaultDataDir),
		CharactersFile: envutil.GetEnv("CHARACTERS_FILE", ""),
		ListenAddr:     envutil.GetEnv("LISTEN_ADDR", DefaultListenAddr),

		APIDelay:           parseDuration(envutil.GetEnv("API_DELAY", ""), workflow.DefaultAPIDelay),
		SessionTTL:         parseDuration(envutil.GetEnv("SESSION_TTL", ""), workflow.DefaultSessionTTL),
		HTTPTimeout:        parseDuration(envutil.GetEnv("HTTP_TIMEOUT", ""), DefaultHTTPTimeout),
		VideoTimeout:       parseDuration(envutil.GetEnv("VIDEO_TIMEOUT", ""), DefaultVideoTimeout),
		VideoPollInterval:  parseDuration(envutil.GetEnv("VIDEO_POLL_INTERVAL", ""), generator.DefaultVideoPollInterval),
		SimulatedVideoWait: parseDuration(envutil.GetEnv("OPENAI_VIDEO_DELAY", ""), generator.DefaultSimulatedVideoDelay),
		PlaceholderVideo:   envutil.GetEnv("PLACEHOLDER_VIDEO_URL", generator.PlaceholderVideoURL),

		AllowPrivateNetwork: parseBool(envutil.GetEnv("ALLOW_PRIVATE_NETWORK", ""), false),
	}
}

// WorkflowConfig はオーケストレーターの設定を返します。
func (c *Config) WorkflowConfig() workflow.Config {
	cfg := workflow.DefaultConfig()
	cfg.APIDelay = c.APIDelay
	return cfg
}

// UsesOpenAIPlans は台本生成に OpenAI を使う設定かどうかを返すのだ。
func (c *Config) UsesOpenAIPlans() bool {
	return c.PlanProvider == string(domain.ProviderOpenAI)
}

// BillingKey は動画生成に使うキーを返します。専用キーがなければ通常のキーなのだ。
func (c *Config) BillingKey() string {
	if c.GeminiVideoAPIKey != "" {
		return c.GeminiVideoAPIKey
	}
	return c.GeminiAPIKey
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("時間の形式が不正なので既定値を使います", "value", s, "default", def)
		return def
	}
	return d
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		slog.Warn("整数の形式が不正なので既定値を使います", "value", s, "default", def)
		return def
	}
	return n
}

func parseBool(s string, def bool) bool {
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		slog.Warn("真偽値の形式が不正なので既定値を使います", "value", s, "default", def)
		return def
	}
	return b
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		slog.Warn("数値の形式が不正なので既定値を使います", "value", s, "default", def)
		return def
	}
	return f
}

// GenerateOptions は CLI フラグから渡される実行時のパラメータなのだ。
type GenerateOptions struct {
	// 入力関連
	Idea       string   // --idea
	IdeaFile   string   // --idea-file ('-' で標準入力)
	Audience   string   // --audience
	Language   string   // --language
	Characters []string // --character (複数指定可)

	// 動画生成関連
	Animate   bool   // --animate
	Provider  string // --provider
	OpenAIKey string // --openai-key

	// 出力関連
	OutputDir string // --output-dir
	Script    bool   // --script

	// 実行制御
	SessionID string // --session
}

// RegenerateOptions は単体の再生成コマンドのパラメータです。
type RegenerateOptions struct {
	SessionID string
	SceneID   int    // --scene
	Thumbnail string // --thumbnail (16:9 または 9:16)
	Animate   bool   // --animate
	Provider  string // --provider
	OpenAIKey string // --openai-key
	OutputDir string // --output-dir
}
