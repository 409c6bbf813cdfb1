package config

import (
	"testing"
	"time"

	"github.com/shouni/go-storyboard-kit/pkg/generator"
	"github.com/shouni/go-storyboard-kit/pkg/workflow"
)

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "base-key")
	t.Setenv("PLAN_PROVIDER", "OpenAI")
	t.Setenv("SESSION_STORE", "Redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("GEMINI_RPS", "0.5")
	t.Setenv("API_DELAY", "250ms")
	t.Setenv("VIDEO_TIMEOUT", "2m")
	t.Setenv("ALLOW_PRIVATE_NETWORK", "true")
	t.Setenv("GEMINI_TEMPERATURE", "0.2")

	cfg := LoadConfig()

	if !cfg.AllowPrivateNetwork || cfg.GeminiTemperature != float32(0.2) {
		t.Errorf("ネットワークか温度の設定が違うのだ: %v %v", cfg.AllowPrivateNetwork, cfg.GeminiTemperature)
	}

	if cfg.GeminiAPIKey != "base-key" {
		t.Errorf("API キーが読めていないのだ: %q", cfg.GeminiAPIKey)
	}
	if !cfg.UsesOpenAIPlans() {
		t.Error("PLAN_PROVIDER が小文字化されていないのだ")
	}
	if cfg.SessionStore != "redis" {
		t.Errorf("SESSION_STORE が小文字化されていないのだ: %q", cfg.SessionStore)
	}
	if cfg.RedisDB != 3 || cfg.GeminiRPS != 0.5 {
		t.Errorf("数値の設定が違うのだ: db=%d rps=%v", cfg.RedisDB, cfg.GeminiRPS)
	}
	if cfg.APIDelay != 250*time.Millisecond || cfg.VideoTimeout != 2*time.Minute {
		t.Errorf("時間の設定が違うのだ: %v %v", cfg.APIDelay, cfg.VideoTimeout)
	}
	if got := cfg.WorkflowConfig().APIDelay; got != 250*time.Millisecond {
		t.Errorf("WorkflowConfig に反映されていないのだ: %v", got)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("API_DELAY", "soon")
	t.Setenv("REDIS_DB", "x")
	t.Setenv("ALLOW_PRIVATE_NETWORK", "talvez")

	cfg := LoadConfig()

	if cfg.AllowPrivateNetwork {
		t.Error("不正な真偽値でプライベート宛先が許可されているのだ")
	}

	if cfg.APIDelay != workflow.DefaultAPIDelay {
		t.Errorf("不正な時間で既定値に戻っていないのだ: %v", cfg.APIDelay)
	}
	if cfg.RedisDB != 0 {
		t.Errorf("不正な整数で既定値に戻っていないのだ: %d", cfg.RedisDB)
	}
	if cfg.DataDir != DefaultDataDir || cfg.ListenAddr != DefaultListenAddr {
		t.Errorf("既定のパスが違うのだ: %q %q", cfg.DataDir, cfg.ListenAddr)
	}
	if cfg.GeminiImageModel != generator.DefaultImageModel {
		t.Errorf("既定の画像モデルが違うのだ: %q", cfg.GeminiImageModel)
	}
}

func TestConfig_BillingKey(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"専用キーを優先する", Config{GeminiAPIKey: "base", GeminiVideoAPIKey: "paid"}, "paid"},
		{"なければ通常のキー", Config{GeminiAPIKey: "base"}, "base"},
		{"どちらもない", Config{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.BillingKey(); got != tt.want {
				t.Errorf("BillingKey() = %q, want %q", got, tt.want)
			}
		})
	}
}
