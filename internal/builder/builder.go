package builder

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shouni/go-http-kit/httpkit"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/pkg/auth"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/generator"
	"github.com/shouni/go-storyboard-kit/pkg/publisher"
	"github.com/shouni/go-storyboard-kit/pkg/store"
	"github.com/shouni/go-storyboard-kit/pkg/webhook"
	"github.com/shouni/go-storyboard-kit/pkg/workflow"
)

const (
	sessionsDirName = "sessions"

	imageCacheCleanupInterval = time.Hour
)

// BuildAppContext は設定から全コンポーネントを組み立てるのだ。
// reporter は進捗の送り先で、ログへの出力は常に加わります。
func BuildAppContext(ctx context.Context, cfg *config.Config, reporter workflow.Reporter) (*AppContext, error) {
	app := &AppContext{
		Config:     cfg,
		httpClient: newHTTPClient(cfg, cfg.HTTPTimeout),
	}

	catalog, err := BuildCatalog(cfg)
	if err != nil {
		return nil, err
	}
	app.Catalog = catalog

	if err := buildStores(app); err != nil {
		_ = app.Close()
		return nil, err
	}

	args, err := buildGenerators(ctx, app)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	args.Config = cfg.WorkflowConfig()
	args.Media = app.Media
	args.Reporter = workflow.MultiReporter{workflow.NewLogReporter(slog.Default()), reporter}

	app.Orchestrator, err = workflow.New(args)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("オーケストレーターの初期化に失敗しました: %w", err)
	}

	app.Manager, err = workflow.NewManager(workflow.ManagerArgs{
		Catalog:     catalog,
		Sessions:    app.Sessions,
		Preferences: app.Preferences,
	})
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("ワークスペース管理の初期化に失敗しました: %w", err)
	}

	app.Webhook = webhook.NewDispatcher(app.Preferences, app.httpClient)
	app.Publisher = publisher.NewPublisher(publisher.NewFileWriter())

	app.Auth, err = BuildAuthService(ctx, app)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

// newHTTPClient は外部 API 用の httpkit クライアントを生成します。
// 既定ではローカルやプライベートの宛先を拒否するのだ。
func newHTTPClient(cfg *config.Config, timeout time.Duration) *httpkit.Client {
	return httpkit.New(timeout, httpkit.WithSkipNetworkValidation(cfg.AllowPrivateNetwork))
}

// BuildCatalog は組み込みキャラクターに設定ファイルの定義を重ねます。
func BuildCatalog(cfg *config.Config) (*domain.Catalog, error) {
	if cfg.CharactersFile == "" {
		return domain.DefaultCatalog(), nil
	}
	catalog, err := domain.LoadCatalog(cfg.CharactersFile)
	if err != nil {
		return nil, fmt.Errorf("キャラクター情報の取得に失敗しました: %w", err)
	}
	return catalog, nil
}

// buildStores は永続ストア、セッションストア、動画ストアを用意するのだ。
func buildStores(app *AppContext) error {
	cfg := app.Config

	durable, err := store.NewFileStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("永続ストアの初期化に失敗しました: %w", err)
	}
	app.Durable = durable
	app.Preferences = store.NewPreferences(durable, app.Catalog)
	app.Media = store.NewBlobStore(cfg.SessionTTL)

	switch cfg.SessionStore {
	case "redis":
		rs, err := store.NewRedisStore(store.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: config.DefaultRedisPoolSize,
			Prefix:   cfg.RedisPrefix,
			TTL:      cfg.SessionTTL,
		})
		if err != nil {
			return err
		}
		app.Sessions = rs
		app.addCloser(rs.Close)
	case "file":
		// CLI はプロセスをまたいで計画を引き継ぐのでファイルに置きます
		fs, err := store.NewFileStore(filepath.Join(cfg.DataDir, sessionsDirName))
		if err != nil {
			return fmt.Errorf("セッションストアの初期化に失敗しました: %w", err)
		}
		app.Sessions = fs
	case "memory", "":
		app.Sessions = store.NewMemoryStore(cfg.SessionTTL)
	default:
		return fmt.Errorf("未対応のセッションストアです: %s", cfg.SessionStore)
	}

	slog.Debug("ストアを初期化しました", "session_store", cfg.SessionStore, "data_dir", cfg.DataDir)
	return nil
}

// buildGenerators は生成 AI のクライアントと各ジェネレーターを組み立てます。
// キーがない場合はジェネレーターを nil のままにして、実行時に認証エラーとして扱うのだ。
func buildGenerators(ctx context.Context, app *AppContext) (workflow.Args, error) {
	cfg := app.Config
	args := workflow.Args{}

	var limiter *rate.Limiter
	if cfg.GeminiRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.GeminiRPS), 1)
	}

	if cfg.GeminiAPIKey != "" {
		aiClient, err := generator.NewAIClient(ctx, cfg.GeminiAPIKey, cfg.GeminiTemperature)
		if err != nil {
			return args, err
		}

		imgCache := cache.New(generator.DefaultImageCacheTTL, imageCacheCleanupInterval)
		kit, err := generator.NewImageKit(aiClient, app.httpClient, imgCache, generator.DefaultImageCacheTTL)
		if err != nil {
			return args, err
		}
		args.ImageGen = generator.NewGeminiImageGenerator(kit, cfg.GeminiImageModel, limiter)
		args.PlanGen = generator.NewGeminiPlanGenerator(aiClient, cfg.GeminiModel, limiter)
	} else {
		slog.Warn("GEMINI_API_KEY が未設定です。生成はできません")
	}

	if cfg.UsesOpenAIPlans() {
		planGen, err := generator.NewOpenAIPlanGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, app.httpClient)
		if err != nil {
			return args, err
		}
		args.PlanGen = planGen
	}

	// Veo の長時間オペレーションは genai クライアントを直接使います
	var videoClient *genai.Client
	if key := cfg.BillingKey(); key != "" {
		client, err := generator.NewGeminiClient(ctx, key, &http.Client{Timeout: cfg.VideoTimeout})
		if err != nil {
			return args, err
		}
		videoClient = client
	}
	args.Prober = generator.NewBillingKeyProber(videoClient, cfg.GeminiVideoModel)

	videoHTTP := newHTTPClient(cfg, cfg.VideoTimeout)
	args.Videos = map[domain.VideoProvider]generator.VideoGenerator{
		domain.ProviderGemini: generator.NewVeoVideoGenerator(videoClient, cfg.GeminiVideoModel, cfg.VideoPollInterval),
		domain.ProviderOpenAI: generator.NewOpenAIVideoGenerator(videoHTTP, cfg.PlaceholderVideo, cfg.SimulatedVideoWait),
	}
	return args, nil
}

// BuildAuthService は認証サービスを組み立てます。Supabase が未設定なら nil を返すのだ。
// MySQL の接続は app の後始末に登録されます。
func BuildAuthService(ctx context.Context, app *AppContext) (*auth.Service, error) {
	cfg := app.Config
	if cfg.SupabaseURL == "" || cfg.SupabaseAnonKey == "" {
		slog.Info("Supabase が未設定のため認証機能は無効です")
		return nil, nil
	}
	client, err := auth.NewSupabaseClient(cfg.SupabaseURL, cfg.SupabaseAnonKey, app.httpClient)
	if err != nil {
		return nil, err
	}

	var profiles auth.ProfileRepository
	switch cfg.ProfileStore {
	case "mysql":
		db, err := auth.OpenMySQL(auth.MySQLConfig{DSN: cfg.MySQLDSN})
		if err != nil {
			return nil, err
		}
		repo, err := auth.NewMigratedProfileRepository(ctx, db)
		if err != nil {
			return nil, err
		}
		app.addCloser(repo.Close)
		profiles = repo
	case "supabase", "":
		profiles = auth.NewSupabaseProfileRepository(client)
	default:
		return nil, fmt.Errorf("未対応のプロフィールストアです: %s", cfg.ProfileStore)
	}

	var notifier auth.Notifier
	if app.Webhook != nil {
		notifier = app.Webhook
	}
	return auth.NewService(client, profiles, notifier)
}
