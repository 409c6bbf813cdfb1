package workflow

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shouni/gemini-image-kit/ports"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/generator"
	"github.com/shouni/go-storyboard-kit/pkg/store"
)

const testPlanJSON = "```json\n" + `{
  "titulo": "Davi e o Gigante",
  "youtube_thumbnail": {
    "prompt_16_9": "capa larga com [Davi (Jovem)]",
    "prompt_9_16": "capa vertical",
    "descricao_youtube": "Uma história de coragem #fé"
  },
  "cenas": [
    {"dialogo": "[Davi (Jovem)] olha para o gigante.", "prompt_imagem": "[Davi (Jovem)] segura a funda sob [Deus (Luz Divina)]", "prompt_diretor": "câmera lenta"},
    {"dialogo": "A luz brilha.", "prompt_imagem": "[Deus (Luz Divina)] ilumina o vale", "prompt_diretor": "zoom suave"},
    {"dialogo": "Silêncio.", "prompt_imagem": "um vale vazio ao entardecer", "prompt_diretor": "plano aberto"}
  ]
}` + "\n```"

type fakePlanGen struct {
	mu    sync.Mutex
	raw   string
	err   error
	calls []generator.PlanRequest
}

func (f *fakePlanGen) GeneratePlan(_ context.Context, req generator.PlanRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return "", f.err
	}
	return f.raw, nil
}

func (f *fakePlanGen) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeImageGen は呼び出し順に "img-N" を返すのだ。fail が値を返すとその呼び出しは失敗します。
type fakeImageGen struct {
	mu     sync.Mutex
	calls  []ports.ImagePageRequest
	prefix string
	fail   func(n int, req ports.ImagePageRequest) error
	hook   func(n int)
}

func (f *fakeImageGen) GenerateImage(_ context.Context, req ports.ImagePageRequest) (*ports.ImageResponse, error) {
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, req)
	fail, hook, prefix := f.fail, f.hook, f.prefix
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if fail != nil {
		if err := fail(n, req); err != nil {
			return nil, err
		}
	}
	if prefix == "" {
		prefix = "img"
	}
	return &ports.ImageResponse{Data: []byte(fmt.Sprintf("%s-%d", prefix, n)), MimeType: "image/png"}, nil
}

func (f *fakeImageGen) requests() []ports.ImagePageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.ImagePageRequest(nil), f.calls...)
}

func (f *fakeImageGen) setFail(fn func(n int, req ports.ImagePageRequest) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fn
}

type fakeVideoGen struct {
	mu    sync.Mutex
	calls []generator.VideoRequest
	err   error
}

func (f *fakeVideoGen) GenerateVideo(_ context.Context, req generator.VideoRequest) (*generator.VideoResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &generator.VideoResult{Data: []byte("MP4"), MimeType: "video/mp4"}, nil
}

type fakeProber struct {
	ok    bool
	calls int
}

func (f *fakeProber) HasBillingKey(context.Context) bool {
	f.calls++
	return f.ok
}

type recordingReporter struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingReporter) Report(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingReporter) stages() []Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Stage, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Stage)
	}
	return out
}

type harness struct {
	orch     *Orchestrator
	ws       *Workspace
	kv       *store.MemoryStore
	prefsKV  *store.MemoryStore
	prefs    *store.Preferences
	planGen  *fakePlanGen
	imageGen *fakeImageGen
	videos   map[domain.VideoProvider]*fakeVideoGen
	prober   *fakeProber
	media    *store.BlobStore
	reporter *recordingReporter
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		kv:       store.NewMemoryStore(time.Hour),
		prefsKV:  store.NewMemoryStore(store.NoExpiration),
		planGen:  &fakePlanGen{raw: testPlanJSON},
		imageGen: &fakeImageGen{},
		videos: map[domain.VideoProvider]*fakeVideoGen{
			domain.ProviderGemini: {},
			domain.ProviderOpenAI: {},
		},
		prober:   &fakeProber{ok: true},
		media:    store.NewBlobStore(time.Hour),
		reporter: &recordingReporter{},
	}
	catalog := domain.DefaultCatalog()
	h.prefs = store.NewPreferences(h.prefsKV, catalog)
	h.ws = NewWorkspace("s1", catalog, store.NewSessionState(h.kv, "s1"), h.prefs)

	orch, err := New(Args{
		Config:   Config{APIDelay: 0},
		PlanGen:  h.planGen,
		ImageGen: h.imageGen,
		Videos: map[domain.VideoProvider]generator.VideoGenerator{
			domain.ProviderGemini: h.videos[domain.ProviderGemini],
			domain.ProviderOpenAI: h.videos[domain.ProviderOpenAI],
		},
		Prober:   h.prober,
		Media:    h.media,
		Reporter: h.reporter,
	})
	if err != nil {
		t.Fatalf("オーケストレーターの初期化に失敗したのだ: %v", err)
	}
	h.orch = orch
	return h
}

func defaultBrief() Brief {
	return Brief{
		Idea:     "Davi enfrenta Golias",
		Audience: "Infantil de 6 a 10 anos",
		Language: "Português (Brasil)",
	}
}
