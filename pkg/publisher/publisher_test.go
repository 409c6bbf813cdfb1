package publisher

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/generator"
	"github.com/shouni/go-storyboard-kit/pkg/store"
)

func samplePlan() *domain.ProductionPlan {
	return &domain.ProductionPlan{
		Titulo: "Davi e o Gigante",
		YoutubeThumbnail: &domain.YouTubeThumbnail{
			Prompt16x9:       "capa",
			Prompt9x16:       "vertical",
			DescricaoYoutube: "Coragem #fé",
			ImageURL16x9:     generator.DataURL("image/png", []byte("thumb-wide")),
			ImageURL9x16:     generator.DataURL("image/jpeg", []byte("thumb-tall")),
		},
		Cenas: []domain.Scene{
			{ID: 1, Dialogo: "[Davi (Jovem)]  olha\n o gigante.", PromptDiretor: "câmera lenta", ImageURL: generator.DataURL("image/png", []byte("cena-1")), VideoURL: "/media/abc"},
			{ID: 2, Dialogo: "Silêncio.", ImageURL: "/media/not-a-data-url"},
			{ID: 3, Dialogo: "Fim."},
		},
	}
}

func TestExport(t *testing.T) {
	b, err := Export(samplePlan())
	if err != nil {
		t.Fatalf("エクスポートに失敗したのだ: %v", err)
	}
	if strings.Contains(string(b), "videoUrl") || strings.Contains(string(b), "/media/abc") {
		t.Error("動画ハンドルが含まれているのだ")
	}
	if !strings.Contains(string(b), "\n  \"titulo\"") {
		t.Error("インデントされていないのだ")
	}
	var back domain.ProductionPlan
	if err := json.Unmarshal(b, &back); err != nil || len(back.Cenas) != 3 {
		t.Errorf("読み戻せないのだ: %v", err)
	}

	if _, err := Export(nil); err == nil {
		t.Error("nil の計画でエラーにならないのだ")
	}
}

func TestPublisher_Publish(t *testing.T) {
	dir := t.TempDir()
	pub := NewPublisher(NewFileWriter())

	res, err := pub.Publish(context.Background(), samplePlan(), Options{OutputDir: dir, Script: true})
	if err != nil {
		t.Fatalf("パブリッシュに失敗したのだ: %v", err)
	}

	if res.PlanPath != filepath.Join(dir, "Davi_e_o_Gigante.json") {
		t.Errorf("計画のパスが違うのだ: %s", res.PlanPath)
	}
	wantImages := []string{
		filepath.Join(dir, "images", "scene_1.png"),
		filepath.Join(dir, "images", "thumbnail_16x9.png"),
		filepath.Join(dir, "images", "thumbnail_9x16.jpg"),
	}
	if len(res.ImagePaths) != len(wantImages) {
		t.Fatalf("画像の数が違うのだ: %v", res.ImagePaths)
	}
	for i, want := range wantImages {
		if res.ImagePaths[i] != want {
			t.Errorf("画像 %d のパスが違うのだ: %s", i, res.ImagePaths[i])
		}
	}
	got, err := os.ReadFile(filepath.Join(dir, "images", "scene_1.png"))
	if err != nil || string(got) != "cena-1" {
		t.Errorf("画像の中身が違うのだ: %q %v", got, err)
	}

	script, err := os.ReadFile(res.ScriptPath)
	if err != nil {
		t.Fatalf("台本が読めないのだ: %v", err)
	}
	for _, want := range []string{
		"# Davi e o Gigante",
		"![Cena 1](images/scene_1.png)",
		"> Davi (Jovem) olha o gigante.",
		"- direção: câmera lenta",
		"![Thumbnail 9:16](images/thumbnail_9x16.jpg)",
	} {
		if !strings.Contains(string(script), want) {
			t.Errorf("台本に %q が含まれていないのだ", want)
		}
	}
	if strings.Contains(string(script), "![Cena 2]") {
		t.Error("書き出していない画像を台本が参照しているのだ")
	}
}

func TestPublisher_Videos(t *testing.T) {
	dir := t.TempDir()
	blobs := store.NewBlobStore(0)
	plan := samplePlan()
	plan.Cenas[1].VideoURL = blobs.Put([]byte("MP4"), "video/mp4")

	res, err := NewPublisher(NewFileWriter()).Publish(context.Background(), plan, Options{OutputDir: dir, Videos: blobs})
	if err != nil {
		t.Fatalf("パブリッシュに失敗したのだ: %v", err)
	}
	// シーン1のハンドルはストアにないので飛ばすのだ
	want := filepath.Join(dir, "videos", "scene_2.mp4")
	if len(res.VideoPaths) != 1 || res.VideoPaths[0] != want {
		t.Fatalf("動画のパスが違うのだ: %v", res.VideoPaths)
	}
	if got, _ := os.ReadFile(want); string(got) != "MP4" {
		t.Errorf("動画の中身が違うのだ: %q", got)
	}
	if res.ScriptPath != "" {
		t.Error("頼んでいない台本を書き出したのだ")
	}
}

func TestResolveOutputPath(t *testing.T) {
	if _, err := ResolveOutputPath("out", "../escape.json"); err == nil {
		t.Error("ディレクトリの外へ書き出せてしまうのだ")
	}
	if _, err := ResolveOutputPath("gs://bucket/dir", "a.json"); err == nil {
		t.Error("リモート URI を受け付けてしまったのだ")
	}
	got, err := ResolveOutputPath("out", "a.json")
	if err != nil || got != filepath.Join("out", "a.json") {
		t.Errorf("パスが違うのだ: %s %v", got, err)
	}
}
