package generator

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/shouni/gemini-image-kit/ports"
)

const defaultImageMimeType = "image/png"

// DataURL はバイト列を data URL 形式に変換します。
func DataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = defaultImageMimeType
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL は data URL を MIME タイプとバイト列に分解するのだ。
func DecodeDataURL(url string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return "", nil, fmt.Errorf("data URL ではありません")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || payload == "" {
		return "", nil, fmt.Errorf("data URL にデータ部分がありません")
	}

	mimeType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("base64 以外の data URL には対応していないのだ")
	}
	if mimeType == "" {
		mimeType = defaultImageMimeType
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("data URL のデコードに失敗しました: %w", err)
	}
	return mimeType, data, nil
}

// DataURLResolver は参照画像の取得元です。
// data URL はその場でデコードし、それ以外は next に委譲するのだ。
type DataURLResolver struct {
	next ports.Downloader
}

// NewDataURLResolver は DataURLResolver を生成します。next は nil でも構いません。
func NewDataURLResolver(next ports.Downloader) *DataURLResolver {
	return &DataURLResolver{next: next}
}

// GetStream は参照画像の Reader を返します。
func (r *DataURLResolver) GetStream(ctx context.Context, url string) (io.ReadCloser, error) {
	if strings.HasPrefix(url, "data:") {
		_, data, err := DecodeDataURL(url)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	if r.next == nil {
		return nil, fmt.Errorf("外部 URL の参照には対応していないのだ: %s", url)
	}
	return r.next.GetStream(ctx, url)
}

// FetchStream は参照画像を fn に渡します。
func (r *DataURLResolver) FetchStream(ctx context.Context, url string, fn func(io.Reader) error) error {
	rc, err := r.GetStream(ctx, url)
	if err != nil {
		return err
	}
	defer rc.Close()
	return fn(rc)
}

// Open は gs:// の参照を読みます。Cloud Storage は使わないので常にエラーです。
func (r *DataURLResolver) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("Cloud Storage の参照には対応していません: %s", uri)
}
