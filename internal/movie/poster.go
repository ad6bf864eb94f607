// Package movie は映画の登録・評価・ランキングのドメインロジックを提供する。
package movie

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// defaultPosterMaxSize はポスター画像の最大サイズ（5MB）。
const defaultPosterMaxSize = 5 * 1024 * 1024

// posterTimeout はポスター取得のタイムアウト。
const posterTimeout = 10 * time.Second

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// PosterFetcherService はポスター画像取得のインターフェース。
type PosterFetcherService interface {
	// FetchPoster は指定URLからポスター画像を取得する。
	// 取得失敗時はnilデータと空MIMEを返す（エラーは返さない）。
	FetchPoster(ctx context.Context, posterURL string) (data []byte, mimeType string, err error)
}

// PosterFetcher はポスター画像取得機能の実装。
type PosterFetcher struct {
	ssrfGuard SSRFValidator
	maxSize   int64
}

// NewPosterFetcher はPosterFetcherの新しいインスタンスを生成する。
// maxSizeが0以下の場合はデフォルト（5MB）を使用する。
func NewPosterFetcher(ssrfGuard SSRFValidator, maxSize int64) *PosterFetcher {
	if maxSize <= 0 {
		maxSize = defaultPosterMaxSize
	}
	return &PosterFetcher{
		ssrfGuard: ssrfGuard,
		maxSize:   maxSize,
	}
}

// FetchPoster は指定URLからポスター画像を取得する。
// 取得失敗時はnilデータと空MIMEを返す（ポスターなしとして保存される）。
func (f *PosterFetcher) FetchPoster(ctx context.Context, posterURL string) ([]byte, string, error) {
	if posterURL == "" {
		return nil, "", nil
	}

	// SSRF検証
	if f.ssrfGuard != nil {
		if err := f.ssrfGuard.ValidateURL(posterURL); err != nil {
			slog.Warn("ポスター取得: SSRFブロック", "url", posterURL, "error", err)
			return nil, "", nil
		}
	}

	client := f.getHTTPClient()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, posterURL, nil)
	if err != nil {
		slog.Warn("ポスター取得: リクエスト作成失敗", "url", posterURL, "error", err)
		return nil, "", nil
	}
	req.Header.Set("User-Agent", "Cinelog/1.0 Movie Tracker")

	resp, err := client.Do(req)
	if err != nil {
		slog.Warn("ポスター取得: HTTPリクエスト失敗", "url", posterURL, "error", err)
		return nil, "", nil
	}
	defer resp.Body.Close()

	// 2xx以外はポスター取得失敗として扱う
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("ポスター取得: HTTPステータス異常", "url", posterURL, "status", resp.StatusCode)
		return nil, "", nil
	}

	// レスポンスボディを読み込み（最大サイズ+1で打ち切り検出）
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		slog.Warn("ポスター取得: レスポンス読み取り失敗", "url", posterURL, "error", err)
		return nil, "", nil
	}

	// サイズ超過チェック
	if int64(len(body)) > f.maxSize {
		slog.Warn("ポスター取得: サイズ超過", "url", posterURL, "size", len(body))
		return nil, "", nil
	}

	contentType := resp.Header.Get("Content-Type")
	mimeType := extractMimeType(contentType)

	// 画像でない場合はnilを返す
	if !isImageMime(mimeType) {
		slog.Warn("ポスター取得: 画像以外のContent-Type", "url", posterURL, "contentType", contentType)
		return nil, "", nil
	}

	return body, mimeType, nil
}

// getHTTPClient はHTTPクライアントを取得する。
func (f *PosterFetcher) getHTTPClient() *http.Client {
	if f.ssrfGuard != nil {
		return f.ssrfGuard.NewSafeClient(posterTimeout, f.maxSize)
	}
	return &http.Client{Timeout: posterTimeout}
}

// extractMimeType はContent-Typeヘッダーからメディアタイプを抽出する。
func extractMimeType(contentType string) string {
	if contentType == "" {
		return ""
	}
	// セミコロンの前の部分（charset等を除去）
	parts := strings.SplitN(contentType, ";", 2)
	return strings.TrimSpace(strings.ToLower(parts[0]))
}

// isImageMime はMIMEタイプが画像かどうかを判定する。
func isImageMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

// compile-time interface check
var _ PosterFetcherService = (*PosterFetcher)(nil)
