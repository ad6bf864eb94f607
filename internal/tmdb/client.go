// Package tmdb はTMDB（The Movie Database）API連携機能を提供する。
// タイトルによる映画検索と、映画IDによる詳細取得を含む。
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/cinelog/internal/metrics"
	"github.com/hitoshi/cinelog/internal/model"
)

const (
	// defaultBaseURL はTMDB APIのベースURL。
	defaultBaseURL = "https://api.themoviedb.org/3"
	// opSearch / opDetail はメトリクスのoperationラベル。
	opSearch = "search"
	opDetail = "detail"
)

// Candidate は検索結果の候補映画。
// 選択画面の表示に必要な最小限のフィールドのみを持つ。
type Candidate struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"release_date"`
	Overview    string `json:"overview"`
}

// Detail は映画1件の詳細情報。
type Detail struct {
	ID          int64
	Title       string
	Overview    string
	ReleaseDate string
	PosterPath  string
}

// Client はTMDB APIのクライアント。
// Bearerトークン（v4 Read Access Token）で認証する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	token      string
	baseURL    string // テスト用にベースURLを差し替え可能
}

// NewClient はClient の新しいインスタンスを生成する。
// baseURLが空の場合は本番エンドポイントを使用する。
func NewClient(httpClient *http.Client, logger *slog.Logger, collector metrics.MetricsCollector, token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		metrics:    collector,
		token:      token,
		baseURL:    baseURL,
	}
}

// searchResponse は検索エンドポイントのレスポンス。
type searchResponse struct {
	Results []Candidate `json:"results"`
}

// detailResponse は詳細エンドポイントのレスポンス。
// 必須フィールドの欠落を検出するためポインタで受ける。
type detailResponse struct {
	ID          *int64  `json:"id"`
	Title       *string `json:"title"`
	Overview    *string `json:"overview"`
	ReleaseDate *string `json:"release_date"`
	PosterPath  *string `json:"poster_path"`
}

// Search はタイトルで映画を検索し、候補のリストを返す。
// 検索結果が0件の場合は空スライスを返す（エラーではない）。
// 呼び出し失敗時はUPSTREAM_ERRORのAPIErrorを返す。
func (c *Client) Search(ctx context.Context, title string) ([]Candidate, error) {
	start := time.Now()

	reqURL := fmt.Sprintf("%s/search/movie?query=%s", c.baseURL, url.QueryEscape(title))
	body, err := c.get(ctx, opSearch, reqURL)
	if err != nil {
		return nil, err
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		c.logger.Error("検索レスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		c.metrics.RecordUpstreamFailure(opSearch, "decode")
		return nil, model.NewUpstreamError("レスポンスJSONのパースに失敗しました")
	}

	c.metrics.RecordUpstreamSuccess(opSearch)
	c.metrics.RecordUpstreamLatency(time.Since(start))

	if result.Results == nil {
		return []Candidate{}, nil
	}
	return result.Results, nil
}

// FetchDetails は映画IDで詳細情報を取得する。
// 必須フィールド（id, title, overview, release_date, poster_path）が
// レスポンスに欠けている場合はUPSTREAM_ERRORを返す。
func (c *Client) FetchDetails(ctx context.Context, id int64) (*Detail, error) {
	start := time.Now()

	reqURL := fmt.Sprintf("%s/movie/%d", c.baseURL, id)
	body, err := c.get(ctx, opDetail, reqURL)
	if err != nil {
		return nil, err
	}

	var result detailResponse
	if err := json.Unmarshal(body, &result); err != nil {
		c.logger.Error("詳細レスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
			slog.Int64("movie_id", id),
		)
		c.metrics.RecordUpstreamFailure(opDetail, "decode")
		return nil, model.NewUpstreamError("レスポンスJSONのパースに失敗しました")
	}

	// 必須フィールドの欠落チェック
	for field, present := range map[string]bool{
		"id":           result.ID != nil,
		"title":        result.Title != nil,
		"overview":     result.Overview != nil,
		"release_date": result.ReleaseDate != nil,
		"poster_path":  result.PosterPath != nil,
	} {
		if !present {
			c.logger.Error("詳細レスポンスに必須フィールドがありません",
				slog.String("field", field),
				slog.Int64("movie_id", id),
			)
			c.metrics.RecordUpstreamFailure(opDetail, "shape")
			return nil, model.NewUpstreamShapeError(field)
		}
	}

	c.metrics.RecordUpstreamSuccess(opDetail)
	c.metrics.RecordUpstreamLatency(time.Since(start))

	return &Detail{
		ID:          *result.ID,
		Title:       *result.Title,
		Overview:    *result.Overview,
		ReleaseDate: *result.ReleaseDate,
		PosterPath:  *result.PosterPath,
	}, nil
}

// get はTMDB APIへのGETリクエストを実行し、レスポンスボディを返す。
// トランスポートエラーと非2xxステータスはUPSTREAM_ERRORに変換する。
func (c *Client) get(ctx context.Context, operation, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("TMDB APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("operation", operation),
		)
		c.metrics.RecordUpstreamFailure(operation, "transport")
		// コンテキストキャンセルを呼び出し元で判定できるよう元のエラーも連結する
		return nil, fmt.Errorf("%w: %w", model.NewUpstreamError("APIの呼び出しに失敗しました"), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.Error("TMDB APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("operation", operation),
		)
		c.metrics.RecordUpstreamFailure(operation, fmt.Sprintf("status_%d", resp.StatusCode))
		return nil, model.NewUpstreamError(fmt.Sprintf("APIがステータス %d を返しました", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("error", err.Error()),
			slog.String("operation", operation),
		)
		c.metrics.RecordUpstreamFailure(operation, "read")
		return nil, model.NewUpstreamError("レスポンスボディの読み取りに失敗しました")
	}

	return body, nil
}
