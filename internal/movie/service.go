// Package movie は映画の登録・評価・ランキングのドメインロジックを提供する。
package movie

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/cinelog/internal/metrics"
	"github.com/hitoshi/cinelog/internal/model"
	"github.com/hitoshi/cinelog/internal/repository"
	"github.com/hitoshi/cinelog/internal/security"
	"github.com/hitoshi/cinelog/internal/tmdb"
)

// Provider は映画情報プロバイダのインターフェース。
// テスタビリティのためtmdb.Clientを抽象化する。
type Provider interface {
	Search(ctx context.Context, title string) ([]tmdb.Candidate, error)
	FetchDetails(ctx context.Context, id int64) (*tmdb.Detail, error)
}

// MovieService は映画の登録・評価・削除・ランキング再計算を統括するサービス層。
// 検索 → 詳細取得 → 登録 → ポスター取得 → ランキング再計算のフローを持つ。
type MovieService struct {
	repo          repository.MovieRepository
	posterRepo    repository.PosterRepository
	provider      Provider
	sanitizer     security.TextSanitizerService
	posterFetcher PosterFetcherService
	metrics       metrics.MetricsCollector
	imgBaseURL    string
}

// NewMovieService はMovieServiceの新しいインスタンスを生成する。
func NewMovieService(
	repo repository.MovieRepository,
	posterRepo repository.PosterRepository,
	provider Provider,
	sanitizer security.TextSanitizerService,
	posterFetcher PosterFetcherService,
	collector metrics.MetricsCollector,
	imgBaseURL string,
) *MovieService {
	return &MovieService{
		repo:          repo,
		posterRepo:    posterRepo,
		provider:      provider,
		sanitizer:     sanitizer,
		posterFetcher: posterFetcher,
		metrics:       collector,
		imgBaseURL:    imgBaseURL,
	}
}

// ListMovies はランキング降順（カウントダウン表示順）で全映画を返す。
func (s *MovieService) ListMovies(ctx context.Context) ([]*model.Movie, error) {
	movies, err := s.repo.ListOrderedByRanking(ctx)
	if err != nil {
		return nil, fmt.Errorf("映画一覧の取得に失敗しました: %w", err)
	}
	return movies, nil
}

// SearchCandidates はタイトルでプロバイダを検索し、候補リストを返す。
// 0件は空スライス（正常系）。
func (s *MovieService) SearchCandidates(ctx context.Context, title string) ([]tmdb.Candidate, error) {
	return s.provider.Search(ctx, title)
}

// GetMovie は映画をIDで取得する。存在しない場合はMOVIE_NOT_FOUNDを返す。
func (s *MovieService) GetMovie(ctx context.Context, id int64) (*model.Movie, error) {
	movie, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("映画の取得に失敗しました: %w", err)
	}
	if movie == nil {
		return nil, model.NewMovieNotFoundError(id)
	}
	return movie, nil
}

// AddFromProvider は外部IDで詳細を取得し、映画を登録する。
// フロー: 詳細取得 → タイトル重複チェック → 登録 → ポスター取得（失敗は非致命） → ランキング再計算。
// 登録される映画のIDはプロバイダの外部IDをそのまま使用する。
// 評価・レビューは未入力の初期値（0.0 / 空文字列）で作成される。
func (s *MovieService) AddFromProvider(ctx context.Context, externalID int64) (*model.Movie, error) {
	// 1. プロバイダから詳細取得
	detail, err := s.provider.FetchDetails(ctx, externalID)
	if err != nil {
		return nil, err
	}

	// 2. タイトル重複の事前チェック
	existing, err := s.repo.FindByTitle(ctx, detail.Title)
	if err != nil {
		return nil, fmt.Errorf("映画の検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateTitleError(detail.Title)
	}

	// 3. Movieの構築
	now := time.Now()
	movie := &model.Movie{
		ID:          detail.ID,
		Title:       truncateRunes(detail.Title, model.MaxTextLength),
		Year:        parseReleaseYear(detail.ReleaseDate),
		Description: truncateRunes(s.sanitizer.Sanitize(detail.Overview), model.MaxTextLength),
		Rating:      0.0,
		Ranking:     0,
		Review:      "",
		ImgURL:      s.buildPosterURL(detail.PosterPath),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, movie); err != nil {
		return nil, err
	}
	s.metrics.RecordMovieCreated()

	// 4. ポスター取得（失敗してもエラーにしない）
	s.fetchAndSavePoster(ctx, movie)

	// 5. ランキング再計算
	if _, err := s.RecomputeRankings(ctx); err != nil {
		return nil, err
	}

	return movie, nil
}

// UpdateReview は評価とレビューを更新し、ランキングを再計算する。
// 他のフィールドは変更しない。存在しない場合はMOVIE_NOT_FOUNDを返す。
func (s *MovieService) UpdateReview(ctx context.Context, id int64, rating float64, review string) (*model.Movie, error) {
	movie, err := s.GetMovie(ctx, id)
	if err != nil {
		return nil, err
	}

	clean := truncateRunes(s.sanitizer.Sanitize(review), model.MaxTextLength)
	if err := s.repo.UpdateReview(ctx, id, rating, clean); err != nil {
		return nil, fmt.Errorf("評価の更新に失敗しました: %w", err)
	}

	if _, err := s.RecomputeRankings(ctx); err != nil {
		return nil, err
	}

	movie.Rating = rating
	movie.Review = clean
	return movie, nil
}

// DeleteMovie は映画を削除し、ランキングを再計算する。
// 存在しない場合はMOVIE_NOT_FOUNDを返す。
func (s *MovieService) DeleteMovie(ctx context.Context, id int64) error {
	if _, err := s.GetMovie(ctx, id); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("映画の削除に失敗しました: %w", err)
	}

	if _, err := s.RecomputeRankings(ctx); err != nil {
		return err
	}

	return nil
}

// RecomputeRankings は現在の評価に基づいて全映画のランキングを再計算する。
// 評価の昇順（同値はID昇順）で並べ、N件中i番目の行に ranking = N - i を
// 割り当てる（最高評価の映画がランキング1位になる）。
// 冪等: 評価が変わらない限り再実行しても結果は同じで、値が変わる行だけを更新する。
// 戻り値は実際に更新した行数。
func (s *MovieService) RecomputeRankings(ctx context.Context) (int, error) {
	movies, err := s.repo.ListOrderedByRating(ctx)
	if err != nil {
		return 0, fmt.Errorf("ランキング再計算用の一覧取得に失敗しました: %w", err)
	}

	total := len(movies)
	updated := 0
	for i, m := range movies {
		newRank := total - i
		if m.Ranking == newRank {
			continue
		}
		if err := s.repo.UpdateRanking(ctx, m.ID, newRank); err != nil {
			return updated, fmt.Errorf("ランキングの更新に失敗しました: %w", err)
		}
		updated++
	}

	if updated > 0 {
		s.metrics.RecordRankingsRecomputed(updated)
	}
	return updated, nil
}

// GetPoster はキャッシュ済みのポスター画像を返す。
// 映画が存在しない場合はMOVIE_NOT_FOUND、ポスター未キャッシュの場合は
// POSTER_NOT_FOUNDを返す。
func (s *MovieService) GetPoster(ctx context.Context, id int64) ([]byte, string, error) {
	if _, err := s.GetMovie(ctx, id); err != nil {
		return nil, "", err
	}

	data, mimeType, err := s.posterRepo.GetPoster(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("ポスターの取得に失敗しました: %w", err)
	}
	if data == nil {
		return nil, "", model.NewPosterNotFoundError(id)
	}
	return data, mimeType, nil
}

// fetchAndSavePoster は映画のポスター画像を取得して保存する。
// 取得失敗時はログ出力のみで、エラーを返さない。
func (s *MovieService) fetchAndSavePoster(ctx context.Context, movie *model.Movie) {
	if s.posterFetcher == nil || movie.ImgURL == "" {
		return
	}

	data, mimeType, err := s.posterFetcher.FetchPoster(ctx, movie.ImgURL)
	if err != nil {
		slog.Warn("ポスター取得エラー", "movieID", movie.ID, "url", movie.ImgURL, "error", err)
		return
	}

	if data == nil {
		slog.Info("ポスター未取得（nullとして保存）", "movieID", movie.ID, "url", movie.ImgURL)
		return
	}

	if err := s.posterRepo.UpdatePoster(ctx, movie.ID, data, mimeType); err != nil {
		slog.Warn("ポスター保存エラー", "movieID", movie.ID, "error", err)
		return
	}

	movie.PosterData = data
	movie.PosterMime = mimeType
	s.metrics.RecordPosterCached()
	slog.Info("ポスター保存完了", "movieID", movie.ID, "mimeType", mimeType, "size", len(data))
}

// buildPosterURL はプロバイダのposter_pathから画像URLを組み立てる。
func (s *MovieService) buildPosterURL(posterPath string) string {
	if posterPath == "" {
		return ""
	}
	return strings.TrimSuffix(s.imgBaseURL, "/") + posterPath
}

// parseReleaseYear は公開日（YYYY-MM-DD形式）から年を取り出す。
// パースできない場合は0を返す。
func parseReleaseYear(releaseDate string) int {
	if len(releaseDate) < 4 {
		return 0
	}
	year, err := strconv.Atoi(releaseDate[:4])
	if err != nil {
		return 0
	}
	return year
}

// truncateRunes は文字列を最大n文字（rune単位）に切り詰める。
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
