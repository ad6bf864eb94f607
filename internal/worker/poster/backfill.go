// Package poster はポスター画像のバックフィルジョブを提供する。
package poster

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/cinelog/internal/metrics"
	"github.com/hitoshi/cinelog/internal/repository"
)

// PosterFetcher はポスター画像取得のインターフェース。
// テスト時にモックに差し替え可能。
type PosterFetcher interface {
	FetchPoster(ctx context.Context, posterURL string) (data []byte, mimeType string, err error)
}

// BackfillConfig はバックフィルジョブの設定パラメータ。
// 環境変数から設定可能。
type BackfillConfig struct {
	// Interval はバックフィルサイクルの実行間隔（デフォルト: 10分）。
	Interval time.Duration
	// FetchInterval は画像取得の最低間隔（デフォルト: 1秒）。
	FetchInterval time.Duration
	// MaxPerCycle は1サイクルあたりの最大取得件数（デフォルト: 20）。
	MaxPerCycle int
}

// DefaultBackfillConfig はデフォルトのバックフィルジョブ設定を返す。
func DefaultBackfillConfig() BackfillConfig {
	return BackfillConfig{
		Interval:      10 * time.Minute,
		FetchInterval: 1 * time.Second,
		MaxPerCycle:   20,
	}
}

// BackfillJob はポスター画像のバックフィルジョブ。
// 登録時に取得できなかった（poster_dataがNULLの）映画を対象に
// 定期的にポスター画像を取得してローカルキャッシュを埋める。
type BackfillJob struct {
	posterRepo        repository.PosterRepository
	fetcher           PosterFetcher
	logger            *slog.Logger
	collector         metrics.MetricsCollector
	config            BackfillConfig
	consecutiveErrors int
	backoffUntil      time.Time
}

// NewBackfillJob はBackfillJobの新しいインスタンスを生成する。
func NewBackfillJob(
	posterRepo repository.PosterRepository,
	fetcher PosterFetcher,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
	config BackfillConfig,
) *BackfillJob {
	return &BackfillJob{
		posterRepo: posterRepo,
		fetcher:    fetcher,
		logger:     logger,
		collector:  collector,
		config:     config,
	}
}

// Start はバックフィルジョブをティッカーで定期実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (b *BackfillJob) Start(ctx context.Context) {
	ticker := time.NewTicker(b.config.Interval)
	defer ticker.Stop()

	b.logger.Info("ポスターバックフィルジョブを開始しました",
		slog.Duration("interval", b.config.Interval),
		slog.Duration("fetch_interval", b.config.FetchInterval),
		slog.Int("max_per_cycle", b.config.MaxPerCycle),
	)

	// 起動直後に1回実行
	if err := b.RunOnce(ctx); err != nil {
		b.logger.Error("ポスターバックフィルサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("ポスターバックフィルジョブを停止しました")
			return
		case <-ticker.C:
			if err := b.RunOnce(ctx); err != nil {
				b.logger.Error("ポスターバックフィルサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は1回のバックフィルサイクルを実行する。
// 未キャッシュの映画を取得し、1件ずつポスター画像を取得して保存する。
func (b *BackfillJob) RunOnce(ctx context.Context) error {
	start := time.Now()

	// バックオフ中の場合はスキップ
	if !b.backoffUntil.IsZero() && time.Now().Before(b.backoffUntil) {
		b.logger.Info("ポスターバックフィルジョブはバックオフ中のためスキップします",
			slog.Time("backoff_until", b.backoffUntil),
		)
		return nil
	}

	movies, err := b.posterRepo.ListMissingPoster(ctx, b.config.MaxPerCycle)
	if err != nil {
		return fmt.Errorf("ポスター未取得映画の取得に失敗しました: %w", err)
	}

	if len(movies) == 0 {
		b.logger.Info("ポスター取得対象の映画はありません")
		return nil
	}

	b.logger.Info("ポスターバックフィルサイクルを開始します",
		slog.Int("target_movies", len(movies)),
	)

	var fetchedCount int
	var hadError bool

	for i, movie := range movies {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// 画像URLを持たない映画はスキップ
		if movie.ImgURL == "" {
			continue
		}

		// 取得インターバル（初回は待たない）
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.config.FetchInterval):
			}
		}

		data, mimeType, err := b.fetcher.FetchPoster(ctx, movie.ImgURL)
		if err != nil {
			b.logger.Error("ポスター画像の取得に失敗しました",
				slog.Int64("movie_id", movie.ID),
				slog.String("img_url", movie.ImgURL),
				slog.String("error", err.Error()),
			)
			hadError = true
			b.consecutiveErrors++
			// バックオフ判定
			backoff := b.calculateErrorBackoff(b.consecutiveErrors)
			if backoff > 0 {
				b.backoffUntil = time.Now().Add(backoff)
				b.logger.Warn("連続エラーによりバックオフを適用します",
					slog.Int("consecutive_errors", b.consecutiveErrors),
					slog.Duration("backoff_duration", backoff),
				)
				break
			}
			continue
		}

		// SSRFブロックやサイズ超過などの非致命的な取得不可はnilデータで返る。
		// このサイクルではスキップし、次サイクルで再試行する。
		if data == nil {
			b.logger.Warn("ポスター画像を取得できませんでした",
				slog.Int64("movie_id", movie.ID),
				slog.String("img_url", movie.ImgURL),
			)
			continue
		}

		if err := b.posterRepo.UpdatePoster(ctx, movie.ID, data, mimeType); err != nil {
			b.logger.Error("ポスター画像の保存に失敗しました",
				slog.Int64("movie_id", movie.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		fetchedCount++
		if b.collector != nil {
			b.collector.RecordPosterCached()
		}
	}

	// エラーがなければ連続エラーカウントをリセット
	if !hadError {
		b.consecutiveErrors = 0
		b.backoffUntil = time.Time{}
	}

	duration := time.Since(start)
	b.logger.Info("ポスターバックフィルサイクルが完了しました",
		slog.Int("fetched_posters", fetchedCount),
		slog.Int("target_movies", len(movies)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// calculateErrorBackoff は連続エラー回数に基づくバックオフ時間を計算する。
// 3回連続: 30分、5回連続: 1時間、10回連続: 6時間。
func (b *BackfillJob) calculateErrorBackoff(consecutiveErrors int) time.Duration {
	switch {
	case consecutiveErrors >= 10:
		return 6 * time.Hour
	case consecutiveErrors >= 5:
		return 1 * time.Hour
	case consecutiveErrors >= 3:
		return 30 * time.Minute
	default:
		return 0
	}
}
