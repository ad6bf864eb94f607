package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/cinelog/internal/metrics"
	"github.com/hitoshi/cinelog/internal/middleware"
)

// DBPinger はヘルスチェックでのDB疎通確認に必要な最小インターフェース。
// *sql.DB がこれを満たす。
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Collector         metrics.MetricsCollector

	// 映画サービス
	MovieService MovieServiceInterface

	// 運用エンドポイント
	DB       DBPinger
	Gatherer prometheus.Gatherer
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging → RateLimit(General)
//
// /health と /metrics はレート制限の外に配置する（監視系からのスクレイプを妨げない）。
// プロバイダAPIを呼び出すルート（POST /add、GET /find_movie）には検索専用の
// より厳しいレート制限を追加で適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Collector))

	// --- 運用エンドポイント（レート制限の外） ---
	r.Get("/health", newHealthHandler(deps.DB))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- ワークフローエンドポイント ---
	movieHandler := NewMovieHandler(deps.MovieService)

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/", movieHandler.ListMovies)

		// 映画追加フロー
		r.Get("/add", movieHandler.ShowAddForm)
		r.With(deps.RateLimiter.SearchMiddleware()).Post("/add", movieHandler.SearchMovies)
		r.With(deps.RateLimiter.SearchMiddleware()).Get("/find_movie", movieHandler.AddMovie)

		// 評価・レビュー更新
		r.Get("/edit", movieHandler.ShowEditForm)
		r.Post("/edit", movieHandler.UpdateMovie)

		// 削除（GETは既存のルート形状との互換のため残す）
		r.Get("/delete", movieHandler.DeleteMovie)
		r.Post("/delete", movieHandler.DeleteMovie)

		// ポスター画像
		r.Get("/poster/{id}", movieHandler.GetPoster)
	})

	return r
}

// healthResponse はヘルスチェックのレスポンス。
type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// newHealthHandler はDB疎通を含むヘルスチェックハンドラーを返す。
func newHealthHandler(db DBPinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				slog.Error("ヘルスチェックでDB疎通に失敗しました", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, healthResponse{
					Status:   "unhealthy",
					Database: "unreachable",
				})
				return
			}
		}

		writeJSON(w, http.StatusOK, healthResponse{
			Status:   "ok",
			Database: "ok",
		})
	}
}
