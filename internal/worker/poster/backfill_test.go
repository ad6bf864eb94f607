package poster

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/cinelog/internal/metrics"
	"github.com/hitoshi/cinelog/internal/model"
)

// --- モック定義 ---

// mockPosterRepo はバックフィルジョブ用のPosterRepositoryモック。
type mockPosterRepo struct {
	mu                    sync.Mutex
	listMissingPosterFunc func(ctx context.Context, limit int) ([]*model.Movie, error)
	updatePosterFunc      func(ctx context.Context, id int64, data []byte, mimeType string) error
	updated               map[int64][]byte
}

func (m *mockPosterRepo) GetPoster(ctx context.Context, id int64) ([]byte, string, error) {
	return nil, "", nil
}

func (m *mockPosterRepo) ListMissingPoster(ctx context.Context, limit int) ([]*model.Movie, error) {
	if m.listMissingPosterFunc != nil {
		return m.listMissingPosterFunc(ctx, limit)
	}
	return nil, nil
}

func (m *mockPosterRepo) UpdatePoster(ctx context.Context, id int64, data []byte, mimeType string) error {
	if m.updatePosterFunc != nil {
		return m.updatePosterFunc(ctx, id, data, mimeType)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updated == nil {
		m.updated = make(map[int64][]byte)
	}
	m.updated[id] = data
	return nil
}

// mockFetcher はPosterFetcherのモック。
type mockFetcher struct {
	fetchFunc func(ctx context.Context, posterURL string) ([]byte, string, error)
	calls     int
}

func (m *mockFetcher) FetchPoster(ctx context.Context, posterURL string) ([]byte, string, error) {
	m.calls++
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, posterURL)
	}
	return []byte{0xFF, 0xD8}, "image/jpeg", nil
}

// --- テストヘルパー ---

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func fastConfig() BackfillConfig {
	return BackfillConfig{
		Interval:      10 * time.Minute,
		FetchInterval: 1 * time.Millisecond,
		MaxPerCycle:   20,
	}
}

func missingMovie(id int64, imgURL string) *model.Movie {
	return &model.Movie{ID: id, Title: "テスト映画", ImgURL: imgURL}
}

// --- BackfillJob のテスト ---

func TestNewBackfillJob_ReturnsNonNil(t *testing.T) {
	var buf bytes.Buffer
	job := NewBackfillJob(&mockPosterRepo{}, &mockFetcher{}, newTestLogger(&buf), nil, DefaultBackfillConfig())
	if job == nil {
		t.Fatal("NewBackfillJob は nil を返してはならない")
	}
}

func TestDefaultBackfillConfig(t *testing.T) {
	cfg := DefaultBackfillConfig()

	if cfg.Interval != 10*time.Minute {
		t.Errorf("Interval = %v, want 10m", cfg.Interval)
	}
	if cfg.FetchInterval != 1*time.Second {
		t.Errorf("FetchInterval = %v, want 1s", cfg.FetchInterval)
	}
	if cfg.MaxPerCycle != 20 {
		t.Errorf("MaxPerCycle = %d, want 20", cfg.MaxPerCycle)
	}
}

func TestBackfillJob_RunOnce_NoMovies(t *testing.T) {
	var buf bytes.Buffer
	fetcher := &mockFetcher{}
	job := NewBackfillJob(&mockPosterRepo{}, fetcher, newTestLogger(&buf), nil, fastConfig())

	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce がエラーを返した: %v", err)
	}
	if fetcher.calls != 0 {
		t.Errorf("対象なしの場合は取得が呼ばれるべきではない: calls = %d", fetcher.calls)
	}
}

func TestBackfillJob_RunOnce_FetchesAndSaves(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockPosterRepo{
		listMissingPosterFunc: func(ctx context.Context, limit int) ([]*model.Movie, error) {
			return []*model.Movie{
				missingMovie(1, "https://image.tmdb.org/t/p/w500/a.jpg"),
				missingMovie(2, "https://image.tmdb.org/t/p/w500/b.jpg"),
			}, nil
		},
	}
	fetcher := &mockFetcher{}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	job := NewBackfillJob(repo, fetcher, newTestLogger(&buf), collector, fastConfig())
	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce がエラーを返した: %v", err)
	}

	if fetcher.calls != 2 {
		t.Errorf("fetcher.calls = %d, want 2", fetcher.calls)
	}
	if len(repo.updated) != 2 {
		t.Errorf("保存件数 = %d, want 2", len(repo.updated))
	}

	// ポスターキャッシュメトリクスが記録されること
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather に失敗: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "cinelog_posters_cached_total" {
			found = true
			if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 2 {
				t.Errorf("cinelog_posters_cached_total = %v, want 2", got)
			}
		}
	}
	if !found {
		t.Error("cinelog_posters_cached_total が記録されるべき")
	}
}

func TestBackfillJob_RunOnce_SkipsEmptyImgURL(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockPosterRepo{
		listMissingPosterFunc: func(ctx context.Context, limit int) ([]*model.Movie, error) {
			return []*model.Movie{
				missingMovie(1, ""),
				missingMovie(2, "https://image.tmdb.org/t/p/w500/b.jpg"),
			}, nil
		},
	}
	fetcher := &mockFetcher{}

	job := NewBackfillJob(repo, fetcher, newTestLogger(&buf), nil, fastConfig())
	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce がエラーを返した: %v", err)
	}

	if fetcher.calls != 1 {
		t.Errorf("画像URLなしの映画はスキップされるべき: calls = %d", fetcher.calls)
	}
}

func TestBackfillJob_RunOnce_NilDataIsNotSaved(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockPosterRepo{
		listMissingPosterFunc: func(ctx context.Context, limit int) ([]*model.Movie, error) {
			return []*model.Movie{missingMovie(1, "https://blocked.example.com/a.jpg")}, nil
		},
	}
	// SSRFブロックなどの非致命的な取得不可はnilデータ・nilエラー
	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, posterURL string) ([]byte, string, error) {
			return nil, "", nil
		},
	}

	job := NewBackfillJob(repo, fetcher, newTestLogger(&buf), nil, fastConfig())
	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce がエラーを返した: %v", err)
	}

	if len(repo.updated) != 0 {
		t.Errorf("nilデータは保存されるべきではない: %v", repo.updated)
	}
}

func TestBackfillJob_RunOnce_ListError(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockPosterRepo{
		listMissingPosterFunc: func(ctx context.Context, limit int) ([]*model.Movie, error) {
			return nil, errors.New("db failure")
		},
	}

	job := NewBackfillJob(repo, &mockFetcher{}, newTestLogger(&buf), nil, fastConfig())
	if err := job.RunOnce(context.Background()); err == nil {
		t.Fatal("一覧取得失敗時はエラーを返すべき")
	}
}

func TestBackfillJob_RunOnce_FetchErrorContinues(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockPosterRepo{
		listMissingPosterFunc: func(ctx context.Context, limit int) ([]*model.Movie, error) {
			return []*model.Movie{
				missingMovie(1, "https://image.tmdb.org/t/p/w500/a.jpg"),
				missingMovie(2, "https://image.tmdb.org/t/p/w500/b.jpg"),
			}, nil
		},
	}
	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, posterURL string) ([]byte, string, error) {
			if posterURL == "https://image.tmdb.org/t/p/w500/a.jpg" {
				return nil, "", errors.New("timeout")
			}
			return []byte{0xFF, 0xD8}, "image/jpeg", nil
		},
	}

	job := NewBackfillJob(repo, fetcher, newTestLogger(&buf), nil, fastConfig())
	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("個別の取得失敗でサイクル全体が失敗すべきではない: %v", err)
	}

	// 失敗した1件をスキップし、残りは保存される
	if len(repo.updated) != 1 {
		t.Errorf("保存件数 = %d, want 1", len(repo.updated))
	}
	if _, ok := repo.updated[2]; !ok {
		t.Error("映画ID 2 のポスターが保存されるべき")
	}
}

func TestBackfillJob_RunOnce_BackoffAfterConsecutiveErrors(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockPosterRepo{
		listMissingPosterFunc: func(ctx context.Context, limit int) ([]*model.Movie, error) {
			return []*model.Movie{
				missingMovie(1, "https://image.tmdb.org/t/p/w500/a.jpg"),
				missingMovie(2, "https://image.tmdb.org/t/p/w500/b.jpg"),
				missingMovie(3, "https://image.tmdb.org/t/p/w500/c.jpg"),
				missingMovie(4, "https://image.tmdb.org/t/p/w500/d.jpg"),
			}, nil
		},
	}
	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, posterURL string) ([]byte, string, error) {
			return nil, "", errors.New("upstream down")
		},
	}

	job := NewBackfillJob(repo, fetcher, newTestLogger(&buf), nil, fastConfig())
	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce がエラーを返した: %v", err)
	}

	// 3連続エラーでバックオフに入り、4件目は試行されない
	if fetcher.calls != 3 {
		t.Errorf("fetcher.calls = %d, want 3", fetcher.calls)
	}
	if job.backoffUntil.IsZero() {
		t.Error("連続エラー後はバックオフが設定されるべき")
	}

	// バックオフ中のサイクルはスキップされる
	fetcher.calls = 0
	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce がエラーを返した: %v", err)
	}
	if fetcher.calls != 0 {
		t.Errorf("バックオフ中は取得が呼ばれるべきではない: calls = %d", fetcher.calls)
	}
}

func TestBackfillJob_RunOnce_SuccessResetsErrorCount(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockPosterRepo{
		listMissingPosterFunc: func(ctx context.Context, limit int) ([]*model.Movie, error) {
			return []*model.Movie{missingMovie(1, "https://image.tmdb.org/t/p/w500/a.jpg")}, nil
		},
	}

	job := NewBackfillJob(repo, &mockFetcher{}, newTestLogger(&buf), nil, fastConfig())
	job.consecutiveErrors = 2

	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce がエラーを返した: %v", err)
	}
	if job.consecutiveErrors != 0 {
		t.Errorf("成功サイクル後は連続エラーカウントがリセットされるべき: %d", job.consecutiveErrors)
	}
}

func TestBackfillJob_RunOnce_ContextCancelled(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockPosterRepo{
		listMissingPosterFunc: func(ctx context.Context, limit int) ([]*model.Movie, error) {
			return []*model.Movie{
				missingMovie(1, "https://image.tmdb.org/t/p/w500/a.jpg"),
				missingMovie(2, "https://image.tmdb.org/t/p/w500/b.jpg"),
			}, nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, posterURL string) ([]byte, string, error) {
			cancel() // 1件目の取得後にキャンセル
			return []byte{0xFF, 0xD8}, "image/jpeg", nil
		},
	}

	job := NewBackfillJob(repo, fetcher, newTestLogger(&buf), nil, fastConfig())
	err := job.RunOnce(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("キャンセル時はcontext.Canceledを返すべき: %v", err)
	}
}

func TestBackfillJob_Start_StopsOnContextCancel(t *testing.T) {
	var buf bytes.Buffer
	job := NewBackfillJob(&mockPosterRepo{}, &mockFetcher{}, newTestLogger(&buf), nil, fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("コンテキストキャンセル後にStartが停止すべき")
	}
}

func TestBackfillJob_CalculateErrorBackoff(t *testing.T) {
	var buf bytes.Buffer
	job := NewBackfillJob(&mockPosterRepo{}, &mockFetcher{}, newTestLogger(&buf), nil, DefaultBackfillConfig())

	tests := []struct {
		errors int
		want   time.Duration
	}{
		{0, 0},
		{2, 0},
		{3, 30 * time.Minute},
		{5, 1 * time.Hour},
		{10, 6 * time.Hour},
	}
	for _, tt := range tests {
		if got := job.calculateErrorBackoff(tt.errors); got != tt.want {
			t.Errorf("calculateErrorBackoff(%d) = %v, want %v", tt.errors, got, tt.want)
		}
	}
}
