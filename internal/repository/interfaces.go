// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/cinelog/internal/model"
)

// MovieRepository は映画データの永続化インターフェース。
// 各操作は単一行の読み書きであり、トランザクションは使用しない。
type MovieRepository interface {
	// ListOrderedByRanking は全映画をranking降順（同値はid昇順）で返す。
	// 一覧表示用の並び順（カウントダウン形式で1位が最後に表示される）。
	ListOrderedByRanking(ctx context.Context) ([]*model.Movie, error)

	// ListOrderedByRating は全映画をrating昇順（同値はid昇順）で返す。
	// ランキング再計算の入力として使用する。
	ListOrderedByRating(ctx context.Context) ([]*model.Movie, error)

	// FindByID は指定IDの映画を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Movie, error)

	// FindByTitle はタイトルで映画を検索する。見つからない場合はnilを返す。
	// 登録前の重複チェックに使用する。
	FindByTitle(ctx context.Context, title string) (*model.Movie, error)

	// Create は映画を作成する。タイトルのUNIQUE制約違反はDuplicateTitleエラーになる。
	Create(ctx context.Context, movie *model.Movie) error

	// UpdateReview は評価とレビューのみを部分更新する。他のフィールドは変更しない。
	UpdateReview(ctx context.Context, id int64, rating float64, review string) error

	// UpdateRanking は派生フィールドであるrankingのみを更新する。
	UpdateRanking(ctx context.Context, id int64, rank int) error

	// Delete は指定IDの映画を削除する。
	Delete(ctx context.Context, id int64) error
}

// PosterRepository はポスター画像キャッシュのデータ操作インターフェース。
// ポスター取得バックフィルジョブと配信エンドポイントから使用する。
type PosterRepository interface {
	// GetPoster は指定映画のキャッシュ済みポスター画像を返す。
	// 未キャッシュ（poster_data IS NULL）の場合はnilデータと空MIMEを返す。
	GetPoster(ctx context.Context, id int64) (data []byte, mimeType string, err error)

	// UpdatePoster はポスター画像データとMIMEタイプを更新する。
	UpdatePoster(ctx context.Context, id int64, data []byte, mimeType string) error

	// ListMissingPoster はposter_dataが未取得の映画をid昇順で最大limit件返す。
	ListMissingPoster(ctx context.Context, limit int) ([]*model.Movie, error)
}
