package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/cinelog/internal/model"
)

// movieColumns はmoviesテーブルのSELECT対象カラム。
const movieColumns = `id, title, year, description, rating, ranking, review, img_url, created_at, updated_at`

// SQLiteMovieRepo はSQLiteを使用した映画リポジトリ。
type SQLiteMovieRepo struct {
	db *sql.DB
}

// NewSQLiteMovieRepo はSQLiteMovieRepoを生成する。
func NewSQLiteMovieRepo(db *sql.DB) *SQLiteMovieRepo {
	return &SQLiteMovieRepo{db: db}
}

// ListOrderedByRanking は全映画をranking降順（同値はid昇順）で返す。
func (r *SQLiteMovieRepo) ListOrderedByRanking(ctx context.Context) ([]*model.Movie, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+movieColumns+` FROM movies ORDER BY ranking DESC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("映画一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanMovies(rows)
}

// ListOrderedByRating は全映画をrating昇順（同値はid昇順）で返す。
func (r *SQLiteMovieRepo) ListOrderedByRating(ctx context.Context) ([]*model.Movie, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+movieColumns+` FROM movies ORDER BY rating ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("評価順の映画一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanMovies(rows)
}

// FindByID は指定IDの映画を取得する。見つからない場合はnilを返す。
func (r *SQLiteMovieRepo) FindByID(ctx context.Context, id int64) (*model.Movie, error) {
	movie := &model.Movie{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+movieColumns+` FROM movies WHERE id = ?`,
		id,
	).Scan(
		&movie.ID, &movie.Title, &movie.Year, &movie.Description,
		&movie.Rating, &movie.Ranking, &movie.Review, &movie.ImgURL,
		&movie.CreatedAt, &movie.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("映画の取得に失敗しました: %w", err)
	}

	return movie, nil
}

// FindByTitle はタイトルで映画を検索する。見つからない場合はnilを返す。
func (r *SQLiteMovieRepo) FindByTitle(ctx context.Context, title string) (*model.Movie, error) {
	movie := &model.Movie{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+movieColumns+` FROM movies WHERE title = ?`,
		title,
	).Scan(
		&movie.ID, &movie.Title, &movie.Year, &movie.Description,
		&movie.Rating, &movie.Ranking, &movie.Review, &movie.ImgURL,
		&movie.CreatedAt, &movie.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("タイトルによる映画の検索に失敗しました: %w", err)
	}

	return movie, nil
}

// Create は映画を作成する。
// タイトルのUNIQUE制約違反はmodel.APIError（DUPLICATE_TITLE）に変換する。
func (r *SQLiteMovieRepo) Create(ctx context.Context, movie *model.Movie) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO movies (id, title, year, description, rating, ranking, review, img_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		movie.ID, movie.Title, movie.Year, movie.Description,
		movie.Rating, movie.Ranking, movie.Review, movie.ImgURL,
		movie.CreatedAt, movie.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.NewDuplicateTitleError(movie.Title)
		}
		return fmt.Errorf("映画の作成に失敗しました: %w", err)
	}
	return nil
}

// UpdateReview は評価とレビューのみを部分更新する。
func (r *SQLiteMovieRepo) UpdateReview(ctx context.Context, id int64, rating float64, review string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE movies SET rating = ?, review = ?, updated_at = ? WHERE id = ?`,
		rating, review, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("評価とレビューの更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateRanking は派生フィールドであるrankingのみを更新する。
// updated_atは変更しない（rankingは読み取り順序のキャッシュであり内容の更新ではない）。
func (r *SQLiteMovieRepo) UpdateRanking(ctx context.Context, id int64, rank int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE movies SET ranking = ? WHERE id = ?`,
		rank, id,
	)
	if err != nil {
		return fmt.Errorf("ランキングの更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDの映画を削除する。
func (r *SQLiteMovieRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM movies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("映画の削除に失敗しました: %w", err)
	}
	return nil
}

// GetPoster は指定映画のキャッシュ済みポスター画像を返す。
func (r *SQLiteMovieRepo) GetPoster(ctx context.Context, id int64) ([]byte, string, error) {
	var data []byte
	var mime sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT poster_data, poster_mime FROM movies WHERE id = ?`,
		id,
	).Scan(&data, &mime)

	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("ポスター画像の取得に失敗しました: %w", err)
	}

	return data, mime.String, nil
}

// UpdatePoster はポスター画像データとMIMEタイプを更新する。
func (r *SQLiteMovieRepo) UpdatePoster(ctx context.Context, id int64, data []byte, mimeType string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE movies SET poster_data = ?, poster_mime = ? WHERE id = ?`,
		data, mimeType, id,
	)
	if err != nil {
		return fmt.Errorf("ポスター画像の更新に失敗しました: %w", err)
	}
	return nil
}

// ListMissingPoster はposter_dataが未取得の映画をid昇順で最大limit件返す。
func (r *SQLiteMovieRepo) ListMissingPoster(ctx context.Context, limit int) ([]*model.Movie, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+movieColumns+` FROM movies WHERE poster_data IS NULL ORDER BY id ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ポスター未取得の映画一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanMovies(rows)
}

// scanMovies は行セットをMovieスライスに変換する。
func scanMovies(rows *sql.Rows) ([]*model.Movie, error) {
	var movies []*model.Movie
	for rows.Next() {
		movie := &model.Movie{}
		if err := rows.Scan(
			&movie.ID, &movie.Title, &movie.Year, &movie.Description,
			&movie.Rating, &movie.Ranking, &movie.Review, &movie.ImgURL,
			&movie.CreatedAt, &movie.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("映画行の読み取りに失敗しました: %w", err)
		}
		movies = append(movies, movie)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("映画一覧の走査に失敗しました: %w", err)
	}

	return movies, nil
}

// isUniqueViolation はSQLiteのUNIQUE制約違反かどうかを判定する。
// modern-c/sqliteはエラーメッセージに"UNIQUE constraint failed"を含める。
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// compile-time interface check
var _ MovieRepository = (*SQLiteMovieRepo)(nil)
var _ PosterRepository = (*SQLiteMovieRepo)(nil)
