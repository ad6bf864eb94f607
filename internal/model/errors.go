// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string            // エラーコード
	Message  string            // エラーメッセージ
	Category string            // カテゴリ: validation, movie, upstream, system
	Action   string            // ユーザー向け対処方法
	Fields   map[string]string // フィールド別のバリデーションエラー（validationのみ）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMovieNotFound    = "MOVIE_NOT_FOUND"
	ErrCodeDuplicateTitle   = "DUPLICATE_TITLE"
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeInvalidRating    = "INVALID_RATING"
	ErrCodeMissingParameter = "MISSING_PARAMETER"
	ErrCodeInvalidParameter = "INVALID_PARAMETER"
	ErrCodeUpstream         = "UPSTREAM_ERROR"
	ErrCodePosterNotFound   = "POSTER_NOT_FOUND"
)

// NewMovieNotFoundError は映画未検出エラーを生成する。
func NewMovieNotFoundError(movieID int64) *APIError {
	return &APIError{
		Code:     ErrCodeMovieNotFound,
		Message:  fmt.Sprintf("指定された映画が見つかりません: %d", movieID),
		Category: "movie",
		Action:   "映画IDを確認してください。",
	}
}

// NewDuplicateTitleError はタイトル重複エラーを生成する。
// titleにはUNIQUE制約があり、同一タイトルの映画は登録できない。
func NewDuplicateTitleError(title string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateTitle,
		Message:  fmt.Sprintf("同じタイトルの映画が既に登録されています: %s", title),
		Category: "movie",
		Action:   "登録済みの一覧を確認してください。",
	}
}

// NewValidationError はフォームバリデーションエラーを生成する。
// fieldsにはフィールド名からエラーメッセージへのマップを渡す。
func NewValidationError(fields map[string]string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  "入力内容に誤りがあります。",
		Category: "validation",
		Action:   "各フィールドのエラーを確認して再入力してください。",
		Fields:   fields,
	}
}

// NewInvalidRatingError は評価値が数値として解釈できない場合のエラーを生成する。
func NewInvalidRatingError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRating,
		Message:  fmt.Sprintf("評価は数値で入力してください: %q", raw),
		Category: "validation",
		Action:   "0から10の数値（例: 8.5）を入力してください。",
	}
}

// NewMissingParameterError は必須クエリパラメータが欠落している場合のエラーを生成する。
func NewMissingParameterError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingParameter,
		Message:  fmt.Sprintf("必須パラメータが指定されていません: %s", name),
		Category: "validation",
		Action:   fmt.Sprintf("クエリパラメータ %s を指定してください。", name),
	}
}

// NewInvalidParameterError はパラメータの形式が不正な場合のエラーを生成する。
func NewInvalidParameterError(name, value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidParameter,
		Message:  fmt.Sprintf("パラメータ %s の値が不正です: %q", name, value),
		Category: "validation",
		Action:   fmt.Sprintf("パラメータ %s には整数のIDを指定してください。", name),
	}
}

// NewUpstreamError はメタデータプロバイダ呼び出し失敗のエラーを生成する。
// トランスポート障害、非2xx応答、JSONパース失敗を区別せず同一コードで扱う。
func NewUpstreamError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstream,
		Message:  fmt.Sprintf("映画情報プロバイダの呼び出しに失敗しました: %s", reason),
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUpstreamShapeError はプロバイダ応答に必須フィールドが欠落している場合のエラーを生成する。
func NewUpstreamShapeError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstream,
		Message:  fmt.Sprintf("映画情報プロバイダの応答に必須フィールドがありません: %s", field),
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewPosterNotFoundError はポスター画像が未キャッシュの場合のエラーを生成する。
func NewPosterNotFoundError(movieID int64) *APIError {
	return &APIError{
		Code:     ErrCodePosterNotFound,
		Message:  fmt.Sprintf("指定された映画のポスター画像がありません: %d", movieID),
		Category: "movie",
		Action:   "ポスターは登録後のバックグラウンド取得をお待ちください。",
	}
}
