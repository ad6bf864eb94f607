// Package model はドメインモデルを定義する。
package model

import "time"

// Movie は映画の評価レコードを表す。
// IDは外部メタデータプロバイダ（TMDB）の映画IDをそのまま主キーとして使用する。
type Movie struct {
	ID          int64
	Title       string
	Year        int
	Description string
	Rating      float64
	Ranking     int // 派生フィールド。評価順から再計算される
	Review      string
	ImgURL      string
	PosterData  []byte // ローカルキャッシュ済みポスター画像（未取得時はnil）
	PosterMime  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MaxTextLength はtitle、description、review、img_urlの最大文字数。
const MaxTextLength = 500
