// Package form はHTMLフォーム入力の解析とバリデーションを提供する。
package form

import (
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/cinelog/internal/model"
)

// AddForm は映画追加の検索フォーム。
type AddForm struct {
	Title string
}

// UpdateForm は評価・レビュー更新フォーム。
// Ratingはパース済みの数値を保持する。
type UpdateForm struct {
	Rating float64
	Review string
}

// ParseAddForm はフォーム値から検索フォームを構築・検証する。
// titleは必須かつ500文字以内。違反時はVALIDATION_ERRORのAPIErrorを返す。
func ParseAddForm(values url.Values) (*AddForm, error) {
	fields := make(map[string]string)

	title := strings.TrimSpace(values.Get("title"))
	if title == "" {
		fields["title"] = "タイトルを入力してください"
	} else if utf8.RuneCountInString(title) > model.MaxTextLength {
		fields["title"] = "タイトルは500文字以内で入力してください"
	}

	if len(fields) > 0 {
		return nil, model.NewValidationError(fields)
	}

	return &AddForm{Title: title}, nil
}

// ParseUpdateForm はフォーム値から更新フォームを構築・検証する。
// ratingは必須かつ数値としてパースできること、reviewは必須かつ500文字以内。
// 数値でないratingはINVALID_RATINGのフィールドエラーとして報告する。
func ParseUpdateForm(values url.Values) (*UpdateForm, error) {
	fields := make(map[string]string)

	var rating float64
	rawRating := strings.TrimSpace(values.Get("rating"))
	if rawRating == "" {
		fields["rating"] = "評価を入力してください"
	} else {
		parsed, err := strconv.ParseFloat(rawRating, 64)
		if err != nil {
			fields["rating"] = "評価は数値で入力してください"
		} else {
			rating = parsed
		}
	}

	review := strings.TrimSpace(values.Get("review"))
	if review == "" {
		fields["review"] = "レビューを入力してください"
	} else if utf8.RuneCountInString(review) > model.MaxTextLength {
		fields["review"] = "レビューは500文字以内で入力してください"
	}

	if len(fields) > 0 {
		return nil, model.NewValidationError(fields)
	}

	return &UpdateForm{Rating: rating, Review: review}, nil
}
