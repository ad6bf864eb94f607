// Package handler はHTTPエンドポイントとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/cinelog/internal/form"
	"github.com/hitoshi/cinelog/internal/middleware"
	"github.com/hitoshi/cinelog/internal/model"
	"github.com/hitoshi/cinelog/internal/tmdb"
)

// MovieServiceInterface は映画ハンドラーが必要とするサービスインターフェース。
type MovieServiceInterface interface {
	// ListMovies はランキング降順の映画一覧を返す。
	ListMovies(ctx context.Context) ([]*model.Movie, error)
	// SearchCandidates はタイトルでプロバイダを検索し候補一覧を返す。
	SearchCandidates(ctx context.Context, title string) ([]tmdb.Candidate, error)
	// GetMovie は映画を取得する。存在しない場合はMOVIE_NOT_FOUNDを返す。
	GetMovie(ctx context.Context, id int64) (*model.Movie, error)
	// AddFromProvider はプロバイダの映画IDから詳細を取得して登録する。
	AddFromProvider(ctx context.Context, externalID int64) (*model.Movie, error)
	// UpdateReview は評価とレビューを更新しランキングを再計算する。
	UpdateReview(ctx context.Context, id int64, rating float64, review string) (*model.Movie, error)
	// DeleteMovie は映画を削除しランキングを再計算する。
	DeleteMovie(ctx context.Context, id int64) error
	// GetPoster はキャッシュ済みポスター画像を返す。
	GetPoster(ctx context.Context, id int64) ([]byte, string, error)
}

// MovieHandler は映画管理のHTTPハンドラー。
type MovieHandler struct {
	service MovieServiceInterface
}

// NewMovieHandler はMovieHandlerを生成する。
func NewMovieHandler(service MovieServiceInterface) *MovieHandler {
	return &MovieHandler{service: service}
}

// movieResponse は映画1件のAPIレスポンス。
type movieResponse struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Year        int     `json:"year"`
	Description string  `json:"description"`
	Rating      float64 `json:"rating"`
	Ranking     int     `json:"ranking"`
	Review      string  `json:"review"`
	ImgURL      string  `json:"img_url"`
}

// movieListResponse は一覧ビューのレスポンス。
type movieListResponse struct {
	Movies []movieResponse `json:"movies"`
}

// addFormResponse は追加フォームビューのレスポンス。
type addFormResponse struct {
	Title string `json:"title"`
}

// candidateResponse は検索候補1件のAPIレスポンス。
type candidateResponse struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"release_date"`
	Overview    string `json:"overview"`
}

// searchResultResponse は候補選択ビューのレスポンス。
type searchResultResponse struct {
	Query      string              `json:"query"`
	Candidates []candidateResponse `json:"candidates"`
}

// editFormResponse は更新フォームビューのレスポンス。現在値を事前入力する。
type editFormResponse struct {
	Movie  movieResponse `json:"movie"`
	Rating float64       `json:"rating"`
	Review string        `json:"review"`
}

// ListMovies は登録済み映画の一覧を返す。
// ランキング降順（カウントダウン表示、1位が最後）。
// GET /
func (h *MovieHandler) ListMovies(w http.ResponseWriter, r *http.Request) {
	movies, err := h.service.ListMovies(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := movieListResponse{Movies: make([]movieResponse, 0, len(movies))}
	for _, m := range movies {
		resp.Movies = append(resp.Movies, toMovieResponse(m))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ShowAddForm は空の検索フォームビューを返す。
// GET /add
func (h *MovieHandler) ShowAddForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, addFormResponse{Title: ""})
}

// SearchMovies はタイトルを検証してプロバイダを検索し、候補選択ビューを返す。
// 検索結果0件は正常なビュー（空の候補リスト）であってエラーではない。
// POST /add
func (h *MovieHandler) SearchMovies(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeValidation,
			Message:  "フォームの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいフォーム形式で送信してください。",
		})
		return
	}

	f, err := form.ParseAddForm(r.PostForm)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	candidates, err := h.service.SearchCandidates(r.Context(), f.Title)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := searchResultResponse{
		Query:      f.Title,
		Candidates: make([]candidateResponse, 0, len(candidates)),
	}
	for _, c := range candidates {
		resp.Candidates = append(resp.Candidates, candidateResponse{
			ID:          c.ID,
			Title:       c.Title,
			ReleaseDate: c.ReleaseDate,
			Overview:    c.Overview,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// AddMovie は選択された候補の詳細を取得して登録し、編集画面へリダイレクトする。
// idパラメータ欠落・非数値は明示的に400を返す（暗黙の無視はしない）。
// GET /find_movie?id=
func (h *MovieHandler) AddMovie(w http.ResponseWriter, r *http.Request) {
	externalID, apiErr := parseIDQueryParam(r)
	if apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	movie, err := h.service.AddFromProvider(r.Context(), externalID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	http.Redirect(w, r, fmt.Sprintf("/edit?id=%d", movie.ID), http.StatusSeeOther)
}

// ShowEditForm は現在の評価・レビューを事前入力した更新フォームビューを返す。
// GET /edit?id=
func (h *MovieHandler) ShowEditForm(w http.ResponseWriter, r *http.Request) {
	id, apiErr := parseIDQueryParam(r)
	if apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	movie, err := h.service.GetMovie(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, editFormResponse{
		Movie:  toMovieResponse(movie),
		Rating: movie.Rating,
		Review: movie.Review,
	})
}

// UpdateMovie は評価とレビューを更新し、一覧へリダイレクトする。
// POST /edit?id=
func (h *MovieHandler) UpdateMovie(w http.ResponseWriter, r *http.Request) {
	id, apiErr := parseIDQueryParam(r)
	if apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	if err := r.ParseForm(); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeValidation,
			Message:  "フォームの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいフォーム形式で送信してください。",
		})
		return
	}

	f, err := form.ParseUpdateForm(r.PostForm)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if _, err := h.service.UpdateReview(r.Context(), id, f.Rating, f.Review); err != nil {
		handleServiceError(w, err)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// DeleteMovie は映画を削除し、一覧へリダイレクトする。
// GET /delete?id= / POST /delete?id=
func (h *MovieHandler) DeleteMovie(w http.ResponseWriter, r *http.Request) {
	id, apiErr := parseIDQueryParam(r)
	if apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	if err := h.service.DeleteMovie(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// GetPoster はローカルキャッシュ済みのポスター画像を返す。
// GET /poster/{id}
func (h *MovieHandler) GetPoster(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidParameterError("id", raw))
		return
	}

	data, mimeType, svcErr := h.service.GetPoster(r.Context(), id)
	if svcErr != nil {
		handleServiceError(w, svcErr)
		return
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// --- ヘルパー関数 ---

// toMovieResponse はmodel.MovieからAPIレスポンスに変換する。
func toMovieResponse(m *model.Movie) movieResponse {
	return movieResponse{
		ID:          m.ID,
		Title:       m.Title,
		Year:        m.Year,
		Description: m.Description,
		Rating:      m.Rating,
		Ranking:     m.Ranking,
		Review:      m.Review,
		ImgURL:      m.ImgURL,
	}
}

// parseIDQueryParam はクエリパラメータidを必須の整数として解析する。
// 欠落はMISSING_PARAMETER、非数値はINVALID_PARAMETERを返す。
func parseIDQueryParam(r *http.Request) (int64, *model.APIError) {
	raw := r.URL.Query().Get("id")
	if raw == "" {
		return 0, model.NewMissingParameterError("id")
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, model.NewInvalidParameterError("id", raw)
	}

	return id, nil
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		middleware.WriteErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeMovieNotFound, model.ErrCodePosterNotFound:
		return http.StatusNotFound
	case model.ErrCodeDuplicateTitle:
		return http.StatusConflict
	case model.ErrCodeValidation, model.ErrCodeInvalidRating,
		model.ErrCodeMissingParameter, model.ErrCodeInvalidParameter:
		return http.StatusBadRequest
	case model.ErrCodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
