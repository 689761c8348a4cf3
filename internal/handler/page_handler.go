package handler

import (
	"net/http"

	"github.com/hitoshi/smartpaw/internal/middleware"
)

// pageResponse は保護ページの表示に必要な情報。
type pageResponse struct {
	Page string        `json:"page"`
	User *userResponse `json:"user"`
}

// ProtectedPage はルートガードを通過した保護ページの情報を返す。
// GET /seller-dashboard, GET /profile
func ProtectedPage(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse{
		Page: r.URL.Path,
		User: toUserResponse(user),
	})
}
