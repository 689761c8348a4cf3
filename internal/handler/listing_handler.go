package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/smartpaw/internal/listing"
	"github.com/hitoshi/smartpaw/internal/middleware"
	"github.com/hitoshi/smartpaw/internal/model"
)

// 掲載画像アップロードの上限。
const (
	maxMultipartMemory = 8 << 20
	maxImageSize       = 5 << 20
)

// ListingServiceInterface は掲載ハンドラーが必要とするサービスインターフェース。
// listing.Serviceが実装する。
type ListingServiceInterface interface {
	GetProviderProfile(ctx context.Context, userID uuid.UUID) (*model.ServiceProvider, error)
	UpsertProviderProfile(ctx context.Context, userID uuid.UUID, input listing.ProviderInput) (*model.ServiceProvider, error)
	CreateListing(ctx context.Context, userID uuid.UUID, input listing.ListingInput) (*model.Listing, error)
	ListListings(ctx context.Context, kind model.ServiceKind) ([]*model.Listing, error)
	GetListing(ctx context.Context, kind model.ServiceKind, id uuid.UUID) (*model.Listing, error)
	ListByProvider(ctx context.Context, userID uuid.UUID) ([]*model.Listing, error)
	CreateBooking(ctx context.Context, userID uuid.UUID, input listing.BookingInput) (*model.Booking, error)
	ListBookings(ctx context.Context, userID uuid.UUID) ([]*model.Booking, error)
}

// ListingHandler は掲載・事業者プロフィール・予約のHTTPハンドラー。
type ListingHandler struct {
	service ListingServiceInterface
}

// NewListingHandler はListingHandlerを生成する。
func NewListingHandler(service ListingServiceInterface) *ListingHandler {
	return &ListingHandler{service: service}
}

// listingResponse は掲載情報のAPIレスポンス。
type listingResponse struct {
	ID          string            `json:"id"`
	ProviderID  string            `json:"provider_id"`
	Kind        model.ServiceKind `json:"kind"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Price       float64           `json:"price"`
	Address     string            `json:"address"`
	ImageURL    string            `json:"image_url"`
	CreatedAt   time.Time         `json:"created_at"`
}

// providerResponse は事業者プロフィールのAPIレスポンス。
type providerResponse struct {
	ID           string    `json:"id"`
	BusinessName string    `json:"business_name"`
	Description  string    `json:"description"`
	Address      string    `json:"address"`
	Phone        string    `json:"phone"`
	Complete     bool      `json:"complete"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// bookingResponse は予約のAPIレスポンス。
type bookingResponse struct {
	ID         string              `json:"id"`
	ListingID  string              `json:"service_id"`
	Kind       model.ServiceKind   `json:"kind"`
	Date       string              `json:"booking_date"`
	Time       string              `json:"booking_time"`
	PetName    string              `json:"pet_name"`
	Notes      string              `json:"notes,omitempty"`
	TotalPrice float64             `json:"total_price"`
	Status     model.BookingStatus `json:"status"`
	CreatedAt  time.Time           `json:"created_at"`
}

type providerRequest struct {
	BusinessName string `json:"business_name"`
	Description  string `json:"description"`
	Address      string `json:"address"`
	Phone        string `json:"phone"`
}

type listingRequest struct {
	Kind        model.ServiceKind `json:"kind"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Price       float64           `json:"price"`
	Address     string            `json:"address"`
	ImageURL    string            `json:"image_url"`
}

type bookingRequest struct {
	Kind      model.ServiceKind `json:"kind"`
	ListingID string            `json:"service_id"`
	Date      string            `json:"booking_date"`
	Time      string            `json:"booking_time"`
	PetName   string            `json:"pet_name"`
	Notes     string            `json:"notes"`
}

func toListingResponse(l *model.Listing) listingResponse {
	return listingResponse{
		ID:          l.ID.String(),
		ProviderID:  l.ProviderID.String(),
		Kind:        l.Kind,
		Title:       l.Title,
		Description: l.Description,
		Price:       l.Price,
		Address:     l.Address,
		ImageURL:    l.ImageURL,
		CreatedAt:   l.CreatedAt,
	}
}

func toListingResponses(listings []*model.Listing) []listingResponse {
	results := make([]listingResponse, len(listings))
	for i, l := range listings {
		results[i] = toListingResponse(l)
	}
	return results
}

func toProviderResponse(p *model.ServiceProvider) providerResponse {
	return providerResponse{
		ID:           p.ID.String(),
		BusinessName: p.BusinessName,
		Description:  p.Description,
		Address:      p.Address,
		Phone:        p.Phone,
		Complete:     p.IsComplete(),
		UpdatedAt:    p.UpdatedAt,
	}
}

func toBookingResponse(b *model.Booking) bookingResponse {
	return bookingResponse{
		ID:         b.ID.String(),
		ListingID:  b.ListingID.String(),
		Kind:       b.Kind,
		Date:       b.Date,
		Time:       b.Time,
		PetName:    b.PetName,
		Notes:      b.Notes,
		TotalPrice: b.TotalPrice,
		Status:     b.Status,
		CreatedAt:  b.CreatedAt,
	}
}

// currentUserID は認証済みユーザーのIDを返す。
// 未認証の場合は401を書き込み、falseを返す。
func currentUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return uuid.Nil, false
	}
	return user.ID, true
}

// ListListings は種別ごとの掲載一覧を返す。
// GET /api/services?kind=boarding
func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	kind := model.ServiceKind(r.URL.Query().Get("kind"))

	listings, err := h.service.ListListings(r.Context(), kind)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"services": toListingResponses(listings),
	})
}

// GetListing は掲載詳細を返す。
// GET /api/services/{kind}/{id}
func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	kind := model.ServiceKind(chi.URLParam(r, "kind"))
	rawID := chi.URLParam(r, "id")

	id, err := uuid.Parse(rawID)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewListingNotFoundError(rawID))
		return
	}

	l, err := h.service.GetListing(r.Context(), kind, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toListingResponse(l))
}

// GetProviderProfile はログインユーザーの事業者プロフィールを返す。
// GET /api/seller/profile
func (h *ListingHandler) GetProviderProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	provider, err := h.service.GetProviderProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if provider == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewProviderNotFoundError())
		return
	}

	writeJSON(w, http.StatusOK, toProviderResponse(provider))
}

// UpsertProviderProfile は事業者プロフィールを作成または更新する。
// PUT /api/seller/profile
func (h *ListingHandler) UpsertProviderProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var req providerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	provider, err := h.service.UpsertProviderProfile(r.Context(), userID, listing.ProviderInput{
		BusinessName: req.BusinessName,
		Description:  req.Description,
		Address:      req.Address,
		Phone:        req.Phone,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProviderResponse(provider))
}

// ListOwnListings はログインユーザーの掲載一覧を返す。
// GET /api/seller/services
func (h *ListingHandler) ListOwnListings(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	listings, err := h.service.ListByProvider(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"services": toListingResponses(listings),
	})
}

// CreateListing は掲載を作成する。
// multipart/form-dataの場合はimageフィールドの画像をアップロードし、
// JSONの場合はimage_urlの画像を取得してアップロードする。
// POST /api/seller/services
func (h *ListingHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var input listing.ListingInput
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		parsed, apiErr := parseListingForm(w, r)
		if apiErr != nil {
			middleware.WriteAPIError(w, apiErr)
			return
		}
		input = parsed
	} else {
		var req listingRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		input = listing.ListingInput{
			Kind:        req.Kind,
			Title:       req.Title,
			Description: req.Description,
			Price:       req.Price,
			Address:     req.Address,
		}
		if req.ImageURL != "" {
			input.Image = &listing.Image{URL: req.ImageURL}
		}
	}

	l, err := h.service.CreateListing(r.Context(), userID, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toListingResponse(l))
}

// parseListingForm はmultipart/form-dataの掲載フォームを解析する。
func parseListingForm(w http.ResponseWriter, r *http.Request) (listing.ListingInput, *model.APIError) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageSize+maxMultipartMemory)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return listing.ListingInput{}, invalidRequestError()
	}

	input := listing.ListingInput{
		Kind:        model.ServiceKind(r.FormValue("kind")),
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Address:     r.FormValue("address"),
	}

	if raw := strings.TrimSpace(r.FormValue("price")); raw != "" {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return listing.ListingInput{}, model.NewValidationError("Price must be a number")
		}
		input.Price = price
	}

	file, header, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxImageSize+1))
		if err != nil {
			return listing.ListingInput{}, invalidRequestError()
		}
		if len(data) > maxImageSize {
			return listing.ListingInput{}, model.NewValidationError("Image must be 5MB or smaller")
		}
		input.Image = &listing.Image{
			Data:        data,
			ContentType: header.Header.Get("Content-Type"),
			Filename:    header.Filename,
		}
	case r.FormValue("image_url") != "":
		input.Image = &listing.Image{URL: r.FormValue("image_url")}
	}

	return input, nil
}

// ListBookings はログインユーザーの予約一覧を返す。
// GET /api/bookings
func (h *ListingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	bookings, err := h.service.ListBookings(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]bookingResponse, len(bookings))
	for i, b := range bookings {
		results[i] = toBookingResponse(b)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bookings": results,
	})
}

// CreateBooking は予約を作成する。
// POST /api/bookings
func (h *ListingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var req bookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	listingID, err := uuid.Parse(req.ListingID)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewListingNotFoundError(req.ListingID))
		return
	}

	booking, err := h.service.CreateBooking(r.Context(), userID, listing.BookingInput{
		Kind:      req.Kind,
		ListingID: listingID,
		Date:      req.Date,
		Time:      req.Time,
		PetName:   req.PetName,
		Notes:     req.Notes,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toBookingResponse(booking))
}
