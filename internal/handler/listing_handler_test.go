package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/smartpaw/internal/listing"
	"github.com/hitoshi/smartpaw/internal/middleware"
	"github.com/hitoshi/smartpaw/internal/model"
)

// --- モック定義 ---

type mockListingService struct {
	getProviderFn    func(ctx context.Context, userID uuid.UUID) (*model.ServiceProvider, error)
	upsertProviderFn func(ctx context.Context, userID uuid.UUID, input listing.ProviderInput) (*model.ServiceProvider, error)
	createListingFn  func(ctx context.Context, userID uuid.UUID, input listing.ListingInput) (*model.Listing, error)
	listListingsFn   func(ctx context.Context, kind model.ServiceKind) ([]*model.Listing, error)
	getListingFn     func(ctx context.Context, kind model.ServiceKind, id uuid.UUID) (*model.Listing, error)
	listByProviderFn func(ctx context.Context, userID uuid.UUID) ([]*model.Listing, error)
	createBookingFn  func(ctx context.Context, userID uuid.UUID, input listing.BookingInput) (*model.Booking, error)
	listBookingsFn   func(ctx context.Context, userID uuid.UUID) ([]*model.Booking, error)
}

func (m *mockListingService) GetProviderProfile(ctx context.Context, userID uuid.UUID) (*model.ServiceProvider, error) {
	if m.getProviderFn != nil {
		return m.getProviderFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockListingService) UpsertProviderProfile(ctx context.Context, userID uuid.UUID, input listing.ProviderInput) (*model.ServiceProvider, error) {
	if m.upsertProviderFn != nil {
		return m.upsertProviderFn(ctx, userID, input)
	}
	return nil, nil
}

func (m *mockListingService) CreateListing(ctx context.Context, userID uuid.UUID, input listing.ListingInput) (*model.Listing, error) {
	if m.createListingFn != nil {
		return m.createListingFn(ctx, userID, input)
	}
	return nil, nil
}

func (m *mockListingService) ListListings(ctx context.Context, kind model.ServiceKind) ([]*model.Listing, error) {
	if m.listListingsFn != nil {
		return m.listListingsFn(ctx, kind)
	}
	return nil, nil
}

func (m *mockListingService) GetListing(ctx context.Context, kind model.ServiceKind, id uuid.UUID) (*model.Listing, error) {
	if m.getListingFn != nil {
		return m.getListingFn(ctx, kind, id)
	}
	return nil, nil
}

func (m *mockListingService) ListByProvider(ctx context.Context, userID uuid.UUID) ([]*model.Listing, error) {
	if m.listByProviderFn != nil {
		return m.listByProviderFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockListingService) CreateBooking(ctx context.Context, userID uuid.UUID, input listing.BookingInput) (*model.Booking, error) {
	if m.createBookingFn != nil {
		return m.createBookingFn(ctx, userID, input)
	}
	return nil, nil
}

func (m *mockListingService) ListBookings(ctx context.Context, userID uuid.UUID) ([]*model.Booking, error) {
	if m.listBookingsFn != nil {
		return m.listBookingsFn(ctx, userID)
	}
	return nil, nil
}

func sampleListing(kind model.ServiceKind) *model.Listing {
	return &model.Listing{
		ID:          uuid.MustParse("11111111-2222-4333-8444-555555555555"),
		ProviderID:  uuid.MustParse("99999999-2222-4333-8444-555555555555"),
		Kind:        kind,
		Title:       "Cozy Boarding",
		Description: "<p>Warm beds</p>",
		Price:       45,
		Address:     "1 Bark St",
		ImageURL:    "https://cdn.example.com/placeholder.png",
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// asUser は認証済みStoreを注入したリクエストを返す。
func asUser(r *http.Request) *http.Request {
	return withStore(r, settledStore("b1", testSession(model.UserTypeServiceProvider)))
}

// withURLParams はchiのURLパラメータを設定する。
func withURLParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// --- テスト ---

func TestListingHandler_ListListings(t *testing.T) {
	var gotKind model.ServiceKind
	h := NewListingHandler(&mockListingService{
		listListingsFn: func(ctx context.Context, kind model.ServiceKind) ([]*model.Listing, error) {
			gotKind = kind
			return []*model.Listing{sampleListing(kind)}, nil
		},
	})

	w := httptest.NewRecorder()
	h.ListListings(w, httptest.NewRequest(http.MethodGet, "/api/services?kind=boarding", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotKind != model.ServiceKindBoarding {
		t.Errorf("kind = %q", gotKind)
	}

	var body struct {
		Services []listingResponse `json:"services"`
	}
	json.NewDecoder(w.Body).Decode(&body)
	if len(body.Services) != 1 || body.Services[0].Title != "Cozy Boarding" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestListingHandler_ListListings_InvalidKind(t *testing.T) {
	h := NewListingHandler(&mockListingService{
		listListingsFn: func(ctx context.Context, kind model.ServiceKind) ([]*model.Listing, error) {
			return nil, model.NewInvalidServiceKindError(string(kind))
		},
	})

	w := httptest.NewRecorder()
	h.ListListings(w, httptest.NewRequest(http.MethodGet, "/api/services?kind=walking", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestListingHandler_GetListing(t *testing.T) {
	want := sampleListing(model.ServiceKindGrooming)

	tests := []struct {
		name       string
		id         string
		err        error
		wantStatus int
	}{
		{"存在する", want.ID.String(), nil, http.StatusOK},
		{"UUIDでない", "not-a-uuid", nil, http.StatusNotFound},
		{"存在しない", uuid.NewString(), model.NewListingNotFoundError("x"), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewListingHandler(&mockListingService{
				getListingFn: func(ctx context.Context, kind model.ServiceKind, id uuid.UUID) (*model.Listing, error) {
					if tt.err != nil {
						return nil, tt.err
					}
					return want, nil
				},
			})

			req := httptest.NewRequest(http.MethodGet, "/api/services/grooming/"+tt.id, nil)
			req = withURLParams(req, map[string]string{"kind": "grooming", "id": tt.id})
			w := httptest.NewRecorder()

			h.GetListing(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestListingHandler_GetProviderProfile(t *testing.T) {
	t.Run("未登録は404", func(t *testing.T) {
		h := NewListingHandler(&mockListingService{})

		w := httptest.NewRecorder()
		h.GetProviderProfile(w, asUser(httptest.NewRequest(http.MethodGet, "/api/seller/profile", nil)))

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
		var body middleware.ErrorResponseBody
		json.NewDecoder(w.Body).Decode(&body)
		if body.Code != model.ErrCodeProviderNotFound {
			t.Errorf("code = %q", body.Code)
		}
	})

	t.Run("入力状況を返す", func(t *testing.T) {
		h := NewListingHandler(&mockListingService{
			getProviderFn: func(ctx context.Context, userID uuid.UUID) (*model.ServiceProvider, error) {
				if userID != testUserID {
					t.Errorf("userID = %s", userID)
				}
				return &model.ServiceProvider{ID: uuid.New(), BusinessName: "Happy Tails", Address: "1 Bark St"}, nil
			},
		})

		w := httptest.NewRecorder()
		h.GetProviderProfile(w, asUser(httptest.NewRequest(http.MethodGet, "/api/seller/profile", nil)))

		var body providerResponse
		json.NewDecoder(w.Body).Decode(&body)
		if body.Complete {
			t.Error("profile without phone should be incomplete")
		}
	})

	t.Run("未認証は401", func(t *testing.T) {
		h := NewListingHandler(&mockListingService{})

		w := httptest.NewRecorder()
		h.GetProviderProfile(w, httptest.NewRequest(http.MethodGet, "/api/seller/profile", nil))

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

func TestListingHandler_UpsertProviderProfile(t *testing.T) {
	var got listing.ProviderInput
	h := NewListingHandler(&mockListingService{
		upsertProviderFn: func(ctx context.Context, userID uuid.UUID, input listing.ProviderInput) (*model.ServiceProvider, error) {
			got = input
			return &model.ServiceProvider{ID: uuid.New(), BusinessName: input.BusinessName, Address: input.Address, Phone: input.Phone}, nil
		},
	})

	req := asUser(postJSON("/api/seller/profile", `{"business_name":"Happy Tails","address":"1 Bark St","phone":"555-0100"}`))
	w := httptest.NewRecorder()

	h.UpsertProviderProfile(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got.Phone != "555-0100" {
		t.Errorf("input = %+v", got)
	}
	var body providerResponse
	json.NewDecoder(w.Body).Decode(&body)
	if !body.Complete {
		t.Error("expected complete profile")
	}
}

func TestListingHandler_CreateListing_JSON(t *testing.T) {
	var got listing.ListingInput
	h := NewListingHandler(&mockListingService{
		createListingFn: func(ctx context.Context, userID uuid.UUID, input listing.ListingInput) (*model.Listing, error) {
			got = input
			return sampleListing(input.Kind), nil
		},
	})

	req := asUser(postJSON("/api/seller/services", `{"kind":"boarding","title":"Cozy","description":"d","price":45,"address":"1 Bark St","image_url":"https://images.example.com/dog.jpg"}`))
	w := httptest.NewRecorder()

	h.CreateListing(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	if got.Kind != model.ServiceKindBoarding || got.Price != 45 {
		t.Errorf("input = %+v", got)
	}
	if got.Image == nil || got.Image.URL != "https://images.example.com/dog.jpg" {
		t.Errorf("image = %+v", got.Image)
	}
}

func TestListingHandler_CreateListing_Multipart(t *testing.T) {
	var got listing.ListingInput
	h := NewListingHandler(&mockListingService{
		createListingFn: func(ctx context.Context, userID uuid.UUID, input listing.ListingInput) (*model.Listing, error) {
			got = input
			return sampleListing(input.Kind), nil
		},
	})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("kind", "grooming")
	mw.WriteField("title", "Fresh Cuts")
	mw.WriteField("description", "Full groom")
	mw.WriteField("price", "30.5")
	mw.WriteField("address", "2 Paw Ave")
	fw, _ := mw.CreateFormFile("image", "dog.png")
	fw.Write([]byte("\x89PNG fake"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/seller/services", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()

	h.CreateListing(w, asUser(req))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	if got.Price != 30.5 || got.Kind != model.ServiceKindGrooming {
		t.Errorf("input = %+v", got)
	}
	if got.Image == nil || got.Image.Filename != "dog.png" || len(got.Image.Data) == 0 {
		t.Errorf("image = %+v", got.Image)
	}
}

func TestListingHandler_CreateListing_MultipartBadPrice(t *testing.T) {
	h := NewListingHandler(&mockListingService{
		createListingFn: func(ctx context.Context, userID uuid.UUID, input listing.ListingInput) (*model.Listing, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("kind", "grooming")
	mw.WriteField("price", "cheap")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/seller/services", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()

	h.CreateListing(w, asUser(req))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestListingHandler_CreateListing_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"事業者プロフィールなし", model.NewProviderNotFoundError(), http.StatusNotFound},
		{"ブロックされた画像URL", model.NewImageURLBlockedError(), http.StatusForbidden},
		{"入力エラー", model.NewValidationError("Price must be greater than 0"), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewListingHandler(&mockListingService{
				createListingFn: func(ctx context.Context, userID uuid.UUID, input listing.ListingInput) (*model.Listing, error) {
					return nil, tt.err
				},
			})

			w := httptest.NewRecorder()
			h.CreateListing(w, asUser(postJSON("/api/seller/services", `{"kind":"boarding"}`)))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestListingHandler_Bookings(t *testing.T) {
	listingID := uuid.New()
	var got listing.BookingInput
	h := NewListingHandler(&mockListingService{
		createBookingFn: func(ctx context.Context, userID uuid.UUID, input listing.BookingInput) (*model.Booking, error) {
			got = input
			return &model.Booking{
				ID:         uuid.New(),
				UserID:     userID,
				ListingID:  input.ListingID,
				Kind:       input.Kind,
				Date:       input.Date,
				Time:       input.Time,
				PetName:    input.PetName,
				TotalPrice: 45,
				Status:     model.BookingStatusConfirmed,
			}, nil
		},
		listBookingsFn: func(ctx context.Context, userID uuid.UUID) ([]*model.Booking, error) {
			return []*model.Booking{{ID: uuid.New(), ListingID: listingID, Status: model.BookingStatusConfirmed}}, nil
		},
	})

	t.Run("作成", func(t *testing.T) {
		body := `{"kind":"boarding","service_id":"` + listingID.String() + `","booking_date":"2026-11-01","booking_time":"09:30","pet_name":"Rex"}`
		w := httptest.NewRecorder()
		h.CreateBooking(w, asUser(postJSON("/api/bookings", body)))

		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
		}
		if got.ListingID != listingID || got.PetName != "Rex" {
			t.Errorf("input = %+v", got)
		}
		var resp bookingResponse
		json.NewDecoder(w.Body).Decode(&resp)
		if resp.Status != model.BookingStatusConfirmed || resp.TotalPrice != 45 {
			t.Errorf("response = %+v", resp)
		}
	})

	t.Run("不正な掲載ID", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.CreateBooking(w, asUser(postJSON("/api/bookings", `{"service_id":"nope"}`)))

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("一覧", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ListBookings(w, asUser(httptest.NewRequest(http.MethodGet, "/api/bookings", nil)))

		var resp struct {
			Bookings []bookingResponse `json:"bookings"`
		}
		json.NewDecoder(w.Body).Decode(&resp)
		if len(resp.Bookings) != 1 || resp.Bookings[0].ListingID != listingID.String() {
			t.Errorf("response = %+v", resp)
		}
	})
}

func TestListingHandler_ListOwnListings(t *testing.T) {
	h := NewListingHandler(&mockListingService{
		listByProviderFn: func(ctx context.Context, userID uuid.UUID) ([]*model.Listing, error) {
			return []*model.Listing{}, nil
		},
	})

	w := httptest.NewRecorder()
	h.ListOwnListings(w, asUser(httptest.NewRequest(http.MethodGet, "/api/seller/services", nil)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if body := w.Body.String(); body != "{\"services\":[]}\n" {
		t.Errorf("body = %q, want empty services array", body)
	}
}
