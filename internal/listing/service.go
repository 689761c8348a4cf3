// Package listing はサービス掲載・事業者プロフィール・予約のドメインロジックを提供する。
package listing

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/smartpaw/internal/metrics"
	"github.com/hitoshi/smartpaw/internal/model"
	"github.com/hitoshi/smartpaw/internal/repository"
	"github.com/hitoshi/smartpaw/internal/security"
	"github.com/hitoshi/smartpaw/internal/validation"
)

// defaultListLimit は一覧取得の最大件数。
const defaultListLimit = 50

// Uploader はオブジェクトストレージへのアップロードを行う。
// storage.Clientが実装する。
type Uploader interface {
	Upload(ctx context.Context, bucket, path, contentType string, body []byte) (string, error)
}

// Config はServiceの設定。
type Config struct {
	Bucket              string
	PlaceholderImageURL string
}

// Image は掲載画像の入力。DataとURLのどちらか一方を指定する。
type Image struct {
	Data        []byte
	ContentType string
	Filename    string
	URL         string
}

// ListingInput は掲載作成フォームの入力値。
type ListingInput struct {
	Kind        model.ServiceKind
	Title       string
	Description string
	Price       float64
	Address     string
	Image       *Image
}

// ProviderInput は事業者プロフィールフォームの入力値。
type ProviderInput struct {
	BusinessName string
	Description  string
	Address      string
	Phone        string
}

// BookingInput は予約フォームの入力値。
type BookingInput struct {
	Kind      model.ServiceKind
	ListingID uuid.UUID
	Date      string
	Time      string
	PetName   string
	Notes     string
}

// Repositories はServiceが使用するリポジトリの集合。
type Repositories struct {
	Listings  repository.ListingRepository
	Providers repository.ProviderRepository
	Profiles  repository.ProfileRepository
	Bookings  repository.BookingRepository
}

// Service は掲載管理のサービス層。
type Service struct {
	repos     Repositories
	uploader  Uploader
	sanitizer security.DescriptionSanitizer
	imageURLs security.ImageURLGuard
	metrics   metrics.MetricsCollector
	config    Config
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// uploaderがnilの場合、画像は常にプレースホルダーになる。
func NewService(
	repos Repositories,
	uploader Uploader,
	sanitizer security.DescriptionSanitizer,
	imageURLs security.ImageURLGuard,
	collector metrics.MetricsCollector,
	config Config,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		repos:     repos,
		uploader:  uploader,
		sanitizer: sanitizer,
		imageURLs: imageURLs,
		metrics:   collector,
		config:    config,
		now:       time.Now,
	}
}

// SyncProfile はサインインしたユーザーのプロフィール行を作成または更新する。
func (s *Service) SyncProfile(ctx context.Context, user *model.User) error {
	if user == nil {
		return nil
	}
	now := s.now()
	profile := &model.Profile{
		ID:        user.ID,
		Email:     user.Email,
		FullName:  user.Metadata.FullName,
		UserType:  user.Metadata.UserType,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repos.Profiles.Upsert(ctx, profile); err != nil {
		return fmt.Errorf("プロフィールの同期に失敗しました: %w", err)
	}
	return nil
}

// GetProviderProfile はユーザーの事業者プロフィールを返す。未登録の場合はnilを返す。
func (s *Service) GetProviderProfile(ctx context.Context, userID uuid.UUID) (*model.ServiceProvider, error) {
	provider, err := s.repos.Providers.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("事業者プロフィールの取得に失敗しました: %w", err)
	}
	return provider, nil
}

// UpsertProviderProfile は事業者プロフィールを作成または更新する。
func (s *Service) UpsertProviderProfile(ctx context.Context, userID uuid.UUID, input ProviderInput) (*model.ServiceProvider, error) {
	input.BusinessName = validation.SanitizeInput(input.BusinessName)
	input.Address = validation.SanitizeInput(input.Address)
	input.Phone = validation.SanitizeInput(input.Phone)
	input.Description = s.sanitizer.Sanitize(input.Description)

	if v := validateProvider(input); !v.IsValid {
		return nil, model.NewValidationError(v.Errors...)
	}

	existing, err := s.repos.Providers.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("事業者プロフィールの取得に失敗しました: %w", err)
	}

	now := s.now()
	provider := &model.ServiceProvider{
		ID:           uuid.New(),
		UserID:       userID,
		BusinessName: input.BusinessName,
		Description:  input.Description,
		Address:      input.Address,
		Phone:        input.Phone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if existing != nil {
		provider.ID = existing.ID
		provider.CreatedAt = existing.CreatedAt
	}

	if err := s.repos.Providers.Upsert(ctx, provider); err != nil {
		return nil, fmt.Errorf("事業者プロフィールの保存に失敗しました: %w", err)
	}
	return provider, nil
}

// validateProvider は事業者プロフィールの入力を検証する。
func validateProvider(in ProviderInput) validation.Result {
	var errs []string
	if in.BusinessName == "" {
		errs = append(errs, "Business name is required")
	} else if len([]rune(in.BusinessName)) > validation.MaxNameLength {
		errs = append(errs, "Business name must be less than 100 characters")
	}
	if len([]rune(in.Address)) > validation.MaxAddressLength {
		errs = append(errs, "Address must be less than 500 characters")
	}
	if len([]rune(in.Description)) > validation.MaxDescriptionLength {
		errs = append(errs, "Description must be less than 1000 characters")
	}
	return validation.Result{IsValid: len(errs) == 0, Errors: errs}
}

// IsProfileComplete は事業者プロフィールの必須項目（事業者名・住所・電話番号）が
// すべて入力済みかを返す。未登録の場合はfalse。
func (s *Service) IsProfileComplete(ctx context.Context, userID uuid.UUID) (bool, error) {
	provider, err := s.repos.Providers.FindByUserID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("事業者プロフィールの取得に失敗しました: %w", err)
	}
	return provider.IsComplete(), nil
}

// CreateListing は事業者の掲載を作成する。
// 画像のアップロードに失敗した場合はプレースホルダー画像で作成を続ける。
func (s *Service) CreateListing(ctx context.Context, userID uuid.UUID, input ListingInput) (*model.Listing, error) {
	provider, err := s.repos.Providers.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("事業者プロフィールの取得に失敗しました: %w", err)
	}
	if provider == nil {
		return nil, model.NewProviderNotFoundError()
	}

	input.Title = validation.SanitizeInput(input.Title)
	input.Address = validation.SanitizeInput(input.Address)
	input.Description = s.sanitizer.Sanitize(input.Description)

	v := validation.ValidateServiceData(validation.ServiceInput{
		Kind:        input.Kind,
		Title:       input.Title,
		Description: input.Description,
		Price:       input.Price,
		Address:     input.Address,
	})
	if !v.IsValid {
		return nil, model.NewValidationError(v.Errors...)
	}

	if input.Image != nil && len(input.Image.Data) == 0 && input.Image.URL != "" {
		if err := s.imageURLs.ValidateImageURL(input.Image.URL); err != nil {
			slog.Info("掲載画像URLを拒否しました",
				slog.String("user_id", userID.String()),
				slog.String("error", err.Error()),
			)
			return nil, model.NewImageURLBlockedError()
		}
	}

	now := s.now()
	listing := &model.Listing{
		ID:          uuid.New(),
		ProviderID:  provider.ID,
		Kind:        input.Kind,
		Title:       input.Title,
		Description: input.Description,
		Price:       input.Price,
		Address:     input.Address,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	listing.ImageURL = s.resolveImage(ctx, provider.ID, listing.ID, input.Image)

	if err := s.repos.Listings.Create(ctx, listing); err != nil {
		return nil, fmt.Errorf("掲載の作成に失敗しました: %w", err)
	}

	s.metrics.RecordListingCreated(string(listing.Kind))
	slog.Info("掲載を作成しました",
		slog.String("listing_id", listing.ID.String()),
		slog.String("provider_id", provider.ID.String()),
		slog.String("kind", string(listing.Kind)),
	)

	return listing, nil
}

// resolveImage は画像をアップロードして公開URLを返す。
// 画像がない場合、取得やアップロードに失敗した場合はプレースホルダーURLを返す。
func (s *Service) resolveImage(ctx context.Context, providerID, listingID uuid.UUID, img *Image) string {
	if img == nil || (len(img.Data) == 0 && img.URL == "") {
		return s.config.PlaceholderImageURL
	}
	if s.uploader == nil {
		return s.fallback(listingID, fmt.Errorf("uploader is not configured"))
	}

	data, contentType := img.Data, img.ContentType
	if len(data) == 0 {
		remote, err := s.imageURLs.FetchImage(ctx, img.URL)
		if err != nil {
			return s.fallback(listingID, err)
		}
		data, contentType = remote.Data, remote.ContentType
	}

	objectPath := path.Join("providers", providerID.String(), listingID.String()+imageExtension(img.Filename, contentType))
	url, err := s.uploader.Upload(ctx, s.config.Bucket, objectPath, contentType, data)
	if err != nil {
		return s.fallback(listingID, err)
	}
	return url
}

func (s *Service) fallback(listingID uuid.UUID, err error) string {
	s.metrics.RecordImageFallback()
	slog.Warn("掲載画像を保存できないためプレースホルダーを使用します",
		slog.String("listing_id", listingID.String()),
		slog.String("error", err.Error()),
	)
	return s.config.PlaceholderImageURL
}

// imageExtension はファイル名またはContent-Typeから拡張子を決める。
func imageExtension(filename, contentType string) string {
	if ext := strings.ToLower(path.Ext(filename)); ext != "" {
		return ext
	}
	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

// ListListings は指定種別の掲載一覧を返す。
func (s *Service) ListListings(ctx context.Context, kind model.ServiceKind) ([]*model.Listing, error) {
	if !kind.Valid() {
		return nil, model.NewInvalidServiceKindError(string(kind))
	}
	listings, err := s.repos.Listings.ListByKind(ctx, kind, defaultListLimit)
	if err != nil {
		return nil, fmt.Errorf("掲載一覧の取得に失敗しました: %w", err)
	}
	return listings, nil
}

// GetListing は指定種別・IDの掲載を返す。
func (s *Service) GetListing(ctx context.Context, kind model.ServiceKind, id uuid.UUID) (*model.Listing, error) {
	if !kind.Valid() {
		return nil, model.NewInvalidServiceKindError(string(kind))
	}
	listing, err := s.repos.Listings.FindByID(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("掲載の取得に失敗しました: %w", err)
	}
	if listing == nil {
		return nil, model.NewListingNotFoundError(id.String())
	}
	return listing, nil
}

// ListByProvider はユーザーの事業者プロフィールに紐づく掲載一覧を返す。
// 事業者プロフィールが未登録の場合は空の一覧を返す。
func (s *Service) ListByProvider(ctx context.Context, userID uuid.UUID) ([]*model.Listing, error) {
	provider, err := s.repos.Providers.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("事業者プロフィールの取得に失敗しました: %w", err)
	}
	if provider == nil {
		return []*model.Listing{}, nil
	}
	listings, err := s.repos.Listings.ListByProvider(ctx, provider.ID)
	if err != nil {
		return nil, fmt.Errorf("掲載一覧の取得に失敗しました: %w", err)
	}
	return listings, nil
}

// CreateBooking は予約を作成する。
// 日時の重複は確認せず、支払いは模擬のため即座に確定済みとする。
func (s *Service) CreateBooking(ctx context.Context, userID uuid.UUID, input BookingInput) (*model.Booking, error) {
	input.PetName = validation.SanitizeInput(input.PetName)
	input.Notes = validation.SanitizeInput(input.Notes)

	if v := validateBooking(input); !v.IsValid {
		return nil, model.NewValidationError(v.Errors...)
	}

	listing, err := s.GetListing(ctx, input.Kind, input.ListingID)
	if err != nil {
		return nil, err
	}

	booking := &model.Booking{
		ID:         uuid.New(),
		UserID:     userID,
		ListingID:  listing.ID,
		Kind:       listing.Kind,
		Date:       input.Date,
		Time:       input.Time,
		PetName:    input.PetName,
		Notes:      input.Notes,
		TotalPrice: listing.Price,
		Status:     model.BookingStatusConfirmed,
		CreatedAt:  s.now(),
	}

	if err := s.repos.Bookings.Create(ctx, booking); err != nil {
		return nil, fmt.Errorf("予約の作成に失敗しました: %w", err)
	}

	slog.Info("予約を作成しました",
		slog.String("booking_id", booking.ID.String()),
		slog.String("user_id", userID.String()),
		slog.String("listing_id", listing.ID.String()),
	)
	return booking, nil
}

// validateBooking は予約フォームの書式を検証する。過去日時も受け付ける。
func validateBooking(in BookingInput) validation.Result {
	var errs []string
	if !in.Kind.Valid() {
		errs = append(errs, "Service type must be boarding, grooming or monitoring")
	}
	if in.ListingID == uuid.Nil {
		errs = append(errs, "Service is required")
	}
	if _, err := time.Parse("2006-01-02", in.Date); err != nil {
		errs = append(errs, "Date must be in YYYY-MM-DD format")
	}
	if _, err := time.Parse("15:04", in.Time); err != nil {
		errs = append(errs, "Time must be in HH:MM format")
	}
	if in.PetName == "" {
		errs = append(errs, "Pet name is required")
	} else if len([]rune(in.PetName)) > validation.MaxNameLength {
		errs = append(errs, "Pet name must be less than 100 characters")
	}
	if len([]rune(in.Notes)) > validation.MaxDescriptionLength {
		errs = append(errs, "Notes must be less than 1000 characters")
	}
	return validation.Result{IsValid: len(errs) == 0, Errors: errs}
}

// ListBookings はユーザーの予約一覧を返す。
func (s *Service) ListBookings(ctx context.Context, userID uuid.UUID) ([]*model.Booking, error) {
	bookings, err := s.repos.Bookings.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("予約一覧の取得に失敗しました: %w", err)
	}
	return bookings, nil
}
