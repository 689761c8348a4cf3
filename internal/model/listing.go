package model

import (
	"time"

	"github.com/google/uuid"
)

// ServiceKind はサービス掲載の種別を表す。
type ServiceKind string

const (
	ServiceKindBoarding   ServiceKind = "boarding"
	ServiceKindGrooming   ServiceKind = "grooming"
	ServiceKindMonitoring ServiceKind = "monitoring"
)

// ServiceKinds は全サービス種別を表示順で返す。
func ServiceKinds() []ServiceKind {
	return []ServiceKind{ServiceKindBoarding, ServiceKindGrooming, ServiceKindMonitoring}
}

// Valid は定義済みのサービス種別かどうかを返す。
func (k ServiceKind) Valid() bool {
	switch k {
	case ServiceKindBoarding, ServiceKindGrooming, ServiceKindMonitoring:
		return true
	}
	return false
}

// Table は種別に対応するテーブル名を返す。
func (k ServiceKind) Table() string {
	switch k {
	case ServiceKindBoarding:
		return "pet_boarding_services"
	case ServiceKindGrooming:
		return "pet_grooming_services"
	case ServiceKindMonitoring:
		return "pet_monitoring_services"
	}
	return ""
}

// Profile はprofilesテーブルのユーザープロフィール。
type Profile struct {
	ID        uuid.UUID
	Email     string
	FullName  string
	UserType  UserType
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ServiceProvider は事業者プロフィールを表す。
type ServiceProvider struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	BusinessName string
	Description  string
	Address      string
	Phone        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsComplete はプロフィールの必須項目がすべて埋まっているかを返す。
func (p *ServiceProvider) IsComplete() bool {
	return p != nil && p.BusinessName != "" && p.Address != "" && p.Phone != ""
}

// Listing は予約可能なサービス掲載を表す。
type Listing struct {
	ID          uuid.UUID
	ProviderID  uuid.UUID
	Kind        ServiceKind
	Title       string
	Description string
	Price       float64
	Address     string
	ImageURL    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BookingStatus は予約の状態を表す。
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
)

// Booking は予約を表す。日時の重複チェックは行わない。
type Booking struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	ListingID  uuid.UUID
	Kind       ServiceKind
	Date       string // YYYY-MM-DD
	Time       string // HH:MM
	PetName    string
	Notes      string
	TotalPrice float64
	Status     BookingStatus
	CreatedAt  time.Time
}
