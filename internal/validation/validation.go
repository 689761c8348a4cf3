// Package validation はフォーム入力の検証とサニタイズを提供する。
// すべての関数は純粋関数であり、副作用を持たない。
package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/smartpaw/internal/model"
)

// 項目ごとの上限文字数
const (
	MaxNameLength        = 100
	MaxDescriptionLength = 1000
	MaxAddressLength     = 500
	MaxInputLength       = 1000
	MinPasswordLength    = 6
	MaxPrice             = 100000
)

// passwordSymbols はパスワードに使用できる記号。
const passwordSymbols = "@$!%*?&"

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// PasswordResult はパスワード検証の結果。
type PasswordResult struct {
	IsValid bool
	Message string
}

// Result は複数項目の検証結果。IsValidはErrorsが空のときのみtrue。
type Result struct {
	IsValid bool
	Errors  []string
}

// ServiceInput はサービス掲載フォームの入力値。
type ServiceInput struct {
	Kind        model.ServiceKind
	Title       string
	Description string
	Price       float64
	Address     string
}

// UserInput は会員登録フォームの入力値。
type UserInput struct {
	FullName     string
	Email        string
	Password     string
	UserType     model.UserType
	BusinessName string
}

// ValidateEmail は前後の空白を除いた文字列が local@domain.tld の形式かを判定する。
func ValidateEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	return emailPattern.MatchString(s)
}

// ValidatePassword はパスワードの強度を検証する。
// 6文字未満、または英字と数字をそれぞれ1文字以上含まない場合は無効。
// 使用可能な文字は英数字と @$!%*?& のみ。
func ValidatePassword(s string) PasswordResult {
	if utf8.RuneCountInString(s) < MinPasswordLength {
		return PasswordResult{
			IsValid: false,
			Message: "Password must be at least 6 characters long",
		}
	}

	var hasLetter, hasDigit bool
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			hasLetter = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(passwordSymbols, r):
		default:
			return PasswordResult{
				IsValid: false,
				Message: "Password must contain at least one letter and one number",
			}
		}
	}
	if !hasLetter || !hasDigit {
		return PasswordResult{
			IsValid: false,
			Message: "Password must contain at least one letter and one number",
		}
	}

	return PasswordResult{IsValid: true}
}

// SanitizeInput は前後の空白を除去し、< と > を取り除き、1000文字に切り詰める。
// マークアップ除去のベストエフォートであり、XSS対策としては不完全。
// HTMLとして表示するフィールドには security.DescriptionSanitizer を使う。
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("<", "", ">", "").Replace(s)
	if utf8.RuneCountInString(s) > MaxInputLength {
		s = string([]rune(s)[:MaxInputLength])
	}
	return s
}

// ValidateServiceData はサービス掲載フォームの入力を検証する。
func ValidateServiceData(in ServiceInput) Result {
	var errs []string

	if !in.Kind.Valid() {
		errs = append(errs, "Service type must be boarding, grooming or monitoring")
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		errs = append(errs, "Service name is required")
	} else if utf8.RuneCountInString(title) > MaxNameLength {
		errs = append(errs, "Service name must be less than 100 characters")
	}

	if utf8.RuneCountInString(strings.TrimSpace(in.Description)) > MaxDescriptionLength {
		errs = append(errs, "Description must be less than 1000 characters")
	}

	if utf8.RuneCountInString(strings.TrimSpace(in.Address)) > MaxAddressLength {
		errs = append(errs, "Address must be less than 500 characters")
	}

	// NaNは比較がすべてfalseになるため !(>0) で弾く
	if !(in.Price > 0) {
		errs = append(errs, "Price must be a positive number")
	} else if in.Price > MaxPrice {
		errs = append(errs, "Price must be less than 100000")
	}

	return Result{IsValid: len(errs) == 0, Errors: errs}
}

// ValidateUserData は会員登録フォームの入力を検証する。
// 事業者アカウントでは事業者名が必須。
func ValidateUserData(in UserInput) Result {
	var errs []string

	name := strings.TrimSpace(in.FullName)
	if name == "" {
		errs = append(errs, "Full name is required")
	} else if utf8.RuneCountInString(name) > MaxNameLength {
		errs = append(errs, "Full name must be less than 100 characters")
	}

	if !ValidateEmail(in.Email) {
		errs = append(errs, "Please enter a valid email address")
	}

	if pw := ValidatePassword(in.Password); !pw.IsValid {
		errs = append(errs, pw.Message)
	}

	if !in.UserType.Valid() {
		errs = append(errs, "Please select an account type")
	}

	if in.UserType == model.UserTypeServiceProvider {
		business := strings.TrimSpace(in.BusinessName)
		if business == "" {
			errs = append(errs, "Business name is required for service providers")
		} else if utf8.RuneCountInString(business) > MaxNameLength {
			errs = append(errs, "Business name must be less than 100 characters")
		}
	}

	return Result{IsValid: len(errs) == 0, Errors: errs}
}
