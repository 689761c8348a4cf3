package auth

import "github.com/hitoshi/smartpaw/internal/model"

// 遷移先のパス。
const (
	PathHome            = "/"
	PathLogin           = "/login"
	PathSellerDashboard = "/seller-dashboard"
)

// Action は認証アクションの種類。
type Action string

const (
	ActionSignUp        Action = "signup"
	ActionSignIn        Action = "signin"
	ActionOAuth         Action = "oauth"
	ActionSignOut       Action = "signout"
	ActionDeleteAccount Action = "delete_account"
)

// Outcome はアクションの結果。
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	// OutcomeConfirmationPending はサインアップ成功だがメール確認待ちでセッションがない状態。
	OutcomeConfirmationPending Outcome = "confirmation_pending"
	OutcomeFailure             Outcome = "failure"
)

// Decision は遷移先の決定に必要な情報。
type Decision struct {
	Action          Action
	Outcome         Outcome
	UserType        model.UserType
	ProfileComplete bool
}

// Decide はアクションの結果から遷移先を決める。空文字列は遷移しないことを表す。
//
// 事業者はプロフィールの入力状況に関わらずセラーダッシュボードに遷移する。
// ProfileCompleteは遷移先に影響しない。
func Decide(d Decision) string {
	switch d.Action {
	case ActionSignOut:
		return PathLogin
	case ActionDeleteAccount:
		if d.Outcome == OutcomeSuccess {
			return PathLogin
		}
		return ""
	}

	switch d.Outcome {
	case OutcomeConfirmationPending:
		if d.Action == ActionSignUp {
			return PathLogin
		}
		return ""
	case OutcomeSuccess:
		if d.UserType == model.UserTypeServiceProvider {
			return PathSellerDashboard
		}
		return PathHome
	default:
		return ""
	}
}
