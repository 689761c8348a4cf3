package model

// DeletionSummary はアカウント削除で削除された行数の内訳。
type DeletionSummary struct {
	Bookings  int64
	Listings  int64
	Providers int64
	Profiles  int64
	Sessions  int64
}

// DeleteAccountResponse はアカウント削除エンドポイントのレスポンス。
type DeleteAccountResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
