package admin

// DashboardStats は管理画面に表示する集計値。
// デモ用の固定値で、実データは集計しない。
type DashboardStats struct {
	TotalUsers       int           `json:"totalUsers"`
	ServiceProviders int           `json:"serviceProviders"`
	ActiveListings   int           `json:"activeListings"`
	TotalBookings    int           `json:"totalBookings"`
	MonthlyRevenue   float64       `json:"monthlyRevenue"`
	RecentActivity   []ActivityRow `json:"recentActivity"`
}

// ActivityRow は最近のアクティビティ1件。
type ActivityRow struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
	When        string `json:"when"`
}

// MockDashboard はデモ用の集計値を返す。
func MockDashboard() DashboardStats {
	return DashboardStats{
		TotalUsers:       1248,
		ServiceProviders: 86,
		ActiveListings:   214,
		TotalBookings:    3412,
		MonthlyRevenue:   48250.75,
		RecentActivity: []ActivityRow{
			{Kind: "booking", Description: "New grooming booking at Happy Tails", When: "5 minutes ago"},
			{Kind: "signup", Description: "New service provider registered", When: "1 hour ago"},
			{Kind: "listing", Description: "Boarding listing updated", When: "3 hours ago"},
		},
	}
}
