package models

// Stats is the admin dashboard summary.
type Stats struct {
	Users       int            `json:"users"`
	ActiveUsers int            `json:"activeUsers"`
	Items       map[string]int `json:"items"`
	Swaps       map[string]int `json:"swaps"`
}
