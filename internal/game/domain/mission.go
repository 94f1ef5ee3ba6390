package domain

// Mission is a predefined scenario definition. The engine treats missions as
// read-only content; only the narrative prompt builder inspects the fields.
type Mission struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Description  string  `json:"description,omitempty"`
	Objective    string  `json:"objective,omitempty"`
	RewardPoints float64 `json:"reward_points,omitempty"`
	RewardMoney  float64 `json:"reward_money,omitempty"`
	Difficulty   string  `json:"difficulty,omitempty"`
}
