package model

// UserProfile 登录用户的资料，以 JSON 形式保存在 currentUser
type UserProfile struct {
	ID      string `json:"id,omitempty"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}
