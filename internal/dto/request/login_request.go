package request

// LoginRequest 写入服务端签发的 token 与用户信息
// 登录流程本身由后端完成，这里只负责保存结果
type LoginRequest struct {
	Token string `json:"token" binding:"required"`
	Email string `json:"email" binding:"omitempty,email"`
	Name  string `json:"name"`
}
