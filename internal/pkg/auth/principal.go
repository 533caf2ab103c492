package auth

// Role 调用方角色
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Principal 已认证的调用方，由 AuthMiddleware 注入
type Principal struct {
	UserID string
	Role   Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanAccess 只有资源所有者或管理员可以读写
func (p Principal) CanAccess(ownerID string) bool {
	return p.IsAdmin() || (p.UserID != "" && p.UserID == ownerID)
}
