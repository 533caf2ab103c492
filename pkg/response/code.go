package response

// 传输层错误码，业务错误码由 apperr.Kind 提供
const (
	CodeTokenInvalid    = "TOKEN_INVALID"
	CodeNoPermission    = "NO_PERMISSION"
	CodeInvalidParam    = "INVALID_PARAM"
	CodeTooManyRequests = "TOO_MANY_REQUESTS"
	CodeServerInternal  = "INTERNAL_ERROR"
	CodeNotFound        = "NOT_FOUND"
)
