package middlewares

// gin context keys
const (
	CtxRequestID = "request_id"
	CtxAccountID = "auth.accountID"
	CtxUsername  = "auth.username"
)
