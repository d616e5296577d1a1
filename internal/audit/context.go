package audit

import "context"

type clientIPKey struct{}

// WithClientIP attaches the caller's address so events recorded further down
// the call chain carry it
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIP returns the address set by WithClientIP, or ""
func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}
