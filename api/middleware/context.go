package middleware

import "context"

// role keys the caller identities Identity stores on the request context.
type role string

const (
	roleOperator role = "operator"
	roleVendor   role = "vendor"
)

func identityFrom(ctx context.Context, r role) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(r).(string)
	return id
}

func withIdentity(ctx context.Context, r role, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, r, id)
}

// OperatorIDFromContext returns the back-office operator set by Identity, or "".
func OperatorIDFromContext(ctx context.Context) string { return identityFrom(ctx, roleOperator) }

// VendorIDFromContext returns the acting vendor set by Identity, or "".
func VendorIDFromContext(ctx context.Context) string { return identityFrom(ctx, roleVendor) }

func WithOperatorID(ctx context.Context, operatorID string) context.Context {
	return withIdentity(ctx, roleOperator, operatorID)
}

func WithVendorID(ctx context.Context, vendorID string) context.Context {
	return withIdentity(ctx, roleVendor, vendorID)
}
