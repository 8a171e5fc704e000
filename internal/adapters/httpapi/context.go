package httpapi

import (
	"context"

	"github.com/eskate/storefront-api/internal/domain"
)

type deviceKey struct{}

func WithDevice(ctx context.Context, id domain.DeviceID) context.Context {
	return context.WithValue(ctx, deviceKey{}, id)
}

func DeviceFromContext(ctx context.Context) (domain.DeviceID, bool) {
	v, ok := ctx.Value(deviceKey{}).(domain.DeviceID)
	return v, ok && v != ""
}
