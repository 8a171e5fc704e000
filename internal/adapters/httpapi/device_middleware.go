package httpapi

import (
	"net/http"

	"github.com/eskate/storefront-api/internal/domain"
)

// DeviceHeader carries the installation id of the mobile shell.
const DeviceHeader = "X-Device-ID"

// NewDeviceMiddleware requires a valid X-Device-ID header and stores the
// device id in the request context.
func NewDeviceMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(DeviceHeader)
			if raw == "" {
				writeError(w, r, http.StatusBadRequest, "MISSING_DEVICE_ID", "missing "+DeviceHeader+" header", nil)
				return
			}
			id, err := domain.ParseDeviceID(raw)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, "INVALID_DEVICE_ID", DeviceHeader+" must be 1-128 visible ASCII characters", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithDevice(r.Context(), id)))
		})
	}
}
