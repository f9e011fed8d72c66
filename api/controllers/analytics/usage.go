package analytics

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/reelforge-backend/api/middleware"
	"github.com/angelmondragon/reelforge-backend/api/responses"
	"github.com/angelmondragon/reelforge-backend/internal/analytics"
	"github.com/angelmondragon/reelforge-backend/internal/analytics/types"
	pkgerrors "github.com/angelmondragon/reelforge-backend/pkg/errors"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
)

// UsageAnalytics reports the caller's generation activity over a preset or explicit window.
func UsageAnalytics(service analytics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if service == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "analytics unavailable"))
			return
		}

		userID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		window, err := parseUsageWindow(r.URL.Query(), clock())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := service.Usage(ctx, types.UsageQueryRequest{
			UserID: userID,
			Start:  window.start,
			End:    window.end,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}
