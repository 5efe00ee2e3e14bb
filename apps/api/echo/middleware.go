package echoapi

import (
	"net"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/sgacop30/sga/core/user"
)

const rateLimiterExpiry = 5 * time.Minute

// requireUser allows the request through when the context user passes check.
func requireUser(check func(user.User) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := mustContextUser(ctx)
			if err != nil {
				return err
			}
			if check(usr) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func staffMiddleware() echo.MiddlewareFunc {
	return requireUser(user.User.CanAccessAdmin)
}

func managerMiddleware() echo.MiddlewareFunc {
	return requireUser(user.User.IsManager)
}

func eventsStaffMiddleware() echo.MiddlewareFunc {
	return requireUser(user.User.IsEventsStaff)
}

func superuserMiddleware() echo.MiddlewareFunc {
	return requireUser(func(usr user.User) bool { return usr.IsSuperuser })
}

// newRateLimiter limits requests per context user, or per client IP when there is none.
// Denied requests get a 429 through the error handler.
func newRateLimiter(ratePerSecond float64, burst int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			if usr, ok := contextUser(ctx); ok {
				return "user:" + strconv.Itoa(usr.ID), nil
			}
			return "ip:" + ctx.RealIP(), nil
		},
		Store: store,
	})
}

// newIPExtractor honors X-Forwarded-For only when the request comes through one of
// the trusted proxies. With none configured the remote address is used as is.
func newIPExtractor(trusted []*net.IPNet) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, ipNet := range trusted {
		opts = append(opts, echo.TrustIPRange(ipNet))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}
