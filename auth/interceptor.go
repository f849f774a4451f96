package auth

import (
	"context"
	nethttp "net/http"

	"golang.org/x/net/http/httpguts"

	tshttp "github.com/tradesense/tradesense-go/http"
	"github.com/tradesense/tradesense-go/logger"
)

// NewBearerInterceptor attaches the store's access token to every request.
// It reads the store at send time and never blocks or fails: an unusable
// token or a panicking store is logged and the request goes out without
// credentials. A request that already carries an Authorization header is
// left as is.
func NewBearerInterceptor(store Store, log logger.Logger) tshttp.RequestInterceptor {
	if log == nil {
		log = logger.Nop()
	}

	return func(ctx context.Context, req *nethttp.Request) error {
		defer func() {
			if r := recover(); r != nil {
				log.WithContext(ctx).Error().
					Interface("panic", r).
					Str("url", req.URL.String()).
					Msg("Bearer interceptor recovered, sending request without credentials")
			}
		}()

		if req.Header.Get(HeaderAuthorization) != "" {
			return nil
		}

		token := store.Tokens().AccessToken
		if token == "" {
			return nil
		}

		value := BearerPrefix + token
		if !httpguts.ValidHeaderFieldValue(value) {
			log.WithContext(ctx).Warn().
				Str("url", req.URL.String()).
				Msg("Access token is not a valid header value, sending request without credentials")
			return nil
		}

		req.Header.Set(HeaderAuthorization, value)
		return nil
	}
}
