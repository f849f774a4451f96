// Package auth keeps a client signed in against the TradeSense API.
//
// A Store holds the current access/refresh token pair. NewBearerInterceptor
// attaches the access token to every outgoing request, and Coordinator, used
// as the REST client's transport, turns a 401 into one token exchange
// followed by one replay of the original request. Concurrent 401s share a
// single exchange. When the exchange fails the store is cleared and the
// session-expired callback fires.
//
// Typical wiring:
//
//	store := auth.NewMemoryStore()
//	refresher := auth.NewHTTPRefresher(baseURL, log)
//	coordinator := auth.NewCoordinator(store, refresher,
//	    auth.WithLogger(log),
//	    auth.WithOnSessionExpired(func() { fmt.Println("please log in again") }),
//	)
//	client := http.NewBuilder(log).
//	    WithBaseURL(baseURL).
//	    WithTransport(coordinator).
//	    WithRequestInterceptor(auth.NewBearerInterceptor(store, log)).
//	    Build()
package auth
