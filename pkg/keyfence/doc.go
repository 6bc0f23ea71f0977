// Package keyfence embeds API key admission in a single Go process.
//
// A Fence issues keys, authenticates "<keyId>.<secret>" credentials, enforces
// each key's token bucket and counts usage per key and day. By default every
// component lives in memory; pass WithBucketStore, WithRepository and
// WithAnalytics to share state through Redis and MongoDB instead.
//
// # Quick Start
//
//	fence, err := keyfence.New(keyfence.WithDefaultLimit(100, 60))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer fence.Close(context.Background())
//
//	issued, _ := fence.CreateKey(ctx, keys.CreateParams{OwnerID: "user-123"})
//	fmt.Println("credential:", issued.Secret)
//
//	http.Handle("/api/", fence.Middleware(yourHandler))
//
// The middleware reads the credential from X-API-Key or
// "Authorization: ApiKey <credential>" and sets:
//   - X-RateLimit-Limit: requests allowed per window
//   - X-RateLimit-Remaining: whole tokens left (omitted when the bucket store is down and the fence fails open)
//   - Retry-After: seconds to wait (when rate limited)
//
// # Configuration
//
// WithConfigFile loads the same YAML file the server accepts:
//
//	rate_limit:
//	  default_limit: 100
//	  default_window_seconds: 60
//	  failure_policy: open
//	usage:
//	  emitter_buffer: 1024
package keyfence
