// Package dispatch provides the outbound email dispatch core for a
// multi-tenant sending platform: a provider-agnostic layer that
// load-balances, rate-limits, and fails over across a tenant's configured
// sending servers (Amazon SES, SendGrid, Mailgun, SparkPost, ElasticEmail,
// generic SMTP, Postal).
//
// # Basic Usage
//
//	st, err := store.Open("dispatch.db")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer st.Close()
//
//	client, err := dispatch.New(st, st)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	email := &dispatch.Email{
//		From:     dispatch.Address{Email: "news@example.com", Name: "Example"},
//		To:       []dispatch.Address{{Email: "user@example.com"}},
//		Subject:  "Welcome",
//		HTMLBody: "<h1>Welcome!</h1>",
//		TextBody: "Welcome!",
//	}
//
//	result := client.SendEmail(ctx, email, "tenant-1", dispatch.StrategyRoundRobin)
//	if !result.Success {
//		log.Println("send failed:", result.Error)
//	}
//
// # Model
//
// Each tenant owns a set of sending servers: a provider type plus a
// credential bundle and optional hourly/daily quotas. A send fetches the
// tenant's active servers, picks one with the requested strategy
// (round_robin, weighted, least_used, failover), skips to another candidate
// once if the pick has exhausted its quota, sends through the matching
// provider adapter, and appends an audit entry with the outcome. Quota
// windows are calendar-aligned and counted against the shared audit store,
// so horizontally scaled dispatchers do not over-send.
//
// SendEmail always returns a structured SendResult; provider and
// configuration failures are reported in the result rather than as errors.
// Provider-level send failures are not retried on another server — callers
// own any broader retry policy.
package dispatch
