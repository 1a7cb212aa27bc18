// Package providers assembles the built-in adapter set.
package providers

import (
	"github.com/sendforge/dispatch/internal/core"
	"github.com/sendforge/dispatch/internal/providers/elasticemail"
	"github.com/sendforge/dispatch/internal/providers/mailgun"
	"github.com/sendforge/dispatch/internal/providers/postal"
	"github.com/sendforge/dispatch/internal/providers/sendgrid"
	"github.com/sendforge/dispatch/internal/providers/ses"
	"github.com/sendforge/dispatch/internal/providers/smtp"
	"github.com/sendforge/dispatch/internal/providers/sparkpost"
)

// Defaults returns one adapter instance per supported provider type, keyed
// by the adapter's type tag. Instances are stateless and shared across all
// sends for the life of the process.
func Defaults() map[string]core.Adapter {
	adapters := []core.Adapter{
		ses.New(),
		sendgrid.New(),
		mailgun.New(),
		sparkpost.New(),
		elasticemail.New(),
		smtp.New(),
		postal.New(),
	}

	byName := make(map[string]core.Adapter, len(adapters))
	for _, adapter := range adapters {
		byName[adapter.Name()] = adapter
	}
	return byName
}
