package dispatch

// ConfigField describes one credential or connection field a provider type
// needs. The catalog is pure data used to render admin configuration forms.
type ConfigField struct {
	// Key is the settings map key the adapter reads.
	Key string `json:"key"`

	// Label is a human-readable field name.
	Label string `json:"label"`

	// Required marks fields the adapter rejects the config without.
	Required bool `json:"required"`

	// Secret marks credentials that should be masked in UIs.
	Secret bool `json:"secret"`
}

// ProviderInfo describes one supported provider type and the configuration
// it needs.
type ProviderInfo struct {
	Type         ProviderType  `json:"type"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	ConfigFields []ConfigField `json:"config_fields"`
}

// AvailableProviders returns the static catalog of supported provider types.
// The field keys match exactly what each adapter reads from its settings.
func AvailableProviders() []ProviderInfo {
	return []ProviderInfo{
		{
			Type:        ProviderSES,
			Name:        "Amazon SES",
			Description: "Amazon Simple Email Service",
			ConfigFields: []ConfigField{
				{Key: "region", Label: "AWS region", Required: true},
				{Key: "access_key", Label: "Access key ID"},
				{Key: "secret_key", Label: "Secret access key", Secret: true},
				{Key: "session_token", Label: "Session token", Secret: true},
				{Key: "configuration_set", Label: "Configuration set"},
			},
		},
		{
			Type:        ProviderSendGrid,
			Name:        "SendGrid",
			Description: "Twilio SendGrid v3 mail send API",
			ConfigFields: []ConfigField{
				{Key: "api_key", Label: "API key", Required: true, Secret: true},
			},
		},
		{
			Type:        ProviderMailgun,
			Name:        "Mailgun",
			Description: "Mailgun messages API",
			ConfigFields: []ConfigField{
				{Key: "api_key", Label: "API key", Required: true, Secret: true},
				{Key: "domain", Label: "Sending domain", Required: true},
				{Key: "base_url", Label: "API base URL (EU accounts)"},
			},
		},
		{
			Type:        ProviderSparkPost,
			Name:        "SparkPost",
			Description: "SparkPost transmissions API",
			ConfigFields: []ConfigField{
				{Key: "api_key", Label: "API key", Required: true, Secret: true},
				{Key: "base_url", Label: "API base URL (EU accounts)"},
			},
		},
		{
			Type:        ProviderElasticEmail,
			Name:        "ElasticEmail",
			Description: "ElasticEmail v2 HTTP API",
			ConfigFields: []ConfigField{
				{Key: "api_key", Label: "API key", Required: true, Secret: true},
				{Key: "base_url", Label: "API base URL"},
			},
		},
		{
			Type:        ProviderSMTP,
			Name:        "SMTP",
			Description: "Generic SMTP relay",
			ConfigFields: []ConfigField{
				{Key: "host", Label: "Host", Required: true},
				{Key: "port", Label: "Port", Required: true},
				{Key: "username", Label: "Username"},
				{Key: "password", Label: "Password", Secret: true},
				{Key: "tls", Label: "Require STARTTLS (true/false)"},
				{Key: "tls_skip_verify", Label: "Skip TLS verification (true/false)"},
			},
		},
		{
			Type:        ProviderPostal,
			Name:        "Postal",
			Description: "Self-hosted Postal server",
			ConfigFields: []ConfigField{
				{Key: "endpoint", Label: "Server URL", Required: true},
				{Key: "api_key", Label: "Server API key", Required: true, Secret: true},
			},
		},
	}
}
