package constants

// Deployment environments
const (
	EnvDevelop    = "develop"
	EnvStaging    = "staging"
	EnvProduction = "production"
)

// Login session store drivers
const (
	StoreDriverMemory   = "memory"
	StoreDriverBbolt    = "bbolt"
	StoreDriverPostgres = "postgres"
)

// Outbound mail providers
const (
	MailProviderLog     = "log"
	MailProviderLocal   = "local"
	MailProviderGoogle  = "google"
	MailProviderGoCloud = "gocloud"
)

// Mail worker transports
const (
	MailTransportLog     = "log"
	MailTransportWebhook = "webhook"
)
