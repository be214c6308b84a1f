package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/slighter12/go-lib/database/postgres"
)

const (
	defaultPath               = "."
	defaultMaxRequestBodySize = "16KB"

	defaultStoreDriver  = "memory"
	defaultStoreTimeout = 3 * time.Second

	defaultIssuer             = "otpgate"
	defaultCredentialTTL      = 24 * time.Hour
	defaultOTPLength          = 6
	defaultCodeTTL            = 10 * time.Minute
	defaultSessionTTL         = 30 * time.Minute
	defaultMaxAttempts        = 5
	defaultResendCooldown     = 30 * time.Second
	defaultMaxResends         = 5
	defaultCookieName         = "session"
	defaultDefaultDestination = "/"
	defaultRetention          = time.Hour

	defaultMailProvider = "log"
	defaultMailTimeout  = 10 * time.Second
	defaultMailSubject  = "Your sign-in code"
	defaultProductName  = "otpgate"

	defaultWorkerTransport = "log"
)

type Config struct {
	Env struct {
		Env         string `json:"env" yaml:"env"`
		ServiceName string `json:"serviceName" yaml:"serviceName"`
		Debug       bool   `json:"debug" yaml:"debug"`
		Log         Log    `json:"log" yaml:"log"`
	} `json:"env" yaml:"env"`

	HTTP struct {
		Port               int    `json:"port" yaml:"port"`
		MaxRequestBodySize string `json:"maxRequestBodySize" yaml:"maxRequestBodySize"`
		Timeouts           struct {
			ReadTimeout       time.Duration `json:"readTimeout" yaml:"readTimeout"`
			ReadHeaderTimeout time.Duration `json:"readHeaderTimeout" yaml:"readHeaderTimeout"`
			WriteTimeout      time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
			IdleTimeout       time.Duration `json:"idleTimeout" yaml:"idleTimeout"`
		} `json:"timeouts" yaml:"timeouts"`
		AllowOrigins []string `json:"allowOrigins" yaml:"allowOrigins"`
	} `json:"http" yaml:"http"`

	Postgres *postgres.DBConn `json:"postgres" yaml:"postgres" mapstructure:"postgres"`

	Bbolt *BboltConfig `json:"bbolt" yaml:"bbolt"`

	// Store selects the login session backend
	Store StoreConfig `json:"store" yaml:"store"`

	SecretKey struct {
		Session string `json:"session" yaml:"session"`
	} `json:"secretKey" yaml:"secretKey"`

	Auth AuthConfig `json:"auth" yaml:"auth"`

	// LoginSession configuration for the expired session reaper
	LoginSession LoginSessionConfig `json:"loginSession" yaml:"loginSession"`

	// Mail configuration for verification code dispatch
	Mail MailConfig `json:"mail" yaml:"mail"`

	// Worker configuration for the mail push worker
	Worker WorkerConfig `json:"worker" yaml:"worker"`
}

type Log struct {
	Pretty bool   `json:"pretty" yaml:"pretty"`
	Level  string `json:"level" yaml:"level"`
}

// BboltConfig defines the embedded store file
type BboltConfig struct {
	Path    string        `json:"path" yaml:"path"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// StoreConfig defines which backend holds login sessions and users
type StoreConfig struct {
	// Driver is one of "memory", "bbolt" or "postgres"
	Driver string `json:"driver" yaml:"driver"`

	// Timeout bounds every store call made by the login flow
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Migrate runs the embedded schema migrations on startup (postgres only)
	Migrate bool `json:"migrate" yaml:"migrate"`
}

// AuthConfig defines the login flow and credential settings
type AuthConfig struct {
	Issuer           string        `json:"issuer" yaml:"issuer"`
	CredentialTTL    time.Duration `json:"credentialTTL" yaml:"credentialTTL"`
	MaxCredentialAge time.Duration `json:"maxCredentialAge" yaml:"maxCredentialAge"`

	OTP    OTPConfig    `json:"otp" yaml:"otp"`
	Cookie CookieConfig `json:"cookie" yaml:"cookie"`

	// Destinations maps a role to its landing path
	Destinations       map[string]string `json:"destinations" yaml:"destinations"`
	DefaultDestination string            `json:"defaultDestination" yaml:"defaultDestination"`

	// Users seeds the directory for the memory and bbolt drivers
	Users []UserSeed `json:"users" yaml:"users"`
}

// OTPConfig defines code generation, expiry and throttling
type OTPConfig struct {
	Length         int           `json:"length" yaml:"length"`
	CodeTTL        time.Duration `json:"codeTTL" yaml:"codeTTL"`
	SessionTTL     time.Duration `json:"sessionTTL" yaml:"sessionTTL"`
	MaxAttempts    int           `json:"maxAttempts" yaml:"maxAttempts"`
	ResendCooldown time.Duration `json:"resendCooldown" yaml:"resendCooldown"`
	MaxResends     int           `json:"maxResends" yaml:"maxResends"`
}

// CookieConfig defines the session cookie attributes
type CookieConfig struct {
	Name   string `json:"name" yaml:"name"`
	Domain string `json:"domain" yaml:"domain"`

	// Secure forces the Secure attribute outside production
	Secure bool `json:"secure" yaml:"secure"`

	// Persistent sets Max-Age to the credential TTL instead of a browser-session cookie
	Persistent bool `json:"persistent" yaml:"persistent"`
}

// UserSeed is one directory entry loaded from configuration
type UserSeed struct {
	ID    string `json:"id" yaml:"id"`
	Email string `json:"email" yaml:"email"`
	Name  string `json:"name" yaml:"name"`
	Role  string `json:"role" yaml:"role"`
}

// LoginSessionConfig defines background cleanup of finished sessions
type LoginSessionConfig struct {
	// ReapInterval between cleanup runs; zero disables the reaper
	ReapInterval time.Duration `json:"reapInterval" yaml:"reapInterval"`

	// Retention keeps expired sessions around this long past their ceiling
	Retention time.Duration `json:"retention" yaml:"retention"`
}

// MailConfig defines how verification codes leave the service
type MailConfig struct {
	// Provider type: "log", "local", "google" or "gocloud"
	Provider string        `json:"provider" yaml:"provider"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`

	From        string `json:"from" yaml:"from"`
	Subject     string `json:"subject" yaml:"subject"`
	ProductName string `json:"productName" yaml:"productName"`

	// Google Cloud project and topic (for google provider)
	ProjectID       string `json:"projectId" yaml:"projectId"`
	TopicID         string `json:"topicId" yaml:"topicId"`
	CredentialsFile string `json:"credentialsFile" yaml:"credentialsFile"`

	// Emulator or private endpoint for the google provider
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Local HTTP endpoint for development (for local provider)
	LocalEndpoint string `json:"localEndpoint" yaml:"localEndpoint"`

	// Portable topic URL, e.g. mem://mail or gcppubsub://projects/p/topics/t (for gocloud provider)
	TopicURL string `json:"topicUrl" yaml:"topicUrl"`
}

// WorkerConfig defines the mail push worker
type WorkerConfig struct {
	Port int `json:"port" yaml:"port"`

	// Transport type: "log" or "webhook"
	Transport  string `json:"transport" yaml:"transport"`
	WebhookURL string `json:"webhookUrl" yaml:"webhookUrl"`

	// VerifyPushAuth checks the Google-signed token on push requests
	VerifyPushAuth bool `json:"verifyPushAuth" yaml:"verifyPushAuth"`
}

// LoadWithEnv loads .yaml files through koanf.
func LoadWithEnv[T any](currEnv string, configPath ...string) (*T, error) {
	cfg := new(T)
	koanfInstance := koanf.New(".")

	// Build list of paths to search for config file
	searchPaths := []string{defaultPath}
	if len(configPath) != 0 {
		pwd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "os.Getwd")
		}
		for _, path := range configPath {
			abs := filepath.Join(pwd, path)
			searchPaths = append(searchPaths, abs)
		}
	}

	// Try to find and load the config file
	var configFile string
	var found bool
	for _, path := range searchPaths {
		candidate := filepath.Join(path, currEnv+".yaml")
		if _, err := os.Stat(candidate); err == nil {
			configFile = candidate
			found = true

			break
		}
	}

	if !found {
		return nil, errors.Errorf("config file %s.yaml not found in any search path", currEnv)
	}

	// Load YAML config file
	if err := koanfInstance.Load(file.Provider(configFile), yaml.Parser()); err != nil {
		return nil, errors.Wrapf(err, "read %s config failed", currEnv)
	}

	existingConfigMap := koanfInstance.Raw()

	// Load environment variables
	if err := koanfInstance.Load(env.Provider(".", env.Opt{
		TransformFunc: func(k, v string) (string, any) {
			// Convert ENV_VAR_NAME to path and align each segment with existing YAML keys.
			// Example: POSTGRES_SSLMODE -> postgres.sslMode (not postgres.sslmode)
			key := canonicalizeEnvKey(k, existingConfigMap)

			return key, v
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env variables failed")
	}

	// Unmarshal into the config struct (case-insensitive to match env vars)
	if err := koanfInstance.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			MatchName: func(mapKey, fieldName string) bool {
				// Case-insensitive matching for env var overrides
				return strings.EqualFold(mapKey, fieldName)
			},
		},
	}); err != nil {
		return nil, errors.Wrapf(err, "unmarshal %s config failed", currEnv)
	}

	return cfg, nil
}

func New() (*Config, error) {
	cfg, err := LoadWithEnv[Config]("config", "config", "../config", "../../config")
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	// Build replicas from environment variables (POSTGRES_REPLICAS_0_HOST, POSTGRES_REPLICAS_0_PORT, etc.)
	if cfg.Postgres != nil {
		cfg.Postgres.Replicas = buildReplicasFromEnv()
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.HTTP.MaxRequestBodySize) == "" {
		cfg.HTTP.MaxRequestBodySize = defaultMaxRequestBodySize
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = defaultStoreDriver
	}
	cfg.Store.Driver = strings.ToLower(cfg.Store.Driver)
	if cfg.Store.Timeout <= 0 {
		cfg.Store.Timeout = defaultStoreTimeout
	}

	auth := &cfg.Auth
	if auth.Issuer == "" {
		auth.Issuer = defaultIssuer
	}
	if auth.CredentialTTL <= 0 {
		auth.CredentialTTL = defaultCredentialTTL
	}
	if auth.MaxCredentialAge <= 0 || auth.MaxCredentialAge < auth.CredentialTTL {
		auth.MaxCredentialAge = auth.CredentialTTL
	}
	if auth.OTP.Length <= 0 {
		auth.OTP.Length = defaultOTPLength
	}
	if auth.OTP.CodeTTL <= 0 {
		auth.OTP.CodeTTL = defaultCodeTTL
	}
	if auth.OTP.SessionTTL <= 0 {
		auth.OTP.SessionTTL = defaultSessionTTL
	}
	// The attempt ceiling can never end before the first code does.
	if auth.OTP.SessionTTL < auth.OTP.CodeTTL {
		auth.OTP.SessionTTL = auth.OTP.CodeTTL
	}
	if auth.OTP.MaxAttempts <= 0 {
		auth.OTP.MaxAttempts = defaultMaxAttempts
	}
	if auth.OTP.ResendCooldown < 0 {
		auth.OTP.ResendCooldown = 0
	} else if auth.OTP.ResendCooldown == 0 {
		auth.OTP.ResendCooldown = defaultResendCooldown
	}
	if auth.OTP.MaxResends <= 0 {
		auth.OTP.MaxResends = defaultMaxResends
	}
	if auth.Cookie.Name == "" {
		auth.Cookie.Name = defaultCookieName
	}
	if auth.DefaultDestination == "" {
		auth.DefaultDestination = defaultDefaultDestination
	}

	if cfg.LoginSession.Retention <= 0 {
		cfg.LoginSession.Retention = defaultRetention
	}

	if cfg.Mail.Provider == "" {
		cfg.Mail.Provider = defaultMailProvider
	}
	if cfg.Mail.Timeout <= 0 {
		cfg.Mail.Timeout = defaultMailTimeout
	}
	if cfg.Mail.Subject == "" {
		cfg.Mail.Subject = defaultMailSubject
	}
	if cfg.Mail.ProductName == "" {
		cfg.Mail.ProductName = defaultProductName
	}

	if cfg.Worker.Transport == "" {
		cfg.Worker.Transport = defaultWorkerTransport
	}
	if cfg.Worker.Port == 0 {
		cfg.Worker.Port = cfg.HTTP.Port + 1
	}
}

func canonicalizeEnvKey(rawKey string, existing map[string]any) string {
	segments := strings.Split(strings.ToLower(rawKey), "_")
	canonical := make([]string, 0, len(segments))
	current := existing

	for _, segment := range segments {
		if segment == "" {
			continue
		}

		if matched, next, ok := findExistingSegment(current, segment); ok {
			canonical = append(canonical, matched)
			current = next
		} else {
			canonical = append(canonical, segment)
			current = nil
		}
	}

	return strings.Join(canonical, ".")
}

func findExistingSegment(current map[string]any, segment string) (matched string, next map[string]any, ok bool) {
	if len(current) == 0 {
		return "", nil, false
	}

	needle := normalizeToken(segment)
	for key, value := range current {
		if normalizeToken(key) != needle {
			continue
		}

		child, _ := value.(map[string]any)

		return key, child, true
	}

	return "", nil, false
}

func normalizeToken(s string) string {
	var normalized strings.Builder
	normalized.Grow(len(s))

	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		normalized.WriteRune(unicode.ToLower(r))
	}

	return normalized.String()
}

// buildReplicasFromEnv builds the replicas slice from environment variables.
// Environment variable format: POSTGRES_REPLICAS_{index}_{field}
// Example: POSTGRES_REPLICAS_0_HOST, POSTGRES_REPLICAS_0_PORT, POSTGRES_REPLICAS_0_USERNAME, POSTGRES_REPLICAS_0_PASSWORD
func buildReplicasFromEnv() []postgres.ConnectionConfig {
	var replicas []postgres.ConnectionConfig

	for i := 0; ; i++ {
		prefix := "POSTGRES_REPLICAS_" + strconv.Itoa(i) + "_"

		host := os.Getenv(prefix + "HOST")
		port := os.Getenv(prefix + "PORT")
		if host == "" || port == "" {
			// No more replicas or incomplete configuration.
			break
		}

		replica := postgres.ConnectionConfig{
			Host:     host,
			Port:     port,
			UserName: os.Getenv(prefix + "USERNAME"),
			Password: os.Getenv(prefix + "PASSWORD"),
		}

		replicas = append(replicas, replica)
	}

	return replicas
}
