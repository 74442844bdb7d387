package api

import (
	"fmt"
	"strings"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/openalpha/termvault/api/middleware"
	"github.com/openalpha/termvault/api/websocket"
	termpooltypes "github.com/openalpha/termvault/x/termpool/types"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "TERMVAULT"

// Config contains server configuration
type Config struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	LogLevel  string
	LogFormat string // text or json

	// Chain seeds the standalone state machine
	Chain ChainConfig

	Faucet       bool
	DefaultDenom string

	// EventsDSN enables the Postgres event archive when set
	EventsDSN   string
	CORSOrigins []string

	DisableRateLimit bool
	RateLimit        *middleware.RateLimitConfig
	Hub              *websocket.HubConfig
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
		LogFormat:       "text",
		Chain: ChainConfig{
			Authority: authtypes.NewModuleAddress("gov").String(),
			Params:    termpooltypes.DefaultParams(),
		},
		DefaultDenom: "uusdc",
		CORSOrigins:  []string{"*"},
		RateLimit:    middleware.DefaultRateLimitConfig(),
		Hub:          websocket.DefaultHubConfig(),
	}
}

// Flag and config keys. Environment variables use the upper-cased key with
// dashes replaced, e.g. TERMVAULT_ROLE_ADMIN.
const (
	keyHost             = "host"
	keyPort             = "port"
	keyReadTimeout      = "read-timeout"
	keyWriteTimeout     = "write-timeout"
	keyShutdownTimeout  = "shutdown-timeout"
	keyLogLevel         = "log-level"
	keyLogFormat        = "log-format"
	keyAuthority        = "authority"
	keyApprovedAssets   = "approved-assets"
	keySnapshotInterval = "snapshot-interval"
	keyFaucet           = "faucet"
	keyDefaultDenom     = "default-denom"
	keyEventsDSN        = "events-dsn"
	keyCORSOrigins      = "cors-origins"
	keyNoRateLimit      = "no-rate-limit"
	keyRPS              = "rate-rps"
	keyBurst            = "rate-burst"
	keyWPS              = "rate-writes-per-second"
	keyWriteBurst       = "rate-write-burst"
	keyWritesPerDay     = "rate-writes-per-day"
	keyRateBlock        = "rate-block-duration"
	keyWSPerIP          = "ws-max-clients-per-ip"
	keyWSSubscriptions  = "ws-max-subscriptions"
	keyWSMessageRate    = "ws-message-rate"
	keyWSEventBuffer    = "ws-event-buffer"
)

var roleKeys = map[termpooltypes.Role]string{
	termpooltypes.RoleAdmin:     "role-admin",
	termpooltypes.RoleAgent:     "role-agent",
	termpooltypes.RoleOperator:  "role-operator",
	termpooltypes.RoleEmergency: "role-emergency",
}

// RegisterFlags adds every configuration flag to flags
func RegisterFlags(flags *pflag.FlagSet) {
	d := DefaultConfig()
	flags.String(keyHost, d.Host, "listen host")
	flags.Int(keyPort, d.Port, "listen port")
	flags.Duration(keyReadTimeout, d.ReadTimeout, "HTTP read timeout")
	flags.Duration(keyWriteTimeout, d.WriteTimeout, "HTTP write timeout")
	flags.Duration(keyShutdownTimeout, d.ShutdownTimeout, "graceful shutdown timeout")
	flags.String(keyLogLevel, d.LogLevel, "log level (debug, info, warn, error)")
	flags.String(keyLogFormat, d.LogFormat, "log format (text, json)")
	flags.String(keyAuthority, d.Chain.Authority, "governance authority address")
	flags.StringSlice(keyApprovedAssets, nil, "denoms pools may be created in (comma-separated)")
	flags.Int64(keySnapshotInterval, d.Chain.Params.SnapshotInterval, "blocks between pool value snapshots, 0 disables")
	for role, key := range roleKeys {
		flags.StringSlice(key, nil, fmt.Sprintf("addresses holding the %s role (comma-separated)", role))
	}
	flags.Bool(keyFaucet, d.Faucet, "enable POST /v1/accounts/{address}/fund")
	flags.String(keyDefaultDenom, d.DefaultDenom, "denom used when a balance request names none")
	flags.String(keyEventsDSN, "", "Postgres DSN of the event archive, empty disables it")
	flags.StringSlice(keyCORSOrigins, d.CORSOrigins, "allowed CORS origins (comma-separated)")
	flags.Bool(keyNoRateLimit, false, "disable rate limiting")
	flags.Int(keyRPS, d.RateLimit.RequestsPerSecond, "requests per second per client")
	flags.Int(keyBurst, d.RateLimit.Burst, "request burst per client")
	flags.Int(keyWPS, d.RateLimit.WritesPerSecond, "writes per second per client")
	flags.Int(keyWriteBurst, d.RateLimit.WriteBurst, "write burst per client")
	flags.Int(keyWritesPerDay, d.RateLimit.WritesPerDay, "writes per UTC day per client, 0 disables")
	flags.Duration(keyRateBlock, d.RateLimit.BlockDuration, "how long a client is blocked after exceeding a limit")
	flags.Int(keyWSPerIP, d.Hub.MaxClientsPerIP, "WebSocket connections per IP")
	flags.Int(keyWSSubscriptions, d.Hub.MaxSubscriptions, "subscriptions per WebSocket client")
	flags.Int(keyWSMessageRate, d.Hub.MessageRateLimit, "messages per second per WebSocket client")
	flags.Int(keyWSEventBuffer, d.Hub.EventBuffer, "event batches buffered for the WebSocket hub")
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	d := DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(keyHost, d.Host)
	v.SetDefault(keyPort, d.Port)
	v.SetDefault(keyReadTimeout, d.ReadTimeout)
	v.SetDefault(keyWriteTimeout, d.WriteTimeout)
	v.SetDefault(keyShutdownTimeout, d.ShutdownTimeout)
	v.SetDefault(keyLogLevel, d.LogLevel)
	v.SetDefault(keyLogFormat, d.LogFormat)
	v.SetDefault(keyAuthority, d.Chain.Authority)
	v.SetDefault(keySnapshotInterval, d.Chain.Params.SnapshotInterval)
	v.SetDefault(keyDefaultDenom, d.DefaultDenom)
	v.SetDefault(keyCORSOrigins, d.CORSOrigins)
	v.SetDefault(keyRPS, d.RateLimit.RequestsPerSecond)
	v.SetDefault(keyBurst, d.RateLimit.Burst)
	v.SetDefault(keyWPS, d.RateLimit.WritesPerSecond)
	v.SetDefault(keyWriteBurst, d.RateLimit.WriteBurst)
	v.SetDefault(keyWritesPerDay, d.RateLimit.WritesPerDay)
	v.SetDefault(keyRateBlock, d.RateLimit.BlockDuration)
	v.SetDefault(keyWSPerIP, d.Hub.MaxClientsPerIP)
	v.SetDefault(keyWSSubscriptions, d.Hub.MaxSubscriptions)
	v.SetDefault(keyWSMessageRate, d.Hub.MessageRateLimit)
	v.SetDefault(keyWSEventBuffer, d.Hub.EventBuffer)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("termvault")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	roles := termpooltypes.RoleTable{}
	for role, key := range roleKeys {
		for _, addr := range getStringSlice(v, key) {
			roles.Grant(role, addr)
		}
	}

	rateLimit := *d.RateLimit
	rateLimit.RequestsPerSecond = v.GetInt(keyRPS)
	rateLimit.Burst = v.GetInt(keyBurst)
	rateLimit.WritesPerSecond = v.GetInt(keyWPS)
	rateLimit.WriteBurst = v.GetInt(keyWriteBurst)
	rateLimit.WritesPerDay = v.GetInt(keyWritesPerDay)
	rateLimit.BlockDuration = v.GetDuration(keyRateBlock)

	cfg := &Config{
		Host:            v.GetString(keyHost),
		Port:            v.GetInt(keyPort),
		ReadTimeout:     v.GetDuration(keyReadTimeout),
		WriteTimeout:    v.GetDuration(keyWriteTimeout),
		ShutdownTimeout: v.GetDuration(keyShutdownTimeout),
		LogLevel:        v.GetString(keyLogLevel),
		LogFormat:       v.GetString(keyLogFormat),
		Chain: ChainConfig{
			Authority: v.GetString(keyAuthority),
			Params: termpooltypes.Params{
				ApprovedAssets:   getStringSlice(v, keyApprovedAssets),
				Roles:            roles,
				SnapshotInterval: v.GetInt64(keySnapshotInterval),
			},
		},
		Faucet:           v.GetBool(keyFaucet),
		DefaultDenom:     v.GetString(keyDefaultDenom),
		EventsDSN:        v.GetString(keyEventsDSN),
		CORSOrigins:      getStringSlice(v, keyCORSOrigins),
		DisableRateLimit: v.GetBool(keyNoRateLimit),
		RateLimit:        &rateLimit,
		Hub: &websocket.HubConfig{
			EventBuffer:      v.GetInt(keyWSEventBuffer),
			MaxClientsPerIP:  v.GetInt(keyWSPerIP),
			MaxSubscriptions: v.GetInt(keyWSSubscriptions),
			MessageRateLimit: v.GetInt(keyWSMessageRate),
		},
	}
	if cfg.Chain.Params.ApprovedAssets == nil {
		cfg.Chain.Params.ApprovedAssets = []string{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail at startup
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format %q", c.LogFormat)
	}
	if _, err := sdk.AccAddressFromBech32(c.Chain.Authority); err != nil {
		return fmt.Errorf("invalid authority %q: %w", c.Chain.Authority, err)
	}
	if err := sdk.ValidateDenom(c.DefaultDenom); err != nil {
		return fmt.Errorf("default denom: %w", err)
	}
	if c.Hub.EventBuffer <= 0 || c.Hub.MaxClientsPerIP <= 0 || c.Hub.MaxSubscriptions <= 0 {
		return fmt.Errorf("websocket limits must be positive")
	}
	if !c.DisableRateLimit && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit must be positive unless disabled")
	}
	return c.Chain.Params.Validate()
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	switch typed := v.Get(key).(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return cleanStrings(strings.Split(typed, ","))
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
