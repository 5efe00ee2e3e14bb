package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug    bool
		TestMode bool
		AppName  string
		Build    string
		Env      string

		SecretKey                 string
		FrontendBaseURL           string
		DefaultFromEmail          mail.Address
		PasswordResetTimeoutDelta time.Duration

		SendgridApiKey string
		RollbarToken   string

		Server       ServerConfig
		Database     DatabaseConfig
		Push         PushConfig
		Passe        PasseConfig
		Notification NotificationConfig
	}

	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		QRRateLimit               float64 // requests per second per client
		QRRateBurst               int
		TrustedProxies            []*net.IPNet // X-Forwarded-For is only honored from these
		DisableReqLogs            bool
	}

	DatabaseConfig struct {
		Engine        string // postgres | memory
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	PushConfig struct {
		OneSignalAppID  string
		OneSignalAPIKey string
		BaseURL         string
		Timeout         time.Duration
	}

	PasseConfig struct {
		CodeLifetime time.Duration
		TOTPIssuer   string
		TOTPPeriod   time.Duration
	}

	NotificationConfig struct {
		TTL               time.Duration
		ReminderInterval  time.Duration
		ReminderLookahead time.Duration
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c DatabaseConfig) InMemory() bool {
	return c.Engine == "memory"
}

func (c PushConfig) Enabled() bool {
	return c.OneSignalAppID != "" && c.OneSignalAPIKey != ""
}

// NewConfig reads the configuration for the current ENV (DEV by default).
// Values come from defaults, then config/.env.<env>, then <ENV>_* environment variables.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "SGA COP 30")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "b7!m$q2k9x)w@3n+c#z8v^t5r&p1l0j6")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "SGA COP 30 <noreply@localhost>")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", "0.0.0.0:8000")
	v.SetDefault("server.debugHost", "0.0.0.0:4000")
	v.SetDefault("server.readTimeout", 5*time.Second)
	v.SetDefault("server.writeTimeout", 5*time.Second)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 30*24*time.Hour)
	v.SetDefault("server.qrRateLimit", 1.0)
	v.SetDefault("server.qrRateBurst", 60)
	v.SetDefault("server.trustedProxies", []string{})
	v.SetDefault("server.disableReqLogs", false)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "sgacop30")
	v.SetDefault("database.user", "sgacop30")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("push.oneSignalAppID", "")
	v.SetDefault("push.oneSignalAPIKey", "")
	v.SetDefault("push.baseURL", "https://api.onesignal.com")
	v.SetDefault("push.timeout", 10*time.Second)

	v.SetDefault("passe.codeLifetime", 60*time.Second)
	v.SetDefault("passe.totpIssuer", "SGA COP 30")
	v.SetDefault("passe.totpPeriod", 30*time.Second)

	v.SetDefault("notification.ttl", 10*24*time.Hour)
	v.SetDefault("notification.reminderInterval", time.Hour)
	v.SetDefault("notification.reminderLookahead", 24*time.Hour)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
		v.SetDefault("database.engine", "memory")
	case "PROD":
		v.SetDefault("debug", false)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(configDir(), ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	fromEmail, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config.defaultFromEmail: %v", err)
	}
	trustedProxies, err := ParseCIDRs(v.GetStringSlice("server.trustedProxies"))
	if err != nil {
		log.Fatalf("config.server.trustedProxies: %v", err)
	}

	return &Config{
		Debug:    v.GetBool("debug"),
		TestMode: v.GetBool("testMode"),
		AppName:  v.GetString("appName"),
		Build:    v.GetString("build"),
		Env:      env,

		SecretKey:                 v.GetString("secretKey"),
		FrontendBaseURL:           strings.TrimRight(v.GetString("frontendBaseURL"), "/"),
		DefaultFromEmail:          *fromEmail,
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),

		SendgridApiKey: v.GetString("sendgridApiKey"),
		RollbarToken:   v.GetString("rollbarToken"),

		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			DebugHost:                 v.GetString("server.debugHost"),
			ReadTimeout:               v.GetDuration("server.readTimeout"),
			WriteTimeout:              v.GetDuration("server.writeTimeout"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			QRRateLimit:               v.GetFloat64("server.qrRateLimit"),
			QRRateBurst:               v.GetInt("server.qrRateBurst"),
			TrustedProxies:            trustedProxies,
			DisableReqLogs:            v.GetBool("server.disableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Push: PushConfig{
			OneSignalAppID:  v.GetString("push.oneSignalAppID"),
			OneSignalAPIKey: v.GetString("push.oneSignalAPIKey"),
			BaseURL:         strings.TrimRight(v.GetString("push.baseURL"), "/"),
			Timeout:         v.GetDuration("push.timeout"),
		},
		Passe: PasseConfig{
			CodeLifetime: v.GetDuration("passe.codeLifetime"),
			TOTPIssuer:   v.GetString("passe.totpIssuer"),
			TOTPPeriod:   v.GetDuration("passe.totpPeriod"),
		},
		Notification: NotificationConfig{
			TTL:               v.GetDuration("notification.ttl"),
			ReminderInterval:  v.GetDuration("notification.reminderInterval"),
			ReminderLookahead: v.GetDuration("notification.reminderLookahead"),
		},
	}
}

// NewTestConfig returns a Config suitable for tests: in-memory storage, no request logs.
func NewTestConfig() *Config {
	conf := NewConfig()
	conf.Debug = false
	conf.TestMode = true
	conf.Database.Engine = "memory"
	conf.Server.DisableReqLogs = true
	conf.Push.OneSignalAppID = ""
	conf.Push.OneSignalAPIKey = ""
	return conf
}

// ParseCIDRs parses comma or space separated CIDR ranges. A bare IP is a single host range.
func ParseCIDRs(entries []string) ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, entry := range entries {
		for _, cidr := range strings.Split(entry, ",") {
			cidr = strings.TrimSpace(cidr)
			if cidr == "" {
				continue
			}
			if !strings.Contains(cidr, "/") {
				ip := net.ParseIP(cidr)
				if ip == nil {
					return nil, &net.ParseError{Type: "IP address", Text: cidr}
				}
				bits := 8 * net.IPv6len
				if ip4 := ip.To4(); ip4 != nil {
					ip, bits = ip4, 8*net.IPv4len
				}
				nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
				continue
			}
			_, ipNet, err := net.ParseCIDR(cidr)
			if err != nil {
				return nil, err
			}
			nets = append(nets, ipNet)
		}
	}
	return nets, nil
}

func configDir() string {
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		return dir
	}
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	return filepath.Join(wd, "config")
}
