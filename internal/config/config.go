package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"courtbot/internal/calendar"
)

type Config struct {
	HTTPAddr             string
	DatabaseURL          string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	JWTSecret string
	PublicURL string

	// PhoneKey is the secret every stored phone number is encrypted with.
	PhoneKey string

	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string

	QueueTTLDays     int
	ReminderLead     time.Duration
	SendTimeout      time.Duration
	SweepConcurrency int
	LegacyQueue      bool

	DataURL     string
	RedisURL    string
	RunInterval time.Duration

	Court Court
}

// Court is the per-deployment profile: who the court is, how its export is
// laid out and what the messages say.
type Court struct {
	Name      string            `yaml:"name"`
	URL       string            `yaml:"url"`
	Layout    calendar.Layout   `yaml:"layout"`
	Templates map[string]string `yaml:"templates"`
}

func (c Court) Location() (*time.Location, error) {
	if c.Layout.TimeZone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Layout.TimeZone)
}

func Load() (Config, error) {
	_ = godotenv.Load()

	var missing []string
	required := func(key string) string {
		v := getenv(key, "")
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:          required("DATABASE_URL"),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",
		JWTSecret:            getenv("JWT_SECRET", ""),
		PublicURL:            strings.TrimRight(getenv("PUBLIC_URL", ""), "/"),
		PhoneKey:             required("PHONE_ENCRYPTION_KEY"),
		TwilioAccountSID:     getenv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:      getenv("TWILIO_AUTH_TOKEN", ""),
		TwilioPhoneNumber:    getenv("TWILIO_PHONE_NUMBER", ""),
		LegacyQueue:          getenv("LEGACY_QUEUE", "false") == "true",
		DataURL:              getenv("DATA_URL", ""),
		RedisURL:             getenv("REDIS_URL", ""),
	}

	var err error
	if cfg.QueueTTLDays, err = getenvInt("QUEUE_TTL_DAYS", 10); err != nil {
		return cfg, err
	}
	if cfg.SweepConcurrency, err = getenvInt("SWEEP_CONCURRENCY", 8); err != nil {
		return cfg, err
	}
	leadHours, err := getenvInt("REMINDER_LEAD_HOURS", 24)
	if err != nil {
		return cfg, err
	}
	cfg.ReminderLead = time.Duration(leadHours) * time.Hour
	if cfg.SendTimeout, err = getenvDuration("SEND_TIMEOUT", 30*time.Second); err != nil {
		return cfg, err
	}
	if cfg.RunInterval, err = getenvDuration("RUN_INTERVAL", time.Hour); err != nil {
		return cfg, err
	}

	for _, o := range strings.Split(getenv("CORS_ALLOWED_ORIGINS", ""), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	if len(missing) > 0 {
		return cfg, fmt.Errorf("missing env: %s", strings.Join(missing, ", "))
	}

	cfg.Court, err = LoadCourt(getenv("COURT_CONFIG", ""))
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// LoadCourt reads a YAML court profile over the built-in defaults. An empty
// path returns the defaults.
func LoadCourt(path string) (Court, error) {
	court := Court{
		Name:   "Anchorage Municipal Court",
		URL:    "https://courts.alaska.gov",
		Layout: calendar.DefaultLayout(),
	}
	if path == "" {
		return court, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return court, fmt.Errorf("read court config: %w", err)
	}
	if err := yaml.Unmarshal(b, &court); err != nil {
		return court, fmt.Errorf("parse court config %s: %w", path, err)
	}
	return court, nil
}

func (c Config) Validate() error {
	if c.QueueTTLDays <= 0 {
		return fmt.Errorf("QUEUE_TTL_DAYS must be positive, got %d", c.QueueTTLDays)
	}
	if c.SweepConcurrency <= 0 {
		return fmt.Errorf("SWEEP_CONCURRENCY must be positive, got %d", c.SweepConcurrency)
	}
	if c.ReminderLead <= 0 {
		return fmt.Errorf("REMINDER_LEAD_HOURS must be positive, got %s", c.ReminderLead)
	}
	if (c.TwilioAccountSID == "") != (c.TwilioAuthToken == "") {
		return fmt.Errorf("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN must be set together")
	}
	if c.TwilioAccountSID != "" && c.TwilioPhoneNumber == "" {
		return fmt.Errorf("TWILIO_PHONE_NUMBER is required with a Twilio account")
	}
	if err := c.Court.Layout.Validate(); err != nil {
		return fmt.Errorf("court config: %w", err)
	}
	return nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) (int, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
