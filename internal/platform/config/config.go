package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full process configuration.
type Config struct {
	Server      Server
	Logging     Logging
	Claim       Claim
	Positioning Positioning
	Escrow      Escrow
	Bounty      Bounty
	Events      Events
	Redis       RedisConfig
	Kafka       KafkaConfig
	Puzzle      Puzzle
	RateLimit   RateLimit
}

type Server struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	SeedDemo        bool
}

type Logging struct {
	Level  string
	Format string
}

type Claim struct {
	RadiusKm       float64
	NearbyRadiusKm float64
}

type Positioning struct {
	MaxAge      time.Duration
	WatchMaxAge time.Duration
	Timeout     time.Duration
}

type Escrow struct {
	ProviderTimeout time.Duration
	StartingBalance int64
	PaymentFee      int64
	Latency         time.Duration
	MaxRetries      uint64
}

type Bounty struct {
	TTL                 time.Duration
	ExpirySweepInterval time.Duration
}

// Events selects where bounty events go besides the in-memory feed.
type Events struct {
	Backend    string
	BufferSize int
}

const (
	EventsBackendLog   = "log"
	EventsBackendKafka = "kafka"
	EventsBackendRedis = "redis"
)

type RedisConfig struct {
	URL          string
	Channel      string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers        []string
	Topic          string
	ClientID       string
	Partitions     int32
	ProduceTimeout time.Duration
}

type Puzzle struct {
	GenerationTimeout time.Duration
	GenerationDelay   time.Duration
}

// RateLimit bounds claim attempts per caller. Windows are shared through
// Redis when REDIS_URL is set.
type RateLimit struct {
	ClaimLimit  int
	ClaimWindow time.Duration
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, applying defaults for unset keys.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	e := &envReader{lookup: lookup}
	cfg := Config{
		Server: Server{
			Addr:            e.str("GEOSATS_ADDR", ":8080"),
			ReadTimeout:     e.duration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    e.duration("HTTP_WRITE_TIMEOUT", 0),
			ShutdownTimeout: e.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
			SeedDemo:        e.boolean("SEED_DEMO", false),
		},
		Logging: Logging{
			Level:  strings.ToLower(e.str("LOG_LEVEL", "info")),
			Format: strings.ToLower(e.str("LOG_FORMAT", "json")),
		},
		Claim: Claim{
			RadiusKm:       e.float("CLAIM_RADIUS_KM", 0.1),
			NearbyRadiusKm: e.float("NEARBY_RADIUS_KM", 10),
		},
		Positioning: Positioning{
			MaxAge:      e.duration("POSITION_MAX_AGE", 60*time.Second),
			WatchMaxAge: e.duration("POSITION_WATCH_MAX_AGE", 30*time.Second),
			Timeout:     e.duration("POSITION_TIMEOUT", 10*time.Second),
		},
		Escrow: Escrow{
			ProviderTimeout: e.duration("ESCROW_PROVIDER_TIMEOUT", 5*time.Second),
			StartingBalance: e.int64("ESCROW_STARTING_BALANCE", 25000),
			PaymentFee:      e.int64("ESCROW_PAYMENT_FEE", 1),
			Latency:         e.duration("ESCROW_LATENCY", 0),
			MaxRetries:      uint64(e.int64("ESCROW_MAX_RETRIES", 2)),
		},
		Bounty: Bounty{
			TTL:                 e.duration("BOUNTY_TTL", 0),
			ExpirySweepInterval: e.duration("EXPIRY_SWEEP_INTERVAL", time.Minute),
		},
		Events: Events{
			Backend:    strings.ToLower(e.str("EVENTS_BACKEND", EventsBackendLog)),
			BufferSize: int(e.int64("EVENTS_BUFFER_SIZE", 256)),
		},
		Redis: RedisConfig{
			URL:          e.str("REDIS_URL", ""),
			Channel:      e.str("REDIS_CHANNEL", "geosats:events"),
			PoolSize:     int(e.int64("REDIS_POOL_SIZE", 10)),
			MinIdleConns: int(e.int64("REDIS_MIN_IDLE_CONNS", 2)),
			DialTimeout:  e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:        e.list("KAFKA_BROKERS"),
			Topic:          e.str("KAFKA_TOPIC", "geosats.events"),
			ClientID:       e.str("KAFKA_CLIENT_ID", "geosats"),
			Partitions:     int32(e.int64("KAFKA_PARTITIONS", 3)),
			ProduceTimeout: e.duration("KAFKA_PRODUCE_TIMEOUT", 10*time.Second),
		},
		Puzzle: Puzzle{
			GenerationTimeout: e.duration("PUZZLE_GENERATION_TIMEOUT", 5*time.Second),
			GenerationDelay:   e.duration("PUZZLE_GENERATION_DELAY", 2*time.Second),
		},
		RateLimit: RateLimit{
			ClaimLimit:  int(e.int64("CLAIM_RATE_LIMIT", 10)),
			ClaimWindow: e.duration("CLAIM_RATE_WINDOW", time.Minute),
		},
	}
	if err := errors.Join(e.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	if c.Claim.RadiusKm <= 0 {
		errs = append(errs, errors.New("CLAIM_RADIUS_KM must be positive"))
	}
	if c.Claim.NearbyRadiusKm <= 0 {
		errs = append(errs, errors.New("NEARBY_RADIUS_KM must be positive"))
	}
	if c.Positioning.Timeout <= 0 {
		errs = append(errs, errors.New("POSITION_TIMEOUT must be positive"))
	}
	if c.Escrow.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("ESCROW_PROVIDER_TIMEOUT must be positive"))
	}
	if c.Escrow.StartingBalance < 0 || c.Escrow.PaymentFee < 0 {
		errs = append(errs, errors.New("escrow balance and fee must not be negative"))
	}
	if c.RateLimit.ClaimLimit < 0 {
		errs = append(errs, errors.New("CLAIM_RATE_LIMIT must not be negative"))
	}
	if c.RateLimit.ClaimLimit > 0 && c.RateLimit.ClaimWindow <= 0 {
		errs = append(errs, errors.New("CLAIM_RATE_WINDOW must be positive"))
	}
	if c.Bounty.ExpirySweepInterval <= 0 {
		errs = append(errs, errors.New("EXPIRY_SWEEP_INTERVAL must be positive"))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q is not json or text", c.Logging.Format))
	}
	switch c.Events.Backend {
	case EventsBackendLog:
	case EventsBackendKafka:
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required when EVENTS_BACKEND=kafka"))
		}
	case EventsBackendRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when EVENTS_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("EVENTS_BACKEND %q is not one of log, kafka, redis", c.Events.Backend))
	}
	return errors.Join(errs...)
}

// envReader collects parse errors so every bad variable is reported at once.
type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) raw(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) str(key, def string) string {
	if v, ok := e.raw(key); ok {
		return v
	}
	return def
}

func (e *envReader) list(key string) []string {
	v, ok := e.raw(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

func (e *envReader) float(key string, def float64) float64 {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid number %q", key, v))
		return def
	}
	return f
}

func (e *envReader) int64(key string, def int64) int64 {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (e *envReader) boolean(key string, def bool) bool {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}
