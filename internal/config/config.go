package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, with "-" mapped to
// "_": group-id is read from WAGERSYNC_GROUP_ID.
const EnvPrefix = "WAGERSYNC"

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	LogLevel string
	GroupID  string

	Chain    ChainConfig
	Queue    QueueConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	DLQ      DLQConfig
	Outbox   OutboxConfig
	HTTP     HTTPConfig
	Backfill BackfillConfig

	IDLPath       string
	PointsPerUnit string
	Store         string
}

type ChainConfig struct {
	RPCURL    string
	ChainID   uint64
	Contracts []string
	Topic0Map map[string]string
}

type QueueConfig struct {
	Backend         string
	KafkaBrokers    []string
	Topic           string
	ConsumerGroup   string
	MaxDeliveries   int
	DedupWindow     time.Duration
	RedeliveryDelay time.Duration
}

type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	NotifyChannel string
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

type DLQConfig struct {
	Backend     string
	Topic       string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3Prefix    string
	S3AccessKey string
	S3SecretKey string
	S3PathStyle bool
}

type OutboxConfig struct {
	Path       string
	ReplaySpec string
	BatchSize  int
}

type HTTPConfig struct {
	Listen        string
	WebhookSecret string
	Debug         bool
}

type BackfillConfig struct {
	FromBlock         uint64
	ToBlock           uint64
	BatchSize         uint64
	Checkpoint        string
	CheckpointEnabled bool
	CheckpointBackend string
	MaxRetries        int
	RetryBackoff      time.Duration
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("log-level", "info")
		v.SetDefault("store", "postgres")
		v.SetDefault("points-per-unit", "100")

		v.SetDefault("queue-backend", "kafka")
		v.SetDefault("kafka-topic", "wagersync.events")
		v.SetDefault("kafka-consumer-group", "wagersync-processor")
		v.SetDefault("max-deliveries", 3)
		v.SetDefault("dedup-window", 5*time.Minute)
		v.SetDefault("redelivery-delay", 500*time.Millisecond)

		v.SetDefault("redis-db", 0)
		v.SetDefault("notify-channel", "wagersync.events")

		v.SetDefault("pg-port", 5432)
		v.SetDefault("pg-sslmode", "disable")

		v.SetDefault("dlq-backend", "log")
		v.SetDefault("dlq-topic", "wagersync.events.dlq")
		v.SetDefault("s3-prefix", "dead-letter")

		v.SetDefault("outbox-path", "./data/outbox.db")
		v.SetDefault("outbox-replay-spec", "@every 30s")
		v.SetDefault("outbox-batch", 100)

		// listen defaults come from the serve and worker flags.

		v.SetDefault("batch-size", uint64(2000))
		v.SetDefault("checkpoint", "./data/checkpoint.json")
		v.SetDefault("checkpoint-enabled", true)
		v.SetDefault("checkpoint-backend", "file")
		v.SetDefault("max-retries", 5)
		v.SetDefault("retry-backoff", 500*time.Millisecond)
	})
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		LogLevel:      v.GetString("log-level"),
		GroupID:       v.GetString("group-id"),
		IDLPath:       v.GetString("idl"),
		PointsPerUnit: v.GetString("points-per-unit"),
		Store:         v.GetString("store"),
		Chain: ChainConfig{
			RPCURL:    v.GetString("rpc"),
			ChainID:   v.GetUint64("chain-id"),
			Contracts: getStringSlice(v, "contract"),
			Topic0Map: getStringMap(v, "topic0-map"),
		},
		Queue: QueueConfig{
			Backend:         v.GetString("queue-backend"),
			KafkaBrokers:    getStringSlice(v, "kafka-brokers"),
			Topic:           v.GetString("kafka-topic"),
			ConsumerGroup:   v.GetString("kafka-consumer-group"),
			MaxDeliveries:   v.GetInt("max-deliveries"),
			DedupWindow:     v.GetDuration("dedup-window"),
			RedeliveryDelay: v.GetDuration("redelivery-delay"),
		},
		Redis: RedisConfig{
			Addr:          v.GetString("redis-addr"),
			Password:      v.GetString("redis-password"),
			DB:            v.GetInt("redis-db"),
			NotifyChannel: v.GetString("notify-channel"),
		},
		Postgres: PostgresConfig{
			Host:     v.GetString("pg-host"),
			Port:     v.GetInt("pg-port"),
			User:     v.GetString("pg-user"),
			Password: v.GetString("pg-password"),
			Database: v.GetString("pg-database"),
			SSLMode:  v.GetString("pg-sslmode"),
		},
		DLQ: DLQConfig{
			Backend:     v.GetString("dlq-backend"),
			Topic:       v.GetString("dlq-topic"),
			S3Bucket:    v.GetString("s3-bucket"),
			S3Region:    v.GetString("s3-region"),
			S3Endpoint:  v.GetString("s3-endpoint"),
			S3Prefix:    v.GetString("s3-prefix"),
			S3AccessKey: v.GetString("s3-access-key"),
			S3SecretKey: v.GetString("s3-secret-key"),
			S3PathStyle: v.GetBool("s3-path-style"),
		},
		Outbox: OutboxConfig{
			Path:       v.GetString("outbox-path"),
			ReplaySpec: v.GetString("outbox-replay-spec"),
			BatchSize:  v.GetInt("outbox-batch"),
		},
		HTTP: HTTPConfig{
			Listen:        v.GetString("listen"),
			WebhookSecret: v.GetString("webhook-secret"),
			Debug:         v.GetBool("debug"),
		},
		Backfill: BackfillConfig{
			FromBlock:         v.GetUint64("from"),
			ToBlock:           v.GetUint64("to"),
			BatchSize:         v.GetUint64("batch-size"),
			Checkpoint:        v.GetString("checkpoint"),
			CheckpointEnabled: v.GetBool("checkpoint-enabled"),
			CheckpointBackend: v.GetString("checkpoint-backend"),
			MaxRetries:        v.GetInt("max-retries"),
			RetryBackoff:      v.GetDuration("retry-backoff"),
		},
	}
	return cfg, nil
}

// Requirement names a group of settings a command cannot run without.
type Requirement int

const (
	NeedQueue Requirement = iota
	NeedStore
	NeedChain
	NeedRPC
)

// Require reports every missing setting for the given requirements at once.
func (c Config) Require(reqs ...Requirement) error {
	var missing []string
	for _, req := range reqs {
		switch req {
		case NeedQueue:
			if c.GroupID == "" {
				missing = append(missing, "group-id")
			}
			switch c.Queue.Backend {
			case "memory":
			case "kafka":
				if len(c.Queue.KafkaBrokers) == 0 {
					missing = append(missing, "kafka-brokers")
				}
			default:
				missing = append(missing, fmt.Sprintf("queue-backend (unknown %q)", c.Queue.Backend))
			}
		case NeedStore:
			if c.Store == "memory" {
				continue
			}
			if c.Postgres.Host == "" {
				missing = append(missing, "pg-host")
			}
			if c.Postgres.User == "" {
				missing = append(missing, "pg-user")
			}
			if c.Postgres.Password == "" {
				missing = append(missing, "pg-password")
			}
			if c.Postgres.Database == "" {
				missing = append(missing, "pg-database")
			}
		case NeedChain:
			if c.Chain.ChainID == 0 {
				missing = append(missing, "chain-id")
			}
		case NeedRPC:
			if c.Chain.RPCURL == "" {
				missing = append(missing, "rpc")
			}
			if len(c.Chain.Contracts) == 0 {
				missing = append(missing, "contract")
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

// DSN builds the Postgres connection string.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   p.Host + ":" + strconv.Itoa(p.Port),
		Path:   "/" + p.Database,
	}
	q := url.Values{}
	if p.SSLMode != "" {
		q.Set("sslmode", p.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Redacted is DSN with the password masked, for logs.
func (p PostgresConfig) Redacted() string {
	masked := p
	if masked.Password != "" {
		masked.Password = "xxxxx"
	}
	return masked.DSN()
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults func(*viper.Viper)) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if defaults != nil {
		defaults(v)
	}

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
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
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

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
