package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AppConfig struct {
	Env                   string `mapstructure:"env"`
	Port                  int    `mapstructure:"port"`
	ShutdownSeconds       int    `mapstructure:"shutdown_seconds"`
	BodyLimitMB           int    `mapstructure:"body_limit_mb"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

type MongoConfig struct {
	URI                       string `mapstructure:"uri"`
	Database                  string `mapstructure:"database"`
	ChatsCollection           string `mapstructure:"chats_collection"`
	MessagesCollection        string `mapstructure:"messages_collection"`
	UsersCollection           string `mapstructure:"users_collection"`
	StudentProfilesCollection string `mapstructure:"student_profiles_collection"`
	UploadsCollection         string `mapstructure:"uploads_collection"`
}

type RedisConfig struct {
	Addr                   string `mapstructure:"addr"`
	Password               string `mapstructure:"password"`
	DB                     int    `mapstructure:"db"`
	StudentCacheTTLSeconds int    `mapstructure:"student_cache_ttl_seconds"`
}

type EventsConfig struct {
	Driver        string `mapstructure:"driver"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	Topic       string   `mapstructure:"topic"`
	GroupPrefix string   `mapstructure:"group_prefix"`
}

type NatsConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type S3Config struct {
	Region            string `mapstructure:"region"`
	Bucket            string `mapstructure:"bucket"`
	Endpoint          string `mapstructure:"endpoint"`
	PublicRead        bool   `mapstructure:"public_read"`
	PresignTTLSeconds int    `mapstructure:"presign_ttl_seconds"`
}

type JWTConfig struct {
	Alg           string `mapstructure:"alg"`
	HSSecret      string `mapstructure:"hs_secret"`
	PublicKeyPath string `mapstructure:"public_key_path"`
}

type RateLimitConfig struct {
	IPPerMinute   int `mapstructure:"ip_per_minute"`
	SendPerMinute int `mapstructure:"send_per_minute"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Mongo     MongoConfig     `mapstructure:"mongodb"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Events    EventsConfig    `mapstructure:"events"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Nats      NatsConfig      `mapstructure:"nats"`
	S3        S3Config        `mapstructure:"s3"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Log       LogConfig       `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 8082)
	v.SetDefault("app.shutdown_seconds", 15)
	v.SetDefault("app.body_limit_mb", 130)
	v.SetDefault("app.request_timeout_seconds", 10)

	v.SetDefault("mongodb.database", "school")
	v.SetDefault("mongodb.chats_collection", "chats")
	v.SetDefault("mongodb.messages_collection", "messages")
	v.SetDefault("mongodb.users_collection", "users")
	v.SetDefault("mongodb.student_profiles_collection", "student_profiles")
	v.SetDefault("mongodb.uploads_collection", "chat_uploads")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.student_cache_ttl_seconds", 300)

	v.SetDefault("events.driver", "redis")
	v.SetDefault("events.channel_prefix", "chat:")
	v.SetDefault("kafka.topic", "chat.events")
	v.SetDefault("kafka.group_prefix", "chat-fanout")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject_prefix", "chat")

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.presign_ttl_seconds", 3600)

	v.SetDefault("jwt.alg", "HS256")
	v.SetDefault("ratelimit.ip_per_minute", 600)
	v.SetDefault("ratelimit.send_per_minute", 60)
	v.SetDefault("log.level", "info")
}

// Load reads path (when it exists) and lets environment variables override it,
// e.g. MONGODB_URI or REDIS_ADDR.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range []string{"mongodb.uri", "redis.addr", "redis.password", "jwt.hs_secret", "s3.bucket", "events.driver"} {
		_ = v.BindEnv(k)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.Mongo.URI == "" {
		return errors.New("mongodb.uri is required")
	}
	if c.Mongo.Database == "" {
		return errors.New("mongodb.database is required")
	}
	switch c.Events.Driver {
	case "redis", "local":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("kafka.brokers is required for the kafka event driver")
		}
	case "nats":
		if c.Nats.URL == "" {
			return errors.New("nats.url is required for the nats event driver")
		}
	default:
		return fmt.Errorf("unknown events.driver %q", c.Events.Driver)
	}
	switch c.JWT.Alg {
	case "HS256":
		if c.JWT.HSSecret == "" {
			return errors.New("jwt.hs_secret is required for HS256")
		}
	case "RS256":
		if c.JWT.PublicKeyPath == "" {
			return errors.New("jwt.public_key_path is required for RS256")
		}
	default:
		return fmt.Errorf("unsupported jwt.alg %q", c.JWT.Alg)
	}
	return nil
}

func (c *Config) IsDevelopment() bool { return c.App.Env == "development" }

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.App.RequestTimeoutSeconds) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.App.ShutdownSeconds) * time.Second
}

func (c *Config) StudentCacheTTL() time.Duration {
	return time.Duration(c.Redis.StudentCacheTTLSeconds) * time.Second
}

func (c *Config) PresignTTL() time.Duration {
	return time.Duration(c.S3.PresignTTLSeconds) * time.Second
}
