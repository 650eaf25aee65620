package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/asintel/internal/graph"
)

// Config represents the overall application configuration. Tuning comes
// from an optional yaml file; secrets always come from the environment.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Kafka  KafkaConfig  `yaml:"kafka"`
	Neo4j  graph.Config `yaml:"neo4j"`

	// Environment-sourced secrets.
	MongoURI     string `yaml:"-"`
	ShodanAPIKey string `yaml:"-"`
	GroqAPIKey   string `yaml:"-"`
	GeminiAPIKey string `yaml:"-"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// KafkaConfig represents the optional event producer configuration.
// Publishing is disabled when no brokers are configured.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

// Load loads configuration from the optional CONFIG_PATH yaml file plus
// environment variables.
func Load() *Config {
	cfg := &Config{}

	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			log.Fatalf("Failed to read config file: %v", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			log.Fatalf("Failed to parse config file: %v", err)
		}
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 120 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}

	cfg.MongoURI = os.Getenv("MONGO_URI")
	if cfg.MongoURI == "" {
		cfg.MongoURI = "mongodb://localhost:27017"
	}
	cfg.ShodanAPIKey = os.Getenv("SHODAN_API_KEY")
	cfg.GroqAPIKey = os.Getenv("GROQ_API_KEY")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")

	if cfg.ShodanAPIKey == "" {
		log.Printf("SHODAN_API_KEY not set: exposure data will be empty")
	}
	if cfg.GroqAPIKey == "" {
		log.Printf("GROQ_API_KEY not set: summaries and simulations degrade to deterministic output")
	}
	if cfg.GeminiAPIKey == "" {
		log.Printf("GEMINI_API_KEY not set: posture reports degrade to deterministic output")
	}

	return cfg
}
