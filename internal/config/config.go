package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"ppg-screening/internal/analysis"

	"github.com/joho/godotenv"
)

type Config struct {
	KafkaBrokers  string
	CaptureTopic  string
	ConsumerGroup string

	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string

	DBDriver string
	DBPath   string
	DBDSN    string

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	ReportCacheTTL time.Duration

	ReportAPIEndpoint string
	ReportAPIKey      string

	NATSURL     string
	LiveSubject string

	ServiceName  string
	LogLevel     string
	LogFormat    string
	LogFile      string
	LogToConsole bool

	DefaultLocale string
	CatalogPath   string

	BPJitter    float64
	BPSeed      uint64
	WorkflowTTL time.Duration

	AFibCVRR       float64
	AFibPNN50      float64
	AFibSDNN       float64
	IrregularCVRR  float64
	IrregularPNN50 float64
	TachycardiaBPM int
	BradycardiaBPM int
}

func LoadConfig() *Config {
	err := godotenv.Load() // Looks for ".env" in the current directory
	if err != nil {
		log.Println("No .env file found, using environment variables or default values")
	}

	th := analysis.DefaultThresholds()
	return &Config{
		KafkaBrokers:  getEnv("KAFKA_BROKERS", "localhost:9092"),
		CaptureTopic:  getEnv("CAPTURE_TOPIC", "ppg-capture-uploads"),
		ConsumerGroup: getEnv("CONSUMER_GROUP", "ppg_screening"),

		MQTTBroker:   getEnv("MQTT_BROKER_URL", "tcp://localhost:1883"),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "ppg-screening-local"),
		MQTTUsername: getEnv("MQTT_USERNAME", ""),
		MQTTPassword: getEnv("MQTT_PASSWORD", ""),

		DBDriver: getEnv("DB_DRIVER", "sqlite3"),
		DBPath:   getEnv("DB_PATH", "ppg-screening.db"),
		DBDSN:    getEnv("DB_DSN", ""),

		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		ReportCacheTTL: time.Duration(getEnvInt("REPORT_CACHE_TTL_MINUTES", 24*60)) * time.Minute,

		ReportAPIEndpoint: getEnv("REPORT_API_ENDPOINT", ""),
		ReportAPIKey:      getEnv("REPORT_API_KEY", ""),

		NATSURL:     getEnv("NATS_URL", ""),
		LiveSubject: getEnv("NATS_LIVE_SUBJECT", "ppg.live"),

		ServiceName:  getEnv("SERVICE_NAME", "ppg-screening"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "json"),
		LogFile:      getEnv("LOG_FILE", "./logs/ppg-screening.log"),
		LogToConsole: getEnvBool("LOG_TO_CONSOLE", false),

		DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
		CatalogPath:   getEnv("CATALOG_PATH", ""),

		BPJitter:    getEnvFloat("BP_JITTER", 0),
		BPSeed:      uint64(getEnvInt("BP_SEED", 1)),
		WorkflowTTL: time.Duration(getEnvInt("WORKFLOW_TTL_MINUTES", 30)) * time.Minute,

		AFibCVRR:       getEnvFloat("AFIB_CV_RR", th.AFibCVRR),
		AFibPNN50:      getEnvFloat("AFIB_PNN50", th.AFibPNN50),
		AFibSDNN:       getEnvFloat("AFIB_SDNN", th.AFibSDNN),
		IrregularCVRR:  getEnvFloat("IRREGULAR_CV_RR", th.IrregularCVRR),
		IrregularPNN50: getEnvFloat("IRREGULAR_PNN50", th.IrregularPNN50),
		TachycardiaBPM: getEnvInt("TACHYCARDIA_BPM", th.TachycardiaBPM),
		BradycardiaBPM: getEnvInt("BRADYCARDIA_BPM", th.BradycardiaBPM),
	}
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	switch strings.ToLower(c.DBDriver) {
	case "postgres", "postgresql", "pq":
		return c.DBDSN
	}
	if c.DBDSN != "" {
		return c.DBDSN
	}
	return c.DBPath
}

// Thresholds returns the analyzer defaults with the rhythm overrides applied.
func (c *Config) Thresholds() analysis.Thresholds {
	th := analysis.DefaultThresholds()
	th.AFibCVRR = c.AFibCVRR
	th.AFibPNN50 = c.AFibPNN50
	th.AFibSDNN = c.AFibSDNN
	th.IrregularCVRR = c.IrregularCVRR
	th.IrregularPNN50 = c.IrregularPNN50
	th.TachycardiaBPM = c.TachycardiaBPM
	th.BradycardiaBPM = c.BradycardiaBPM
	return th
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(getEnv(key, "")))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(getEnv(key, "")), 64)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	return strings.EqualFold(v, "true") || v == "1"
}
