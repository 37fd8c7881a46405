package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	ListenAddr string

	RedisURL    string
	DatabaseURL string

	// QuestionsFile is the YAML question bank used when no database is configured.
	QuestionsFile string
	MessagesDir   string

	QuestionCount    int
	TimerPerQuestion int
	PointsPerAnswer  int

	SessionTTLSec         int
	FinalizeRetryInterval int

	AllowedOrigins []string
}

// Load reads .env when present, then the process environment.
func Load() (*AppConfig, error) {
	// .env 는 선택 사항: 없으면 프로세스 환경변수만 사용
	_ = godotenv.Load()

	cfg := &AppConfig{
		ListenAddr:            ":8000",
		QuestionCount:         10,
		TimerPerQuestion:      15,
		PointsPerAnswer:       10,
		SessionTTLSec:         7200,
		FinalizeRetryInterval: 30,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.QuestionsFile = strings.TrimSpace(os.Getenv("QUESTIONS_FILE"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	cfg.QuestionCount = positiveInt("QUESTION_COUNT", cfg.QuestionCount)
	cfg.TimerPerQuestion = positiveInt("TIMER_PER_QUESTION", cfg.TimerPerQuestion)
	cfg.PointsPerAnswer = positiveInt("POINTS_PER_ANSWER", cfg.PointsPerAnswer)
	cfg.SessionTTLSec = positiveInt("SESSION_TTL_SEC", cfg.SessionTTLSec)
	cfg.FinalizeRetryInterval = positiveInt("FINALIZE_RETRY_INTERVAL_SEC", cfg.FinalizeRetryInterval)

	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, s)
			}
		}
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.DatabaseURL == "" && cfg.QuestionsFile == "" {
		return nil, errors.New("DATABASE_URL or QUESTIONS_FILE is required")
	}

	return cfg, nil
}

func positiveInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
