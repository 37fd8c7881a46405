package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	appcfg "github.com/park285/quizduel/internal/config"
	"github.com/park285/quizduel/internal/duel"
	"github.com/park285/quizduel/internal/matchqueue"
	"github.com/park285/quizduel/internal/matchstore"
	"github.com/park285/quizduel/internal/msgcat"
	"github.com/park285/quizduel/internal/obslog"
	"github.com/park285/quizduel/internal/pgdb"
	"github.com/park285/quizduel/internal/questions"
	"github.com/park285/quizduel/internal/redisconn"
	"github.com/park285/quizduel/internal/registry"
	"github.com/park285/quizduel/internal/session"
	"github.com/park285/quizduel/internal/wsserver"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := redisconn.Open(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis_init_error", zap.String("url", redisconn.Redact(cfg.RedisURL)), zap.Error(err))
	}
	defer rdb.Close()

	var (
		db      *sql.DB
		source  questions.Source
		matches matchstore.Repository
	)
	if cfg.DatabaseURL != "" {
		db, err = pgdb.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres_init_error", zap.Error(err))
		}
		defer db.Close()
		if err := pgdb.EnsureSchema(ctx, db); err != nil {
			logger.Fatal("schema_init_error", zap.Error(err))
		}
		source = questions.NewRepository(db)
		matches = matchstore.NewRepository(db)
	} else {
		bank, err := questions.LoadBankFile(cfg.QuestionsFile)
		if err != nil {
			logger.Fatal("question_bank_error", zap.String("file", cfg.QuestionsFile), zap.Error(err))
		}
		logger.Warn("memory_mode", zap.String("questions_file", cfg.QuestionsFile), zap.Int("questions", bank.Len()))
		source = bank
		matches = matchstore.NewMemoryRepository()
	}

	texts, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("message_catalog_error", zap.Error(err))
	}

	store := session.NewStore(rdb, time.Duration(cfg.SessionTTLSec)*time.Second)
	finalizer := duel.NewFinalizer(store, matches)
	manager := duel.NewManager(
		matchqueue.New(rdb),
		store,
		registry.New(),
		source,
		finalizer,
		texts,
		duel.Options{
			QuestionCount:    cfg.QuestionCount,
			TimerPerQuestion: cfg.TimerPerQuestion,
			PointsPerAnswer:  cfg.PointsPerAnswer,
		},
	)

	sweeper := duel.NewRetrySweeper(store, finalizer, time.Duration(cfg.FinalizeRetryInterval)*time.Second)
	if err := sweeper.Start(ctx); err != nil {
		logger.Fatal("retry_sweeper_error", zap.Error(err))
	}
	defer func() { _ = sweeper.Stop() }()

	srv := wsserver.New(manager, rdb, wsserver.Options{OriginPatterns: cfg.AllowedOrigins})
	logger.Info("server_start", zap.String("addr", cfg.ListenAddr), zap.Bool("postgres", db != nil))
	if err := srv.ListenAndServe(ctx, cfg.ListenAddr); err != nil {
		logger.Error("server_error", zap.Error(err))
	}
	logger.Info("server_stop")
}
