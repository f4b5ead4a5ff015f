// Command ppgexport writes a user's stored readings to an xlsx file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"ppg-screening/internal/config"
	"ppg-screening/internal/database"
	"ppg-screening/internal/export"
	"ppg-screening/internal/logging"

	"go.uber.org/zap"
)

func main() {
	var (
		userID = flag.String("user", "", "user id to export (required)")
		days   = flag.Int("days", 0, "only readings from the last N days, 0 for all")
		out    = flag.String("out", "", "output file (default readings-<user>.xlsx)")
		tz     = flag.String("tz", "UTC", "time zone for the Measured At column")
	)
	flag.Parse()
	if *userID == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *out == "" {
		*out = fmt.Sprintf("readings-%s.xlsx", *userID)
	}

	cfg := config.LoadConfig()
	logger, logCloser, err := logging.NewLogger(logging.Options{
		Level:       cfg.LogLevel,
		Format:      "console",
		ServiceName: "ppgexport",
		ToConsole:   true,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logCloser.Close()
	defer logger.Sync()

	loc, err := time.LoadLocation(*tz)
	if err != nil {
		logger.Fatal("unknown time zone", zap.String("tz", *tz), zap.Error(err))
	}

	repo, err := database.NewRepository(cfg.DBDriver, cfg.DSN(), logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer repo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	readings, err := repo.ListReadings(ctx, *userID, *days)
	if err != nil {
		logger.Fatal("failed to list readings", zap.String("user_id", *userID), zap.Error(err))
	}
	data, err := export.ReadingsWorkbook(readings, loc)
	if err != nil {
		logger.Fatal("failed to build workbook", zap.Error(err))
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		logger.Fatal("failed to write export", zap.String("path", *out), zap.Error(err))
	}
	logger.Info("readings exported", zap.String("user_id", *userID), zap.Int("rows", len(readings)), zap.String("path", *out))
}
