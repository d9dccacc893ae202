package main

import (
	"time"

	"github.com/MarcoPoloResearchLab/healthylife/internal/config"
	"github.com/MarcoPoloResearchLab/healthylife/internal/database"
	"github.com/MarcoPoloResearchLab/healthylife/internal/ids"
	"github.com/MarcoPoloResearchLab/healthylife/internal/metrics"
	"github.com/MarcoPoloResearchLab/healthylife/internal/notes"
	"github.com/MarcoPoloResearchLab/healthylife/internal/progress"
	"github.com/MarcoPoloResearchLab/healthylife/internal/routines"
	"github.com/MarcoPoloResearchLab/healthylife/internal/streak"
	"github.com/MarcoPoloResearchLab/healthylife/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type application struct {
	db       *gorm.DB
	users    *users.Service
	routines *routines.Service
	notes    *notes.Service
	progress *progress.Service
	metrics  *metrics.Recorder
}

// buildApplication opens the database and wires the domain services.
// clock overrides time.Now for the routine log when set.
func buildApplication(appConfig config.AppConfig, logger *zap.Logger, clock func() time.Time) (*application, error) {
	db, err := database.Open(appConfig.DatabaseDriver, appConfig.DatabaseDSN, logger)
	if err != nil {
		return nil, err
	}
	app, err := wireServices(db, appConfig, logger, clock)
	if err != nil {
		if closeErr := database.Close(db); closeErr != nil {
			logger.Warn("database close failed", zap.Error(closeErr))
		}
		return nil, err
	}
	return app, nil
}

func wireServices(db *gorm.DB, appConfig config.AppConfig, logger *zap.Logger, clock func() time.Time) (*application, error) {
	if clock == nil {
		clock = time.Now
	}

	idProvider := ids.NewUUIDProvider()
	userService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	routineService, err := routines.NewService(routines.ServiceConfig{
		Database:   db,
		Clock:      clock,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	noteService, err := notes.NewService(notes.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	recorder := metrics.NewRecorder(true)
	calculator := streak.NewCalculator(
		streak.WithLookbackDays(appConfig.StreakLookbackDays),
		streak.WithLocation(appConfig.StreakLocation),
		streak.WithYesterdayAnchor(appConfig.AllowYesterdayAnchor),
	)
	progressService, err := progress.NewService(progress.ServiceConfig{
		Users:      userService,
		Routines:   routineService,
		Notes:      noteService,
		Calculator: calculator,
		Logger:     logger,
		Observe:    recorder.ObserveStreak,
	})
	if err != nil {
		return nil, err
	}

	return &application{
		db:       db,
		users:    userService,
		routines: routineService,
		notes:    noteService,
		progress: progressService,
		metrics:  recorder,
	}, nil
}

func (a *application) close() error {
	return database.Close(a.db)
}
