package main

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/healthylife/internal/config"
	"github.com/MarcoPoloResearchLab/healthylife/internal/logging"
	"github.com/MarcoPoloResearchLab/healthylife/internal/notes"
	"github.com/MarcoPoloResearchLab/healthylife/internal/routines"
	"github.com/MarcoPoloResearchLab/healthylife/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type seedRoutine struct {
	name      string
	kind      string
	minutes   int
	exercises string
}

var demoRoutines = []seedRoutine{
	{name: "Piernas", kind: "fuerza", minutes: 45, exercises: `[{"nombre":"Sentadillas","series":4,"repeticiones":12}]`},
	{name: "Cardio suave", kind: "cardio", minutes: 30, exercises: `[{"nombre":"Trote","minutos":30}]`},
	{name: "Movilidad", kind: "flexibilidad", minutes: 20, exercises: `[{"nombre":"Estiramientos","minutos":20}]`},
}

func newSeedCommand() *cobra.Command {
	var (
		email    string
		password string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a demo account with routines completed on consecutive days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), email, password)
		},
	}
	cmd.Flags().StringVar(&email, "email", "demo@healthylife.local", "Demo account email")
	cmd.Flags().StringVar(&password, "password", "healthylife", "Demo account password")
	return cmd
}

func runSeed(ctx context.Context, email, password string) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	// Completions are backdated one day per routine so the demo account opens
	// with a streak as long as the routine list.
	var completedAt time.Time
	app, err := buildApplication(appConfig, logger, func() time.Time {
		if completedAt.IsZero() {
			return time.Now()
		}
		return completedAt
	})
	if err != nil {
		return err
	}
	defer app.close() //nolint:errcheck

	user, err := app.users.Register(ctx, users.Registration{Name: "Demo", Email: email, Password: password})
	if errors.Is(err, users.ErrEmailTaken) {
		logger.Info("demo account already exists", zap.String("email", email))
		return nil
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for index, demo := range demoRoutines {
		completedAt = time.Time{}
		routine, err := app.routines.Create(ctx, user.UserID, draftFor(demo))
		if err != nil {
			return err
		}
		completedAt = now.AddDate(0, 0, index-(len(demoRoutines)-1))
		if _, err := app.routines.Complete(ctx, user.UserID, routine.RoutineID); err != nil {
			return err
		}
	}

	if _, err := app.notes.Create(ctx, user.UserID, notes.Draft{
		Title:       "Hidratación",
		Description: "Beber dos litros de agua al día.",
		Category:    "Salud",
	}); err != nil {
		return err
	}

	logger.Info("demo account seeded",
		zap.String("email", email),
		zap.String("user_id", user.UserID),
		zap.Int("routines", len(demoRoutines)),
	)
	return nil
}

func draftFor(demo seedRoutine) routines.Draft {
	return routines.Draft{
		Name:            demo.name,
		Type:            demo.kind,
		DurationMinutes: demo.minutes,
		Exercises:       []byte(demo.exercises),
	}
}
