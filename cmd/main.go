package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/e-RicardoGama/nutriscan/config"
	"github.com/e-RicardoGama/nutriscan/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "time/tzdata"
)

var (
	rootCmd = &cobra.Command{
		Use:   "nutriscan",
		Short: "Meal analysis backend: food resolution and nutrient totals",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load()
			if err != nil {
				return err
			}
			cfg = c
			logger.Init(cfg.Env)
			return nil
		},
		SilenceUsage: true,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Creates or updates the database tables",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}
	resolveCmd = &cobra.Command{
		Use:   "resolve [food name...]",
		Short: "Resolves food names against the catalogue, estimating unknown ones",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runResolve,
	}

	cfg         *config.Config
	skipMigrate bool
	lookupOnly  bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "Do not run migrations on startup.")
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().BoolVar(&lookupOnly, "lookup", false, "Only match existing foods, never call the estimator.")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	db, err := config.InitDB(cfg)
	if err != nil {
		return err
	}
	if err := config.Migrate(db); err != nil {
		return err
	}
	logger.L().Info("migrations applied")
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.L()
	app, err := newApp(cmd.Context(), cfg, log, !skipMigrate)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-cmd.Context().Done():
	}

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func runResolve(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd.Context(), cfg, logger.Named("cli"), false)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	var failed int
	for _, name := range args {
		resolve := app.resolver.Resolve
		if lookupOnly {
			resolve = app.resolver.Lookup
		}
		res, err := resolve(cmd.Context(), name)
		if err != nil {
			failed++
			fmt.Fprintf(out, "%-30s  -\t%v\n", name, err)
			continue
		}
		f := res.Food
		fmt.Fprintf(out, "%-30s  %s (#%d, %s, score %d)\t%.0f kcal  P %.1f  C %.1f  G %.1f /100g\n",
			name, f.Name, f.ID, res.Stage, res.Score,
			f.EnergyKcal100g, f.Protein100g, f.Carbohydrate100g, f.Fat100g)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d names did not resolve", failed, len(args))
	}
	return nil
}
