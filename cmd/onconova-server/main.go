package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/onconova/onconova/internal/config"
	"github.com/onconova/onconova/internal/domain/analytics"
	"github.com/onconova/onconova/internal/domain/assessments"
	"github.com/onconova/onconova/internal/domain/genomics"
	"github.com/onconova/onconova/internal/domain/history"
	"github.com/onconova/onconova/internal/domain/interop"
	"github.com/onconova/onconova/internal/domain/measure"
	"github.com/onconova/onconova/internal/domain/patientcase"
	"github.com/onconova/onconova/internal/domain/research"
	"github.com/onconova/onconova/internal/domain/staging"
	"github.com/onconova/onconova/internal/domain/terminology"
	"github.com/onconova/onconova/internal/domain/therapy"
	"github.com/onconova/onconova/internal/domain/tumorboard"
	"github.com/onconova/onconova/internal/domain/users"
	"github.com/onconova/onconova/internal/platform/anonymize"
	"github.com/onconova/onconova/internal/platform/auth"
	"github.com/onconova/onconova/internal/platform/db"
	"github.com/onconova/onconova/internal/platform/middleware"
	"github.com/onconova/onconova/internal/platform/openapi"
)

const version = "1.0.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "onconova-server",
		Short: "Onconova precision oncology research platform API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(termsynchCmd())
	rootCmd.AddCommand(exportOpenAPICmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(level).With().Timestamp().Logger()
	}
	return logger
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Onconova API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, cfg.MigrationsDir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s).\n", count)
			return nil
		},
	}
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show pending migration count",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, cfg.MigrationsDir)
			pending, err := migrator.Pending(ctx)
			if err != nil {
				return err
			}
			if pending == 0 {
				fmt.Println("Migrations are up to date.")
			} else {
				fmt.Printf("%d migration(s) pending.\n", pending)
			}
			return nil
		},
	}
	cmd.AddCommand(statusCmd)

	return cmd
}

func termsynchCmd() *cobra.Command {
	var (
		valuesets       []string
		dir             string
		skipExisting    bool
		forceReset      bool
		pruneDangling   bool
		collectionLimit int
		raiseFailed     bool
		debug           bool
	)

	cmd := &cobra.Command{
		Use:   "termsynch",
		Short: "Synchronize terminology valuesets into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			if debug {
				logger = logger.Level(zerolog.DebugLevel)
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			loader := terminology.NewLoader(pool, terminology.NewRepo(pool),
				terminology.FileSource{Dir: dir}, logger)
			count, err := loader.Run(ctx, terminology.LoaderOptions{
				ValueSets:       valuesets,
				SkipExisting:    skipExisting,
				ForceReset:      forceReset,
				PruneDangling:   pruneDangling,
				CollectionLimit: collectionLimit,
				RaiseFailed:     raiseFailed,
			})
			if err != nil {
				return err
			}
			logger.Info().Int("concepts", count).Msg("terminology synchronized")
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&valuesets, "valuesets", nil, "Valueset names to synchronize (default: all)")
	cmd.Flags().StringVar(&dir, "dir", "./valuesets", "Directory holding <name>.json valueset files")
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "Skip valuesets that already have concepts")
	cmd.Flags().BoolVar(&forceReset, "force-reset", false, "Delete existing concepts before loading")
	cmd.Flags().BoolVar(&pruneDangling, "prune-dangling", false, "Remove concepts absent from the source")
	cmd.Flags().IntVar(&collectionLimit, "collection-limit", 0, "Maximum concepts to load per valueset (0 = no limit)")
	cmd.Flags().BoolVar(&raiseFailed, "raise-failed", false, "Abort on the first failed valueset")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")

	return cmd
}

func exportOpenAPICmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export-openapi",
		Short: "Write the OpenAPI document for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Route registration needs no live database.
			cfg := &config.Config{Port: "8000"}
			e := buildServer(cfg, nil, zerolog.Nop())

			gen := openapi.NewGenerator("Onconova API", version,
				fmt.Sprintf("http://localhost:%s/api/v1", cfg.Port))
			data, err := json.MarshalIndent(gen.GenerateSpec(e), "", "  ")
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			return os.WriteFile(out, data, 0o644)
		},
	}

	cmd.Flags().StringVar(&out, "out", "-", "Output file (default: stdout)")
	return cmd
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e := buildServer(cfg, pool, logger)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// buildServer wires repositories, services and handlers onto a fresh
// echo instance. A nil pool is accepted for route-only uses such as
// OpenAPI export.
func buildServer(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.Logger(logger))

	anon := anonymize.New(cfg.AnonymizationSecret)

	// Repositories
	caseRepo := patientcase.NewRepo(pool)
	entityRepo := patientcase.NewEntityRepo(pool)
	stagingRepo := staging.NewRepo(pool)
	variantRepo := genomics.NewVariantRepo(pool)
	signatureRepo := genomics.NewSignatureRepo(pool)
	therapyRepo := therapy.NewSystemicTherapyRepo(pool)
	surgeryRepo := therapy.NewSurgeryRepo(pool)
	radiotherapyRepo := therapy.NewRadiotherapyRepo(pool)
	responseRepo := therapy.NewResponseRepo(pool)
	lineRepo := therapy.NewLineRepo(pool)
	adverseEventRepo := assessments.NewAdverseEventRepo(pool)
	statusRepo := assessments.NewPerformanceStatusRepo(pool)
	lifestyleRepo := assessments.NewLifestyleRepo(pool)
	familyRepo := assessments.NewFamilyHistoryRepo(pool)
	comorbiditiesRepo := assessments.NewComorbiditiesRepo(pool)
	vitalsRepo := assessments.NewVitalsRepo(pool)
	riskRepo := assessments.NewRiskAssessmentRepo(pool)
	markerRepo := assessments.NewTumorMarkerRepo(pool)
	boardRepo := tumorboard.NewRepo(pool)
	projectRepo := research.NewProjectRepo(pool)
	grantRepo := research.NewGrantRepo(pool)
	cohortRepo := research.NewCohortRepo(pool)
	datasetRepo := research.NewDatasetRepo(pool)
	userRepo := users.NewRepo(pool)
	termRepo := terminology.NewRepo(pool)
	eventRepo := history.NewRepo(pool)

	// Services
	caseSvc := patientcase.NewService(pool, caseRepo, entityRepo, eventRepo, anon)
	stagingSvc := staging.NewService(pool, stagingRepo, caseRepo, eventRepo, anon)
	genomicsSvc := genomics.NewService(pool, variantRepo, signatureRepo, caseRepo, eventRepo, anon)
	therapySvc := therapy.NewService(pool, therapyRepo, surgeryRepo, radiotherapyRepo,
		responseRepo, lineRepo, caseRepo, eventRepo, anon)
	assessmentsSvc := assessments.NewService(pool, adverseEventRepo, statusRepo,
		lifestyleRepo, familyRepo, comorbiditiesRepo, vitalsRepo, riskRepo,
		markerRepo, caseRepo, eventRepo, anon)
	boardSvc := tumorboard.NewService(pool, boardRepo, caseRepo, eventRepo, anon)
	researchSvc := research.NewService(pool, projectRepo, grantRepo, cohortRepo, datasetRepo, eventRepo)
	userSvc := users.NewService(pool, userRepo, researchSvc)
	termSvc := terminology.NewService(termRepo)
	historySvc := history.NewService(eventRepo)
	interopSvc := interop.NewService(pool, interop.Repos{
		Cases:             caseRepo,
		Entities:          entityRepo,
		Stagings:          stagingRepo,
		Variants:          variantRepo,
		Signatures:        signatureRepo,
		Therapies:         therapyRepo,
		Surgeries:         surgeryRepo,
		Radiotherapies:    radiotherapyRepo,
		Responses:         responseRepo,
		AdverseEvents:     adverseEventRepo,
		PerformanceStatus: statusRepo,
		Lifestyles:        lifestyleRepo,
		FamilyHistories:   familyRepo,
		Comorbidities:     comorbiditiesRepo,
		Vitals:            vitalsRepo,
		RiskAssessments:   riskRepo,
		TumorMarkers:      markerRepo,
		Boards:            boardRepo,
	}, caseSvc, therapySvc, eventRepo)
	analyticsSvc := analytics.NewService(analytics.NewRepo(pool), researchSvc, therapySvc)

	// Event reversion
	historySvc.RegisterReverter(patientcase.EntityKind, patientcase.NewCaseReverter(caseSvc))
	historySvc.RegisterReverter(patientcase.NeoplasticEntityKind, patientcase.NewEntityReverter(caseSvc))
	historySvc.RegisterReverter(staging.EntityKind, staging.NewReverter(stagingSvc))
	historySvc.RegisterReverter(genomics.VariantKind, genomics.NewVariantReverter(genomicsSvc))
	historySvc.RegisterReverter(genomics.SignatureKind, genomics.NewSignatureReverter(genomicsSvc))
	therapyReverter := therapy.NewReverter(therapySvc)
	for _, kind := range []string{therapy.SystemicTherapyKind, therapy.SurgeryKind,
		therapy.RadiotherapyKind, therapy.TreatmentResponseKind} {
		historySvc.RegisterReverter(kind, therapyReverter)
	}
	assessmentsReverter := assessments.NewReverter(assessmentsSvc)
	for _, kind := range []string{assessments.AdverseEventKind, assessments.PerformanceStatusKind,
		assessments.LifestyleKind, assessments.FamilyHistoryKind, assessments.ComorbiditiesKind,
		assessments.VitalsKind, assessments.RiskAssessmentKind, assessments.TumorMarkerKind} {
		historySvc.RegisterReverter(kind, assessmentsReverter)
	}
	boardReverter := tumorboard.NewReverter(boardSvc)
	historySvc.RegisterReverter(tumorboard.EntityKind, boardReverter)
	historySvc.RegisterReverter(tumorboard.MolecularChildKind, boardReverter)
	researchReverter := research.NewReverter(researchSvc)
	for _, kind := range []string{research.ProjectKind, research.GrantKind,
		research.CohortKind, research.DatasetKind} {
		historySvc.RegisterReverter(kind, researchReverter)
	}

	migrator := db.NewMigrator(pool, cfg.MigrationsDir)
	e.GET("/healthcheck", db.HealthHandler(pool, migrator))

	api := e.Group("/api/v1")
	api.Use(auth.SessionToken(cfg.SessionSigningKey, researchSvc))
	api.Use(history.Middleware())

	eventsHandler := history.NewHandler(historySvc)
	eventsHandler.RegisterRoutes(api)
	patientcase.NewHandler(caseSvc).RegisterRoutes(api, eventsHandler)
	staging.NewHandler(stagingSvc).RegisterRoutes(api, eventsHandler)
	genomics.NewHandler(genomicsSvc).RegisterRoutes(api, eventsHandler)
	therapy.NewHandler(therapySvc).RegisterRoutes(api, eventsHandler)
	assessments.NewHandler(assessmentsSvc).RegisterRoutes(api, eventsHandler)
	tumorboard.NewHandler(boardSvc).RegisterRoutes(api, eventsHandler)
	research.NewHandler(researchSvc).RegisterRoutes(api, eventsHandler)
	users.NewHandler(userSvc).RegisterRoutes(api)
	terminology.NewHandler(termSvc).RegisterRoutes(api)
	interop.NewHandler(interopSvc).RegisterRoutes(api)
	analytics.NewHandler(analyticsSvc).RegisterRoutes(api)
	measure.NewHandler().RegisterRoutes(api)

	return e
}
