package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"

	"sd_db_storage/clock"
	"sd_db_storage/databases/mongodb"
	"sd_db_storage/databases/sqlite"
	"sd_db_storage/db_storage"
	"sd_db_storage/discord_notifier"
	"sd_db_storage/generation_runner"
	"sd_db_storage/repositories/image_records"
	"sd_db_storage/settings"
	"sd_db_storage/stable_diffusion_api"

	"github.com/spf13/cobra"
)

var (
	settingsFile string
	noDB         bool
	outputDir    string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "sd_db_storage",
		Short:        "Store Stable Diffusion generation parameters in a document database",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&settingsFile, "config", "", "Path to the settings file (YAML)")
	rootCmd.PersistentFlags().BoolVar(&noDB, "no-db", false, "Do not save this run to the database")
	rootCmd.PersistentFlags().StringVar(&outputDir, "outdir", "outputs/txt2img-images", "Directory generated images are written to")

	rootCmd.AddCommand(newGenerateCommand(), newImportCommand())

	return rootCmd
}

func newGenerateCommand() *cobra.Command {
	var apiHost string

	req := stable_diffusion_api.TextToImageRequest{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run txt2img on an Automatic1111 webui and store the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Prompt == "" {
				return errors.New("prompt flag is required")
			}

			stableDiffusionAPI, err := stable_diffusion_api.New(stable_diffusion_api.Config{
				Host: apiHost,
			})
			if err != nil {
				return fmt.Errorf("failed to create Stable Diffusion API: %w", err)
			}

			return withRunner(cmd.Context(), stableDiffusionAPI, func(runner generation_runner.Runner) error {
				result, err := runner.Generate(cmd.Context(), &req)
				if err != nil {
					return err
				}

				for _, file := range result.Files {
					log.Printf("Saved %s", file)
				}

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&apiHost, "host", "http://127.0.0.1:7860", "Host for the Automatic1111 API")
	cmd.Flags().StringVar(&req.Prompt, "prompt", "", "Text prompt")
	cmd.Flags().StringVar(&req.NegativePrompt, "negative", "", "Negative prompt")
	cmd.Flags().IntVar(&req.Width, "width", 512, "Image width")
	cmd.Flags().IntVar(&req.Height, "height", 512, "Image height")
	cmd.Flags().IntVar(&req.Steps, "steps", 20, "Sampling steps")
	cmd.Flags().Float64Var(&req.CfgScale, "cfg-scale", 7, "Classifier free guidance scale")
	cmd.Flags().StringVar(&req.SamplerName, "sampler", "Euler a", "Sampler name")
	cmd.Flags().Int64Var(&req.Seed, "seed", -1, "Seed, -1 for random")
	cmd.Flags().IntVar(&req.BatchSize, "batch-size", 1, "Images per batch")
	cmd.Flags().IntVar(&req.NIter, "n-iter", 1, "Number of batches")
	cmd.Flags().BoolVar(&req.RestoreFaces, "restore-faces", false, "Run face restoration")
	cmd.Flags().BoolVar(&req.EnableHR, "hires", false, "Enable hires fix")
	cmd.Flags().Float64Var(&req.HRScale, "hires-scale", 2, "Hires fix upscale factor")
	cmd.Flags().Float64Var(&req.DenoisingStrength, "denoising-strength", 0.7, "Hires fix denoising strength")

	return cmd
}

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import [dir]",
		Short: "Store records for PNG files that already carry generation parameters",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := outputDir
			if len(args) == 1 {
				dir = args[0]
			}

			return withRunner(cmd.Context(), nil, func(runner generation_runner.Runner) error {
				result, err := runner.ImportDirectory(cmd.Context(), dir)
				if err != nil {
					return err
				}

				log.Printf("Imported %d file(s), skipped %d", result.Imported, result.Skipped)

				return nil
			})
		},
	}
}

func withRunner(ctx context.Context, stableDiffusionAPI stable_diffusion_api.StableDiffusionAPI, run func(generation_runner.Runner) error) error {
	storageSettings, err := settings.Load(settingsFile)
	if err != nil {
		return err
	}

	provider, closeProvider, err := newProvider(ctx, storageSettings)
	if err != nil {
		return err
	}

	defer closeProvider()

	var notifier db_storage.Notifier

	if storageSettings.DiscordToken != "" && storageSettings.DiscordChannel != "" {
		discordNotifier, err := discord_notifier.New(discord_notifier.Config{
			BotToken:  storageSettings.DiscordToken,
			ChannelID: storageSettings.DiscordChannel,
		})
		if err != nil {
			return fmt.Errorf("failed to create Discord notifier: %w", err)
		}

		defer discordNotifier.Close()

		notifier = discordNotifier
	}

	storage, err := db_storage.New(db_storage.Config{
		Provider:          provider,
		Notifier:          notifier,
		DefaultDatabase:   storageSettings.DefaultDatabase,
		DefaultCollection: storageSettings.DefaultCollection,
		SaveFullImage:     storageSettings.SaveFullImage,
		DebugMode:         storageSettings.DebugMode,
	})
	if err != nil {
		return err
	}

	runner, err := generation_runner.New(generation_runner.Config{
		StableDiffusionAPI: stableDiffusionAPI,
		Storage:            storage,
		OutputDir:          outputDir,
		SaveToDB:           !noDB,
	})
	if err != nil {
		return err
	}

	return run(runner)
}

func newProvider(ctx context.Context, s *settings.Settings) (image_records.Provider, func(), error) {
	switch s.Driver {
	case settings.DriverSqlite:
		db, err := sqlite.New(ctx, sqlite.Config{Filename: s.SqliteFile})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}

		provider, err := image_records.NewSqliteProvider(&image_records.SqliteConfig{DB: db, Clock: clock.NewClock()})
		if err != nil {
			db.Close()

			return nil, nil, err
		}

		return provider, func() { db.Close() }, nil
	default:
		client, err := mongodb.New(ctx, mongodb.Config{
			Host:     s.DatabaseHost,
			Port:     s.DatabasePort,
			User:     s.DatabaseUser,
			Password: s.DatabasePassword,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}

		provider, err := image_records.NewMongoProvider(&image_records.MongoConfig{Client: client, Clock: clock.NewClock()})
		if err != nil {
			_ = client.Disconnect(ctx)

			return nil, nil, err
		}

		return provider, func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Printf("Error disconnecting from MongoDB: %v", err)
			}
		}, nil
	}
}
