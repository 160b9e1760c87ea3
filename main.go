// Package main provides the entry point for the pose projector CLI.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"pose-projector/internal/app"
	"pose-projector/internal/config"
	"pose-projector/internal/render"
	"pose-projector/internal/runlog"
	"pose-projector/internal/version"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:           "pose-projector",
	Short:         "Project images into the latent space of a pose-conditioned generator",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// runFlags are bound into the settings under config.Key(name).
var runFlags = []string{
	"target", "outdir", "generator", "feature-net", "posefile", "keypoints",
	"save-video", "output-name", "checkpoint-w", "save-checkpoint-w",
	"ledger", "ledger-path",
	"num-steps", "w-avg-samples", "seed", "stats-seed",
	"feature-loss", "legacy-feature-loss", "verbose",
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	rootCmd.PersistentFlags().String("config", "", "Config file (yaml, json or toml)")
	rootCmd.AddCommand(projectCmd(), keypointsCmd(), runsCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	d := config.DefaultOptions()
	p := d.Projector
	f := cmd.Flags()
	f.String("target", "", "Target image file to project to")
	f.String("outdir", d.OutDir, "Where to save the output images")
	f.String("generator", "", "Generator weights (JSON)")
	f.String("feature-net", "", "Perceptual network weights (JSON)")
	f.Bool("save-video", d.SaveVideo, "Save an mp4 video of the optimization progress")
	f.String("output-name", "", "Base name of the final image and latent files")
	f.String("checkpoint-w", "", "Reuse latent samples from this .npz instead of sampling")
	f.String("save-checkpoint-w", "", "Save the sampled latent codes to this .npz")
	f.String("ledger", d.Ledger, "Run ledger backend (memory or sqlite)")
	f.String("ledger-path", d.LedgerPath, "Run ledger database file")
	f.Int("num-steps", p.NumSteps, "Number of optimization steps")
	f.Int("w-avg-samples", p.WAvgSamples, "Number of samples for the latent statistics")
	f.Int64("seed", p.Seed, "Random seed for noise initialization and latent perturbation")
	f.Int64("stats-seed", p.StatsSeed, "Random seed for latent statistics sampling")
	f.Bool("feature-loss", p.FeatureLoss, "Add multi-layer feature and pixel losses")
	f.Bool("legacy-feature-loss", p.LegacyFeatureLoss, "Compare target features against themselves, as older releases did")
	f.Bool("verbose", p.Verbose, "Log every optimization step")
}

func projectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Project a target image, conditioned on its row of a pose table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProjection(cmd)
		},
	}
	addRunFlags(cmd)
	cmd.Flags().String("posefile", "", "Pose table CSV with name and keypoints columns")
	cmd.Flags().String("keypoints", "", "")
	cmd.Flags().MarkHidden("keypoints")
	return cmd
}

func keypointsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project-keypoints",
		Short: "Project a target image, conditioned on an inline keypoint string",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProjection(cmd)
		},
	}
	addRunFlags(cmd)
	cmd.Flags().String("keypoints", "", "Colon-separated x:y:confidence triples; empty for no pose")
	cmd.Flags().String("posefile", "", "")
	cmd.Flags().MarkHidden("posefile")
	return cmd
}

func loadSettings(cmd *cobra.Command, names []string) (*viper.Viper, error) {
	path, _ := cmd.Flags().GetString("config")
	v, err := config.New(path)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(config.Key(name), f); err != nil {
				return nil, err
			}
		}
	}
	return v, nil
}

func openLedger(ctx context.Context, opts config.Options) (runlog.Store, error) {
	store, err := runlog.NewStore(opts.Ledger, opts.LedgerPath)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to open run ledger: %w", err)
	}
	return store, nil
}

func runProjection(cmd *cobra.Command) error {
	v, err := loadSettings(cmd, runFlags)
	if err != nil {
		return err
	}
	opts, err := config.Load(v)
	if err != nil {
		return err
	}
	if opts.Target == "" {
		return fmt.Errorf("--target is required")
	}

	ctx := context.Background()
	store, err := openLedger(ctx, opts)
	if err != nil {
		return err
	}
	defer runlog.CloseIfSupported(store)

	state := app.NewState(opts, runlog.NewID())
	state.On(app.EventStatsReady, func(data interface{}) {
		log.Printf("Latent statistics ready")
	})
	state.On(app.EventOutputWritten, func(data interface{}) {
		path := data.(string)
		fmt.Printf("Wrote %s (%s)\n", path, render.FileSize(path))
	})

	if err := state.LoadModels(); err != nil {
		return err
	}
	return state.Run(ctx, store)
}

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded projection runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadSettings(cmd, []string{"ledger", "ledger-path"})
			if err != nil {
				return err
			}
			opts, err := config.Load(v)
			if err != nil {
				return err
			}
			ctx := context.Background()
			store, err := openLedger(ctx, opts)
			if err != nil {
				return err
			}
			defer runlog.CloseIfSupported(store)

			runs, err := store.ListRuns(ctx)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded")
				return nil
			}
			for _, r := range runs {
				fmt.Printf("%s  %-14s  %5d steps  dist %.4f  %6.1fs  %s -> %s\n",
					r.ShortID(), humanize.Time(r.StartedAt), r.Steps, r.FinalDist,
					r.Elapsed.Seconds(), r.Target, r.OutDir)
			}
			return nil
		},
	}
	d := config.DefaultOptions()
	cmd.Flags().String("ledger", d.Ledger, "Run ledger backend (memory or sqlite)")
	cmd.Flags().String("ledger-path", d.LedgerPath, "Run ledger database file")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.String())
		},
	}
}
