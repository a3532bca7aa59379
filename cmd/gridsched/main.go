package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gridsched/gridsched/internal/client"
	"github.com/gridsched/gridsched/internal/engine"
	"github.com/gridsched/gridsched/internal/logging"
	"github.com/gridsched/gridsched/internal/planio"
	"github.com/gridsched/gridsched/internal/store"
)

var (
	cfgFile string
	dbPath  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gridsched",
		Short: "GridSched - Schedule electrical devices against daily tariffs",
		Long: `GridSched computes a minimum-cost daily operating schedule for a set of
electrical devices against a time-varying electricity tariff, honoring an
optional per-hour power cap.`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gridsched/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default is $HOME/.gridsched/gridsched.db)")

	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(optimizeCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(deviceCmd())
	rootCmd.AddCommand(tariffCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".gridsched")
		os.MkdirAll(configDir, 0755)

		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetDefault("daytime.from", engine.DefaultDaytime.From)
	viper.SetDefault("daytime.to", engine.DefaultDaytime.To)
	viper.SetDefault("log.level", "info")

	viper.AutomaticEnv()
	viper.ReadInConfig()

	if dbPath == "" {
		home, _ := os.UserHomeDir()
		dbPath = filepath.Join(home, ".gridsched", "gridsched.db")
	}
}

func daytimeWindow() engine.DaytimeWindow {
	return engine.DaytimeWindow{
		From: viper.GetInt("daytime.from"),
		To:   viper.GetInt("daytime.to"),
	}
}

func newOptimizer() *engine.Optimizer {
	log := logging.New("cli", viper.GetString("log.level"))
	return engine.NewOptimizer(daytimeWindow(), log)
}

// writeOutput encodes the output document to the given path, or stdout
// when path is empty.
func writeOutput(out planio.Output, path string) error {
	if path == "" {
		return out.Encode(os.Stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()
	return out.Encode(f)
}

func optimizeCmd() *cobra.Command {
	var inputPath string
	var outputPath string
	var server string

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Compute a schedule for an input file",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := planio.Load(inputPath)
			if err != nil {
				return err
			}

			if server != "" {
				out, err := client.NewClient(server).Optimize(context.Background(), in)
				if err != nil {
					return err
				}
				return writeOutput(*out, outputPath)
			}

			res, err := newOptimizer().Optimize(in.Rates, in.Devices, in.MaxPower)
			if err != nil {
				return err
			}
			return writeOutput(planio.FormatResult(res), outputPath)
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "input JSON file (required)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&server, "server", "", "optimize via a running gridschedd instead of locally")
	cmd.MarkFlagRequired("input")

	return cmd
}

func runCmd() *cobra.Command {
	var planName string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Optimize the stored device roster against a stored tariff plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.NewStore(dbPath)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer st.Close()

			rates, maxPower, err := st.GetTariffPlan(planName)
			if err != nil {
				return fmt.Errorf("getting tariff plan %q: %w (run 'gridsched tariff set' first)", planName, err)
			}

			devices, err := st.GetDevices()
			if err != nil {
				return fmt.Errorf("getting devices: %w", err)
			}
			if len(devices) == 0 {
				return fmt.Errorf("no devices configured (use 'gridsched device add')")
			}

			res, err := newOptimizer().Optimize(rates, devices, maxPower)
			if err != nil {
				return err
			}

			out := planio.FormatResult(res)
			run := store.Run{
				ID:        uuid.NewString(),
				PlanName:  planName,
				Input:     planio.Input{Rates: rates, Devices: devices, MaxPower: maxPower},
				Output:    out,
				TotalCost: res.Bill.Total,
				CreatedAt: time.Now().UTC(),
			}
			if err := st.SaveRun(run); err != nil {
				return fmt.Errorf("saving run: %w", err)
			}

			fmt.Fprintf(os.Stderr, "Saved run %s (total %.4f)\n", run.ID, run.TotalCost)
			return out.Encode(os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&planName, "plan", "p", "default", "tariff plan name")

	return cmd
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the GridSched database",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.NewStore(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			fmt.Println("✓ Initialized GridSched")
			fmt.Printf("Database: %s\n", dbPath)
			fmt.Println("\nNext steps:")
			fmt.Println("  1. Store a tariff plan: gridsched tariff set -f rates.json")
			fmt.Println("  2. Add devices: gridsched device add")
			fmt.Println("  3. Compute a schedule: gridsched run")

			return nil
		},
	}
}

func deviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Manage the device roster",
	}

	cmd.AddCommand(deviceAddCmd())
	cmd.AddCommand(deviceListCmd())
	cmd.AddCommand(deviceRmCmd())

	return cmd
}

func deviceAddCmd() *cobra.Command {
	var id string
	var name string
	var power float64
	var duration int
	var mode string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a device",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.NewStore(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			if id == "" {
				id = uuid.NewString()
			}

			device := engine.Device{
				ID:       id,
				Name:     name,
				Power:    power,
				Duration: duration,
				Mode:     mode,
			}

			if err := st.SaveDevice(device); err != nil {
				return err
			}

			fmt.Printf("✓ Added device: %s\n", name)
			fmt.Printf("  ID: %s\n", device.ID)
			fmt.Printf("  Power: %.0f W\n", power)
			fmt.Printf("  Duration: %d h\n", duration)
			if mode != "" {
				fmt.Printf("  Mode: %s\n", mode)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "device id (generated when omitted)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "device name (required)")
	cmd.Flags().Float64VarP(&power, "power", "w", 0, "power draw in watts (required)")
	cmd.Flags().IntVarP(&duration, "duration", "d", 1, "run length in hours (1-24)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "restrict to part of the day: day or night")

	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("power")

	return cmd
}

func deviceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List devices in scheduling order",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.NewStore(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			devices, err := st.GetDevices()
			if err != nil {
				return err
			}

			if len(devices) == 0 {
				fmt.Println("No devices configured")
				return nil
			}

			fmt.Printf("%-30s %-36s %9s %9s %7s\n", "NAME", "ID", "POWER", "DURATION", "MODE")
			fmt.Println("----------------------------------------------------------------------------------------------")

			for _, d := range devices {
				mode := d.Mode
				if mode == "" {
					mode = "any"
				}
				fmt.Printf("%-30s %-36s %8.0fW %8dh %7s\n", d.Name, d.ID, d.Power, d.Duration, mode)
			}

			return nil
		},
	}
}

func deviceRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.NewStore(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.DeleteDevice(args[0]); err != nil {
				return err
			}

			fmt.Printf("✓ Removed device %s\n", args[0])
			return nil
		},
	}
}

func tariffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tariff",
		Short: "Manage tariff plans",
	}

	cmd.AddCommand(tariffSetCmd())
	cmd.AddCommand(tariffShowCmd())

	return cmd
}

// tariffFile is the on-disk shape accepted by 'tariff set'.
type tariffFile struct {
	Rates    []engine.TariffRange `json:"rates"`
	MaxPower *float64             `json:"maxPower,omitempty"`
}

func tariffSetCmd() *cobra.Command {
	var file string
	var planName string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store a tariff plan from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading tariff file: %w", err)
			}

			var plan tariffFile
			if err := json.Unmarshal(data, &plan); err != nil {
				return fmt.Errorf("parsing tariff file: %w", err)
			}

			for _, r := range plan.Rates {
				if err := r.Validate(); err != nil {
					return err
				}
			}
			if err := engine.BuildTimeline(plan.Rates).Validate(); err != nil {
				return err
			}
			if plan.MaxPower != nil && *plan.MaxPower < 0 {
				return fmt.Errorf("maxPower must not be negative")
			}

			st, err := store.NewStore(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.SaveTariffPlan(planName, plan.Rates, plan.MaxPower); err != nil {
				return err
			}

			fmt.Printf("✓ Stored tariff plan %q (%d ranges)\n", planName, len(plan.Rates))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with {rates, maxPower} (required)")
	cmd.Flags().StringVarP(&planName, "name", "n", "default", "plan name")
	cmd.MarkFlagRequired("file")

	return cmd
}

func tariffShowCmd() *cobra.Command {
	var planName string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a stored tariff plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.NewStore(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			rates, maxPower, err := st.GetTariffPlan(planName)
			if err != nil {
				return fmt.Errorf("getting tariff plan %q: %w", planName, err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(tariffFile{Rates: rates, MaxPower: maxPower})
		},
	}

	cmd.Flags().StringVarP(&planName, "name", "n", "default", "plan name")

	return cmd
}
