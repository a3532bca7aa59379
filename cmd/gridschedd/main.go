package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gridsched/gridsched/internal/engine"
	"github.com/gridsched/gridsched/internal/logging"
	"github.com/gridsched/gridsched/internal/metrics"
	"github.com/gridsched/gridsched/internal/store"
	"github.com/gridsched/gridsched/internal/uiapi"
)

func main() {
	var port int
	var dbPath string

	rootCmd := &cobra.Command{
		Use:   "gridschedd",
		Short: "GridSched HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			viper.SetDefault("daytime.from", engine.DefaultDaytime.From)
			viper.SetDefault("daytime.to", engine.DefaultDaytime.To)
			viper.SetDefault("log.level", "info")
			viper.AutomaticEnv()

			log := logging.New("gridschedd", viper.GetString("log.level"))

			if dbPath == "" {
				home, _ := os.UserHomeDir()
				dbPath = filepath.Join(home, ".gridsched", "gridsched.db")
				os.MkdirAll(filepath.Dir(dbPath), 0755)
			}

			st, err := store.NewStore(dbPath)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer st.Close()

			collector, err := metrics.NewCollector(nil)
			if err != nil {
				return fmt.Errorf("registering metrics: %w", err)
			}

			daytime := engine.DaytimeWindow{
				From: viper.GetInt("daytime.from"),
				To:   viper.GetInt("daytime.to"),
			}
			optimizer := engine.NewOptimizer(daytime, log)

			srv := uiapi.NewServer(st, optimizer, collector, log)

			addr := fmt.Sprintf(":%d", port)
			log.Info().Int("port", port).Str("db", dbPath).Msg("gridschedd starting")

			return http.ListenAndServe(addr, srv.Handler())
		},
	}

	rootCmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP port")
	rootCmd.Flags().StringVar(&dbPath, "db", "", "Database path")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
