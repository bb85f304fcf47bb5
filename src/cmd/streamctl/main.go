package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jiaming2012/option-chain-stream/src/cmd/streamctl/run"
	"github.com/jiaming2012/option-chain-stream/src/eventmodels"
	"github.com/jiaming2012/option-chain-stream/src/utils"
)

var rootCmd = &cobra.Command{
	Use:   "go run src/cmd/streamctl/main.go",
	Short: "Inspect the option chain streaming cache",
}

var marketHoursCmd = &cobra.Command{
	Use:   "market-hours --days 5",
	Short: "Print upcoming market opens in exchange and UTC time",
	Run: func(cmd *cobra.Command, args []string) {
		days, err := cmd.Flags().GetInt("days")
		if err != nil {
			log.Fatalf("error getting days: %v", err)
		}

		configPath, err := cmd.Flags().GetString("config")
		if err != nil {
			log.Fatalf("error getting config: %v", err)
		}

		config := eventmodels.DefaultStreamingCacheConfig()
		if configPath != "" {
			if config, err = eventmodels.LoadStreamingCacheConfig(configPath); err != nil {
				log.Fatalf("error loading config: %v", err)
			}
		}

		session, err := config.Session()
		if err != nil {
			log.Fatalf("error reading market session: %v", err)
		}

		fmt.Print(run.RenderMarketOpens(time.Now(), session, days))
	},
}

var chainCmd = &cobra.Command{
	Use:   "chain SPY",
	Short: "Print the cached option chain for a symbol",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		chain, err := run.FetchChain(serverURL(cmd), args[0])
		if errors.Is(err, eventmodels.ErrContractNotFound) {
			fmt.Printf("no fresh option chain for %s\n", args[0])
			os.Exit(1)
		}

		if err != nil {
			log.Fatalf("error fetching chain: %v", err)
		}

		fmt.Print(run.RenderChain(chain))
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print streaming status",
	Run: func(cmd *cobra.Command, args []string) {
		status, err := run.FetchStatus(serverURL(cmd))
		if err != nil {
			log.Fatalf("error fetching status: %v", err)
		}

		fmt.Printf("streaming: %v\nconnection up: %v\nsymbols: %v\nsubscriptions: %d\nscheduled: %v\n",
			status.Streaming, status.ConnectionUp, status.Symbols, status.SubscriptionCount, status.ScheduledSymbols)
	},
}

func serverURL(cmd *cobra.Command) string {
	url, err := cmd.Flags().GetString("server")
	if err != nil {
		log.Fatalf("error getting server: %v", err)
	}

	return url
}

func main() {
	if err := utils.InitEnvironmentVariables(utils.GetEnvOrDefault("ENV_DIR", ".")); err != nil {
		log.Fatalf("error loading environment variables: %v", err)
	}

	defaultServer := fmt.Sprintf("http://localhost:%s", utils.GetEnvOrDefault("PORT", "8080"))

	marketHoursCmd.Flags().Int("days", 5, "number of upcoming sessions")
	marketHoursCmd.Flags().String("config", os.Getenv("STREAM_CACHE_CONFIG"), "streaming cache config file")
	chainCmd.Flags().String("server", defaultServer, "streaming cache server url")
	statusCmd.Flags().String("server", defaultServer, "streaming cache server url")

	rootCmd.AddCommand(marketHoursCmd, chainCmd, statusCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("error: %v", err)
	}
}
