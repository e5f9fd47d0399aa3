// cmd/ingress.go
package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/aceteam-ai/triggerbench/internal/ingress"
	"github.com/spf13/cobra"
)

var ingressPort int

var ingressCmd = &cobra.Command{
	Use:   "ingress",
	Short: "Run the reference first-stage HTTP function",
	Long: `Serves POST /modifyDocument. Each request opens the trial's timing record,
writes the trigger document (emitting a change event for the downstream
stage) and closes the first stage. Also serves /health and /metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		srv := ingress.NewServer(ingress.NewHandler(store, ingress.HandlerConfig{
			Collection: cfg.Collection,
			LogFn:      logLine,
		}))

		goodColor.Printf("Ingress listening on :%d\n", cfg.Ingress.Port)
		fmt.Printf("   - Trigger: POST http://localhost:%d/modifyDocument\n", cfg.Ingress.Port)
		fmt.Printf("   - Metrics: http://localhost:%d/metrics\n", cfg.Ingress.Port)
		return srv.Start(ctx, cfg.Ingress.Port)
	},
}

func init() {
	ingressCmd.Flags().IntVarP(&ingressPort, "port", "p", 8080, "Port to listen on")
	rootCmd.AddCommand(ingressCmd)
}
