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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/Vasu1712/scenyx-securechat/internal/api/chat"
	"github.com/Vasu1712/scenyx-securechat/internal/keys"
	"github.com/Vasu1712/scenyx-securechat/internal/metrics"
	"github.com/Vasu1712/scenyx-securechat/internal/middleware"
	"github.com/Vasu1712/scenyx-securechat/internal/storage/memory"
	"github.com/Vasu1712/scenyx-securechat/internal/ws"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the reference relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.RelayJWTSecret == "" {
			return errors.New("RELAY_JWT_SECRET is required")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m := metrics.New(reg)

		hub := ws.NewHub(m)
		go hub.Run(ctx)

		h := &chat.Handler{
			Store:     memory.NewDMStore(),
			Hub:       hub,
			Metrics:   m,
			FrameRate: rate.Limit(cfg.RelayRate),
			Burst:     int(cfg.RelayRate) * 2,
			Origin:    cfg.RelayOrigin,
		}
		if cfg.ValkeyAddr != "" {
			dir, err := keys.DialValkey(cfg.ValkeyAddr)
			if err != nil {
				return err
			}
			defer dir.Close()
			h.Keys = dir
		}
		auth := &middleware.Auth{Secret: []byte(cfg.RelayJWTSecret)}

		srv := &http.Server{
			Addr:              cfg.RelayAddr,
			Handler:           chat.NewRouter(h, auth, reg),
			ReadHeaderTimeout: 10 * time.Second,
		}
		errc := make(chan error, 1)
		go func() {
			logrus.WithField("addr", cfg.RelayAddr).Info("relay listening")
			errc <- srv.ListenAndServe()
		}()

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logrus.Info("relay shutting down")
		return srv.Shutdown(shutdown)
	},
}

var (
	tokenUser  string
	tokenEmail string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an access token signed with RELAY_JWT_SECRET",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.RelayJWTSecret == "" {
			return errors.New("RELAY_JWT_SECRET is required")
		}
		auth := &middleware.Auth{Secret: []byte(cfg.RelayJWTSecret)}
		tok, err := auth.Issue(tokenUser, tokenEmail, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email used for user search")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime, 0 for none")
	_ = tokenCmd.MarkFlagRequired("user")
	relayCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(relayCmd)
}
