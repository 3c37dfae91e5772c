package cmds

import (
	"context"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-go-golems/docqa/pkg/backend/mock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func NewMockBackendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mock-backend",
		Short: "Serve an in-memory backend for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			users, _ := cmd.Flags().GetStringSlice("user")

			options := []mock.Option{mock.WithDocuments(mock.DefaultDocuments()...)}
			for _, u := range users {
				parts := strings.SplitN(u, ":", 4)
				if len(parts) != 4 {
					return errors.Errorf("invalid --user %q, expected domain:userid:email:password", u)
				}
				options = append(options, mock.WithUser(parts[0], parts[1], parts[2], parts[3]))
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           mock.NewServer(options...).Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				log.Info().Str("addr", addr).Msg("mock backend listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			eg.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return eg.Wait()
		},
	}
	cmd.Flags().String("addr", ":8000", "Listen address")
	cmd.Flags().StringSlice("user", nil, "Seed a user as domain:userid:email:password")
	return cmd
}
