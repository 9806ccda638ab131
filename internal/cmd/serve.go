package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/runger/singleselect/internal/logging"
	"github.com/runger/singleselect/internal/lookup"
	"github.com/runger/singleselect/internal/lookup/grpcapi"
	"github.com/runger/singleselect/internal/lookup/httpapi"
)

const shutdownTimeout = 5 * time.Second

var (
	serveHTTPAddr string
	serveGRPCAddr string
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Serve the lookup catalog over HTTP and gRPC",
	GroupID: groupCore,
	Long: `Answer selection service lookups from the SQLite catalog.

HTTP: POST /v1/lookup {"input_text": "..."} or GET /v1/lookup?q=...
gRPC: singleselect.lookup.v1.Lookup/Lookup with a google.protobuf.Struct

Set an address to "" to disable that server.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHTTPAddr, "http", "", "HTTP listen address (default from config)")
	serveCmd.Flags().StringVar(&serveGRPCAddr, "grpc", "", "gRPC listen address (default from config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := *appConfig
	if cmd.Flags().Changed("http") {
		cfg.Server.HTTPAddr = serveHTTPAddr
	}
	if cmd.Flags().Changed("grpc") {
		cfg.Server.GRPCAddr = serveGRPCAddr
	}
	if cfg.Server.HTTPAddr == "" && cfg.Server.GRPCAddr == "" {
		return errors.New("nothing to serve: both HTTP and gRPC addresses are empty")
	}

	cat, err := openCatalog(&cfg)
	if err != nil {
		return err
	}
	defer cat.Close()
	svc := lookup.SearcherService(cat)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.LogStartup(logger, "lookup server", Version, resolvedConfigPath())
	err = serveLookup(ctx, svc, cfg.Server.HTTPAddr, cfg.Server.GRPCAddr)
	reason := "signal"
	if err != nil {
		reason = err.Error()
	}
	logging.LogShutdown(logger, "lookup server", reason)
	return err
}

// serveLookup runs the configured servers until ctx is done or one fails.
// Both listeners are bound before either server starts, so a bad address
// leaves nothing running.
func serveLookup(ctx context.Context, svc lookup.Service, httpAddr, grpcAddr string) error {
	var httpLis, grpcLis net.Listener
	if httpAddr != "" {
		lis, err := net.Listen("tcp", httpAddr)
		if err != nil {
			return fmt.Errorf("http listen: %w", err)
		}
		httpLis = lis
	}
	if grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			if httpLis != nil {
				httpLis.Close()
			}
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcLis = lis
	}

	g, gctx := errgroup.WithContext(ctx)

	if httpLis != nil {
		srv := &http.Server{
			Handler:           httpapi.NewServer(svc, logger).Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		logger.Info("http server listening", "addr", httpLis.Addr().String())
		g.Go(func() error {
			if err := srv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http serve: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if grpcLis != nil {
		gs := grpc.NewServer()
		grpcapi.Register(gs, svc, logger)
		logger.Info("grpc server listening", "addr", grpcLis.Addr().String())
		g.Go(func() error {
			if err := gs.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc serve: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			gs.GracefulStop()
			return nil
		})
	}

	return g.Wait()
}
