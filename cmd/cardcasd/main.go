// Command cardcasd serves a CAS backend over gRPC so several card tools can
// share one content store.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"xdao.co/nftcard/config"
	"xdao.co/nftcard/storage/casregistry"
	"xdao.co/nftcard/storage/grpccas"

	_ "xdao.co/nftcard/storage/ipfs"
	_ "xdao.co/nftcard/storage/localfs"
	_ "xdao.co/nftcard/storage/memory"
	_ "xdao.co/nftcard/storage/s3cas"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("cardcasd", flag.ContinueOnError)
	fs.SetOutput(errOut)
	listen := fs.String("listen", "127.0.0.1:7777", "listen address")
	backend := fs.String("backend", "localfs", "CAS backend name")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	maxMsg := fs.Int("max-msg-bytes", 16<<20, "maximum gRPC message size")
	logLevel := fs.String("log-level", "info", "log level")
	logFormat := fs.String("log-format", "console", "log format: console or json")

	casregistry.RegisterFlags(fs, casregistry.UsageDaemon)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(out, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	logCfg := config.Log{Level: *logLevel, Format: *logFormat}
	if _, err := logCfg.ParseLevel(); err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	log := logCfg.Logger(errOut).With().Str("component", "cardcasd").Logger()

	cas, closeFn, err := casregistry.Open(*backend, casregistry.UsageDaemon)
	if err != nil {
		log.Error().Err(err).Str("backend", *backend).Msg("open backend")
		return 2
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Error().Err(err).Msg("listen")
		return 1
	}
	defer lis.Close()

	s := grpc.NewServer(
		grpc.MaxRecvMsgSize(*maxMsg),
		grpc.MaxSendMsgSize(*maxMsg),
		grpc.UnaryInterceptor(logCalls(log)),
	)
	grpccas.RegisterCASServer(s, &grpccas.Server{CAS: cas})

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		s.GracefulStop()
	}()

	log.Info().Str("addr", lis.Addr().String()).Str("backend", *backend).Msg("listening")
	if err := s.Serve(lis); err != nil {
		log.Error().Err(err).Msg("serve")
		return 1
	}
	return 0
}

func logCalls(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		ev := log.Debug()
		if err != nil {
			ev = log.Warn().Err(err)
		}
		ev.Str("method", info.FullMethod).Dur("latency", time.Since(start)).Msg("rpc")
		return resp, err
	}
}
