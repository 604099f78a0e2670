// Command xritrx receives a GK-2A LRIT/HRIT VCDU stream from a source
// adapter, reassembles it into xRIT files, and writes decoded products
// to disk.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gk2a/xritrx/internal/config"
	"github.com/gk2a/xritrx/internal/demux"
	"github.com/gk2a/xritrx/internal/keytable"
	"github.com/gk2a/xritrx/internal/product"
	"github.com/gk2a/xritrx/internal/status"
	"github.com/gk2a/xritrx/internal/vcdusource"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("VERBOSE") != "" {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	downlink := config.Downlink(strings.ToUpper(envOr("DOWNLINK", "LRIT")))
	outputRoot := envOr("OUTPUT_ROOT", "./output")
	inputKind := envOr("INPUT", "tcp")
	inputAddr := envOr("INPUT_ADDR", "127.0.0.1:9000")
	inputFile := os.Getenv("INPUT_FILE")
	keyFile := os.Getenv("KEY_FILE")
	dumpPath := os.Getenv("DUMP_PATH")
	statusAddr := envOr("STATUS_ADDR", ":8080")
	blacklist := parseBlacklist(os.Getenv("BLACKLIST"))

	opts := []config.Option{config.WithBlacklist(blacklist...), config.WithDumpPath(dumpPath)}
	if keyFile != "" {
		keys, err := keytable.Load(keyFile)
		if err != nil {
			return fmt.Errorf("loading key file: %w", err)
		}
		opts = append(opts, config.WithKeys(keys))
		log.Info("decryption keys loaded", "path", keyFile, "count", keys.Len())
	}

	cfg, err := config.New(config.SpacecraftGK2A, downlink, outputRoot, opts...)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	var decoder product.RasterDecoder
	switch downlink {
	case config.DownlinkLRIT:
		decoder = product.StdlibDecoder{}
	default:
		decoder = product.NopDecoder{}
	}

	registry := product.NewRegistry(cfg, decoder, log)

	var dump *os.File
	if dumpPath != "" {
		dump, err = os.Create(dumpPath)
		if err != nil {
			return fmt.Errorf("opening VCDU dump file: %w", err)
		}
		defer dump.Close()
	}
	var dumpWriter io.Writer
	if dump != nil {
		dumpWriter = dump
	}

	router := demux.NewRouter(cfg, registry, dumpWriter, log)

	log.Info("xritrx starting",
		"version", version,
		"downlink", downlink,
		"input", inputKind,
		"output", outputRoot,
		"status_addr", statusAddr,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	src, closeSrc, err := openSource(ctx, inputKind, inputAddr, inputFile, log)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	if closeSrc != nil {
		defer closeSrc()
	}

	statusSrv := &http.Server{
		Addr:    statusAddr,
		Handler: status.NewServer(router, registry, log).Handler(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return router.Run(ctx, src)
	})

	g.Go(func() error {
		log.Info("status endpoint listening", "addr", statusAddr)
		if err := statusSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return statusSrv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	registry.Flush()
	return err
}

// openSource constructs the vcdusource.Source named by kind, returning an
// optional close function for the caller to defer.
func openSource(ctx context.Context, kind, addr, file string, log *slog.Logger) (demux.Source, func(), error) {
	switch kind {
	case "tcp":
		src, err := vcdusource.DialTCP(ctx, addr, log)
		if err != nil {
			return nil, nil, err
		}
		return src, func() { src.Close() }, nil
	case "nng":
		src, err := vcdusource.DialNanomsgTCP(ctx, addr, log)
		if err != nil {
			return nil, nil, err
		}
		return src, func() { src.Close() }, nil
	case "udp":
		src, err := vcdusource.ListenUDP(addr, log)
		if err != nil {
			return nil, nil, err
		}
		return src, func() { src.Close() }, nil
	case "file":
		src, err := vcdusource.OpenFile(file)
		if err != nil {
			return nil, nil, err
		}
		return src, func() { src.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported input type %q", kind)
	}
}

func parseBlacklist(s string) []uint8 {
	if s == "" {
		return nil
	}
	var out []uint8
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		out = append(out, uint8(n))
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
