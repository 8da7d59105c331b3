package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/samber/do/v2"
	"github.com/vreid/wager/internal/pkg/archive"
	"github.com/vreid/wager/internal/pkg/asset"
	"github.com/vreid/wager/internal/pkg/chain"
	"github.com/vreid/wager/internal/pkg/common"
	"github.com/vreid/wager/internal/pkg/factory"
	"github.com/vreid/wager/internal/pkg/genesis"
	"github.com/vreid/wager/internal/pkg/ledger"

	"github.com/urfave/cli/v3"
)

type WagerService struct {
	EchoService     *common.EchoService     `do:""`
	DatabaseService *common.DatabaseService `do:""`

	LedgerService  *ledger.LedgerService   `do:""`
	FactoryService *factory.FactoryService `do:""`
	ArchiveService *archive.ArchiveService `do:""`
}

func runServer(ctx context.Context, cmd *cli.Command) error {
	i := do.New()

	do.ProvideNamedValue(i, "port", cmd.Int("port"))
	do.ProvideNamedValue(i, "data-dir", cmd.String("data-dir"))
	do.ProvideNamedValue(i, "genesis", cmd.String("genesis"))
	do.ProvideNamedValue(i, "faucet", cmd.Bool("faucet"))
	do.ProvideNamedValue(i, "signature-max-age-seconds", cmd.Int("signature-max-age"))

	eventChan := make(chan chain.Event, cmd.Int("event-buffer"))
	var eventSource <-chan chain.Event = eventChan
	var eventSink chan<- chain.Event = eventChan

	do.ProvideNamedValue(i, "event-source", eventSource)
	do.ProvideNamedValue(i, "event-sink", eventSink)

	do.Provide(i, common.NewEchoService)
	do.Provide(i, common.NewDatabaseService)

	do.Provide(i, ledger.NewLedger)
	do.Provide(i, genesis.NewFactory)

	do.Provide(i, ledger.NewLedgerService)
	do.Provide(i, factory.NewFactoryService)
	do.Provide(i, archive.NewArchiveService)

	do.Provide(i, do.InvokeStruct[WagerService])

	wagerService, err := do.Invoke[WagerService](i)
	if err != nil {
		return fmt.Errorf("failed to create wager service: %w", err)
	}

	wagerService.ArchiveService.Start()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Handlers may still commit frames while Shutdown drains them, so the
	// event channel is closed only after Shutdown has returned and the
	// runtime stopped accepting frames.
	drained := make(chan struct{})

	go func() {
		defer close(drained)

		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second) //nolint:mnd
		defer cancel()

		err := wagerService.EchoService.Shutdown(shutdownCtx)
		if err != nil {
			slog.Error("failed to shut down", "error", err)
		}
	}()

	err = wagerService.EchoService.Start()

	stop()
	<-drained

	wagerService.LedgerService.Ledger.Runtime().Close()
	close(eventChan)
	wagerService.ArchiveService.Wait()

	shutdownErr := wagerService.DatabaseService.Shutdown()
	if shutdownErr != nil {
		slog.Error("failed to close database", "error", shutdownErr)
	}

	//nolint:wrapcheck
	return err
}

func runEvents(_ context.Context, cmd *cli.Command) error {
	databaseService, err := common.OpenDatabase(cmd.String("data-dir"), true)
	if err != nil {
		return err
	}

	defer func() {
		_ = databaseService.Shutdown()
	}()

	records, err := archive.ListEvents(databaseService.DB, cmd.Uint64("after"), cmd.Int("limit"))
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(cmd.Root().Writer)

	for _, record := range records {
		err = encoder.Encode(record)
		if err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
	}

	return nil
}

// runGenesis applies a genesis file to a scratch ledger and prints what it
// would create.
func runGenesis(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return cli.Exit("missing genesis file", 1)
	}

	cfg, err := genesis.Load(path)
	if err != nil {
		return err
	}

	l := ledger.New(chain.New(chain.WithLogger(slog.New(slog.DiscardHandler))))

	result, err := genesis.Apply(ctx, l, cfg)
	if err != nil {
		return err
	}

	w := cmd.Root().Writer
	info := result.Factory.Info()

	_, _ = fmt.Fprintf(w, "factory       %s\n", info.Address.Hex())
	_, _ = fmt.Fprintf(w, "initialized   %t\n", info.Initialized)
	_, _ = fmt.Fprintf(w, "fee receiver  %s\n", info.FeeReceiver.Hex())

	symbols := make([]string, 0, len(result.Tokens))
	for symbol := range result.Tokens {
		symbols = append(symbols, symbol)
	}

	sort.Strings(symbols)

	for _, symbol := range symbols {
		_, _ = fmt.Fprintf(w, "token %-7s %s\n", symbol, result.Tokens[symbol].Hex())
	}

	for _, entry := range result.Factory.FeeTokens() {
		decimals, err := l.Decimals(entry.Asset)
		if err != nil {
			return err
		}

		_, _ = fmt.Fprintf(w, "fee %-50s %s (enabled: %t)\n",
			entry.Asset, asset.FormatUnits(entry.Fee, decimals), entry.Enabled)
	}

	return nil
}

func main() {
	dataDirFlag := &cli.StringFlag{
		Name:    "data-dir",
		Value:   "./wager/data",
		Sources: cli.EnvVars("WAGER_DATA_DIR"),
	}

	//nolint:exhaustruct
	cmd := &cli.Command{
		Name: "wager",
		Commands: []*cli.Command{
			{
				Name: "server",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "port",
						Value:   3000, //nolint:mnd
						Sources: cli.EnvVars("WAGER_PORT"),
					},
					dataDirFlag,
					&cli.StringFlag{
						Name:    "genesis",
						Value:   "",
						Sources: cli.EnvVars("WAGER_GENESIS"),
					},
					&cli.BoolFlag{
						Name:    "faucet",
						Value:   false,
						Sources: cli.EnvVars("WAGER_FAUCET"),
					},
					&cli.IntFlag{
						Name:    "signature-max-age",
						Usage:   "seconds a signed request stays valid",
						Value:   300, //nolint:mnd
						Sources: cli.EnvVars("WAGER_SIGNATURE_MAX_AGE"),
					},
					&cli.IntFlag{
						Name:    "event-buffer",
						Value:   1000, //nolint:mnd
						Sources: cli.EnvVars("WAGER_EVENT_BUFFER"),
					},
				},
				Action: runServer,
			},
			{
				Name:  "events",
				Usage: "print archived events as JSON lines",
				Flags: []cli.Flag{
					dataDirFlag,
					&cli.Uint64Flag{
						Name:  "after",
						Value: 0,
					},
					&cli.IntFlag{
						Name:  "limit",
						Value: archive.DefaultLimit,
					},
				},
				Action: runEvents,
			},
			{
				Name:      "genesis",
				Usage:     "check a genesis file and show what it creates",
				ArgsUsage: "FILE",
				Action:    runGenesis,
			},
		},
		DefaultCommand: "server",
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
