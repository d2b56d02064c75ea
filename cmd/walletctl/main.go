package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/urfave/cli/v2"

	"github.com/layer-3/authgate/adapters/api"
	"github.com/layer-3/authgate/adapters/cookie"
	"github.com/layer-3/authgate/adapters/events"
	"github.com/layer-3/authgate/adapters/wallet"
	"github.com/layer-3/authgate/client"
	"github.com/layer-3/authgate/config"
	"github.com/layer-3/authgate/internal/eth"
	"github.com/layer-3/authgate/internal/logging"
)

func main() {
	// A missing project id aborts start-up.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	app := &cli.App{
		Name:  "walletctl",
		Usage: "sign in to an authgate service with a local wallet key",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "key",
				Usage:   "hex secp256k1 private key, a random one is used when empty",
				EnvVars: []string{"WALLET_PRIVATE_KEY"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 30 * time.Second,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "run the challenge handshake and print the resulting session state",
				Action: func(c *cli.Context) error {
					return login(c, cfg)
				},
			},
			{
				Name:  "chain",
				Usage: "check the configured chain transport",
				Action: func(c *cli.Context) error {
					return checkChain(c, cfg)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func login(c *cli.Context, cfg config.Config) error {
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	logger := logging.New(os.Stderr)

	key, err := loadKey(c.String("key"))
	if err != nil {
		return err
	}
	w := wallet.NewKeyWallet(eth.NewKeySigner(key))
	defer w.Close()

	tokens, err := cookie.NewStore(cfg.APIURL())
	if err != nil {
		return err
	}
	authAPI := api.NewClient(cfg.APIURL(), &http.Client{Jar: tokens.Jar(), Timeout: 10 * time.Second})

	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NewStdLogger(false, false))
	defer pubSub.Close()
	refreshes, err := pubSub.Subscribe(ctx, events.RefreshTopic)
	if err != nil {
		return err
	}

	controller := client.NewController(w, authAPI, tokens,
		client.WithRefresher(events.NewRefresher(pubSub, logger)),
		client.WithLogger(logger),
	)
	defer controller.Close()

	go func() { _ = controller.Run(ctx) }()

	if err := w.Connect(ctx); err != nil {
		return err
	}

	logger.Info("wallet connected", "address", w.Connection().Address, "project_id", cfg.ProjectID(), "chain", cfg.Chain().Name)

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("no session established: %w", ctx.Err())
		case msg := <-refreshes:
			msg.Ack()
			var ev events.RefreshEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "%s authenticated=%t %s\n", ev.State, ev.Authenticated, ev.Error)
			if ev.Authenticated {
				return nil
			}
			if ev.Error != "" {
				return fmt.Errorf("authentication failed: %s", ev.Error)
			}
		}
	}
}

func checkChain(c *cli.Context, cfg config.Config) error {
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	ethClient, err := config.DialChain(ctx, cfg)
	if err != nil {
		return err
	}
	defer ethClient.Close()

	block, err := ethClient.BlockNumber(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s (chain %d) at block %d\n", cfg.Chain().Name, cfg.Chain().ID, block)
	return nil
}

func loadKey(hexKey string) (*ecdsa.PrivateKey, error) {
	if hexKey == "" {
		return crypto.GenerateKey()
	}
	return crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
}
