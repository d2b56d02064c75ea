// Package config holds the wallet connection configuration handed to the
// connection provider once at start-up.
package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/caarlos0/env/v11"
)

// ErrMissingProjectID is returned when the connection provider project id is unset.
var ErrMissingProjectID = errors.New("WALLET_CONNECT_PROJECT_ID must be set")

// Chain is a network the wallet may connect to.
type Chain struct {
	ID     uint64
	Name   string
	RPCURL string
}

// Polygon is the only chain the application allows.
var Polygon = Chain{
	ID:     137,
	Name:   "polygon",
	RPCURL: "https://polygon-rpc.com",
}

// Metadata is shown by wallets when they are asked to connect.
type Metadata struct {
	Name        string
	Description string
	URL         string // must match the serving origin
	Icons       []string
}

// Methods toggles the connection methods offered to the user.
type Methods struct {
	WalletConnect bool
	Injected      bool
	EIP6963       bool
	Coinbase      bool
}

// Storage names where the connector persists its own state.
type Storage string

// StorageCookie keeps connector state in cookies so it survives server rendering.
const StorageCookie Storage = "cookie"

var defaultMetadata = Metadata{
	Name:        "Web3Modal",
	Description: "Web3Modal Example",
	URL:         "https://web3modal.com",
	Icons:       []string{"https://avatars.githubusercontent.com/u/37784886"},
}

type environment struct {
	ProjectID string `env:"WALLET_CONNECT_PROJECT_ID"`
	RPCURL    string `env:"POLYGON_RPC_URL"`
	APIURL    string `env:"AUTHGATE_API_URL" envDefault:"http://localhost:9000"`
}

// Config is the immutable connection descriptor. Accessors return copies.
type Config struct {
	projectID string
	apiURL    string
	chains    []Chain
	metadata  Metadata
	methods   Methods
	ssr       bool
	storage   Storage
}

// Load reads the process environment. A missing project id is a fatal
// configuration error and callers are expected to abort.
func Load() (Config, error) {
	return load(env.Options{})
}

// LoadFrom is Load over an explicit environment map.
func LoadFrom(environ map[string]string) (Config, error) {
	return load(env.Options{Environment: environ})
}

func load(opts env.Options) (Config, error) {
	var e environment
	if err := env.ParseWithOptions(&e, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	chain := Polygon
	if e.RPCURL != "" {
		chain.RPCURL = e.RPCURL
	}

	cfg := Config{
		projectID: e.ProjectID,
		apiURL:    e.APIURL,
		chains:    []Chain{chain},
		metadata:  defaultMetadata,
		methods: Methods{
			WalletConnect: true,
			Injected:      true,
			EIP6963:       true,
			Coinbase:      true,
		},
		ssr:     true,
		storage: StorageCookie,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants of a loaded configuration.
func (c Config) Validate() error {
	if c.projectID == "" {
		return ErrMissingProjectID
	}
	if len(c.chains) != 1 || c.chains[0].ID != Polygon.ID {
		return fmt.Errorf("only %s (chain %d) is allowed", Polygon.Name, Polygon.ID)
	}
	if c.metadata.URL == "" {
		return errors.New("metadata url is required")
	}
	return nil
}

// ProjectID is the connection-provider project identifier.
func (c Config) ProjectID() string { return c.projectID }

// APIURL is the base URL of the authentication service.
func (c Config) APIURL() string { return c.apiURL }

// Chains returns a copy of the allowed chain list.
func (c Config) Chains() []Chain { return slices.Clone(c.chains) }

// Chain returns the single allowed chain.
func (c Config) Chain() Chain { return c.chains[0] }

// Metadata returns the display metadata shown by the wallet.
func (c Config) Metadata() Metadata {
	m := c.metadata
	m.Icons = slices.Clone(m.Icons)
	return m
}

// Methods reports which connection methods are enabled.
func (c Config) Methods() Methods { return c.methods }

// SSR reports whether the connector runs under server-side rendering.
func (c Config) SSR() bool { return c.ssr }

// Storage is where the connector persists its own state.
func (c Config) Storage() Storage { return c.storage }
