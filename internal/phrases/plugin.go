package phrases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/rpc"
	"os/exec"
	"strings"

	"github.com/hashicorp/go-plugin"

	"github.com/felixgeelhaar/gadfly/internal/shared/infrastructure/security"
)

// PluginName is the name a phrase pack is dispensed under.
const PluginName = "phrasepack"

// Handshake must match between the engine and every phrase-pack binary.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "GADFLY_PHRASE_PACK",
	MagicCookieValue: "gadfly-phrases-v1",
}

// PhrasePack is what a plugin binary implements.
type PhrasePack interface {
	Phrases(tone, category string) ([]string, error)
}

// PhrasePackPlugin adapts PhrasePack to go-plugin's net/rpc transport.
type PhrasePackPlugin struct {
	// Impl is set on the plugin side only.
	Impl PhrasePack
}

func (p *PhrasePackPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &RPCServer{Impl: p.Impl}, nil
}

func (*PhrasePackPlugin) Client(_ *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &RPCClient{client: c}, nil
}

// PhrasesArgs is the request for a phrase pool.
type PhrasesArgs struct {
	Tone     string
	Category string
}

// RPCServer runs inside the plugin process.
type RPCServer struct {
	Impl PhrasePack
}

func (s *RPCServer) Phrases(args PhrasesArgs, resp *[]string) error {
	pool, err := s.Impl.Phrases(args.Tone, args.Category)
	if err != nil {
		return err
	}
	*resp = pool
	return nil
}

// RPCClient is the engine-side stub.
type RPCClient struct {
	client *rpc.Client
}

func (c *RPCClient) Phrases(tone, category string) ([]string, error) {
	var pool []string
	if err := c.client.Call("Plugin.Phrases", PhrasesArgs{Tone: tone, Category: category}, &pool); err != nil {
		return nil, err
	}
	return pool, nil
}

// Serve runs impl as a phrase-pack plugin. It blocks until the host
// process kills the plugin.
func Serve(impl PhrasePack) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]plugin.Plugin{
			PluginName: &PhrasePackPlugin{Impl: impl},
		},
	})
}

// CatalogPack serves a Catalog as a PhrasePack.
type CatalogPack struct {
	Catalog *Catalog
}

func (p CatalogPack) Phrases(tone, category string) ([]string, error) {
	return p.Catalog.Phrases(context.Background(), tone, category)
}

// LaunchOptions configures a phrase-pack process.
type LaunchOptions struct {
	Path string
	// Checksum is an optional hex SHA-256 of the binary, "sha256:" prefix allowed.
	Checksum string
	Logger   *slog.Logger
}

// PluginProvider is a Provider backed by a running phrase-pack process.
type PluginProvider struct {
	client *plugin.Client
	pack   PhrasePack
	path   string
}

// Launch starts the phrase pack at opts.Path and dispenses it.
func Launch(opts LaunchOptions) (*PluginProvider, error) {
	path, err := security.ValidateExecutable(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("phrase pack: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var secure *plugin.SecureConfig
	if opts.Checksum != "" {
		sum, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(opts.Checksum), "sha256:"))
		if err != nil {
			return nil, fmt.Errorf("phrase pack checksum: %w", err)
		}
		secure = &plugin.SecureConfig{Checksum: sum, Hash: sha256.New()}
	}

	// #nosec G204 -- path validated above
	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          map[string]plugin.Plugin{PluginName: &PhrasePackPlugin{}},
		Cmd:              exec.Command(path),
		SecureConfig:     secure,
		Logger:           newHclogAdapter(logger, "phrasepack"),
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("phrase pack connect: %w", err)
	}
	raw, err := rpcClient.Dispense(PluginName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("phrase pack dispense: %w", err)
	}
	pack, ok := raw.(PhrasePack)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("phrase pack %s: unexpected type %T", path, raw)
	}

	logger.Info("phrase pack loaded", "path", path)
	return &PluginProvider{client: client, pack: pack, path: path}, nil
}

func (p *PluginProvider) Phrases(ctx context.Context, tone, category string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.client.Exited() {
		return nil, fmt.Errorf("phrase pack %s exited", p.path)
	}
	return p.pack.Phrases(tone, category)
}

// Healthy reports whether the plugin process is still running.
func (p *PluginProvider) Healthy(context.Context) error {
	if p.client.Exited() {
		return fmt.Errorf("phrase pack %s exited", p.path)
	}
	return nil
}

// Close kills the plugin process.
func (p *PluginProvider) Close() {
	p.client.Kill()
}
