// Command gatelink connects to a gateway, maintains the session, and streams
// server events to stdout. With -call it issues a single request and exits.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/codefionn/gatelink/internal/config"
	"github.com/codefionn/gatelink/internal/gateway"
	"github.com/codefionn/gatelink/internal/identity"
	"github.com/codefionn/gatelink/internal/logger"
	"github.com/codefionn/gatelink/internal/securemem"
	"github.com/codefionn/gatelink/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		urlFlag    = flag.String("url", "", "gateway websocket URL (overrides config)")
		secretFlag = flag.String("secret", "", "gateway shared secret (overrides config)")
		authMode   = flag.String("auth-mode", "", "auth mode: token or password")
		configPath = flag.String("config", "", "credential file path")
		logLevel   = flag.String("log-level", "", "log level: debug, info, warn, error, none")
		save       = flag.Bool("save", false, "persist -url/-secret/-auth-mode to the credential file")
		call       = flag.String("call", "", "send a single request with this method and exit")
		callParams = flag.String("params", "", "JSON params for -call")
	)
	flag.Parse()

	path := *configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return err
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	if *urlFlag != "" {
		cfg.GatewayURL = *urlFlag
	}
	if *authMode != "" {
		cfg.AuthMode = *authMode
	}
	passphrase := os.Getenv("GATELINK_PASSPHRASE")
	if *secretFlag != "" {
		if err := cfg.SetSecret(*secretFlag, passphrase); err != nil {
			return err
		}
	}
	if *save {
		if err := cfg.Save(path); err != nil {
			return err
		}
		fmt.Printf("Saved credentials to %s\n", path)
	}
	if cfg.GatewayURL == "" {
		return errors.New("no gateway URL configured (use -url, or -url -save once)")
	}

	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	configDir := filepath.Dir(path)
	if err := logger.Init(logger.ParseLevel(level), filepath.Join(configDir, "gatelink.log")); err != nil {
		return err
	}

	plain, err := cfg.PlainSecret(passphrase)
	if err != nil {
		return err
	}
	secret := securemem.NewString(plain)
	defer secret.Destroy()

	storePath := cfg.StorePath
	if storePath == "" {
		storePath = filepath.Join(configDir, "identity.db")
	}
	kv, err := store.NewSQLiteStore(storePath)
	if err != nil {
		return err
	}
	defer kv.Close()

	gwCfg := gateway.DefaultConfig()
	if cfg.Locale != "" {
		gwCfg.Locale = cfg.Locale
	}

	client := gateway.New(gwCfg, gateway.Credentials{
		URL:      cfg.GatewayURL,
		Secret:   secret,
		AuthMode: cfg.AuthMode,
	}, identity.NewStore(kv))

	client.OnStatus(func(s gateway.Status) {
		fmt.Printf("-- %s\n", s)
	})

	// Credential file rewrites take effect on the next connection attempt.
	stopWatch, err := config.Watch(path, func(updated *config.Config) {
		plain, err := updated.PlainSecret(passphrase)
		if err != nil {
			logger.Warn("ignoring credential update: %v", err)
			return
		}
		client.SetCredentials(gateway.Credentials{
			URL:      updated.GatewayURL,
			Secret:   securemem.NewString(plain),
			AuthMode: updated.AuthMode,
		})
	})
	if err != nil {
		logger.Warn("credential watching unavailable: %v", err)
	} else {
		defer stopWatch()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Disconnect()

	if *call != "" {
		return singleCall(ctx, client, *call, *callParams)
	}

	unsub := client.OnEvent(func(ev gateway.Event) {
		if len(ev.Payload) > 0 {
			fmt.Printf("<- %s %s\n", ev.Name, ev.Payload)
		} else {
			fmt.Printf("<- %s\n", ev.Name)
		}
	})
	defer unsub()

	<-ctx.Done()
	return nil
}

// singleCall waits for the session, issues one request, and prints the result.
func singleCall(ctx context.Context, client *gateway.Client, method, rawParams string) error {
	var params any
	if rawParams != "" {
		if err := json.Unmarshal([]byte(rawParams), &params); err != nil {
			return fmt.Errorf("parse -params: %w", err)
		}
	}

	connected := make(chan struct{}, 1)
	unsub := client.OnStatus(func(s gateway.Status) {
		if s == gateway.StatusConnected {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	})
	defer unsub()

	if client.IsConnected() {
		select {
		case connected <- struct{}{}:
		default:
		}
	}

	select {
	case <-connected:
	case <-ctx.Done():
		return ctx.Err()
	}

	payload, err := client.Send(ctx, method, params)
	if err != nil {
		return err
	}
	fmt.Println(string(payload))
	return nil
}
