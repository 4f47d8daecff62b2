package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/raga-mitra/raga_mitra/internal/apiclient"
	"github.com/raga-mitra/raga_mitra/internal/autherr"
	"github.com/raga-mitra/raga_mitra/internal/config"
	"github.com/raga-mitra/raga_mitra/internal/flow"
	"github.com/raga-mitra/raga_mitra/internal/logging"
	"github.com/raga-mitra/raga_mitra/internal/provider"
	"github.com/raga-mitra/raga_mitra/internal/session"
)

type app struct {
	cfg     config.Client
	logger  *slog.Logger
	api     *apiclient.Client
	machine *flow.Machine
	in      *bufio.Reader
	out     io.Writer
}

func newApp(out io.Writer) (*app, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	logger := logging.NewText(os.Stderr, cfg.LogLevel)

	// Deadlines come from the flow's per-attempt contexts, not from the client.
	httpClient := &http.Client{}
	api := apiclient.New(cfg.APIURL, httpClient)

	var primary provider.IdentityProvider
	if cfg.ToolkitKey != "" {
		primary = provider.NewIdentityToolkit(cfg.ToolkitURL, cfg.ToolkitKey, cfg.RecaptchaToken, httpClient)
	} else {
		logger.Debug("no identity toolkit key, codes are delivered by the auth API")
	}
	idp := provider.NewFallback(primary, apiclient.NewCodeDelivery(api), cfg.ProviderTimeout, logger)
	boot := session.NewBootstrap(session.NewFileStore(cfg.SessionPath), logger)

	m := flow.New(idp, apiclient.NewSessionBackend(api), boot,
		flow.WithLogger(logger),
		flow.WithProviderTimeout(cfg.ProviderTimeout),
		flow.WithResendInterval(cfg.ResendInterval),
		flow.WithLockout(cfg.LockoutThreshold, cfg.LockoutDuration),
		flow.WithCodeLength(cfg.CodeLength),
		flow.WithPINLength(cfg.PINLength),
		flow.WithDefaultCountryCode(cfg.DefaultCountryCode),
	)
	return &app{cfg: cfg, logger: logger, api: api, machine: m, in: bufio.NewReader(os.Stdin), out: out}, nil
}

func (a *app) prompt(label string) (string, error) {
	fmt.Fprint(a.out, label)
	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// secret reads without echo when stdin is a terminal.
func (a *app) secret(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return a.prompt(label)
	}
	fmt.Fprint(a.out, label)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(a.out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func describe(err error) string {
	if until, ok := autherr.LockedUntil(err); ok {
		wait := time.Until(until).Round(time.Second)
		return fmt.Sprintf("too many wrong PINs, try again in %s or run `authcli reset`", wait)
	}
	if n, ok := autherr.Remaining(err); ok {
		return fmt.Sprintf("wrong PIN, %d attempts left", n)
	}
	return err.Error()
}
