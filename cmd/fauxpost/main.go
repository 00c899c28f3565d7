// Command fauxpost scans pages and the live feed for fake posts and handles
// maintenance tasks.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chromedp/chromedp"
	pkgbrowser "github.com/pkg/browser"

	"github.com/ibeckermayer/fauxpost/internal/app"
	"github.com/ibeckermayer/fauxpost/internal/browser"
	"github.com/ibeckermayer/fauxpost/internal/config"
	"github.com/ibeckermayer/fauxpost/internal/logger"
	"github.com/ibeckermayer/fauxpost/internal/report"
	"github.com/ibeckermayer/fauxpost/internal/scanner"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "scan":
		err = runScan(ctx, args)
	case "watch":
		err = runWatch(ctx, args)
	case "config":
		err = runConfig(ctx, args)
	case "health":
		err = withApp(func(a *app.App) error {
			status, err := a.Health(ctx)
			if err != nil {
				return err
			}
			fmt.Println(status)
			return nil
		})
	case "flush":
		err = withApp(func(a *app.App) error {
			rep, err := a.FlushFeedback(ctx)
			fmt.Printf("delivered %d, still queued %d\n", rep.Delivered, rep.Failed)
			return err
		})
	case "purge":
		err = withApp(func(a *app.App) error {
			n, err := a.PurgeCache(ctx)
			fmt.Printf("purged %d expired entries\n", n)
			return err
		})
	case "login":
		err = withApp(func(a *app.App) error { return a.Auth().Login(ctx) })
	case "logout":
		err = withApp(func(a *app.App) error { return a.Auth().Logout() })
	case "open":
		if len(args) < 1 {
			fmt.Println("Usage: fauxpost open <config|cache>")
			os.Exit(1)
		}
		err = runOpen(args[0])
	case "bot-test":
		err = runBotTest(ctx)
	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		logger.Get().Error().Err(err).Str("cmd", cmd).Msg("command failed")
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: fauxpost <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  scan <file.html>     Scan every post in a saved page (--open, --json, --bridge URL)")
	fmt.Println("  watch                Mirror and scan the live LinkedIn feed until interrupted")
	fmt.Println("  config get           Print the classifier settings")
	fmt.Println("  config set k=v ...   Change classifier settings (apiBaseUrl, threshold, apiKey, provider, model)")
	fmt.Println("  health               Check the classifier endpoint")
	fmt.Println("  flush                Re-send feedback queued while the classifier was unreachable")
	fmt.Println("  purge                Delete expired cache entries")
	fmt.Println("  login / logout       Capture or clear the LinkedIn session")
	fmt.Println("  open config          Open config file in default editor")
	fmt.Println("  open cache           Open cache directory in file explorer")
	fmt.Println("  bot-test             Open bot.sannysoft.com to audit browser fingerprint")
}

// loadSettings reads the settings file, writing defaults on first run
func loadSettings() (*config.Settings, string, error) {
	path, err := config.ConfigPath()
	if err != nil {
		return nil, "", err
	}
	settings, err := config.LoadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		settings = config.Default()
		if err := settings.SaveFile(path); err != nil {
			logger.Get().Warn().Err(err).Msg("could not save default config")
		}
	} else if err != nil {
		return nil, "", fmt.Errorf("failed to load %s: %w", path, err)
	}
	logger.Init(logger.Options{Level: settings.Log.Level, Format: settings.Log.Format})
	return settings, path, nil
}

func withApp(fn func(*app.App) error, opts ...app.Option) error {
	settings, path, err := loadSettings()
	if err != nil {
		return err
	}
	a, err := app.New(settings, path, opts...)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func runScan(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("scan", flag.ExitOnError)
	open := fset.Bool("open", false, "open the report in the browser")
	asJSON := fset.Bool("json", false, "print rows as JSON instead of a summary")
	bridgeURL := fset.String("bridge", "", "send requests to a running daemon instead of an in-process broker")
	fset.Parse(args)
	if fset.NArg() != 1 {
		return errors.New("usage: fauxpost scan [--open] [--json] [--bridge URL] <file.html>")
	}

	f, err := os.Open(fset.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	var opts []app.Option
	if *bridgeURL != "" {
		opts = append(opts, app.WithBridge(*bridgeURL))
	}
	return withApp(func(a *app.App) error {
		views, err := a.ScanDocument(ctx, f)
		if err != nil {
			return err
		}
		if err := printViews(views, *asJSON); err != nil {
			return err
		}
		path, err := a.Report(views, fset.Arg(0), *open)
		if err != nil && !errors.Is(err, report.ErrNothingScored) {
			return err
		}
		if path != "" {
			fmt.Println("report:", path)
		}
		return nil
	}, opts...)
}

func runWatch(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("watch", flag.ExitOnError)
	open := fset.Bool("open", false, "open the report when the watch ends")
	bridgeURL := fset.String("bridge", "", "send requests to a running daemon instead of an in-process broker")
	fset.Parse(args)

	var opts []app.Option
	if *bridgeURL != "" {
		opts = append(opts, app.WithBridge(*bridgeURL))
	}
	return withApp(func(a *app.App) error {
		views, err := a.Watch(ctx)
		if err != nil {
			return err
		}
		if err := printViews(views, false); err != nil {
			return err
		}
		path, err := a.Report(views, "LinkedIn feed", *open)
		if err != nil && !errors.Is(err, report.ErrNothingScored) {
			return err
		}
		if path != "" {
			fmt.Println("report:", path)
		}
		return nil
	}, opts...)
}

func printViews(views []scanner.RowView, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}
	for _, v := range views {
		key := v.PostKey
		if key == "" {
			key = v.ID
		}
		line := fmt.Sprintf("%-40s %-12s", key, v.Chip)
		if v.FromCache {
			line += " (cached)"
		}
		if v.Err != "" {
			line += " " + v.Err
		}
		fmt.Println(line)
	}
	return nil
}

func runConfig(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: fauxpost config get | set key=value ...")
	}
	switch args[0] {
	case "get":
		return withApp(func(a *app.App) error {
			cfg, err := a.GetConfig(ctx)
			if err != nil {
				return err
			}
			if cfg.Credential != "" {
				cfg.Credential = strings.Repeat("*", 8)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		})
	case "set":
		var patch config.Patch
		for _, kv := range args[1:] {
			p, err := config.ParseAssignment(kv)
			if err != nil {
				return err
			}
			patch = patch.Merge(p)
		}
		return withApp(func(a *app.App) error {
			cfg, err := a.SetConfig(ctx, patch)
			if err != nil {
				return err
			}
			fmt.Printf("saved: endpoint=%s threshold=%.2f provider=%s\n", cfg.EndpointBaseURL, cfg.Threshold, cfg.Provider)
			return nil
		})
	default:
		return fmt.Errorf("unknown config action %q", args[0])
	}
}

func runBotTest(ctx context.Context) error {
	logger.Get().Info().Msg("opening bot.sannysoft.com with the feed's browser options")

	browserCtx, cancel := browser.NewContext(ctx, false) // non-headless so you can see it
	defer cancel()

	go func() {
		if err := chromedp.Run(browserCtx, chromedp.Navigate("https://bot.sannysoft.com")); err != nil {
			logger.Get().Error().Err(err).Msg("failed to navigate")
		}
	}()

	fmt.Println("Press Enter to end program...")
	fmt.Scanln()
	return nil
}

func runOpen(target string) error {
	var path string
	var err error

	switch target {
	case "config":
		path, err = config.ConfigPath()
	case "cache":
		path, err = config.CacheDir()
	default:
		return fmt.Errorf("unknown target: %s", target)
	}
	if err != nil {
		return fmt.Errorf("failed to get path: %w", err)
	}

	return pkgbrowser.OpenFile(path)
}
