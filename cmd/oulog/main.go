// Command oulog is a small driver around the log: it opens a Badger block
// store, appends payloads, prints the log and emits the manifest address.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/sirupsen/logrus"

	ouroboroslog "github.com/i5heu/ouroboros-log"
	"github.com/i5heu/ouroboros-log/internal/config"
	"github.com/i5heu/ouroboros-log/pkg/blockio"
	"github.com/i5heu/ouroboros-log/pkg/identity"
	"github.com/i5heu/ouroboros-log/pkg/logging"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	flag.Parse()

	log := logging.New(slog.LevelInfo)

	if err := run(context.Background(), log, *configPath, flag.Args()); err != nil {
		log.Error("oulog failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger, configPath string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: oulog [-config file] append <payload>... | list | manifest")
	}

	conf, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := blockio.NewBadgerStore(blockio.StoreConfig{
		Paths:            []string{conf.StorePath},
		MinimumFreeSpace: conf.MinimumFreeGB,
		Logger:           logrus.New(),
	})
	if err != nil {
		return err
	}
	defer store.Close()

	// TODO: persist the keypair under the store path so appends across
	// runs share one author
	provider := identity.NewEd25519Provider()
	ident, err := provider.CreateIdentity("oulog-cli")
	if err != nil {
		return err
	}

	l, err := ouroboroslog.NewLog(store, ident, &ouroboroslog.LogOptions{ID: conf.LogID})
	if err != nil {
		return err
	}

	switch args[0] {
	case "append":
		if len(args) < 2 {
			return fmt.Errorf("append needs at least one payload")
		}
		for _, payload := range args[1:] {
			e, err := l.Append(ctx, []byte(payload), &ouroboroslog.AppendOptions{
				PointerCount: conf.PointerCount,
			})
			if err != nil {
				return err
			}
			log.Info("appended", "hash", blockio.CIDString(e.Hash), "clock", e.Clock.String())
		}

	case "list":
		rendered, err := l.ToString(nil)
		if err != nil {
			return err
		}
		fmt.Println(rendered)

	case "manifest":
		hash, err := l.ToMultihash(ctx)
		if err != nil {
			return err
		}
		fmt.Println(blockio.CIDString(hash))

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}

	return nil
}
