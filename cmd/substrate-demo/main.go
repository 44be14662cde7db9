// Command substrate-demo runs the ping-pong exchange on a local actor
// system, optionally snapshotting a chunk store before and after to show
// the persistence path.
package main

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/metrosim/substrate/internal/chunky"
	"github.com/metrosim/substrate/internal/compact"
	"github.com/metrosim/substrate/internal/kay"
	"github.com/metrosim/substrate/internal/pingpong"
)

// demoConfig is the demo's YAML file: the runtime section plus demo knobs.
// Command-line flags override file values when set.
type demoConfig struct {
	Runtime     kay.Config `yaml:"runtime"`
	Rounds      int        `yaml:"rounds"`
	SnapshotDir string     `yaml:"snapshotDir"`
}

func loadDemoConfig(path string) (demoConfig, error) {
	cfg := demoConfig{Runtime: kay.DefaultConfig(), Rounds: 3}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.WithError(err).Fatal("demo failed")
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		rounds     int
		snapshot   string
	)

	cmd := &cobra.Command{
		Use:          "substrate-demo",
		Short:        "Run the ping-pong actor exchange",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := demoConfig{Runtime: kay.DefaultConfig(), Rounds: rounds, SnapshotDir: snapshot}
			if configPath != "" {
				loaded, err := loadDemoConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
				if cmd.Flags().Changed("rounds") {
					cfg.Rounds = rounds
				}
				if cmd.Flags().Changed("snapshot-dir") {
					cfg.SnapshotDir = snapshot
				}
			}
			return run(cfg.Runtime, cfg.Rounds, cfg.SnapshotDir)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "runtime config file (YAML)")
	cmd.Flags().IntVarP(&rounds, "rounds", "n", 3, "number of pings to send")
	cmd.Flags().StringVar(&snapshot, "snapshot-dir", "", "persist the result vector to this directory")
	return cmd
}

func run(cfg kay.Config, rounds int, snapshotDir string) error {
	log := logrus.WithField("component", "substrate-demo")

	table := kay.NewDispatchTable()
	ids, err := pingpong.RegisterDispatch(table)
	if err != nil {
		return err
	}

	sys := kay.NewSystem(cfg, table)
	sys.Start()
	defer sys.Stop()

	ponger := &pingpong.Ponger{}
	pongID, err := sys.Spawn(ids["Ponger"], ponger)
	if err != nil {
		return err
	}

	pinger := &pingpong.Pinger{}
	pingID, err := sys.Spawn(ids["Pinger"], pinger)
	if err != nil {
		return err
	}

	for i := 1; i <= rounds; i++ {
		m := pingpong.Ping{Value: int64(i), From: pingID}
		if err := sys.Send(pongID, pingpong.TagPing, compact.ImageOf(&m)); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sys.Drain(ctx); err != nil {
		return err
	}

	received := pinger.Received()
	log.WithFields(logrus.Fields{
		"sent":     rounds,
		"received": len(received),
	}).Info("exchange complete")

	if snapshotDir == "" {
		return nil
	}
	return persistResults(log, snapshotDir, received)
}

// persistResults writes the received values into a named persistent chunk
// and snapshots the store.
func persistResults(log *logrus.Entry, dir string, values []int64) error {
	store := chunky.NewStore(chunky.Config{
		MinChunkBytes: 64,
		Persistence:   &chunky.Persistence{Dir: dir},
	})

	var vec compact.Vec[int64]
	for _, v := range values {
		if err := vec.Push(store, v); err != nil {
			return err
		}
	}
	img, err := vec.Image(store)
	if err != nil {
		return err
	}

	slot, err := store.AllocatePersistentSlot("pong-values", len(img))
	if err != nil {
		return err
	}
	if err := store.SetLen(slot, len(img)); err != nil {
		return err
	}
	if err := store.Write(slot, 0, img); err != nil {
		return err
	}
	if err := store.Snapshot(); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"dir":    dir,
		"values": len(values),
	}).Info("snapshot written")
	return nil
}
