// Command substrate-gen generates the dispatch registration file for an
// actor package. The watch mode regenerates on every source change, which
// keeps the checked-in file current during development.
package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/metrosim/substrate/internal/dispatchgen"
)

var log = logrus.WithField("component", "substrate-gen")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.WithError(err).Fatal("generation failed")
	}
}

type genFlags struct {
	dir    string
	output string
	tags   []string
}

func (f *genFlags) destination() string {
	if f.output != "" {
		return f.output
	}
	return filepath.Join(f.dir, dispatchgen.GeneratedFileName)
}

func newRootCmd() *cobra.Command {
	flags := &genFlags{}

	root := &cobra.Command{
		Use:          "substrate-gen",
		Short:        "Generate actor dispatch registration code",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&flags.dir, "dir", "d", ".", "actor package directory")
	root.PersistentFlags().StringVarP(&flags.output, "output", "o", "", "output file (default <dir>/"+dispatchgen.GeneratedFileName+")")
	root.PersistentFlags().StringSliceVar(&flags.tags, "tags", nil, "build tags for source loading")

	root.AddCommand(newGenerateCmd(flags), newWatchCmd(flags))
	return root
}

func newGenerateCmd(flags *genFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Scan the package and write the registration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(flags)
		},
	}
}

func newWatchCmd(flags *genFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Regenerate whenever the package sources change",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runGenerate(flags); err != nil {
				log.WithError(err).Error("initial generation failed")
			}
			return watch(flags)
		},
	}
}

func runGenerate(flags *genFlags) error {
	dest := flags.destination()
	_, err := dispatchgen.Generate(dispatchgen.GenOptions{
		SourcePatterns: []string{flags.dir},
		Destination:    dest,
		BuildTags:      flags.tags,
	})
	if err != nil {
		return err
	}
	log.WithField("output", dest).Info("dispatch file written")
	return nil
}

func watch(flags *genFlags) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(flags.dir); err != nil {
		return err
	}
	log.WithField("dir", flags.dir).Info("watching for changes")

	// Editors fire bursts of events per save; coalesce them with a short
	// debounce before regenerating.
	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event, flags.destination()) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(200*time.Millisecond, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("watch error")
		case <-fire:
			if err := runGenerate(flags); err != nil {
				log.WithError(err).Error("regeneration failed")
			}
		}
	}
}

// relevant reports whether an event should trigger regeneration. The
// generated file itself is ignored so a write does not loop.
func relevant(event fsnotify.Event, dest string) bool {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Base(event.Name)
	if !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
		return false
	}
	if sameFile(event.Name, dest) {
		return false
	}
	return true
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}

func init() {
	logrus.SetOutput(os.Stderr)
}
