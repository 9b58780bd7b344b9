package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prth/procman/procman"
	"github.com/prth/procman/procman/config"
	"github.com/prth/procman/procman/exec"
	"github.com/prth/procman/procman/journal"
)

var (
	journalFile  string
	manifestFile string
)

func init() {
	configDir, err := os.UserConfigDir()
	if err == nil {
		manifestFile = filepath.Join(configDir, "procman", "procman.yaml")
		journalFile = filepath.Join(configDir, "procman", "journal.json")
	}

	flag.StringVar(&journalFile, "j", journalFile, "journal file path")
	flag.StringVar(&manifestFile, "c", manifestFile, "manifest file path")
	flag.Usage = func() {
		f := func(f string, v ...interface{}) {
			fmt.Fprintf(flag.CommandLine.Output(), f, v...)
		}

		f("Usage:\n")
		f("  %s -c <manifest> -j <journal> [|status]\n", filepath.Base(os.Args[0]))
		f("\n")
		f("Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if journalFile == "" {
		log.Fatalln("missing -j path to journal file")
	}
	if manifestFile == "" {
		log.Fatalln("missing -c path to manifest file")
	}
}

func main() {
	var err error
	switch flag.Arg(0) {
	case "status":
		err = status()
	case "":
		err = start()
	default:
		log.Fatalf("unknown subcommand %q\n", flag.Arg(0))
	}

	if err != nil {
		log.Fatalln(err)
	}
}

func start() error {
	manifest, err := config.Load(manifestFile)
	if err != nil {
		return errors.Wrap(err, "failed to load manifest")
	}

	j, err := journal.NewFileLockJournaler(journalFile)
	if err != nil {
		if errors.Is(err, journal.ErrLockedElsewhere) {
			// Non-fatal error.
			log.Println("procman is already running")
			return nil
		}

		return errors.Wrap(err, "failed to acquire journal lock")
	}
	defer j.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	journaler := journal.MultiWriter(j, journal.NewHumanWriter(os.Stderr))
	journaler.Write(&procman.EventAcquired{PID: os.Getpid()})

	watcher := procman.TryWatch(ctx, manifestFile, journaler)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-watcher.Events:
				journaler.Write(&ev)
			}
		}
	}()

	sup := procman.NewSupervisor(journaler)
	if err := sup.Launch(manifest.Commands()); err != nil {
		return err
	}

	sup.Wait(ctx)
	return nil
}

func status() error {
	run, err := journal.ReadLastRunFromFile(journalFile)
	if err != nil {
		return errors.Wrap(err, "failed to read journal")
	}

	running := "stopped"
	if exec.IsAlive(run.SupervisorPID) {
		running = "running"
	}
	fmt.Printf("procman (pid %d) %s, last started %s\n",
		run.SupervisorPID, running, run.Started.Format("2006-01-02 15:04:05"))

	names := make([]string, 0, len(run.Children))
	for name := range run.Children {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		child := run.Children[name]
		fmt.Printf("  %s\tpid %d\t%s\n", name, child.PID, describeChild(child))
	}

	return nil
}

func describeChild(c journal.ChildState) string {
	switch {
	case c.Running && exec.IsAlive(c.PID):
		return "running"
	case c.Running:
		return "gone (no exit recorded)"
	case c.Error != "":
		return "exited: " + c.Error
	case c.ExitCode == -1:
		return "terminated"
	default:
		return fmt.Sprintf("exited (code %d)", c.ExitCode)
	}
}
