// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pixie-boot (re)starts the processes of the Pixie-16 DAQ chain.
//
// Each process writes its output to a log file under $PIXIELOGDIR.
// Spill files written under the -data directory are watched and an alert
// mail is sent when one of them stops growing.
package main // import "github.com/go-lpc/pixie/cmd/pixie-boot"

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/sbinet/pmon"
	"golang.org/x/sync/errgroup"
)

var (
	dir = os.Getenv("PIXIELOGDIR")

	doCmds  = flag.String("cmds", "pixie-evb", "comma-separated list of commands to start")
	doMon   = flag.Bool("pmon", false, "enable pmon monitoring")
	doFreq  = flag.Duration("freq", 1*time.Second, "pmon frequency")
	doData  = flag.String("data", "", "directory of spill files to watch (empty: disabled)")
	doWatch = flag.Duration("watch", 5*time.Minute, "spill files watch period")

	stop = make(chan os.Signal, 1)
)

func main() {
	flag.Parse()

	log.SetPrefix("pixie-boot: ")
	log.SetFlags(0)

	var cmds []*exec.Cmd
	for _, name := range strings.Split(*doCmds, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cmds = append(cmds, exec.Command(name))
	}
	if len(cmds) == 0 {
		log.Fatalf("no command to start")
	}

	var w *watcher
	if *doData != "" {
		w = newWatcher(*doData, *doWatch, mailAlert)
	}

	err := run(*doMon, *doFreq, cmds, dir, w, stop)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(doMon bool, freq time.Duration, cmds []*exec.Cmd, dir string, w *watcher, stop chan os.Signal) error {
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	for _, cmd := range cmds {
		name := filepath.Base(cmd.Path)
		kill := exec.Command("killall", name)
		kill.Stderr = os.Stderr
		kill.Stdout = os.Stdout
		err := kill.Run()
		if err != nil {
			log.Printf("could not kill %q: %+v", name, err)
		}
	}

	if dir == "" {
		dir = "/var/log/pixie"
	}

	var (
		grp  errgroup.Group
		kill = make(chan int)
		done = make(chan int)
	)
	for i := range cmds {
		cmd := cmds[i]
		grp.Go(func() error {
			return start(cmd, dir, kill, doMon, freq)
		})
	}

	defer close(done)
	if w != nil {
		go w.run(done)
	}

	go func() {
		select {
		case <-stop:
			close(kill)
		case <-done:
		}
	}()

	err := grp.Wait()
	if err != nil {
		return fmt.Errorf("could not boot DAQ: %w", err)
	}
	return nil
}

func start(cmd *exec.Cmd, dir string, kill chan int, doMon bool, freq time.Duration) error {
	name := filepath.Base(cmd.Path)
	out, err := os.Create(filepath.Join(dir, name+".log"))
	if err != nil {
		return fmt.Errorf("could not create output log file for %q: %w", name, err)
	}
	defer out.Close()

	cmd.Stdout = out
	cmd.Stderr = out

	log.Printf("starting %q...", name)
	err = cmd.Start()
	if err != nil {
		return fmt.Errorf("could not start %q: %w", name, err)
	}

	if doMon {
		p, err := pmon.Monitor(cmd.Process.Pid)
		if err != nil {
			return fmt.Errorf("could not start monitoring %q (pid=%d): %w", name, cmd.Process.Pid, err)
		}
		f, err := os.Create(filepath.Join(dir, name+"-pmon.log"))
		if err != nil {
			return fmt.Errorf("could not create pmon log file for command %q: %w", name, err)
		}
		defer f.Close()
		p.W = f
		p.Freq = freq

		go func() {
			log.Printf("run pmon %q...", name)
			err := p.Run()
			if err != nil {
				log.Printf("could not start monitoring %q: %+v", name, err)
			}
		}()

		defer func() {
			err := p.Kill()
			if err != nil {
				log.Printf("could not stop monitoring %q: %+v", name, err)
			}
		}()
	}

	errch := make(chan error, 1)
	go func() {
		errch <- cmd.Wait()
	}()

	select {
	case <-kill:
		err = cmd.Process.Kill()
		if err != nil {
			return fmt.Errorf("could not kill %q: %+v", name, err)
		}
		<-errch
	case err = <-errch:
		if err != nil {
			return fmt.Errorf("could not run %q: %w", name, err)
		}
	}

	return nil
}
