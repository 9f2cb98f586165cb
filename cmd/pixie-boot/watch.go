// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"crypto/tls"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	mail "gopkg.in/gomail.v2"
)

const maxAlerts = 5

// watcher checks that the spill files of a directory keep growing.
type watcher struct {
	dir    string
	freq   time.Duration
	alerts map[string]int
	notify func(fname string, size int64, freq time.Duration)
}

func newWatcher(dir string, freq time.Duration, notify func(string, int64, time.Duration)) *watcher {
	return &watcher{
		dir:    dir,
		freq:   freq,
		alerts: make(map[string]int),
		notify: notify,
	}
}

func (w *watcher) run(quit chan int) {
	var (
		tick  = time.NewTicker(w.freq)
		table = make(map[string]int64)
	)
	defer tick.Stop()

	for {
		select {
		case <-quit:
			return
		case <-tick.C:
			cur, err := w.list()
			if err != nil {
				log.Printf("could not list files: %+v", err)
				continue
			}
			w.compare(table, cur)
			table = cur
		}
	}
}

func (w *watcher) list() (map[string]int64, error) {
	table := make(map[string]int64)
	glob := filepath.Join(w.dir, "run_*.dat")
	files, err := filepath.Glob(glob)
	if err != nil {
		return nil, fmt.Errorf("could not glob %q: %w", glob, err)
	}
	for _, fname := range files {
		fi, err := os.Stat(fname)
		if err != nil {
			return nil, fmt.Errorf("could not stat %q: %w", fname, err)
		}
		table[fname] = fi.Size()
	}
	return table, nil
}

func (w *watcher) compare(ref, chk map[string]int64) {
	for fname, size := range chk {
		prev, ok := ref[fname]
		if !ok {
			// new file.
			continue
		}
		if prev != size {
			delete(w.alerts, fname)
			continue
		}
		log.Printf("file %q didn't change in the last %v (size=%d bytes)", fname, w.freq, size)
		w.alerts[fname]++
		if w.alerts[fname] < maxAlerts {
			w.notify(fname, size, w.freq)
		}
	}
}

var (
	alertMailUsr  = os.Getenv("MAIL_USERNAME")
	alertMailPwd  = os.Getenv("MAIL_PASSWORD")
	alertMailSrv  = os.Getenv("MAIL_SERVER")
	alertMailPort = atoi(os.Getenv("MAIL_PORT"))
	alertMailTgts = splitTargets(os.Getenv("MAIL_TGTS"))
)

func mailAlert(fname string, size int64, freq time.Duration) {
	if alertMailUsr == "" || alertMailPwd == "" ||
		alertMailSrv == "" || alertMailPort == 0 ||
		len(alertMailTgts) == 0 {
		log.Printf("could not send mail alert: missing credentials")
		return
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", alertMailUsr)
	msg.SetHeader("Bcc", alertMailTgts...)
	msg.SetHeader("Subject", fmt.Sprintf("[pixie-boot] spill file alert: %q", fname))
	msg.SetBody("text/plain", fmt.Sprintf("file: %q\nsize: %d bytes\nfreq: %v",
		fname, size, freq,
	))

	dial := mail.NewDialer(alertMailSrv, alertMailPort, alertMailUsr, alertMailPwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	err := dial.DialAndSend(msg)
	if err != nil {
		log.Printf("could not send mail alert: %+v", err)
	}
}

func splitTargets(s string) []string {
	var tgts []string
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			tgts = append(tgts, v)
		}
	}
	return tgts
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
