package main

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/fatih/color"
	"github.com/moffa90/go-otaflash/bootloader"
	"github.com/moffa90/go-otaflash/session"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

// view renders session events, as a progress bar on a terminal and as
// log lines otherwise.
type view struct {
	out io.Writer
	bar *progressbar.ProgressBar
	log *logrus.Logger

	state  bootloader.State
	logged int
}

func newView(out io.Writer, interactive bool, log *logrus.Logger) *view {
	v := &view{out: out, log: log, logged: -10}
	if interactive {
		v.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("Starting"),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionShowCount(),
		)
	}
	return v
}

func (v *view) OnProgress(ev session.ProgressEvent) {
	pct := int(math.Floor(ev.Percent))

	if v.bar != nil {
		desc := fmt.Sprintf("%-11s", ev.State)
		if ev.Speed != "" {
			desc += " " + ev.Speed
		}
		if ev.ETA > 0 {
			desc += fmt.Sprintf(" ETA %s", ev.ETA)
		}
		v.bar.Describe(desc)
		_ = v.bar.Set(pct)
		return
	}

	// one line per state change and per 10% step
	if ev.State == v.state && pct/10 == v.logged/10 {
		return
	}
	v.state = ev.State
	v.logged = pct
	v.log.WithFields(logrus.Fields{
		"percent": fmt.Sprintf("%.1f", ev.Percent),
		"bytes":   fmt.Sprintf("%d/%d", ev.BytesTransferred, ev.BytesTotal),
		"speed":   ev.Speed,
	}).Info(ev.Message)
}

func (v *view) OnResult(res session.Result) {
	if v.bar != nil {
		if res.Success {
			_ = v.bar.Finish()
		}
		fmt.Fprintln(v.out)
	}

	switch {
	case res.Success:
		color.New(color.FgHiGreen).Fprintf(v.out, "%s in %s\n", res.Message, res.Elapsed.Round(100*time.Millisecond))
	case res.Cancelled:
		color.New(color.FgYellow).Fprintln(v.out, res.Message)
	default:
		color.New(color.FgHiRed).Fprintln(v.out, res.Message)
	}
}
