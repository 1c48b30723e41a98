package canary

import "github.com/northbeacon/quotectl/pkg/metrics"

// fireAlerts appends one alerts.log line per side-effect category that
// fired on this build: a fired kill-switch, a true drift alert, a
// non-empty hint set, one line per markout regression hint, and an
// auto-promotion flip. Categories are
// independent; more than one may fire on the same build.
func (b *Builder) fireAlerts(in Input, hints []string, drift bool, payload Payload) {
	if b.sink == nil {
		return
	}
	ts := b.now()

	if in.Killswitch.FiredNow {
		b.emit(ts, "killswitch", map[string]interface{}{
			"action":  in.Killswitch.Action,
			"dry_run": in.Killswitch.DryRun,
		})
		metrics.AlertsFiredTotal.WithLabelValues("critical").Inc()
	}

	if drift {
		b.emit(ts, "drift", payload.Drift)
		metrics.AlertsFiredTotal.WithLabelValues("warning").Inc()
	}

	if len(hints) > 0 {
		b.emit(ts, "hints", hints)
		metrics.AlertsFiredTotal.WithLabelValues("warning").Inc()
	}

	for _, h := range hints {
		if h == "markout_green_worse_200ms" || h == "markout_green_worse_500ms" {
			b.emit(ts, "markout", payload.Markout)
			metrics.AlertsFiredTotal.WithLabelValues("warning").Inc()
		}
	}

	if in.Autopromote.FiredNow {
		b.emit(ts, "autopromote_flip", payload.Autopromote)
		metrics.AlertsFiredTotal.WithLabelValues("info").Inc()
	}
}

func (b *Builder) emit(ts, kind string, payload interface{}) {
	_ = b.sink.Append(AlertEntry{TS: ts, Kind: kind, Payload: payload})
}
