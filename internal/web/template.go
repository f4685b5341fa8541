package web

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/sweeney/stove-controller/internal/status"
)

// formatUptime renders d as "3d 4h 5m 6s", dropping leading zero units.
func formatUptime(d time.Duration) string {
	d = d.Truncate(time.Second)
	parts := []struct {
		n    int
		unit string
	}{
		{int(d / (24 * time.Hour)), "d"},
		{int(d/time.Hour) % 24, "h"},
		{int(d/time.Minute) % 60, "m"},
		{int(d/time.Second) % 60, "s"},
	}
	var b strings.Builder
	for i, p := range parts {
		if b.Len() == 0 && p.n == 0 && i < len(parts)-1 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d%s", p.n, p.unit)
	}
	return b.String()
}

var pageFuncs = template.FuncMap{
	"uptime": formatUptime,
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"onOff": func(on bool) string {
		if on {
			return "ON"
		}
		return "OFF"
	},
	"lamp": func(on bool) string {
		if on {
			return "lit"
		}
		return "dim"
	},
	"seconds": func(d time.Duration) string {
		return fmt.Sprintf("%.1fs", d.Seconds())
	},
	"percent": func(r float64) string {
		return fmt.Sprintf("%.1f%%", r*100)
	},
	"stamp": func(t time.Time) string {
		return t.UTC().Format(time.RFC3339)
	},
}

var pageTmpl = template.Must(template.New("page").Funcs(pageFuncs).Parse(pageHTML))

const pageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Stove Controller</title>
<style>
:root { --ink: #222; --muted: #999; --fire: #d35400; --ok: #1e8449; --bad: #c0392b; --warn: #b9770e; }
body { font: 14px/1.4 ui-monospace, Menlo, Consolas, monospace; color: var(--ink); max-width: 640px; margin: 1.5em auto; padding: 0 1em; }
header { display: flex; align-items: center; gap: 8px; border-bottom: 2px solid var(--fire); }
header h1 { font-size: 1.3em; margin: 0.4em 0; }
section h2 { font-size: 1em; text-transform: uppercase; letter-spacing: 0.05em; color: var(--fire); margin: 1.4em 0 0.2em; }
dl { display: grid; grid-template-columns: 11em 1fr; margin: 0; }
dt, dd { margin: 0; padding: 3px 0; border-bottom: 1px dotted #ccc; }
.lit { color: var(--fire); font-weight: bold; }
.dim { color: var(--muted); }
.good { color: var(--ok); }
.bad { color: var(--bad); font-weight: bold; }
.unknown { color: var(--warn); }
.controls { margin: 0.8em 0; }
.controls form { display: inline; }
.controls button { font: inherit; padding: 3px 14px; margin-right: 4px; }
#live { width: 9px; height: 9px; border-radius: 50%; background: var(--warn); }
#live.up { background: var(--ok); }
#live.down { background: var(--bad); }
footer { margin-top: 1.5em; color: var(--muted); }
</style>
</head>
<body>
<header>
<h1>Stove Controller</h1>
{{if .Config.WSBroker}}<span id="live" title="connecting"></span>{{end}}
</header>

<section>
<h2>Operation</h2>
<dl>
<dt>State</dt><dd id="state" class="{{if .Ready}}lit{{else}}unknown{{end}}">{{stateOrUnknown (printf "%s" .Controller.State)}}</dd>
<dt>Phase</dt><dd id="phase">{{printf "%s" .Controller.Phase}}</dd>
{{with .Controller.Purge}}<dt>Purge</dt><dd>{{printf "%s" .}}</dd>{{end}}
<dt>Reason</dt><dd id="reason">{{.Controller.Reason}}</dd>
<dt>Cycle</dt><dd>{{.Controller.CycleID}}</dd>
</dl>
{{if .Buttons}}
<div class="controls">
<form method="post" action="/command/start"><button>Start</button></form>
<form method="post" action="/command/stop"><button>Stop</button></form>
<form method="post" action="/command/force" onsubmit="return confirm('Run without proving ignition?')"><button>Force</button></form>
</div>
{{end}}
</section>

<section>
<h2>Relays</h2>
<dl>
<dt>Exhaust fan</dt><dd class="{{lamp .Controller.Outputs.Exhaust}}">{{onOff .Controller.Outputs.Exhaust}}</dd>
<dt>Igniter</dt><dd class="{{lamp .Controller.Outputs.Igniter}}">{{onOff .Controller.Outputs.Igniter}}</dd>
<dt>Auger</dt><dd class="{{lamp .Controller.Outputs.Auger}}">{{onOff .Controller.Outputs.Auger}}</dd>
<dt>Convection fan</dt><dd class="{{lamp .Controller.Outputs.Convection}}">{{onOff .Controller.Outputs.Convection}}</dd>
</dl>
</section>

<section>
<h2>Feed</h2>
<dl>
<dt>Demand</dt><dd id="ratio">{{percent .Controller.Feed.Ratio}}</dd>
<dt>Auger on / off</dt><dd>{{seconds .Controller.Feed.OnTime}} / {{seconds .Controller.Feed.OffTime}}</dd>
</dl>
</section>

<section>
<h2>Room</h2>
{{with .Controller.Thermal}}
<dl>
<dt>Temperature</dt><dd>{{if .HasTemperature}}{{printf "%.1f" .RoomTemperature}}&deg;C{{else}}<span class="unknown">unknown</span>{{end}}</dd>
<dt>Call for heat</dt><dd>{{if .HasCall}}{{onOff .CallForHeat}}{{else}}<span class="unknown">unknown</span>{{end}}</dd>
<dt>Schedule</dt><dd>{{if .Daytime}}day{{else}}night{{end}}, cold below {{printf "%.1f" .Cold}}, warm above {{printf "%.1f" .Warm}}</dd>
</dl>
{{end}}
</section>

<section>
<h2>Safety</h2>
<dl>
<dt>Vacuum</dt><dd>{{if .Controller.VacuumUnstable}}<span class="bad">lost</span>{{else}}<span class="good">ok</span>{{end}}</dd>
<dt>Flame proof</dt><dd>{{if .Controller.FlameUnstable}}<span class="bad">lost</span>{{else}}<span class="good">ok</span>{{end}}</dd>
{{if .LastTrip}}<dt>Last trip</dt><dd class="bad">{{.LastTrip}} ({{stamp .LastTripAt}})</dd>{{end}}
<dt>Ignitions</dt><dd>{{.Counts.Ignitions}}</dd>
<dt>Purges</dt><dd>{{.Counts.Purges}}</dd>
<dt>Trips</dt><dd>{{.Counts.Trips}}</dd>
<dt>Relay faults</dt><dd>{{.Counts.Faults}}</dd>
</dl>
</section>

<section>
<h2>Daemon</h2>
<dl>
<dt>Broker</dt><dd>{{.Config.Broker}} <span class="{{if .MQTTConnected}}good{{else}}bad{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</span></dd>
{{with .Network}}<dt>Network</dt><dd>{{.Status}}, {{.Type}}{{if .SSID}} {{.SSID}}{{end}}, {{.IP}}</dd>{{end}}
<dt>Mode</dt><dd>{{.Config.Mode}} via {{.Config.Backend}}</dd>
<dt>Heartbeat</dt><dd>{{.Config.HeartbeatMs}}ms</dd>
<dt>Listening</dt><dd>{{.Config.HTTPPort}}</dd>
<dt>Up</dt><dd>{{uptime .Uptime}} since {{stamp .StartTime}}</dd>
</dl>
</section>

<footer><a href="/index.json">index.json</a> &middot; <a href="/metrics">metrics</a></footer>
{{if and .Config.WSBroker .EventsTopic}}
<script src="/mqtt.min.js"></script>
<script>
(function () {
  var live = document.getElementById("live");
  var fields = {
    state: document.getElementById("state"),
    phase: document.getElementById("phase"),
    reason: document.getElementById("reason"),
    ratio: document.getElementById("ratio")
  };
  function mark(cls, title) { live.className = cls; live.title = title; }

  var client = mqtt.connect("{{.Config.WSBroker}}", { reconnectPeriod: 5000 });
  client.on("connect", function () { mark("up", "live"); client.subscribe("{{.EventsTopic}}"); });
  client.on("reconnect", function () { mark("", "reconnecting"); });
  client.on("offline", function () { mark("down", "offline"); });
  client.on("error", function () { mark("down", "error"); });
  client.on("message", function (_, payload) {
    var ev;
    try { ev = JSON.parse(payload.toString()).stove; } catch (e) { return; }
    if (!ev) { return; }
    fields.state.textContent = ev.state;
    fields.phase.textContent = ev.phase || "";
    if (ev.reason) { fields.reason.textContent = ev.reason; }
    fields.ratio.textContent = (ev.feed.ratio * 100).toFixed(1) + "%";
  });
})();
</script>
{{end}}
</body>
</html>
`

type pageData struct {
	status.Snapshot
	Uptime      time.Duration
	EventsTopic string
	Buttons     bool
}

func renderHTML(w io.Writer, snap status.Snapshot, eventsTopic string, buttons bool) error {
	return pageTmpl.Execute(w, pageData{
		Snapshot:    snap,
		Uptime:      snap.Uptime(),
		EventsTopic: eventsTopic,
		Buttons:     buttons,
	})
}
