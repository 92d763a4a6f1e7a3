package httpapi

import "html/template"

const pageStyle = `body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; text-align: center; padding: 50px; background: #f0f2f5; color: #1c1e21; }
h1 { color: #075e54; }
.card { background: white; padding: 20px; border-radius: 10px; box-shadow: 0 4px 6px rgba(0,0,0,0.1); max-width: 420px; margin: 0 auto; }
a { color: #25d366; text-decoration: none; font-weight: bold; }
.status { color: #25d366; font-weight: bold; }
code { display: block; word-break: break-all; background: #f7f7f7; padding: 12px; border-radius: 8px; font-size: 12px; }`

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<html>
<head>
<title>WhatsApp Bot Dashboard</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
<style>` + pageStyle + `</style>
</head>
<body>
<div class="card">
<h1>🤖 WhatsApp Bot</h1>
<p>Status: <span class="status">Running</span></p>
<p>Connection: <span class="status">{{.State}}</span></p>
<p><a href="/qr">📱 Pair Device</a></p>
<p><a href="/health">❤️ System Health</a></p>
</div>
</body>
</html>
`))

// The raw pairing payload is shown as text; any QR encoder can render it.
var pairingTmpl = template.Must(template.New("pairing").Parse(`<html>
<head>
<title>Pair Device</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="20">
<style>` + pageStyle + `</style>
</head>
<body>
<div class="card">
<h1>Scan to Login</h1>
<code id="pairing-code">{{.Code}}</code>
<p style="color: #666; margin-top: 15px;">Issued {{.Updated}}. The page reloads when the code rotates.</p>
</div>
</body>
</html>
`))

var connectedTmpl = template.Must(template.New("connected").Parse(`<html>
<head>
<title>Pair Device</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
<style>` + pageStyle + `</style>
</head>
<body>
<div class="card">
<h1 style="color: #25d366;">✅ Connected</h1>
<p>The bot is already connected to WhatsApp ({{.State}}).</p>
<p>If you need to re-pair, delete the session and restart.</p>
</div>
</body>
</html>
`))
