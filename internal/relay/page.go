package relay

import "html/template"

// page is shown in the popup after the provider redirect. For a browser
// opener the script forwards the message itself, always to the
// application origin, and closes the window.
var page = template.Must(template.New("relay").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>backoffice sign-in</title>
<style nonce="{{.Nonce}}">
  *, *::before, *::after { box-sizing: border-box; margin: 0; padding: 0; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
    background: #f5f5f5;
    color: #1a1a1a;
    display: flex;
    align-items: center;
    justify-content: center;
    min-height: 100vh;
  }
  .card {
    background: #fff;
    border: 1px solid #e0e0e0;
    border-radius: 8px;
    padding: 2rem;
    width: 100%;
    max-width: 380px;
    text-align: center;
  }
  h1 { font-size: 1.15rem; font-weight: 600; margin-bottom: 0.5rem; }
  p { font-size: 0.875rem; color: #666; }
  .error { color: #c62828; }
</style>
</head>
<body>
<div class="card">
  <h1>{{.Title}}</h1>
  {{if .Detail}}<p class="{{if .Failed}}error{{end}}">{{.Detail}}</p>{{end}}
  <p>You can close this window.</p>
</div>
{{if .Message}}<script nonce="{{.Nonce}}">
  (function () {
    var msg = {{.Message}};
    if (window.opener && !window.opener.closed) {
      window.opener.postMessage(msg, {{.Origin}});
    }
    setTimeout(function () { window.close(); }, {{.CloseDelayMS}});
  })();
</script>{{end}}
</body>
</html>`))

type pageData struct {
	Nonce        string
	Title        string
	Detail       string
	Failed       bool
	Message      any
	Origin       string
	CloseDelayMS int64
}
