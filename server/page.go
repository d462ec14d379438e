// File: server/page.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import "html/template"

type landingData struct {
	Welcome string
}

var landingPage = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>camrelay</title>
<style>body{font-family:sans-serif;margin:2em}img{max-width:100%;border:1px solid #ccc}</style>
</head>
<body>
<h1>{{.Welcome}}</h1>
<p>Viewers: <span id="count">?</span></p>
<img src="/video" alt="live stream">
<script>
function refresh() {
  fetch("/clients").then(r => r.json()).then(j => {
    document.getElementById("count").textContent = j.clientCount + " push, " + j.pullSessions + " pull";
  }).catch(() => {});
}
refresh();
setInterval(refresh, 5000);
</script>
</body>
</html>
`))
