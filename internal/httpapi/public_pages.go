package httpapi

import (
	"html/template"
	"net/http"
)

var publicPageT = template.Must(template.New("public").Parse(publicLayout))

type publicPageData struct {
	Title   string
	Message string
}

func renderPublicPage(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = publicPageT.Execute(w, publicPageData{
		Title:   title,
		Message: message,
	})
}

const publicLayout = `<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width,initial-scale=1" />
    <meta name="robots" content="noindex" />
    <title>{{.Title}}</title>
    <style>
      :root{
        --bg:#0b0b0b;
        --ink:#f5f5f5;
        --muted:#a3a3a3;
        --line:rgba(245,245,245,0.15);
        color-scheme:dark;
      }
      *{box-sizing:border-box}
      body{
        margin:0;
        font-family:"Helvetica Neue",Arial,sans-serif;
        color:var(--ink);
        background:var(--bg);
        min-height:100vh;
        display:flex;
        align-items:center;
        justify-content:center;
      }
      main{
        max-width:520px;
        padding:40px 32px;
        border:1px solid var(--line);
        text-align:center;
      }
      h1{font-size:22px;letter-spacing:0.08em;text-transform:uppercase;margin:0 0 16px}
      p{color:var(--muted);line-height:1.6;margin:0}
    </style>
  </head>
  <body>
    <main>
      <h1>{{.Title}}</h1>
      <p>{{.Message}}</p>
    </main>
  </body>
</html>
`
