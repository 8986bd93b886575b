package api

import (
	"html/template"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pdfmaster/internal/session"
	"pdfmaster/internal/tool"
	"pdfmaster/internal/workflow"
)

var uiTemplates = template.Must(template.New("layout").Parse(`{{define "head"}}
<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1"/>
  {{if .Refresh}}<meta http-equiv="refresh" content="1"/>{{end}}
  <title>PDF Master{{if .Tool}} · {{.Tool.Title}}{{end}}</title>
  <style>
    body{font-family:system-ui,-apple-system,Segoe UI,Roboto,Ubuntu,Cantarell,Noto Sans,sans-serif;max-width:880px;margin:32px auto;padding:0 16px;color:#0b0b0b;background:#fafafa}
    header{margin-bottom:24px}
    h1{font-size:22px;margin:0 0 8px}
    a{color:#0b63e5;text-decoration:none}
    a:hover{text-decoration:underline}
    .card{background:#fff;border:1px solid #e9e9e9;border-radius:10px;padding:16px;margin:12px 0}
    .row{display:flex;gap:12px;flex-wrap:wrap;align-items:center}
    .btn{display:inline-block;background:#0b63e5;color:#fff;border:none;padding:10px 14px;border-radius:8px;cursor:pointer}
    .btn.secondary{background:#444}
    .btn[disabled]{background:#9bb8e8;cursor:not-allowed}
    input[type=text],input[type=password],select{padding:9px 10px;border:1px solid #dcdcdc;border-radius:8px}
    .muted{color:#666}
    .mono{font-family:ui-monospace,SFMono-Regular,Menlo,Monaco,Consolas,monospace}
    .grid{display:grid;grid-template-columns:1fr 1fr;gap:12px}
    .list{margin:0;padding-left:18px}
    .status{display:inline-block;padding:4px 8px;border-radius:6px;background:#efefef;font-size:12px}
    progress{width:100%}
    footer{margin-top:24px;color:#666;font-size:12px}
  </style>
</head>
<body>
  <header>
    <h1><a href="/">PDF Master</a></h1>
    <div class="muted">Process PDFs without JavaScript</div>
  </header>
  {{if .Error}}
  <div class="card" style="border-color:#f2b8b5;background:#fff6f6">
    <strong style="color:#b3261e">Error:</strong> <span class="muted">{{.Error}}</span>
  </div>
  {{end}}
{{end}}

{{define "foot"}}
  <footer>
    <div>API base: <span class="mono">/api/v1</span></div>
  </footer>
</body>
</html>
{{end}}

{{define "home"}}
  {{template "head" .}}
  <div class="grid">
  {{range .Catalog}}
    <div class="card">
      <h2><a href="/tools/{{.Key}}">{{.Title}}</a></h2>
      <div class="muted">{{.Description}}</div>
    </div>
  {{end}}
  </div>
  {{template "foot" .}}
{{end}}

{{define "tool"}}
  {{template "head" .}}
  {{$base := printf "/tools/%s/%s" .Tool.Key .Session.ID}}
  <div class="card">
    <h2>{{.Tool.Title}}</h2>
    <div class="muted">{{.Tool.Description}}</div>
    <div>Status: <span class="status">{{.Session.State}}</span></div>
    {{if .Refresh}}<progress max="100" value="{{.Session.Progress}}">{{.Session.Progress}}%</progress>{{end}}
  </div>

  <div class="card">
    <h3>Files</h3>
    {{if .Session.Files}}
      <ul class="list">
      {{range $i, $f := .Session.Files}}
        <li class="row">
          <span class="mono">{{$f.Name}}</span>
          <span class="muted">{{$f.Size}} bytes</span>
          {{if $.Editable}}
          <form method="post" action="{{$base}}/files/{{$i}}/remove"><button class="btn secondary" type="submit">Remove</button></form>
          {{end}}
        </li>
      {{end}}
      </ul>
    {{else}}
      <div class="muted">No files selected</div>
    {{end}}
    {{if .Editable}}
    <form method="post" action="{{$base}}/files" enctype="multipart/form-data" style="margin-top:12px">
      <div class="row">
        <input type="file" name="files" accept="{{.Tool.Accept}}" {{if .Tool.Multiple}}multiple{{end}} required/>
        <input type="hidden" name="source" value="picker"/>
        <button class="btn" type="submit">Select</button>
      </div>
      <div class="muted">Up to {{.MaxUploadMB}} MB.</div>
    </form>
    {{end}}
  </div>

  {{if .Session.CanSubmit}}
  <div class="card">
    <h3>Options</h3>
    <form method="post" action="{{$base}}/submit">
      {{if eq .Tool.Key "split"}}
      <label>Ranges <input type="text" name="ranges" value="{{index .Defaults "ranges"}}"/></label>
      {{else if eq .Tool.Key "compress"}}
      <label>Level <select name="level">
        {{range .Levels}}<option value="{{.}}" {{if eq (print .) (index $.Defaults "level")}}selected{{end}}>{{.}}</option>{{end}}
      </select></label>
      {{else if eq .Tool.Key "unlock"}}
      <label>Password <input type="password" name="password"/></label>
      {{else if eq .Tool.Key "watermark"}}
      <label>Text <input type="text" name="text" value="{{index .Defaults "text"}}"/></label>
      <label>Position <select name="position">
        {{range .Positions}}<option value="{{.}}" {{if eq (print .) (index $.Defaults "position")}}selected{{end}}>{{.}}</option>{{end}}
      </select></label>
      {{end}}
      <div style="margin-top:12px"><button class="btn" type="submit">Process</button></div>
    </form>
  </div>
  {{end}}

  <div class="card">
    <div class="row">
      {{if eq .Session.State "processing"}}
      <form method="post" action="{{$base}}/cancel"><button class="btn secondary" type="submit">Cancel</button></form>
      {{else}}
      <form method="post" action="{{$base}}/reset"><button class="btn secondary" type="submit">Start over</button></form>
      {{end}}
      {{if .Session.ResultURL}}
      <a class="btn" href="{{.Session.ResultURL}}">Download {{.Session.SuggestedName}}</a>
      {{end}}
      <a href="{{$base}}">Refresh</a>
    </div>
  </div>
  {{template "foot" .}}
{{end}}
`))

// RegisterUIRoutes registers minimal HTML UI without JS
func (a *API) RegisterUIRoutes(router *gin.Engine) {
	router.SetHTMLTemplate(uiTemplates)
	router.GET("/", a.UIHome)
	router.GET("/tools/:key", a.UIOpenTool)
	router.GET("/tools/:key/:id", a.UIToolPage)
	router.POST("/tools/:key/:id/files", a.UISelectFiles)
	router.POST("/tools/:key/:id/files/:index/remove", a.UIRemoveFile)
	router.POST("/tools/:key/:id/submit", a.UISubmit)
	router.POST("/tools/:key/:id/cancel", a.UICancel)
	router.POST("/tools/:key/:id/reset", a.UIReset)
}

// UIHome renders the tool catalog
func (a *API) UIHome(c *gin.Context) { a.renderHome(c, http.StatusOK, "") }

// UIOpenTool creates a session for the tool and redirects to its page
func (a *API) UIOpenTool(c *gin.Context) {
	s, err := a.sessions.Create(c.Param("key"))
	if err != nil {
		a.renderHome(c, statusFor(err), err.Error())
		return
	}
	c.Redirect(http.StatusFound, toolPath(s))
}

// UIToolPage renders a session page
func (a *API) UIToolPage(c *gin.Context) {
	s, ok := a.uiLookup(c)
	if !ok {
		return
	}
	a.renderTool(c, s, s.Snapshot(), http.StatusOK, "")
}

// UISelectFiles replaces the selection from the upload form
func (a *API) UISelectFiles(c *gin.Context) {
	s, ok := a.uiLookup(c)
	if !ok {
		return
	}
	source, files, err := a.readUpload(c)
	if err != nil {
		a.renderTool(c, s, s.Snapshot(), http.StatusBadRequest, err.Error())
		return
	}
	a.afterAction(c, s)(s.SelectFiles(files, source))
}

// UIRemoveFile drops one file and redirects back
func (a *API) UIRemoveFile(c *gin.Context) {
	s, ok := a.uiLookup(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		a.renderTool(c, s, s.Snapshot(), http.StatusBadRequest, "invalid file index")
		return
	}
	a.afterAction(c, s)(s.RemoveFile(index))
}

// UISubmit starts processing with the posted options
func (a *API) UISubmit(c *gin.Context) {
	s, ok := a.uiLookup(c)
	if !ok {
		return
	}
	values := map[string]string{}
	for _, name := range []string{"ranges", "level", "password", "text", "position"} {
		if v, ok := c.GetPostForm(name); ok {
			values[name] = v
		}
	}
	opts, err := tool.ParseOptions(s.Descriptor().Key, values)
	if err != nil {
		a.renderTool(c, s, s.Snapshot(), statusFor(err), err.Error())
		return
	}
	a.afterAction(c, s)(a.sessions.Submit(s.ID, opts))
}

// UICancel aborts the in-flight request
func (a *API) UICancel(c *gin.Context) {
	s, ok := a.uiLookup(c)
	if !ok {
		return
	}
	s.Cancel()
	c.Redirect(http.StatusFound, toolPath(s))
}

// UIReset returns the page to its initial state
func (a *API) UIReset(c *gin.Context) {
	s, ok := a.uiLookup(c)
	if !ok {
		return
	}
	a.afterAction(c, s)(s.Reset())
}

func (a *API) afterAction(c *gin.Context, s *session.Session) func(workflow.Snapshot, error) {
	return func(snap workflow.Snapshot, err error) {
		if err != nil {
			a.renderTool(c, s, snap, statusFor(err), err.Error())
			return
		}
		c.Redirect(http.StatusFound, toolPath(s))
	}
}

func (a *API) uiLookup(c *gin.Context) (*session.Session, bool) {
	s, err := a.sessions.Get(c.Param("id"))
	if err != nil {
		a.renderHome(c, http.StatusNotFound, err.Error())
		return nil, false
	}
	if string(s.Descriptor().Key) != c.Param("key") {
		c.Redirect(http.StatusFound, toolPath(s))
		return nil, false
	}
	return s, true
}

func (a *API) renderHome(c *gin.Context, status int, msg string) {
	c.HTML(status, "home", gin.H{"Catalog": tool.Catalog(), "Error": msg})
}

func (a *API) renderTool(c *gin.Context, s *session.Session, snap workflow.Snapshot, status int, msg string) {
	desc := s.Descriptor()
	defaults := map[string]string{}
	for _, f := range tool.DefaultOptions(desc.Key).Fields() {
		defaults[f.Name] = f.Value
	}
	c.HTML(status, "tool", gin.H{
		"Tool":        desc,
		"Session":     toSessionResponse(s, snap),
		"Defaults":    defaults,
		"Levels":      []tool.Level{tool.LevelLow, tool.LevelMedium, tool.LevelHigh},
		"Positions":   []tool.Position{tool.PositionTopLeft, tool.PositionTopRight, tool.PositionCenter},
		"Editable":    snap.State == workflow.StateIdle || snap.State == workflow.StateReady,
		"Refresh":     snap.State == workflow.StateProcessing,
		"MaxUploadMB": a.maxUploadBytes >> 20,
		"Error":       msg,
	})
}

func toolPath(s *session.Session) string {
	return "/tools/" + string(s.Descriptor().Key) + "/" + s.ID
}
