package handler

import (
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/maxxi02/thesis-project01-sub001/internal/model"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<main data-path="{{.Path}}">
{{- if .User}}
<p>Signed in as {{.User.Name}} ({{.User.Role}})</p>
<form method="post" action="/api/auth/sign-out"><button type="submit">Sign out</button></form>
{{- else}}
<p><a href="/sign-in">Sign in</a> or <a href="/sign-up">create an account</a></p>
{{- end}}
</main>
</body>
</html>
`))

type pageData struct {
	Title string
	Path  string
	User  *model.User
}

// Page отображает страницу панели управления. Доступ к ней уже проверен PageGuard.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	data := pageData{Title: "Warehouse", Path: r.URL.Path, User: currentUser(r)}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.pages.Execute(w, data); err != nil {
		h.logger.Error("render page", zap.Error(err), zap.String("path", r.URL.Path))
	}
}
