// Package preview builds OpenGraph-style cards for repositories and
// issues. Cards are rendered to an image through an external HTML render
// service when one is configured; otherwise a plain-text version is used.
package preview

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"ghtrack/internal/github"
)

var repoTmpl = template.Must(template.New("repo").Parse(`
<div style="width:600px; padding:20px; font-family:Arial, sans-serif; background-color:#f5f5f5;">
  <h1 style="margin:0; color:#333;">{{.Name}}</h1>
  <p style="color:#666;">{{.Description}}</p>
  <ul style="list-style:none; padding:0;">
    <li><strong>Stars:</strong> {{.Stars}}</li>
    <li><strong>Forks:</strong> {{.Forks}}</li>
    <li><strong>Open Issues:</strong> {{.OpenIssues}}</li>
  </ul>
  <a href="{{.URL}}" style="text-decoration:none; color:#0366d6;">View on GitHub</a>
</div>`))

var issueTmpl = template.Must(template.New("issue").Parse(`
<div style="width:600px; height:400px; background-color:#fffbe6; display:flex; flex-direction:column; justify-content:center; align-items:center; font-family:Arial, sans-serif; padding:20px; box-sizing:border-box;">
  <div style="width:100%; text-align:center;">
    <h1 style="margin:0; color:#d73a49; font-size:28px;">#{{.Number}}: {{.Title}}</h1>
    <p style="color:#586069; font-size:16px; margin:10px 0;">{{.Body}}</p>
    <ul style="list-style:none; padding:0; margin:10px 0; font-size:16px;">
      <li><strong>State:</strong> {{.State}}</li>
      <li><strong>Comments:</strong> {{.Comments}}</li>
    </ul>
    <div>
      <a href="{{.URL}}" style="text-decoration:none; color:#0366d6; font-size:16px;">View on GitHub</a>
    </div>
  </div>
</div>`))

// Card is one renderable preview: the HTML for the image renderer, a text
// fallback, and an optional stock image (the owner avatar for repos).
type Card struct {
	HTML     string
	Text     string
	ImageURL string
}

func RepoCard(info *github.RepoInfo) (Card, error) {
	desc := info.Description
	if strings.TrimSpace(desc) == "" {
		desc = "No description"
	}
	data := struct {
		Name, Description, URL   string
		Stars, Forks, OpenIssues int
	}{
		Name:        info.FullName,
		Description: desc,
		URL:         info.HTMLURL,
		Stars:       info.StargazersCount,
		Forks:       info.ForksCount,
		OpenIssues:  info.OpenIssuesCount,
	}

	var buf bytes.Buffer
	if err := repoTmpl.Execute(&buf, data); err != nil {
		return Card{}, err
	}
	text := fmt.Sprintf("%s\n%s\nStars: %d | Forks: %d | Open issues: %d\n%s",
		info.FullName, desc, info.StargazersCount, info.ForksCount, info.OpenIssuesCount, info.HTMLURL)
	return Card{HTML: buf.String(), Text: text, ImageURL: info.Owner.AvatarURL}, nil
}

func IssueCard(info *github.IssueInfo) (Card, error) {
	body := info.Body
	if rs := []rune(body); len(rs) > 200 {
		body = string(rs[:200]) + "..."
	}
	data := struct {
		Number                  int
		Title, Body, State, URL string
		Comments                int
	}{
		Number:   info.Number,
		Title:    info.Title,
		Body:     body,
		State:    info.State,
		URL:      info.HTMLURL,
		Comments: info.Comments,
	}

	var buf bytes.Buffer
	if err := issueTmpl.Execute(&buf, data); err != nil {
		return Card{}, err
	}
	text := fmt.Sprintf("#%d: %s\n%s\nState: %s | Comments: %d\n%s",
		info.Number, info.Title, body, info.State, info.Comments, info.HTMLURL)
	return Card{HTML: buf.String(), Text: text}, nil
}
