package core

import (
	"bytes"
	"fmt"
	htmltmpl "html/template"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"

	appfs "github.com/sgacop30/sga/fs"
)

const emailTemplatesDir = "templates/email"

// emailTemplate holds both renditions of a named email. Either may be nil.
type emailTemplate struct {
	text *texttmpl.Template
	html *htmltmpl.Template
}

var (
	templates   = make(map[string]*emailTemplate)
	templatesMu sync.RWMutex
)

type (
	// EmailMessage is a templated email. Its contents are rendered by the EmailService.
	EmailMessage struct {
		To      []mail.Address
		Subject string

		TemplateName string // file name without extension
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	// TemplateContext is what email templates are executed with.
	TemplateContext struct {
		AppName         string
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

func lookupTemplate(name string) (*emailTemplate, bool) {
	templatesMu.RLock()
	defer templatesMu.RUnlock()
	tmpl, ok := templates[name]
	return tmpl, ok
}

// Render fills TextContent and HTMLContent from the named template.
// An unknown template leaves both empty.
func (m *EmailMessage) Render(conf *Config) error {
	tmpl, ok := lookupTemplate(m.TemplateName)
	if !ok {
		return nil
	}
	data := TemplateContext{AppName: conf.AppName, FrontendBaseURL: conf.FrontendBaseURL, Data: m.TemplateData}

	var buf bytes.Buffer
	if tmpl.text != nil {
		if err := tmpl.text.Execute(&buf, data); err != nil {
			return errors.Wrapf(err, "executing %s.txt", m.TemplateName)
		}
		m.TextContent = buf.String()
		buf.Reset()
	}
	if tmpl.html != nil {
		if err := tmpl.html.Execute(&buf, data); err != nil {
			return errors.Wrapf(err, "executing %s.gohtml", m.TemplateName)
		}
		m.HTMLContent = buf.String()
	}
	return nil
}

// Deliverable reports whether the rendered message has somewhere to go and something to say.
func (m *EmailMessage) Deliverable() bool {
	return len(m.To) > 0 && (m.TextContent != "" || m.HTMLContent != "")
}

// ParseEmailTemplates loads the embedded email templates. Files starting with "_" are layouts.
// In strict mode a missing template key fails the rendering.
func ParseEmailTemplates(logger Logger, strict bool) {
	templatesMu.Lock()
	defer templatesMu.Unlock()

	templates = make(map[string]*emailTemplate)

	fps, err := fs.Glob(appfs.FS, path.Join(emailTemplatesDir, "*"))
	if err != nil {
		logger.Error(fmt.Sprintf("listing email templates: %v", err), err)
		return
	}

	option := "missingkey=default"
	if strict {
		option = "missingkey=error"
	}
	for _, fp := range fps {
		fname := path.Base(fp)
		if strings.HasPrefix(fname, "_") {
			continue
		}
		ext := path.Ext(fname)
		name := strings.TrimSuffix(fname, ext)
		tmpl, ok := templates[name]
		if !ok {
			tmpl = new(emailTemplate)
		}

		switch ext {
		case ".txt":
			tmpl.text, err = texttmpl.ParseFS(appfs.FS, path.Join(emailTemplatesDir, "_base.txt"), fp)
			if err == nil {
				tmpl.text = tmpl.text.Option(option)
			}
		case ".gohtml":
			tmpl.html, err = htmltmpl.ParseFS(appfs.FS, path.Join(emailTemplatesDir, "_base.gohtml"), fp)
			if err == nil {
				tmpl.html = tmpl.html.Option(option)
			}
		default:
			continue
		}
		if err != nil {
			logger.Error(fmt.Sprintf("parsing email template %s: %v", fname, err), err)
			continue
		}
		templates[name] = tmpl
	}
}
