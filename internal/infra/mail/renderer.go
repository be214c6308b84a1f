// Package mail renders verification code emails and hands them to the configured sender.
package mail

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	texttemplate "text/template"

	"otpgate/internal/domain/service"
	"otpgate/internal/util"

	"github.com/pkg/errors"
)

//go:embed templates/*
var templatesFS embed.FS

var (
	loginCodeText = texttemplate.Must(texttemplate.ParseFS(templatesFS, "templates/login_code.txt"))
	loginCodeHTML = htmltemplate.Must(htmltemplate.ParseFS(templatesFS, "templates/login_code.html"))
)

type loginCodeData struct {
	ProductName string
	Code        string
	ExpiresIn   string
}

// Renderer turns a verification code into a complete message.
type Renderer struct {
	from        string
	subject     string
	productName string
}

// NewRenderer creates a renderer stamping every message with the given sender details.
func NewRenderer(from, subject, productName string) *Renderer {
	return &Renderer{from: from, subject: subject, productName: productName}
}

// RenderLoginCode builds the plain text and HTML bodies of a sign-in code email.
func (r *Renderer) RenderLoginCode(mail *service.LoginCodeMail) (*service.MailMessage, error) {
	data := loginCodeData{
		ProductName: r.productName,
		Code:        mail.Code,
		ExpiresIn:   util.FormatDuration(mail.ExpiresIn),
	}

	var text, html bytes.Buffer
	if err := loginCodeText.Execute(&text, data); err != nil {
		return nil, errors.Wrap(err, "render text body")
	}
	if err := loginCodeHTML.Execute(&html, data); err != nil {
		return nil, errors.Wrap(err, "render html body")
	}

	return &service.MailMessage{
		RequestID: mail.RequestID,
		To:        mail.To,
		From:      r.from,
		Subject:   r.subject,
		Text:      text.String(),
		HTML:      html.String(),
	}, nil
}
