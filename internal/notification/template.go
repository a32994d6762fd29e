package notification

import "encoding/json"

// EmailTemplate is the inline content sent by the raw variant.
type EmailTemplate struct {
	Subject  string
	TextBody string
	HTMLBody string
}

const (
	defaultSubject = "Thanks for getting in touch"

	defaultTextBody = "Thanks for getting in touch\r\n" +
		"We received your message and will get back to you shortly."

	defaultHTMLBody = `<html>
<head></head>
<body>
  <h1>Thanks for getting in touch</h1>
  <p>We received your message and will get back to you shortly.</p>
</body>
</html>
`
)

// DefaultTemplate returns the fixed content of the raw variant.
func DefaultTemplate() EmailTemplate {
	return EmailTemplate{
		Subject:  defaultSubject,
		TextBody: defaultTextBody,
		HTMLBody: defaultHTMLBody,
	}
}

// templateData encodes the substitution payload of the templated variant.
func templateData(name string) string {
	b, _ := json.Marshal(map[string]string{"name": name})
	return string(b)
}
