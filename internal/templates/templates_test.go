package templates_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/mailhook/internal/templates"
)

func TestLoad(t *testing.T) {
	c, err := templates.Load("testdata/templates.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"plain", "welcome"}, c.Names())
	assert.True(t, c.Has("welcome"))
	assert.False(t, c.Has("missing"))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := templates.Load("testdata/does-not-exist.yaml")
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	c, err := templates.Load("testdata/templates.yaml")
	require.NoError(t, err)

	out, err := c.Render("welcome", `{"name":"test"}`)
	require.NoError(t, err)
	assert.Equal(t, "Thanks, test", out.Subject)
	assert.Equal(t, "Hi test, we received your message.", out.Text)
	assert.Equal(t, "<p>Hi test, we received your message.</p>", out.HTML)
}

func TestRender_EscapesHTML(t *testing.T) {
	c, err := templates.Load("testdata/templates.yaml")
	require.NoError(t, err)

	out, err := c.Render("welcome", `{"name":"<b>x</b>"}`)
	require.NoError(t, err)
	assert.Equal(t, "Hi <b>x</b>, we received your message.", out.Text)
	assert.Contains(t, out.HTML, "&lt;b&gt;x&lt;/b&gt;")
}

func TestRender_Errors(t *testing.T) {
	c, err := templates.Load("testdata/templates.yaml")
	require.NoError(t, err)

	_, err = c.Render("missing", `{}`)
	assert.True(t, errors.Is(err, templates.ErrTemplateNotFound))

	_, err = c.Render("welcome", `not json`)
	assert.Error(t, err)

	var nilCatalog *templates.Catalog
	_, err = nilCatalog.Render("welcome", "")
	assert.ErrorIs(t, err, templates.ErrTemplateNotFound)
	assert.False(t, nilCatalog.Has("welcome"))
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "templates: ["},
		{"no subject", "templates:\n  a:\n    text: hi\n"},
		{"no body", "templates:\n  a:\n    subject: hi\n"},
		{"bad syntax", "templates:\n  a:\n    subject: \"{{.name\"\n    text: hi\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := templates.Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}
