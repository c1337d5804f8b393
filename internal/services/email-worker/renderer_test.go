package worker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRendererKnownTemplate(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	mail, err := r.Render("trip_upcoming", map[string]any{
		"name":        "Ivan",
		"destination": "Lisbon",
		"start_date":  "2025-07-01",
		"action_url":  "https://portal.example.com/trips/42",
	})
	require.NoError(t, err)
	require.Equal(t, "Your trip to Lisbon starts 2025-07-01", mail.Subject)
	require.Contains(t, mail.HTML, "<strong>Lisbon</strong>")
	require.Contains(t, mail.HTML, "https://portal.example.com/trips/42")
	require.Contains(t, mail.Text, "Lisbon")
	require.NotContains(t, mail.Text, "<html>")
}

func TestRendererUnknownTypeFallsBackToGeneric(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	mail, err := r.Render("brand_new_kind", map[string]any{
		"title":   "Heads up",
		"message": "Something happened.",
	})
	require.NoError(t, err)
	require.Equal(t, "Notification from your travel agency", mail.Subject)
	require.Contains(t, mail.HTML, "Heads up")
	require.Contains(t, mail.Text, "Something happened.")
}

func TestRendererEscapesHTMLInVariables(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	mail, err := r.Render("generic", map[string]any{
		"message": "<script>alert(1)</script>",
	})
	require.NoError(t, err)
	require.NotContains(t, mail.HTML, "<script>")
}

func TestRendererAllShippedTemplatesParse(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	vars := map[string]any{
		"name": "Ivan", "destination": "Rome", "start_date": "2025-09-01",
		"end_date": "2025-09-10", "amount": "1200 EUR", "due_date": "2025-08-15",
		"document": "passport", "expires_on": "2025-12-31",
		"title": "t", "message": "m", "subject": "s",
	}
	for _, typ := range []string{
		"generic", "trip_upcoming", "trip_created",
		"payment_due", "payment_received", "document_expiring",
	} {
		mail, err := r.Render(typ, vars)
		require.NoError(t, err, typ)
		require.NotEmpty(t, mail.Subject, typ)
		require.NotEmpty(t, mail.HTML, typ)
	}
}
