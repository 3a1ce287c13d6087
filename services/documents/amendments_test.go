package main

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julis-sh/intranet/shared/apperr"
	"github.com/julis-sh/intranet/shared/models"
	"github.com/julis-sh/intranet/shared/testutil"
)

func (f *fixture) notificationTemplate(t *testing.T) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.EmailTemplate{
		Name:     "Änderungsantrag",
		Scenario: models.ScenarioAmendment,
		Type:     models.TemplateNotification,
		Subject:  "Neuer Antrag zu {dokument_titel}",
		Body:     "{antragsteller}: {stellen_uebersicht}\n{link}",
	}).Error)
}

func TestDefaultChangeText(t *testing.T) {
	tests := []struct {
		name       string
		ref        string
		oldWording string
		newWording string
		want       string
	}{
		{"insertion", "§ 3", "", "Neu", "In § 3 wird eingefügt:\nNeu"},
		{"insertion without reference", "", "", "Neu", "Einfügung:\nNeu"},
		{"deletion", "§ 3", "Alt", "", "§ 3 wird gestrichen."},
		{"deletion without reference", "", "Alt", "", "Streichung."},
		{"replacement", "§ 3", "Alt", "Neu", "§ 3 wird wie folgt geändert:\nNeu"},
		{"replacement without reference", "", "Alt", "Neu", "Ersetzung:\nNeu"},
		{"nothing", "§ 3", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, defaultChangeText(tt.ref, tt.oldWording, tt.newWording))
		})
	}
}

func TestPassagesOf(t *testing.T) {
	legacy := &models.Amendment{OldWording: "Alt", NewWording: "Neu"}
	got := passagesOf(legacy)
	require.Len(t, got, 1)
	assert.Equal(t, "Ersetzung:\nNeu", got[0].ChangeText)

	legacy.MotionText = "Eigener Text"
	assert.Equal(t, "Eigener Text", passagesOf(legacy)[0].ChangeText)

	a := &models.Amendment{Passages: []models.AmendmentPassage{
		{Position: 2, Reference: "§ 5", OldWording: "Alt"},
		{Position: 1, Reference: "§ 2", NewWording: "Neu", ChangeText: "Formuliert"},
	}}
	got = passagesOf(a)
	require.Len(t, got, 2)
	assert.Equal(t, "Formuliert", got[0].ChangeText)
	assert.Equal(t, "§ 5 wird gestrichen.", got[1].ChangeText)
	assert.Equal(t, "Formuliert\n\n§ 5 wird gestrichen.", overview(got))
}

func TestCreateAmendment(t *testing.T) {
	f := newFixture(t)
	f.notificationTemplate(t)
	doc := f.document(t, "Satzung")
	base := "/documents/" + doc.ID.String() + "/aenderungsantraege"
	body := map[string]interface{}{
		"antragsteller": "KV Kiel",
		"antrag_text":   "Satzung modernisieren",
		"alte_fassung":  "Alt",
		"neue_fassung":  "Neu",
	}

	w := testutil.Do(t, f.router, http.MethodPost, base, testutil.Token(t, f.vorstand), body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var a models.Amendment
	testutil.Decode(t, w, &a)
	assert.Equal(t, models.AmendmentSubmitted, a.Status)
	assert.Empty(t, f.mailbox.Messages())

	w = testutil.Do(t, f.router, http.MethodPost, base+"?send_emails=true", testutil.Token(t, f.vorstand), body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	msgs := f.mailbox.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"lv@example.org"}, msgs[0].To)
	assert.Equal(t, "Neuer Antrag zu Satzung", msgs[0].Subject)
	assert.Equal(t, "KV Kiel: Satzung modernisieren<br>https://intranet.example/dokumente/satzung/"+doc.ID.String(), msgs[0].Body)

	f.mailbox.Err = apperr.ExternalService("Failed to send email", errors.New("down"))
	w = testutil.Do(t, f.router, http.MethodPost, base+"?send_emails=true", testutil.Token(t, f.vorstand), body)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = testutil.Do(t, f.router, http.MethodPost, base, testutil.Token(t, f.vorstand), map[string]interface{}{"antragsteller": "KV Kiel"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = testutil.Do(t, f.router, http.MethodPost, base, testutil.Token(t, f.staff), body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutil.Do(t, f.router, http.MethodGet, base+"?status=eingereicht", testutil.Token(t, f.vorstand), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Amendment
	testutil.Decode(t, w, &list)
	assert.Len(t, list, 3)
}

func TestUpdateAmendmentStatus(t *testing.T) {
	f := newFixture(t)
	a := f.amendment(t, f.document(t, "Satzung"), "KV Kiel")
	path := "/documents/aenderungsantraege/" + a.ID.String()

	w := testutil.Do(t, f.router, http.MethodPut, path, testutil.Token(t, f.vorstand), map[string]string{"status": "angenommen"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutil.Do(t, f.router, http.MethodPut, path, testutil.Token(t, f.leitung), map[string]string{"status": "vertagt"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid status. Must be one of: eingereicht, angenommen, abgelehnt", testutil.ErrorMessage(t, w))

	w = testutil.Do(t, f.router, http.MethodPut, path, testutil.Token(t, f.leitung), map[string]string{"status": "angenommen"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated models.Amendment
	testutil.Decode(t, w, &updated)
	assert.Equal(t, models.AmendmentAccepted, updated.Status)
	assert.Equal(t, "KV Kiel", updated.Applicant)

	var entry models.AuditLog
	require.NoError(t, f.db.Where("entity_id = ?", a.ID).First(&entry).Error)
	assert.Equal(t, models.ActionApprove, entry.Action)
}

func TestSendAmendmentEmail(t *testing.T) {
	f := newFixture(t)
	f.notificationTemplate(t)
	a := f.amendment(t, f.document(t, "Satzung"), "KV Kiel")
	path := "/documents/aenderungsantraege/" + a.ID.String() + "/send-email"
	token := testutil.Token(t, f.leitung)

	w := testutil.Do(t, f.router, http.MethodPost, path, token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, f.mailbox.Messages(), 1)

	f.notify.recipients = nil
	w = testutil.Do(t, f.router, http.MethodPost, path, token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Keine Empfänger konfiguriert (DOCUMENT_AMENDMENT_NOTIFY_EMAILS).", testutil.ErrorMessage(t, w))

	f.mailbox.Disabled = true
	w = testutil.Do(t, f.router, http.MethodPost, path, token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = testutil.Do(t, f.router, http.MethodPost, "/documents/aenderungsantraege/"+models.Amendment{}.ID.String()+"/send-email", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPassages(t *testing.T) {
	f := newFixture(t)
	a := f.amendment(t, f.document(t, "Satzung"), "KV Kiel")
	base := "/documents/aenderungsantraege/" + a.ID.String() + "/stellen"

	w := testutil.Do(t, f.router, http.MethodPost, base, testutil.Token(t, f.vorstand), map[string]interface{}{"bezug": "§ 1", "neue_fassung": "Neu"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var first models.AmendmentPassage
	testutil.Decode(t, w, &first)
	assert.Equal(t, 0, first.Position)

	w = testutil.Do(t, f.router, http.MethodPost, base, testutil.Token(t, f.vorstand), map[string]interface{}{"bezug": "§ 2", "alte_fassung": "Alt"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var second models.AmendmentPassage
	testutil.Decode(t, w, &second)
	assert.Equal(t, 1, second.Position)

	w = testutil.Do(t, f.router, http.MethodPut, base+"/"+second.ID.String(), testutil.Token(t, f.vorstand), map[string]interface{}{"position": 0})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = testutil.Do(t, f.router, http.MethodPut, base+"/"+first.ID.String(), testutil.Token(t, f.leitung), map[string]interface{}{"position": 5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = testutil.Do(t, f.router, http.MethodGet, base, testutil.Token(t, f.vorstand), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.AmendmentPassage
	testutil.Decode(t, w, &list)
	require.Len(t, list, 2)
	assert.Equal(t, "§ 2", list[0].Reference)

	other := f.amendment(t, f.document(t, "Geschäftsordnung"), "KV Lübeck")
	w = testutil.Do(t, f.router, http.MethodDelete, "/documents/aenderungsantraege/"+other.ID.String()+"/stellen/"+first.ID.String(), testutil.Token(t, f.admin), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = testutil.Do(t, f.router, http.MethodDelete, base+"/"+first.ID.String(), testutil.Token(t, f.admin), nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestExportAmendment(t *testing.T) {
	f := newFixture(t)
	doc := f.document(t, "Satzung")
	a := f.amendment(t, doc, "KV Kiel")
	f.passage(t, a, 0, "§ 3", "", "Neuer Absatz")
	f.passage(t, a, 1, "", "Alt", "")
	base := "/documents/aenderungsantraege/" + a.ID.String()

	w := testutil.Do(t, f.router, http.MethodGet, base+"/export.docx", testutil.Token(t, f.vorstand), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, docxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "aenderungsantrag_"+a.ID.String()+".docx")

	text := documentText(t, w.Body.Bytes())
	for _, want := range []string{"Änderungsantrag|", "Satzung|", "Antragsteller: |KV Kiel|", "Begründung|", "In § 3 wird eingefügt:|Neuer Absatz|", "Streichung.|", "Bezug|Alte Fassung|Neue Fassung|", "§ 3|—|Neuer Absatz|", "—|Alt|—|"} {
		assert.Contains(t, text, want)
	}

	w = testutil.Do(t, f.router, http.MethodGet, base+"/export.pdf", testutil.Token(t, f.vorstand), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, "aenderungsantrag_"+a.ID.String()+".docx", f.converter.got)

	f.converter.fail = true
	w = testutil.Do(t, f.router, http.MethodGet, base+"/export.pdf", testutil.Token(t, f.vorstand), nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
