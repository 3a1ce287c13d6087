package main

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julis-sh/intranet/shared/apperr"
	"github.com/julis-sh/intranet/shared/models"
	"github.com/julis-sh/intranet/shared/testutil"
)

func TestTemplateCRUD(t *testing.T) {
	f := newFixture(t)
	kiel := f.chapter(t, "Kiel", true)
	token := testutil.Token(t, f.leitung)

	w := testutil.Do(t, f.router, http.MethodPost, "/email-templates", token, map[string]interface{}{
		"name":     "Willkommen",
		"scenario": "eintritt",
		"typ":      "mitglied",
		"betreff":  "Willkommen {vorname}",
		"inhalt":   "Hallo",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var tpl models.EmailTemplate
	testutil.Decode(t, w, &tpl)

	w = testutil.Do(t, f.router, http.MethodPost, "/email-templates", token, map[string]interface{}{
		"name":     "Falsch",
		"scenario": "eintritt",
		"typ":      "vorstand",
		"betreff":  "x",
		"inhalt":   "x",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	path := "/email-templates/" + tpl.ID.String()
	w = testutil.Do(t, f.router, http.MethodPut, path, token, map[string]interface{}{
		"kreisverband_id": kiel.ID,
		"inhalt":          "Moin",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	testutil.Decode(t, w, &tpl)
	assert.Equal(t, "Moin", tpl.Body)
	assert.Equal(t, "Willkommen {vorname}", tpl.Subject)
	require.NotNil(t, tpl.ChapterID)

	f.template(t, models.ScenarioAustritt, models.TemplateRecipient, nil, "x", "x")
	w = testutil.Do(t, f.router, http.MethodGet, "/email-templates?typ=mitglied", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.EmailTemplate
	testutil.Decode(t, w, &list)
	require.Len(t, list, 1)
	assert.Equal(t, tpl.ID, list[0].ID)

	w = testutil.Do(t, f.router, http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = testutil.Do(t, f.router, http.MethodDelete, path, testutil.Token(t, f.admin), nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = testutil.Do(t, f.router, http.MethodGet, path, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTemplateTestMail(t *testing.T) {
	f := newFixture(t)
	tpl := f.template(t, models.ScenarioEintritt, models.TemplateRecipient, nil, "Neu in {kreis}", "Hallo {empfaenger_name},\n{vorname} ist neu.")
	path := "/email-templates/" + tpl.ID.String() + "/test"
	token := testutil.Token(t, f.leitung)

	w := testutil.Do(t, f.router, http.MethodPost, path, token, map[string]string{"to": "test@example.org"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	msg := messageTo(t, f.mailbox.Messages(), "test@example.org")
	assert.Equal(t, "Neu in Kiel", msg.Subject)
	assert.Equal(t, "Hallo Anna Vorsitz,<br>Max ist neu.", msg.Body)

	w = testutil.Do(t, f.router, http.MethodPost, path, token, map[string]string{"to": "keine-adresse"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.mailbox.Err = apperr.ExternalService("Failed to send email", errors.New("connection refused"))
	w = testutil.Do(t, f.router, http.MethodPost, path, token, map[string]string{"to": "test@example.org"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, testutil.ErrorMessage(t, w), "E-Mail konnte nicht gesendet werden")

	f.mailbox.Disabled = true
	w = testutil.Do(t, f.router, http.MethodPost, path, token, map[string]string{"to": "test@example.org"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestTemplateAttachment(t *testing.T) {
	f := newFixture(t)
	tpl := f.template(t, models.ScenarioEintritt, models.TemplateMember, nil, "x", "x")
	path := "/email-templates/" + tpl.ID.String() + "/attachment"

	w := f.upload(t, http.MethodPut, path, f.leitung, "file", "satzung.pdf", []byte("v1"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var first models.EmailTemplate
	require.NoError(t, f.db.First(&first, "id = ?", tpl.ID).Error)
	assert.Equal(t, "satzung.pdf", first.AttachmentFilename)

	w = f.upload(t, http.MethodPut, path, f.leitung, "file", "satzung-neu.pdf", []byte("v2"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var second models.EmailTemplate
	require.NoError(t, f.db.First(&second, "id = ?", tpl.ID).Error)
	assert.NotEqual(t, first.AttachmentKey, second.AttachmentKey)

	ctx := context.Background()
	exists, err := f.store.Exists(ctx, first.AttachmentKey)
	require.NoError(t, err)
	assert.False(t, exists)

	w = f.upload(t, http.MethodPut, path, f.leitung, "file", "virus.exe", []byte("x"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.upload(t, http.MethodPut, path, f.leitung, "", "", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Dateiname fehlt", testutil.ErrorMessage(t, w))

	w = testutil.Do(t, f.router, http.MethodDelete, path, testutil.Token(t, f.leitung), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = testutil.Do(t, f.router, http.MethodDelete, path, testutil.Token(t, f.admin), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var cleared models.EmailTemplate
	require.NoError(t, f.db.First(&cleared, "id = ?", tpl.ID).Error)
	assert.False(t, cleared.HasAttachment())
	exists, err = f.store.Exists(ctx, second.AttachmentKey)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRecipients(t *testing.T) {
	f := newFixture(t)
	kiel := f.chapter(t, "Kiel", true)
	token := testutil.Token(t, f.leitung)

	w := testutil.Do(t, f.router, http.MethodPost, "/email-recipients", token, map[string]interface{}{
		"kreisverband_id": kiel.ID,
		"name":            "Geschäftsstelle",
		"email":           "gs@example.org",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var rec models.EmailRecipient
	testutil.Decode(t, w, &rec)

	w = testutil.Do(t, f.router, http.MethodPost, "/email-recipients", token, map[string]interface{}{
		"name":  "Ohne KV",
		"email": "x@example.org",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	path := "/email-recipients/" + rec.ID.String()
	w = testutil.Do(t, f.router, http.MethodPut, path, token, map[string]interface{}{"rolle": "Kasse"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	testutil.Decode(t, w, &rec)
	assert.Equal(t, "Kasse", rec.Role)
	assert.Equal(t, "gs@example.org", rec.Email)

	w = testutil.Do(t, f.router, http.MethodGet, "/email-recipients?kreisverband_id="+kiel.ID.String(), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.EmailRecipient
	testutil.Decode(t, w, &list)
	assert.Len(t, list, 1)

	w = testutil.Do(t, f.router, http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = testutil.Do(t, f.router, http.MethodDelete, path, testutil.Token(t, f.admin), nil)
	require.Equal(t, http.StatusOK, w.Code)
}
