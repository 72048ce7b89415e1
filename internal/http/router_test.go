package http_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"courtbot/internal/auth"
	"courtbot/internal/config"
	"courtbot/internal/db"
	"courtbot/internal/hearing"
	httpx "courtbot/internal/http"
	"courtbot/internal/notify"
	"courtbot/internal/phone"
)

type echoConversation struct{ from, text string }

func (e *echoConversation) Handle(_ context.Context, from, text string) (string, error) {
	e.from, e.text = from, text
	return "got " + text + " & thanks", nil
}

type server struct {
	handler http.Handler
	db      *gorm.DB
	cipher  *phone.Cipher
	conv    *echoConversation
}

func newServer(t *testing.T, cfg config.Config) *server {
	t.Helper()
	gdb, err := db.Connect("sqlite://" + filepath.Join(t.TempDir(), "http.db"))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrateAndIndexes(gdb))
	c, err := phone.NewCipher("http-test-key-0000000001")
	require.NoError(t, err)

	s := &server{db: gdb, cipher: c, conv: &echoConversation{}}
	s.handler = httpx.NewRouter(cfg, httpx.Deps{
		DB:           gdb,
		Conversation: s.conv,
		Cipher:       c,
		JWT:          auth.NewJWT("jwt-test-secret"),
	})
	return s
}

func (s *server) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func smsRequest(form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/sms", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// twilioSignature signs like the provider: HMAC-SHA1 over the URL followed by
// the sorted form keys and values.
func twilioSignature(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k + form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestHealth(t *testing.T) {
	s := newServer(t, config.Config{})
	rec := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestSMSWebhookRepliesWithTwiML(t *testing.T) {
	s := newServer(t, config.Config{})
	rec := s.do(smsRequest(url.Values{"From": {"+12223334444"}, "Body": {"4928456"}}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<Response>")
	assert.Contains(t, rec.Body.String(), "got 4928456 &amp; thanks")
	assert.Equal(t, "+12223334444", s.conv.from)
	assert.Equal(t, "4928456", s.conv.text)

	rec = s.do(smsRequest(url.Values{"Body": {"hi"}}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSMSWebhookValidatesSignature(t *testing.T) {
	cfg := config.Config{TwilioAuthToken: "twilio-token", PublicURL: "https://courtbot.example"}
	s := newServer(t, cfg)
	form := url.Values{"From": {"+12223334444"}, "Body": {"yes"}, "MessageSid": {"SM123"}}

	req := smsRequest(form)
	req.Header.Set("X-Twilio-Signature", "bogus")
	assert.Equal(t, http.StatusForbidden, s.do(req).Code)
	assert.Empty(t, s.conv.text)

	req = smsRequest(form)
	req.Header.Set("X-Twilio-Signature", twilioSignature("twilio-token", "https://courtbot.example/sms", form))
	assert.Equal(t, http.StatusOK, s.do(req).Code)
	assert.Equal(t, "yes", s.conv.text)
}

func login(t *testing.T, s *server) string {
	t.Helper()
	_, err := (&auth.Users{DB: s.db}).Create(context.Background(), "clerk@court.example", "correct horse battery")
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]string{"email": "clerk@court.example", "password": "correct horse battery"})
	rec := s.do(httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	s := newServer(t, config.Config{})
	login(t, s)

	body, _ := json.Marshal(map[string]string{"email": "clerk@court.example", "password": "guess guess guess"})
	rec := s.do(httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminNotificationsAreRedactedAndFiltered(t *testing.T) {
	s := newServer(t, config.Config{})
	token := login(t, s)

	enc, err := s.cipher.Encrypt("+12223334444")
	require.NoError(t, err)
	failure := "carrier rejected"
	now := time.Now().UTC()
	require.NoError(t, s.db.Create(&[]notify.Notification{
		{CaseID: "4928456", Phone: enc, Type: "matched", CreatedAt: now},
		{CaseID: "4928457", Phone: enc, Type: "expired", Error: &failure, CreatedAt: now},
	}).Error)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/admin/notifications", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/notifications?failed=true", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = s.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "4928457", out[0]["case_id"])
	assert.Equal(t, "***4444", out[0]["phone"])
	assert.Equal(t, "carrier rejected", out[0]["error"])
	assert.NotContains(t, rec.Body.String(), enc)
}

func TestAdminHearingLookup(t *testing.T) {
	s := newServer(t, config.Config{})
	token := login(t, s)
	require.NoError(t, (&hearing.Store{DB: s.db}).Add(context.Background(), &hearing.Hearing{
		CaseID: "4928456", Defendant: "Frederick Turner", Room: "CNVCRT", Date: time.Now().Add(24 * time.Hour),
	}))

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		return s.do(req)
	}

	rec := get("/admin/hearings/4928456")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"room":"CNVCRT"`)

	assert.Equal(t, http.StatusNotFound, get("/admin/hearings/NOPE999").Code)
	assert.Equal(t, http.StatusBadRequest, get("/admin/requests").Code)
	assert.Equal(t, http.StatusOK, get("/admin/runs?type=cycle").Code)
}
