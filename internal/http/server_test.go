package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tuitora/tuitora-gateway/internal/config"
	"github.com/tuitora/tuitora-gateway/internal/model"
	"github.com/tuitora/tuitora-gateway/internal/service/queue"
	"github.com/tuitora/tuitora-gateway/internal/session"
	"github.com/tuitora/tuitora-gateway/internal/sms"
	"github.com/tuitora/tuitora-gateway/internal/ussd"
)

const (
	rootPrompt = "CON Welcome to Tuitora\n1. Check Attendance\n2. Check Fees\n3. School Contact"
	apiKey     = "school-key"
)

// ---- fakes ----

type emptyDirectory struct{}

func (emptyDirectory) StudentsByGuardianPhone(context.Context, string) ([]model.Student, error) {
	return nil, nil
}

func (emptyDirectory) Attendance(context.Context, model.Student, time.Time, time.Time) (*model.AttendanceSummary, error) {
	return nil, nil
}

func (emptyDirectory) Fees(context.Context, model.Student) (*model.FeeStatement, error) {
	return nil, nil
}

func (emptyDirectory) SchoolContact(context.Context, string) (*model.SchoolContact, error) {
	return nil, nil
}

type panicMenu struct{}

func (panicMenu) Handle(context.Context, string, string) ussd.Outcome { panic("menu bug") }

type memSessions struct {
	mu   sync.Mutex
	byID map[string]model.USSDSession
}

func (m *memSessions) Get(_ context.Context, id string) (*model.USSDSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memSessions) Save(_ context.Context, s model.USSDSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byID == nil {
		m.byID = map[string]model.USSDSession{}
	}
	m.byID[s.SessionID] = s
	return nil
}

type memAudit struct {
	mu       sync.Mutex
	reports  []model.DeliveryReport
	incoming []model.IncomingSMS
	messages []model.Message
	listErr  error
}

func (m *memAudit) InsertDeliveryReport(_ context.Context, r model.DeliveryReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
	return nil
}

func (m *memAudit) InsertIncomingSMS(_ context.Context, s model.IncomingSMS) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incoming = append(m.incoming, s)
	return errors.New("clickhouse unavailable")
}

func (m *memAudit) ListMessages(_ context.Context, schoolID int64, _ string, _ model.MessageStatus, _, _ int) ([]model.Message, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.Message
	for _, msg := range m.messages {
		if msg.SchoolID == schoolID {
			out = append(out, msg)
		}
	}
	return out, nil
}

type memStatuses struct {
	mu      sync.Mutex
	updates map[string]model.MessageStatus
}

func (m *memStatuses) UpdateStatusByProviderID(_ context.Context, id string, st model.MessageStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updates == nil {
		m.updates = map[string]model.MessageStatus{}
	}
	m.updates[id] = st
	return true, nil
}

type fakeSchools struct{}

func (fakeSchools) GetByAPIKey(_ context.Context, key string) (*model.School, error) {
	if key == apiKey {
		return &model.School{ID: 7, Name: "Greenfield Academy", Status: "active"}, nil
	}
	return nil, nil
}

type failingProvider struct{ failFor string }

func (p failingProvider) Send(_ context.Context, s model.SMS) (model.ProviderResult, error) {
	if s.Phone == p.failFor {
		return model.ProviderResult{}, errors.New("provider timeout")
	}
	return model.ProviderResult{MessageID: "msg-" + s.Phone}, nil
}

type fakeBroadcaster struct {
	gotSchool int64
}

func (b *fakeBroadcaster) Enqueue(_ context.Context, schoolID int64, rs []model.Recipient, _ string) (queue.Broadcast, error) {
	b.gotSchool = schoolID
	var out queue.Broadcast
	for i, r := range rs {
		if r.Phone == "bad" {
			out.Rejected = append(out.Rejected, model.SMSResult{Recipient: r.Phone, Error: "invalid phone number"})
			continue
		}
		out.Queued = append(out.Queued, queue.Queued{ID: string(rune('A' + i)), Phone: r.Phone})
	}
	if len(out.Queued) == 0 {
		return out, queue.ErrNothingToSend
	}
	return out, nil
}

// ---- harness ----

type harness struct {
	srv       *Server
	sessions  *memSessions
	recorder  *session.Recorder
	audit     *memAudit
	statuses  *memStatuses
	broadcast *fakeBroadcaster
}

func newHarness(t *testing.T, menu Menu) *harness {
	t.Helper()

	cfg := config.Config{}
	cfg.USSD.ServiceCode = "*384*38164#"
	cfg.USSD.MaxLength = 182
	cfg.SMS.MaxLength = 918

	if menu == nil {
		menu = ussd.NewMachine(emptyDirectory{}, ussd.NewCopy("en"),
			ussd.WithDefaultContact(model.SchoolContact{Name: "Tuitora Support", Phone: "+254700000000"}))
	}

	h := &harness{
		sessions:  &memSessions{},
		audit:     &memAudit{},
		statuses:  &memStatuses{},
		broadcast: &fakeBroadcaster{},
	}
	h.recorder = session.NewRecorder(h.sessions, nil, time.Second)
	h.srv = NewServer(Deps{
		Config:    cfg,
		Menu:      menu,
		Recorder:  h.recorder,
		Sessions:  h.sessions,
		SMS:       sms.NewService(failingProvider{failFor: "+254722000002"}),
		Broadcast: h.broadcast,
		Schools:   fakeSchools{},
		Audit:     h.audit,
		Messages:  h.statuses,
	})
	return h
}

func (h *harness) do(method, path, contentType, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func form(kv ...string) string {
	v := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		v.Set(kv[i], kv[i+1])
	}
	return v.Encode()
}

// ---- USSD ----

func TestUSSDCallback_FirstDialShowsRootMenu(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodPost, "/ussd/callback", echo.MIMEApplicationForm,
		form("sessionId", "ATUid_1", "phoneNumber", "+254711000001", "serviceCode", "*384*38164#", "text", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMETextPlain))
	assert.Equal(t, rootPrompt, rec.Body.String())

	h.recorder.Wait()
	saved, err := h.sessions.Get(context.Background(), "ATUid_1")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, model.SessionContinue, saved.Status)
	assert.Equal(t, "*384*38164#", saved.ServiceCode)
	assert.Equal(t, rootPrompt, saved.LastResponse)
}

func TestUSSDCallback_JSONAndIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	body := `{"sessionId":"s-2","phoneNumber":"0711000001","text":"1"}`

	first := h.do(http.MethodPost, "/ussd/callback", echo.MIMEApplicationJSON, body)
	second := h.do(http.MethodPost, "/ussd/callback", echo.MIMEApplicationJSON, body)

	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "END No records found for this phone number.", first.Body.String())
	assert.Equal(t, first.Body.String(), second.Body.String())
	h.recorder.Wait()
}

func TestUSSDCallback_ContactFallsBackToDefault(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodPost, "/ussd/callback", echo.MIMEApplicationForm,
		form("sessionId", "s-3", "phoneNumber", "+254711000001", "text", "3"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "END Tuitora Support\nTel: +254700000000", rec.Body.String())
	h.recorder.Wait()
}

func TestUSSDCallback_MissingFields(t *testing.T) {
	h := newHarness(t, nil)

	cases := map[string]struct {
		ct, body, want string
	}{
		"no session":  {echo.MIMEApplicationForm, form("phoneNumber", "+254711000001", "text", ""), "sessionId"},
		"no phone":    {echo.MIMEApplicationForm, form("sessionId", "s", "text", ""), "phoneNumber"},
		"no text":     {echo.MIMEApplicationForm, form("sessionId", "s", "phoneNumber", "+254711000001"), "text"},
		"json no txt": {echo.MIMEApplicationJSON, `{"sessionId":"s","phoneNumber":"+254711000001"}`, "text"},
		"bad json":    {echo.MIMEApplicationJSON, `{"sessionId":`, "malformed"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := h.do(http.MethodPost, "/ussd/callback", tc.ct, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Contains(t, body["error"], tc.want)
		})
	}
}

func TestUSSDCallback_PanicEndsGracefully(t *testing.T) {
	h := newHarness(t, panicMenu{})

	rec := h.do(http.MethodPost, "/ussd/callback", echo.MIMEApplicationForm,
		form("sessionId", "s-4", "phoneNumber", "+254711000001", "text", "1"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "END An error occurred. Please try again later.", rec.Body.String())
}

func TestStartSession(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodPost, "/ussd/sessions", echo.MIMEApplicationJSON, `{"phoneNumber":"0711000001"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success     bool              `json:"success"`
		Data        model.USSDSession `json:"data"`
		Instruction string            `json:"instruction"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.NotEmpty(t, body.Data.SessionID)
	assert.Equal(t, "+254711000001", body.Data.PhoneNumber)
	assert.Equal(t, model.SessionPending, body.Data.Status)
	assert.Equal(t, "Dial *384*38164# from +254711000001 to continue.", body.Instruction)

	saved, _ := h.sessions.Get(context.Background(), body.Data.SessionID)
	require.NotNil(t, saved)

	rec = h.do(http.MethodPost, "/ussd/sessions", echo.MIMEApplicationJSON, `{"phoneNumber":"12"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var fail struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fail))
	assert.False(t, fail.Success)
	assert.NotEmpty(t, fail.Error)
}

// ---- callbacks ----

func TestDeliveryReport(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodPost, "/sms/delivery-reports", echo.MIMEApplicationForm,
		form("id", "ATX-1", "status", "Success", "phoneNumber", "+254711000001", "networkCode", "63902"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = h.do(http.MethodPost, "/sms/delivery-reports", echo.MIMEApplicationJSON,
		`{"id":"ATX-2","status":"Failed","failureReason":"UserInBlacklist"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, h.audit.reports, 2)
	assert.Equal(t, "63902", h.audit.reports[0].NetworkCode)
	assert.Equal(t, "UserInBlacklist", h.audit.reports[1].FailureReason)
	assert.Equal(t, map[string]model.MessageStatus{
		"ATX-1": model.StatusDelivered,
		"ATX-2": model.StatusFailed,
	}, h.statuses.updates)
}

func TestDeliveryReport_MalformedStillOK(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodPost, "/sms/delivery-reports", echo.MIMEApplicationJSON, `{"id": 12,`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Empty(t, h.statuses.updates)
}

func TestIncomingSMS(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodPost, "/sms/incoming", echo.MIMEApplicationJSON,
		`{"msisdn":"+254711000001","shortCode":"22384","message":"BAL"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	require.Len(t, h.audit.incoming, 1)
	assert.Equal(t, "+254711000001", h.audit.incoming[0].From)
	assert.Equal(t, "BAL", h.audit.incoming[0].Text)

	rec = h.do(http.MethodPost, "/sms/incoming", echo.MIMEApplicationJSON, `garbage{`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// ---- /v1 ----

func TestSendSMS_RequiresAPIKey(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodPost, "/v1/sms/send", echo.MIMEApplicationJSON, `{"recipients":["+254722000001"],"message":"hi"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBulkSMS_PartialFailure(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodPost, "/v1/sms/bulk", echo.MIMEApplicationJSON,
		`{"recipients":[{"phone":"+254722000001","name":"Amina"},{"phone":"+254722000002","name":"Baraka"},{"phone":"+254722000003","name":"Chebet"}],"message":"Hi {name}"}`,
		"X-API-Key", apiKey)
	require.Equal(t, http.StatusOK, rec.Code)

	var body sendResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 3)
	assert.True(t, body.Results[0].Success)
	assert.False(t, body.Results[1].Success)
	assert.Equal(t, "provider timeout", body.Results[1].Error)
	assert.True(t, body.Results[2].Success)
	assert.Equal(t, 2, body.Sent)
	assert.Equal(t, 1, body.Failed)
	assert.Equal(t, 1, body.Segments)
}

func TestSendSMS_Validation(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodPost, "/v1/sms/send", echo.MIMEApplicationJSON, `{"recipients":[],"message":""}`, "X-API-Key", apiKey)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	long := strings.Repeat("a", 919)
	rec = h.do(http.MethodPost, "/v1/sms/send", echo.MIMEApplicationJSON,
		`{"recipients":["+254722000001"],"message":"`+long+`"}`, "X-API-Key", apiKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBroadcast(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodPost, "/v1/sms/broadcast", echo.MIMEApplicationJSON,
		`{"recipients":[{"phone":"+254722000001"},{"phone":"bad"}],"message":"Closing early"}`, "X-API-Key", apiKey)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, int64(7), h.broadcast.gotSchool)

	var body struct {
		Queued   int               `json:"queued"`
		Rejected []model.SMSResult `json:"rejected"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Queued)
	assert.Len(t, body.Rejected, 1)

	rec = h.do(http.MethodPost, "/v1/sms/broadcast", echo.MIMEApplicationJSON,
		`{"recipients":[{"phone":"bad"}],"message":"x"}`, "X-API-Key", apiKey)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestListMessages(t *testing.T) {
	h := newHarness(t, nil)
	h.audit.messages = []model.Message{
		{ID: "1", SchoolID: 7, Phone: "+254722000001", Status: model.StatusSent},
		{ID: "2", SchoolID: 8, Phone: "+254722000002", Status: model.StatusSent},
	}

	rec := h.do(http.MethodGet, "/v1/reports/messages?limit=10", "", "", "X-API-Key", apiKey)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count   int             `json:"count"`
		Limit   int             `json:"limit"`
		Results []model.Message `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, 10, body.Limit)
	assert.Equal(t, "1", body.Results[0].ID)

	rec = h.do(http.MethodGet, "/v1/reports/messages?status=bogus", "", "", "X-API-Key", apiKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.audit.listErr = errors.New("clickhouse down")
	rec = h.do(http.MethodGet, "/v1/reports/messages", "", "", "X-API-Key", apiKey)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
