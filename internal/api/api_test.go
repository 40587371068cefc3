package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fathima-sithara/classroom-chat/internal/auth"
	"github.com/fathima-sithara/classroom-chat/internal/cache"
	"github.com/fathima-sithara/classroom-chat/internal/domain"
	"github.com/fathima-sithara/classroom-chat/internal/events"
	"github.com/fathima-sithara/classroom-chat/internal/repository/memory"
	"github.com/fathima-sithara/classroom-chat/internal/service"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	secret = "test-secret"
	school = "school-1"
)

// blobs is a private store: object URLs carry a signature and are only
// handed out through the upload link route.
type blobs struct{ fail bool }

func (b blobs) Put(_ context.Context, _, _ string, body io.Reader) error {
	if b.fail {
		return errors.New("bucket unavailable")
	}
	_, err := io.Copy(io.Discard, body)
	return err
}

func (b blobs) URL(_ context.Context, key string) (string, error) {
	return "https://blobs.test/" + key + "?sig=fresh", nil
}

func (b blobs) Public() bool { return false }

type env struct {
	app                      *fiber.App
	store                    *memory.Store
	teacher, parent, student *domain.User
	outsider                 *domain.User
}

func newEnv(t *testing.T, store service.BlobStore) *env {
	t.Helper()
	tid, pid, sid := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()
	e := &env{
		store:   memory.NewStore(),
		teacher: &domain.User{ID: tid, TenantID: school, Name: "Meera", Role: "teacher", LinkedIDs: domain.LinkedIDs{StudentIDs: []primitive.ObjectID{sid}}},
		parent:  &domain.User{ID: pid, TenantID: school, Name: "Anil", Role: "parent", LinkedIDs: domain.LinkedIDs{StudentIDs: []primitive.ObjectID{sid}}},
		student: &domain.User{ID: sid, TenantID: school, Name: "Kiran", Role: "student", LinkedIDs: domain.LinkedIDs{
			TeacherIDs: []primitive.ObjectID{tid},
			ParentIDs:  []primitive.ObjectID{pid},
		}},
		outsider: &domain.User{ID: primitive.NewObjectID(), TenantID: school, Name: "Ravi", Role: "parent"},
	}
	for _, u := range []*domain.User{e.teacher, e.parent, e.student, e.outsider} {
		e.store.PutUser(u)
	}

	log := zap.NewNop()
	validator, err := auth.NewJWTValidator("", "HS256", secret)
	require.NoError(t, err)
	n := service.NewNotifier(events.NewLocalBus(), log)
	chats := service.NewChatService(e.store.Chats(), e.store.Messages(), e.store.Directory(), cache.NewMemoryStudentCache(time.Minute), n, log)
	msgs := service.NewMessageService(e.store.Chats(), e.store.Messages(), n, log)
	e.app = NewApp(Deps{
		Chats:     chats,
		Messages:  msgs,
		Uploads:   service.NewUploadService(store, e.store.Uploads(), "/api/chat/upload", log),
		Auth:      validator,
		Log:       log,
		BodyLimit: 8 * 1024 * 1024,
	})
	return e
}

func tokenFor(t *testing.T, u *domain.User) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":       u.ID.Hex(),
		"role":      u.Role,
		"tenant_id": u.TenantID,
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *env) do(t *testing.T, u *domain.User, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if u != nil {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, u))
	}
	return e.send(t, req)
}

func (e *env) send(t *testing.T, req *http.Request) (int, envelope) {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (e *env) parentChat(t *testing.T) string {
	t.Helper()
	status, out := e.do(t, e.parent, http.MethodGet, "/api/chat/parent-chat/"+e.student.ID.Hex(), nil)
	require.Equal(t, http.StatusOK, status, out.Message)
	var view struct {
		ChatID string `json:"chatId"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &view))
	return view.ChatID
}

func TestAuthRequired(t *testing.T) {
	e := newEnv(t, blobs{})
	status, out := e.do(t, nil, http.MethodGet, "/api/chat/user-chats", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, out.Success)

	req := httptest.NewRequest(http.MethodGet, "/api/chat/user-chats", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	status, _ = e.send(t, req)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestResolveAndConverse(t *testing.T) {
	e := newEnv(t, blobs{})
	chatID := e.parentChat(t)
	assert.Equal(t, chatID, e.parentChat(t), "resolving twice returns the same chat")

	status, out := e.do(t, e.parent, http.MethodPost, "/api/chat/"+chatID+"/send", fiber.Map{"content": "Is homework due Friday?"})
	require.Equal(t, http.StatusCreated, status, out.Message)
	var m domain.Message
	require.NoError(t, json.Unmarshal(out.Data, &m))
	assert.Equal(t, domain.RoleParent, m.SenderRole)

	status, out = e.do(t, e.teacher, http.MethodGet, "/api/chat/"+chatID+"/messages?page=1&limit=10", nil)
	require.Equal(t, http.StatusOK, status)
	var page service.MessagePage
	require.NoError(t, json.Unmarshal(out.Data, &page))
	require.Len(t, page.Messages, 1)
	assert.Equal(t, domain.StatusSeen, page.Messages[0].Status)
	assert.False(t, page.HasMore)

	status, out = e.do(t, e.teacher, http.MethodGet, "/api/chat/user-chats", nil)
	require.Equal(t, http.StatusOK, status)
	var views []service.ChatView
	require.NoError(t, json.Unmarshal(out.Data, &views))
	require.Len(t, views, 1)
	assert.Equal(t, 0, views[0].UnreadCount[string(domain.RoleTeacher)])
}

func TestStatusMapping(t *testing.T) {
	e := newEnv(t, blobs{})
	chatID := e.parentChat(t)
	_, out := e.do(t, e.parent, http.MethodPost, "/api/chat/"+chatID+"/send", fiber.Map{"content": "hello"})
	var m domain.Message
	require.NoError(t, json.Unmarshal(out.Data, &m))

	cases := []struct {
		name   string
		user   *domain.User
		method string
		path   string
		body   interface{}
		status int
	}{
		{"invalid student id", e.parent, http.MethodGet, "/api/chat/parent-chat/nope", nil, http.StatusBadRequest},
		{"unknown student", e.parent, http.MethodGet, "/api/chat/parent-chat/" + primitive.NewObjectID().Hex(), nil, http.StatusNotFound},
		{"unlinked parent", e.outsider, http.MethodGet, "/api/chat/parent-chat/" + e.student.ID.Hex(), nil, http.StatusForbidden},
		{"empty message", e.parent, http.MethodPost, "/api/chat/" + chatID + "/send", fiber.Map{"content": "  "}, http.StatusBadRequest},
		{"unknown message type", e.parent, http.MethodPost, "/api/chat/" + chatID + "/send", fiber.Map{"content": "x", "messageType": "sticker"}, http.StatusBadRequest},
		{"non participant send", e.outsider, http.MethodPost, "/api/chat/" + chatID + "/send", fiber.Map{"content": "hi"}, http.StatusForbidden},
		{"unknown chat", e.parent, http.MethodGet, "/api/chat/" + primitive.NewObjectID().Hex() + "/messages", nil, http.StatusNotFound},
		{"oversized attachment", e.parent, http.MethodPost, "/api/chat/" + chatID + "/send", fiber.Map{
			"attachments": []fiber.Map{{"filename": "a.pdf", "url": "https://x/a.pdf", "size": domain.MaxAttachmentSize + 1}},
		}, http.StatusBadRequest},
		{"edit by other", e.teacher, http.MethodPut, "/api/chat/message/" + m.ID.Hex() + "/edit", fiber.Map{"content": "changed"}, http.StatusForbidden},
		{"delete for everyone by other", e.teacher, http.MethodDelete, "/api/chat/message/" + m.ID.Hex() + "?deleteForEveryone=true", nil, http.StatusForbidden},
		{"react without emoji", e.teacher, http.MethodPost, "/api/chat/message/" + m.ID.Hex() + "/react", fiber.Map{}, http.StatusBadRequest},
		{"forward to bad chat id", e.teacher, http.MethodPost, "/api/chat/message/" + m.ID.Hex() + "/forward", fiber.Map{"chatId": "123"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, out := e.do(t, tc.user, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, status, out.Message)
			assert.False(t, out.Success)
			assert.NotEmpty(t, out.Message)
		})
	}
}

func TestMessageActions(t *testing.T) {
	e := newEnv(t, blobs{})
	chatID := e.parentChat(t)
	_, out := e.do(t, e.parent, http.MethodPost, "/api/chat/"+chatID+"/send", fiber.Map{"content": "hello"})
	var m domain.Message
	require.NoError(t, json.Unmarshal(out.Data, &m))
	msgPath := "/api/chat/message/" + m.ID.Hex()

	status, out := e.do(t, e.teacher, http.MethodPost, msgPath+"/react", fiber.Map{"emoji": "👍"})
	require.Equal(t, http.StatusOK, status)
	var res service.ToggleResult
	require.NoError(t, json.Unmarshal(out.Data, &res))
	assert.Equal(t, "added", res.Action)

	status, out = e.do(t, e.teacher, http.MethodPost, msgPath+"/react", fiber.Map{"emoji": "👍"})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(out.Data, &res))
	assert.Equal(t, "removed", res.Action)
	assert.Empty(t, res.Message.Reactions)

	status, _ = e.do(t, e.teacher, http.MethodPost, msgPath+"/star", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = e.do(t, e.parent, http.MethodPost, msgPath+"/pin", nil)
	assert.Equal(t, http.StatusOK, status)

	status, out = e.do(t, e.parent, http.MethodPut, msgPath+"/edit", fiber.Map{"content": "hello again"})
	require.Equal(t, http.StatusOK, status)
	var edited domain.Message
	require.NoError(t, json.Unmarshal(out.Data, &edited))
	assert.True(t, edited.IsEdited)

	status, out = e.do(t, e.parent, http.MethodPut, "/api/chat/"+chatID+"/seen", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Messages marked as seen", out.Message)

	status, _ = e.do(t, e.parent, http.MethodDelete, msgPath+"?deleteForEveryone=true", nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = e.do(t, e.teacher, http.MethodPost, msgPath+"/star", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, out = e.do(t, e.teacher, http.MethodDelete, "/api/chat/"+chatID, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Chat cleared", out.Message)
}

func multipartRequest(t *testing.T, u *domain.User, files map[string][]byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, data := range files {
		fw, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/chat/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, u))
	return req
}

func TestUpload(t *testing.T) {
	e := newEnv(t, blobs{})
	status, out := e.send(t, multipartRequest(t, e.teacher, map[string][]byte{"notes.txt": []byte("chapter 4 revision")}))
	require.Equal(t, http.StatusCreated, status, out.Message)
	var res []service.UploadResult
	require.NoError(t, json.Unmarshal(out.Data, &res))
	require.Len(t, res, 1)
	assert.Equal(t, domain.MessageFile, res[0].FileType)
	assert.Equal(t, "/api/chat/upload/"+res[0].ID+"/url", res[0].URL)
	assert.Equal(t, 1, e.store.UploadCount())

	status, _ = e.send(t, multipartRequest(t, e.teacher, map[string][]byte{}))
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestUploadLinkResolvesStoredKey(t *testing.T) {
	e := newEnv(t, blobs{})
	status, out := e.send(t, multipartRequest(t, e.teacher, map[string][]byte{"notes.txt": []byte("chapter 4 revision")}))
	require.Equal(t, http.StatusCreated, status, out.Message)
	var res []service.UploadResult
	require.NoError(t, json.Unmarshal(out.Data, &res))
	require.Len(t, res, 1)

	// any member of the school can follow an attachment link
	status, out = e.do(t, e.parent, http.MethodGet, res[0].URL, nil)
	require.Equal(t, http.StatusOK, status, out.Message)
	var link struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &link))
	assert.True(t, strings.HasPrefix(link.URL, "https://blobs.test/"+school+"/"+e.teacher.ID.Hex()+"/"))
	assert.True(t, strings.HasSuffix(link.URL, "_notes.txt?sig=fresh"))

	req := httptest.NewRequest(http.MethodGet, res[0].URL+"?redirect=true", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, e.parent))
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, link.URL, resp.Header.Get("Location"))

	status, _ = e.do(t, e.parent, http.MethodGet, res[0].URL+"?variant=thumbnail", nil)
	assert.Equal(t, http.StatusNotFound, status)

	elsewhere := &domain.User{ID: primitive.NewObjectID(), TenantID: "school-2", Name: "Lina", Role: "teacher"}
	status, _ = e.do(t, elsewhere, http.MethodGet, res[0].URL, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = e.do(t, e.parent, http.MethodGet, "/api/chat/upload/missing/url", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = e.do(t, nil, http.MethodGet, res[0].URL, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestServerErrorsAreGeneric(t *testing.T) {
	e := newEnv(t, blobs{fail: true})
	status, out := e.send(t, multipartRequest(t, e.teacher, map[string][]byte{"notes.txt": []byte("x")}))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Server error", out.Message)
	assert.NotContains(t, out.Message, "bucket")
}

func TestHealthz(t *testing.T) {
	e := newEnv(t, blobs{})
	resp, err := e.app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestValidationMessagesUseJSONNames(t *testing.T) {
	e := newEnv(t, blobs{})
	chatID := e.parentChat(t)
	_, out := e.do(t, e.parent, http.MethodPost, "/api/chat/"+chatID+"/send", fiber.Map{"content": "hi"})
	var m domain.Message
	require.NoError(t, json.Unmarshal(out.Data, &m))

	status, out := e.do(t, e.parent, http.MethodPost, "/api/chat/message/"+m.ID.Hex()+"/forward", fiber.Map{"chatId": "abc"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "chatId is not a valid id", out.Message)

	status, out = e.do(t, e.parent, http.MethodPost, "/api/chat/"+chatID+"/send", fiber.Map{
		"attachments": []fiber.Map{{"url": "https://x/a.pdf"}},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "attachments[0].filename is required", out.Message)
}

func TestHugePageIsRejected(t *testing.T) {
	e := newEnv(t, blobs{})
	chatID := e.parentChat(t)
	status, out := e.do(t, e.parent, http.MethodGet, "/api/chat/"+chatID+"/messages?page=9223372036854775807", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "page must be at most 100000", out.Message)
}
