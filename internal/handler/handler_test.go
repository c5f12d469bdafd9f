package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spotshare/spotshare/internal/apperror"
	"github.com/spotshare/spotshare/internal/asset"
	"github.com/spotshare/spotshare/internal/auth"
	"github.com/spotshare/spotshare/internal/geo"
	"github.com/spotshare/spotshare/internal/memstore"
	"github.com/spotshare/spotshare/internal/metrics"
	"github.com/spotshare/spotshare/internal/middleware"
	"github.com/spotshare/spotshare/internal/service"
	"github.com/spotshare/spotshare/internal/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// pngData starts with the PNG signature so content sniffing detects it.
var pngData = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0x42}, 64)...)

// switchableStore fails every transaction with err while it is set.
type switchableStore struct {
	*memstore.Store

	mu  sync.Mutex
	err error
}

func (s *switchableStore) failTx(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *switchableStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.RunInTx(ctx, fn)
}

type testAPI struct {
	t        *testing.T
	server   *httptest.Server
	store    *switchableStore
	images   *asset.MemoryStore
	recorder *metrics.InMemoryRecorder
	now      time.Time
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	return newTestAPIWithLogger(t, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestAPIWithLogger(t *testing.T, logger *slog.Logger) *testAPI {
	t.Helper()

	st := &switchableStore{Store: memstore.New()}
	images := asset.NewMemoryStore(UploadsPath)
	recorder := metrics.NewInMemory()
	now := time.Now()
	creds := auth.NewCredentials(testSecret, time.Hour, func() time.Time { return now })
	hasher := auth.NewHasher(auth.Params{Time: 1, Memory: 1024, Threads: 1})

	places := service.NewPlaceService(st, images, geo.NewStatic(), logger,
		service.WithMetrics(recorder), service.WithMaxAttempts(1))
	users := service.NewUserService(st, images, hasher, creds, logger,
		service.WithMetrics(recorder))

	router := NewRouter(RouterConfig{
		Logger:      logger,
		Places:      NewPlaceHandler(places, logger, service.DefaultMaxImageSize),
		Users:       NewUserHandler(users, logger, service.DefaultMaxImageSize),
		Health:      NewHealthHandler(logger, Dependency{Name: "store", Checker: st}),
		Metrics:     NewMetricsHandler(recorder),
		Uploads:     images,
		Verifier:    creds,
		Recorder:    recorder,
		CORS:        middleware.DefaultCORSConfig(),
		Security:    middleware.SecurityConfig{IsDevelopment: true},
		MaxBodySize: 1 << 20,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testAPI{t: t, server: srv, store: st, images: images, recorder: recorder, now: now}
}

func (a *testAPI) do(method, path, token string, body io.Reader, contentType string) (*http.Response, map[string]any) {
	a.t.Helper()

	req, err := http.NewRequest(method, a.server.URL+path, body)
	if err != nil {
		a.t.Fatalf("build request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.server.Client().Do(req)
	if err != nil {
		a.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var decoded map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			a.t.Fatalf("decode %s %s: %v (%s)", method, path, err, raw)
		}
	}
	return resp, decoded
}

func (a *testAPI) multipart(method, path, token string, fields map[string]string, filename string, file []byte) (*http.Response, map[string]any) {
	a.t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			a.t.Fatalf("write field: %v", err)
		}
	}
	if file != nil {
		part, err := w.CreateFormFile("image", filename)
		if err != nil {
			a.t.Fatalf("create file part: %v", err)
		}
		_, _ = part.Write(file)
	}
	if err := w.Close(); err != nil {
		a.t.Fatalf("close multipart: %v", err)
	}
	return a.do(method, path, token, &buf, w.FormDataContentType())
}

func (a *testAPI) jsonBody(method, path, token string, body any) (*http.Response, map[string]any) {
	a.t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		a.t.Fatalf("marshal: %v", err)
	}
	return a.do(method, path, token, bytes.NewReader(raw), "application/json")
}

func (a *testAPI) signup(name, email string) (userID, token string) {
	a.t.Helper()

	resp, body := a.multipart(http.MethodPost, "/api/users/signup", "", map[string]string{
		"name":     name,
		"email":    email,
		"password": "secret123",
	}, "avatar.png", pngData)
	if resp.StatusCode != http.StatusCreated {
		a.t.Fatalf("signup status = %d, body %v", resp.StatusCode, body)
	}
	return body["userId"].(string), body["token"].(string)
}

func (a *testAPI) createPlace(token, title string) map[string]any {
	a.t.Helper()

	resp, body := a.multipart(http.MethodPost, "/api/places", token, map[string]string{
		"title":       title,
		"description": "A lovely spot by the river.",
		"address":     "20 W 34th St, New York, NY 10001",
	}, "place.png", pngData)
	if resp.StatusCode != http.StatusCreated {
		a.t.Fatalf("create status = %d, body %v", resp.StatusCode, body)
	}
	return body["place"].(map[string]any)
}

func assertError(t *testing.T, resp *http.Response, body map[string]any, status int, message string) {
	t.Helper()

	if resp.StatusCode != status {
		t.Fatalf("status = %d, want %d (body %v)", resp.StatusCode, status, body)
	}
	if message != "" && body["message"] != message {
		t.Errorf("message = %v, want %q", body["message"], message)
	}
	if body["code"] == nil || body["code"] == "" {
		t.Errorf("error body has no code: %v", body)
	}
}

func TestAPI_SignupAndLogin(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	userID, token := api.signup("Max", "Max@Test.com")
	if userID == "" || token == "" {
		t.Fatal("signup returned empty credentials")
	}

	resp, body := api.jsonBody(http.MethodPost, "/api/users/login", "", map[string]string{
		"email":    "max@test.com",
		"password": "secret123",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, body %v", resp.StatusCode, body)
	}
	if body["userId"] != userID || body["email"] != "max@test.com" || body["token"] == "" {
		t.Errorf("unexpected login body %v", body)
	}

	resp, body = api.multipart(http.MethodPost, "/api/users/signup", "", map[string]string{
		"name": "Max", "email": "max@test.com", "password": "secret123",
	}, "", nil)
	assertError(t, resp, body, http.StatusUnprocessableEntity, "User exists already, please login instead.")

	resp, body = api.jsonBody(http.MethodPost, "/api/users/login", "", map[string]string{
		"email": "max@test.com", "password": "wrong-password",
	})
	assertError(t, resp, body, http.StatusUnauthorized, "Incorrect Password or Email entered.")

	resp, body = api.jsonBody(http.MethodPost, "/api/users/login", "", map[string]string{
		"email": "nobody@test.com", "password": "secret123",
	})
	assertError(t, resp, body, http.StatusForbidden, "Invalid credentials, could not log you in.")
}

func TestAPI_SignupValidation(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	tests := []struct {
		name   string
		fields map[string]string
	}{
		{"missing name", map[string]string{"email": "a@test.com", "password": "secret123"}},
		{"bad email", map[string]string{"name": "A", "email": "nope", "password": "secret123"}},
		{"short password", map[string]string{"name": "A", "email": "a@test.com", "password": "123"}},
		{"oversize name", map[string]string{"name": strings.Repeat("n", middleware.MaxNameLength+1), "email": "a@test.com", "password": "secret123"}},
	}

	for _, tt := range tests {
		resp, body := api.multipart(http.MethodPost, "/api/users/signup", "", tt.fields, "", nil)
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Errorf("%s: status = %d, want 422 (body %v)", tt.name, resp.StatusCode, body)
		}
	}

	resp, body := api.do(http.MethodPost, "/api/users/signup", "", strings.NewReader("{}"), "application/json")
	assertError(t, resp, body, http.StatusUnprocessableEntity, "Invalid inputs passed, please check your data.")
}

func TestAPI_PlaceLifecycle(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	userID, token := api.signup("Max", "max@test.com")
	place := api.createPlace(token, "Empire State Building")
	placeID := place["id"].(string)

	if place["creator"] != userID {
		t.Errorf("creator = %v, want %s", place["creator"], userID)
	}
	imageURL, _ := place["image"].(string)
	if !strings.HasPrefix(imageURL, UploadsPath+"/") {
		t.Fatalf("image = %q, want it under %s", imageURL, UploadsPath)
	}
	if _, ok := place["location"].(map[string]any); !ok {
		t.Errorf("place has no location: %v", place)
	}

	// The stored image is served back.
	resp, _ := api.do(http.MethodGet, imageURL, "", nil, "")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Errorf("GET image: status %d, content type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	resp, body := api.do(http.MethodGet, "/api/places/"+placeID, "", nil, "")
	if resp.StatusCode != http.StatusOK || body["place"].(map[string]any)["title"] != "Empire State Building" {
		t.Fatalf("GET place: status %d body %v", resp.StatusCode, body)
	}

	resp, body = api.do(http.MethodGet, "/api/places/user/"+userID, "", nil, "")
	if resp.StatusCode != http.StatusOK || len(body["places"].([]any)) != 1 {
		t.Fatalf("GET user places: status %d body %v", resp.StatusCode, body)
	}

	resp, body = api.do(http.MethodGet, "/api/users", "", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET users: status %d", resp.StatusCode)
	}
	users := body["users"].([]any)
	if len(users) != 1 {
		t.Fatalf("users = %v, want one", users)
	}
	user := users[0].(map[string]any)
	if _, leaked := user["password"]; leaked {
		t.Error("user listing exposes password")
	}
	if places := user["places"].([]any); len(places) != 1 || places[0] != placeID {
		t.Errorf("user places = %v, want [%s]", places, placeID)
	}

	// JSON update of text fields keeps the image.
	resp, body = api.jsonBody(http.MethodPatch, "/api/places/"+placeID, token, map[string]string{
		"title": "Empire State",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PATCH status %d body %v", resp.StatusCode, body)
	}
	updated := body["place"].(map[string]any)
	if updated["title"] != "Empire State" || updated["image"] != imageURL {
		t.Errorf("unexpected updated place %v", updated)
	}

	// Multipart update replaces the image.
	resp, body = api.multipart(http.MethodPatch, "/api/places/"+placeID, token, nil, "new.png", pngData)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PATCH image status %d body %v", resp.StatusCode, body)
	}
	newImageURL := body["place"].(map[string]any)["image"].(string)
	if newImageURL == imageURL {
		t.Error("image URL did not change after replacing the image")
	}
	if resp, _ := api.do(http.MethodGet, imageURL, "", nil, ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("old image still served: status %d", resp.StatusCode)
	}

	resp, body = api.do(http.MethodDelete, "/api/places/"+placeID, token, nil, "")
	if resp.StatusCode != http.StatusOK || body["message"] != "Deleted place." {
		t.Fatalf("DELETE status %d body %v", resp.StatusCode, body)
	}

	resp, body = api.do(http.MethodGet, "/api/places/"+placeID, "", nil, "")
	assertError(t, resp, body, http.StatusNotFound, "Could not find a place for the provided id.")

	resp, body = api.do(http.MethodGet, "/api/places/user/"+userID, "", nil, "")
	if resp.StatusCode != http.StatusOK || len(body["places"].([]any)) != 0 {
		t.Errorf("places after delete: status %d body %v", resp.StatusCode, body)
	}
	if api.images.Len() != 1 {
		t.Errorf("stored images = %d, want only the avatar", api.images.Len())
	}
}

func TestAPI_NonOwnerCannotMutate(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	_, ownerToken := api.signup("Owner", "owner@test.com")
	_, otherToken := api.signup("Other", "other@test.com")
	place := api.createPlace(ownerToken, "Owner's place")
	placeID := place["id"].(string)

	resp, body := api.jsonBody(http.MethodPatch, "/api/places/"+placeID, otherToken, map[string]string{"title": "Hijacked"})
	assertError(t, resp, body, http.StatusUnauthorized, "You are not allowed to edit this place.")

	resp, body = api.do(http.MethodDelete, "/api/places/"+placeID, otherToken, nil, "")
	assertError(t, resp, body, http.StatusUnauthorized, "You are not allowed to delete this place.")

	_, body = api.do(http.MethodGet, "/api/places/"+placeID, "", nil, "")
	if got := body["place"].(map[string]any)["title"]; got != "Owner's place" {
		t.Errorf("title = %v, want unchanged", got)
	}
}

func TestAPI_AuthenticationRequired(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	userID, token := api.signup("Max", "max@test.com")
	place := api.createPlace(token, "Kept")
	placeID := place["id"].(string)

	expiredCreds := auth.NewCredentials(testSecret, time.Hour, func() time.Time { return api.now.Add(-2 * time.Hour) })
	expired, err := expiredCreds.Issue(userID, "max@test.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	tests := []struct {
		name   string
		method string
		token  string
	}{
		{"create without token", http.MethodPost, ""},
		{"delete with expired token", http.MethodDelete, expired},
		{"patch with garbage token", http.MethodPatch, "not-a-token"},
	}

	for _, tt := range tests {
		path := "/api/places/" + placeID
		if tt.method == http.MethodPost {
			path = "/api/places"
		}
		resp, body := api.jsonBody(tt.method, path, tt.token, map[string]string{"title": "Changed"})
		if resp.StatusCode != http.StatusForbidden || body["message"] != "Authentication failed!" {
			t.Errorf("%s: status %d body %v", tt.name, resp.StatusCode, body)
		}
	}

	_, body := api.do(http.MethodGet, "/api/places/user/"+userID, "", nil, "")
	if places := body["places"].([]any); len(places) != 1 {
		t.Errorf("places = %d, want 1 after rejected requests", len(places))
	}
	if got := api.recorder.Snapshot().AuthFailures; got != 3 {
		t.Errorf("AuthFailures = %d, want 3", got)
	}
}

func TestAPI_CreateValidation(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	_, token := api.signup("Max", "max@test.com")

	valid := map[string]string{
		"title":       "Spot",
		"description": "Nice and quiet.",
		"address":     "1 Main St",
	}

	resp, body := api.multipart(http.MethodPost, "/api/places", token, valid, "notes.txt", []byte("just some text, not an image"))
	assertError(t, resp, body, http.StatusUnprocessableEntity, "Invalid image type, only png, jpeg and jpg are allowed.")

	big := append([]byte(nil), pngData...)
	big = append(big, bytes.Repeat([]byte{0}, service.DefaultMaxImageSize)...)
	resp, body = api.multipart(http.MethodPost, "/api/places", token, valid, "big.png", big)
	if resp.StatusCode != http.StatusUnprocessableEntity && resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("oversize image: status %d body %v", resp.StatusCode, body)
	}

	short := map[string]string{"title": "Spot", "description": "abc", "address": "1 Main St"}
	resp, body = api.multipart(http.MethodPost, "/api/places", token, short, "", nil)
	assertError(t, resp, body, http.StatusUnprocessableEntity, "")

	if api.images.Len() != 1 {
		t.Errorf("stored images = %d, want only the avatar", api.images.Len())
	}
}

func TestAPI_UpdateRequiresChange(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	_, token := api.signup("Max", "max@test.com")
	placeID := api.createPlace(token, "Spot")["id"].(string)

	resp, body := api.jsonBody(http.MethodPatch, "/api/places/"+placeID, token, map[string]string{})
	assertError(t, resp, body, http.StatusUnprocessableEntity, "")

	resp, body = api.do(http.MethodPatch, "/api/places/"+placeID, token, strings.NewReader("{"), "application/json")
	assertError(t, resp, body, http.StatusUnprocessableEntity, "Invalid inputs passed, please check your data.")
}

func TestAPI_MalformedPlaceID(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	_, token := api.signup("Max", "max@test.com")

	resp, body := api.do(http.MethodGet, "/api/places/"+url.PathEscape("not-an-id"), "", nil, "")
	assertError(t, resp, body, http.StatusNotFound, "Could not find a place for the provided id.")

	resp, body = api.do(http.MethodDelete, "/api/places/not-an-id", token, nil, "")
	assertError(t, resp, body, http.StatusNotFound, "Could not find place for this id.")
}

func TestAPI_TransientFailure(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	_, token := api.signup("Max", "max@test.com")

	api.store.failTx(apperror.Transient("memstore.tx", context.DeadlineExceeded))

	resp, body := api.multipart(http.MethodPost, "/api/places", token, map[string]string{
		"title":       "Spot",
		"description": "Nice and quiet.",
		"address":     "1 Main St",
	}, "place.png", pngData)

	assertError(t, resp, body, http.StatusServiceUnavailable, "")
	if got := resp.Header.Get("Retry-After"); got == "" {
		t.Error("Retry-After not set on transient failure")
	}
	if api.images.Len() != 1 {
		t.Errorf("stored images = %d, want the place image compensated away", api.images.Len())
	}
}

func TestAPI_UnknownRoute(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	resp, body := api.do(http.MethodGet, "/api/nothing-here", "", nil, "")
	assertError(t, resp, body, http.StatusNotFound, "Could not find this route.")
}

func TestAPI_Preflight(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = []string{"*"}
	router := NewRouter(RouterConfig{
		Logger:   logger,
		Places:   &PlaceHandler{logger: logger},
		Users:    &UserHandler{logger: logger},
		Health:   NewHealthHandler(logger),
		Verifier: auth.NewCredentials(testSecret, time.Hour, nil),
		CORS:     cors,
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/places", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestAPI_Metrics(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	_, token := api.signup("Max", "max@test.com")
	api.createPlace(token, "Spot")

	resp, err := api.server.Client().Get(api.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(raw), "spotshare_places_created_total 1\n") {
		t.Errorf("metrics output missing place counter:\n%s", raw)
	}
}
