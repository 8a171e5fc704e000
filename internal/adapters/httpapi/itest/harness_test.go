package itest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/language"

	"github.com/eskate/storefront-api/internal/adapters/httpapi"
	memclock "github.com/eskate/storefront-api/internal/adapters/memory/clock"
	memidempotency "github.com/eskate/storefront-api/internal/adapters/memory/idempotency"
	memidentity "github.com/eskate/storefront-api/internal/adapters/memory/identityprovider"
	memorphans "github.com/eskate/storefront-api/internal/adapters/memory/orphanreport"
	memprofiles "github.com/eskate/storefront-api/internal/adapters/memory/profilestore"
	memcache "github.com/eskate/storefront-api/internal/adapters/memory/sessioncache"
	"github.com/eskate/storefront-api/internal/app/device"
	"github.com/eskate/storefront-api/internal/app/uniqueness"
	"github.com/eskate/storefront-api/internal/app/validation"
	"github.com/eskate/storefront-api/internal/platform/metrics"
	clockport "github.com/eskate/storefront-api/internal/ports/out/clock"
	idempotencyport "github.com/eskate/storefront-api/internal/ports/out/idempotency"
	"github.com/eskate/storefront-api/internal/ports/out/identityprovider"
	profilestoreport "github.com/eskate/storefront-api/internal/ports/out/profilestore"
	"github.com/eskate/storefront-api/internal/ports/out/sessioncache"
)

type backend string

const (
	backendMemory   backend = "memory"
	backendPostgres backend = "postgres"
)

// stores are the persistence adapters a backend contributes.
type stores struct {
	profiles profilestoreport.Store
	idem     idempotencyport.Store
	sessions sessioncache.Cache
}

var (
	backendsMu sync.Mutex
	backends   = map[backend]func(t *testing.T, clk clockport.Clock) stores{
		backendMemory: func(t *testing.T, clk clockport.Clock) stores {
			return stores{
				profiles: memprofiles.NewStore(clk),
				idem:     memidempotency.NewStore(clk, time.Hour),
				sessions: memcache.NewCache(),
			}
		},
	}
)

// registerBackend is called from build-tagged files that need containers.
func registerBackend(b backend, open func(t *testing.T, clk clockport.Clock) stores) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[b] = open
}

func backendsFromEnv(t *testing.T) []backend {
	t.Helper()
	switch strings.ToLower(strings.TrimSpace(os.Getenv("ITEST_BACKEND"))) {
	case "", "memory":
		return []backend{backendMemory}
	case "postgres":
		return []backend{backendPostgres}
	case "all":
		return []backend{backendMemory, backendPostgres}
	default:
		t.Fatalf("unknown ITEST_BACKEND value (expected memory|postgres|all)")
		return nil
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s *testServer)) {
	t.Helper()
	for _, b := range backendsFromEnv(t) {
		t.Run(string(b), func(t *testing.T) {
			fn(t, newTestServer(t, b))
		})
	}
}

type testServer struct {
	baseURL string
	client  *http.Client
}

func newTestServer(t *testing.T, b backend) *testServer {
	t.Helper()

	backendsMu.Lock()
	open, ok := backends[b]
	backendsMu.Unlock()
	if !ok {
		t.Skipf("backend %s is not compiled in (build with -tags integration)", b)
	}

	clk := memclock.NewManualClock(time.Date(2026, time.March, 15, 9, 0, 0, 0, time.UTC))
	st := open(t, clk)

	dir, err := memidentity.NewDirectory(clk, memidentity.Options{TokenSecret: []byte("itest-secret"), HashCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}
	m := metrics.New(prometheus.NewRegistry())
	checker := uniqueness.NewChecker(st.profiles, uniqueness.WithMetrics(m))
	devices := device.NewRegistry(device.Deps{
		Validator:           validation.NewValidator(validation.DefaultSchema(0), clk),
		Checker:             checker,
		Profiles:            st.profiles,
		Sessions:            st.sessions,
		Identities:          func(c sessioncache.Cache) identityprovider.Provider { return dir.Client(c) },
		Orphans:             memorphans.NewReporter(),
		Clock:               clk,
		Metrics:             m,
		CompensationTimeout: 5 * time.Second,
		CheckTimeout:        5 * time.Second,
	})
	api := httpapi.NewServer(devices, checker, st.idem, clk, language.English, nil)
	srv := httptest.NewServer(httpapi.NewRouter(api, httpapi.RouterOptions{}))
	t.Cleanup(srv.Close)

	return &testServer{
		baseURL: srv.URL,
		client:  srv.Client(),
	}
}

func (s *testServer) url(path string) string {
	if strings.HasPrefix(path, "/") {
		return s.baseURL + path
	}
	return s.baseURL + "/" + path
}

func (s *testServer) doJSON(t *testing.T, method string, path string, dev string, body any, hdr ...string) (int, []byte, http.Header) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.url(path), r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if dev != "" {
		req.Header.Set(httpapi.DeviceHeader, dev)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}

	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out, resp.Header
}

// register fills every field for dev and submits the form.
func (s *testServer) register(t *testing.T, dev string, d draft) (int, []byte) {
	t.Helper()
	for _, kv := range d.fields() {
		status, body, _ := s.doJSON(t, http.MethodPut, "/v1/registration/fields/"+kv[0], dev, httpapi.EditFieldRequest{Value: kv[1]})
		if status != http.StatusOK {
			t.Fatalf("edit %s: status=%d body=%s", kv[0], status, body)
		}
	}
	status, body, _ := s.doJSON(t, http.MethodPost, "/v1/registration/submit", dev, nil)
	return status, body
}

type draft struct {
	identifier string
	email      string
	birthDate  string
	password   string
}

// newDraft returns a valid draft with identifiers unique across runs, so
// shared databases can be reused.
func newDraft() draft {
	tag := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	return draft{
		identifier: "user" + tag,
		email:      "user" + tag + "@example.com",
		birthDate:  "2001-07-04",
		password:   "secret1",
	}
}

func (d draft) fields() [][2]string {
	return [][2]string{
		{"identifier", d.identifier},
		{"givenName", "Ana"},
		{"familyName", "Lopez"},
		{"birthDate", d.birthDate},
		{"email", d.email},
		{"password", d.password},
		{"passwordConfirmation", d.password},
	}
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Kind    string `json:"kind"`
	} `json:"error"`
}

type sessionResponse struct {
	Kind    string  `json:"kind"`
	Email   *string `json:"email"`
	Subject *string `json:"subject"`
	Header  string  `json:"header"`
	Profile *struct {
		Identifier string `json:"identifier"`
		GivenName  string `json:"givenName"`
		BirthDate  string `json:"birthDate"`
	} `json:"profile"`
}

func mustUnmarshal[T any](t *testing.T, b []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v\nbody=%s", err, string(b))
	}
	return out
}

func requireErrorCode(t *testing.T, status int, body []byte, wantStatus int, wantCode string) {
	t.Helper()
	if status != wantStatus {
		t.Fatalf("status=%d want=%d body=%s", status, wantStatus, string(body))
	}
	got := mustUnmarshal[errorResponse](t, body)
	if got.Error.Code != wantCode {
		t.Fatalf("error.code=%q want=%q body=%s", got.Error.Code, wantCode, string(body))
	}
}

func requireHeaderPresent(t *testing.T, h http.Header, key string) {
	t.Helper()
	if strings.TrimSpace(h.Get(key)) == "" {
		t.Fatalf("expected header %q to be present", key)
	}
}
