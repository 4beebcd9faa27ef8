package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/gregLibert/secure-element/pkg/se"
	"github.com/gregLibert/secure-element/pkg/transport"
	"github.com/gregLibert/secure-element/pkg/transport/sim"
	"github.com/gregLibert/secure-element/pkg/wired"
)

type fixture struct {
	srv   *httptest.Server
	card  *sim.Card
	store *wired.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	card := sim.New()
	store := wired.NewMemoryStore()
	cfg := se.Config{CommandTimeout: time.Second, TransceiveTimeout: 100 * time.Millisecond}
	ctrl := wired.NewController(se.NewSession(card, cfg, zerolog.Nop()), store, zerolog.Nop())

	srv := httptest.NewServer(NewRouter(ctrl, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, card: card, store: store}
}

func (f *fixture) do(t *testing.T, method, path, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode body: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestRouter_Lifecycle(t *testing.T) {
	f := newFixture(t)

	var health map[string]string
	if code := f.do(t, http.MethodGet, "/health", "", &health); code != http.StatusOK || health["status"] != "ok" {
		t.Fatalf("health = %d %v", code, health)
	}

	var opened OpenResponse
	if code := f.do(t, http.MethodPost, "/session", "", &opened); code != http.StatusCreated {
		t.Fatalf("open status = %d", code)
	}
	base := fmt.Sprintf("/session/%d", opened.Handle)

	var st StatusResponse
	f.do(t, http.MethodGet, "/session", "", &st)
	if st.State != se.StateOpen.String() || st.Handle != opened.Handle || !st.Wired || st.ID == "" {
		t.Errorf("status after open = %+v", st)
	}

	var atr AtrResponse
	if code := f.do(t, http.MethodGet, base+"/atr", "", &atr); code != http.StatusOK {
		t.Fatalf("atr status = %d", code)
	}
	if want := strings.ToUpper(fmt.Sprintf("%x", sim.DefaultATR)); atr.Atr != want {
		t.Errorf("atr = %s, want %s", atr.Atr, want)
	}

	if code := f.do(t, http.MethodPost, "/session/interface", "", nil); code != http.StatusNoContent {
		t.Fatalf("activate status = %d", code)
	}

	var tr TransceiveResponse
	body := `{"apdu":"00 A4 04 00 08 A000000151000000"}`
	if code := f.do(t, http.MethodPost, base+"/transceive", body, &tr); code != http.StatusOK {
		t.Fatalf("transceive status = %d", code)
	}
	if !strings.HasPrefix(tr.Response, "6F") || !strings.HasSuffix(tr.Response, "9000") {
		t.Errorf("transceive response = %s", tr.Response)
	}

	if code := f.do(t, http.MethodDelete, "/session/interface", "", nil); code != http.StatusNoContent {
		t.Fatalf("deactivate status = %d", code)
	}
	if code := f.do(t, http.MethodPost, base+"/reset", "", nil); code != http.StatusNoContent {
		t.Fatalf("reset status = %d", code)
	}

	var disc DisconnectResponse
	if code := f.do(t, http.MethodDelete, base, "", &disc); code != http.StatusOK || !disc.Acknowledged {
		t.Fatalf("disconnect = %d %+v", code, disc)
	}

	f.do(t, http.MethodGet, "/session", "", &st)
	if diff := cmp.Diff(StatusResponse{State: se.StateClosed.String()}, st); diff != "" {
		t.Errorf("status after disconnect (-want +got):\n%s", diff)
	}
	if v, _, _ := f.store.Get(context.Background(), wired.PrefKey); v != "false" {
		t.Errorf("wired preference after disconnect = %q", v)
	}
}

func TestRouter_Metrics(t *testing.T) {
	f := newFixture(t)

	var opened OpenResponse
	if code := f.do(t, http.MethodPost, "/session", "", &opened); code != http.StatusCreated {
		t.Fatalf("open status = %d", code)
	}
	var atr AtrResponse
	if code := f.do(t, http.MethodGet, fmt.Sprintf("/session/%d/atr", opened.Handle), "", &atr); code != http.StatusOK {
		t.Fatalf("atr status = %d", code)
	}

	resp, err := http.Get(f.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	body := string(raw)

	for _, want := range []string{
		`sed_http_requests_total{method="GET",path="/session/{handle}/atr",status="200"}`,
		`sed_dispatch_commands_total{op="GetAtr",outcome="ok"}`,
		`sed_transport_call_duration_seconds_count{op="Open"}`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestRouter_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, f *fixture) string
		method string
		path   string
		body   string
		want   int
		kind   string
	}{
		{
			name:   "transceive before activation",
			setup:  openSession,
			method: http.MethodPost, path: "/transceive", body: `{"apdu":"00A40400"}`,
			want: http.StatusConflict, kind: "invalid_state",
		},
		{
			name: "open twice",
			setup: func(t *testing.T, f *fixture) string {
				openSession(t, f)
				return ""
			},
			method: http.MethodPost, path: "/session",
			want: http.StatusConflict, kind: "already_open",
		},
		{
			name:   "stale handle",
			setup:  func(t *testing.T, f *fixture) string { return "/session/" + fmt.Sprint(openHandle(t, f)+1) },
			method: http.MethodGet, path: "/atr",
			want: http.StatusNotFound, kind: "handle_invalid",
		},
		{
			name:   "empty apdu",
			setup:  activeSession,
			method: http.MethodPost, path: "/transceive", body: `{"apdu":""}`,
			want: http.StatusBadRequest, kind: "invalid_argument",
		},
		{
			name:   "transceive timeout",
			setup:  func(t *testing.T, f *fixture) string { p := activeSession(t, f); f.card.Hang(sim.OpTransceive); return p },
			method: http.MethodPost, path: "/transceive", body: `{"apdu":"00A40400"}`,
			want: http.StatusGatewayTimeout, kind: "timeout",
		},
		{
			name: "hardware fault",
			setup: func(t *testing.T, f *fixture) string {
				p := activeSession(t, f)
				f.card.FailNext(sim.OpTransceive, transport.ErrHardwareFault)
				return p
			},
			method: http.MethodPost, path: "/transceive", body: `{"apdu":"00A40400"}`,
			want: http.StatusBadGateway, kind: "hardware_fault",
		},
		{
			name: "malformed response",
			setup: func(t *testing.T, f *fixture) string {
				p := activeSession(t, f)
				f.card.FailNext(sim.OpTransceive, transport.ErrMalformedResponse)
				return p
			},
			method: http.MethodPost, path: "/transceive", body: `{"apdu":"00A40400"}`,
			want: http.StatusBadGateway, kind: "protocol",
		},
		{
			name:   "apdu not hex",
			setup:  activeSession,
			method: http.MethodPost, path: "/transceive", body: `{"apdu":"zz"}`,
			want: http.StatusBadRequest,
		},
		{
			name:   "handle not a number",
			setup:  func(*testing.T, *fixture) string { return "/session/abc" },
			method: http.MethodGet, path: "/atr",
			want: http.StatusBadRequest,
		},
		{
			name:   "disconnect foreign handle",
			setup:  func(t *testing.T, f *fixture) string { return "/session/" + fmt.Sprint(openHandle(t, f)+1) },
			method: http.MethodDelete, path: "",
			want: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			prefix := tt.setup(t, f)

			var resp errorResponse
			code := f.do(t, tt.method, prefix+tt.path, tt.body, &resp)
			if code != tt.want {
				t.Errorf("status = %d, want %d (%+v)", code, tt.want, resp)
			}
			if resp.Kind != tt.kind {
				t.Errorf("kind = %q, want %q", resp.Kind, tt.kind)
			}
		})
	}
}

func openHandle(t *testing.T, f *fixture) uint32 {
	t.Helper()
	var opened OpenResponse
	if code := f.do(t, http.MethodPost, "/session", "", &opened); code != http.StatusCreated {
		t.Fatalf("open status = %d", code)
	}
	return opened.Handle
}

func openSession(t *testing.T, f *fixture) string {
	return fmt.Sprintf("/session/%d", openHandle(t, f))
}

func activeSession(t *testing.T, f *fixture) string {
	p := openSession(t, f)
	if code := f.do(t, http.MethodPost, "/session/interface", "", nil); code != http.StatusNoContent {
		t.Fatalf("activate status = %d", code)
	}
	return p
}

func TestStatusFor_Unclassified(t *testing.T) {
	if code, kind := statusFor(errors.New("boom")); code != http.StatusInternalServerError || kind != "" {
		t.Errorf("statusFor(boom) = %d %q", code, kind)
	}
}
