package machines

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pool/internal/config"
)

const testToken = "fo1_test_token"

// flyServer is an in-memory stand-in for the machines and GraphQL APIs.
type flyServer struct {
	t *testing.T

	mu          sync.Mutex
	apps        map[string]bool
	machines    map[string]*Machine
	nextID      int
	createCalls map[string]int
	destroyed   []string
	gqlBodies   []gqlRequest
	execCmds    [][]string

	// failCreate makes machine creation in a region answer with a status.
	failCreate map[string]int
	// neverStart lists regions whose machines never reach started.
	neverStart map[string]bool
	appStatus  int
	appBody    string
	gqlFail    bool
	// runLocally executes exec requests with the local shell.
	runLocally bool
	execResult ExecResult
	// execStatus makes exec answer with a status after recording the command.
	execStatus int

	srv *httptest.Server
}

func newFlyServer(t *testing.T) *flyServer {
	f := &flyServer{
		t:           t,
		apps:        make(map[string]bool),
		machines:    make(map[string]*Machine),
		createCalls: make(map[string]int),
		failCreate:  make(map[string]int),
		neverStart:  make(map[string]bool),
	}

	r := chi.NewRouter()
	r.Use(f.auth)
	r.Post("/v1/apps", f.createApp)
	r.Delete("/v1/apps/{app}", f.deleteApp)
	r.Get("/v1/apps/{app}/machines", f.listMachines)
	r.Post("/v1/apps/{app}/machines", f.createMachine)
	r.Get("/v1/apps/{app}/machines/{id}", f.getMachine)
	r.Delete("/v1/apps/{app}/machines/{id}", f.destroyMachine)
	r.Post("/v1/apps/{app}/machines/{id}/start", f.startMachine)
	r.Get("/v1/apps/{app}/machines/{id}/wait", f.wait)
	r.Post("/v1/apps/{app}/machines/{id}/exec", f.exec)
	r.Post("/graphql", f.graphql)

	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *flyServer) config() config.RemoteConfig {
	cfg := config.Default().Remote
	cfg.MachinesURL = f.srv.URL
	cfg.GraphQLURL = f.srv.URL + "/graphql"
	cfg.Token = testToken
	cfg.Org = "acme"
	cfg.Image = "registry.fly.io/sandbox:latest"
	cfg.Regions = map[string][]string{
		"us": {"iad", "ord", "dfw"},
		"eu": {"ams"},
	}
	cfg.RetryDelay = config.Duration{Duration: time.Millisecond}
	cfg.WaitAttempts = 2
	cfg.WaitTimeout = config.Duration{Duration: time.Second}
	return cfg
}

func (f *flyServer) client() *Client {
	return New(f.config())
}

func (f *flyServer) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *flyServer) createApp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AppName string `json:"app_name"`
		OrgSlug string `json:"org_slug"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appStatus != 0 {
		http.Error(w, f.appBody, f.appStatus)
		return
	}
	f.apps[body.AppName] = true
	writeJSON(w, http.StatusCreated, map[string]string{"id": body.AppName})
}

func (f *flyServer) deleteApp(w http.ResponseWriter, r *http.Request) {
	app := chi.URLParam(r, "app")
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.apps[app] {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	delete(f.apps, app)
	w.WriteHeader(http.StatusAccepted)
}

func (f *flyServer) createMachine(w http.ResponseWriter, r *http.Request) {
	app := chi.URLParam(r, "app")
	var body createBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls[body.Region]++
	if status := f.failCreate[body.Region]; status != 0 {
		http.Error(w, "capacity unavailable in "+body.Region, status)
		return
	}

	f.nextID++
	m := &Machine{
		ID:     fmt.Sprintf("m%04d", f.nextID),
		Name:   body.Name,
		State:  StateCreated,
		Region: body.Region,
		Config: body.Config.MachineConfig,
	}
	f.machines[app+"/"+m.ID] = m
	writeJSON(w, http.StatusOK, m)
}

func (f *flyServer) machine(w http.ResponseWriter, r *http.Request) (*Machine, bool) {
	key := chi.URLParam(r, "app") + "/" + chi.URLParam(r, "id")
	m, ok := f.machines[key]
	if !ok {
		http.Error(w, "machine not found", http.StatusNotFound)
	}
	return m, ok
}

func (f *flyServer) listMachines(w http.ResponseWriter, r *http.Request) {
	app := chi.URLParam(r, "app")
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Machine
	for key, m := range f.machines {
		if len(key) > len(app) && key[:len(app)+1] == app+"/" {
			out = append(out, m)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (f *flyServer) getMachine(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.machine(w, r); ok {
		writeJSON(w, http.StatusOK, m)
	}
}

func (f *flyServer) destroyMachine(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.machine(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("force") != "true" {
		http.Error(w, "machine must be stopped", http.StatusPreconditionFailed)
		return
	}
	delete(f.machines, chi.URLParam(r, "app")+"/"+m.ID)
	f.destroyed = append(f.destroyed, m.ID)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (f *flyServer) startMachine(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.machine(w, r); ok {
		m.State = StateStarting
		writeJSON(w, http.StatusOK, map[string]string{"previous_state": "stopped"})
	}
}

func (f *flyServer) wait(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.machine(w, r)
	if !ok {
		return
	}
	want := State(r.URL.Query().Get("state"))
	if want == StateStarted && f.neverStart[m.Region] {
		http.Error(w, "deadline exceeded", http.StatusRequestTimeout)
		return
	}
	m.State = want
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (f *flyServer) exec(w http.ResponseWriter, r *http.Request) {
	var body execBody
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	_, ok := f.machine(w, r)
	f.execCmds = append(f.execCmds, body.Command)
	runLocally, result, status := f.runLocally, f.execResult, f.execStatus
	f.mu.Unlock()
	if !ok {
		return
	}
	if status != 0 {
		http.Error(w, "exec upstream failure", status)
		return
	}

	if runLocally {
		var stdout, stderr bytes.Buffer
		cmd := exec.Command(body.Command[0], body.Command[1:]...)
		cmd.Stdout, cmd.Stderr = &stdout, &stderr
		result = ExecResult{}
		if err := cmd.Run(); err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				result.ExitCode = exitErr.ExitCode()
			} else {
				result.ExitCode = 127
			}
		}
		result.Stdout, result.Stderr = stdout.String(), stderr.String()
	}
	writeJSON(w, http.StatusOK, result)
}

func (f *flyServer) graphql(w http.ResponseWriter, r *http.Request) {
	var body gqlRequest
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.gqlBodies = append(f.gqlBodies, body)
	fail := f.gqlFail
	f.mu.Unlock()

	if fail {
		writeJSON(w, http.StatusOK, map[string]any{
			"data":   nil,
			"errors": []map[string]string{{"message": "Validation failed: quota exceeded"}},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"allocateIpAddress": map[string]any{
				"ipAddress": map[string]string{"id": "ip_1", "address": "fdaa:0:1::3", "type": "private_v6"},
			},
		},
	})
}

func (f *flyServer) addMachine(app, region string, state State) Ref {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	m := &Machine{ID: fmt.Sprintf("m%04d", f.nextID), State: state, Region: region}
	f.machines[app+"/"+m.ID] = m
	f.apps[app] = true
	return Ref{App: app, ID: m.ID}
}
