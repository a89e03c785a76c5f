// Package onepaneltest provides an in-memory 1Panel API for tests.
package onepaneltest

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/artpar/panelship/internal/core/domain"
	"github.com/artpar/panelship/internal/shell/onepanel"
)

// StackOp records one compose operate call.
type StackOp struct {
	Name      string
	Path      string
	Operation string
}

// Panel is a fake panel host. Exported fields may be set before use and
// read after; the handler holds the lock while touching them.
type Panel struct {
	Server     *httptest.Server
	Credential string

	mu           sync.Mutex
	Stacks       []domain.StackDescriptor
	Files        map[string]string
	Images       []onepanel.Image
	Containers   []onepanel.Container
	Uploads      map[string][]byte
	Loaded       []string
	StackOps     []StackOp
	ContainerOps []string
	Requests     []string
	failures     map[string]failure
}

type failure struct {
	status  int
	code    int
	message string
}

// New starts a panel that accepts credential. It is closed with the test.
func New(t testing.TB, credential string) *Panel {
	t.Helper()
	p := &Panel{
		Credential: credential,
		Files:      map[string]string{},
		Uploads:    map[string][]byte{},
		failures:   map[string]failure{},
	}
	p.Server = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.Server.Close)
	return p
}

// Host returns a remote host record pointing at the panel.
func (p *Panel) Host(id int64, name string) domain.RemoteHost {
	host, portStr, _ := net.SplitHostPort(strings.TrimPrefix(p.Server.URL, "http://"))
	port, _ := strconv.Atoi(portStr)
	return domain.RemoteHost{ID: id, Name: name, Host: host, Port: port, Credential: p.Credential}
}

// FailWith makes requests to endpoint (e.g. "/files/save") answer with an
// error envelope.
func (p *Panel) FailWith(endpoint string, code int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[endpoint] = failure{status: http.StatusOK, code: code, message: message}
}

// FailStatus makes requests to endpoint answer with a bare HTTP status.
func (p *Panel) FailStatus(endpoint string, status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[endpoint] = failure{status: status}
}

// File returns the current content of a remote file.
func (p *Panel) File(path string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Files[path]
}

// SetFile sets the content of a remote file.
func (p *Panel) SetFile(path, content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Files[path] = content
}

// AddStack registers a stack and its definition.
func (p *Panel) AddStack(name, path, content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Stacks = append(p.Stacks, domain.StackDescriptor{Name: name, Path: path})
	p.Files[path] = content
}

// Snapshot returns copies of the recorded calls.
func (p *Panel) Snapshot() (loaded []string, stackOps []StackOp, requests []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.Loaded...),
		append([]StackOp(nil), p.StackOps...),
		append([]string(nil), p.Requests...)
}

func (p *Panel) serve(w http.ResponseWriter, r *http.Request) {
	endpoint := strings.TrimPrefix(r.URL.Path, "/api/v1")

	ts, err := strconv.ParseInt(r.Header.Get(onepanel.HeaderTimestamp), 10, 64)
	if err != nil || r.Header.Get(onepanel.HeaderToken) != onepanel.Sign(p.Credential, ts) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, endpoint)

	if f, ok := p.failures[endpoint]; ok {
		io.Copy(io.Discard, r.Body)
		if f.code == 0 {
			w.WriteHeader(f.status)
			return
		}
		reply(w, f.code, f.message, nil)
		return
	}

	switch endpoint {
	case "/system/info":
		reply(w, 200, "", map[string]any{"systemVersion": "v1.10.0"})
	case "/dashboard/base/os":
		reply(w, 200, "", map[string]any{"os": "linux", "platform": "ubuntu", "kernelArch": "x86_64"})
	case "/containers/search":
		reply(w, 200, "", map[string]any{"items": p.Containers, "total": len(p.Containers)})
	case "/containers/operate":
		var body struct {
			Names     []string `json:"names"`
			Operation string   `json:"operation"`
		}
		decode(r, &body)
		for _, n := range body.Names {
			p.ContainerOps = append(p.ContainerOps, body.Operation+":"+n)
		}
		reply(w, 200, "", nil)
	case "/containers/search/log":
		reply(w, 200, "", "log of "+r.URL.Query().Get("container")+"\n")
	case "/containers/compose/search":
		items := make([]map[string]any, 0, len(p.Stacks))
		for _, s := range p.Stacks {
			items = append(items, map[string]any{"name": s.Name, "path": s.Path, "containerNumber": s.ContainerNumber})
		}
		reply(w, 200, "", map[string]any{"items": items, "total": len(items)})
	case "/containers/compose/operate":
		var body StackOp
		decode(r, &body)
		p.StackOps = append(p.StackOps, body)
		reply(w, 200, "", nil)
	case "/containers/compose/update":
		var body struct{ Path, Content string }
		decode(r, &body)
		p.Files[body.Path] = body.Content
		reply(w, 200, "", nil)
	case "/files/content":
		var body struct{ Path string }
		decode(r, &body)
		content, ok := p.Files[body.Path]
		if !ok {
			reply(w, 500, "file not found", nil)
			return
		}
		reply(w, 200, "", map[string]any{"path": body.Path, "content": content})
	case "/files/save":
		var body struct{ Path, Content string }
		decode(r, &body)
		p.Files[body.Path] = body.Content
		reply(w, 200, "", nil)
	case "/files/upload":
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			reply(w, 400, err.Error(), nil)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			reply(w, 400, err.Error(), nil)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		p.Uploads[strings.TrimSuffix(r.FormValue("path"), "/")+"/"+header.Filename] = data
		// Like the real panel, report no path
		reply(w, 200, "", nil)
	case "/containers/image/load":
		var body struct{ Path string }
		decode(r, &body)
		if _, ok := p.Uploads[body.Path]; !ok {
			reply(w, 500, "archive not found", nil)
			return
		}
		p.Loaded = append(p.Loaded, body.Path)
		reply(w, 200, "", nil)
	case "/containers/image/all":
		reply(w, 200, "", p.Images)
	case "/containers/image/remove":
		var body struct{ Names []string }
		decode(r, &body)
		kept := p.Images[:0]
		for _, img := range p.Images {
			if len(body.Names) == 0 || img.ID != body.Names[0] {
				kept = append(kept, img)
			}
		}
		p.Images = kept
		reply(w, 200, "", nil)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func decode(r *http.Request, v any) {
	json.NewDecoder(r.Body).Decode(v)
}

func reply(w http.ResponseWriter, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"code": code, "message": message, "data": data})
}
