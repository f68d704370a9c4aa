package fetchlib

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"net/textproto"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// fakeServer is an in-memory remote tree shared by every fakeConn dialed
// from it.
type fakeServer struct {
	mu sync.Mutex

	files map[string][]byte
	dirs  map[string]bool

	// dialErrs are returned by successive dials before they start succeeding.
	dialErrs []error
	dials    int
	quits    int
	retrs    int
	// cutAt truncates the stream opened at the given offset after n bytes.
	cutAt map[int64]int64
	// noSize makes SIZE fail so resolution falls back to listings.
	noSize  bool
	noList  bool
	noOpErr error
	// listNames overrides the names returned by List for a directory.
	listNames map[string][]string
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		files:     make(map[string][]byte),
		dirs:      map[string]bool{"/": true},
		cutAt:     make(map[int64]int64),
		listNames: make(map[string][]string),
	}
}

func (s *fakeServer) addFile(p string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = PosixNorm("/" + p)
	s.files[p] = data
	for d := path.Dir(p); ; d = path.Dir(d) {
		s.dirs[d] = true
		if d == "/" {
			break
		}
	}
}

func (s *fakeServer) dialer() Dialer {
	return DialerFunc(func(ctx context.Context) (Conn, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.dials++
		if len(s.dialErrs) > 0 {
			err := s.dialErrs[0]
			s.dialErrs = s.dialErrs[1:]
			return nil, err
		}
		return &fakeConn{srv: s, cwd: "/"}, nil
	})
}

func (s *fakeServer) counts() (dials, quits, retrs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials, s.quits, s.retrs
}

func replyErr(code int, msg string) error {
	return NewPermanentError("fake", "cmd", &textproto.Error{Code: code, Msg: msg})
}

type fakeConn struct {
	srv *fakeServer
	cwd string
}

func (c *fakeConn) abs(p string) string {
	if p == "" {
		return c.cwd
	}
	if strings.HasPrefix(p, "/") {
		return PosixNorm(p)
	}
	return JoinPosix(c.cwd, p)
}

func (c *fakeConn) NoOp() error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return c.srv.noOpErr
}

func (c *fakeConn) ChangeDir(dir string) error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	target := c.abs(dir)
	if !c.srv.dirs[target] {
		return replyErr(550, target+": no such directory")
	}
	c.cwd = target
	return nil
}

func (c *fakeConn) FileSize(name string) (int64, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if c.srv.noSize {
		return 0, replyErr(502, "SIZE not implemented")
	}
	data, ok := c.srv.files[c.abs(name)]
	if !ok {
		return 0, replyErr(550, name+": no such file")
	}
	return int64(len(data)), nil
}

func (c *fakeConn) List(dir string) ([]Entry, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if c.srv.noList {
		return nil, replyErr(500, "MLSD not understood")
	}
	return c.entries(dir)
}

func (c *fakeConn) NameList(dir string) ([]string, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	entries, err := c.entries(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names, nil
}

// entries lists dir; the caller holds srv.mu.
func (c *fakeConn) entries(dir string) ([]Entry, error) {
	target := c.abs(dir)
	if !c.srv.dirs[target] {
		return nil, replyErr(550, target+": no such directory")
	}
	if names, ok := c.srv.listNames[target]; ok {
		entries := make([]Entry, len(names))
		for i, n := range names {
			full := JoinPosix(target, n)
			if path.IsAbs(n) {
				full = PosixNorm(n)
			}
			entries[i] = Entry{Name: n, Kind: EntryFile, Size: int64(len(c.srv.files[full]))}
		}
		return entries, nil
	}
	var entries []Entry
	for p, data := range c.srv.files {
		if path.Dir(p) == target {
			entries = append(entries, Entry{Name: path.Base(p), Kind: EntryFile, Size: int64(len(data))})
		}
	}
	for d := range c.srv.dirs {
		if d != "/" && d != target && path.Dir(d) == target {
			entries = append(entries, Entry{Name: path.Base(d), Kind: EntryFolder})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (c *fakeConn) RetrFrom(name string, offset int64) (io.ReadCloser, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	c.srv.retrs++
	data, ok := c.srv.files[c.abs(name)]
	if !ok {
		return nil, replyErr(550, name+": no such file")
	}
	if offset > int64(len(data)) {
		return nil, replyErr(554, "restart position out of range")
	}
	data = data[offset:]
	if n, ok := c.srv.cutAt[offset]; ok && n < int64(len(data)) {
		data = data[:n]
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (c *fakeConn) Quit() error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	c.srv.quits++
	return nil
}

// testClock is a manually advanced clock.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func randomBytes(n int, seed int64) []byte {
	r := rand.New(rand.NewSource(seed))
	b := make([]byte, n)
	r.Read(b)
	return b
}
