package fetchlib

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/warpdl/rtfetch/pkg/logger"
)

// ResolvedRemote locates one remote file. Size 0 means the server did not
// report a size.
type ResolvedRemote struct {
	Path string
	Dir  string
	Name string
	Size int64
}

// Resolver maps candidate paths onto files that exist on the server,
// tolerating wrong or missing intermediate folders, case differences and
// encoding damage in names.
type Resolver struct {
	pool *Pool
	root string
	log  logger.Logger
}

// NewResolver creates a resolver that borrows connections from pool.
// Candidates are interpreted relative to root.
func NewResolver(pool *Pool, root string, l logger.Logger) *Resolver {
	if l == nil {
		l = logger.NewNopLogger()
	}
	root = PosixNorm("/" + root)
	return &Resolver{pool: pool, root: root, log: l}
}

// Resolve finds the remote file for candidate. It fails with
// *PathNotFoundError once every tail of the candidate has been tried.
func (r *Resolver) Resolve(ctx context.Context, candidate string) (ResolvedRemote, error) {
	if strings.TrimSpace(candidate) == "" {
		return ResolvedRemote{}, ErrEmptyCandidate
	}
	var res ResolvedRemote
	err := r.pool.WithConn(ctx, func(c *PooledConn) error {
		var err error
		res, err = r.resolveOn(c, candidate)
		return err
	})
	return res, err
}

// tails returns the path relative to the root with 0, 1, 2... leading
// components dropped, most specific first.
func (r *Resolver) tails(candidate string) []string {
	remote := PosixNorm(candidate)
	var rel string
	switch {
	case remote == r.root:
		rel = ""
	case strings.HasPrefix(remote, strings.TrimSuffix(r.root, "/")+"/"):
		rel = remote[len(r.root):]
	default:
		rel = remote
	}
	var parts []string
	for _, p := range strings.Split(rel, "/") {
		if p != "" && p != "." {
			parts = append(parts, p)
		}
	}
	tails := make([]string, 0, len(parts))
	for i := range parts {
		tails = append(tails, strings.Join(parts[i:], "/"))
	}
	return tails
}

func (r *Resolver) resolveOn(c Conn, candidate string) (ResolvedRemote, error) {
	var lastErr error
	for _, tail := range r.tails(candidate) {
		dir, name := path.Split(JoinPosix(r.root, tail))
		res, err := r.probe(c, PosixNorm(dir), name)
		if err == nil {
			if res.Path != JoinPosix(r.root, tail) {
				r.log.Debug("resolved %s as %s", candidate, res.Path)
			}
			return res, nil
		}
		lastErr = err
		if !reusableAfter(err) {
			// the session is gone, later tails would fail the same way
			break
		}
	}
	return ResolvedRemote{}, &PathNotFoundError{Candidate: candidate, Cause: lastErr}
}

func (r *Resolver) probe(c Conn, dir, name string) (ResolvedRemote, error) {
	dir, err := r.enterDir(c, dir)
	if err != nil {
		return ResolvedRemote{}, err
	}
	if size, err := c.FileSize(name); err == nil {
		return ResolvedRemote{Path: JoinPosix(dir, name), Dir: dir, Name: name, Size: size}, nil
	} else if !reusableAfter(err) {
		return ResolvedRemote{}, err
	}

	entries, err := c.List("")
	if err != nil {
		if !isServerReply(err) {
			return ResolvedRemote{}, err
		}
		names, nerr := c.NameList("")
		if nerr != nil {
			return ResolvedRemote{}, nerr
		}
		entries = make([]Entry, len(names))
		for i, n := range names {
			entries[i] = Entry{Name: n, Kind: EntryOther}
		}
	}

	e, ok := matchEntry(entries, name)
	if !ok {
		return ResolvedRemote{}, fmt.Errorf("%s in %s: %w", name, dir, errNotInListing)
	}
	full := JoinPosix(dir, e.Name)
	if path.IsAbs(e.Name) {
		// some servers answer NLST with absolute paths
		full = PosixNorm(e.Name)
	}
	size := e.Size
	if size <= 0 {
		if sz, err := c.FileSize(e.Name); err == nil {
			size = sz
		}
	}
	d, n := path.Split(full)
	return ResolvedRemote{Path: full, Dir: PosixNorm(d), Name: n, Size: size}, nil
}

// enterDir changes into dir. When the exact path does not exist it walks
// down from "/" matching each component case-insensitively and returns the
// directory actually entered.
func (r *Resolver) enterDir(c Conn, dir string) (string, error) {
	first := c.ChangeDir(dir)
	if first == nil {
		return dir, nil
	}
	if !reusableAfter(first) {
		return "", first
	}

	cur := "/"
	if err := c.ChangeDir(cur); err != nil {
		return "", err
	}
	for _, comp := range strings.Split(strings.Trim(dir, "/"), "/") {
		if comp == "" {
			continue
		}
		entries, err := c.List("")
		if err != nil {
			if reusableAfter(err) {
				return "", first
			}
			return "", err
		}
		actual, ok := matchFolder(entries, comp)
		if !ok {
			return "", first
		}
		cur = JoinPosix(cur, actual)
		if err := c.ChangeDir(cur); err != nil {
			return "", err
		}
	}
	return cur, nil
}
