package fetchlib

import (
	"encoding/json"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
)

// PlanEntry is one file to fetch: the remote candidate path, where it goes
// below the destination root, the expected size (0 if unknown) and the key of
// the job it belongs to.
type PlanEntry struct {
	Remote   string
	RelPath  string
	SizeHint int64
	OwnerKey string
}

// Dest returns the local destination of e below root.
func (e PlanEntry) Dest(root string) string {
	return filepath.Join(root, filepath.FromSlash(e.RelPath))
}

// JobFile is a file of a job as reported by the torrent client.
type JobFile struct {
	Path       string `json:"path,omitempty"`
	Name       string `json:"name,omitempty"`
	FrozenPath string `json:"frozen_path,omitempty"`
	SizeBytes  int64  `json:"size_bytes,omitempty"`
	Length     int64  `json:"length,omitempty"`
	Size       int64  `json:"size,omitempty"`
}

// Job is a completed torrent whose files should be fetched.
type Job struct {
	Hash           string    `json:"hash"`
	InfoHash       string    `json:"info_hash,omitempty"`
	Name           string    `json:"name"`
	Label          string    `json:"label,omitempty"`
	Progress       float64   `json:"progress,omitempty"`
	IsComplete     int       `json:"is_complete,omitempty"`
	CompletedBytes int64     `json:"completed_bytes,omitempty"`
	BytesTotal     int64     `json:"bytes_total,omitempty"`
	Size           int64     `json:"size,omitempty"`
	State          string    `json:"connection_current,omitempty"`
	DestDir        string    `json:"dest_dir,omitempty"`
	Files          []JobFile `json:"files"`
}

// Key returns the hash identifying the job.
func (j Job) Key() string {
	if j.Hash != "" {
		return j.Hash
	}
	return j.InfoHash
}

// DisplayName returns the job name, falling back to its key.
func (j Job) DisplayName() string {
	if j.Name != "" {
		return j.Name
	}
	if k := j.Key(); k != "" {
		return k
	}
	return "torrent"
}

// Completed reports whether the torrent finished downloading on the remote
// side.
func (j Job) Completed() bool {
	if j.Progress >= 100 || j.IsComplete == 1 {
		return true
	}
	total := j.BytesTotal
	if total <= 0 {
		total = j.Size
	}
	if total > 0 && j.CompletedBytes > 0 {
		return j.CompletedBytes >= total
	}
	s := strings.ToLower(j.State)
	return s == "seed" || s == "seeding"
}

// ReadJobs decodes a JSON array of jobs.
func ReadJobs(r io.Reader) ([]Job, error) {
	var jobs []Job
	if err := json.NewDecoder(r).Decode(&jobs); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}
	return jobs, nil
}

// BuildPlan turns the files of job into plan entries below ftpRoot.
//
// A file's relative path comes from its path or name, or else from its
// frozen path made relative to rtorrentRoot; files with none are left out.
// Files of a multi-file job are looked up as <job name>/<base name> on the
// server. A single-file job without a file size uses the job's total.
func BuildPlan(job Job, ftpRoot, rtorrentRoot string) []PlanEntry {
	single := len(job.Files) == 1
	root := PosixNorm("/" + ftpRoot)

	var plan []PlanEntry
	for _, f := range job.Files {
		rel := f.Path
		if rel == "" {
			rel = f.Name
		}
		if rel == "" {
			var ok bool
			if rel, ok = relFromFrozen(f.FrozenPath, rtorrentRoot); !ok {
				continue
			}
		}
		rel = strings.TrimLeft(strings.ReplaceAll(rel, `\`, "/"), "/")
		if !localSafe(rel) {
			continue
		}

		size := firstPositive(f.SizeBytes, f.Length, f.Size)
		if size <= 0 && single {
			size = firstPositive(job.BytesTotal, job.Size)
		}

		remoteRel := rel
		if !single && job.Name != "" {
			remoteRel = JoinPosix(job.Name, path.Base(rel))
		}
		plan = append(plan, PlanEntry{
			Remote:   JoinPosix(root, remoteRel),
			RelPath:  rel,
			SizeHint: size,
			OwnerKey: job.Key(),
		})
	}
	return plan
}

// PlanSize sums the known sizes of plan.
func PlanSize(plan []PlanEntry) int64 {
	var total int64
	for _, e := range plan {
		total += e.SizeHint
	}
	return total
}

func relFromFrozen(frozen, rtorrentRoot string) (string, bool) {
	if frozen == "" || rtorrentRoot == "" {
		return "", false
	}
	frozen = PosixNorm(frozen)
	base := PosixNorm(rtorrentRoot)
	if frozen == base {
		return "", false
	}
	prefix := strings.TrimSuffix(base, "/") + "/"
	if !strings.HasPrefix(frozen, prefix) {
		return "", false
	}
	return frozen[len(prefix):], true
}

// localSafe reports whether rel stays below the directory it is joined to.
func localSafe(rel string) bool {
	if rel == "" {
		return false
	}
	clean := path.Clean(rel)
	return clean != "." && clean != ".." && !strings.HasPrefix(clean, "../")
}

func firstPositive(vals ...int64) int64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
