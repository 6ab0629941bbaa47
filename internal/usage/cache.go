package usage

import (
	"log"
	"os"
	"sync"
	"time"
)

const dirRescanInterval = 60 * time.Second

type fileRecord struct {
	modTime time.Time
	entries []Entry
}

// Cache keeps per-file parse results between refreshes so only changed
// files are re-read. One mutex guards every refresh from the directory
// scan through the snapshot rebuild; callers on other goroutines only ever
// see a registry that matches a completed refresh.
type Cache struct {
	mu sync.Mutex

	root    string
	pricing *Pricing
	now     func() time.Time

	files           map[string]fileRecord
	projects        []Project
	lastFullRefresh time.Time
	lastDirScan     time.Time
	snapshot        *Snapshot
}

// NewCache builds an empty cache over the given data root.
func NewCache(root string, pricing *Pricing) *Cache {
	return &Cache{
		root:    root,
		pricing: pricing,
		now:     time.Now,
		files:   make(map[string]fileRecord),
	}
}

// Clear drops every cached file, project and snapshot.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

func (c *Cache) reset() {
	c.files = make(map[string]fileRecord)
	c.projects = nil
	c.lastFullRefresh = time.Time{}
	c.lastDirScan = time.Time{}
	c.snapshot = nil
}

// Cached returns the snapshot of the last completed refresh without
// touching the filesystem, or nil before the first load.
func (c *Cache) Cached() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// HasChanges reports whether a refresh would find new work. An empty cache
// always has changes; scan errors report false so a broken cycle does not
// spin the caller.
func (c *Cache) HasChanges() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.files) == 0 {
		return true
	}

	projects, err := ListProjects(c.root)
	if err != nil {
		return false
	}
	return !c.detectChanges(sessionFilesOf(projects)).Empty()
}

// FullLoad discards the registry and reads every session file. A missing
// projects directory is a hard error, not an empty result.
func (c *Cache) FullLoad() (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fullLoadLocked()
}

func (c *Cache) fullLoadLocked() (Snapshot, error) {
	c.reset()

	projects, err := ListProjects(c.root)
	if err != nil {
		return Snapshot{}, err
	}

	for _, p := range projects {
		for _, file := range p.SessionFiles {
			entries, err := ReadSessionFile(file, c.pricing)
			if err != nil {
				log.Printf("usage: skipping session file %s: %v", file, err)
				continue
			}
			c.storeFile(file, entries)
		}
	}

	now := c.now()
	c.projects = projects
	c.lastDirScan = now
	c.lastFullRefresh = now

	snap := c.buildSnapshot(projects, now)
	c.snapshot = &snap
	return snap, nil
}

// IncrementalLoad re-reads only new and modified files and rebuilds the
// snapshot from the registry. Falls back to a full load when the cache is
// empty.
func (c *Cache) IncrementalLoad() (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, _, err := c.incrementalLocked()
	return snap, err
}

// IncrementalLoadWithDelta is IncrementalLoad plus a description of which
// projects actually changed. The first load reports a full refresh.
func (c *Cache) IncrementalLoadWithDelta() (Snapshot, Delta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.incrementalLocked()
}

func (c *Cache) incrementalLocked() (Snapshot, Delta, error) {
	if len(c.files) == 0 {
		snap, err := c.fullLoadLocked()
		if err != nil {
			return Snapshot{}, Delta{}, err
		}
		delta := Delta{
			HasChanges:      true,
			FullRefresh:     true,
			UpdatedProjects: snap.Projects,
			OverallStats:    &snap.OverallStats,
			DailyUsage:      snap.DailyUsage,
		}
		return snap, delta, nil
	}

	// The previous descriptor list attributes deleted files; the file is
	// gone from the current scan.
	prevProjects := c.projects

	projects, err := ListProjects(c.root)
	if err != nil {
		return Snapshot{}, Delta{}, err
	}

	now := c.now()
	if c.lastDirScan.IsZero() || now.Sub(c.lastDirScan) >= dirRescanInterval {
		c.projects = projects
		c.lastDirScan = now
	}

	changes := c.detectChanges(sessionFilesOf(projects))

	changedPaths := make(map[string]bool)
	for _, file := range append(changes.New, changes.Modified...) {
		if p, ok := projectOfFile(projects, file); ok {
			changedPaths[p.DecodedPath] = true
		}
	}
	for _, file := range changes.Deleted {
		if p, ok := projectOfFile(prevProjects, file); ok {
			changedPaths[p.DecodedPath] = true
		}
		delete(c.files, file)
	}

	for _, file := range append(changes.New, changes.Modified...) {
		entries, err := ReadSessionFile(file, c.pricing)
		if err != nil {
			// A record must reflect the file's current content; a failed
			// re-parse means it no longer does.
			log.Printf("usage: dropping unreadable session file %s: %v", file, err)
			delete(c.files, file)
			continue
		}
		c.storeFile(file, entries)
	}

	snap := c.buildSnapshot(projects, now)
	c.snapshot = &snap

	var updated []ProjectStats
	for _, p := range snap.Projects {
		if changedPaths[p.ProjectPath] {
			updated = append(updated, p)
		}
	}

	delta := Delta{
		HasChanges:      len(updated) > 0,
		UpdatedProjects: updated,
	}
	if delta.HasChanges {
		delta.OverallStats = &snap.OverallStats
		delta.DailyUsage = snap.DailyUsage
	}
	return snap, delta, nil
}

// detectChanges diffs the registry against the files currently on disk.
// Files whose mtime cannot be read count as modified; files that vanished
// mid-scan are left for deletion detection.
func (c *Cache) detectChanges(currentFiles []string) FileChanges {
	var changes FileChanges

	current := make(map[string]bool, len(currentFiles))
	for _, file := range currentFiles {
		current[file] = true

		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		rec, cached := c.files[file]
		switch {
		case !cached:
			changes.New = append(changes.New, file)
		case info.ModTime().After(rec.modTime):
			changes.Modified = append(changes.Modified, file)
		}
	}

	for file := range c.files {
		if !current[file] {
			changes.Deleted = append(changes.Deleted, file)
		}
	}
	return changes
}

func (c *Cache) storeFile(file string, entries []Entry) {
	modTime := c.now()
	if info, err := os.Stat(file); err == nil {
		modTime = info.ModTime()
	}
	c.files[file] = fileRecord{modTime: modTime, entries: entries}
}

func (c *Cache) buildSnapshot(projects []Project, now time.Time) Snapshot {
	data := make([]ProjectEntries, 0, len(projects))
	for _, p := range projects {
		var entries []Entry
		for _, file := range p.SessionFiles {
			if rec, ok := c.files[file]; ok {
				entries = append(entries, rec.entries...)
			}
		}
		data = append(data, ProjectEntries{Project: p, Entries: entries})
	}
	return BuildSnapshot(data, FilterOptions{}, now)
}

func sessionFilesOf(projects []Project) []string {
	var files []string
	for _, p := range projects {
		files = append(files, p.SessionFiles...)
	}
	return files
}

func projectOfFile(projects []Project, file string) (Project, bool) {
	for _, p := range projects {
		for _, f := range p.SessionFiles {
			if f == file {
				return p, true
			}
		}
	}
	return Project{}, false
}
