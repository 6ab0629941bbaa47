package usage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ErrProjectsDirNotFound reports a missing projects directory. Callers
// treat this as a hard failure rather than an empty result.
var ErrProjectsDirNotFound = errors.New("usage: projects directory not found")

const maxLineBytes = 10 * 1024 * 1024

// ListProjects enumerates project directories under the data root. Projects
// without any session files are skipped.
func ListProjects(root string) ([]Project, error) {
	projectsDir := ProjectsDir(root)

	dirEntries, err := os.ReadDir(projectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrProjectsDirNotFound, projectsDir)
		}
		return nil, fmt.Errorf("usage: read projects dir: %w", err)
	}

	var projects []Project
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		encoded := de.Name()
		files, err := filepath.Glob(filepath.Join(projectsDir, encoded, "*.jsonl"))
		if err != nil || len(files) == 0 {
			continue
		}
		sort.Strings(files)
		decoded := DecodeProjectPath(encoded)
		projects = append(projects, Project{
			EncodedPath:  encoded,
			DecodedPath:  decoded,
			DisplayName:  DisplayName(decoded),
			SessionFiles: files,
		})
	}

	return projects, nil
}

// ReadSessionFile parses one JSONL file into costed entries. Malformed
// lines are logged and skipped. Duplicate entries sharing a message and
// request id collapse to the last occurrence, kept at the position of the
// first.
func ReadSessionFile(path string, pricing *Pricing) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("usage: open session file: %w", err)
	}
	defer f.Close()

	var entries []Entry
	index := make(map[string]int)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var event SessionEvent
		if err := json.Unmarshal(line, &event); err != nil {
			log.Printf("usage: skipping malformed line %d in %s: %v", lineNum, path, err)
			continue
		}

		entry, ok := processEvent(&event, pricing)
		if !ok {
			continue
		}

		key := dedupKey(entry)
		if key == "" {
			key = fmt.Sprintf("no_dedup_%d_%d", lineNum, entry.Timestamp.UnixNano())
		}
		if i, seen := index[key]; seen {
			entries[i] = entry
		} else {
			index[key] = len(entries)
			entries = append(entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("usage: scan session file %s: %w", path, err)
	}

	return entries, nil
}

// LoadProjectEntries reads every session file of a project and deduplicates
// across files. Unreadable files are logged and skipped; the result is
// sorted by timestamp.
func LoadProjectEntries(project Project, pricing *Pricing) []Entry {
	byKey := make(map[string]Entry)
	var order []string
	counter := 0

	for _, file := range project.SessionFiles {
		entries, err := ReadSessionFile(file, pricing)
		if err != nil {
			log.Printf("usage: skipping session file %s: %v", file, err)
			continue
		}
		for _, entry := range entries {
			key := dedupKey(entry)
			if key == "" {
				counter++
				key = fmt.Sprintf("no_dedup_%d_%d", counter, entry.Timestamp.UnixNano())
			}
			if _, seen := byKey[key]; !seen {
				order = append(order, key)
			}
			byKey[key] = entry
		}
	}

	result := make([]Entry, 0, len(order))
	for _, key := range order {
		result = append(result, byKey[key])
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result
}

// dedupKey returns the composite identity of an entry, or "" when the
// entry cannot be deduplicated. Both ids must be present; a request id of
// "unknown" is a filled-in default, not an identity.
func dedupKey(e Entry) string {
	if e.MessageID == "" || e.RequestID == "" || e.RequestID == "unknown" {
		return ""
	}
	return e.MessageID + ":" + e.RequestID
}

// processEvent normalizes a raw event. Events without a parseable
// timestamp or without any positive input/output token source contribute
// nothing.
func processEvent(event *SessionEvent, pricing *Pricing) (Entry, bool) {
	ts, ok := parseTimestamp(event.Timestamp)
	if !ok {
		return Entry{}, false
	}

	tokens, ok := extractTokens(event)
	if !ok {
		return Entry{}, false
	}

	model := "claude-3-5-sonnet"
	if event.Message != nil && event.Message.Model != "" {
		model = event.Message.Model
	}

	cost := 0.0
	if event.CostUSD != nil {
		cost = *event.CostUSD
	} else {
		cost = pricing.Cost(model, tokens.InputTokens, tokens.OutputTokens,
			tokens.CacheCreationTokens, tokens.CacheReadTokens)
	}

	messageID := ""
	if event.Message != nil && event.Message.ID != "" {
		messageID = event.Message.ID
	} else {
		messageID = event.MessageID
	}

	requestID := event.RequestID
	if requestID == "" {
		requestID = "unknown"
	}

	return Entry{
		Timestamp:           ts,
		Model:               model,
		InputTokens:         tokens.InputTokens,
		OutputTokens:        tokens.OutputTokens,
		CacheCreationTokens: tokens.CacheCreationTokens,
		CacheReadTokens:     tokens.CacheReadTokens,
		CostUSD:             cost,
		MessageID:           messageID,
		RequestID:           requestID,
	}, true
}

// extractTokens picks the token source by event type. Assistant events
// trust the nested message usage first, everything else the top-level
// usage first. A source counts only when input or output is positive.
func extractTokens(event *SessionEvent) (TokenUsage, bool) {
	var sources []*TokenUsage
	var msgUsage *TokenUsage
	if event.Message != nil {
		msgUsage = event.Message.Usage
	}
	if event.Type == "assistant" {
		sources = []*TokenUsage{msgUsage, event.Usage}
	} else {
		sources = []*TokenUsage{event.Usage, msgUsage}
	}

	for _, src := range sources {
		if src == nil {
			continue
		}
		if src.InputTokens > 0 || src.OutputTokens > 0 {
			return *src, true
		}
	}
	return TokenUsage{}, false
}

func parseTimestamp(ts string) (time.Time, bool) {
	if ts == "" {
		return time.Time{}, false
	}
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
