package scan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Zuo-Peng/cc-analytics/internal/parse"
)

const transcriptExt = ".jsonl"

var ErrSourceMissing = errors.New("source root not found")

type FileInfo struct {
	Path      string
	SessionID string
	Mtime     int64
	Size      int64
}

type ProjectDir struct {
	ProjectID string // encoded directory name
	Path      string
	Files     []FileInfo
}

// ScanProjects lists every immediate child directory of root as a project
// and the transcript files directly inside it as sessions. Subdirectories of
// a project (subagent transcripts) are not descended into.
func ScanProjects(root string) ([]ProjectDir, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSourceMissing, root)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrSourceMissing, root)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var projects []ProjectDir
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		files, err := scanSessions(dir)
		if err != nil {
			continue // skip unreadable dirs
		}
		projects = append(projects, ProjectDir{
			ProjectID: e.Name(),
			Path:      dir,
			Files:     files,
		})
	}
	return projects, nil
}

func scanSessions(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != transcriptExt {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, e.Name())
		files = append(files, FileInfo{
			Path:      path,
			SessionID: parse.SessionIDFromPath(path),
			Mtime:     info.ModTime().UnixNano(),
			Size:      info.Size(),
		})
	}
	return files, nil
}

// SessionPath returns where the transcript of a session lives under root.
func SessionPath(root, projectID, sessionID string) string {
	return filepath.Join(root, projectID, sessionID+transcriptExt)
}
