package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofrs/flock"

	"github.com/Zuo-Peng/cc-analytics/internal/parse"
	"github.com/Zuo-Peng/cc-analytics/internal/reconcile"
	"github.com/Zuo-Peng/cc-analytics/internal/scan"
)

// ErrImportLocked is returned when another importer holds the store lock.
var ErrImportLocked = errors.New("another import is running against this database")

const DefaultCommitEvery = 100

type Options struct {
	SourceRoot  string
	CommitEvery int  // sessions per transaction; <= 0 means DefaultCommitEvery
	Full        bool // decode every file even if unchanged since the last run
	SkipReindex bool // do not rebuild the full-text tables afterwards
	Logger      *slog.Logger
}

// Stats are the totals of one import run. Counters only include sessions
// whose batch was committed.
type Stats struct {
	Projects  int // projects with at least one session imported
	Sessions  int // sessions that gained rows
	Messages  int
	ToolUses  int
	Unchanged int // files skipped by fingerprint
	UpToDate  int // files decoded with nothing new
	Errors    int // sessions that failed and were rolled back
	Warnings  []string

	Reindexed bool
	FTS       FTSCounts
}

func (s Stats) String() string {
	return fmt.Sprintf("projects=%d sessions=%d messages=%d tool_uses=%d unchanged=%d up_to_date=%d errors=%d warnings=%d",
		s.Projects, s.Sessions, s.Messages, s.ToolUses, s.Unchanged, s.UpToDate, s.Errors, len(s.Warnings))
}

type Importer struct {
	db   *DB
	opts Options
	log  *slog.Logger
}

func NewImporter(db *DB, opts Options) *Importer {
	if opts.CommitEvery <= 0 {
		opts.CommitEvery = DefaultCommitEvery
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Importer{db: db, opts: opts, log: log}
}

// pending accumulates the effect of the sessions in an uncommitted batch.
type pending struct {
	projects map[string]struct{}
	sessions int
	messages int
	toolUses int
}

func newPending() *pending {
	return &pending{projects: map[string]struct{}{}}
}

// Run imports every transcript under the source root. Per-session failures
// are logged and counted; only setup failures and store failures that make
// further progress impossible are returned.
func (im *Importer) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	projects, err := scan.ScanProjects(im.opts.SourceRoot)
	if err != nil {
		return stats, fmt.Errorf("scan: %w", err)
	}

	lock := flock.New(im.db.Path() + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return stats, fmt.Errorf("lock %s: %w", lock.Path(), err)
	}
	if !locked {
		return stats, ErrImportLocked
	}
	defer func() { _ = lock.Unlock() }()

	committedProjects := map[string]struct{}{}
	cur := newPending()

	// a cancelled run still commits the sessions already applied
	batch, err := im.db.Begin(context.WithoutCancel(ctx))
	if err != nil {
		return stats, err
	}

	commit := func() error {
		n := batch.Sessions()
		if err := batch.Commit(); err != nil {
			im.log.Error("commit batch", slog.Int("sessions", n), slog.Any("error", err))
			stats.Errors += cur.sessions
		} else {
			im.log.Debug("committed batch", slog.Int("sessions", n))
			for p := range cur.projects {
				committedProjects[p] = struct{}{}
			}
			stats.Sessions += cur.sessions
			stats.Messages += cur.messages
			stats.ToolUses += cur.toolUses
		}
		cur = newPending()
		batch = nil
		return err
	}

	var runErr error
scanLoop:
	for _, project := range projects {
		for _, fi := range project.Files {
			if err := ctx.Err(); err != nil {
				runErr = err
				break scanLoop
			}

			applied, err := im.importSession(ctx, batch, &stats, project.ProjectID, fi)
			if err != nil {
				stats.Errors++
				im.log.Error("import session",
					slog.String("project_id", project.ProjectID),
					slog.String("session_id", fi.SessionID),
					slog.String("file", fi.Path),
					slog.Any("error", err))
			} else if applied != nil && applied.Messages+applied.ToolUses > 0 {
				cur.projects[project.ProjectID] = struct{}{}
				cur.sessions++
				cur.messages += applied.Messages
				cur.toolUses += applied.ToolUses
			}

			// an aborted batch rolls back in commit and its sessions count as errors
			if batch.Err() != nil || batch.Sessions() >= im.opts.CommitEvery {
				// a failed commit is logged and counted inside; later batches still run
				_ = commit()
				if batch, err = im.db.Begin(context.WithoutCancel(ctx)); err != nil {
					runErr = err
					break scanLoop
				}
			}
		}
	}

	if batch != nil {
		if err := commit(); err != nil && runErr == nil {
			runErr = fmt.Errorf("commit: %w", err)
		}
	}
	stats.Projects = len(committedProjects)

	if stats.Messages > 0 && !im.opts.SkipReindex {
		// an interrupted run still indexes what it committed
		counts, err := im.db.RebuildSearchIndex(context.WithoutCancel(ctx))
		if err != nil {
			im.log.Warn("rebuild search index", slog.Any("error", err))
			stats.Warnings = append(stats.Warnings, fmt.Sprintf("search index not rebuilt: %v", err))
		} else {
			stats.Reindexed = true
			stats.FTS = counts
		}
	}

	return stats, runErr
}

// importSession decodes, reconciles and applies one transcript. A nil
// Applied means the file contributed nothing.
func (im *Importer) importSession(ctx context.Context, batch *Batch, stats *Stats, projectID string, fi scan.FileInfo) (*Applied, error) {
	if !im.opts.Full {
		unchanged, err := batch.FileUnchanged(ctx, fi)
		if err != nil {
			return nil, err
		}
		if unchanged {
			stats.Unchanged++
			return nil, nil
		}
	}

	dec := parse.NewDecoder(fi.Path)
	dec.OnWarning = func(w parse.Warning) {
		im.log.Warn("malformed line",
			slog.String("file", w.File),
			slog.Int("line", w.Line),
			slog.Any("error", w.Err))
		stats.Warnings = append(stats.Warnings, w.String())
	}
	var records []parse.Record
	for rec, err := range dec.Records() {
		if err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		records = append(records, rec)
	}

	prior, err := batch.Prior(ctx, fi.SessionID)
	if err != nil {
		return nil, err
	}
	if prior.Exists && prior.ProjectID != projectID {
		return nil, fmt.Errorf("session %s already belongs to project %s", fi.SessionID, prior.ProjectID)
	}

	delta := reconcile.Reconcile(fi.SessionID, records, prior)
	switch {
	case delta.Shrunk:
		msg := fmt.Sprintf("%s: file has fewer messages than the %d already stored, nothing imported", fi.Path, prior.MaxIndex+1)
		im.log.Warn("transcript shrank",
			slog.String("session_id", fi.SessionID),
			slog.String("file", fi.Path),
			slog.Int("stored", prior.MaxIndex+1))
		stats.Warnings = append(stats.Warnings, msg)
		return nil, nil
	case delta.Empty():
		if delta.IsNew {
			im.log.Debug("no messages", slog.String("session_id", fi.SessionID), slog.String("file", fi.Path))
		}
		stats.UpToDate++
		return nil, batch.MarkFile(ctx, fi)
	}

	applied, err := batch.Apply(ctx, projectID, delta, &fi)
	if errors.Is(err, ErrSessionExists) {
		im.log.Warn("session created concurrently, skipped", slog.String("session_id", fi.SessionID))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	im.log.Debug("imported session",
		slog.String("session_id", fi.SessionID),
		slog.Int("messages", applied.Messages),
		slog.Int("tool_uses", applied.ToolUses))
	return &applied, nil
}

// FormatWarnings renders run warnings one per line, indented.
func FormatWarnings(warnings []string) string {
	var b strings.Builder
	for _, w := range warnings {
		b.WriteString("  WARN: ")
		b.WriteString(w)
		b.WriteByte('\n')
	}
	return b.String()
}
