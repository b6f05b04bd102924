package open

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/Zuo-Peng/cc-analytics/internal/index"
	"github.com/Zuo-Peng/cc-analytics/internal/parse"
	"github.com/Zuo-Peng/cc-analytics/internal/scan"
)

// Locate returns the transcript path of a stored session and the line of
// message messageIndex in it. A negative index, or one past the end of the
// file, yields line 1.
func Locate(ctx context.Context, db *index.DB, sourceRoot, sessionID string, messageIndex int) (string, int, error) {
	session, err := db.GetSession(ctx, sessionID)
	if err != nil {
		return "", 0, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return "", 0, fmt.Errorf("session not found: %s", sessionID)
	}

	filePath := scan.SessionPath(sourceRoot, session.ProjectID, sessionID)
	if _, err := os.Stat(filePath); err != nil {
		return "", 0, fmt.Errorf("file not found: %s", filePath)
	}
	if messageIndex < 0 {
		return filePath, 1, nil
	}

	line, err := MessageLine(filePath, messageIndex)
	if err != nil {
		return "", 0, err
	}
	return filePath, line, nil
}

// MessageLine decodes the transcript and returns the 1-based line holding
// the message with the given index, or 1 when there is no such message.
func MessageLine(filePath string, messageIndex int) (int, error) {
	i := 0
	for rec, err := range parse.NewDecoder(filePath).Records() {
		if err != nil {
			return 0, fmt.Errorf("decode %s: %w", filePath, err)
		}
		if rec.Kind != parse.KindMessage {
			continue
		}
		if i == messageIndex {
			return rec.Line, nil
		}
		i++
	}
	return 1, nil
}

func OpenSession(ctx context.Context, db *index.DB, sourceRoot, sessionID string, messageIndex int) error {
	filePath, lineNum, err := Locate(ctx, db, sourceRoot, sessionID, messageIndex)
	if err != nil {
		return err
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "less"
	}
	return EditorCommand(editor, filePath, lineNum).Run()
}

// EditorCommand builds the command that opens filePath at lineNum, using the
// line syntax of the editors that support one.
func EditorCommand(editor, filePath string, lineNum int) *exec.Cmd {
	var cmd *exec.Cmd

	switch {
	case strings.Contains(editor, "vim") || strings.Contains(editor, "nvim"):
		cmd = exec.Command(editor, fmt.Sprintf("+%d", lineNum), filePath)
	case strings.Contains(editor, "code"):
		cmd = exec.Command(editor, "--goto", filePath+":"+strconv.Itoa(lineNum))
	case strings.Contains(editor, "less"), strings.Contains(editor, "nano"):
		cmd = exec.Command(editor, "+"+strconv.Itoa(lineNum), filePath)
	default:
		cmd = exec.Command(editor, filePath)
	}

	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}
