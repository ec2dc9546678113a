package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kairoslabs/convocore/internal/coreerrors"
	"github.com/kairoslabs/convocore/pkg/models"
)

const (
	defaultMaxFileSize       = 256 * 1024
	defaultMaxFileReferences = 8
)

var refToken = regexp.MustCompile(`@([^\s:]+)(?::(\d+)-(\d+))?`)

// FileReference matches @path[:start-end] tokens in the message's text,
// reads each through the Workspace collaborator, substitutes the match
// with an inline content block, and records the original text in
// metadata.original_input.
type FileReference struct {
	Workspace Workspace
}

func (f *FileReference) Name() string { return "file_reference" }

func (f *FileReference) Process(ctx context.Context, pctx *ProcessingContext) Result {
	msg := pctx.Message
	text := msg.Text()
	matches := refToken.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return Continue()
	}

	maxRefs := pctx.MaxFileReferences
	if maxRefs <= 0 {
		maxRefs = defaultMaxFileReferences
	}
	if len(matches) > maxRefs {
		return Abort(coreerrors.New(coreerrors.KindPipelineError, "too many file references").WithCategory("file_reference"))
	}

	if f.Workspace == nil {
		return Abort(coreerrors.New(coreerrors.KindPipelineError, "no workspace collaborator configured").WithCategory("file_reference"))
	}

	maxSize := pctx.MaxFileSize
	if maxSize <= 0 {
		maxSize = defaultMaxFileSize
	}

	pctx.OriginalInput = text

	var out strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		out.WriteString(text[last:start])

		path := text[m[2]:m[3]]
		startLine, endLine := 0, 0
		if m[4] >= 0 {
			startLine, _ = strconv.Atoi(text[m[4]:m[5]])
			endLine, _ = strconv.Atoi(text[m[6]:m[7]])
		}

		content, err := f.Workspace.ReadFile(ctx, path, startLine, endLine)
		if err != nil {
			return Abort(coreerrors.Wrap(coreerrors.KindPipelineError, err, "read file reference "+path).WithCategory("file_reference"))
		}
		if len(content) > maxSize {
			return Abort(coreerrors.New(coreerrors.KindPipelineError, "file reference exceeds max size: "+path).WithCategory("file_reference"))
		}

		out.WriteString(fmt.Sprintf("\n--- %s ---\n%s\n--- end %s ---\n", path, content, path))
		last = end
	}
	out.WriteString(text[last:])

	msg.Content = []models.ContentPart{{Type: models.ContentPartText, Text: out.String()}}
	msg.Metadata.OriginalInput = pctx.OriginalInput

	pctx.Fragments = append(pctx.Fragments, PromptFragment{
		Priority: PriorityFiles,
		Text:     fmt.Sprintf("%d file reference(s) were resolved inline for this turn.", len(matches)),
	})

	return Transform()
}
