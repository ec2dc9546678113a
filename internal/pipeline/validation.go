package pipeline

import (
	"context"
	"regexp"
	"strconv"

	"github.com/kairoslabs/convocore/internal/coreerrors"
	"github.com/kairoslabs/convocore/pkg/models"
)

const defaultMaxTextLength = 32_000

var fileRefPattern = regexp.MustCompile(`@[^\s]+(:\d+-\d+)?`)

// Validation rejects empty text, text over the configured length limit,
// malformed tool-request structure, and ill-formed file reference syntax.
type Validation struct{}

func (v *Validation) Name() string { return "validation" }

func (v *Validation) Process(_ context.Context, pctx *ProcessingContext) Result {
	msg := pctx.Message
	text := msg.Text()

	if msg.RichType == models.RichTypeText && text == "" && len(msg.ToolCalls) == 0 {
		return Abort(coreerrors.ValidationFailed("message text is empty"))
	}

	limit := pctx.MaxTextLength
	if limit <= 0 {
		limit = defaultMaxTextLength
	}
	if len(text) > limit {
		return Abort(coreerrors.ValidationFailed("message text exceeds configured length limit"))
	}

	for _, tc := range msg.ToolCalls {
		if tc.ToolName == "" {
			return Abort(coreerrors.ValidationFailed("tool request missing tool_name"))
		}
		switch tc.Arguments.Kind {
		case models.ToolArgsString, models.ToolArgsStringList, models.ToolArgsStructured:
		default:
			return Abort(coreerrors.ValidationFailed("tool request has malformed arguments"))
		}
	}

	for _, match := range fileRefPattern.FindAllString(text, -1) {
		if !isWellFormedFileRef(match) {
			return Abort(coreerrors.New(coreerrors.KindValidationFailed, "ill-formed file reference: "+match))
		}
	}

	return Continue()
}

func isWellFormedFileRef(token string) bool {
	// token always starts with '@' and was matched by fileRefPattern; a
	// malformed range (end < start) is the only shape the regex itself
	// cannot reject.
	loc := rangeSuffix.FindStringSubmatch(token)
	if loc == nil {
		return true
	}
	start, err1 := strconv.Atoi(loc[1])
	end, err2 := strconv.Atoi(loc[2])
	if err1 != nil || err2 != nil {
		return false
	}
	return start <= end
}

var rangeSuffix = regexp.MustCompile(`:(\d+)-(\d+)$`)
