package annotate

import (
	"context"
	"fmt"

	"github.com/annobot/annobot/pkg/shared/calc"
	"github.com/annobot/annobot/pkg/shared/stringutil"
)

// calcAnnotator evaluates `!calc` expressions locally. It performs no
// network I/O at all.
type calcAnnotator struct{}

func (a *calcAnnotator) Name() string { return "calc" }

func (a *calcAnnotator) Produce(ctx context.Context, env Env) ([]string, error) {
	if env.Request.Args == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrNoContent)
	}
	result, err := calc.Eval(env.Request.Args)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoContent, err)
	}
	line := fmt.Sprintf("[Calc] %s = %s", env.Request.Args, calc.Format(result))
	return []string{stringutil.Sanitize(line, maxLineBytes)}, nil
}
