package effect

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Request names one permutation to compile ahead of time.
type Request struct {
	Name       string
	Parameters *ParameterSet
}

// Precompile compiles a batch of permutations and waits for all of them, so the first frames
// do not render fallbacks. At most limit compiles wait concurrently; limit <= 0 means unbounded.
//
// Parameters:
//   - ctx: cancels the remaining requests
//   - compiler: the compiler to warm up
//   - requests: the permutations
//   - limit: the concurrency bound
//
// Returns:
//   - error: the first compile error or the context error
func Precompile(ctx context.Context, compiler Compiler, requests []Request, limit int) error {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, req := range requests {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			params := req.Parameters
			if params == nil {
				params = &ParameterSet{}
			}
			if _, err := compiler.Compile(req.Name, params).Wait(); err != nil {
				return errors.Wrapf(err, "precompile %q", req.Name)
			}
			return nil
		})
	}
	return g.Wait()
}
