package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nooga/esvm/pkg/errors"
	"github.com/nooga/esvm/pkg/image"
	"github.com/nooga/esvm/pkg/vm"
)

type runCmd struct {
	gs         *globalState
	timeout    time.Duration
	cacheStats bool
}

func getCmdRun(gs *globalState) *cobra.Command {
	c := &runCmd{gs: gs}
	cmd := &cobra.Command{
		Use:   "run image",
		Short: "Run a program image",
		Long: `Run a program image.

The program sees a global print function writing its arguments to stdout.
A value returned by the program is printed after the run.`,
		Args: cobra.ExactArgs(1),
		RunE: c.run,
	}
	cmd.Flags().DurationVar(&c.timeout, "timeout", 0, "abort the run after this long (0 disables)")
	cmd.Flags().BoolVar(&c.cacheStats, "cache-stats", false, "print inline cache statistics after the run")
	return cmd
}

func (c *runCmd) run(cmd *cobra.Command, args []string) error {
	img, err := image.Load(c.gs.fs, args[0])
	if err != nil {
		return err
	}
	code, err := img.Code()
	if err != nil {
		return err
	}
	rt, err := vm.NewRuntime(c.gs.cfg.Engine)
	if err != nil {
		return err
	}
	installGlobals(rt, c.gs.stdout)

	ec := rt.NewContext()
	defer ec.Destroy()
	if err := ec.Setup(code); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := ec.RunContext(ctx)
	for err == nil && res == vm.RunSuspended {
		res, err = ec.Resume()
	}
	c.gs.logger.Debug("run finished",
		zap.String("image", args[0]),
		zap.Stringer("result", res),
		zap.Duration("elapsed", time.Since(start)))

	if c.cacheStats {
		printCacheStats(c.gs.stdout, rt, code)
	}
	if err != nil {
		var serr *errors.ScriptError
		if stderrors.As(err, &serr) && serr.Trace != "" {
			fmt.Fprintln(c.gs.stderr, serr.Trace)
		}
		return err
	}
	if v := ec.ReturnValue(); !v.IsUndefined() {
		fmt.Fprintln(c.gs.stdout, v.Inspect())
	}
	return nil
}

// installGlobals adds the CLI's host functions to the runtime's realm.
func installGlobals(rt *vm.Runtime, out io.Writer) {
	realm := rt.Realm()
	printFn := realm.NewNativeFunction("print", 1, func(c *vm.ExecContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			s, err := c.ToString(a)
			if err != nil {
				return vm.Undefined, err
			}
			parts[i] = s
		}
		fmt.Fprintln(out, strings.Join(parts, " "))
		return vm.Undefined, nil
	})
	realm.DeclareGlobal("print", vm.ObjectValue(printFn), false)
}

func printCacheStats(w io.Writer, rt *vm.Runtime, code *vm.Code) {
	s := rt.CacheStats()
	fmt.Fprintf(w, "inline caches: %d hits (%d monomorphic, %d polymorphic), %d misses\n",
		s.Hits, s.MonomorphicHits, s.PolymorphicHits, s.Misses)
	var dump func(*vm.Code)
	dump = func(code *vm.Code) {
		code.DumpCaches(w)
		for _, fn := range code.Functions {
			dump(fn)
		}
	}
	dump(code)
}
