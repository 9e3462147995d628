package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pders01/navi/internal/backend"
	"github.com/pders01/navi/internal/config"
	"github.com/pders01/navi/internal/daemon"
	"github.com/pders01/navi/internal/dispatch"
	"github.com/pders01/navi/internal/memstore"
	"github.com/pders01/navi/internal/proto"
)

// dispatchFn routes a command to the dispatcher. Tests replace it to run
// commands against an in-process dispatcher with a fake backend.
var dispatchFn = dispatchCommand

// runCommand executes a command and prints its result. This is the shared
// tail of every navigation and memory command.
func runCommand(name string, params map[string]any, rawBody string) error {
	cmd := proto.NewCommand(name, params)
	cmd.RawBody = rawBody

	res, err := dispatchFn(cmd)
	if err != nil {
		return err
	}
	return printResult(res)
}

// dispatchCommand sends the command through the daemon, starting one if
// none answers; with --no-daemon it dispatches in-process instead.
func dispatchCommand(cmd proto.Command) (*proto.Result, error) {
	workdir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolving working directory: %w", err)
	}
	settings := config.DaemonSettings(workdir)

	// Generous overall bound: the slowest legitimate command is project
	// activation.
	ctx, cancel := context.WithTimeout(context.Background(), settings.ActivateTimeout+10*time.Second)
	defer cancel()

	if noDaemon {
		bc := backend.New(settings.BackendURL,
			backend.WithTimeouts(settings.CallTimeout, settings.ActivateTimeout),
		)
		defer bc.Close()
		d := dispatch.New(bc, memstore.New(bc))
		return d.Dispatch(ctx, cmd), nil
	}

	sup, err := daemon.NewSupervisor(settings)
	if err != nil {
		return nil, err
	}
	client, err := sup.EnsureRunning(ctx)
	if err != nil {
		var st *daemon.StartupTimeoutError
		if errors.As(err, &st) {
			return nil, &proto.Error{
				Kind:    proto.KindStartupTimeout,
				Op:      cmd.Name,
				Message: st.Error(),
				Hint:    "check the daemon log in the project state directory, or try: navi daemon status",
			}
		}
		return nil, err
	}
	return client.Command(ctx, cmd)
}

// printResult renders a dispatch result. Warnings go to stderr so partial
// outcomes are never silently swallowed; failures become the command's
// error.
func printResult(res *proto.Result) error {
	if res.Warning != "" {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", res.Warning)
	}
	if !res.OK {
		if res.Error.Hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", res.Error.Hint)
		}
		return res.Error
	}

	if jsonOut {
		return printJSON(res.Data)
	}
	switch data := res.Data.(type) {
	case nil:
		return nil
	case string:
		fmt.Println(data)
		return nil
	default:
		return printJSON(data)
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// readBody resolves a content argument, reading stdin when it is "-".
func readBody(arg string) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), nil
}
