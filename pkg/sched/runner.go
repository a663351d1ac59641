package sched

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roosthq/roost/pkg/protocol"
	"github.com/roosthq/roost/pkg/session"
)

func base64Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// Runner executes one command on an instance and returns its outcome
type Runner interface {
	Run(instanceID, command string, timeoutSec int) (exitCode int, stdout, stderr string, err error)
}

// ManagerRunner dispatches commands through the session manager's
// command relay and collects the streamed result
type ManagerRunner struct {
	Manager *session.Manager
}

// Run blocks until the command completes, is killed on timeout (exit
// 124) or the agent cannot be reached
func (r *ManagerRunner) Run(instanceID, command string, timeoutSec int) (int, string, string, error) {
	var stdout, stderr bytes.Buffer
	done := make(chan int, 1)

	link := session.LinkFunc(func(env *protocol.Envelope) error {
		switch env.Type {
		case protocol.TypeCommandOutput:
			var out protocol.CommandOutput
			if err := json.Unmarshal(env.Data, &out); err != nil {
				return err
			}
			data, err := base64Decode(out.Data)
			if err != nil {
				return err
			}
			if out.Stream == "stderr" {
				stderr.Write(data)
			} else {
				stdout.Write(data)
			}
		case protocol.TypeCommandComplete:
			var complete protocol.CommandComplete
			if err := json.Unmarshal(env.Data, &complete); err != nil {
				return err
			}
			select {
			case done <- complete.ExitCode:
			default:
			}
		}
		return nil
	})

	if _, err := r.Manager.ExecuteCommand(link, instanceID, command, timeoutSec); err != nil {
		return 0, "", "", err
	}

	// The relay itself enforces the timeout; the grace period only
	// covers a lost completion frame.
	grace := time.Duration(timeoutSec)*time.Second + 10*time.Second
	select {
	case exitCode := <-done:
		return exitCode, stdout.String(), stderr.String(), nil
	case <-time.After(grace):
		return 0, stdout.String(), stderr.String(), fmt.Errorf("no completion within %s", grace)
	}
}
