package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roosthq/roost/pkg/protocol"
	"github.com/roosthq/roost/pkg/types"
)

type pendingCommand struct {
	commandID  string
	instanceID string
	initiator  Link
	timer      *time.Timer
}

// ExecuteCommand relays a one-shot command to an instance's agent.
// Output and completion frames flow back to the initiator link. A
// command still running after its timeout is cancelled and completed
// with exit code 124.
func (m *Manager) ExecuteCommand(initiator Link, instanceID, command string, timeoutSec int) (string, error) {
	if timeoutSec == 0 {
		timeoutSec = protocol.DefaultCommandTimeoutSec
	}
	commandID := uuid.New().String()
	execute := &protocol.CommandExecute{
		CommandID:  commandID,
		Command:    command,
		TimeoutSec: timeoutSec,
	}
	if err := execute.Validate(); err != nil {
		return "", err
	}

	agent := m.agentFor(instanceID)
	if agent == nil {
		return "", fmt.Errorf("%w: instance offline", types.ErrInvalidState)
	}

	pending := &pendingCommand{
		commandID:  commandID,
		instanceID: instanceID,
		initiator:  initiator,
	}
	pending.timer = time.AfterFunc(time.Duration(timeoutSec)*time.Second, func() {
		m.expireCommand(commandID)
	})

	m.mu.Lock()
	m.commands[commandID] = pending
	m.mu.Unlock()

	if err := agent.Send(protocol.NewFrame(protocol.ChannelCommands, protocol.TypeCommandExecute, instanceID, execute)); err != nil {
		m.finishCommand(commandID)
		return "", fmt.Errorf("failed to reach agent: %w", err)
	}
	return commandID, nil
}

// CancelCommand aborts a running command; the initiator receives a
// completion with exit code -1
func (m *Manager) CancelCommand(commandID string) error {
	pending := m.finishCommand(commandID)
	if pending == nil {
		return fmt.Errorf("%w: command %q", types.ErrNotFound, commandID)
	}

	if agent := m.agentFor(pending.instanceID); agent != nil {
		cancel := protocol.NewFrame(protocol.ChannelCommands, protocol.TypeCommandCancel, pending.instanceID, &protocol.CommandCancel{CommandID: commandID})
		if err := agent.Send(cancel); err != nil {
			m.logger.Debug().Err(err).Str("command_id", commandID).Msg("Cancel frame to agent failed")
		}
	}
	m.completeToInitiator(pending, protocol.ExitCodeCanceled)
	return nil
}

// expireCommand fires on timeout: the agent is told to kill the command
// and the initiator sees exit code 124
func (m *Manager) expireCommand(commandID string) {
	pending := m.finishCommand(commandID)
	if pending == nil {
		return
	}
	if agent := m.agentFor(pending.instanceID); agent != nil {
		cancel := protocol.NewFrame(protocol.ChannelCommands, protocol.TypeCommandCancel, pending.instanceID, &protocol.CommandCancel{CommandID: commandID})
		if err := agent.Send(cancel); err != nil {
			m.logger.Debug().Err(err).Str("command_id", commandID).Msg("Cancel frame to agent failed")
		}
	}
	m.completeToInitiator(pending, protocol.ExitCodeTimeout)
}

// handleCommandFrame routes command output and completion from the agent
// back to whoever started the command
func (m *Manager) handleCommandFrame(instanceID string, env *protocol.Envelope) {
	payload, err := protocol.ParsePayload(env)
	if err != nil {
		m.logger.Debug().Err(err).Str("instance_id", instanceID).Msg("Bad command frame from agent")
		return
	}

	switch typed := payload.(type) {
	case *protocol.CommandOutput:
		m.mu.RLock()
		pending := m.commands[typed.CommandID]
		m.mu.RUnlock()
		if pending != nil {
			if err := pending.initiator.Send(env); err != nil {
				m.logger.Debug().Err(err).Str("command_id", typed.CommandID).Msg("Output frame to initiator failed")
			}
		}
	case *protocol.CommandComplete:
		pending := m.finishCommand(typed.CommandID)
		if pending != nil {
			if err := pending.initiator.Send(env); err != nil {
				m.logger.Debug().Err(err).Str("command_id", typed.CommandID).Msg("Completion frame to initiator failed")
			}
		}
	}
}

// finishCommand removes the pending record and stops its timer
func (m *Manager) finishCommand(commandID string) *pendingCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending, ok := m.commands[commandID]
	if !ok {
		return nil
	}
	delete(m.commands, commandID)
	pending.timer.Stop()
	return pending
}

func (m *Manager) completeToInitiator(pending *pendingCommand, exitCode int) {
	complete := protocol.NewFrame(protocol.ChannelCommands, protocol.TypeCommandComplete, pending.instanceID, &protocol.CommandComplete{
		CommandID: pending.commandID,
		ExitCode:  exitCode,
	})
	if err := pending.initiator.Send(complete); err != nil {
		m.logger.Debug().Err(err).Str("command_id", pending.commandID).Msg("Completion frame to initiator failed")
	}
}
