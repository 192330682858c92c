package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blockedby/telememo/internal/collector"
	"github.com/blockedby/telememo/internal/config"
	"github.com/blockedby/telememo/internal/normalize"
	"github.com/blockedby/telememo/internal/repository"
	"github.com/blockedby/telememo/internal/telegram"
)

// errUsage marks bad flags or arguments.
var errUsage = errors.New("usage error")

func flagError(_ *cobra.Command, err error) error {
	return fmt.Errorf("%w: %v", errUsage, err)
}

// exit codes
const (
	exitOK                   = 0
	exitFailure              = 1
	exitUsage                = 2
	exitNotFound             = 3
	exitNoPriorDump          = 4
	exitCheckpointRegression = 5
	exitStorage              = 6
	exitThrottled            = 7
	exitUnavailable          = 8
	exitBusy                 = 9
	exitMalformed            = 65
	exitConfig               = 78
	exitInterrupted          = 130
)

type errorClass struct {
	kind    string
	code    int
	matches []error
}

// first match wins; wrapper types that match several sentinels must come early
var errorClasses = []errorClass{
	{"Interrupted", exitInterrupted, []error{context.Canceled}},
	{"Usage", exitUsage, []error{
		errUsage,
		collector.ErrChannelRequired,
		collector.ErrInvalidChannelRef,
		collector.ErrInvalidLimit,
		collector.ErrInvalidOffset,
		collector.ErrQueryRequired,
		repository.ErrEmptyQuery,
	}},
	{"Config", exitConfig, []error{config.ErrMissingCredentials}},
	{"MalformedInput", exitMalformed, []error{normalize.ErrMalformedInput}},
	{"NotFound", exitNotFound, []error{repository.ErrNotFound, telegram.ErrChannelNotFound}},
	{"NoPriorDump", exitNoPriorDump, []error{collector.ErrNoPriorDump}},
	{"CheckpointRegression", exitCheckpointRegression, []error{repository.ErrCheckpointRegression}},
	{"StorageIO", exitStorage, []error{repository.ErrStorageIO}},
	{"RemoteThrottled", exitThrottled, []error{telegram.ErrThrottled}},
	{"RemoteUnavailable", exitUnavailable, []error{telegram.ErrUnavailable}},
	{"Busy", exitBusy, []error{collector.ErrAlreadyRunning, telegram.ErrLoginInProgress}},
}

func classifyError(err error) (string, int) {
	if err == nil {
		return "", exitOK
	}
	for _, class := range errorClasses {
		for _, target := range class.matches {
			if errors.Is(err, target) {
				return class.kind, class.code
			}
		}
	}
	return "Error", exitFailure
}

// errorKind names the error class printed next to the message.
func errorKind(err error) string {
	kind, _ := classifyError(err)
	return kind
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	_, code := classifyError(err)
	return code
}
